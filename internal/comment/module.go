// Copyright 2024 blogkit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package comment

import (
	"sync"
	"time"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/comment/internal/event"
	"github.com/blogkit/livecomment/internal/comment/internal/job"
	"github.com/blogkit/livecomment/internal/comment/internal/repository/dao"
	"github.com/blogkit/livecomment/internal/comment/internal/service"
	"github.com/blogkit/livecomment/internal/comment/internal/web"
	"github.com/ego-component/egorm"
)

type Module struct {
	Svc      Service
	Hdl      *Handler
	PurgeJob *PurgeDeletedCommentsJob
}

type Handler = web.Handler
type Service = service.CommentService
type Page = service.Page
type CreateInput = service.CreateInput
type Actor = service.Actor
type PurgeDeletedCommentsJob = job.PurgeDeletedCommentsJob

type Comment = domain.Comment
type Author = domain.Author
type Tree = domain.CommentTree

// 实时订阅方（realtime 模块）需要和这里使用同一个主题与事件形状
type CommentEvent = event.CommentEvent
type EventComment = event.Comment

const (
	LiveTopic         = event.LiveTopic
	KindCommentNew    = event.KindCommentNew
	KindCommentUpdate = event.KindCommentUpdate
	KindCommentDelete = event.KindCommentDelete

	Tombstone = domain.Tombstone
)

var (
	ErrContentInvalid     = domain.ErrContentInvalid
	ErrParentNotFound     = domain.ErrParentNotFound
	ErrCommentNotFound    = domain.ErrCommentNotFound
	ErrCommentDeleted     = domain.ErrCommentDeleted
	ErrNotAuthor          = domain.ErrNotAuthor
	ErrAnonymousImmutable = domain.ErrAnonymousImmutable

	BuildTree = domain.BuildTree
	NewTree   = domain.NewCommentTree
)

// 软删除的评论保留一段时间后由定时任务物理回收
const defaultPurgeRetention = 30 * 24 * time.Hour

var once = &sync.Once{}

func initCommentDAO(db *egorm.Component) (dao.CommentDAO, error) {
	var err error
	once.Do(func() {
		err = dao.InitTables(db)
	})
	if err != nil {
		return nil, err
	}
	return dao.NewCommentGORMDAO(db), nil
}

func initPurgeJob(svc service.CommentService) *job.PurgeDeletedCommentsJob {
	return job.NewPurgeDeletedCommentsJob(svc, defaultPurgeRetention)
}
