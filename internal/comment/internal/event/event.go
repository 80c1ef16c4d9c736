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

package event

import (
	"time"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
)

const (
	// LiveTopic 评论实时事件走同一个主题，订阅方按 postSlug 过滤
	LiveTopic = "comment_live_events"

	KindCommentNew    = "comment:new"
	KindCommentUpdate = "comment:update"
	KindCommentDelete = "comment:delete"
)

// CommentEvent 评论变更的广播事件。
// SenderID 是发起方的连接ID，订阅方据此跳过自己发出的事件
type CommentEvent struct {
	Kind       string   `json:"kind"`
	PostSlug   string   `json:"postSlug"`
	SenderID   string   `json:"senderId"`
	Comment    *Comment `json:"comment,omitempty"`
	DeletedIDs []string `json:"deletedIds,omitempty"`
	Ts         int64    `json:"ts"`
}

type Comment struct {
	ID         string  `json:"id"`
	PostSlug   string  `json:"postSlug"`
	ParentID   *string `json:"parentId,omitempty"`
	UserID     *string `json:"userId,omitempty"`
	UserName   string  `json:"userName"`
	UserAvatar *string `json:"userAvatar,omitempty"`
	Content    string  `json:"content"`
	IsEdited   bool    `json:"isEdited"`
	IsDeleted  bool    `json:"isDeleted"`
	Ctime      int64   `json:"ctime"`
	Utime      int64   `json:"utime"`
}

func NewCommentCreatedEvent(c domain.Comment, senderID string) CommentEvent {
	return CommentEvent{
		Kind:     KindCommentNew,
		PostSlug: c.PostSlug,
		SenderID: senderID,
		Comment:  newComment(c),
		Ts:       time.Now().UnixMilli(),
	}
}

func NewCommentUpdatedEvent(c domain.Comment, senderID string) CommentEvent {
	return CommentEvent{
		Kind:     KindCommentUpdate,
		PostSlug: c.PostSlug,
		SenderID: senderID,
		Comment:  newComment(c),
		Ts:       time.Now().UnixMilli(),
	}
}

func NewCommentDeletedEvent(postSlug string, deletedIDs []string, senderID string) CommentEvent {
	return CommentEvent{
		Kind:       KindCommentDelete,
		PostSlug:   postSlug,
		SenderID:   senderID,
		DeletedIDs: deletedIDs,
		Ts:         time.Now().UnixMilli(),
	}
}

func newComment(c domain.Comment) *Comment {
	return &Comment{
		ID:         c.ID,
		PostSlug:   c.PostSlug,
		ParentID:   c.ParentID,
		UserID:     c.Author.ID,
		UserName:   c.Author.Name,
		UserAvatar: c.Author.Avatar,
		Content:    c.Content,
		IsEdited:   c.IsEdited,
		IsDeleted:  c.IsDeleted,
		Ctime:      c.Ctime,
		Utime:      c.Utime,
	}
}
