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

package job

import (
	"context"
	"fmt"
	"time"

	"github.com/blogkit/livecomment/internal/comment/internal/service"
	"github.com/gotomicro/ego/core/elog"
	"github.com/gotomicro/ego/task/ecron"
)

var _ ecron.NamedJob = (*PurgeDeletedCommentsJob)(nil)

// PurgeDeletedCommentsJob 回收软删除满保留期的评论。
// 墓碑在前端展示一段时间后就没有保留价值了，定期物理清掉
type PurgeDeletedCommentsJob struct {
	svc       service.CommentService
	retention time.Duration
	logger    *elog.Component
}

func NewPurgeDeletedCommentsJob(svc service.CommentService, retention time.Duration) *PurgeDeletedCommentsJob {
	return &PurgeDeletedCommentsJob{
		svc:       svc,
		retention: retention,
		logger:    elog.DefaultLogger,
	}
}

func (p *PurgeDeletedCommentsJob) Name() string {
	return "PurgeDeletedCommentsJob"
}

func (p *PurgeDeletedCommentsJob) Run(ctx context.Context) error {
	deadline := time.Now().Add(-p.retention).UnixMilli()
	purged, err := p.svc.PurgeDeletedBefore(ctx, deadline)
	if err != nil {
		return fmt.Errorf("回收已删除评论失败: %w", err)
	}
	p.logger.Info("回收已删除评论完成", elog.Any("purged", purged))
	return nil
}
