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

//go:build wireinject

package comment

import (
	"github.com/blogkit/livecomment/internal/comment/internal/event"
	"github.com/blogkit/livecomment/internal/comment/internal/repository"
	"github.com/blogkit/livecomment/internal/comment/internal/repository/cache"
	"github.com/blogkit/livecomment/internal/comment/internal/service"
	"github.com/blogkit/livecomment/internal/comment/internal/web"
	"github.com/ecodeclub/ecache"
	"github.com/ecodeclub/mq-api"
	"github.com/ego-component/egorm"
	"github.com/google/wire"
)

func InitModule(db *egorm.Component, ec ecache.Cache, q mq.MQ) (*Module, error) {
	wire.Build(
		initCommentDAO,
		cache.NewCountCache,
		repository.NewCommentRepository,
		event.NewCommentEventProducer,
		service.NewCommentService,
		web.NewHandler,
		initPurgeJob,
		wire.Struct(new(Module), "*"),
	)
	return new(Module), nil
}
