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

package live

import (
	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live/internal/cache"
	"github.com/blogkit/livecomment/internal/live/internal/web"
	"github.com/blogkit/livecomment/internal/realtime"
	"github.com/google/wire"
)

func InitModule(svc comment.Service, factory *realtime.Factory) *Module {
	wire.Build(
		cache.NewCommentCache,
		web.NewHandler,
		wire.Struct(new(Module), "*"),
	)
	return new(Module)
}
