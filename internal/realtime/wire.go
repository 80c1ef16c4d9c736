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

package realtime

import (
	"github.com/blogkit/livecomment/internal/realtime/internal/service"
	"github.com/ecodeclub/mq-api"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

func InitModule(q mq.MQ, client redis.Cmdable) *Module {
	wire.Build(
		service.NewPresenceStore,
		service.NewFactory,
		wire.Struct(new(Module), "*"),
	)
	return new(Module)
}
