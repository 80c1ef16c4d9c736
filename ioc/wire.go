//go:build wireinject

package ioc

import (
	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live"
	"github.com/blogkit/livecomment/internal/realtime"
	"github.com/google/wire"
)

var BaseSet = wire.NewSet(InitDB, InitCache, InitRedis, InitMQ)

func InitApp() (*App, error) {
	wire.Build(wire.Struct(new(App), "*"),
		BaseSet,
		comment.InitModule,
		wire.FieldsOf(new(*comment.Module), "Svc", "Hdl", "PurgeJob"),
		realtime.InitModule,
		wire.FieldsOf(new(*realtime.Module), "Factory"),
		live.InitModule,
		wire.FieldsOf(new(*live.Module), "Hdl"),
		InitSession,
		initGinxServer,
		initCronJobs)
	return new(App), nil
}
