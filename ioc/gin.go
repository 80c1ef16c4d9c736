package ioc

import (
	"net/http"
	"strings"

	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live"
	"github.com/blogkit/livecomment/internal/pkg/middleware"
	"github.com/ecodeclub/ginx/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gotomicro/ego/server/egin"
)

func initGinxServer(sp session.Provider,
	commentHdl *comment.Handler,
	liveHdl *live.Handler,
) *egin.Component {
	session.SetDefaultProvider(sp)
	res := egin.Load("web").Build()
	res.Use(cors.New(cors.Config{
		ExposeHeaders:    []string{"X-Refresh-Token", "X-Access-Token"},
		AllowCredentials: true,
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Client-Id"},
		AllowOriginFunc: func(origin string) bool {
			if strings.HasPrefix(origin, "http://localhost") {
				return true
			}
			// 只允许博客自己的域名过来
			return strings.Contains(origin, "blogkit.dev")
		},
	}))
	res.Use(middleware.NewMetricsBuilder().Build())
	res.GET("/hello", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world!")
	})
	// 评论读写和 SSE 订阅都允许匿名访问
	commentHdl.PublicRoutes(res.Engine)
	liveHdl.PublicRoutes(res.Engine)
	// 登录校验
	res.Use(session.CheckLoginMiddleware())
	commentHdl.MemberRoutes(res.Engine)
	return res
}
