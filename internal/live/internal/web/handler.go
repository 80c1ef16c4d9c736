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

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live/internal/cache"
	"github.com/blogkit/livecomment/internal/live/internal/session"
	"github.com/blogkit/livecomment/internal/realtime"
	"github.com/ecodeclub/ekit/slice"
	"github.com/ecodeclub/ginx"
	ginxsession "github.com/ecodeclub/ginx/session"
	"github.com/gin-gonic/gin"
	"github.com/gotomicro/ego/core/elog"
)

const (
	senderIDHeader = "X-Client-Id"

	// kindInit SSE 首帧的事件类型，后续帧都是会话转发的实时事件
	kindInit = "comments:init"
)

var _ ginx.Handler = &Handler{}

type Handler struct {
	svc     comment.Service
	cache   *cache.CommentCache
	factory *realtime.Factory

	mu       sync.Mutex
	sessions map[string]*session.LiveSession

	logger *elog.Component
}

func NewHandler(svc comment.Service, cc *cache.CommentCache, factory *realtime.Factory) *Handler {
	return &Handler{
		svc:      svc,
		cache:    cc,
		factory:  factory,
		sessions: make(map[string]*session.LiveSession),
		logger:   elog.DefaultLogger.With(elog.FieldComponent("LiveHandler")),
	}
}

func (h *Handler) PublicRoutes(server *gin.Engine) {
	group := server.Group("/live/comments")
	group.GET("/:slug", h.Stream)
	group.POST("/:slug/typing", ginx.W(h.Typing))
}

func (h *Handler) PrivateRoutes(_ *gin.Engine) {}

// Stream 一条 SSE 长连接对应一个实时会话：
// 首帧推完整评论树快照，之后转发评论变更、打字和在线人数事件，
// 连接断开时注销会话并退出在线名单
func (h *Handler) Stream(ctx *gin.Context) {
	slug := ctx.Param("slug")
	if slug == "" {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}

	identity := h.identity(ctx)
	ls := session.New(h.svc, h.cache, h.factory, session.Config{
		PostSlug: slug,
		Identity: identity,
		Author:   h.author(ctx, identity),
		Actor:    h.actor(ctx, identity),
	})
	if err := ls.Start(ctx.Request.Context()); err != nil {
		h.logger.Error("启动实时会话失败",
			elog.String("post", slug), elog.FieldErr(err))
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	h.register(slug, identity.ClientID, ls)
	defer func() {
		h.unregister(slug, identity.ClientID)
		ls.Close()
	}()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := ctx.Writer.(http.Flusher)
	if !ok {
		h.logger.Error("不支持流式响应")
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	presence, err := ls.PresenceCount(ctx.Request.Context())
	if err != nil {
		presence = 0
	}
	if err := h.send(ctx, flusher, session.Event{
		Kind: kindInit,
		Data: InitPayload{
			ClientID: identity.ClientID,
			Comments: slice.Map(ls.Comments(), func(_ int, src comment.Comment) Comment {
				return toVO(src)
			}),
			HasMore:  ls.HasMore(),
			Presence: presence,
		},
	}); err != nil {
		return
	}

	reqCtx := ctx.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			return
		case evt, ok := <-ls.Events():
			if !ok {
				return
			}
			if err := h.send(ctx, flusher, evt); err != nil {
				return
			}
		}
	}
}

func (h *Handler) Typing(ctx *ginx.Context) (ginx.Result, error) {
	slug := ctx.Param("slug").StringOrDefault("")
	clientID := ctx.GetHeader(senderIDHeader)
	if slug == "" || clientID == "" {
		return invalidInputResult, nil
	}
	h.mu.Lock()
	ls, ok := h.sessions[sessionKey(slug, clientID)]
	h.mu.Unlock()
	if !ok {
		return sessionNotFoundResult, nil
	}
	if err := ls.Typing(ctx.Request.Context()); err != nil {
		return systemErrorResult, err
	}
	return ginx.Result{Msg: "ok"}, nil
}

func (h *Handler) send(ctx *gin.Context, flusher http.Flusher, evt session.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("序列化事件失败", elog.FieldErr(err))
		return err
	}
	if _, err := fmt.Fprintf(ctx.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// identity 复用客户端自带的连接ID，没有就发一个匿名身份
func (h *Handler) identity(ctx *gin.Context) realtime.Identity {
	identity := realtime.Identity{
		ClientID: ctx.GetHeader(senderIDHeader),
		UserName: strings.TrimSpace(ctx.Query("user")),
	}
	if sess, err := ginxsession.Get(&ginx.Context{Context: ctx}); err == nil {
		if nickname := sess.Claims().Get("nickname").StringOrDefault(""); nickname != "" {
			identity.UserName = nickname
		}
	}
	if identity.ClientID == "" {
		anon := realtime.NewAnonymousIdentity()
		identity.ClientID = anon.ClientID
		if identity.UserName == "" {
			identity.UserName = anon.UserName
		}
	}
	return identity
}

func (h *Handler) author(ctx *gin.Context, identity realtime.Identity) comment.Author {
	author := comment.Author{Name: identity.UserName}
	if sess, err := ginxsession.Get(&ginx.Context{Context: ctx}); err == nil {
		claims := sess.Claims()
		uid := strconv.FormatInt(claims.Uid, 10)
		author.ID = &uid
		if avatar := claims.Get("avatar").StringOrDefault(""); avatar != "" {
			author.Avatar = &avatar
		}
	}
	return author
}

func (h *Handler) actor(ctx *gin.Context, identity realtime.Identity) comment.Actor {
	actor := comment.Actor{SenderID: identity.ClientID}
	if sess, err := ginxsession.Get(&ginx.Context{Context: ctx}); err == nil {
		claims := sess.Claims()
		uid := strconv.FormatInt(claims.Uid, 10)
		actor.ID = &uid
		actor.Admin = claims.Get("admin").StringOrDefault("") == "true"
	}
	return actor
}

func (h *Handler) register(slug, clientID string, ls *session.LiveSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionKey(slug, clientID)] = ls
}

func (h *Handler) unregister(slug, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionKey(slug, clientID))
}

func sessionKey(slug, clientID string) string {
	return slug + "/" + clientID
}
