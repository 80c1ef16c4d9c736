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
	"strconv"
	"strings"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/comment/internal/service"
	"github.com/ecodeclub/ekit/slice"
	"github.com/ecodeclub/ginx"
	"github.com/ecodeclub/ginx/session"
	"github.com/gin-gonic/gin"
)

// senderIDHeader 客户端连接ID，写操作的广播事件原样带出，
// 发起方的实时订阅据此跳过自己的回声
const senderIDHeader = "X-Client-Id"

var _ ginx.Handler = &Handler{}

type Handler struct {
	svc service.CommentService
}

func NewHandler(svc service.CommentService) *Handler {
	return &Handler{
		svc: svc,
	}
}

func (h *Handler) PublicRoutes(server *gin.Engine) {
	group := server.Group("/comments")
	group.GET("", ginx.W(h.List))
	// 博客允许匿名评论，登录态有就用，没有也放行
	group.POST("", ginx.B[CreateCommentRequest](h.Create))
	group.GET("/count", ginx.W(h.Count))
	group.POST("/counts", ginx.B[CountsRequest](h.Counts))
}

func (h *Handler) MemberRoutes(server *gin.Engine) {
	group := server.Group("/comments")
	group.PUT("/:id", ginx.BS[UpdateCommentRequest](h.Update))
	group.DELETE("/:id", ginx.S(h.Delete))
	// 老版客户端把ID放在查询参数里
	group.DELETE("", ginx.S(h.Delete))
}

func (h *Handler) PrivateRoutes(_ *gin.Engine) {}

func (h *Handler) List(ctx *ginx.Context) (ginx.Result, error) {
	postSlug := ctx.Query("post").StringOrDefault("")
	if postSlug == "" {
		return invalidInputResult, nil
	}
	var cursor *string
	if c := ctx.Query("cursor").StringOrDefault(""); c != "" {
		cursor = &c
	}
	limit, _ := strconv.Atoi(ctx.Query("limit").StringOrDefault(""))
	page, err := h.svc.FetchComments(ctx.Request.Context(), postSlug, cursor, limit)
	if err != nil {
		return toResult(err), err
	}
	return ginx.Result{
		Data: CommentList{
			Comments: slice.Map(page.Comments, func(_ int, src domain.Comment) Comment {
				return h.toVO(src)
			}),
			HasMore: page.HasMore,
			Cursor:  page.Cursor,
		},
	}, nil
}

func (h *Handler) Create(ctx *ginx.Context, req CreateCommentRequest) (ginx.Result, error) {
	input := service.CreateInput{
		PostSlug: req.PostSlug,
		ParentID: req.ParentID,
		Content:  req.Content,
		Author: domain.Author{
			ID:   req.UserID,
			Name: strings.TrimSpace(req.UserName),
		},
		ContactEmail: req.Email,
		SenderID:     ctx.GetHeader(senderIDHeader),
	}
	// 登录用户忽略自报的身份，以会话为准
	if sess, err := session.Get(ctx); err == nil {
		claims := sess.Claims()
		uid := strconv.FormatInt(claims.Uid, 10)
		input.Author.ID = &uid
		if nickname := claims.Get("nickname").StringOrDefault(""); nickname != "" {
			input.Author.Name = nickname
		}
		if avatar := claims.Get("avatar").StringOrDefault(""); avatar != "" {
			input.Author.Avatar = &avatar
		}
	}
	created, err := h.svc.Create(ctx.Request.Context(), input)
	if err != nil {
		return toResult(err), err
	}
	return ginx.Result{
		Data: h.toVO(created),
	}, nil
}

func (h *Handler) Update(ctx *ginx.Context, req UpdateCommentRequest, sess session.Session) (ginx.Result, error) {
	id := ctx.Param("id").StringOrDefault("")
	updated, err := h.svc.Update(ctx.Request.Context(), id, h.actor(ctx, sess), req.Content)
	if err != nil {
		return toResult(err), err
	}
	return ginx.Result{
		Data: h.toVO(updated),
	}, nil
}

func (h *Handler) Delete(ctx *ginx.Context, sess session.Session) (ginx.Result, error) {
	id := ctx.Param("id").StringOrDefault("")
	if id == "" {
		id = ctx.Query("id").StringOrDefault("")
	}
	if id == "" {
		return invalidInputResult, nil
	}
	deletedIDs, err := h.svc.Delete(ctx.Request.Context(), id, h.actor(ctx, sess))
	if err != nil {
		return toResult(err), err
	}
	return ginx.Result{
		Data: DeleteResult{
			Success:      true,
			DeletedCount: len(deletedIDs),
			DeletedIDs:   deletedIDs,
		},
	}, nil
}

func (h *Handler) Count(ctx *ginx.Context) (ginx.Result, error) {
	postSlug := ctx.Query("post").StringOrDefault("")
	if postSlug == "" {
		return invalidInputResult, nil
	}
	cnt, err := h.svc.Count(ctx.Request.Context(), postSlug)
	if err != nil {
		return systemErrorResult, err
	}
	return ginx.Result{
		Data: CountResult{Count: cnt},
	}, nil
}

func (h *Handler) Counts(ctx *ginx.Context, req CountsRequest) (ginx.Result, error) {
	counts, err := h.svc.Counts(ctx.Request.Context(), req.PostSlugs)
	if err != nil {
		return systemErrorResult, err
	}
	return ginx.Result{
		Data: CountsResult{Counts: counts},
	}, nil
}

func (h *Handler) actor(ctx *ginx.Context, sess session.Session) service.Actor {
	claims := sess.Claims()
	uid := strconv.FormatInt(claims.Uid, 10)
	return service.Actor{
		ID:       &uid,
		Admin:    claims.Get("admin").StringOrDefault("") == "true",
		SenderID: ctx.GetHeader(senderIDHeader),
	}
}

func (h *Handler) toVO(c domain.Comment) Comment {
	return Comment{
		ID:       c.ID,
		PostSlug: c.PostSlug,
		ParentID: c.ParentID,
		User: User{
			ID:     c.Author.ID,
			Name:   c.Author.Name,
			Avatar: c.Author.Avatar,
		},
		Content:   c.Content,
		IsEdited:  c.IsEdited,
		IsDeleted: c.IsDeleted,
		Ctime:     c.Ctime,
		Utime:     c.Utime,
		Replies: slice.Map(c.Replies, func(_ int, src domain.Comment) Comment {
			return h.toVO(src)
		}),
	}
}
