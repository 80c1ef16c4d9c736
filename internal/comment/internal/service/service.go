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

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/comment/internal/event"
	"github.com/blogkit/livecomment/internal/comment/internal/repository"
	"github.com/blogkit/livecomment/internal/pkg/resilience"
	"github.com/gotomicro/ego/core/elog"
	"github.com/lithammer/shortuuid/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	mutationConcurrency = 3
)

// Page 一页评论。Cursor 是 RFC3339 时间戳，传回 FetchComments 取下一页
type Page struct {
	Comments []domain.Comment
	HasMore  bool
	Cursor   *string
}

type CreateInput struct {
	PostSlug string
	ParentID *string
	Content  string
	Author   domain.Author
	// ContactEmail 私密联系方式，只落库，任何读路径都不会返回
	ContactEmail *string
	// SenderID 发起方的连接ID，广播时原样带出，订阅方做自过滤
	SenderID string
}

// Actor 发起写操作的调用方。ID 为 nil 表示未登录
type Actor struct {
	ID       *string
	Admin    bool
	SenderID string
}

type CommentService interface {
	// FetchComments 分页查询评论树。熔断器打开时降级为空页而不是报错
	FetchComments(ctx context.Context, postSlug string, cursor *string, limit int) (Page, error)
	Create(ctx context.Context, input CreateInput) (domain.Comment, error)
	Update(ctx context.Context, id string, actor Actor, content string) (domain.Comment, error)
	// Delete 软删除评论及其全部后代，返回受影响的所有ID，
	// 客户端凭这份ID集合在本地级联，不需要二次请求
	Delete(ctx context.Context, id string, actor Actor) ([]string, error)
	Count(ctx context.Context, postSlug string) (int64, error)
	Counts(ctx context.Context, postSlugs []string) (map[string]int64, error)
	PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error)
}

type commentService struct {
	repo     repository.CommentRepository
	producer event.CommentEventProducer
	breaker  *resilience.CircuitBreaker
	// 写操作统一走有界队列，限制并发出站的变更流量
	queue  *resilience.RequestQueue
	idGen  func() string
	logger *elog.Component
	// 追加在默认重试选项之后，测试里用来压缩重试间隔
	extraRetryOpts []resilience.RetryOption
}

func NewCommentService(repo repository.CommentRepository, producer event.CommentEventProducer) CommentService {
	return &commentService{
		repo:     repo,
		producer: producer,
		breaker:  resilience.NewCircuitBreaker(),
		queue:    resilience.NewRequestQueue(mutationConcurrency),
		idGen:    shortuuid.New,
		logger:   elog.DefaultLogger,
	}
}

func (s *commentService) FetchComments(ctx context.Context, postSlug string, cursor *string, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	beforeCtime, err := parseCursor(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", domain.ErrContentInvalid, err)
	}

	type page struct {
		comments []domain.Comment
		hasMore  bool
	}
	res, err := resilience.RetryResult(ctx, func(ctx context.Context) (page, error) {
		var p page
		err1 := s.breaker.Execute(ctx, func(ctx context.Context) error {
			var err2 error
			p.comments, p.hasMore, err2 = s.repo.FindPage(ctx, postSlug, beforeCtime, limit)
			return err2
		})
		return p, err1
	}, s.retryOpts()...)
	if err != nil {
		// 熔断打开时降级：返回空页，评论区展示为空而不是整页报错
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return Page{Comments: []domain.Comment{}}, nil
		}
		return Page{}, err
	}
	return Page{
		Comments: res.comments,
		HasMore:  res.hasMore,
		Cursor:   nextCursor(res.comments),
	}, nil
}

func (s *commentService) Create(ctx context.Context, input CreateInput) (domain.Comment, error) {
	if err := validateContent(input.Content); err != nil {
		return domain.Comment{}, err
	}
	author := input.Author
	if author.Name == "" {
		author.Name = domain.AnonymousName
	}
	c := domain.Comment{
		ID:       s.idGen(),
		PostSlug: input.PostSlug,
		ParentID: input.ParentID,
		Author:   author,
		Content:  input.Content,
	}
	created, err := resilience.Enqueue(ctx, s.queue, func() (domain.Comment, error) {
		return resilience.RetryResult(ctx, func(ctx context.Context) (domain.Comment, error) {
			var res domain.Comment
			err := s.breaker.Execute(ctx, func(ctx context.Context) error {
				var err1 error
				res, err1 = s.repo.Create(ctx, c, input.ContactEmail)
				return err1
			})
			return res, err
		}, s.retryOpts()...)
	})
	if err != nil {
		return domain.Comment{}, err
	}
	s.broadcast(ctx, event.NewCommentCreatedEvent(created, input.SenderID))
	return created, nil
}

func (s *commentService) Update(ctx context.Context, id string, actor Actor, content string) (domain.Comment, error) {
	if err := validateContent(content); err != nil {
		return domain.Comment{}, err
	}
	updated, err := resilience.Enqueue(ctx, s.queue, func() (domain.Comment, error) {
		return resilience.RetryResult(ctx, func(ctx context.Context) (domain.Comment, error) {
			var res domain.Comment
			err := s.breaker.Execute(ctx, func(ctx context.Context) error {
				target, err1 := s.repo.FindByID(ctx, id)
				if err1 != nil {
					return err1
				}
				if err1 = authorize(target, actor); err1 != nil {
					return err1
				}
				res, err1 = s.repo.UpdateContent(ctx, id, content)
				return err1
			})
			return res, err
		}, s.retryOpts()...)
	})
	if err != nil {
		return domain.Comment{}, err
	}
	s.broadcast(ctx, event.NewCommentUpdatedEvent(updated, actor.SenderID))
	return updated, nil
}

func (s *commentService) Delete(ctx context.Context, id string, actor Actor) ([]string, error) {
	var postSlug string
	ids, err := resilience.Enqueue(ctx, s.queue, func() ([]string, error) {
		return resilience.RetryResult(ctx, func(ctx context.Context) ([]string, error) {
			var ids []string
			err := s.breaker.Execute(ctx, func(ctx context.Context) error {
				target, err1 := s.repo.FindByID(ctx, id)
				if err1 != nil {
					return err1
				}
				if err1 = authorizeDelete(target, actor); err1 != nil {
					return err1
				}
				postSlug = target.PostSlug
				ids, err1 = s.repo.DeleteSubtree(ctx, id)
				return err1
			})
			return ids, err
		}, s.retryOpts()...)
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, event.NewCommentDeletedEvent(postSlug, ids, actor.SenderID))
	return ids, nil
}

// Count 熔断打开时降级为 0，评论数是装饰性数据，宁可少显示也不报错
func (s *commentService) Count(ctx context.Context, postSlug string) (int64, error) {
	var cnt int64
	err := s.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		var err1 error
		cnt, err1 = s.repo.Count(ctx, postSlug)
		return err1
	}, func(ctx context.Context) error {
		cnt = 0
		return nil
	})
	return cnt, err
}

func (s *commentService) Counts(ctx context.Context, postSlugs []string) (map[string]int64, error) {
	var res map[string]int64
	err := s.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		var err1 error
		res, err1 = s.repo.Counts(ctx, postSlugs)
		return err1
	}, func(ctx context.Context) error {
		res = make(map[string]int64, len(postSlugs))
		for _, slug := range postSlugs {
			res[slug] = 0
		}
		return nil
	})
	return res, err
}

func (s *commentService) PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error) {
	return s.repo.PurgeDeletedBefore(ctx, deadline)
}

// broadcast 尽力而为，广播失败只记日志，不影响写操作本身的结果
func (s *commentService) broadcast(ctx context.Context, evt event.CommentEvent) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Produce(ctx, evt); err != nil {
		s.logger.Error("广播评论事件失败",
			elog.String("kind", evt.Kind),
			elog.String("post", evt.PostSlug),
			elog.FieldErr(err))
	}
}

// retryOpts 永久性失败（校验、权限、不存在）和熔断拒绝不消耗重试额度
func (s *commentService) retryOpts() []resilience.RetryOption {
	opts := []resilience.RetryOption{
		resilience.WithRetryPredicate(func(err error) bool {
			return !domain.Permanent(err) && !errors.Is(err, resilience.ErrCircuitOpen)
		}),
	}
	return append(opts, s.extraRetryOpts...)
}

func validateContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n < domain.MinContentLength || n > domain.MaxContentLength {
		return fmt.Errorf("%w: 长度必须在 %d 到 %d 之间",
			domain.ErrContentInvalid, domain.MinContentLength, domain.MaxContentLength)
	}
	return nil
}

// authorize 编辑权限：本人或管理员，评论未删除，匿名评论只有管理员能动
func authorize(target domain.Comment, actor Actor) error {
	if target.IsDeleted {
		return domain.ErrCommentDeleted
	}
	return checkOwnership(target, actor)
}

// authorizeDelete 删除权限：与编辑一致，但允许删除已打墓碑的评论是无意义操作，同样拒绝
func authorizeDelete(target domain.Comment, actor Actor) error {
	if target.IsDeleted {
		return domain.ErrCommentDeleted
	}
	return checkOwnership(target, actor)
}

func checkOwnership(target domain.Comment, actor Actor) error {
	if actor.Admin {
		return nil
	}
	if target.Author.Anonymous() {
		return domain.ErrAnonymousImmutable
	}
	if actor.ID == nil || *actor.ID != *target.Author.ID {
		return domain.ErrNotAuthor
	}
	return nil
}

func parseCursor(cursor *string) (int64, error) {
	if cursor == nil || *cursor == "" {
		return math.MaxInt64, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *cursor)
	if err != nil {
		return 0, fmt.Errorf("游标格式非法: %w", err)
	}
	return t.UnixMilli(), nil
}

func nextCursor(roots []domain.Comment) *string {
	if len(roots) == 0 {
		return nil
	}
	last := roots[len(roots)-1]
	cursor := time.UnixMilli(last.Ctime).UTC().Format(time.RFC3339Nano)
	return &cursor
}
