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
	"strings"
	"testing"
	"time"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotStubbed = errors.New("测试桩未实现该方法")

type repoStub struct {
	createFn   func(ctx context.Context, c domain.Comment, contactEmail *string) (domain.Comment, error)
	findPageFn func(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]domain.Comment, bool, error)
	findByIDFn func(ctx context.Context, id string) (domain.Comment, error)
	updateFn   func(ctx context.Context, id string, content string) (domain.Comment, error)
	deleteFn   func(ctx context.Context, id string) ([]string, error)
	countFn    func(ctx context.Context, postSlug string) (int64, error)
	countsFn   func(ctx context.Context, postSlugs []string) (map[string]int64, error)
}

func (r *repoStub) Create(ctx context.Context, c domain.Comment, contactEmail *string) (domain.Comment, error) {
	if r.createFn == nil {
		return domain.Comment{}, errNotStubbed
	}
	return r.createFn(ctx, c, contactEmail)
}

func (r *repoStub) FindPage(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]domain.Comment, bool, error) {
	if r.findPageFn == nil {
		return nil, false, errNotStubbed
	}
	return r.findPageFn(ctx, postSlug, beforeCtime, limit)
}

func (r *repoStub) FindByID(ctx context.Context, id string) (domain.Comment, error) {
	if r.findByIDFn == nil {
		return domain.Comment{}, errNotStubbed
	}
	return r.findByIDFn(ctx, id)
}

func (r *repoStub) UpdateContent(ctx context.Context, id string, content string) (domain.Comment, error) {
	if r.updateFn == nil {
		return domain.Comment{}, errNotStubbed
	}
	return r.updateFn(ctx, id, content)
}

func (r *repoStub) DeleteSubtree(ctx context.Context, id string) ([]string, error) {
	if r.deleteFn == nil {
		return nil, errNotStubbed
	}
	return r.deleteFn(ctx, id)
}

func (r *repoStub) Count(ctx context.Context, postSlug string) (int64, error) {
	if r.countFn == nil {
		return 0, errNotStubbed
	}
	return r.countFn(ctx, postSlug)
}

func (r *repoStub) Counts(ctx context.Context, postSlugs []string) (map[string]int64, error) {
	if r.countsFn == nil {
		return nil, errNotStubbed
	}
	return r.countsFn(ctx, postSlugs)
}

func (r *repoStub) PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error) {
	return 0, errNotStubbed
}

// newTestService 把重试间隔压到 1ms，测试不用真等指数退避
func newTestService(repo *repoStub) *commentService {
	svc := NewCommentService(repo, nil).(*commentService)
	svc.extraRetryOpts = []resilience.RetryOption{
		resilience.WithIntervals(time.Millisecond, time.Millisecond),
	}
	return svc
}

func TestCommentService_Create(t *testing.T) {
	t.Run("匿名评论补默认昵称", func(t *testing.T) {
		repo := &repoStub{
			createFn: func(_ context.Context, c domain.Comment, contactEmail *string) (domain.Comment, error) {
				assert.NotEmpty(t, c.ID)
				assert.Equal(t, domain.AnonymousName, c.Author.Name)
				assert.Nil(t, c.Author.ID)
				require.NotNil(t, contactEmail)
				assert.Equal(t, "secret@example.com", *contactEmail)
				c.Ctime = 100
				return c, nil
			},
		}
		svc := newTestService(repo)
		email := "secret@example.com"
		got, err := svc.Create(context.Background(), CreateInput{
			PostSlug:     "hello-world",
			Content:      "第一条评论",
			ContactEmail: &email,
		})
		defer svc.queue.Stop()
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.Ctime)
	})

	t.Run("内容为空直接拒绝", func(t *testing.T) {
		called := false
		repo := &repoStub{
			createFn: func(_ context.Context, c domain.Comment, _ *string) (domain.Comment, error) {
				called = true
				return c, nil
			},
		}
		svc := newTestService(repo)
		defer svc.queue.Stop()
		_, err := svc.Create(context.Background(), CreateInput{PostSlug: "p", Content: ""})
		assert.ErrorIs(t, err, domain.ErrContentInvalid)
		assert.False(t, called)
	})

	t.Run("内容超长直接拒绝", func(t *testing.T) {
		svc := newTestService(&repoStub{})
		defer svc.queue.Stop()
		_, err := svc.Create(context.Background(), CreateInput{
			PostSlug: "p",
			Content:  strings.Repeat("长", domain.MaxContentLength+1),
		})
		assert.ErrorIs(t, err, domain.ErrContentInvalid)
	})

	t.Run("父评论不存在不重试", func(t *testing.T) {
		calls := 0
		repo := &repoStub{
			createFn: func(_ context.Context, c domain.Comment, _ *string) (domain.Comment, error) {
				calls++
				return domain.Comment{}, domain.ErrParentNotFound
			},
		}
		svc := newTestService(repo)
		defer svc.queue.Stop()
		parentID := "missing"
		_, err := svc.Create(context.Background(), CreateInput{
			PostSlug: "p", ParentID: &parentID, Content: "回复",
		})
		assert.ErrorIs(t, err, domain.ErrParentNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("瞬时失败按退避重试后成功", func(t *testing.T) {
		calls := 0
		repo := &repoStub{
			createFn: func(_ context.Context, c domain.Comment, _ *string) (domain.Comment, error) {
				calls++
				if calls < 3 {
					return domain.Comment{}, errors.New("连接被重置")
				}
				return c, nil
			},
		}
		svc := newTestService(repo)
		defer svc.queue.Stop()
		_, err := svc.Create(context.Background(), CreateInput{PostSlug: "p", Content: "内容"})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestCommentService_Update_Authorization(t *testing.T) {
	owner := "user-1"
	other := "user-2"
	stored := func(authorID *string, deleted bool) domain.Comment {
		return domain.Comment{
			ID:        "c1",
			PostSlug:  "p",
			Author:    domain.Author{ID: authorID, Name: "张三"},
			Content:   "原始内容",
			IsDeleted: deleted,
		}
	}

	testCases := []struct {
		name    string
		target  domain.Comment
		actor   Actor
		wantErr error
	}{
		{
			name:   "本人可以编辑",
			target: stored(&owner, false),
			actor:  Actor{ID: &owner},
		},
		{
			name:    "他人不能编辑",
			target:  stored(&owner, false),
			actor:   Actor{ID: &other},
			wantErr: domain.ErrNotAuthor,
		},
		{
			name:    "未登录不能编辑",
			target:  stored(&owner, false),
			actor:   Actor{},
			wantErr: domain.ErrNotAuthor,
		},
		{
			name:    "匿名评论普通用户不能编辑",
			target:  stored(nil, false),
			actor:   Actor{ID: &other},
			wantErr: domain.ErrAnonymousImmutable,
		},
		{
			name:   "匿名评论管理员可以编辑",
			target: stored(nil, false),
			actor:  Actor{Admin: true},
		},
		{
			name:    "已删除评论不能编辑",
			target:  stored(&owner, true),
			actor:   Actor{ID: &owner},
			wantErr: domain.ErrCommentDeleted,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			updated := false
			repo := &repoStub{
				findByIDFn: func(_ context.Context, id string) (domain.Comment, error) {
					return tc.target, nil
				},
				updateFn: func(_ context.Context, id string, content string) (domain.Comment, error) {
					updated = true
					c := tc.target
					c.Content = content
					c.IsEdited = true
					return c, nil
				},
			}
			svc := newTestService(repo)
			defer svc.queue.Stop()
			got, err := svc.Update(context.Background(), "c1", tc.actor, "新内容")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.False(t, updated)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.IsEdited)
			assert.Equal(t, "新内容", got.Content)
		})
	}
}

func TestCommentService_Delete(t *testing.T) {
	owner := "user-1"
	repo := &repoStub{
		findByIDFn: func(_ context.Context, id string) (domain.Comment, error) {
			return domain.Comment{
				ID:     "c1",
				Author: domain.Author{ID: &owner, Name: "张三"},
			}, nil
		},
		deleteFn: func(_ context.Context, id string) ([]string, error) {
			return []string{"c1", "c2", "c3"}, nil
		},
	}
	svc := newTestService(repo)
	defer svc.queue.Stop()

	ids, err := svc.Delete(context.Background(), "c1", Actor{ID: &owner})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
}

func TestCommentService_FetchComments(t *testing.T) {
	t.Run("正常分页带游标", func(t *testing.T) {
		repo := &repoStub{
			findPageFn: func(_ context.Context, postSlug string, beforeCtime int64, limit int) ([]domain.Comment, bool, error) {
				assert.Equal(t, "hello-world", postSlug)
				return []domain.Comment{
					{ID: "c2", Ctime: 2000},
					{ID: "c1", Ctime: 1000},
				}, true, nil
			},
		}
		svc := newTestService(repo)
		defer svc.queue.Stop()
		page, err := svc.FetchComments(context.Background(), "hello-world", nil, 2)
		require.NoError(t, err)
		assert.Len(t, page.Comments, 2)
		assert.True(t, page.HasMore)
		require.NotNil(t, page.Cursor)
		// 游标指向本页最后一条顶层评论的时间
		cur, err := time.Parse(time.RFC3339Nano, *page.Cursor)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), cur.UnixMilli())
	})

	t.Run("游标格式非法", func(t *testing.T) {
		svc := newTestService(&repoStub{})
		defer svc.queue.Stop()
		bad := "昨天下午"
		_, err := svc.FetchComments(context.Background(), "p", &bad, 10)
		assert.ErrorIs(t, err, domain.ErrContentInvalid)
	})

	t.Run("熔断打开降级为空页", func(t *testing.T) {
		repo := &repoStub{
			findPageFn: func(_ context.Context, _ string, _ int64, _ int) ([]domain.Comment, bool, error) {
				return nil, false, errors.New("数据库连不上")
			},
		}
		svc := newTestService(repo)
		defer svc.queue.Stop()

		// 默认重试 3 次，第一轮调用就累计 4 次失败，仍未到阈值
		_, err := svc.FetchComments(context.Background(), "p", nil, 10)
		assert.Error(t, err)
		// 第二轮第一次失败打满阈值，熔断打开，随即降级
		page, err := svc.FetchComments(context.Background(), "p", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, page.Comments)
		assert.False(t, page.HasMore)
		assert.Nil(t, page.Cursor)

		// 熔断期间不再触达存储
		before := svc.breaker.State()
		assert.Equal(t, resilience.StateOpen, before)
		page, err = svc.FetchComments(context.Background(), "p", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, page.Comments)
	})
}

func TestCommentService_Counts(t *testing.T) {
	repo := &repoStub{
		countsFn: func(_ context.Context, postSlugs []string) (map[string]int64, error) {
			return map[string]int64{"a": 3, "b": 0}, nil
		},
	}
	svc := newTestService(repo)
	defer svc.queue.Stop()

	got, err := svc.Counts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 3, "b": 0}, got)
}
