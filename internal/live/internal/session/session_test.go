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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live/internal/cache"
	"github.com/blogkit/livecomment/internal/realtime"
	"github.com/ecodeclub/mq-api"
	"github.com/ecodeclub/mq-api/memory"
	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "comment_live_events"

type svcStub struct {
	fetchFn  func(ctx context.Context, postSlug string, cursor *string, limit int) (comment.Page, error)
	createFn func(ctx context.Context, input comment.CreateInput) (comment.Comment, error)
	updateFn func(ctx context.Context, id string, actor comment.Actor, content string) (comment.Comment, error)
	deleteFn func(ctx context.Context, id string, actor comment.Actor) ([]string, error)
}

func (s *svcStub) FetchComments(ctx context.Context, postSlug string, cursor *string, limit int) (comment.Page, error) {
	return s.fetchFn(ctx, postSlug, cursor, limit)
}

func (s *svcStub) Create(ctx context.Context, input comment.CreateInput) (comment.Comment, error) {
	return s.createFn(ctx, input)
}

func (s *svcStub) Update(ctx context.Context, id string, actor comment.Actor, content string) (comment.Comment, error) {
	return s.updateFn(ctx, id, actor, content)
}

func (s *svcStub) Delete(ctx context.Context, id string, actor comment.Actor) ([]string, error) {
	return s.deleteFn(ctx, id, actor)
}

func (s *svcStub) Count(ctx context.Context, postSlug string) (int64, error) {
	return 0, nil
}

func (s *svcStub) Counts(ctx context.Context, postSlugs []string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (s *svcStub) PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error) {
	return 0, nil
}

type presenceStub struct {
	mu      sync.Mutex
	members map[string]map[string]string
}

func newPresenceStub() *presenceStub {
	return &presenceStub{members: make(map[string]map[string]string)}
}

func (f *presenceStub) Track(_ context.Context, postSlug, clientID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[postSlug] == nil {
		f.members[postSlug] = make(map[string]string)
	}
	f.members[postSlug][clientID] = userName
	return nil
}

func (f *presenceStub) Heartbeat(ctx context.Context, postSlug, clientID, userName string) error {
	return f.Track(ctx, postSlug, clientID, userName)
}

func (f *presenceStub) Untrack(_ context.Context, postSlug, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[postSlug], clientID)
	return nil
}

func (f *presenceStub) Count(_ context.Context, postSlug string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.members[postSlug])), nil
}

func (f *presenceStub) List(_ context.Context, postSlug string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]string, 0, len(f.members[postSlug]))
	for _, name := range f.members[postSlug] {
		res = append(res, name)
	}
	return res, nil
}

// 工厂要 PresenceStore，但 redis 不该出现在单元测试里
func newStubbedFactory(t *testing.T, q mq.MQ) *realtime.Factory {
	t.Helper()
	return realtime.NewFactory(q, newPresenceStub())
}

func pageOf(roots ...comment.Comment) comment.Page {
	return comment.Page{Comments: roots}
}

func existingThread() []comment.Comment {
	return []comment.Comment{
		{
			ID:       "c1",
			PostSlug: "hello-world",
			Author:   comment.Author{Name: "张三"},
			Content:  "顶层评论",
			Ctime:    1000,
			Replies: []comment.Comment{
				{ID: "c2", PostSlug: "hello-world", ParentID: ptr("c1"), Content: "回复一", Ctime: 2000},
				{ID: "c3", PostSlug: "hello-world", ParentID: ptr("c1"), Content: "回复二", Ctime: 3000},
			},
		},
	}
}

func ptr(s string) *string {
	return &s
}

func newSession(t *testing.T, svc comment.Service) *LiveSession {
	t.Helper()
	q := memory.NewMQ()
	require.NoError(t, q.CreateTopic(context.Background(), testTopic, 1))
	return New(svc, cache.NewCommentCache(), newStubbedFactory(t, q), Config{
		PostSlug: "hello-world",
		Identity: realtime.Identity{ClientID: "me", UserName: "我"},
		Author:   comment.Author{Name: "Anonymous"},
	})
}

func TestLiveSession_CreateOptimistic(t *testing.T) {
	t.Run("匿名评论成功后换成服务端ID并排在最前", func(t *testing.T) {
		svc := &svcStub{
			fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
				return pageOf(existingThread()...), nil
			},
			createFn: func(_ context.Context, input comment.CreateInput) (comment.Comment, error) {
				return comment.Comment{
					ID:       shortuuid.New(),
					PostSlug: input.PostSlug,
					ParentID: input.ParentID,
					Author:   input.Author,
					Content:  input.Content,
					Ctime:    time.Now().UnixMilli(),
					Utime:    time.Now().UnixMilli(),
				}, nil
			},
		}
		s := newSession(t, svc)
		require.NoError(t, s.Start(context.Background()))
		defer s.Close()

		created, err := s.Create(context.Background(), "新评论", nil)
		require.NoError(t, err)

		roots := s.Comments()
		require.Len(t, roots, 2)
		assert.Equal(t, created.ID, roots[0].ID)
		assert.Equal(t, "Anonymous", roots[0].Author.Name)
		// 临时ID不能留在树里
		for _, r := range roots {
			assert.False(t, strings.HasPrefix(r.ID, tempIDPrefix))
		}
	})

	t.Run("创建失败整树回滚", func(t *testing.T) {
		svc := &svcStub{
			fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
				return pageOf(existingThread()...), nil
			},
			createFn: func(_ context.Context, _ comment.CreateInput) (comment.Comment, error) {
				return comment.Comment{}, errors.New("存储不可用")
			},
		}
		s := newSession(t, svc)
		require.NoError(t, s.Start(context.Background()))
		defer s.Close()

		before := s.Comments()
		_, err := s.Create(context.Background(), "写不进去的评论", nil)
		require.Error(t, err)
		assert.Equal(t, before, s.Comments())
	})
}

func TestLiveSession_DeleteCascade(t *testing.T) {
	t.Run("删除带两条回复的评论返回三个ID且全部打墓碑", func(t *testing.T) {
		svc := &svcStub{
			fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
				return pageOf(existingThread()...), nil
			},
			deleteFn: func(_ context.Context, id string, _ comment.Actor) ([]string, error) {
				return []string{"c1", "c2", "c3"}, nil
			},
		}
		s := newSession(t, svc)
		require.NoError(t, s.Start(context.Background()))
		defer s.Close()

		ids, err := s.Delete(context.Background(), "c1")
		require.NoError(t, err)
		assert.Len(t, ids, 3)

		roots := s.Comments()
		require.Len(t, roots, 1)
		assert.True(t, roots[0].IsDeleted)
		assert.Equal(t, comment.Tombstone, roots[0].Content)
		for _, r := range roots[0].Replies {
			assert.True(t, r.IsDeleted)
			assert.Equal(t, comment.Tombstone, r.Content)
		}
		// 级联删除不摘除节点，线程结构原样保留
		assert.Equal(t, 3, len(roots[0].Replies)+1)
	})

	t.Run("删除失败整树回滚", func(t *testing.T) {
		svc := &svcStub{
			fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
				return pageOf(existingThread()...), nil
			},
			deleteFn: func(_ context.Context, _ string, _ comment.Actor) ([]string, error) {
				return nil, errors.New("存储不可用")
			},
		}
		s := newSession(t, svc)
		require.NoError(t, s.Start(context.Background()))
		defer s.Close()

		_, err := s.Delete(context.Background(), "c1")
		require.Error(t, err)
		roots := s.Comments()
		assert.False(t, roots[0].IsDeleted)
		assert.Equal(t, "顶层评论", roots[0].Content)
	})
}

func TestLiveSession_UpdateOptimistic(t *testing.T) {
	svc := &svcStub{
		fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
			return pageOf(existingThread()...), nil
		},
		updateFn: func(_ context.Context, id string, _ comment.Actor, content string) (comment.Comment, error) {
			return comment.Comment{
				ID:       id,
				PostSlug: "hello-world",
				Content:  content,
				IsEdited: true,
				Utime:    time.Now().UnixMilli(),
			}, nil
		},
	}
	s := newSession(t, svc)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	updated, err := s.Update(context.Background(), "c2", "改过的回复")
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)

	roots := s.Comments()
	assert.Equal(t, "改过的回复", roots[0].Replies[0].Content)
	assert.True(t, roots[0].Replies[0].IsEdited)
}

func TestLiveSession_InboundReconcile(t *testing.T) {
	q := memory.NewMQ()
	require.NoError(t, q.CreateTopic(context.Background(), testTopic, 1))
	svc := &svcStub{
		fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
			return pageOf(existingThread()...), nil
		},
	}
	s := New(svc, cache.NewCommentCache(), newStubbedFactory(t, q), Config{
		PostSlug: "hello-world",
		Identity: realtime.Identity{ClientID: "me", UserName: "我"},
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	// 另一个访客发了新评论
	evt := realtime.Event{
		Kind:     realtime.KindCommentNew,
		PostSlug: "hello-world",
		SenderID: "someone-else",
		Comment: &realtime.EventComment{
			ID:       "c9",
			PostSlug: "hello-world",
			UserName: "李四",
			Content:  "远端的新评论",
			Ctime:    time.Now().UnixMilli(),
		},
		Ts: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	p, err := q.Producer(testTopic)
	require.NoError(t, err)
	_, err = p.Produce(context.Background(), &mq.Message{Value: data})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		roots := s.Comments()
		return len(roots) == 2 && roots[0].ID == "c9"
	}, 3*time.Second, 10*time.Millisecond)

	// 事件同时转发给页面
	select {
	case got := <-s.Events():
		assert.Equal(t, realtime.KindCommentNew, got.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("没有收到转发的事件")
	}
}

func TestLiveSession_CloseIdempotent(t *testing.T) {
	svc := &svcStub{
		fetchFn: func(_ context.Context, _ string, _ *string, _ int) (comment.Page, error) {
			return pageOf(), nil
		},
	}
	s := newSession(t, svc)
	require.NoError(t, s.Start(context.Background()))

	s.Close()
	s.Close()

	_, err := s.Create(context.Background(), "会话已关", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
