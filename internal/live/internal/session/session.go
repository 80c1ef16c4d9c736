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
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/blogkit/livecomment/internal/comment"
	"github.com/blogkit/livecomment/internal/live/internal/cache"
	"github.com/blogkit/livecomment/internal/realtime"
	"github.com/gotomicro/ego/core/elog"
	"github.com/lithammer/shortuuid/v4"
)

const (
	typingSweepInterval = time.Second
	typingTTL           = 3 * time.Second
	eventBuffer         = 64

	// 乐观插入的临时ID前缀，服务端确认后换成真实ID
	tempIDPrefix = "tmp_"
)

const (
	KindConnectionChange = "connection:change"
	KindTypingSync       = "typing:sync"
)

var (
	ErrSessionClosed     = errors.New("实时会话已关闭")
	ErrSessionNotStarted = errors.New("实时会话尚未启动")
)

// Event 推给页面的一条通知。评论和在线事件原样转发，
// 连接状态和打字名单是会话自己合成的
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

type Config struct {
	PostSlug string
	Identity realtime.Identity
	// Author 创建评论时的作者身份，匿名时只有昵称
	Author comment.Author
	// Actor 编辑和删除时的权限身份
	Actor comment.Actor
}

// LiveSession 一个页面的实时评论会话：负责加载评论树、订阅广播、
// 乐观应用本地变更并在失败时整树回滚。
// 源系统里这些逻辑跑在单线程事件循环上，这里用互斥锁串行化同一会话的变更
type LiveSession struct {
	cfg   Config
	svc   comment.Service
	cache *cache.CommentCache
	mgr   *realtime.Manager

	mu          sync.Mutex
	tree        *comment.Tree
	hasMore     bool
	cursor      *string
	typing      map[string]time.Time
	presence    int64
	hasPresence bool
	started     bool
	closed      bool

	events      chan Event
	sweepCancel context.CancelFunc
	logger      *elog.Component
}

func New(svc comment.Service, cc *cache.CommentCache, factory *realtime.Factory, cfg Config) *LiveSession {
	if cfg.Identity.ClientID == "" {
		cfg.Identity = realtime.NewAnonymousIdentity()
	}
	if cfg.Actor.SenderID == "" {
		cfg.Actor.SenderID = cfg.Identity.ClientID
	}
	return &LiveSession{
		cfg:    cfg,
		svc:    svc,
		cache:  cc,
		mgr:    factory.New(cfg.PostSlug, cfg.Identity),
		typing: make(map[string]time.Time),
		events: make(chan Event, eventBuffer),
		logger: elog.DefaultLogger,
	}
}

// Start 加载评论树（缓存优先）并订阅实时广播。重复调用无效果
func (s *LiveSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	entry, ok := s.cache.Get(s.cfg.PostSlug)
	if !ok {
		page, err := s.svc.FetchComments(ctx, s.cfg.PostSlug, nil, 0)
		if err != nil {
			s.mu.Lock()
			s.started = false
			s.mu.Unlock()
			return err
		}
		entry = &cache.Entry{
			Tree:    comment.NewTree(page.Comments),
			HasMore: page.HasMore,
			Cursor:  page.Cursor,
		}
		s.cache.Set(s.cfg.PostSlug, entry)
	}
	s.mu.Lock()
	s.tree = entry.Tree
	s.hasMore = entry.HasMore
	s.cursor = entry.Cursor
	s.mu.Unlock()

	s.mgr.On(realtime.KindCommentNew, s.onCommentNew)
	s.mgr.On(realtime.KindCommentUpdate, s.onCommentUpdate)
	s.mgr.On(realtime.KindCommentDelete, s.onCommentDelete)
	s.mgr.On(realtime.KindTyping, s.onTyping)
	s.mgr.On(realtime.KindPresenceSync, s.onPresenceSync)
	s.mgr.OnConnectionChange(s.onConnectionChange)

	if err := s.mgr.Subscribe(ctx); err != nil {
		// 订阅失败页面仍然可读可写，只是收不到别人的实时变更
		s.logger.Warn("订阅实时频道失败", elog.String("post", s.cfg.PostSlug), elog.FieldErr(err))
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.sweepCancel = cancel
	s.mu.Unlock()
	go s.sweepTyping(sweepCtx)
	return nil
}

// Comments 当前评论树的快照
func (s *LiveSession) Comments() []comment.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil
	}
	return s.tree.Clone().Roots
}

func (s *LiveSession) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LoadMore 加载下一页顶层评论并入树
func (s *LiveSession) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.tree == nil {
		s.mu.Unlock()
		return ErrSessionNotStarted
	}
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	cursor := s.cursor
	s.mu.Unlock()

	page, err := s.svc.FetchComments(ctx, s.cfg.PostSlug, cursor, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, c := range page.Comments {
		s.tree.Insert(c)
	}
	s.tree.SortByTime()
	s.hasMore = page.HasMore
	s.cursor = page.Cursor
	// Set 会做深拷贝，这里持锁回填避免拷贝途中树被并发修改
	s.cache.Set(s.cfg.PostSlug, &cache.Entry{Tree: s.tree, HasMore: s.hasMore, Cursor: s.cursor})
	s.mu.Unlock()
	return nil
}

// Create 乐观创建：先以临时ID入树，服务端确认后换成真实评论，
// 失败则整树回滚到快照
func (s *LiveSession) Create(ctx context.Context, content string, parentID *string) (comment.Comment, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return comment.Comment{}, ErrSessionClosed
	}
	if s.tree == nil {
		s.mu.Unlock()
		return comment.Comment{}, ErrSessionNotStarted
	}
	snapshot := s.tree.Clone()
	now := time.Now().UnixMilli()
	tmp := comment.Comment{
		ID:       tempIDPrefix + shortuuid.New(),
		PostSlug: s.cfg.PostSlug,
		ParentID: parentID,
		Author:   s.cfg.Author,
		Content:  content,
		Ctime:    now,
		Utime:    now,
	}
	s.tree.Insert(tmp)
	s.mu.Unlock()

	created, err := s.svc.Create(ctx, comment.CreateInput{
		PostSlug: s.cfg.PostSlug,
		ParentID: parentID,
		Content:  content,
		Author:   s.cfg.Author,
		SenderID: s.cfg.Identity.ClientID,
	})
	s.mu.Lock()
	if err != nil {
		s.tree = snapshot
		s.mu.Unlock()
		return comment.Comment{}, err
	}
	s.tree.Remove(tmp.ID)
	s.tree.Insert(created)
	s.mu.Unlock()
	s.cache.AddComment(s.cfg.PostSlug, created)
	return created, nil
}

// Update 乐观编辑，失败整树回滚
func (s *LiveSession) Update(ctx context.Context, id string, content string) (comment.Comment, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return comment.Comment{}, ErrSessionClosed
	}
	if s.tree == nil {
		s.mu.Unlock()
		return comment.Comment{}, ErrSessionNotStarted
	}
	snapshot := s.tree.Clone()
	if node := s.tree.Find(id); node != nil {
		optimistic := *node
		optimistic.Content = content
		optimistic.IsEdited = true
		optimistic.Utime = time.Now().UnixMilli()
		s.tree.Update(optimistic)
	}
	s.mu.Unlock()

	updated, err := s.svc.Update(ctx, id, s.cfg.Actor, content)
	s.mu.Lock()
	if err != nil {
		s.tree = snapshot
		s.mu.Unlock()
		return comment.Comment{}, err
	}
	s.tree.Update(updated)
	s.mu.Unlock()
	s.cache.UpdateComment(s.cfg.PostSlug, updated)
	return updated, nil
}

// Delete 乐观删除，目标及其后代就地打墓碑，失败整树回滚。
// 返回服务端确认删除的所有ID
func (s *LiveSession) Delete(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.tree == nil {
		s.mu.Unlock()
		return nil, ErrSessionNotStarted
	}
	snapshot := s.tree.Clone()
	s.tree.MarkDeletedCascade([]string{id})
	s.mu.Unlock()

	ids, err := s.svc.Delete(ctx, id, s.cfg.Actor)
	s.mu.Lock()
	if err != nil {
		s.tree = snapshot
		s.mu.Unlock()
		return nil, err
	}
	s.tree.MarkDeletedCascade(ids)
	s.mu.Unlock()
	s.cache.DeleteComments(s.cfg.PostSlug, ids)
	return ids, nil
}

// Typing 把"正在输入"广播出去，重复调用由底层的 3 秒窗口抑制
func (s *LiveSession) Typing(ctx context.Context) error {
	return s.mgr.BroadcastTyping(ctx)
}

// TypingUsers 当前还在打字的访客昵称，字典序
func (s *LiveSession) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingUsersLocked()
}

func (s *LiveSession) typingUsersLocked() []string {
	res := make([]string, 0, len(s.typing))
	for name := range s.typing {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// PresenceCount 在线人数。还没收到过同步事件时退回去查共享存储
func (s *LiveSession) PresenceCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.hasPresence {
		defer s.mu.Unlock()
		return s.presence, nil
	}
	s.mu.Unlock()
	return s.mgr.PresenceCount(ctx)
}

func (s *LiveSession) Events() <-chan Event {
	return s.events
}

// Close 退订并释放会话。幂等
func (s *LiveSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.sweepCancel
	s.sweepCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.mgr.Unsubscribe()
	close(s.events)
}

func (s *LiveSession) onCommentNew(evt realtime.Event) {
	if evt.Comment == nil {
		return
	}
	c := toComment(evt.Comment)
	s.mu.Lock()
	if s.tree != nil {
		s.tree.Insert(c)
	}
	s.mu.Unlock()
	s.cache.AddComment(s.cfg.PostSlug, c)
	s.emit(Event{Kind: evt.Kind, Data: evt})
}

func (s *LiveSession) onCommentUpdate(evt realtime.Event) {
	if evt.Comment == nil {
		return
	}
	c := toComment(evt.Comment)
	s.mu.Lock()
	if s.tree != nil {
		s.tree.Update(c)
	}
	s.mu.Unlock()
	s.cache.UpdateComment(s.cfg.PostSlug, c)
	s.emit(Event{Kind: evt.Kind, Data: evt})
}

func (s *LiveSession) onCommentDelete(evt realtime.Event) {
	s.mu.Lock()
	if s.tree != nil {
		s.tree.MarkDeletedCascade(evt.DeletedIDs)
	}
	s.mu.Unlock()
	s.cache.DeleteComments(s.cfg.PostSlug, evt.DeletedIDs)
	s.emit(Event{Kind: evt.Kind, Data: evt})
}

func (s *LiveSession) onTyping(evt realtime.Event) {
	if evt.Typing == nil {
		return
	}
	s.mu.Lock()
	s.typing[evt.Typing.UserName] = time.Now()
	users := s.typingUsersLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: KindTypingSync, Data: users})
}

func (s *LiveSession) onPresenceSync(evt realtime.Event) {
	if evt.Presence == nil {
		return
	}
	s.mu.Lock()
	s.presence = evt.Presence.Count
	s.hasPresence = true
	s.mu.Unlock()
	s.emit(Event{Kind: evt.Kind, Data: evt})
}

func (s *LiveSession) onConnectionChange(connected bool) {
	s.emit(Event{Kind: KindConnectionChange, Data: connected})
}

// sweepTyping 每秒清一次超过 3 秒没刷新的打字者
func (s *LiveSession) sweepTyping(ctx context.Context) {
	ticker := time.NewTicker(typingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			var purged bool
			for name, last := range s.typing {
				if time.Since(last) > typingTTL {
					delete(s.typing, name)
					purged = true
				}
			}
			users := s.typingUsersLocked()
			s.mu.Unlock()
			if purged {
				s.emit(Event{Kind: KindTypingSync, Data: users})
			}
		}
	}
}

// emit 非阻塞投递，消费跟不上时丢弃最新事件
func (s *LiveSession) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Warn("会话事件缓冲已满，丢弃事件",
			elog.String("post", s.cfg.PostSlug),
			elog.String("kind", e.Kind))
	}
}

func toComment(ec *realtime.EventComment) comment.Comment {
	return comment.Comment{
		ID:       ec.ID,
		PostSlug: ec.PostSlug,
		ParentID: ec.ParentID,
		Author: comment.Author{
			ID:     ec.UserID,
			Name:   ec.UserName,
			Avatar: ec.UserAvatar,
		},
		Content:   ec.Content,
		IsEdited:  ec.IsEdited,
		IsDeleted: ec.IsDeleted,
		Ctime:     ec.Ctime,
		Utime:     ec.Utime,
	}
}
