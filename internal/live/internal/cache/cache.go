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

package cache

import (
	"sync"
	"time"

	"github.com/blogkit/livecomment/internal/comment"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	maxEntries = 50
	entryTTL   = 5 * time.Minute
)

// Entry 一篇文章已加载的第一页评论树和翻页状态
type Entry struct {
	Tree    *comment.Tree
	HasMore bool
	Cursor  *string
}

func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	cp := &Entry{
		Tree:    e.Tree.Clone(),
		HasMore: e.HasMore,
	}
	if e.Cursor != nil {
		cursor := *e.Cursor
		cp.Cursor = &cursor
	}
	return cp
}

// CommentCache 进程内的评论树缓存，按文章维度，容量 50、TTL 5 分钟。
// 存取都走深拷贝，缓存和会话不会共享同一棵树的节点。
// 变更操作会重新写入条目，顺带刷新 TTL 和热度
type CommentCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, *Entry]
}

func NewCommentCache() *CommentCache {
	return newCommentCache(maxEntries, entryTTL)
}

func newCommentCache(size int, ttl time.Duration) *CommentCache {
	return &CommentCache{
		lru: expirable.NewLRU[string, *Entry](size, nil, ttl),
	}
}

func (c *CommentCache) Get(postSlug string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(postSlug)
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

func (c *CommentCache) Set(postSlug string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(postSlug, entry.clone())
}

func (c *CommentCache) AddComment(postSlug string, co comment.Comment) {
	c.mutate(postSlug, func(entry *Entry) {
		entry.Tree.Insert(co)
	})
}

func (c *CommentCache) UpdateComment(postSlug string, co comment.Comment) {
	c.mutate(postSlug, func(entry *Entry) {
		entry.Tree.Update(co)
	})
}

func (c *CommentCache) DeleteComments(postSlug string, ids []string) {
	c.mutate(postSlug, func(entry *Entry) {
		entry.Tree.MarkDeletedCascade(ids)
	})
}

func (c *CommentCache) Invalidate(postSlug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(postSlug)
}

func (c *CommentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// mutate 没有缓存条目时不做任何事，等下一次整页加载回填
func (c *CommentCache) mutate(postSlug string, fn func(entry *Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(postSlug)
	if !ok {
		return
	}
	fn(entry)
	c.lru.Add(postSlug, entry)
}
