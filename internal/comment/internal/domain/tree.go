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

package domain

import (
	"sort"

	"github.com/ecodeclub/ekit/slice"
)

// CommentTree 某篇文章的评论树。
// 顶层评论按评论时间倒序（新的在前），每个节点的回复按评论时间正序。
// 三个变更操作（Insert/Update/MarkDeletedCascade）都是按 ID 幂等的，
// 广播事件乱序、重复到达时可以安全地重放
type CommentTree struct {
	Roots []Comment
}

func NewCommentTree(roots []Comment) *CommentTree {
	return &CommentTree{Roots: roots}
}

// BuildTree 把一页平铺的评论组装成树。
// rows 中引用了未加载父评论的行会被静默丢弃
func BuildTree(rows []Comment) *CommentTree {
	t := NewCommentTree(nil)
	var replies []Comment
	for i := range rows {
		if rows[i].Root() {
			t.Insert(rows[i])
		} else {
			replies = append(replies, rows[i])
		}
	}
	// 回复一定晚于它的父评论创建，按时间正序插入可以保证父节点先出现
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].Ctime < replies[j].Ctime
	})
	for i := range replies {
		t.Insert(replies[i])
	}
	t.SortByTime()
	return t
}

// Insert 插入一条评论。
// 顶层评论插到最前面，回复追加到父节点回复列表的末尾。
// 父节点不存在（本地还没加载到）时不做任何事，调用方要容忍孤儿事件。
// 重复插入同一 ID 不会产生重复节点
func (t *CommentTree) Insert(c Comment) {
	if t.Find(c.ID) != nil {
		return
	}
	if c.Root() {
		t.Roots = append([]Comment{c}, t.Roots...)
		return
	}
	if parent := t.find(*c.ParentID); parent != nil {
		parent.Replies = append(parent.Replies, c)
	}
}

// Update 原地更新内容、编辑标记和时间戳，找不到节点时不做任何事
func (t *CommentTree) Update(c Comment) {
	node := t.find(c.ID)
	if node == nil {
		return
	}
	node.Content = c.Content
	node.IsEdited = c.IsEdited
	node.Utime = c.Utime
}

// MarkDeletedCascade 把 ids 中的每个节点连同它的所有后代一起打上墓碑。
// 父节点被删除时后代无条件级联，不要求后代 ID 逐个出现在 ids 里。
// ids 中不存在于树里的 ID 静默跳过
func (t *CommentTree) MarkDeletedCascade(ids []string) {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range t.Roots {
		markDeleted(&t.Roots[i], idSet, false)
	}
}

func markDeleted(c *Comment, ids map[string]struct{}, force bool) {
	_, hit := ids[c.ID]
	deleted := force || hit
	if deleted {
		c.Content = Tombstone
		c.IsDeleted = true
	}
	for i := range c.Replies {
		markDeleted(&c.Replies[i], ids, deleted)
	}
}

// Find 按 ID 查找，返回节点副本，不存在返回 nil
func (t *CommentTree) Find(id string) *Comment {
	node := t.find(id)
	if node == nil {
		return nil
	}
	cp := cloneComment(*node)
	return &cp
}

func (t *CommentTree) find(id string) *Comment {
	for i := range t.Roots {
		if node := findIn(&t.Roots[i], id); node != nil {
			return node
		}
	}
	return nil
}

func findIn(c *Comment, id string) *Comment {
	if c.ID == id {
		return c
	}
	for i := range c.Replies {
		if node := findIn(&c.Replies[i], id); node != nil {
			return node
		}
	}
	return nil
}

// Remove 按 ID 摘除节点（连同其回复），不存在时不做任何事。
// 用于乐观插入失败后的清理
func (t *CommentTree) Remove(id string) {
	t.Roots = removeFrom(t.Roots, id)
}

func removeFrom(nodes []Comment, id string) []Comment {
	res := nodes[:0]
	for i := range nodes {
		if nodes[i].ID == id {
			continue
		}
		nodes[i].Replies = removeFrom(nodes[i].Replies, id)
		res = append(res, nodes[i])
	}
	return res
}

// Clone 深拷贝。乐观变更之前先留快照，失败时整树回滚
func (t *CommentTree) Clone() *CommentTree {
	if t == nil {
		return nil
	}
	return &CommentTree{Roots: slice.Map(t.Roots, func(_ int, src Comment) Comment {
		return cloneComment(src)
	})}
}

func cloneComment(c Comment) Comment {
	c.Replies = slice.Map(c.Replies, func(_ int, src Comment) Comment {
		return cloneComment(src)
	})
	return c
}

// Count 树中节点总数
func (t *CommentTree) Count() int {
	var n int
	for i := range t.Roots {
		n += countIn(&t.Roots[i])
	}
	return n
}

func countIn(c *Comment) int {
	n := 1
	for i := range c.Replies {
		n += countIn(&c.Replies[i])
	}
	return n
}

// Flatten 先序平铺整棵树，返回的是节点副本
func (t *CommentTree) Flatten() []Comment {
	var res []Comment
	for i := range t.Roots {
		res = flattenIn(res, &t.Roots[i])
	}
	return res
}

func flattenIn(res []Comment, c *Comment) []Comment {
	cp := cloneComment(*c)
	cp.Replies = nil
	res = append(res, cp)
	for i := range c.Replies {
		res = flattenIn(res, &c.Replies[i])
	}
	return res
}

// SortByTime 恢复排序不变式：顶层倒序、回复正序
func (t *CommentTree) SortByTime() {
	sort.SliceStable(t.Roots, func(i, j int) bool {
		return t.Roots[i].Ctime > t.Roots[j].Ctime
	})
	for i := range t.Roots {
		sortReplies(&t.Roots[i])
	}
}

func sortReplies(c *Comment) {
	sort.SliceStable(c.Replies, func(i, j int) bool {
		return c.Replies[i].Ctime < c.Replies[j].Ctime
	})
	for i := range c.Replies {
		sortReplies(&c.Replies[i])
	}
}
