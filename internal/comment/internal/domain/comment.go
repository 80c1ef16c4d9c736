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

// Tombstone 软删除之后用于替换评论内容的占位字符串
const Tombstone = "[deleted]"

// AnonymousName 匿名评论者的默认展示名
const AnonymousName = "Anonymous"

const (
	MinContentLength = 1
	MaxContentLength = 5000
)

type Author struct {
	// ID 为 nil 表示匿名评论者
	ID     *string
	Name   string
	Avatar *string
}

// Anonymous 判断是否为匿名评论者
func (a Author) Anonymous() bool {
	return a.ID == nil
}

type Comment struct {
	ID string

	// 评论所属的文章
	PostSlug string

	// 要回复的父评论ID，nil 表示直接评论（顶层评论）
	ParentID *string

	Author Author

	Content string

	IsEdited bool

	// 软删除标记。被删除的评论保留在树里占位，内容替换为 Tombstone，
	// 这样它的回复依然可达
	IsDeleted bool

	Ctime int64
	Utime int64

	// 当前评论的回复，按评论时间正序排列（阅读顺序）
	Replies []Comment
}

// Root 判断是否为顶层评论
func (c Comment) Root() bool {
	return c.ParentID == nil
}
