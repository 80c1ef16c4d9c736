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
	"github.com/blogkit/livecomment/internal/comment"
	"github.com/ecodeclub/ekit/slice"
)

type User struct {
	ID     *string `json:"id,omitempty"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostSlug  string    `json:"postSlug"`
	ParentID  *string   `json:"parentId,omitempty"`
	User      User      `json:"user"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"isEdited"`
	IsDeleted bool      `json:"isDeleted"`
	Ctime     int64     `json:"ctime"`
	Utime     int64     `json:"utime"`
	Replies   []Comment `json:"replies,omitempty"`
}

// InitPayload SSE 连接建立后推的第一帧：完整评论树快照加连接标识。
// 客户端拿 clientId 放进后续写请求的 X-Client-Id 头
type InitPayload struct {
	ClientID string    `json:"clientId"`
	Comments []Comment `json:"comments"`
	HasMore  bool      `json:"hasMore"`
	Presence int64     `json:"presence"`
}

func toVO(c comment.Comment) Comment {
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
		Replies: slice.Map(c.Replies, func(_ int, src comment.Comment) Comment {
			return toVO(src)
		}),
	}
}
