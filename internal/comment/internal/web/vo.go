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

type User struct {
	ID     *string `json:"id,omitempty"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// Comment 注意这里没有联系方式等私密字段，读路径永远不带它们
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
	Replies   []Comment `json:"replies"`
}

type CreateCommentRequest struct {
	PostSlug string  `json:"postSlug"`
	ParentID *string `json:"parentId"`
	Content  string  `json:"content"`
	// 评论者自报的身份，登录用户以会话里的为准
	UserID   *string `json:"userId"`
	UserName string  `json:"userName"`
	// 私密联系方式，只落库不回显
	Email *string `json:"email"`
}

type UpdateCommentRequest struct {
	Content string `json:"content"`
}

type CommentList struct {
	Comments []Comment `json:"comments"`
	HasMore  bool      `json:"hasMore"`
	Cursor   *string   `json:"cursor,omitempty"`
}

type DeleteResult struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
	// 被删除的评论及其全部后代的ID，前端拿它做本地级联
	DeletedIDs []string `json:"deletedIds"`
}

type CountResult struct {
	Count int64 `json:"count"`
}

type CountsRequest struct {
	PostSlugs []string `json:"postSlugs"`
}

type CountsResult struct {
	Counts map[string]int64 `json:"counts"`
}
