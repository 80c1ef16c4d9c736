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

// Topic 与 comment 模块的广播主题保持一致。
// 各模块自带事件定义，靠 JSON 字段名对齐，不做代码层面的共享
const Topic = "comment_live_events"

const (
	KindCommentNew    = "comment:new"
	KindCommentUpdate = "comment:update"
	KindCommentDelete = "comment:delete"
	KindTyping        = "user:typing"
	KindPresenceSync  = "presence:sync"
)

// Event 实时频道上的一条事件。
// SenderID 是发起方的连接ID，订阅方跳过自己发出的事件
type Event struct {
	Kind       string    `json:"kind"`
	PostSlug   string    `json:"postSlug"`
	SenderID   string    `json:"senderId"`
	Comment    *Comment  `json:"comment,omitempty"`
	DeletedIDs []string  `json:"deletedIds,omitempty"`
	Typing     *Typing   `json:"typing,omitempty"`
	Presence   *Presence `json:"presence,omitempty"`
	Ts         int64     `json:"ts"`
}

type Comment struct {
	ID         string  `json:"id"`
	PostSlug   string  `json:"postSlug"`
	ParentID   *string `json:"parentId,omitempty"`
	UserID     *string `json:"userId,omitempty"`
	UserName   string  `json:"userName"`
	UserAvatar *string `json:"userAvatar,omitempty"`
	Content    string  `json:"content"`
	IsEdited   bool    `json:"isEdited"`
	IsDeleted  bool    `json:"isDeleted"`
	Ctime      int64   `json:"ctime"`
	Utime      int64   `json:"utime"`
}

type Typing struct {
	UserName string `json:"userName"`
}

type Presence struct {
	Count int64    `json:"count"`
	Users []string `json:"users"`
}

type Status int

const (
	StatusUnsubscribed Status = iota
	StatusSubscribing
	StatusSubscribed
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusSubscribing:
		return "subscribing"
	case StatusSubscribed:
		return "subscribed"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unsubscribed"
	}
}
