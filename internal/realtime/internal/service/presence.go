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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "live:presence:"
	// 心跳刷新 lastSeen，超过 staleness 没刷新的成员视为已离线
	presenceStaleness = time.Minute
	presenceKeyTTL    = 10 * time.Minute
)

// PresenceStore 记录每篇文章当前有哪些在线读者。
// 所有实例共享同一份 redis 数据，哪台机器上的订阅都算数
type PresenceStore interface {
	Track(ctx context.Context, postSlug, clientID, userName string) error
	Heartbeat(ctx context.Context, postSlug, clientID, userName string) error
	Untrack(ctx context.Context, postSlug, clientID string) error
	Count(ctx context.Context, postSlug string) (int64, error)
	List(ctx context.Context, postSlug string) ([]string, error)
}

type presenceMember struct {
	UserName string `json:"userName"`
	LastSeen int64  `json:"lastSeen"`
}

type redisPresenceStore struct {
	client redis.Cmdable
}

func NewPresenceStore(client redis.Cmdable) PresenceStore {
	return &redisPresenceStore{client: client}
}

func (s *redisPresenceStore) Track(ctx context.Context, postSlug, clientID, userName string) error {
	member, err := json.Marshal(presenceMember{
		UserName: userName,
		LastSeen: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	key := s.key(postSlug)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, clientID, member)
	pipe.Expire(ctx, key, presenceKeyTTL)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("记录在线状态失败: %w", err)
	}
	return nil
}

func (s *redisPresenceStore) Heartbeat(ctx context.Context, postSlug, clientID, userName string) error {
	return s.Track(ctx, postSlug, clientID, userName)
}

func (s *redisPresenceStore) Untrack(ctx context.Context, postSlug, clientID string) error {
	if err := s.client.HDel(ctx, s.key(postSlug), clientID).Err(); err != nil {
		return fmt.Errorf("清除在线状态失败: %w", err)
	}
	return nil
}

func (s *redisPresenceStore) Count(ctx context.Context, postSlug string) (int64, error) {
	members, err := s.alive(ctx, postSlug)
	if err != nil {
		return 0, err
	}
	return int64(len(members)), nil
}

func (s *redisPresenceStore) List(ctx context.Context, postSlug string) ([]string, error) {
	members, err := s.alive(ctx, postSlug)
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(members))
	for _, m := range members {
		res = append(res, m.UserName)
	}
	return res, nil
}

// alive 读出全部成员并顺手清掉心跳超时的
func (s *redisPresenceStore) alive(ctx context.Context, postSlug string) ([]presenceMember, error) {
	key := s.key(postSlug)
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("读取在线状态失败: %w", err)
	}
	deadline := time.Now().Add(-presenceStaleness).UnixMilli()
	res := make([]presenceMember, 0, len(raw))
	var stale []string
	for clientID, val := range raw {
		var m presenceMember
		if err1 := json.Unmarshal([]byte(val), &m); err1 != nil || m.LastSeen < deadline {
			stale = append(stale, clientID)
			continue
		}
		res = append(res, m)
	}
	if len(stale) > 0 {
		s.client.HDel(ctx, key, stale...)
	}
	return res, nil
}

func (s *redisPresenceStore) key(postSlug string) string {
	return presenceKeyPrefix + postSlug
}
