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

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("模拟网络抖动")
	errPermanent = errors.New("模拟校验失败")
)

func TestRetry(t *testing.T) {
	testCases := []struct {
		name         string
		op           func(calls *int) error
		opts         []RetryOption
		wantCalls    int
		wantErr      error
		wantAttempts []int
	}{
		{
			name: "第一次就成功不重试",
			op: func(calls *int) error {
				return nil
			},
			wantCalls: 1,
		},
		{
			name: "瞬时失败重试后成功",
			op: func(calls *int) error {
				if *calls < 3 {
					return errTransient
				}
				return nil
			},
			wantCalls: 3,
		},
		{
			name: "重试耗尽返回原始错误",
			op: func(calls *int) error {
				return errTransient
			},
			// 默认最多重试 3 次，总共 4 次调用
			wantCalls: 4,
			wantErr:   errTransient,
		},
		{
			name: "永久失败只调用一次",
			op: func(calls *int) error {
				return errPermanent
			},
			opts: []RetryOption{WithRetryPredicate(func(err error) bool {
				return !errors.Is(err, errPermanent)
			})},
			wantCalls: 1,
			wantErr:   errPermanent,
		},
		{
			name: "回调收到递增的尝试序号",
			op: func(calls *int) error {
				return errTransient
			},
			opts:         []RetryOption{WithMaxRetries(2)},
			wantCalls:    3,
			wantErr:      errTransient,
			wantAttempts: []int{1, 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			var attempts []int
			opts := append([]RetryOption{
				WithIntervals(time.Millisecond, 4*time.Millisecond),
				WithOnRetry(func(attempt int, err error) {
					attempts = append(attempts, attempt)
				}),
			}, tc.opts...)

			err := Retry(context.Background(), func(ctx context.Context) error {
				calls++
				return tc.op(&calls)
			}, opts...)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
			if tc.wantAttempts != nil {
				assert.Equal(t, tc.wantAttempts, attempts)
			}
		})
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var calls int
	err := Retry(ctx, func(ctx context.Context) error {
		calls++
		return errTransient
	}, WithIntervals(time.Second, time.Second))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetryResult(t *testing.T) {
	var calls int
	got, err := RetryResult(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errTransient
		}
		return "ok", nil
	}, WithIntervals(time.Millisecond, 4*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}
