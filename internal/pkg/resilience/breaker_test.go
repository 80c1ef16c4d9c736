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

var errBoom = errors.New("模拟下游失败")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func failOp(ctx context.Context) error {
	return errBoom
}

func okOp(ctx context.Context) error {
	return nil
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(withClock(clock.Now))

	// 连续 5 次失败之后打开
	for i := 0; i < 5; i++ {
		assert.Equal(t, StateClosed, b.State())
		assert.ErrorIs(t, b.Execute(context.Background(), failOp), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	// 打开期间快速失败，不会调用下游
	var called bool
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	testCases := []struct {
		name      string
		trial     func(ctx context.Context) error
		wantState BreakerState
	}{
		{
			name:      "试探成功关闭熔断器",
			trial:     okOp,
			wantState: StateClosed,
		},
		{
			name:      "试探失败立刻重新打开",
			trial:     failOp,
			wantState: StateOpen,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			b := NewCircuitBreaker(withClock(clock.Now))
			for i := 0; i < 5; i++ {
				_ = b.Execute(context.Background(), failOp)
			}
			require.Equal(t, StateOpen, b.State())

			// 超时之前依然拒绝
			clock.Advance(59 * time.Second)
			assert.ErrorIs(t, b.Execute(context.Background(), okOp), ErrCircuitOpen)

			// 超时之后放行一次试探
			clock.Advance(2 * time.Second)
			var calls int
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				calls++
				return tc.trial(ctx)
			})
			assert.Equal(t, 1, calls)
			assert.Equal(t, tc.wantState, b.State())
		})
	}
}

func TestCircuitBreaker_ReopenWithoutThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(withClock(clock.Now))
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failOp)
	}
	require.Equal(t, StateOpen, b.State())

	// 半开试探失败后，单次失败就足以再次打开
	clock.Advance(61 * time.Second)
	_ = b.Execute(context.Background(), failOp)
	assert.Equal(t, StateOpen, b.State())

	// 再次半开，这次成功，计数清零
	clock.Advance(61 * time.Second)
	require.NoError(t, b.Execute(context.Background(), okOp))
	assert.Equal(t, StateClosed, b.State())

	// 关闭之后又需要完整阈值才会再打开
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failOp)
	}
	assert.Equal(t, StateClosed, b.State())
	_ = b.Execute(context.Background(), failOp)
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker()
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failOp)
	}
	require.NoError(t, b.Execute(context.Background(), okOp))

	// 前面的 4 次失败已被清零
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failOp)
	}
	assert.Equal(t, StateClosed, b.State())
}
