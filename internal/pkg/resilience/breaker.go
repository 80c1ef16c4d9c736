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
	"sync"
	"time"
)

// ErrCircuitOpen 熔断器打开期间的快速失败
var ErrCircuitOpen = errors.New("熔断器已打开，调用被拒绝")

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 60 * time.Second
)

type BreakerOption func(*CircuitBreaker)

func WithFailureThreshold(n int) BreakerOption {
	return func(b *CircuitBreaker) {
		b.threshold = n
	}
}

func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(b *CircuitBreaker) {
		b.timeout = d
	}
}

// withClock 测试专用
func withClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) {
		b.now = now
	}
}

// CircuitBreaker 三态熔断器。
// closed 状态下连续失败达到阈值转为 open；open 状态下拒绝所有调用，
// 直到距最后一次失败超过 timeout，转为 half-open 放行一次试探调用；
// 试探失败立刻回到 open（不需要重新累计阈值），任何状态下成功都会
// 清零计数并关闭熔断器
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	timeout     time.Duration
	state       BreakerState
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		threshold: defaultFailureThreshold,
		timeout:   defaultOpenTimeout,
		state:     StateClosed,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := op(ctx)
	b.record(err == nil)
	return err
}

// ExecuteWithFallback 熔断打开期间改走降级逻辑，其他错误原样返回
func (b *CircuitBreaker) ExecuteWithFallback(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	err := b.Execute(ctx, op)
	if errors.Is(err, ErrCircuitOpen) {
		return fallback(ctx)
	}
	return err
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			// 转为半开，只放行这一次试探
			b.state = StateHalfOpen
			return true
		}
		return false
	default:
		// 半开期间已有试探在途
		return false
	}
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		b.state = StateClosed
		return
	}
	b.lastFailure = b.now()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
	}
}
