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
	"math/rand"
	"time"

	"github.com/ecodeclub/ekit/retry"
)

const (
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 10 * time.Second
	defaultMaxRetries      = int32(3)
)

type retryConfig struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      int32
	// shouldRetry 为 nil 时所有错误都重试
	shouldRetry func(err error) bool
	// onRetry 在每次等待重试之前触发
	onRetry func(attempt int, err error)
}

type RetryOption func(*retryConfig)

func WithIntervals(initial, max time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.initialInterval = initial
		c.maxInterval = max
	}
}

func WithMaxRetries(n int32) RetryOption {
	return func(c *retryConfig) {
		c.maxRetries = n
	}
}

func WithRetryPredicate(fn func(err error) bool) RetryOption {
	return func(c *retryConfig) {
		c.shouldRetry = fn
	}
}

func WithOnRetry(fn func(attempt int, err error)) RetryOption {
	return func(c *retryConfig) {
		c.onRetry = fn
	}
}

// Retry 指数退避重试。
// 退避间隔上叠加最多 10% 的随机抖动，避免多个客户端同步发起重试风暴。
// 重试耗尽后返回最后一次的原始错误
func Retry(ctx context.Context, op func(ctx context.Context) error, opts ...RetryOption) error {
	cfg := retryConfig{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxRetries:      defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	strategy, err := retry.NewExponentialBackoffRetryStrategy(cfg.initialInterval, cfg.maxInterval, cfg.maxRetries)
	if err != nil {
		return err
	}
	attempt := 0
	for {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if cfg.shouldRetry != nil && !cfg.shouldRetry(err) {
			return err
		}
		// ekit 的策略把非正的 maxRetries 当作无限重试，这里不给这个口子
		if cfg.maxRetries <= 0 {
			return err
		}
		delay, ok := strategy.Next()
		if !ok {
			return err
		}
		attempt++
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
	}
}

// RetryResult 带返回值的 Retry
func RetryResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	var res T
	err := Retry(ctx, func(ctx context.Context) error {
		var err1 error
		res, err1 = op(ctx)
		return err1
	}, opts...)
	return res, err
}

func jitter(d time.Duration) time.Duration {
	span := int64(d) / 10
	if span <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(span))
}
