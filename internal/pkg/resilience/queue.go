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

	"github.com/gammazero/workerpool"
)

const defaultQueueConcurrency = 3

// RequestQueue 有界并发的 FIFO 执行队列。
// 任务按提交顺序派发，同时在途的数量不超过并发度；除此之外不做任何调度
type RequestQueue struct {
	pool *workerpool.WorkerPool
}

func NewRequestQueue(concurrency int) *RequestQueue {
	if concurrency <= 0 {
		concurrency = defaultQueueConcurrency
	}
	return &RequestQueue{pool: workerpool.New(concurrency)}
}

// Submit 入队并阻塞等待执行结果。
// ctx 取消只是放弃等待，已入队的任务仍会执行
func (q *RequestQueue) Submit(ctx context.Context, op func() error) error {
	done := make(chan error, 1)
	q.pool.Submit(func() {
		done <- op()
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 等待在途任务完成后关闭队列
func (q *RequestQueue) Stop() {
	q.pool.StopWait()
}

// Enqueue 带返回值的 Submit
func Enqueue[T any](ctx context.Context, q *RequestQueue, op func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	q.pool.Submit(func() {
		val, err := op()
		done <- outcome{val: val, err: err}
	})
	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
