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
	"sync"
	"time"

	"github.com/blogkit/livecomment/internal/realtime/internal/domain"
	"github.com/ecodeclub/ekit/retry"
	"github.com/ecodeclub/mq-api"
	"github.com/gotomicro/ego/core/elog"
	"github.com/lithammer/shortuuid/v4"
)

const (
	// 重连退避：1s 起步、30s 封顶、最多 5 次，
	// 退避序列为 1s 2s 4s 8s 16s，用完就放弃并回到未订阅状态
	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = 30 * time.Second
	reconnectMaxRetries      = int32(5)

	// 打字事件的本地抑制窗口，窗口内重复调用不再发送
	typingSuppression = 3 * time.Second

	heartbeatInterval = 30 * time.Second
)

// Identity 订阅方的身份。匿名读者拿一个随机生成的连接ID
type Identity struct {
	ClientID string
	UserName string
}

func NewAnonymousIdentity() Identity {
	return Identity{
		ClientID: "anon_" + shortuuid.New(),
		UserName: "Anonymous",
	}
}

type EventHandler func(evt domain.Event)

// Manager 一个订阅方在一篇文章实时频道上的完整生命周期：
// unsubscribed -> subscribing -> subscribed <-> reconnecting -> unsubscribed。
// 所有订阅方消费同一个主题，消费组ID每个订阅方唯一，借此做广播扇出，
// 再按 postSlug 过滤出自己关心的事件
type Manager struct {
	q        mq.MQ
	presence PresenceStore
	postSlug string
	identity Identity

	mu            sync.Mutex
	status        domain.Status
	consumer      mq.Consumer
	producer      mq.Producer
	cancel        context.CancelFunc
	listeners     map[string]map[int]EventHandler
	connListeners map[int]func(connected bool)
	nextID        int
	lastTyping    time.Time

	logger *elog.Component

	// 测试里压缩重连节奏
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	reconnectRetries int32
	heartbeatEvery   time.Duration
}

func NewManager(q mq.MQ, presence PresenceStore, postSlug string, identity Identity) *Manager {
	return &Manager{
		q:                q,
		presence:         presence,
		postSlug:         postSlug,
		identity:         identity,
		status:           domain.StatusUnsubscribed,
		listeners:        make(map[string]map[int]EventHandler),
		connListeners:    make(map[int]func(bool)),
		logger:           elog.DefaultLogger,
		reconnectInitial: reconnectInitialInterval,
		reconnectMax:     reconnectMaxInterval,
		reconnectRetries: reconnectMaxRetries,
		heartbeatEvery:   heartbeatInterval,
	}
}

func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe 建立订阅。已订阅或正在订阅时直接返回，幂等
func (m *Manager) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	if m.status != domain.StatusUnsubscribed {
		m.mu.Unlock()
		return nil
	}
	m.status = domain.StatusSubscribing
	m.mu.Unlock()

	producer, err := m.q.Producer(domain.Topic)
	if err != nil {
		m.resetToUnsubscribed()
		return fmt.Errorf("创建生产者失败: %w", err)
	}
	consumer, err := m.q.Consumer(domain.Topic, m.groupID())
	if err != nil {
		m.resetToUnsubscribed()
		return fmt.Errorf("创建消费者失败: %w", err)
	}

	if err = m.presence.Track(ctx, m.postSlug, m.identity.ClientID, m.identity.UserName); err != nil {
		// 在线名单是锦上添花，失败不挡订阅
		m.logger.Warn("记录在线状态失败", elog.String("post", m.postSlug), elog.FieldErr(err))
	}

	// 消费循环的生命周期跟着订阅走，不跟调用方的请求上下文走
	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.producer = producer
	m.consumer = consumer
	m.cancel = cancel
	m.status = domain.StatusSubscribed
	m.mu.Unlock()

	// 先通知已连接再启动消费循环，避免循环立刻失败时把 false 通知插到 true 前面
	m.notifyConnection(true)
	m.broadcastPresence(ctx)
	go m.consumeLoop(loopCtx, consumer)
	go m.heartbeatLoop(loopCtx)
	return nil
}

// Unsubscribe 退订并清理。任何状态下调用都安全，幂等
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	if m.status == domain.StatusUnsubscribed {
		m.mu.Unlock()
		return
	}
	wasConnected := m.status == domain.StatusSubscribed
	m.status = domain.StatusUnsubscribed
	cancel := m.cancel
	consumer := m.consumer
	m.cancel = nil
	m.consumer = nil
	connListeners := make([]func(bool), 0, len(m.connListeners))
	for _, fn := range m.connListeners {
		connListeners = append(connListeners, fn)
	}
	m.listeners = make(map[string]map[int]EventHandler)
	m.connListeners = make(map[int]func(bool))
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if consumer != nil {
		_ = consumer.Close()
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelCtx()
	if err := m.presence.Untrack(ctx, m.postSlug, m.identity.ClientID); err != nil {
		m.logger.Warn("清除在线状态失败", elog.String("post", m.postSlug), elog.FieldErr(err))
	}
	m.broadcastPresence(ctx)

	if wasConnected {
		for _, fn := range connListeners {
			fn(false)
		}
	}
}

// Reconnect 放弃重连之后手动恢复订阅，重试计数从头来
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Unsubscribe()
	return m.Subscribe(ctx)
}

// On 注册某类事件的监听，返回的函数用来取消注册
func (m *Manager) On(kind string, fn EventHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners[kind] == nil {
		m.listeners[kind] = make(map[int]EventHandler)
	}
	id := m.nextID
	m.nextID++
	m.listeners[kind][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[kind], id)
	}
}

// OnConnectionChange 注册连接状态变化的监听
func (m *Manager) OnConnectionChange(fn func(connected bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.connListeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.connListeners, id)
	}
}

// BroadcastTyping 广播"正在输入"。3 秒窗口内重复调用直接吞掉
func (m *Manager) BroadcastTyping(ctx context.Context) error {
	m.mu.Lock()
	if m.status != domain.StatusSubscribed {
		m.mu.Unlock()
		return nil
	}
	if time.Since(m.lastTyping) < typingSuppression {
		m.mu.Unlock()
		return nil
	}
	m.lastTyping = time.Now()
	producer := m.producer
	m.mu.Unlock()

	return m.produce(ctx, producer, domain.Event{
		Kind:     domain.KindTyping,
		PostSlug: m.postSlug,
		SenderID: m.identity.ClientID,
		Typing:   &domain.Typing{UserName: m.identity.UserName},
		Ts:       time.Now().UnixMilli(),
	})
}

func (m *Manager) PresenceCount(ctx context.Context) (int64, error) {
	return m.presence.Count(ctx, m.postSlug)
}

func (m *Manager) PresenceList(ctx context.Context) ([]string, error) {
	return m.presence.List(ctx, m.postSlug)
}

func (m *Manager) consumeLoop(ctx context.Context, consumer mq.Consumer) {
	for {
		msg, err := consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("消费实时事件失败，进入重连",
				elog.String("post", m.postSlug), elog.FieldErr(err))
			m.reconnectLoop(ctx)
			return
		}
		var evt domain.Event
		if err = json.Unmarshal(msg.Value, &evt); err != nil {
			m.logger.Warn("解析实时事件失败", elog.FieldErr(err))
			continue
		}
		// 只关心本文章的事件，并且跳过自己发出的
		if evt.PostSlug != m.postSlug || evt.SenderID == m.identity.ClientID {
			continue
		}
		m.dispatch(evt)
	}
}

func (m *Manager) reconnectLoop(ctx context.Context) {
	m.mu.Lock()
	if m.status != domain.StatusSubscribed {
		m.mu.Unlock()
		return
	}
	m.status = domain.StatusReconnecting
	old := m.consumer
	m.consumer = nil
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	m.notifyConnection(false)

	strategy, err := retry.NewExponentialBackoffRetryStrategy(m.reconnectInitial, m.reconnectMax, m.reconnectRetries)
	if err != nil {
		m.Unsubscribe()
		return
	}
	for attempt := 1; ; attempt++ {
		delay, ok := strategy.Next()
		if !ok {
			m.logger.Error("重连次数用尽，放弃订阅", elog.String("post", m.postSlug))
			m.Unsubscribe()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		consumer, err1 := m.q.Consumer(domain.Topic, m.groupID())
		if err1 != nil {
			m.logger.Warn("重连失败",
				elog.String("post", m.postSlug),
				elog.Any("attempt", attempt),
				elog.FieldErr(err1))
			continue
		}
		m.mu.Lock()
		if m.status != domain.StatusReconnecting {
			m.mu.Unlock()
			_ = consumer.Close()
			return
		}
		m.consumer = consumer
		m.status = domain.StatusSubscribed
		m.mu.Unlock()
		m.notifyConnection(true)
		go m.consumeLoop(ctx, consumer)
		return
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.presence.Heartbeat(ctx, m.postSlug, m.identity.ClientID, m.identity.UserName); err != nil {
				m.logger.Warn("在线心跳失败", elog.String("post", m.postSlug), elog.FieldErr(err))
			}
		}
	}
}

func (m *Manager) dispatch(evt domain.Event) {
	m.mu.Lock()
	handlers := make([]EventHandler, 0, len(m.listeners[evt.Kind]))
	for _, fn := range m.listeners[evt.Kind] {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(evt)
	}
}

func (m *Manager) notifyConnection(connected bool) {
	m.mu.Lock()
	fns := make([]func(bool), 0, len(m.connListeners))
	for _, fn := range m.connListeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

// broadcastPresence 在线名单变了，把最新的数目广播出去
func (m *Manager) broadcastPresence(ctx context.Context) {
	m.mu.Lock()
	producer := m.producer
	m.mu.Unlock()
	if producer == nil {
		return
	}
	count, err := m.presence.Count(ctx, m.postSlug)
	if err != nil {
		m.logger.Warn("读取在线人数失败", elog.String("post", m.postSlug), elog.FieldErr(err))
		return
	}
	users, err := m.presence.List(ctx, m.postSlug)
	if err != nil {
		m.logger.Warn("读取在线名单失败", elog.String("post", m.postSlug), elog.FieldErr(err))
		return
	}
	err = m.produce(ctx, producer, domain.Event{
		Kind:     domain.KindPresenceSync,
		PostSlug: m.postSlug,
		SenderID: m.identity.ClientID,
		Presence: &domain.Presence{Count: count, Users: users},
		Ts:       time.Now().UnixMilli(),
	})
	if err != nil {
		m.logger.Warn("广播在线状态失败", elog.String("post", m.postSlug), elog.FieldErr(err))
	}
}

func (m *Manager) produce(ctx context.Context, producer mq.Producer, evt domain.Event) error {
	if producer == nil {
		return nil
	}
	data, err := json.Marshal(&evt)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	if _, err = producer.Produce(ctx, &mq.Message{Value: data}); err != nil {
		return fmt.Errorf("发送实时事件失败: %w", err)
	}
	return nil
}

func (m *Manager) resetToUnsubscribed() {
	m.mu.Lock()
	m.status = domain.StatusUnsubscribed
	m.mu.Unlock()
}

// groupID 每次生成都不同，保证每个订阅方都是独立消费组，收到全量广播
func (m *Manager) groupID() string {
	return fmt.Sprintf("live_%s_%s", m.identity.ClientID, shortuuid.New())
}
