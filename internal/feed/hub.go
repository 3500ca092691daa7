// Package feed はテーブル単位の変更通知 (チェンジフィード) を配信します。
// 通知は変更内容を運ばず「何かが変わった」ことだけを伝えます。
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/telemetry"
)

// 変更操作の種類
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Change は1件の変更通知です。Origin は発行したインスタンスのIDです。
type Change struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	Origin string `json:"origin,omitempty"`
}

// Handler は変更通知を受け取るコールバックです。
type Handler func(Change)

type subscriber struct {
	table  string
	fn     Handler
	notify chan Change
	done   chan struct{}
}

// 購読者ごとのゴルーチンでハンドラーを呼ぶ。
// 未処理の通知が残っている間の新しい通知はまとめられる。
func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.notify:
			s.fn(c)
		}
	}
}

// Hub は購読者の登録と通知のブロードキャストを管理します。
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	origin  string
	forward func(Change)
	metrics *telemetry.Metrics
	closed  bool
}

// NewHub は新しいHubを作成します。
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]*subscriber),
		origin: uuid.New().String(),
	}
}

// Origin はこのインスタンスの識別子を返します。
func (h *Hub) Origin() string {
	return h.origin
}

// UseMetrics は通知数を記録するメトリクスを設定します。
func (h *Hub) UseMetrics(m *telemetry.Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

// ForwardTo はローカルで発行した変更を外部 (NATSなど) へ転送する関数を設定します。
func (h *Hub) ForwardTo(fn func(Change)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forward = fn
}

// Subscription は Subscribe が返す購読ハンドルです。
type Subscription struct {
	hub  *Hub
	id   string
	once sync.Once
}

// Unsubscribe は購読を解除します。複数回呼んでも安全です。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

// Subscribe は table の変更ごとに fn を呼ぶ購読を登録します。
func (h *Hub) Subscribe(table string, fn Handler) *Subscription {
	sub := &subscriber{
		table:  table,
		fn:     fn,
		notify: make(chan Change, 1),
		done:   make(chan struct{}),
	}
	id := uuid.New().String()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.done)
		return &Subscription{hub: h, id: id}
	}
	h.subs[id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	go sub.run()
	log.WithFields(log.Fields{"table": table, "subscriptions": count}).Debug("feed subscription registered")
	return &Subscription{hub: h, id: id}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if ok {
		close(sub.done)
		log.WithFields(log.Fields{"table": sub.table, "subscriptions": count}).Debug("feed subscription released")
	}
}

// Publish はローカルで発生した変更を購読者に配信し、転送先にも送ります。
func (h *Hub) Publish(ctx context.Context, c Change) {
	if c.Origin == "" {
		c.Origin = h.origin
	}
	h.Deliver(ctx, c)

	h.mu.RLock()
	forward := h.forward
	h.mu.RUnlock()
	if forward != nil {
		forward(c)
	}
}

// Deliver は変更をローカルの購読者にだけ配信します。
func (h *Hub) Deliver(ctx context.Context, c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.table != c.Table {
			continue
		}
		select {
		case sub.notify <- c:
		default:
			// 前の通知が未処理なら次の再読込でまとめて反映される
		}
	}
	h.metrics.RecordNotification(ctx, c.Table, c.Op)
}

// Count は現在の購読数を返します。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close はすべての購読を解除し、以降の購読を受け付けません。
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	log.Println("[feed] hub closed")
}
