package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Bridge は複数インスタンス間で変更通知を NATS 経由で共有します。
type Bridge struct {
	conn    *nats.Conn
	subject string
	hub     *Hub
	sub     *nats.Subscription
}

// ConnectBridge は NATS に接続し、hub の変更を subject に転送します。
func ConnectBridge(url, subject string, hub *Hub) (*Bridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("advanced-task-manager"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b := newBridge(nc, subject, hub)
	sub, err := nc.Subscribe(subject, b.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe %s: %w", subject, err)
	}
	b.sub = sub
	hub.ForwardTo(b.publish)

	log.WithFields(log.Fields{"url": url, "subject": subject}).Info("NATS feed bridge started")
	return b, nil
}

func newBridge(nc *nats.Conn, subject string, hub *Hub) *Bridge {
	return &Bridge{conn: nc, subject: subject, hub: hub}
}

func (b *Bridge) publish(c Change) {
	data, err := json.Marshal(c)
	if err != nil {
		log.WithError(err).Error("failed to marshal change")
		return
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		log.WithError(err).WithField("subject", b.subject).Warn("failed to publish change")
	}
}

// 自インスタンスが発行した通知はローカル配信済みなので無視する
func (b *Bridge) handleMessage(msg *nats.Msg) {
	var c Change
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		log.WithError(err).Warn("discarding malformed change message")
		return
	}
	if c.Origin == b.hub.Origin() || c.Table == "" {
		return
	}
	b.hub.Deliver(context.Background(), c)
}

// Close は購読を解除して接続を閉じます。
func (b *Bridge) Close() error {
	b.hub.ForwardTo(nil)
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.WithError(err).Warn("failed to unsubscribe NATS feed")
		}
	}
	if b.conn != nil {
		return b.conn.Drain()
	}
	return nil
}
