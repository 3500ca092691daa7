package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics はアプリケーション独自のメトリクス計器をまとめたものです。
type Metrics struct {
	TaskWrites          metric.Int64Counter
	FeedNotifications   metric.Int64Counter
	ActiveSubscriptions metric.Int64ObservableGauge
	subscriptionCount   func() int64
}

// NewMetrics は独自メトリクスの計器を作成して登録します。
func NewMetrics(meter metric.Meter, subscriptionCount func() int64) (*Metrics, error) {
	m := &Metrics{subscriptionCount: subscriptionCount}

	var err error
	m.TaskWrites, err = meter.Int64Counter(
		"task_writes_total",
		metric.WithDescription("Number of task insert/update/delete operations"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task writes counter: %w", err)
	}

	m.FeedNotifications, err = meter.Int64Counter(
		"feed_notifications_total",
		metric.WithDescription("Number of change notifications published on the feed"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed notifications counter: %w", err)
	}

	m.ActiveSubscriptions, err = meter.Int64ObservableGauge(
		"feed_subscriptions_active",
		metric.WithDescription("Current number of change feed subscriptions"),
		metric.WithUnit("{subscription}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if m.subscriptionCount != nil {
				o.Observe(m.subscriptionCount())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions gauge: %w", err)
	}

	return m, nil
}

// RecordWrite はタスクへの書き込みを記録します。nil レシーバでも安全です。
func (m *Metrics) RecordWrite(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.TaskWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordNotification はフィードへの通知を記録します。
func (m *Metrics) RecordNotification(ctx context.Context, table, op string) {
	if m == nil {
		return
	}
	m.FeedNotifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("op", op),
	))
}
