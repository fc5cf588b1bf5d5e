// Package service contains adapters that implement domain ports on top of
// the storage and messaging infrastructure.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/circuitbreaker"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION GATEWAY
// Канал сущности ищется по имени: сначала в кэше, потом в хранилище;
// если его нет - создаётся с участниками сообщения.
// ══════════════════════════════════════════════════════════════════════════════

// ToastPublisher delivers toasts to connected clients.
type ToastPublisher interface {
	PublishToast(ctx context.Context, toast notification.Toast) error
}

// GatewayMetrics counts deliveries.
type GatewayMetrics struct {
	mu        sync.Mutex
	Sent      int64
	Failed    int64
	Created   int64
	CacheHits int64
	Toasts    int64
}

// GatewayMetricsSnapshot is a copy of GatewayMetrics.
type GatewayMetricsSnapshot struct {
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Created   int64 `json:"channels_created"`
	CacheHits int64 `json:"cache_hits"`
	Toasts    int64 `json:"toasts"`
}

func (m *GatewayMetrics) add(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (m *GatewayMetrics) Snapshot() GatewayMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return GatewayMetricsSnapshot{
		Sent:      m.Sent,
		Failed:    m.Failed,
		Created:   m.Created,
		CacheHits: m.CacheHits,
		Toasts:    m.Toasts,
	}
}

// NotificationGateway implements notification.Gateway.
type NotificationGateway struct {
	store   notification.ChannelStore
	cache   notification.ChannelCache
	toasts  ToastPublisher
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	metrics *GatewayMetrics
}

var _ notification.Gateway = (*NotificationGateway)(nil)

// NewNotificationGateway creates the gateway. cache and toasts may be nil.
func NewNotificationGateway(store notification.ChannelStore, cache notification.ChannelCache, toasts ToastPublisher, log *logger.Logger) *NotificationGateway {
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("notification_gateway"))

	return &NotificationGateway{
		store:   store,
		cache:   cache,
		toasts:  toasts,
		retrier: retry.ChatRetrier(),
		breaker: circuitbreaker.ChatBreaker(
			circuitbreaker.WithIsFailure(func(err error) bool { return !shared.IsFinal(err) }),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		),
		log:     log,
		metrics: &GatewayMetrics{},
	}
}

// Metrics returns the delivery counters.
func (g *NotificationGateway) Metrics() *GatewayMetrics {
	return g.metrics
}

// Send posts msg to the conversation of its entity, creating the
// conversation on first use.
func (g *NotificationGateway) Send(ctx context.Context, msg *notification.Message) error {
	if msg == nil {
		return notification.ErrInvalidMessage
	}
	name, err := msg.ChannelName()
	if err != nil {
		return err
	}

	err = g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, func(ctx context.Context) error {
			channelID, err := g.resolve(ctx, name, msg.Members())
			if err != nil {
				return classify(err)
			}
			return classify(g.store.Post(ctx, channelID, msg))
		})
	})
	if err != nil {
		msg.MarkFailed(err)
		g.metrics.add(&g.metrics.Failed)
		g.log.Error("failed to deliver message",
			logger.Channel(name),
			logger.String("entity_id", msg.EntityID),
			logger.Err(err),
		)
		return shared.WrapError("notification", "Send", notification.ErrDeliveryFailed, "", err)
	}

	msg.MarkDelivered()
	g.metrics.add(&g.metrics.Sent)
	g.log.Debug("message delivered", logger.Channel(name), logger.Int("recipients", len(msg.RecipientUserIDs)))
	return nil
}

// classify marks chat store errors for the retrier: a rejected message or
// unknown member stays rejected, the rest is retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if shared.IsFinal(err) {
		return retry.Permanent(err)
	}
	return retry.Retryable(err)
}

// resolve returns the conversation id for name.
func (g *NotificationGateway) resolve(ctx context.Context, name string, members []string) (string, error) {
	if g.cache != nil {
		id, ok, err := g.cache.Get(ctx, name)
		if err != nil {
			// кэш не обязателен
			g.log.Warn("channel cache unavailable", logger.Channel(name), logger.Err(err))
		} else if ok {
			g.metrics.add(&g.metrics.CacheHits)
			return id, nil
		}
	}

	id, err := g.store.FindByName(ctx, name)
	switch {
	case err == nil:
	case shared.IsNotFound(err):
		id, err = g.store.Create(ctx, name, members)
		if err != nil {
			return "", fmt.Errorf("create channel %q: %w", name, err)
		}
		g.metrics.add(&g.metrics.Created)
		g.log.Info("channel created", logger.Channel(name), logger.Strings("members", members))
	default:
		return "", fmt.Errorf("find channel %q: %w", name, err)
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, name, id); err != nil {
			g.log.Warn("failed to cache channel", logger.Channel(name), logger.Err(err))
		}
	}
	return id, nil
}

// Notify publishes a toast. Failures are logged only.
func (g *NotificationGateway) Notify(ctx context.Context, toast notification.Toast) error {
	if g.toasts == nil || toast.UserID == "" {
		return nil
	}
	if err := g.toasts.PublishToast(ctx, toast); err != nil {
		g.log.Warn("toast dropped", logger.UserID(toast.UserID), logger.Err(err))
		return nil
	}
	g.metrics.add(&g.metrics.Toasts)
	return nil
}
