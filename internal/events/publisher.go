// Package events publishes domain events over Redis pub/sub channels.
// Publication is fire-and-forget: the scoring path never waits on or
// fails because of the broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/pkg/circuitbreaker"
	"github.com/invoscore/backend/pkg/logger"
)

const publishTimeout = 2 * time.Second

type Publisher struct {
	client  *redis.Client
	breaker *circuitbreaker.Breaker
	log     *zap.Logger
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{
		client:  client,
		breaker: circuitbreaker.New(5, 30*time.Second),
		log:     logger.Named("events"),
	}
}

type envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Emit publishes payload on the channel named by event. Failures are
// logged and counted, never returned; a tripped breaker skips the
// broker entirely until the cooldown passes.
func (p *Publisher) Emit(ctx context.Context, event string, payload any) {
	data, err := json.Marshal(envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(event, "error").Inc()
		p.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	err = p.breaker.Execute(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return p.client.Publish(pubCtx, event, data).Err()
	})
	if err != nil {
		status := "error"
		if err == circuitbreaker.ErrOpen {
			status = "skipped"
		}
		metrics.EventsPublished.WithLabelValues(event, status).Inc()
		p.log.Warn("event publication failed",
			zap.String("event", event),
			zap.String("breaker_state", p.breaker.State().String()),
			zap.Error(err))
		return
	}

	metrics.EventsPublished.WithLabelValues(event, "ok").Inc()
	p.log.Debug("event published", zap.String("event", event))
}
