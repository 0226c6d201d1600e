// Package notify delivers "survey published" messages to customers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"survey-platform/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Message is the payload published for downstream delivery (email, push, ...).
type Message struct {
	CustomerID string    `json:"customer_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// Log writes notifications to the request logger. It is the fallback when no
// broker is configured.
type Log struct{}

func (Log) Notify(ctx context.Context, customerID, message string) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.New("notify: customer id is required")
	}
	logger.From(ctx).Info("customer notified", "customer_id", customerID, "message", message)
	return nil
}

// Func adapts a plain function to the notifier interface.
type Func func(ctx context.Context, customerID, message string) error

func (f Func) Notify(ctx context.Context, customerID, message string) error {
	return f(ctx, customerID, message)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes notifications as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     publisher
	channel string
	now     func() time.Time

	// RequireSubscriber fails delivery when nobody is listening on the channel.
	RequireSubscriber bool
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(rdb, channel)
}

func newRedisPublisher(rdb publisher, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, now: time.Now}
}

func (p *RedisPublisher) Notify(ctx context.Context, customerID, message string) error {
	if p == nil || p.rdb == nil {
		return errors.New("notify: redis publisher not configured")
	}
	if strings.TrimSpace(customerID) == "" {
		return errors.New("notify: customer id is required")
	}

	payload, err := json.Marshal(Message{CustomerID: customerID, Text: message, SentAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("notify: publish to %s: %w", p.channel, err)
	}
	if receivers == 0 && p.RequireSubscriber {
		return fmt.Errorf("notify: no subscribers on %s", p.channel)
	}
	return nil
}
