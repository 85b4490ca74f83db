// Package messaging carries notification envelopes to external transports.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/demandes-api/pkg/config"
)

// Message is the transport envelope for one delivered notification.
type Message struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	DemandeID   string    `json:"demande_id"`
	Reference   string    `json:"reference,omitempty"`
	Type        string    `json:"type"`
	Text        string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher hands a message to an external transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Encode marshals msg for the wire.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return body, nil
}

// NopPublisher drops every message. Used when NOTIFICATIONS_TRANSPORT=none.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Message) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// Deps carries the shared clients a transport may need.
type Deps struct {
	Redis ListPusher
}

// New selects a publisher for the configured transport.
func New(cfg config.NotificationsConfig, deps Deps) (Publisher, error) {
	switch cfg.Transport {
	case config.TransportNone:
		return NopPublisher{}, nil
	case config.TransportKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.TransportRedis, "":
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis transport requires a redis client")
		}
		return NewRedisListPublisher(deps.Redis, cfg.RedisListKey), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}
