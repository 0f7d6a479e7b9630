// Package events publishes listing lifecycle events to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fotoljay/internal/config"
	"fotoljay/internal/domain"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Lifecycle actions, used as the last subject token
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionRepublished = "republished"
	ActionDecided     = "decided"
	ActionVip         = "vip"
	ActionSold        = "sold"
	ActionDeleted     = "deleted"
)

const (
	connectWait   = 5 * time.Second
	maxReconnects = 5
	reconnectWait = 2 * time.Second
)

// Publisher emits a ListingEvent after the change it describes has committed
type Publisher interface {
	Publish(ctx context.Context, event domain.ListingEvent) error
}

// Subject returns the subject an action is published on, e.g. fotoljay.listing.sold
func Subject(prefix, action string) string {
	if prefix == "" {
		return "listing." + action
	}
	return prefix + ".listing." + action
}

// Connect dials NATS with bounded reconnects and logs connection state changes
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("fotoljay listing events"),
		nats.Timeout(connectWait),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher publishes JSON-encoded events on conn
func NewNATSPublisher(conn *nats.Conn, prefix string) (Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	return &natsPublisher{conn: conn, prefix: prefix}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, event domain.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal listing event: %w", err)
	}

	subject := Subject(p.prefix, event.Action)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS subject %s: %w", subject, err)
	}
	return nil
}

type nopPublisher struct{}

// NewNopPublisher discards every event. Used when no NATS URL is configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(ctx context.Context, event domain.ListingEvent) error {
	return nil
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []domain.ListingEvent
	// Err, when set, is returned from every Publish call.
	Err error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, event domain.ListingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []domain.ListingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ListingEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events carried action
func (r *Recorder) Count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}
