// Package events publishes ingestion lifecycle events for downstream
// consumers such as indexers and notification services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/config"
)

// DocumentIngested is emitted after a document finishes ingestion.
type DocumentIngested struct {
	DocumentID  string    `json:"documentId"`
	OwnerID     string    `json:"ownerId"`
	ContentHash string    `json:"contentHash"`
	PageCount   int       `json:"pageCount"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completedAt"`
}

// Publisher emits ingestion events. Publishing is best effort; callers
// log and continue on error.
type Publisher interface {
	PublishIngested(ctx context.Context, event DocumentIngested) error
	Close() error
}

// NATSPublisher publishes events to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS and returns a publisher.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:    conn,
		subject: cfg.Subject,
	}, nil
}

// PublishIngested publishes a document ingested event.
func (p *NATSPublisher) PublishIngested(_ context.Context, event DocumentIngested) error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn.IsConnected() {
		p.conn.Close()
	}
	return nil
}

// NoopPublisher discards events. Used when event publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishIngested(context.Context, DocumentIngested) error { return nil }
func (NoopPublisher) Close() error                                            { return nil }
