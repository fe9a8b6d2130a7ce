package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published when a product's reviews have
	// been persisted.
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"
)

// ProductScrapedPayload is the wire payload for PRODUCT_SCRAPED events.
type ProductScrapedPayload struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	ProductURL string    `json:"product_url"`
	Name       string    `json:"product_name"`
	Status     string    `json:"status"`
	Reviews    int       `json:"reviews"`
	Source     string    `json:"source"`
}

// Publisher emits product lifecycle events. Publishing is best effort from
// the orchestrator's point of view; a failed publish never fails a product.
type Publisher interface {
	PublishProductScraped(ctx context.Context, payload *ProductScrapedPayload) error
	Close() error
}

// RedisPublisher pushes events onto a Redis stream so downstream consumers
// (pricing, search indexing) pick them up without polling the output files.
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisPublisher(ctx context.Context, addr, stream string, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisPublisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}, nil
}

func (p *RedisPublisher) PublishProductScraped(ctx context.Context, payload *ProductScrapedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeProductScraped)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "scraper"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_type": payload.EventType,
			"payload":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"stream", p.stream,
		"stream_id", id,
	)

	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher is used when no event transport is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishProductScraped(context.Context, *ProductScrapedPayload) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

// NewProductScrapedPayload builds the payload for one finalized product.
func NewProductScrapedPayload(runID string, p *models.ReviewedProduct) *ProductScrapedPayload {
	return &ProductScrapedPayload{
		RunID:      runID,
		ProductURL: p.URL,
		Name:       p.Name,
		Status:     string(p.Status),
		Reviews:    len(p.Reviews),
	}
}
