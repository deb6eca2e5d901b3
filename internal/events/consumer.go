// Package events consumes interaction events (view/save/try-on/search) from
// RabbitMQ and applies them to the interest profiles, as an alternative to
// the synchronous HTTP tracking endpoint.
package events

import (
	"context"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// InteractionTracker applies one tracked interaction. Implemented by
// service.InterestService.
type InteractionTracker interface {
	TrackInteraction(userID, postID, interactionType string) error
}

// InteractionEvent is the message body published by upstream producers.
type InteractionEvent struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
	Type   string `json:"type"`
}

// Consumer reads interaction events from a queue. Optional: the application
// runs without it when the broker is not configured.
type Consumer struct {
	url     string
	queue   string
	tracker InteractionTracker
	log     *zap.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer creates a consumer. Call Connect before Run, Close when done.
func NewConsumer(url, queue string, tracker InteractionTracker, log *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, tracker: tracker, log: log}
}

// Connect dials the broker and declares the queue.
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	c.conn = conn
	c.ch = ch
	return nil
}

// Run consumes events until ctx is cancelled or the channel closes. Malformed
// or unprocessable events are logged and dropped, not requeued.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("interaction consumer started", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(d)
		}
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	var ev InteractionEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Warn("malformed interaction event", zap.Error(err))
		_ = d.Reject(false)
		return
	}
	if ev.UserID == "" || ev.PostID == "" || ev.Type == "" {
		c.log.Warn("incomplete interaction event",
			zap.String("user_id", ev.UserID),
			zap.String("post_id", ev.PostID),
			zap.String("type", ev.Type))
		_ = d.Reject(false)
		return
	}
	if err := c.tracker.TrackInteraction(ev.UserID, ev.PostID, ev.Type); err != nil {
		c.log.Warn("interaction tracking failed",
			zap.String("user_id", ev.UserID),
			zap.String("post_id", ev.PostID),
			zap.Error(err))
		_ = d.Reject(false)
		return
	}
	_ = d.Ack(false)
}

// Close closes the channel and connection. Idempotent.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	return nil
}
