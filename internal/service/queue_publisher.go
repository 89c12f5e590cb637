// Package queue_publisher publishes seat status events to RabbitMQ.  The
// engine treats delivery as fire and forget: errors are returned so the
// engine can log them, but nothing here ever blocks or fails a seat
// transition.
package queue_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	q "github.com/tickethub/seat-reservation/internal/queue"
)

// Publisher maintains a lazily opened connection and channel to RabbitMQ
// and republishes seat status events onto the durable seat.status queue.
// The connection is re-established on the next publish after a failure.
type Publisher struct {
	logger *logrus.Logger
	url    string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the given broker URL.  No
// connection is made until the first publish.
func NewPublisher(logger *logrus.Logger, url string) *Publisher {
	return &Publisher{logger: logger, url: url}
}

// PublishSeatStatus implements the engine's Notifier contract.  Messages
// are marked persistent so they survive broker restarts.
func (p *Publisher) PublishSeatStatus(ctx context.Context, ev q.SeatStatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal seat status event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.SeatStatusQueue, false, false, pub); err != nil {
		// Drop the broken channel; the next publish redials.
		p.reset()
		return fmt.Errorf("publish seat status: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing and declaring the queue when
// needed.  Callers must hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Durable so messages survive broker restarts; declare is idempotent.
	if _, err := ch.QueueDeclare(q.SeatStatusQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

// reset drops the connection state.  Callers must hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
