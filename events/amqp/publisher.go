// Package amqp publishes earnings events to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prima/earnings-engine/earnings"
)

// CalculatedEvent is published after a booking's earnings are persisted.
// It carries enough for downstream consumers (notifications, analytics)
// without querying the database.
type CalculatedEvent struct {
	BookingID        string         `json:"booking_id"`
	Currency         string         `json:"currency"`
	Prime            bool           `json:"prime"`
	TotalFee         int64          `json:"total_fee"`
	PlatformEarnings int64          `json:"platform_earnings"`
	Earnings         []EarningEvent `json:"earnings"`
	CalculatedAt     string         `json:"calculated_at"`
}

type EarningEvent struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// NewCalculatedEvent flattens an allocation into its wire form.
func NewCalculatedEvent(a earnings.Allocation, at time.Time) CalculatedEvent {
	ev := CalculatedEvent{
		BookingID:        string(a.BookingID),
		Currency:         a.Currency,
		Prime:            a.IsPrime,
		TotalFee:         int64(a.TotalFee),
		PlatformEarnings: int64(a.PlatformEarnings),
		Earnings:         make([]EarningEvent, 0, len(a.Earnings)),
		CalculatedAt:     at.UTC().Format(time.RFC3339),
	}
	for _, e := range a.Earnings {
		ev.Earnings = append(ev.Earnings, EarningEvent{
			UserID: string(e.UserID),
			Type:   string(e.Type),
			Amount: int64(e.Amount),
		})
	}
	return ev
}

// Publisher implements earnings.Publisher over one AMQP channel. Messages
// go to a durable queue through the default exchange and are persistent.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

// Dial connects, opens a channel and declares the queue.
func Dial(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) PublishCalculated(ctx context.Context, a earnings.Allocation) error {
	body, err := json.Marshal(NewCalculatedEvent(a, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    string(a.BookingID),
			Body:         body,
		},
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
