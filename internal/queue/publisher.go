// Package queue publishes event notifications to RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL      string
	Exchange string
}

// Publisher sends persistent messages to a durable topic exchange. The
// routing key is the event type, so consumers bind on patterns like
// "movie.*". A broken channel is reopened on the next publish.
type Publisher struct {
	cfg  Config
	log  *slog.Logger
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	const op = "queue.New"

	if cfg.Exchange == "" {
		cfg.Exchange = "cinema.events"
	}

	p := &Publisher{cfg: cfg, log: log}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

func (p *Publisher) connect() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.cfg.URL)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	p.ch = ch
	return nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	const op = "queue.Publisher.Publish"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, topic, false, false, msg); err != nil {
		p.log.Warn("rabbitmq publish failed", slog.String("topic", topic), slog.Any("err", err))
		_ = p.ch.Close()
		p.ch = nil
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
