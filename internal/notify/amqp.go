package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// EventQueueName is the durable queue terminal events are published to.
	EventQueueName = "infogen.events"

	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
	dialTimeout      = 15 * time.Second
)

// AMQPNotifier publishes terminal events to a RabbitMQ queue for consumers
// that prefer a broker over webhooks. Connection loss is handled with
// exponential reconnect backoff.
type AMQPNotifier struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("amqp url is required")
	}

	n := &AMQPNotifier{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := n.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil {
		return fmt.Errorf("notifier is not initialized")
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := n.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.EntityID,
		Type:         string(event.Type),
		Body:         payload,
	}

	if err := ch.PublishWithContext(ctx, "", EventQueueName, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish event to queue %q: %w", EventQueueName, err)
	}

	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (n *AMQPNotifier) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := n.ensureConnected(ctx); err != nil {
		return nil, err
	}

	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := n.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		n.mu.RLock()
		conn = n.conn
		n.mu.RUnlock()

		ch, err = conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp channel after reconnect: %w", err)
		}
	}

	if _, err := ch.QueueDeclare(EventQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare event queue: %w", err)
	}

	return ch, nil
}

func (n *AMQPNotifier) ensureConnected(ctx context.Context) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return n.reconnectWithBackoff(ctx)
}

func (n *AMQPNotifier) reconnectWithBackoff(ctx context.Context) error {
	n.reconnectMu.Lock()
	defer n.reconnectMu.Unlock()

	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := amqp.Dial(n.url)
		if err == nil {
			n.mu.Lock()
			oldConn := n.conn
			n.conn = newConn
			n.mu.Unlock()

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("amqp reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}
