package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CounterQueue is the durable queue counter updates are published to.
const CounterQueue = "badge.counter"

const defaultDialTimeout = 10 * time.Second

// AMQPNotifier publishes updates to RabbitMQ. A connection is opened per
// batch; batches are rare compared to badges.
type AMQPNotifier struct {
	url   string
	queue string
}

func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{url: url, queue: CounterQueue}
}

func (n *AMQPNotifier) Name() string { return "amqp" }

func (n *AMQPNotifier) Notify(ctx context.Context, updates []CounterUpdate) error {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("rabbitmq: dial: %w", context.DeadlineExceeded)
	}
	conn, err := amqp.DialConfig(n.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", n.queue, err)
	}

	for _, u := range updates {
		body, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("rabbitmq: marshal update: %w", err)
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(u.Action),
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
			return fmt.Errorf("rabbitmq: publish: %w", err)
		}
	}
	return nil
}
