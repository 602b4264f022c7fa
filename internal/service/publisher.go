// Package service publishes responder lifecycle events to RabbitMQ.
// Failures are logged and returned; callers never let them interrupt serving.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/kube-responder/internal/queue"
)

// Publisher delivers lifecycle events.
type Publisher interface {
	PublishLifecycle(ctx context.Context, event q.LifecycleEvent) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishLifecycle(context.Context, q.LifecycleEvent) error { return nil }

// NewPublisher returns an AMQP publisher for url, or a NopPublisher when url
// is empty.
func NewPublisher(url string, log *zap.Logger) Publisher {
	if url == "" {
		return NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPPublisher{URL: url, Log: log}
}

// AMQPPublisher dials the broker for each event.  Lifecycle events are rare
// so no connection is held open.
type AMQPPublisher struct {
	URL string
	Log *zap.Logger
}

// PublishLifecycle publishes event to the lifecycle queue as a persistent
// JSON message.
func (p *AMQPPublisher) PublishLifecycle(ctx context.Context, event q.LifecycleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.Log.Error("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		p.Log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.LifecycleQueueName, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		p.Log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		q.LifecycleQueueName, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		pub,
	); err != nil {
		p.Log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}
