// Package amqpclient owns the RabbitMQ connection shared by the image worker
// and the enqueue endpoint.
package amqpclient

import (
	"context"
	"fmt"
	"strings"

	"douyin-image-miner/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type NewAMQPParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.SugaredLogger
}

type AMQPOut struct {
	fx.Out

	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials RABBITMQ_URL. With no URL it provides nil handles and the
// consumers log themselves as disabled.
func NewAMQP(p NewAMQPParams) (AMQPOut, error) {
	url := ""
	if p.Config != nil {
		url = strings.TrimSpace(p.Config.RabbitMQ.URL)
	}
	if url == "" {
		p.Logger.Infow("rabbitmq_disabled", "reason", "missing RABBITMQ_URL")
		return AMQPOut{}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return AMQPOut{}, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return AMQPOut{}, fmt.Errorf("rabbitmq channel: %w", err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = ch.Close()
			_ = conn.Close()
			return nil
		},
	})

	rc := p.Config.RabbitMQ
	p.Logger.Infow(
		"rabbitmq_enabled",
		"exchange", rc.Exchange,
		"queue", rc.Queue,
		"routing_key", rc.RoutingKey,
		"prefetch", rc.Prefetch,
		"declare_topology", rc.DeclareTopology,
	)

	return AMQPOut{Conn: conn, Channel: ch}, nil
}

// Topology is the exchange/queue layout: a topic exchange, a durable queue
// bound to it, and a dead-letter exchange + queue for rejected messages.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

func TopologyFromConfig(rc config.RabbitMQConfig) Topology {
	t := Topology{
		Exchange:   strings.TrimSpace(rc.Exchange),
		Queue:      strings.TrimSpace(rc.Queue),
		RoutingKey: strings.TrimSpace(rc.RoutingKey),
	}
	if t.Exchange == "" {
		t.Exchange = "events"
	}
	if t.Queue == "" {
		t.Queue = DefaultEventName
	}
	if t.RoutingKey == "" {
		t.RoutingKey = DefaultEventName
	}
	return t
}

// DefaultEventName doubles as the default queue and routing key.
const DefaultEventName = "douyin.product.requested.v1"

func (t Topology) DLX() string { return t.Exchange + ".dlx" }
func (t Topology) DLQ() string { return t.Queue + ".dlq" }

// Declarer is the subset of *amqp.Channel used to declare topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func (t Topology) Declare(ch Declarer) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %q: %w", t.Exchange, err)
	}
	if err := ch.ExchangeDeclare(t.DLX(), "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlx exchange declare %q: %w", t.DLX(), err)
	}

	args := amqp.Table{"x-dead-letter-exchange": t.DLX()}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare %q: %w", t.Queue, err)
	}
	if _, err := ch.QueueDeclare(t.DLQ(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq declare %q: %w", t.DLQ(), err)
	}

	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue bind queue=%q key=%q ex=%q: %w", t.Queue, t.RoutingKey, t.Exchange, err)
	}
	if err := ch.QueueBind(t.DLQ(), t.RoutingKey, t.DLX(), false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq bind queue=%q key=%q ex=%q: %w", t.DLQ(), t.RoutingKey, t.DLX(), err)
	}
	return nil
}
