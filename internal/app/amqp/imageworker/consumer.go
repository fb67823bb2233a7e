package imageworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"douyin-image-miner/config"
	"douyin-image-miner/internal/pkg/amqpclient"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrHandlerMissing = errors.New("imageworker handler missing")

type Handler interface {
	Handle(ctx context.Context, msg ProductRequestedEnvelope) error
}

type Consumer struct {
	cfg     *config.Config
	channel *amqp.Channel
	handler Handler
	logger  *zap.SugaredLogger

	consumerTag string

	// runCtx outlives the fx start context; Stop cancels it and waits for
	// the in-flight delivery.
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type NewConsumerParams struct {
	fx.In

	Config  *config.Config
	Channel *amqp.Channel `optional:"true"`
	Handler Handler       `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewConsumer(p NewConsumerParams) *Consumer {
	h := p.Handler
	if h == nil {
		h = missingHandler{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		cfg:         p.Config,
		channel:     p.Channel,
		handler:     h,
		logger:      p.Logger,
		consumerTag: "imageworker",
		runCtx:      ctx,
		cancel:      cancel,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg == nil || strings.TrimSpace(c.cfg.RabbitMQ.URL) == "" || c.channel == nil {
		c.logger.Infow("imageworker_disabled", "reason", "missing rabbitmq config or channel")
		return nil
	}

	topo := amqpclient.TopologyFromConfig(c.cfg.RabbitMQ)
	if c.cfg.RabbitMQ.DeclareTopology {
		if err := topo.Declare(c.channel); err != nil {
			return err
		}
		c.logger.Infow("imageworker_topology_declared",
			"exchange", topo.Exchange,
			"queue", topo.Queue,
			"routing_key", topo.RoutingKey,
			"dlx", topo.DLX(),
			"dlq", topo.DLQ(),
		)
	}

	prefetch := c.cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := c.channel.Consume(
		topo.Queue,
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Infow("imageworker_started", "queue", topo.Queue, "prefetch", prefetch)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(deliveries)
	}()

	return nil
}

func (c *Consumer) consume(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-c.runCtx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(c.runCtx, d)
		}
	}
}

func (c *Consumer) Stop(ctx context.Context) error {
	if c.channel != nil {
		_ = c.channel.Cancel(c.consumerTag, false)
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleDelivery acks handled messages and rejects (without requeue, so they
// dead-letter) anything malformed or whose handling failed.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	eventID := strings.TrimSpace(d.MessageId)
	if eventID == "" {
		eventID = strings.TrimSpace(d.CorrelationId)
	}

	var msg ProductRequestedEnvelope
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Errorw("imageworker_invalid_json", "err", err, "message_id", eventID)
		_ = d.Reject(false)
		return
	}

	if strings.TrimSpace(msg.EventID) == "" && eventID != "" {
		msg.EventID = eventID
	}
	if strings.TrimSpace(msg.EventID) == "" {
		c.logger.Errorw("imageworker_missing_event_id", "message_id", eventID, "event_name", msg.EventName)
		_ = d.Reject(false)
		return
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Errorw("imageworker_handle_failed",
			"err", err,
			"event_id", msg.EventID,
			"event_name", msg.EventName,
		)
		_ = d.Reject(false)
		return
	}

	_ = d.Ack(false)
}

type missingHandler struct{}

func (missingHandler) Handle(context.Context, ProductRequestedEnvelope) error {
	return ErrHandlerMissing
}
