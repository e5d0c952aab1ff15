package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/deepfake-detector/api/internal/domain/feedback"
)

const RetrainingRoutingKey = "feedback.retraining"

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewPublisher opens a channel and declares a durable topic exchange.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// BindQueue declares a durable queue and binds it to routingKey.
func (p *Publisher) BindQueue(queue, routingKey string) error {
	if _, err := p.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := p.channel.QueueBind(queue, routingKey, p.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
}

// RetrainingPublisher sends feedback corrections to the retraining queue.
type RetrainingPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewRetrainingPublisher(pub *Publisher) *RetrainingPublisher {
	return &RetrainingPublisher{pub: pub, routingKey: RetrainingRoutingKey}
}

func (rp *RetrainingPublisher) PublishRetraining(ctx context.Context, req feedback.RetrainingRequest) error {
	body, err := EncodeRetraining(req)
	if err != nil {
		return err
	}
	return rp.pub.publish(ctx, rp.routingKey, body, amqp.Table{
		"x-feedback-id": string(req.FeedbackID),
	})
}

// EncodeRetraining is the wire format of a retraining message.
func EncodeRetraining(req feedback.RetrainingRequest) ([]byte, error) {
	if req.FrameIDs == nil {
		req.FrameIDs = []string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode retraining request: %w", err)
	}
	return body, nil
}
