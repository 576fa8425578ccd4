package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/leolab/lottery-engine/internal/lottery"
)

const drawQueueName = "draw.completed"

// Publisher emits DrawCompletedEvents to the "draw.completed" queue.  It
// implements lottery.Observer; every publish is best effort and never
// panics, so a broker outage cannot affect a draw that already resolved.
type Publisher struct {
	url string
}

// NewPublisher returns a publisher for the given broker URL, or nil when
// the URL is empty so the caller can simply skip registration.
func NewPublisher(url string) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url}
}

var _ lottery.Observer = (*Publisher)(nil)

// DrawCompleted publishes the outcome as a persistent JSON message,
// declaring the durable queue idempotently first.
func (p *Publisher) DrawCompleted(ctx context.Context, outcome lottery.DrawOutcome) {
	ev := DrawCompletedEvent{
		DrawID:      outcome.DrawsID,
		RequesterID: outcome.RequesterID,
		SourceIP:    outcome.SourceIP,
		Won:         outcome.Won,
		PrizeID:     outcome.PrizeID,
		PrizeName:   outcome.PrizeName,
		PrizeType:   outcome.PrizeType,
		RuleID:      outcome.RuleID,
		Fallback:    outcome.Fallback,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.publish(ctx, ev); err != nil {
		zap.L().Warn("failed to publish draw event",
			zap.String("draw_id", ev.DrawID), zap.Error(err))
	}
}

func (p *Publisher) publish(ctx context.Context, ev DrawCompletedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(drawQueueName, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",            // default exchange
		drawQueueName, // routing key = queue name
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
