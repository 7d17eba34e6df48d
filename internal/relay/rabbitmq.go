// Package relay carries counter events between backend processes over a
// RabbitMQ fanout exchange. Each process publishes what it produced and
// consumes what the others produced through its own exclusive queue.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"go.uber.org/zap"
)

// Message is the wire form of a relayed event.
type Message struct {
	Origin    string    `json:"origin"`
	ArticleID uuid.UUID `json:"articleId"`
	Kind      live.Kind `json:"kind"`
	Count     int64     `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliverFunc hands a relayed event to the local fan-out.
type DeliverFunc func(ctx context.Context, evt live.Event)

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	nodeID   string
	logger   *zap.Logger
}

func NewRabbitMQ(cfg config.RelayConfig, nodeID string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Server-named, exclusive and auto-deleted: the queue lives exactly as
	// long as this process.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger = logger.Named("relay")
	logger.Info("Connected to rabbitmq",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", q.Name),
		zap.String("node_id", nodeID))

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    q.Name,
		nodeID:   nodeID,
		logger:   logger,
	}, nil
}

func encodeMessage(nodeID string, evt live.Event, now time.Time) ([]byte, error) {
	return json.Marshal(Message{
		Origin:    nodeID,
		ArticleID: evt.ArticleID,
		Kind:      evt.Kind,
		Count:     evt.Count,
		Timestamp: now.UTC(),
	})
}

// decodeMessage returns ok=false for messages this node published itself.
func decodeMessage(nodeID string, body []byte) (live.Event, bool, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return live.Event{}, false, fmt.Errorf("failed to decode relay message: %w", err)
	}
	if msg.Origin == nodeID {
		return live.Event{}, false, nil
	}
	if _, err := live.ParseKind(string(msg.Kind)); err != nil {
		return live.Event{}, false, err
	}
	if msg.ArticleID == uuid.Nil {
		return live.Event{}, false, fmt.Errorf("relay message without article id")
	}
	return live.Event{ArticleID: msg.ArticleID, Kind: msg.Kind, Count: msg.Count}, true, nil
}

// Forward publishes evt for the other processes.
func (r *RabbitMQ) Forward(ctx context.Context, evt live.Event) error {
	body, err := encodeMessage(r.nodeID, evt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Transient,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

// Consume delivers events from other processes until ctx is cancelled or the
// broker closes the channel.
func (r *RabbitMQ) Consume(ctx context.Context, deliver DeliverFunc) error {
	deliveries, err := r.channel.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay delivery channel closed")
			}
			evt, remote, err := decodeMessage(r.nodeID, d.Body)
			if err != nil {
				r.logger.Warn("Discarding relay message", zap.Error(err))
				continue
			}
			if remote {
				deliver(ctx, evt)
			}
		}
	}
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
