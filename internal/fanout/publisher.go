// Package fanout delivers counter events to every stream subscribed to an
// article. Subscriber sets come from the shared registry; the process only
// writes to connections it holds in its own table and skips the rest.
package fanout

import (
	"context"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"go.uber.org/zap"
)

type SubscriberSource interface {
	SubscribersOf(ctx context.Context, articleID uuid.UUID) ([]string, error)
}

type ConnectionLookup interface {
	Lookup(connectionID string) (live.Sink, bool)
}

// Relay forwards events to other processes. Optional.
type Relay interface {
	Forward(ctx context.Context, evt live.Event) error
}

// Report summarises one delivery pass.
type Report struct {
	Subscribers int
	Delivered   int
	Skipped     int
	Failed      int
}

type Publisher struct {
	subscribers SubscriberSource
	conns       ConnectionLookup
	relay       Relay
	logger      *zap.Logger
}

func NewPublisher(subscribers SubscriberSource, conns ConnectionLookup, logger *zap.Logger) *Publisher {
	return &Publisher{
		subscribers: subscribers,
		conns:       conns,
		logger:      logger.Named("fanout"),
	}
}

func (p *Publisher) SetRelay(relay Relay) {
	p.relay = relay
}

// Publish delivers evt locally and hands it to the relay when one is set.
// It never fails: every problem is logged and the mutation that triggered it
// has already been committed.
func (p *Publisher) Publish(ctx context.Context, evt live.Event) Report {
	report := p.DeliverLocal(ctx, evt)

	if p.relay != nil {
		if err := p.relay.Forward(ctx, evt); err != nil {
			p.logger.Warn("Failed to relay counter event",
				zap.String("article_id", evt.ArticleID.String()),
				zap.String("kind", string(evt.Kind)),
				zap.Error(err))
		}
	}

	return report
}

// DeliverLocal writes evt to every subscribed connection this process holds.
func (p *Publisher) DeliverLocal(ctx context.Context, evt live.Event) Report {
	var report Report

	ids, err := p.subscribers.SubscribersOf(ctx, evt.ArticleID)
	if err != nil {
		p.logger.Warn("Dropping counter event, subscriber lookup failed",
			zap.String("article_id", evt.ArticleID.String()),
			zap.String("kind", string(evt.Kind)),
			zap.Error(err))
		return report
	}
	report.Subscribers = len(ids)

	for _, id := range ids {
		sink, ok := p.conns.Lookup(id)
		if !ok {
			// Held by another process, or already gone.
			report.Skipped++
			continue
		}

		if err := sink.Send(evt); err != nil {
			report.Failed++
			p.logger.Warn("Failed to deliver counter event",
				zap.String("connection_id", id),
				zap.String("article_id", evt.ArticleID.String()),
				zap.Error(err))
			continue
		}
		report.Delivered++
	}

	if report.Delivered > 0 {
		p.logger.Debug("Counter event delivered",
			zap.String("article_id", evt.ArticleID.String()),
			zap.String("kind", string(evt.Kind)),
			zap.Int64("count", evt.Count),
			zap.Int("delivered", report.Delivered))
	}
	return report
}
