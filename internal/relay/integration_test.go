//go:build integration

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"go.uber.org/zap"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) relay(nodeID string) *RabbitMQ {
	cfg := config.RelayConfig{Enabled: true, URL: s.amqpURL, Exchange: "counter.events.test"}
	r, err := NewRabbitMQ(cfg, nodeID, zap.NewNop())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = r.Close() })
	return r
}

func (s *RabbitMQIntegrationSuite) TestForward_ReachesOtherNodesOnly() {
	a := s.relay("node-a")
	b := s.relay("node-b")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	gotA := make(chan live.Event, 1)
	gotB := make(chan live.Event, 1)
	go func() { _ = a.Consume(ctx, func(_ context.Context, evt live.Event) { gotA <- evt }) }()
	go func() { _ = b.Consume(ctx, func(_ context.Context, evt live.Event) { gotB <- evt }) }()

	evt := live.Event{ArticleID: uuid.New(), Kind: live.KindLike, Count: 7}
	s.Require().NoError(a.Forward(ctx, evt))

	select {
	case got := <-gotB:
		s.Equal(evt, got)
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for relayed event")
	}

	select {
	case got := <-gotA:
		s.Failf("origin node received its own event", "%+v", got)
	case <-time.After(500 * time.Millisecond):
	}
}
