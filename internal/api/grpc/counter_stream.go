// Package grpcapi exposes live counters over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed:
//
//	request:  {"articleId": "<uuid>", "clientId": "<uuid>"}
//	response: {"articleId": "<uuid>", "kind": "like", "likeCount": 3}
package grpcapi

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"github.com/yedhukrishnan/performance-backend/internal/registry"
	"github.com/yedhukrishnan/performance-backend/internal/stream"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "performance.v1.CounterStream"
	WatchFullMethod = "/" + ServiceName + "/Watch"
)

// CounterStreamService is implemented by the Watch server.
type CounterStreamService interface {
	Watch(req *structpb.Struct, ss grpc.ServerStream) error
}

var CounterStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CounterStreamService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "counter_stream.proto",
}

func watchHandler(srv interface{}, ss grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := ss.RecvMsg(req); err != nil {
		return err
	}
	return srv.(CounterStreamService).Watch(req, ss)
}

type CounterStreamServer struct {
	streams *stream.Manager
	logger  *zap.Logger
	quit    chan struct{}
}

func NewCounterStreamServer(streams *stream.Manager, logger *zap.Logger) *CounterStreamServer {
	return &CounterStreamServer{
		streams: streams,
		logger:  logger.Named("grpc_stream"),
		quit:    make(chan struct{}),
	}
}

// Stop ends every running Watch so a graceful server stop can complete.
func (s *CounterStreamServer) Stop() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

func parseWatchRequest(req *structpb.Struct) (uuid.UUID, uuid.UUID, error) {
	fields := req.GetFields()

	articleID, err := uuid.Parse(fields["articleId"].GetStringValue())
	if err != nil {
		return uuid.Nil, uuid.Nil, status.Error(codes.InvalidArgument, "articleId must be a UUID")
	}

	clientID, err := uuid.Parse(fields["clientId"].GetStringValue())
	if err != nil {
		return uuid.Nil, uuid.Nil, status.Error(codes.InvalidArgument, "clientId is required")
	}
	return articleID, clientID, nil
}

func eventMessage(evt live.Event) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"articleId": evt.ArticleID.String(),
		"kind":      string(evt.Kind),
	}
	switch evt.Kind {
	case live.KindLike:
		fields["likeCount"] = evt.Count
	case live.KindView:
		fields["viewCount"] = evt.Count
	}
	return structpb.NewStruct(fields)
}

// Watch streams counter events for one article until the client goes away.
func (s *CounterStreamServer) Watch(req *structpb.Struct, ss grpc.ServerStream) error {
	articleID, clientID, err := parseWatchRequest(req)
	if err != nil {
		return err
	}

	ctx := ss.Context()
	session, err := s.streams.Open(ctx, articleID, clientID.String())
	if err != nil {
		if errors.Is(err, registry.ErrRegistryUnavailable) {
			return status.Error(codes.Unavailable, "live updates temporarily unavailable")
		}
		return status.Error(codes.Internal, err.Error())
	}
	defer session.Close(ctx)

	heartbeat := time.NewTicker(s.streams.HeartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.quit:
			return status.Error(codes.Unavailable, "server shutting down")

		case evt, ok := <-session.Events():
			if !ok {
				return nil
			}
			msg, err := eventMessage(evt)
			if err != nil {
				s.logger.Error("Failed to encode counter event", zap.Error(err))
				continue
			}
			if err := ss.SendMsg(msg); err != nil {
				return err
			}

		case <-heartbeat.C:
			session.Refresh(ctx)
		}
	}
}

// WatchClient receives counter events from a Watch call.
type WatchClient struct {
	stream grpc.ClientStream
}

// Watch opens a Watch stream on conn.
func Watch(ctx context.Context, conn grpc.ClientConnInterface, articleID, clientID uuid.UUID) (*WatchClient, error) {
	cs, err := conn.NewStream(ctx, &CounterStreamServiceDesc.Streams[0], WatchFullMethod)
	if err != nil {
		return nil, err
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"articleId": articleID.String(),
		"clientId":  clientID.String(),
	})
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: cs}, nil
}

func (w *WatchClient) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
