// Command watch subscribes to the live counters of one article and prints
// every update.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	grpcapi "github.com/yedhukrishnan/performance-backend/internal/api/grpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	article := flag.String("article", "", "article id to watch")
	client := flag.String("client", "", "anonymous client id (random when empty)")
	mode := flag.String("mode", "sse", "transport: sse or grpc")
	baseURL := flag.String("url", "http://localhost:8080", "REST base url")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC address")
	cookieName := flag.String("cookie", "client_id", "client cookie name")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	articleID, err := uuid.Parse(*article)
	if err != nil {
		logger.Fatal("Invalid article id", zap.String("article", *article), zap.Error(err))
	}
	clientID := uuid.New()
	if *client != "" {
		if clientID, err = uuid.Parse(*client); err != nil {
			logger.Fatal("Invalid client id", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching article",
		zap.String("article", articleID.String()),
		zap.String("client", clientID.String()),
		zap.String("mode", *mode))

	switch *mode {
	case "sse":
		err = watchSSE(ctx, *baseURL, *cookieName, articleID, clientID, func(data string) {
			os.Stdout.WriteString(data + "\n")
		})
	case "grpc":
		err = watchGRPC(ctx, *grpcAddr, articleID, clientID)
	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}
	if err != nil {
		logger.Fatal("Watch ended", zap.Error(err))
	}
}

func watchGRPC(ctx context.Context, addr string, articleID, clientID uuid.UUID) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	w, err := grpcapi.Watch(ctx, conn, articleID, clientID)
	if err != nil {
		return err
	}
	for {
		msg, err := w.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		out, err := protojson.Marshal(msg)
		if err != nil {
			return err
		}
		os.Stdout.Write(append(out, '\n'))
	}
}
