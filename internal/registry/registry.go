// Package registry keeps article -> connection membership in Redis so that
// every process behind the load balancer sees the same subscriber sets.
//
// Layout:
//
//	article:{articleId}:clients  SET  of connection ids
//	client:{connectionId}        HASH articleId, clientId (expires without heartbeats)
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRegistryUnavailable wraps every failure to reach the store.
var ErrRegistryUnavailable = errors.New("subscription registry unavailable")

const (
	articleKeyPrefix = "article:"
	articleKeySuffix = ":clients"
	clientKeyPrefix  = "client:"

	fieldArticleID = "articleId"
	fieldClientID  = "clientId"

	sweepScanCount = 100
)

func articleKey(articleID uuid.UUID) string {
	return articleKeyPrefix + articleID.String() + articleKeySuffix
}

func clientKey(connectionID string) string {
	return clientKeyPrefix + connectionID
}

type Registry struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps a redis client. ttl bounds how long a connection entry survives
// without a Refresh.
func New(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		client: client,
		ttl:    ttl,
		logger: logger.Named("registry"),
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRegistryUnavailable, op, err)
}

// Subscribe adds connectionID to the article's set and records the reverse
// mapping. Both writes go in one MULTI/EXEC.
func (r *Registry) Subscribe(ctx context.Context, articleID uuid.UUID, connectionID, clientID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, articleKey(articleID), connectionID)
		pipe.HSet(ctx, clientKey(connectionID), fieldArticleID, articleID.String(), fieldClientID, clientID)
		pipe.Expire(ctx, clientKey(connectionID), r.ttl)
		return nil
	})
	if err != nil {
		return unavailable("subscribe", err)
	}
	return nil
}

// Refresh re-asserts a live subscription and pushes its expiry forward. It is
// safe to call after the entry was swept.
func (r *Registry) Refresh(ctx context.Context, articleID uuid.UUID, connectionID, clientID string) error {
	return r.Subscribe(ctx, articleID, connectionID, clientID)
}

// Unsubscribe removes the membership and the reverse mapping. Calling it for
// an entry that is already gone is a no-op.
func (r *Registry) Unsubscribe(ctx context.Context, articleID uuid.UUID, connectionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, articleKey(articleID), connectionID)
		pipe.Del(ctx, clientKey(connectionID))
		return nil
	})
	if err != nil {
		return unavailable("unsubscribe", err)
	}
	return nil
}

// UnsubscribeConnection removes a connection knowing only its id.
func (r *Registry) UnsubscribeConnection(ctx context.Context, connectionID string) error {
	articleID, ok, err := r.articleOf(ctx, connectionID)
	if err != nil {
		return err
	}
	if !ok {
		// Missing or corrupt reverse entry: there is no set to clean.
		if err := r.client.Del(ctx, clientKey(connectionID)).Err(); err != nil {
			return unavailable("unsubscribe", err)
		}
		return nil
	}
	return r.Unsubscribe(ctx, articleID, connectionID)
}

// articleOf returns the article a connection is watching.
func (r *Registry) articleOf(ctx context.Context, connectionID string) (uuid.UUID, bool, error) {
	raw, err := r.client.HGet(ctx, clientKey(connectionID), fieldArticleID).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, unavailable("lookup connection", err)
	}
	articleID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return articleID, true, nil
}

// SubscribersOf returns the connection ids registered for the article. The
// result may contain ids whose stream lives in another process or no longer
// exists at all.
func (r *Registry) SubscribersOf(ctx context.Context, articleID uuid.UUID) ([]string, error) {
	members, err := r.client.SMembers(ctx, articleKey(articleID)).Result()
	if err != nil {
		return nil, unavailable("subscribers", err)
	}
	return members, nil
}

// Sweep removes set members whose connection hash has expired, i.e. streams
// that died without running their close handler. It returns how many
// memberships were removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, articleKeyPrefix+"*"+articleKeySuffix, sweepScanCount).Iterator()
	for iter.Next(ctx) {
		n, err := r.sweepArticle(ctx, iter.Val())
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable("sweep scan", err)
	}

	if removed > 0 {
		r.logger.Info("Swept stale subscriptions", zap.Int("removed", removed))
	}
	return removed, nil
}

func (r *Registry) sweepArticle(ctx context.Context, key string) (int, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return 0, unavailable("sweep members", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	checks := make([]*redis.IntCmd, len(members))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			checks[i] = pipe.Exists(ctx, clientKey(m))
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("sweep exists", err)
	}

	var stale []interface{}
	for i, cmd := range checks {
		if cmd.Val() == 0 {
			stale = append(stale, members[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.client.SRem(ctx, key, stale...).Err(); err != nil {
		return 0, unavailable("sweep remove", err)
	}

	r.logger.Debug("Removed stale members",
		zap.String("article", strings.TrimSuffix(strings.TrimPrefix(key, articleKeyPrefix), articleKeySuffix)),
		zap.Int("count", len(stale)))
	return len(stale), nil
}

// Ping reports whether the store is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
