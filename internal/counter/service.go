// Package counter records likes and views and announces the new totals.
package counter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/fanout"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"go.uber.org/zap"
)

// ErrUnauthenticated is returned when an anonymous identity tries to like.
var ErrUnauthenticated = storage.ErrUnauthenticated

type Store interface {
	RecordLike(ctx context.Context, articleID uuid.UUID, id identity.Identity) error
	RecordView(ctx context.Context, articleID uuid.UUID, id identity.Identity) error
	CountLikes(ctx context.Context, articleID uuid.UUID) (int64, error)
	CountViews(ctx context.Context, articleID uuid.UUID) (int64, error)
	HasLiked(ctx context.Context, articleID uuid.UUID, id identity.Identity) (bool, error)
	HasViewed(ctx context.Context, articleID uuid.UUID, id identity.Identity) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, evt live.Event) fanout.Report
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

func NewService(store Store, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.Named("counter"),
	}
}

// Like records a like and publishes the fresh like count. The count is read
// after the insert commits so concurrent likes never announce a stale total.
func (s *Service) Like(ctx context.Context, articleID uuid.UUID, id identity.Identity) (int64, error) {
	if !id.IsUser() {
		return 0, ErrUnauthenticated
	}
	if err := s.store.RecordLike(ctx, articleID, id); err != nil {
		return 0, err
	}

	count, err := s.store.CountLikes(ctx, articleID)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}

	s.publisher.Publish(ctx, live.Event{ArticleID: articleID, Kind: live.KindLike, Count: count})
	return count, nil
}

// View records a view by either identity kind and publishes the fresh view count.
func (s *Service) View(ctx context.Context, articleID uuid.UUID, id identity.Identity) (int64, error) {
	if id.IsZero() {
		return 0, identity.ErrMissingClientID
	}
	if err := s.store.RecordView(ctx, articleID, id); err != nil {
		return 0, err
	}

	count, err := s.store.CountViews(ctx, articleID)
	if err != nil {
		return 0, fmt.Errorf("failed to count views: %w", err)
	}

	s.publisher.Publish(ctx, live.Event{ArticleID: articleID, Kind: live.KindView, Count: count})
	return count, nil
}

// State reports whether id has liked and viewed the article. A zero identity
// has done neither.
func (s *Service) State(ctx context.Context, articleID uuid.UUID, id identity.Identity) (liked, viewed bool, err error) {
	if id.IsZero() {
		return false, false, nil
	}

	if id.IsUser() {
		liked, err = s.store.HasLiked(ctx, articleID, id)
		if err != nil {
			return false, false, fmt.Errorf("failed to check like: %w", err)
		}
	}

	viewed, err = s.store.HasViewed(ctx, articleID, id)
	if err != nil {
		return false, false, fmt.Errorf("failed to check view: %w", err)
	}
	return liked, viewed, nil
}
