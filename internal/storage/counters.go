package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
)

// counterTable is one of the two append-only action tables.
type counterTable string

const (
	likesTable counterTable = "likes"
	viewsTable counterTable = "views"
)

// identityColumn maps an identity kind to the column that deduplicates it.
// User ids and client ids live in separate columns and are never compared.
func identityColumn(id identity.Identity) (string, error) {
	switch id.Kind() {
	case identity.KindUser:
		return "user_id", nil
	case identity.KindAnonymous:
		return "client_uuid", nil
	default:
		return "", fmt.Errorf("unsupported identity kind %d", id.Kind())
	}
}

// RecordLike stores that id likes the article. Only user identities may like.
func (p *PostgresClient) RecordLike(ctx context.Context, articleID uuid.UUID, id identity.Identity) error {
	if !id.IsUser() {
		return ErrUnauthenticated
	}
	return p.record(ctx, likesTable, articleID, id)
}

// RecordView stores that id viewed the article.
func (p *PostgresClient) RecordView(ctx context.Context, articleID uuid.UUID, id identity.Identity) error {
	return p.record(ctx, viewsTable, articleID, id)
}

func (p *PostgresClient) CountLikes(ctx context.Context, articleID uuid.UUID) (int64, error) {
	return p.count(ctx, likesTable, articleID)
}

func (p *PostgresClient) CountViews(ctx context.Context, articleID uuid.UUID) (int64, error) {
	return p.count(ctx, viewsTable, articleID)
}

func (p *PostgresClient) HasLiked(ctx context.Context, articleID uuid.UUID, id identity.Identity) (bool, error) {
	return p.exists(ctx, likesTable, articleID, id)
}

func (p *PostgresClient) HasViewed(ctx context.Context, articleID uuid.UUID, id identity.Identity) (bool, error) {
	return p.exists(ctx, viewsTable, articleID, id)
}

func (p *PostgresClient) record(ctx context.Context, table counterTable, articleID uuid.UUID, id identity.Identity) error {
	column, err := identityColumn(id)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (article_id, %s) VALUES ($1, $2)`, table, column)
	if _, err := p.pool.Exec(ctx, query, articleID, id.ID()); err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateAction
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (p *PostgresClient) count(ctx context.Context, table counterTable, articleID uuid.UUID) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE article_id = $1`, table)
	if err := p.pool.QueryRow(ctx, query, articleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (p *PostgresClient) exists(ctx context.Context, table counterTable, articleID uuid.UUID, id identity.Identity) (bool, error) {
	column, err := identityColumn(id)
	if err != nil {
		return false, err
	}

	var found bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE article_id = $1 AND %s = $2)`, table, column)
	if err := p.pool.QueryRow(ctx, query, articleID, id.ID()).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return found, nil
}
