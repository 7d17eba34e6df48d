package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetArticle loads one article with its hero image, categories and current
// like/view counts.
func (p *PostgresClient) GetArticle(ctx context.Context, articleID uuid.UUID) (*Article, error) {
	var a Article
	err := p.pool.QueryRow(ctx, `
		SELECT a.id, a.title, a.summary, a.content, a.timestamp,
		       COALESCE(i.image_url, ''),
		       (SELECT COUNT(*) FROM likes l WHERE l.article_id = a.id),
		       (SELECT COUNT(*) FROM views v WHERE v.article_id = a.id)
		FROM articles a
		LEFT JOIN images i ON i.article_id = a.id AND i.image_type = 'hero'
		WHERE a.id = $1
	`, articleID).Scan(
		&a.ID, &a.Title, &a.Summary, &a.Content, &a.Timestamp,
		&a.ImageURL, &a.Likes, &a.Views,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT t.id, t.name
		FROM types t
		JOIN article_types at ON at.type_id = t.id
		WHERE at.article_id = $1
		ORDER BY t.name
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get article categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
	if err != nil {
		return nil, fmt.Errorf("failed to scan article categories: %w", err)
	}
	a.Categories = categories

	return &a, nil
}

// ListArticles returns the newest articles older than q.Cursor.
func (p *PostgresClient) ListArticles(ctx context.Context, q ListQuery) ([]ArticleSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.id, a.title, a.summary, a.timestamp,
		       COALESCE(i.image_url, ''),
		       (SELECT COUNT(*) FROM likes l WHERE l.article_id = a.id),
		       (SELECT COUNT(*) FROM views v WHERE v.article_id = a.id)
		FROM articles a
		LEFT JOIN images i ON i.article_id = a.id AND i.image_type = 'listing'
		WHERE a.timestamp < COALESCE($1::timestamptz, NOW())
		  AND ($3::uuid IS NULL OR EXISTS (
		        SELECT 1 FROM article_types at
		        WHERE at.article_id = a.id AND at.type_id = $3))
		ORDER BY a.timestamp DESC
		LIMIT $2
	`, q.Cursor, q.Limit, q.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	articles, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ArticleSummary])
	if err != nil {
		return nil, fmt.Errorf("failed to scan articles: %w", err)
	}
	return articles, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes term match literally inside an ILIKE pattern using '\'
// as the escape character.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// SearchArticles matches titles case-insensitively. The term is a literal
// substring; '%' and '_' are not wildcards.
func (p *PostgresClient) SearchArticles(ctx context.Context, term string, category *uuid.UUID, limit int) ([]SearchHit, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.id, a.title
		FROM articles a
		WHERE a.title ILIKE '%' || $1 || '%' ESCAPE '\'
		  AND ($3::uuid IS NULL OR EXISTS (
		        SELECT 1 FROM article_types at
		        WHERE at.article_id = a.id AND at.type_id = $3))
		ORDER BY a.timestamp DESC
		LIMIT $2
	`, escapeLike(term), limit, category)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}

	hits, err := pgx.CollectRows(rows, pgx.RowToStructByPos[SearchHit])
	if err != nil {
		return nil, fmt.Errorf("failed to scan search results: %w", err)
	}
	return hits, nil
}

func (p *PostgresClient) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}
	return categories, nil
}
