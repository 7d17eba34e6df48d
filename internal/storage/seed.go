package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

type categoriesFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategoriesFile parses a YAML list of categories.
func LoadCategoriesFile(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[uuid.UUID]bool, len(file.Categories))
	for i, c := range file.Categories {
		if c.ID == uuid.Nil || c.Name == "" {
			return nil, fmt.Errorf("%s: category %d needs id and name", path, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%s: duplicate category id %s", path, c.ID)
		}
		seen[c.ID] = true
	}
	return file.Categories, nil
}

// SeedCategories upserts categories by id.
func (p *PostgresClient) SeedCategories(ctx context.Context, categories []Category) error {
	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(`
			INSERT INTO types (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, c.ID, c.Name)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	return nil
}
