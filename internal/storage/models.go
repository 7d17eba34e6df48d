package storage

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

type Category struct {
	ID   uuid.UUID `json:"id" yaml:"id"`
	Name string    `json:"name" yaml:"name"`
}

// Article is the full article as shown on its own page.
type Article struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ImageURL   string     `json:"image_url"`
	Categories []Category `json:"categories"`
	Likes      int64      `json:"likes"`
	Views      int64      `json:"views"`
}

// ArticleSummary is one row of a listing page.
type ArticleSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
	ImageURL  string    `json:"image_url"`
	Likes     int64     `json:"likes"`
	Views     int64     `json:"views"`
}

type SearchHit struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// ListQuery selects a page of articles older than Cursor. A nil Category
// means any category; a nil Cursor means now.
type ListQuery struct {
	Category *uuid.UUID
	Cursor   *time.Time
	Limit    int
}
