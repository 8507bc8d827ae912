// Package baas is the boundary to the hosted backend: credential checks,
// row persistence, filtered reads and blob uploads. The service treats the
// backend as an external collaborator; Memory is a self-contained
// implementation for local runs and tests, and S3Blobs stores page images in
// S3.
package baas

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailTaken         = errors.New("User already registered")
	ErrUsernameTaken      = errors.New("Username is already taken")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
)

// Table names.
const (
	TablePages         = "journal_pages"
	TableMarkers       = "page_items"
	TableTimelines     = "timelines"
	TablePageTimelines = "page_timelines"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SignUpParams struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// Auth authenticates credentials and resolves bearer tokens.
type Auth interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, p SignUpParams) (Session, error)
	SignOut(ctx context.Context, token string) error
	UserForToken(ctx context.Context, token string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
}

// Row is a table row keyed by column name.
type Row map[string]any

// Filter matches rows whose columns equal every given value.
type Filter map[string]any

// Store persists rows and fetches them by filter.
type Store interface {
	// Insert stores row, assigning an "id" when absent, and returns the stored row.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies patch to every matching row and returns how many matched.
	Update(ctx context.Context, table string, f Filter, patch Row) (int, error)
	// Delete removes every matching row and returns how many matched.
	Delete(ctx context.Context, table string, f Filter) (int, error)
	// Select returns matching rows ordered by insertion.
	Select(ctx context.Context, table string, f Filter) ([]Row, error)
}

// Blobs stores uploaded objects.
type Blobs interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}
