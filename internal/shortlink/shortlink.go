// Package shortlink persists and resolves the short identifiers handed out
// for uploaded recordings and plain shortened URLs.
package shortlink

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/recintake/recintake/internal/database"
)

const (
	// KindRedirect resolves with a plain HTTP redirect.
	KindRedirect = "redirect"
	// KindVideo resolves through the gate page and requires the viewer's
	// identity to match the record's owner.
	KindVideo = "video"

	idLength      = 8
	idAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	createRetries = 5
)

type Record struct {
	ID         string
	TargetURL  string
	FileKey    string
	Owner      string
	Kind       string
	Transcript string
	CreatedAt  time.Time
}

var ErrNotFound = errors.New("short link not found")

type Store struct {
	db database.DBTX
}

func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b), nil
}

// Create inserts the record under a fresh short id, retrying on id collision
// a bounded number of times.
func (s *Store) Create(ctx context.Context, rec Record) (string, error) {
	for attempt := 0; attempt < createRetries; attempt++ {
		id, err := generateID()
		if err != nil {
			return "", err
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO short_links (id, target_url, file_key, owner, kind, transcript)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, rec.TargetURL, nullable(rec.FileKey), nullable(rec.Owner), rec.Kind, nullable(rec.Transcript),
		)
		if err == nil {
			return id, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return "", fmt.Errorf("insert short link: %w", err)
	}
	return "", fmt.Errorf("insert short link: exhausted %d id attempts", createRetries)
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec := Record{ID: id}
	var fileKey, owner, transcript *string
	err := s.db.QueryRow(ctx,
		`SELECT target_url, file_key, owner, kind, transcript, created_at FROM short_links WHERE id = $1`,
		id,
	).Scan(&rec.TargetURL, &fileKey, &owner, &rec.Kind, &transcript, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select short link: %w", err)
	}
	rec.FileKey = deref(fileKey)
	rec.Owner = deref(owner)
	rec.Transcript = deref(transcript)
	return &rec, nil
}

// DeleteByFileKey removes every record referencing the storage key. Absence
// of a match is not an error.
func (s *Store) DeleteByFileKey(ctx context.Context, fileKey string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM short_links WHERE file_key = $1`, fileKey); err != nil {
		return fmt.Errorf("delete short links by file key: %w", err)
	}
	return nil
}

// DeleteByTargetURL is the fallback for records created before the file-key
// reference existed (and for plain shortened URLs).
func (s *Store) DeleteByTargetURL(ctx context.Context, targetURL string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM short_links WHERE target_url = $1`, targetURL); err != nil {
		return fmt.Errorf("delete short links by target url: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
