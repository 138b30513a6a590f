// Package settings persists the user's preferences: default rating,
// default comment, generation model and prompt, and the API key of the
// generative text service.
//
// The API key is never stored in clear. It is sealed with
// XChaCha20-Poly1305 under a key derived from a per-install secret kept in
// the same database. Anyone holding the whole file can recover it.
package settings

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Defaults.
const (
	DefaultRating  = 5
	DefaultComment = "Tốt"
)

// ErrInvalidRating is returned by Update for ratings outside 1..5.
var ErrInvalidRating = errors.New("settings: rating must be between 1 and 5")

const (
	keyRating  = "default_rating"
	keyComment = "default_comment"
	keyAPIKey  = "api_key"
	keyPrompt  = "system_prompt"
	keyModel   = "model"
)

// Record is the resolved settings. The API key only appears masked.
type Record struct {
	DefaultRating  int    `json:"defaultRating"`
	DefaultComment string `json:"defaultComment"`
	SystemPrompt   string `json:"systemPrompt"`
	Model          string `json:"model"`
	APIKeySet      bool   `json:"apiKeySet"`
	APIKeyMasked   string `json:"apiKeyMasked,omitempty"`
}

// Patch is a partial update; nil fields are left unchanged. An empty APIKey
// removes the stored key.
type Patch struct {
	DefaultRating  *int    `json:"defaultRating,omitempty"`
	DefaultComment *string `json:"defaultComment,omitempty"`
	APIKey         *string `json:"apiKey,omitempty"`
	SystemPrompt   *string `json:"systemPrompt,omitempty"`
	Model          *string `json:"model,omitempty"`
}

// Store is the SQLite-backed settings store.
type Store struct {
	db     *sql.DB
	key    []byte
	logger *slog.Logger
}

// Open opens (creating if needed) the settings database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	secret, err := installSecret(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	key, err := deriveKey(secret)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("settings: opened", "path", path)
	return &Store{db: db, key: key, logger: logger}, nil
}

func installSecret(ctx context.Context, db *sql.DB) ([]byte, error) {
	fresh := make([]byte, secretSize)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("settings: secret: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO install (id, secret, created_at) VALUES (1, ?, ?)`,
		fresh, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("settings: store secret: %w", err)
	}
	var secret []byte
	if err := db.QueryRowContext(ctx, `SELECT secret FROM install WHERE id = 1`).Scan(&secret); err != nil {
		return nil, fmt.Errorf("settings: load secret: %w", err)
	}
	return secret, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) values(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("settings: query: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Get returns the current settings with defaults applied.
func (s *Store) Get(ctx context.Context) (Record, error) {
	vals, err := s.values(ctx)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		DefaultRating:  DefaultRating,
		DefaultComment: DefaultComment,
		SystemPrompt:   vals[keyPrompt],
		Model:          vals[keyModel],
	}
	if v, ok := vals[keyRating]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= MinRating && n <= MaxRating {
			rec.DefaultRating = n
		}
	}
	if v, ok := vals[keyComment]; ok && strings.TrimSpace(v) != "" {
		rec.DefaultComment = v
	}
	if sealed := vals[keyAPIKey]; sealed != "" {
		if key, err := unseal(s.key, sealed); err == nil {
			rec.APIKeySet = true
			rec.APIKeyMasked = Mask(key)
		} else {
			s.logger.Warn("settings: stored api key unreadable", "error", err)
		}
	}
	return rec, nil
}

// Update applies a patch atomically and returns the resulting record.
func (s *Store) Update(ctx context.Context, p Patch) (Record, error) {
	if p.DefaultRating != nil && (*p.DefaultRating < MinRating || *p.DefaultRating > MaxRating) {
		return Record{}, ErrInvalidRating
	}

	set := make(map[string]string)
	var del []string
	if p.DefaultRating != nil {
		set[keyRating] = strconv.Itoa(*p.DefaultRating)
	}
	if p.DefaultComment != nil {
		set[keyComment] = *p.DefaultComment
	}
	if p.SystemPrompt != nil {
		set[keyPrompt] = *p.SystemPrompt
	}
	if p.Model != nil {
		set[keyModel] = strings.TrimSpace(*p.Model)
	}
	if p.APIKey != nil {
		if k := strings.TrimSpace(*p.APIKey); k == "" {
			del = append(del, keyAPIKey)
		} else {
			sealed, err := seal(s.key, k)
			if err != nil {
				return Record{}, err
			}
			set[keyAPIKey] = sealed
		}
	}

	now := time.Now().UnixMilli()
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		for k, v := range set {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, v, now); err != nil {
				return fmt.Errorf("settings: upsert %s: %w", k, err)
			}
		}
		for _, k := range del {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, k); err != nil {
				return fmt.Errorf("settings: delete %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("settings: updated", "keys", len(set)+len(del))
	return s.Get(ctx)
}

// APIKey reveals the stored key, empty when none is set.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyAPIKey).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("settings: load api key: %w", err)
	}
	return unseal(s.key, sealed)
}

// MaskedAPIKey is the displayable form of the stored key.
func (s *Store) MaskedAPIKey(ctx context.Context) (string, error) {
	k, err := s.APIKey(ctx)
	if err != nil {
		return "", err
	}
	return Mask(k), nil
}
