package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"podsnip/internal/config"
)

// Store manages podcast and episode persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the episode database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "podsnip.db")
	return OpenPath(dbPath)
}

// OpenPath opens the database at an explicit location. Pragmas ride the DSN
// so every pooled connection gets them, not only the one that happens to run
// a PRAGMA statement.
func OpenPath(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// PodcastParams describes a new subscription. Slug and FeedURL are required;
// the rest are optional settings and metadata.
type PodcastParams struct {
	Slug            string
	FeedURL         string
	Title           string
	Model           string
	DetectionPrompt string
}

// AddPodcast inserts a new podcast subscription.
func (s *Store) AddPodcast(ctx context.Context, params PodcastParams) (*Podcast, error) {
	slug := strings.TrimSpace(params.Slug)
	feedURL := strings.TrimSpace(params.FeedURL)
	if slug == "" {
		return nil, errors.New("podcast slug required")
	}
	if feedURL == "" {
		return nil, errors.New("podcast feed url required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO podcasts (slug, feed_url, title, model, detection_prompt, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slug,
		feedURL,
		nullableString(params.Title),
		nullableString(params.Model),
		nullableString(params.DetectionPrompt),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert podcast: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetPodcastByID(ctx, id)
}

// GetPodcastByID fetches a podcast by identifier.
func (s *Store) GetPodcastByID(ctx context.Context, id int64) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	return podcast, nil
}

// GetPodcastBySlug fetches a podcast by its slug.
func (s *Store) GetPodcastBySlug(ctx context.Context, slug string) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE slug = ?`, strings.TrimSpace(slug))
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast by slug: %w", err)
	}
	return podcast, nil
}

// ListPodcasts returns all subscriptions ordered by slug.
func (s *Store) ListPodcasts(ctx context.Context) ([]*Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+podcastColumns+` FROM podcasts ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []*Podcast
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, podcast)
	}
	return podcasts, rows.Err()
}

// RemovePodcast deletes a subscription and, via cascade, its episodes.
func (s *Store) RemovePodcast(ctx context.Context, slug string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM podcasts WHERE slug = ?`, strings.TrimSpace(slug))
	if err != nil {
		return false, fmt.Errorf("delete podcast: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkPodcastRefreshed records the outcome of a feed refresh. Title and
// artwork follow the source feed; empty values leave the stored ones alone.
func (s *Store) MarkPodcastRefreshed(ctx context.Context, id int64, title, artworkURL string, refreshErr error) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var errMessage any
	if refreshErr != nil {
		errMessage = refreshErr.Error()
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE podcasts
         SET title = COALESCE(?, title), artwork_url = COALESCE(?, artwork_url),
             last_refreshed_at = ?, last_refresh_error = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(title),
		nullableString(artworkURL),
		now,
		errMessage,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark podcast refreshed: %w", err)
	}
	return nil
}

const podcastColumns = "id, slug, feed_url, title, artwork_url, model, detection_prompt, created_at, updated_at, last_refreshed_at, last_refresh_error"

func scanPodcast(scanner interface{ Scan(dest ...any) error }) (*Podcast, error) {
	var (
		id           int64
		slug         string
		feedURL      string
		title        sql.NullString
		artworkURL   sql.NullString
		model        sql.NullString
		prompt       sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		refreshedRaw sql.NullString
		refreshError sql.NullString
	)
	if err := scanner.Scan(&id, &slug, &feedURL, &title, &artworkURL, &model, &prompt, &createdRaw, &updatedRaw, &refreshedRaw, &refreshError); err != nil {
		return nil, err
	}
	podcast := &Podcast{
		ID:               id,
		Slug:             slug,
		FeedURL:          feedURL,
		Title:            title.String,
		ArtworkURL:       artworkURL.String,
		Model:            model.String,
		DetectionPrompt:  prompt.String,
		LastRefreshError: refreshError.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		podcast.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		podcast.UpdatedAt = updated
	}
	if refreshedRaw.Valid {
		if refreshed, err := parseTimeString(refreshedRaw.String); err == nil {
			podcast.LastRefreshedAt = &refreshed
		}
	}
	return podcast, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// CheckHealth returns diagnostic information about the episode database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"podcasts", "episodes", "processing_runs"}
	for _, table := range expected {
		var name string
		row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err := row.Scan(&name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				health.MissingTables = append(health.MissingTables, table)
				continue
			}
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
		health.TablesPresent = append(health.TablesPresent, name)
	}

	if len(health.MissingTables) == 0 {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM episodes")
		if err := row.Scan(&health.TotalEpisodes); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count episodes: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
