package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertEpisode inserts a newly discovered episode or refreshes the feed
// metadata of an existing one. Processing state and artifact paths are never
// touched by feed refreshes.
func (s *Store) UpsertEpisode(ctx context.Context, episode *Episode) (*Episode, error) {
	if episode == nil {
		return nil, errors.New("episode is nil")
	}
	if episode.PodcastID == 0 {
		return nil, errors.New("episode podcast id required")
	}
	if episode.EpisodeKey == "" {
		return nil, errors.New("episode key required")
	}
	if episode.EnclosureURL == "" {
		return nil, errors.New("episode enclosure url required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO episodes (
            podcast_id, episode_key, guid, title, enclosure_url, enclosure_type,
            enclosure_length, published_at, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(podcast_id, episode_key) DO UPDATE SET
            title = excluded.title,
            enclosure_url = excluded.enclosure_url,
            enclosure_type = excluded.enclosure_type,
            enclosure_length = excluded.enclosure_length,
            published_at = excluded.published_at,
            updated_at = excluded.updated_at`,
		episode.PodcastID,
		episode.EpisodeKey,
		nullableString(episode.GUID),
		nullableString(episode.Title),
		episode.EnclosureURL,
		nullableString(episode.EnclosureType),
		episode.EnclosureLength,
		nullableString(episode.PublishedAt),
		StatusUnprocessed,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert episode: %w", err)
	}
	return s.GetEpisode(ctx, episode.PodcastID, episode.EpisodeKey)
}

// GetEpisode fetches an episode by podcast and key.
func (s *Store) GetEpisode(ctx context.Context, podcastID int64, episodeKey string) (*Episode, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE podcast_id = ? AND episode_key = ?`,
		podcastID,
		episodeKey,
	)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// GetEpisodeByID fetches an episode by identifier.
func (s *Store) GetEpisodeByID(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode by id: %w", err)
	}
	return episode, nil
}

// ListEpisodes returns a podcast's episodes filtered by status set (or all
// episodes when no status is provided), newest published first.
func (s *Store) ListEpisodes(ctx context.Context, podcastID int64, statuses ...Status) ([]*Episode, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + episodeColumns + ` FROM episodes WHERE podcast_id = ?`
	orderClause := ` ORDER BY published_at DESC, id DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause, podcastID)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, 0, len(statuses)+1)
		args = append(args, podcastID)
		for _, status := range statuses {
			args = append(args, status)
		}
		query := baseQuery + ` AND status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// ClaimEpisode atomically transitions an unprocessed episode to processing.
// It returns false when another worker already holds the episode or it is in
// a terminal state; terminal episodes re-enter the queue only through
// ResetForReprocess. The conditional UPDATE is the mutual exclusion point
// across workers.
func (s *Store) ClaimEpisode(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, attempts = attempts + 1, error_message = NULL,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		now,
		id,
		StatusUnprocessed,
	)
	if err != nil {
		return false, fmt.Errorf("claim episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompletionResult carries everything a successful attempt persists.
type CompletionResult struct {
	OriginalPath   string
	ProcessedPath  string
	TranscriptPath string
	AdRangesJSON   string
	Duration       float64
	EditedDuration float64
	Run            ProcessingRun
}

// CompleteEpisode finalizes a successful attempt: the episode row and its
// processing run are written in a single transaction so a crash cannot leave
// a completed episode without an audit record.
func (s *Store) CompleteEpisode(ctx context.Context, id int64, result CompletionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE episodes
         SET status = ?, error_message = NULL, original_path = ?, processed_path = ?,
             transcript_path = ?, ad_ranges_json = ?, duration_seconds = ?,
             edited_seconds = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(result.OriginalPath),
		nullableString(result.ProcessedPath),
		nullableString(result.TranscriptPath),
		nullableString(result.AdRangesJSON),
		result.Duration,
		result.EditedDuration,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete episode %d: not in processing state", id)
	}

	run := result.Run
	run.EpisodeID = id
	run.Outcome = StatusCompleted
	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

// FailEpisode records a failed attempt with its error message and audit run.
func (s *Store) FailEpisode(ctx context.Context, id int64, message string, run ProcessingRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(
		ctx,
		`UPDATE episodes
         SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("fail episode: %w", err)
	}

	run.EpisodeID = id
	run.Outcome = StatusFailed
	run.ErrorMessage = message
	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fail: %w", err)
	}
	return nil
}

// SetEpisodeOriginal records the cached original download path.
func (s *Store) SetEpisodeOriginal(ctx context.Context, id int64, path string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET original_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set episode original: %w", err)
	}
	return nil
}

// ResetForReprocess moves a completed or failed episode back to unprocessed
// so the next request triggers a fresh attempt.
func (s *Store) ResetForReprocess(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusUnprocessed,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckProcessing resets episodes left in processing by an unclean
// shutdown back to unprocessed. Called once at daemon startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, error_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusUnprocessed,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck episodes: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight episode.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns episodes whose heartbeats expired back to
// unprocessed so they can be claimed again.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusUnprocessed,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale episodes: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of episodes grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM episodes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("episode stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates episode state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusUnprocessed:
			health.Unprocessed += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// ListRuns returns the processing history of an episode, newest first.
func (s *Store) ListRuns(ctx context.Context, episodeID int64) ([]*ProcessingRun, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, episode_id, started_at, finished_at, outcome, error_message,
                prompt_tokens, completion_tokens, cost_usd, ad_ranges_json, seconds_removed
         FROM processing_runs WHERE episode_id = ? ORDER BY id DESC`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*ProcessingRun
	for rows.Next() {
		var (
			run         ProcessingRun
			startedRaw  string
			finishedRaw string
			outcome     string
			errMessage  sql.NullString
			adRanges    sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.EpisodeID,
			&startedRaw,
			&finishedRaw,
			&outcome,
			&errMessage,
			&run.PromptTokens,
			&run.CompletionTokens,
			&run.CostUSD,
			&adRanges,
			&run.SecondsRemoved,
		); err != nil {
			return nil, err
		}
		run.Outcome = Status(outcome)
		run.ErrorMessage = errMessage.String
		run.AdRangesJSON = adRanges.String
		if started, err := parseTimeString(startedRaw); err == nil {
			run.StartedAt = started
		}
		if finished, err := parseTimeString(finishedRaw); err == nil {
			run.FinishedAt = finished
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func insertRun(ctx context.Context, tx *sql.Tx, run ProcessingRun) error {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO processing_runs (
            episode_id, started_at, finished_at, outcome, error_message,
            prompt_tokens, completion_tokens, cost_usd, ad_ranges_json, seconds_removed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.EpisodeID,
		started.UTC().Format(time.RFC3339Nano),
		finished.UTC().Format(time.RFC3339Nano),
		run.Outcome,
		nullableString(run.ErrorMessage),
		run.PromptTokens,
		run.CompletionTokens,
		run.CostUSD,
		nullableString(run.AdRangesJSON),
		run.SecondsRemoved,
	)
	if err != nil {
		return fmt.Errorf("insert processing run: %w", err)
	}
	return nil
}

const episodeColumns = "id, podcast_id, episode_key, guid, title, enclosure_url, enclosure_type, enclosure_length, published_at, status, error_message, original_path, processed_path, transcript_path, ad_ranges_json, duration_seconds, edited_seconds, attempts, last_heartbeat, created_at, updated_at"

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id              int64
		podcastID       int64
		episodeKey      string
		guid            sql.NullString
		title           sql.NullString
		enclosureURL    string
		enclosureType   sql.NullString
		enclosureLength sql.NullInt64
		publishedAt     sql.NullString
		statusStr       string
		errorMessage    sql.NullString
		originalPath    sql.NullString
		processedPath   sql.NullString
		transcriptPath  sql.NullString
		adRanges        sql.NullString
		duration        sql.NullFloat64
		editedSeconds   sql.NullFloat64
		attempts        sql.NullInt64
		heartbeatRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&podcastID,
		&episodeKey,
		&guid,
		&title,
		&enclosureURL,
		&enclosureType,
		&enclosureLength,
		&publishedAt,
		&statusStr,
		&errorMessage,
		&originalPath,
		&processedPath,
		&transcriptPath,
		&adRanges,
		&duration,
		&editedSeconds,
		&attempts,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	episode := &Episode{
		ID:              id,
		PodcastID:       podcastID,
		EpisodeKey:      episodeKey,
		GUID:            guid.String,
		Title:           title.String,
		EnclosureURL:    enclosureURL,
		EnclosureType:   enclosureType.String,
		EnclosureLength: enclosureLength.Int64,
		PublishedAt:     publishedAt.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		OriginalPath:    originalPath.String,
		ProcessedPath:   processedPath.String,
		TranscriptPath:  transcriptPath.String,
		AdRangesJSON:    adRanges.String,
		DurationSeconds: duration.Float64,
		EditedSeconds:   editedSeconds.Float64,
		Attempts:        int(attempts.Int64),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		episode.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		episode.UpdatedAt = updated
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			episode.LastHeartbeat = &heartbeat
		}
	}
	return episode, nil
}
