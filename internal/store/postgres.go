package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `job_id, user_id, status, message, query, total_pages, processed_pages,
	output_preferences, result_file_path, result_media_type, result_filename,
	error_message, created_at, started_at, completed_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (job_id, user_id, status, message, query, output_preferences, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.JobID, job.UserID, job.Status, job.Message, job.Query,
		job.OutputPreferences, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string, userID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 AND user_id = $2`, jobID, userID,
	).Scan(&j.JobID, &j.UserID, &j.Status, &j.Message, &j.Query, &j.TotalPages, &j.ProcessedPages,
		&j.OutputPreferences, &j.ResultFilePath, &j.ResultMediaType, &j.ResultFilename,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// CancelJob is a compare-and-set: the guard on current status makes sure a
// job the backend already finished is never flipped back to canceled.
func (s *PostgresStore) CancelJob(ctx context.Context, jobID string, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE job_id = $1 AND user_id = $2 AND status IN ($4, $5)`,
		jobID, userID, models.JobStatusCanceled,
		models.JobStatusCreated, models.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish "already terminal" from "no such job".
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1 AND user_id = $2)`,
		jobID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("cancel job existence check: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// --- Usage & request log ---

func (s *PostgresStore) GetUsage(ctx context.Context, userID uuid.UUID) (*models.UsageCounters, error) {
	var u models.UsageCounters
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, requests_this_week, requests_this_month, requests_previous_3_months,
		        images_processed_this_month, unsuccessful_requests_this_month, updated_at
		 FROM user_usage WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.RequestsThisWeek, &u.RequestsThisMonth, &u.RequestsPrevious3Months,
		&u.ImagesProcessedThisMonth, &u.UnsuccessfulRequestsThisMonth, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, entry *models.RequestLogEntry) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin record outcome: %w", err)
	}
	defer tx.Rollback(ctx)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO request_log (id, user_id, job_id, query, file_names, doc_names,
		        processing_time_ms, status, success, error_message, request_type,
		        num_images_processed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (job_id) DO NOTHING`,
		entry.ID, entry.UserID, entry.JobID, entry.Query, entry.FileNames, entry.DocNames,
		entry.ProcessingTimeMS, entry.Status, entry.Success, entry.ErrorMessage,
		entry.RequestType, entry.NumImagesProcessed, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert request log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Outcome for this job was already recorded; leave counters alone.
		return false, nil
	}

	successInc := 0
	failureInc := 0
	imagesInc := 0
	if entry.Success {
		successInc = 1
		imagesInc = entry.NumImagesProcessed
	} else {
		failureInc = 1
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_usage (user_id, requests_this_week, requests_this_month,
		        requests_previous_3_months, images_processed_this_month,
		        unsuccessful_requests_this_month, updated_at)
		 VALUES ($1, $2, $2, $2, $3, $4, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   requests_this_week = user_usage.requests_this_week + $2,
		   requests_this_month = user_usage.requests_this_month + $2,
		   requests_previous_3_months = user_usage.requests_previous_3_months + $2,
		   images_processed_this_month = user_usage.images_processed_this_month + $3,
		   unsuccessful_requests_this_month = user_usage.unsuccessful_requests_this_month + $4,
		   updated_at = NOW()`,
		entry.UserID, successInc, imagesInc, failureInc)
	if err != nil {
		return false, fmt.Errorf("update usage counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit record outcome: %w", err)
	}
	return true, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
