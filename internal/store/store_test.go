package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/SimbaBuilds/sheetassist/internal/store"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sheetassist_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newJob(userID uuid.UUID) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		JobID:  userID.String() + "-" + uuid.NewString()[:8],
		UserID: userID,
		Status: models.JobStatusCreated,
		Query:  "sum the revenue column",
		OutputPreferences: models.OutputPreferences{
			Type:   models.OutputTypeDownload,
			Format: "csv",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Job tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, models.JobStatusCreated, got.Status)
	assert.Equal(t, job.Query, got.Query)
	assert.Equal(t, models.OutputTypeDownload, got.OutputPreferences.Type)
}

func TestJob_GetScopedToUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.JobID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))
	assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicateKey)
}

func TestCancelJob_TransitionsActiveJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	transitioned, err := s.CancelJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, err := s.GetJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestCancelJob_NoOpOnTerminalJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	// Simulate the backend finishing the job.
	_, err := pool.Exec(ctx,
		`UPDATE jobs SET status = $2 WHERE job_id = $1`, job.JobID, models.JobStatusCompleted)
	require.NoError(t, err)

	transitioned, err := s.CancelJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.False(t, transitioned)

	got, err := s.GetJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestCancelJob_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	first, err := s.CancelJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.CancelJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.False(t, second)

	got, err := s.GetJob(ctx, job.JobID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, got.Status)
}

func TestCancelJob_UnknownJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.CancelJob(context.Background(), "no-such-job", uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Usage & request log tests ---

func outcomeEntry(userID uuid.UUID, jobID string, success bool, images int) *models.RequestLogEntry {
	return &models.RequestLogEntry{
		UserID:             userID,
		JobID:              jobID,
		Query:              "sum the revenue column",
		FileNames:          []string{"data.csv"},
		DocNames:           []string{},
		ProcessingTimeMS:   1234,
		Status:             models.JobStatusCompleted,
		Success:            success,
		RequestType:        "query",
		NumImagesProcessed: images,
	}
}

func TestRecordOutcome_BumpsCounters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	recorded, err := s.RecordOutcome(ctx, outcomeEntry(userID, "job-1", true, 3))
	require.NoError(t, err)
	assert.True(t, recorded)

	usage, err := s.GetUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.RequestsThisWeek)
	assert.Equal(t, 1, usage.RequestsThisMonth)
	assert.Equal(t, 3, usage.ImagesProcessedThisMonth)
	assert.Equal(t, 0, usage.UnsuccessfulRequestsThisMonth)
}

func TestRecordOutcome_FailureBumpsUnsuccessful(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	entry := outcomeEntry(userID, "job-1", false, 0)
	entry.Status = models.JobStatusError
	errMsg := "backend unreachable"
	entry.ErrorMessage = &errMsg

	recorded, err := s.RecordOutcome(ctx, entry)
	require.NoError(t, err)
	assert.True(t, recorded)

	usage, err := s.GetUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.RequestsThisWeek)
	assert.Equal(t, 1, usage.UnsuccessfulRequestsThisMonth)
}

func TestRecordOutcome_IdempotentPerJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	recorded, err := s.RecordOutcome(ctx, outcomeEntry(userID, "job-1", true, 2))
	require.NoError(t, err)
	assert.True(t, recorded)

	// Same job id again: no new row, no counter drift.
	recorded, err = s.RecordOutcome(ctx, outcomeEntry(userID, "job-1", true, 2))
	require.NoError(t, err)
	assert.False(t, recorded)

	usage, err := s.GetUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.RequestsThisMonth)
	assert.Equal(t, 2, usage.ImagesProcessedThisMonth)

	var count int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM request_log WHERE job_id = $1`, "job-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordOutcome_AccumulatesAcrossJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	for i, jobID := range []string{"job-1", "job-2", "job-3"} {
		success := i < 2
		_, err := s.RecordOutcome(ctx, outcomeEntry(userID, jobID, success, 1))
		require.NoError(t, err)
	}

	usage, err := s.GetUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.RequestsThisMonth)
	assert.Equal(t, 2, usage.ImagesProcessedThisMonth)
	assert.Equal(t, 1, usage.UnsuccessfulRequestsThisMonth)
}

func TestGetUsage_UnknownUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetUsage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- API key tests ---

func newAPIKey(userID uuid.UUID) *models.APIKey {
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "ci key",
		KeyHash:   "$2a$10$abcdefghijklmnopqrstuv",
		KeyPrefix: "sa_12345",
		Scopes:    []string{"query"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAPIKey_CreateAndGetByPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	key := newAPIKey(uuid.New())
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, key.UserID, keys[0].UserID)
	assert.Equal(t, []string{"query"}, keys[0].Scopes)
}

func TestAPIKey_RevokeHidesKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	key := newAPIKey(userID)
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, userID))

	keys, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Revoking again reports not found.
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, userID), store.ErrNotFound)
}

func TestAPIKey_ListScopedToUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	key := newAPIKey(userID)
	require.NoError(t, s.CreateAPIKey(ctx, key))

	other := newAPIKey(uuid.New())
	other.KeyPrefix = "sa_67890"
	require.NoError(t, s.CreateAPIKey(ctx, other))

	keys, err := s.ListAPIKeys(ctx, userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
}
