package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string, userID uuid.UUID) (*models.Job, error)
	// CancelJob transitions a job to canceled only while its current status
	// is still created or processing. Returns true when the transition was
	// applied; false means the job was already terminal (a no-op, not an
	// error) so a concurrent legitimate completion is never clobbered.
	CancelJob(ctx context.Context, jobID string, userID uuid.UUID) (bool, error)

	GetUsage(ctx context.Context, userID uuid.UUID) (*models.UsageCounters, error)
	// RecordOutcome appends one request-log row and bumps the user's usage
	// counters in a single transaction. The job id acts as an idempotency
	// key: a second call for the same job records nothing and returns false.
	RecordOutcome(ctx context.Context, entry *models.RequestLogEntry) (bool, error)
}
