package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SimbaBuilds/sheetassist/internal/config"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

func TestPollBackoff_Growth(t *testing.T) {
	bo := &pollBackoff{base: 5 * time.Second, max: 15 * time.Second}

	if d := bo.next(); d != 5*time.Second {
		t.Errorf("attempt 0: expected 5s, got %v", d)
	}
	bo.failure()
	if d := bo.next(); d != 7500*time.Millisecond {
		t.Errorf("attempt 1: expected 7.5s, got %v", d)
	}
	bo.failure()
	if d := bo.next(); d != 11250*time.Millisecond {
		t.Errorf("attempt 2: expected 11.25s, got %v", d)
	}
	bo.failure()
	// 5s * 1.5^3 = 16.875s, clamped to the cap.
	if d := bo.next(); d != 15*time.Second {
		t.Errorf("attempt 3: expected cap 15s, got %v", d)
	}
	// Many more failures stay at the cap.
	for i := 0; i < 20; i++ {
		bo.failure()
	}
	if d := bo.next(); d != 15*time.Second {
		t.Errorf("deep attempt: expected cap 15s, got %v", d)
	}
}

func TestPollBackoff_ResetOnSuccess(t *testing.T) {
	bo := &pollBackoff{base: 5 * time.Second, max: 15 * time.Second}
	bo.failure()
	bo.failure()
	bo.success()
	if d := bo.next(); d != 5*time.Second {
		t.Errorf("expected base interval after reset, got %v", d)
	}
}

func TestPollBackoff_NeverBelowBase(t *testing.T) {
	bo := &pollBackoff{base: 5 * time.Second, max: 15 * time.Second, attempt: -3}
	if d := bo.next(); d != 5*time.Second {
		t.Errorf("expected base floor, got %v", d)
	}
}

func pollService(st *mockStore, cfg Config) *Service {
	return NewService(st, newMockCache(), &mockBackend{}, &mockUploader{}, cfg)
}

func seedJob(st *mockStore, userID uuid.UUID, status string) string {
	jobID := NewJobID(userID)
	st.jobs[jobID] = &models.Job{JobID: jobID, UserID: userID, Status: status}
	return jobID
}

func TestPollJob_RetryExhaustion(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	// No row ever appears: every read is a transient failure.
	cfg := fastConfig()
	cfg.Polling.MaxRetries = 3
	svc := pollService(st, cfg)

	res := svc.pollJob(context.Background(), userID, NewJobID(userID), func(models.ProcessingState) {})
	if res.Status != models.JobStatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Message != "Maximum retry attempts exceeded" {
		t.Errorf("unexpected message %q", res.Message)
	}
	// 3 allowed retries plus the failing read that breached the limit.
	st.mu.Lock()
	calls := st.getJobCalls
	st.mu.Unlock()
	if calls != cfg.Polling.MaxRetries+1 {
		t.Errorf("expected %d reads, got %d", cfg.Polling.MaxRetries+1, calls)
	}
}

func TestPollJob_RetryBudgetIsCumulative(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusProcessing)
	cfg := fastConfig()
	cfg.Polling.MaxRetries = 2
	svc := pollService(st, cfg)

	// Fail twice, recover, then remove the row so reads fail again. A
	// successful read resets the backoff interval but not the retry budget,
	// so the next failure breaches the limit.
	st.getJobErrCount = 2
	done := make(chan *models.JobResult, 1)
	go func() {
		done <- svc.pollJob(context.Background(), userID, jobID, func(models.ProcessingState) {})
	}()

	// Wait for the recovery read, then make the row disappear.
	deadline := time.After(2 * time.Second)
	for {
		st.mu.Lock()
		recovered := st.getJobErrCount == 0 && st.getJobCalls >= 3
		st.mu.Unlock()
		if recovered {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recovery read")
		case <-time.After(time.Millisecond):
		}
	}
	st.mu.Lock()
	delete(st.jobs, jobID)
	st.mu.Unlock()

	res := <-done
	if res.Status != models.JobStatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Message != "Maximum retry attempts exceeded" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestPollJob_WallClockCeiling(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusProcessing)
	cfg := fastConfig()
	cfg.Polling.MaxTotalTime = 20 * time.Millisecond
	svc := pollService(st, cfg)

	res := svc.pollJob(context.Background(), userID, jobID, func(models.ProcessingState) {})
	if res.Status != models.JobStatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Message != "Maximum polling time exceeded" {
		t.Errorf("unexpected message %q", res.Message)
	}
	// The row stays as the backend left it; a timeout is not a cancel.
	if st.job(jobID).Status != models.JobStatusProcessing {
		t.Errorf("timeout must not mutate the job row, got %s", st.job(jobID).Status)
	}
}

func TestPollJob_UnknownStatus(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, "archived")
	svc := pollService(st, fastConfig())

	res := svc.pollJob(context.Background(), userID, jobID, func(models.ProcessingState) {})
	if res.Status != models.JobStatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Message != "Unexpected status: archived" {
		t.Errorf("unexpected message %q", res.Message)
	}
	// One read is enough; the loop never spins on a status it cannot act on.
	st.mu.Lock()
	calls := st.getJobCalls
	st.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 read, got %d", calls)
	}
}

func TestPollJob_CanceledBeforeFirstRead(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusCreated)
	svc := pollService(st, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.pollJob(ctx, userID, jobID, func(models.ProcessingState) {})
	if res.Status != models.JobStatusCanceled {
		t.Fatalf("expected canceled, got %s", res.Status)
	}
	if res.Message != "Request was canceled" {
		t.Errorf("unexpected message %q", res.Message)
	}
	// The guarded transition ran against the store despite the dead context.
	if st.job(jobID).Status != models.JobStatusCanceled {
		t.Errorf("expected job row canceled, got %s", st.job(jobID).Status)
	}
}

func TestPollJob_CancelIsIdempotent(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusProcessing)
	svc := pollService(st, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := svc.pollJob(ctx, userID, jobID, func(models.ProcessingState) {})
	second := svc.pollJob(ctx, userID, jobID, func(models.ProcessingState) {})
	if first.Status != models.JobStatusCanceled || second.Status != models.JobStatusCanceled {
		t.Fatalf("expected canceled twice, got %s / %s", first.Status, second.Status)
	}
	if st.job(jobID).Status != models.JobStatusCanceled {
		t.Errorf("expected canceled row, got %s", st.job(jobID).Status)
	}
}

func TestPollJob_CancelDoesNotClobberTerminal(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusCompleted)
	svc := pollService(st, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.pollJob(ctx, userID, jobID, func(models.ProcessingState) {})
	// The caller walked away, so their view is canceled, but the record of
	// the finished work survives.
	if res.Status != models.JobStatusCanceled {
		t.Fatalf("expected canceled result, got %s", res.Status)
	}
	if st.job(jobID).Status != models.JobStatusCompleted {
		t.Errorf("completed row clobbered: %s", st.job(jobID).Status)
	}
}

func TestPollJob_ProgressUpdates(t *testing.T) {
	st := newMockStore()
	userID := uuid.New()
	jobID := seedJob(st, userID, models.JobStatusProcessing)
	processed, total := 2, 5
	st.jobs[jobID].ProcessedPages = &processed
	st.jobs[jobID].TotalPages = &total
	svc := pollService(st, fastConfig())

	var mu sync.Mutex
	var states []models.ProcessingState
	done := make(chan *models.JobResult, 1)
	go func() {
		done <- svc.pollJob(context.Background(), userID, jobID, func(s models.ProcessingState) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		})
	}()

	// Let a few progress polls land, then finish the job.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(states)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for progress updates")
		case <-time.After(time.Millisecond):
		}
	}
	st.setStatus(jobID, models.JobStatusCompleted)
	res := <-done

	if res.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	first := states[0]
	if first.Status != models.JobStatusProcessing {
		t.Errorf("expected processing state, got %s", first.Status)
	}
	if first.Message != "Processing page 2 of 5" {
		t.Errorf("unexpected progress message %q", first.Message)
	}
	if first.Progress == nil || first.Progress.Processed != 2 || first.Progress.Total == nil || *first.Progress.Total != 5 {
		t.Errorf("unexpected progress payload %+v", first.Progress)
	}
}

func TestProgressState_UnknownTotal(t *testing.T) {
	processed := 3
	job := &models.Job{Status: models.JobStatusProcessing, ProcessedPages: &processed}
	state := progressState(job)
	if state.Message != "Processing page 3 of ?" {
		t.Errorf("unexpected message %q", state.Message)
	}
}

func TestProgressState_Fallbacks(t *testing.T) {
	job := &models.Job{Status: models.JobStatusProcessing}
	if msg := progressState(job).Message; msg != "Processing your request..." {
		t.Errorf("unexpected fallback message %q", msg)
	}

	custom := "Extracting tables"
	job.Message = &custom
	if msg := progressState(job).Message; msg != custom {
		t.Errorf("expected backend message to win, got %q", msg)
	}
}

func TestSleepCtx(t *testing.T) {
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Error("expected full wait to elapse")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, time.Hour) {
		t.Error("expected canceled wait to report false")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("canceled wait took %v", elapsed)
	}
}

func TestServiceDefaults(t *testing.T) {
	svc := NewService(newMockStore(), newMockCache(), &mockBackend{}, &mockUploader{}, Config{})
	p := svc.cfg.Polling
	want := config.PollingConfig{
		BaseInterval: 5 * time.Second,
		MaxInterval:  15 * time.Second,
		MaxRetries:   15,
		MaxTotalTime: time.Hour,
	}
	if p != want {
		t.Errorf("polling defaults: got %+v, want %+v", p, want)
	}
	if svc.cfg.StandardTimeout != 10*time.Minute {
		t.Errorf("standard timeout default: %v", svc.cfg.StandardTimeout)
	}
	if svc.cfg.BatchTimeout != time.Hour {
		t.Errorf("batch timeout default: %v", svc.cfg.BatchTimeout)
	}
	if svc.cfg.ReadTimeout != time.Minute {
		t.Errorf("read timeout default: %v", svc.cfg.ReadTimeout)
	}
}
