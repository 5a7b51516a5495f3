package sidecar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/agrafes/internal/apierr"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/pkg/utils"
)

// jobConcurrency bounds how many async jobs run at once; the sidecar holds
// a single DB connection so this mainly protects against unbounded
// goroutine growth under a burst of /jobs/enqueue calls, not lock
// contention.
const jobConcurrency = 4

// jobFunc is the work body of one async job. progress should be called
// with a monotonically increasing value in [0,100]; out-of-range or
// decreasing values are clamped/ignored by the manager.
type jobFunc func(ctx context.Context, progress func(int)) (map[string]interface{}, error)

type jobEntry struct {
	job    *models.Job
	cancel context.CancelFunc
}

// JobManager tracks in-memory, process-scoped async jobs (spec.md §4.9).
// Jobs do not survive a restart; this mirrors the teacher's preference for
// simple in-process state over a persisted queue for single-node tools.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	logger *zap.Logger
	dbDir  string

	sem chan struct{} // bounds concurrent execution to jobConcurrency
	eg  *errgroup.Group
	ctx context.Context
}

// NewJobManager creates a job manager bound to ctx; ctx.Done() stops
// accepting new work and cancels jobs still running. dbDir is the
// directory holding the database file; each job gets its own log file
// under dbDir/runs/<job_id>/run.log (spec.md §6).
func NewJobManager(ctx context.Context, logger *zap.Logger, dbDir string) *JobManager {
	eg, egCtx := errgroup.WithContext(ctx)
	return &JobManager{
		jobs:   make(map[string]*jobEntry),
		logger: logger,
		dbDir:  dbDir,
		sem:    make(chan struct{}, jobConcurrency),
		ctx:    egCtx,
		eg:     eg,
	}
}

// Submit records a new queued job and schedules fn to run asynchronously.
// kind and params are stored verbatim for listing/inspection.
func (m *JobManager) Submit(kind models.JobKind, params map[string]interface{}, fn jobFunc) *models.Job {
	now := time.Now()
	job := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    params,
		Status:    models.JobQueued,
		CreatedAt: now,
	}
	jobCtx, cancel := context.WithCancel(m.ctx)
	entry := &jobEntry{job: job, cancel: cancel}

	m.mu.Lock()
	m.jobs[job.ID] = entry
	m.mu.Unlock()

	m.eg.Go(func() error {
		m.run(jobCtx, entry, fn)
		return nil
	})
	return job
}

func (m *JobManager) run(ctx context.Context, entry *jobEntry, fn jobFunc) {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(entry, nil, ctx.Err())
		return
	}

	m.mu.Lock()
	if entry.job.Status == models.JobCanceled {
		m.mu.Unlock()
		return
	}
	started := time.Now()
	entry.job.Status = models.JobRunning
	entry.job.StartedAt = &started
	m.mu.Unlock()

	runLogger, closeRunLog, err := utils.NewRunLogger(m.logger, m.dbDir, entry.job.ID)
	if err != nil && m.logger != nil {
		m.logger.Warn("open run log", zap.String("job_id", entry.job.ID), zap.Error(err))
	}
	runLogger.Info("job started", zap.String("kind", string(entry.job.Kind)))
	defer func() {
		runLogger.Info("job finished", zap.String("status", string(entry.job.Status)))
		_ = closeRunLog()
	}()

	progress := func(pct int) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		m.mu.Lock()
		if pct > entry.job.Progress {
			entry.job.Progress = pct
		}
		m.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			m.finish(entry, nil, apierr.Internal("job panicked: %v", r))
		}
	}()
	result, err := fn(ctx, progress)
	m.finish(entry, result, err)
}

func (m *JobManager) finish(entry *jobEntry, result map[string]interface{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.job.Status == models.JobCanceled {
		// Cancel() already moved this job to its terminal state; a late
		// result or error from the runner must not overwrite it.
		return
	}
	finished := time.Now()
	entry.job.FinishedAt = &finished
	switch {
	case err == nil:
		entry.job.Status = models.JobDone
		entry.job.Progress = 100
		entry.job.Result = result
	case err == context.Canceled:
		entry.job.Status = models.JobCanceled
	default:
		entry.job.Status = models.JobError
		entry.job.Error = err.Error()
		if apiErr, ok := apierr.As(err); ok {
			entry.job.ErrorCode = string(apiErr.Code)
		} else {
			entry.job.ErrorCode = string(apierr.CodeInternalError)
		}
		if m.logger != nil {
			m.logger.Error("job failed", zap.String("job_id", entry.job.ID), zap.String("kind", string(entry.job.Kind)), zap.Error(err))
		}
	}
}

// Get returns a copy of one job's current state.
func (m *JobManager) Get(id string) (*models.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	j := *entry.job
	return &j, true
}

// List returns a snapshot of every job, most recently created first.
func (m *JobManager) List() []*models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Job, 0, len(m.jobs))
	for _, entry := range m.jobs {
		j := *entry.job
		out = append(out, &j)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Cancel requests cancellation of a running or queued job. It marks the
// job canceled synchronously, under the write lock, so the returned job
// (and the /jobs/{id}/cancel response) reports "canceled" immediately
// rather than whatever status run() last observed. Cancelling a job that
// has already finished is a no-op that returns its current status
// unchanged (idempotent, per spec.md S6).
func (m *JobManager) Cancel(id string) (*models.Job, error) {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, apierr.NotFound("job %s not found", id)
	}
	status := entry.job.Status
	interruptible := status == models.JobQueued || status == models.JobRunning
	if interruptible {
		finished := time.Now()
		entry.job.Status = models.JobCanceled
		entry.job.FinishedAt = &finished
	}
	j := *entry.job
	m.mu.Unlock()

	if interruptible {
		entry.cancel()
	}
	return &j, nil
}

// Wait blocks until every submitted job's goroutine has returned. Used by
// graceful shutdown to avoid racing job completion against process exit.
func (m *JobManager) Wait() {
	_ = m.eg.Wait()
}
