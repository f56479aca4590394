// Package storage provides storage implementations for the job pipeline.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/security"
)

// maxClaimAttempts bounds how often Dequeue re-selects after losing a claim race.
const maxClaimAttempts = 5

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Storage = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.QueueState{})
}

func prepareJob(job *core.Job) error {
	if err := security.ValidateJobKind(job.Kind); err != nil {
		return err
	}
	if err := security.ValidatePayloadSize(job.Payload); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Queue == "" {
		job.Queue = core.QueueFor(job.Kind)
	}
	if err := security.ValidateQueueName(job.Queue); err != nil {
		return err
	}
	if job.Priority == 0 {
		job.Priority = core.PriorityNormal
	}
	job.MaxAttempts = security.ClampAttempts(job.MaxAttempts)
	if job.Status == "" {
		job.Status = core.StatusPending
		if job.RunAt != nil && job.RunAt.After(time.Now()) {
			job.Status = core.StatusDelayed
		}
	}
	return nil
}

// Enqueue adds a job to its queue.
func (s *GormStorage) Enqueue(ctx context.Context, job *core.Job) error {
	if err := prepareJob(job); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// EnqueueUnique adds a job only if no job with the same unique key is
// pending, delayed or active.
func (s *GormStorage) EnqueueUnique(ctx context.Context, job *core.Job, uniqueKey string) error {
	if err := security.ValidateUniqueKey(uniqueKey); err != nil {
		return err
	}
	if err := prepareJob(job); err != nil {
		return err
	}
	job.UniqueKey = uniqueKey

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&core.Job{}).
			Where("unique_key = ?", uniqueKey).
			Where("status IN ?", core.InFlightStatuses).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return core.ErrDuplicateJob
		}
		return tx.Create(job).Error
	})
}

// Dequeue claims the next pending job of a queue for workerID.
// Jobs are ordered by priority (lower first), then by age. The claim is a
// conditional update on the pending status, so two workers racing for the
// same row cannot both win it. Returns nil, nil when nothing is claimable or
// the queue is paused.
func (s *GormStorage) Dequeue(ctx context.Context, queue string, workerID string, lockFor time.Duration) (*core.Job, error) {
	paused, err := s.IsQueuePaused(ctx, queue)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	for range maxClaimAttempts {
		var candidate core.Job
		err := s.db.WithContext(ctx).
			Select("id").
			Where("queue = ?", queue).
			Where("status = ?", core.StatusPending).
			Order("priority ASC, created_at ASC").
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		now := time.Now()
		lockUntil := now.Add(lockFor)
		result := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ? AND status = ?", candidate.ID, core.StatusPending).
			Updates(map[string]any{
				"status":            core.StatusActive,
				"locked_by":         workerID,
				"locked_until":      lockUntil,
				"last_heartbeat_at": now,
				"started_at":        now,
				"run_at":            nil,
				"attempt":           gorm.Expr("attempt + 1"),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker claimed it first.
			continue
		}

		var job core.Job
		if err := s.db.WithContext(ctx).First(&job, "id = ?", candidate.ID).Error; err != nil {
			return nil, err
		}
		return &job, nil
	}
	return nil, nil
}

// Complete marks an active job as successfully completed.
// Validates that the worker owns the job before completing.
func (s *GormStorage) Complete(ctx context.Context, jobID string, workerID string, result []byte) error {
	now := time.Now()
	updates := map[string]any{
		"status":       core.StatusCompleted,
		"completed_at": now,
		"last_error":   "",
		"locked_by":    "",
		"locked_until": nil,
	}
	if len(result) > 0 {
		updates["result"] = result
	}

	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(updates)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Fail records a failed attempt. With a retryAt the job moves to delayed
// until that time, otherwise it becomes terminally failed.
// Error messages are sanitized before storage.
func (s *GormStorage) Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) error {
	updates := map[string]any{
		"last_error":   security.SanitizeErrorMessage(errMsg),
		"locked_by":    "",
		"locked_until": nil,
	}

	if retryAt != nil {
		updates["status"] = core.StatusDelayed
		updates["run_at"] = *retryAt
	} else {
		updates["status"] = core.StatusFailed
		updates["completed_at"] = time.Now()
	}

	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(updates)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// PromoteDueJobs moves delayed jobs whose run_at has passed back to pending.
func (s *GormStorage) PromoteDueJobs(ctx context.Context, queue string, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("queue = ?", queue).
		Where("status = ?", core.StatusDelayed).
		Where("(run_at IS NULL OR run_at <= ?)", now).
		Update("status", core.StatusPending)
	return res.RowsAffected, res.Error
}

// Heartbeat extends the lock on an active job.
func (s *GormStorage) Heartbeat(ctx context.Context, jobID string, workerID string, lockFor time.Duration) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(map[string]any{
			"locked_until":      now.Add(lockFor),
			"last_heartbeat_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// ReleaseStaleLocks recovers active jobs whose lock expired before now.
// Jobs with attempts left return to pending; the rest fail terminally so the
// attempt budget is never exceeded.
func (s *GormStorage) ReleaseStaleLocks(ctx context.Context, now time.Time) (int64, error) {
	var released int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exhausted := tx.Model(&core.Job{}).
			Where("status = ?", core.StatusActive).
			Where("locked_until < ?", now).
			Where("attempt >= max_attempts").
			Updates(map[string]any{
				"status":       core.StatusFailed,
				"last_error":   "lock expired without heartbeat",
				"completed_at": now,
				"locked_by":    "",
				"locked_until": nil,
			})
		if exhausted.Error != nil {
			return exhausted.Error
		}

		requeued := tx.Model(&core.Job{}).
			Where("status = ?", core.StatusActive).
			Where("locked_until < ?", now).
			Updates(map[string]any{
				"status":       core.StatusPending,
				"locked_by":    "",
				"locked_until": nil,
			})
		if requeued.Error != nil {
			return requeued.Error
		}
		released = exhausted.RowsAffected + requeued.RowsAffected
		return nil
	})
	return released, err
}

// GetJob retrieves a job by ID. Returns nil, nil when it does not exist.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
