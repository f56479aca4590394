package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/newsdesk/pkg/core"
)

func applyFilter(q *gorm.DB, filter core.JobFilter) *gorm.DB {
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Queue != "" {
		q = q.Where("queue = ?", filter.Queue)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	return q
}

// FindJobs returns jobs matching the filter, newest first.
func (s *GormStorage) FindJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, error) {
	q := applyFilter(s.db.WithContext(ctx).Model(&core.Job{}), filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var jobs []*core.Job
	err := q.Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// QueueStats returns job counts by status for one queue plus its pause state.
func (s *GormStorage) QueueStats(ctx context.Context, queue string) (*core.QueueStats, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, count(*) as count").
		Where("queue = ?", queue).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &core.QueueStats{Queue: queue}
	for _, r := range rows {
		switch core.JobStatus(r.Status) {
		case core.StatusPending:
			stats.Waiting += r.Count
		case core.StatusActive:
			stats.Active += r.Count
		case core.StatusCompleted:
			stats.Completed += r.Count
		case core.StatusFailed:
			stats.Failed += r.Count
		case core.StatusDelayed:
			stats.Delayed += r.Count
		case core.StatusCancelled:
			stats.Cancelled += r.Count
		}
	}

	stats.Paused, err = s.IsQueuePaused(ctx, queue)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CancelJobs moves pending and delayed jobs matching the filter to cancelled.
// Active and terminal jobs are never touched, whatever statuses the filter names.
func (s *GormStorage) CancelJobs(ctx context.Context, filter core.JobFilter) (int64, error) {
	filter.Statuses = cancellable(filter.Statuses)
	if len(filter.Statuses) == 0 {
		return 0, nil
	}

	q := applyFilter(s.db.WithContext(ctx).Model(&core.Job{}), filter)
	res := q.Updates(map[string]any{
		"status":       core.StatusCancelled,
		"completed_at": time.Now(),
		"locked_by":    "",
		"locked_until": nil,
	})
	return res.RowsAffected, res.Error
}

func cancellable(requested []core.JobStatus) []core.JobStatus {
	if len(requested) == 0 {
		return []core.JobStatus{core.StatusPending, core.StatusDelayed}
	}
	var out []core.JobStatus
	for _, st := range requested {
		if st == core.StatusPending || st == core.StatusDelayed {
			out = append(out, st)
		}
	}
	return out
}

// RetryJob resets a failed or cancelled job back to pending for re-execution.
func (s *GormStorage) RetryJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFound("job", jobID)
	}
	if err != nil {
		return nil, err
	}

	if job.Status != core.StatusFailed && job.Status != core.StatusCancelled {
		return nil, fmt.Errorf("%w: %q", core.ErrCannotRetryStatus, job.Status)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ?", job.ID, job.Status).
		Updates(map[string]any{
			"status":       core.StatusPending,
			"attempt":      0,
			"last_error":   "",
			"locked_by":    "",
			"locked_until": nil,
			"run_at":       nil,
			"started_at":   nil,
			"completed_at": nil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: job %s changed concurrently", core.ErrCannotRetryStatus, job.ID)
	}

	job.Status = core.StatusPending
	job.Attempt = 0
	job.LastError = ""
	job.LockedBy = ""
	job.LockedUntil = nil
	job.RunAt = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.UpdatedAt = now
	return &job, nil
}

// DeleteTerminalBefore permanently removes completed, failed and cancelled
// jobs that finished before cutoff. Pending, delayed and active jobs are
// never deleted regardless of age.
func (s *GormStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ?", core.TerminalStatuses).
		Where("completed_at IS NOT NULL AND completed_at < ?", cutoff).
		Delete(&core.Job{})
	return res.RowsAffected, res.Error
}

// CountCompletedBetween counts jobs that completed in [from, to).
func (s *GormStorage) CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusCompleted).
		Where("completed_at >= ? AND completed_at < ?", from, to).
		Count(&count).Error
	return count, err
}

// PauseQueue stops dispatch from a queue. Active jobs are unaffected.
func (s *GormStorage) PauseQueue(ctx context.Context, queue string) error {
	now := time.Now()
	return s.setPaused(ctx, &core.QueueState{Queue: queue, Paused: true, PausedAt: &now})
}

// UnpauseQueue resumes dispatch from a queue.
func (s *GormStorage) UnpauseQueue(ctx context.Context, queue string) error {
	return s.setPaused(ctx, &core.QueueState{Queue: queue, Paused: false})
}

func (s *GormStorage) setPaused(ctx context.Context, state *core.QueueState) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "queue"}},
			DoUpdates: clause.AssignmentColumns([]string{"paused", "paused_at", "updated_at"}),
		}).
		Select("*").
		Create(state).Error
}

// GetPausedQueues returns the names of all paused queues.
func (s *GormStorage) GetPausedQueues(ctx context.Context) ([]string, error) {
	var queues []string
	err := s.db.WithContext(ctx).
		Model(&core.QueueState{}).
		Where("paused = ?", true).
		Order("queue ASC").
		Pluck("queue", &queues).Error
	return queues, err
}

// IsQueuePaused reports whether a queue is paused.
func (s *GormStorage) IsQueuePaused(ctx context.Context, queue string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.QueueState{}).
		Where("queue = ? AND paused = ?", queue, true).
		Count(&count).Error
	return count > 0, err
}
