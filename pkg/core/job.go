// Package core provides the domain models and interfaces for the newsdesk job pipeline.
package core

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusActive    JobStatus = "active"
	StatusDelayed   JobStatus = "delayed" // Waiting on backoff until RunAt
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// TerminalStatuses lists the statuses a job never leaves on its own.
var TerminalStatuses = []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}

// InFlightStatuses lists the statuses of jobs that still have work ahead of them.
var InFlightStatuses = []JobStatus{StatusPending, StatusActive, StatusDelayed}

// IsTerminal reports whether s is Completed, Failed or Cancelled.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobKind identifies the unit of work a job performs.
type JobKind string

const (
	KindContentProcess JobKind = "content.process"
	KindGenerateImage  JobKind = "image.generate"
	KindPublishSocial  JobKind = "social.publish"
)

// Queue names.
const (
	QueueContent = "content-processing"
	QueueImage   = "image-generation"
	QueueSocial  = "social-publication"
)

// QueueFor returns the queue a job kind is routed to.
func QueueFor(kind JobKind) string {
	switch kind {
	case KindContentProcess:
		return QueueContent
	case KindGenerateImage:
		return QueueImage
	case KindPublishSocial:
		return QueueSocial
	}
	return ""
}

// Priority levels. Lower values are dispatched first.
const (
	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10
)

// Job represents a unit of work to be processed.
type Job struct {
	ID              string         `gorm:"primaryKey;size:36"`
	EntityID        string         `gorm:"index;size:64"` // Owning article
	Kind            JobKind        `gorm:"index;size:64;not null"`
	Queue           string         `gorm:"index;size:255;not null"`
	Priority        int            `gorm:"index;default:5"`
	Status          JobStatus      `gorm:"index;size:20;default:'pending'"`
	Attempt         int            `gorm:"default:0"`
	MaxAttempts     int            `gorm:"default:3"`
	BackoffBase     time.Duration  `gorm:"default:0"` // Zero uses the queue default
	Payload         datatypes.JSON `gorm:"type:json"`
	Result          datatypes.JSON `gorm:"type:json"`
	LastError       string         `gorm:"type:text"`
	RunAt           *time.Time     `gorm:"index"` // Not-before time for delayed jobs
	StartedAt       *time.Time
	CompletedAt     *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime"`
	LockedBy        string     `gorm:"size:255"`
	LockedUntil     *time.Time `gorm:"index"`
	LastHeartbeatAt *time.Time
	UniqueKey       string `gorm:"index;size:255"`
}

// CanRetry reports whether another attempt is allowed after the current one fails.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// JobFilter narrows job queries and bulk updates. Zero fields match everything.
type JobFilter struct {
	EntityID string
	Kind     JobKind
	Queue    string
	Statuses []JobStatus
	Limit    int
	Offset   int
}

// QueueStats holds per-status job counts for one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Delayed   int64  `json:"delayed"`
	Cancelled int64  `json:"cancelled"`
	Paused    bool   `json:"paused"`
}
