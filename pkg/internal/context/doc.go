// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It carries the current job, worker and job-scoped logger through
// processor execution.
package context
