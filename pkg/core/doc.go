// Package core provides the fundamental types and interfaces for the job pipeline.
//
// This package contains:
//   - Job data model with GORM annotations, job kinds, queue names and priorities
//   - Storage interface defining the persistence contract
//   - Event types for queue monitoring
//   - Error taxonomy and retry wrappers for job processing
package core
