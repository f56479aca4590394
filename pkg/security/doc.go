// Package security provides validation, sanitization, and limits for the job pipeline.
//
// This package includes:
//   - Input validation for job kinds, queue names, payload sizes and unique keys
//   - Error message sanitization that redacts credentials before storage
//   - Clamping functions to enforce safe limits on attempts and concurrency
package security
