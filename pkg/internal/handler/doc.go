// Package handler provides internal reflection-based processor execution.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: metadata and execution for registered job processors
//   - Reflection-based payload unmarshaling and result marshaling
package handler
