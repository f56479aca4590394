// Package schedule provides schedules for recurring scheduler triggers.
//
// This package includes:
//   - Schedule interface for defining trigger schedules
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Parse() for schedules read from configuration, including
//     "@daily HH:MM", "@weekly <weekday> HH:MM" and cron expressions
package schedule
