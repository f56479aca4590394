// Package worker runs claimed jobs through their registered processors.
//
// A Worker starts one dispatcher per queue. Each dispatcher promotes due
// delayed jobs, then claims pending jobs while it has a free processor slot,
// so a queue never runs more jobs than its concurrency. A sweeper returns
// jobs whose lock expired without a heartbeat to pending.
//
// Failed attempts move to delayed with exponential backoff until the job's
// attempt budget is spent, then to failed. core.NoRetry errors skip the
// remaining attempts; core.RetryAfter errors replace the computed delay.
//
// Cancelling the context passed to Start stops dispatch. Jobs already
// running are allowed to finish within their timeout.
package worker
