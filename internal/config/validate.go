package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/schedule"
)

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	for name, qc := range c.Queues {
		switch name {
		case core.QueueContent, core.QueueImage, core.QueueSocial:
		default:
			errs = append(errs, fmt.Errorf("queues.%s: %w", name, core.ErrUnknownQueue))
			continue
		}
		if qc.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("queues.%s.max_attempts must be at least 1", name))
		}
		if qc.BaseDelay <= 0 {
			errs = append(errs, fmt.Errorf("queues.%s.base_delay must be positive", name))
		}
		if qc.Concurrency < 1 {
			errs = append(errs, fmt.Errorf("queues.%s.concurrency must be at least 1", name))
		}
		if qc.Timeout < 0 {
			errs = append(errs, fmt.Errorf("queues.%s.timeout must not be negative", name))
		}
	}

	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Worker.LockDuration <= 0 {
		errs = append(errs, errors.New("worker.lock_duration must be positive"))
	}

	for key, expr := range map[string]string{
		"scheduler.fetch":     c.Scheduler.Fetch,
		"scheduler.reconcile": c.Scheduler.Reconcile,
		"scheduler.report":    c.Scheduler.Report,
		"scheduler.cleanup":   c.Scheduler.Cleanup,
	} {
		if _, err := schedule.Parse(expr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if c.Scheduler.ReconcileBatch < 1 {
		errs = append(errs, errors.New("scheduler.reconcile_batch must be at least 1"))
	}
	if c.Scheduler.Retention <= 0 {
		errs = append(errs, errors.New("scheduler.retention must be positive"))
	}

	switch c.Content.FailurePolicy {
	case PolicyRetry, PolicyAbsorb:
	default:
		errs = append(errs, fmt.Errorf("content.failure_policy %q is not one of retry, absorb", c.Content.FailurePolicy))
	}

	switch c.AI.Provider {
	case "", "openai", "cohere":
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q is not one of openai, cohere", c.AI.Provider))
	}

	switch c.Media.Renderer {
	case "placeholder":
	case "http":
		if c.Media.RenderEndpoint == "" {
			errs = append(errs, errors.New("media.render_endpoint is required for the http renderer"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.renderer %q is not one of placeholder, http", c.Media.Renderer))
	}
	switch c.Media.Storage {
	case "local":
		if c.Media.LocalDir == "" {
			errs = append(errs, errors.New("media.local_dir is required for local storage"))
		}
	case "s3":
		if c.Media.S3Bucket == "" {
			errs = append(errs, errors.New("media.s3_bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.storage %q is not one of local, s3", c.Media.Storage))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.ReportTopic == "" {
		errs = append(errs, errors.New("kafka.report_topic is required when brokers are set"))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" {
			errs = append(errs, fmt.Errorf("sources[%d].name is required", i))
			continue
		}
		if seen[src.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = true
		if len(src.Feeds) == 0 {
			errs = append(errs, fmt.Errorf("sources[%d] (%s): at least one feed is required", i, src.Name))
		}
	}

	return errors.Join(errs...)
}
