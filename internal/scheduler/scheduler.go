// Package scheduler runs the pipeline's recurring triggers: source fetch,
// reconciliation, the daily report and job cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/newsdesk/pkg/schedule"
)

var (
	ErrUnknownTrigger = errors.New("scheduler: unknown trigger")
	ErrTriggerRunning = errors.New("scheduler: trigger already running")
)

// Trigger is a named recurring task.
type Trigger struct {
	Name     string
	Schedule schedule.Schedule
	// RunOnStart runs the trigger once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type entry struct {
	Trigger
	running sync.Mutex
}

// Scheduler runs each trigger in its own goroutine. A trigger never overlaps
// itself: a firing that finds the previous run still going is skipped.
type Scheduler struct {
	mu       sync.RWMutex
	triggers map[string]*entry
	logger   *slog.Logger
	now      func() time.Time
}

func New(logger *slog.Logger, triggers ...Trigger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{triggers: make(map[string]*entry), logger: logger, now: time.Now}
	for _, t := range triggers {
		s.Add(t)
	}
	return s
}

// Add registers t, replacing any trigger with the same name. Triggers added
// after Start are only reachable through RunNow.
func (s *Scheduler) Add(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.Name] = &entry{Trigger: t}
}

// Names returns the registered trigger names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.triggers))
	for name := range s.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the triggers until ctx is cancelled, then waits for in-flight
// runs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.triggers))
	for _, e := range s.triggers {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	s.logger.Info("scheduler started", "triggers", len(entries))
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	if e.RunOnStart {
		s.fire(ctx, e)
	}
	if e.Schedule == nil {
		<-ctx.Done()
		return
	}
	for {
		next := e.Schedule.Next(s.now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, e)
		}
	}
}

// fire runs e unless a manual run holds it.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.running.TryLock() {
		s.logger.Warn("trigger still running, skipping", "trigger", e.Name)
		return
	}
	defer e.running.Unlock()
	_ = s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	start := s.now()
	s.logger.Debug("trigger started", "trigger", e.Name)
	err := e.Run(ctx)
	if err != nil {
		s.logger.Error("trigger failed", "trigger", e.Name, "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Info("trigger completed", "trigger", e.Name, "duration", time.Since(start))
	return nil
}

// RunNow runs the named trigger once and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.triggers[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	if !e.running.TryLock() {
		return fmt.Errorf("%w: %q", ErrTriggerRunning, name)
	}
	defer e.running.Unlock()
	return s.run(ctx, e)
}
