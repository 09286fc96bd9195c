// ABOUTME: Background eviction of idle conversations on a cron schedule
// ABOUTME: Runs once at start, then on every schedule tick until the context ends

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultEvictionSchedule runs eviction once a day.
const DefaultEvictionSchedule = "@daily"

// cronParser accepts standard 5-field expressions plus descriptors like @daily and @every.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a usable eviction schedule.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("parsing eviction schedule %q: %w", expr, err)
	}
	return nil
}

// Evictor is the part of the Store the Janitor drives.
type Evictor interface {
	EvictExpired(now time.Time, ttl time.Duration) int
}

// Janitor periodically evicts conversations idle for longer than the retention window.
type Janitor struct {
	store     Evictor
	retention time.Duration
	schedule  cron.Schedule
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor creates a Janitor. An empty schedule means DefaultEvictionSchedule
// and a non-positive retention means DefaultRetention.
func NewJanitor(store Evictor, retention time.Duration, schedule string, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultEvictionSchedule
	}
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing eviction schedule %q: %w", schedule, err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:     store,
		retention: retention,
		schedule:  sched,
		logger:    logger.With("component", "janitor"),
		now:       time.Now,
	}, nil
}

// Sweep runs one eviction pass and returns the number of conversations removed.
func (j *Janitor) Sweep() int {
	return j.store.EvictExpired(j.now(), j.retention)
}

// Run sweeps immediately and then on every scheduled tick. It blocks until
// ctx is cancelled and always returns nil.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	c.Schedule(j.schedule, cron.FuncJob(func() {
		removed := j.Sweep()
		j.logger.Debug("eviction sweep finished", "removed", removed)
	}))

	removed := j.Sweep()
	j.logger.Info("janitor started",
		"retention", j.retention,
		"next_run", j.schedule.Next(j.now()),
		"removed", removed)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	j.logger.Info("janitor stopped")
	return nil
}
