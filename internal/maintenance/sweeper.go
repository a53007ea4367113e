// Package maintenance runs the background housekeeping jobs.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes webhook dedup rows older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically purges aged webhook dedup rows. Providers only
// redeliver for a bounded window, so rows past the retention TTL are noise.
type Sweeper struct {
	cron     *cron.Cron
	purger   Purger
	schedule string
	ttl      time.Duration
	logger   *slog.Logger
}

func NewSweeper(purger Purger, schedule string, ttl time.Duration, log *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Sweeper{
		cron:     cron.New(),
		purger:   purger,
		schedule: schedule,
		ttl:      ttl,
		logger:   log.With(slog.String("service", "maintenance")),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.ttl)
	removed, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("webhook event sweep failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		s.logger.Info("webhook events purged", slog.Int64("removed", removed))
	}
}
