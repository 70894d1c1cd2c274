package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gplot-io/gplot/pkg/security"
	"github.com/gplot-io/gplot/pkg/storage"
	"github.com/gplot-io/gplot/pkg/tools"
	"github.com/robfig/cron/v3"
)

// ScheduleDailyPurge sets up a cron job that removes stored images older
// than ageDays every day. ageDays <= 0 disables the job.
func ScheduleDailyPurge(ctx context.Context, store *storage.ImageStorage, ageDays int, logger *slog.Logger) *cron.Cron {
	c := cron.New()
	if ageDays > 0 {
		_, _ = c.AddFunc("@daily", func() {
			tools.Dispatch(context.Background(), "purge_images", func(ctx context.Context) error {
				deleted, err := store.Purge(ageDays, "")
				if err != nil {
					return err
				}
				logger.Info("scheduled purge finished", "deleted", deleted, "age_days", ageDays)
				return nil
			})
		})
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}

// ScheduleBucketCleanup drops rate-limit buckets that have been idle for
// an hour so the limiter's memory stays bounded.
func ScheduleBucketCleanup(ctx context.Context, limiter *security.RateLimiter, logger *slog.Logger) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@hourly", func() {
		tools.Dispatch(context.Background(), "cleanup_buckets", func(ctx context.Context) error {
			removed := limiter.CleanupStaleBuckets(time.Hour)
			if removed > 0 {
				logger.Info("stale rate-limit buckets removed", "count", removed)
			}
			return nil
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}
