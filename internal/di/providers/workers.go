package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/logger"
)

// RetentionJob runs periodic cleanup of old, low-activity tracking records.
type RetentionJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (j *RetentionJob) Shutdown() error {
	j.cancel()
	<-j.done
	return nil
}

// ProvideRetentionJob provides the retention job. The first run happens one interval
// after startup; a zero interval disables the job.
func ProvideRetentionJob(i do.Injector) (*RetentionJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	trackerHandle := do.MustInvoke[*TrackerHandle](i)

	ctx, cancel := context.WithCancel(context.Background())
	job := &RetentionJob{cancel: cancel, done: make(chan struct{})}

	interval := cfg.Tracking.CleanupInterval
	if interval <= 0 {
		close(job.done)
		log.Info("Retention job disabled by configuration")
		return job, nil
	}

	go func() {
		defer close(job.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := trackerHandle.CleanOldData(ctx); err != nil {
					log.Warn("Retention run failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Retention job started", "interval", interval)

	return job, nil
}
