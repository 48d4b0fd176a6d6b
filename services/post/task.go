package post

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"ideapulse-marketplace/pkg/config"
)

const TaskExpirySweep = "post:expiry:sweep"

// TaskModule wires the expiry sweep into the background worker: a mux handler
// that runs the sweep, and a ticker that enqueues it on the configured
// interval.
var TaskModule = fx.Module("post.task",
	fx.Provide(NewService),
	fx.Invoke(registerTasks),
	fx.Invoke(runScheduler),
)

func registerTasks(mux *asynq.ServeMux, service *Service) {
	mux.HandleFunc(TaskExpirySweep, service.handleExpirySweep)
}

func (s *Service) handleExpirySweep(ctx context.Context, _ *asynq.Task) error {
	closed, err := s.CloseExpired(ctx)
	if err != nil {
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return err
	}

	if closed > 0 {
		zap.L().Info("expiry sweep closed posts", zap.Int("count", closed))
	}
	return nil
}

func runScheduler(lc fx.Lifecycle, cfg *config.Config, client *asynq.Client) {
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(cfg.Sweep.Interval)
				defer ticker.Stop()

				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						task := asynq.NewTask(TaskExpirySweep, nil)
						if _, err := client.Enqueue(task, asynq.Queue("low"), asynq.Unique(cfg.Sweep.Interval)); err != nil {
							zap.L().Error("failed to enqueue expiry sweep", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}
