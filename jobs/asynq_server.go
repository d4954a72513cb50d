package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/frostline-erp/frostline/internal/jobs"
)

// DashboardRefresher recomputes the cached dashboard summary.
type DashboardRefresher interface {
	RefreshDashboard(ctx context.Context) error
}

// Worker wraps the Asynq server and scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Notifier  *Notifier
	Dashboard DashboardRefresher
	Metrics   *jobmetrics.Metrics
	// WarmupCron is the cron spec for the dashboard warmup; empty disables it.
	WarmupCron string
}

func instrument(metrics *jobmetrics.Metrics, handler asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(t.Type())
		return tracker.End(handler(ctx, t))
	}
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	if cfg.Notifier != nil {
		mux.HandleFunc(TaskNotifyDispatch, instrument(cfg.Metrics, cfg.Notifier.HandleNotifyDispatch))
		mux.HandleFunc(TaskNotifyReceipt, instrument(cfg.Metrics, cfg.Notifier.HandleNotifyReceipt))
		mux.HandleFunc(TaskSensorAlert, instrument(cfg.Metrics, cfg.Notifier.HandleSensorAlert))
	}
	if cfg.Dashboard != nil {
		mux.HandleFunc(TaskDashboardWarmup, instrument(cfg.Metrics, func(ctx context.Context, t *asynq.Task) error {
			return cfg.Dashboard.RefreshDashboard(ctx)
		}))
	}

	var scheduler *asynq.Scheduler
	if cfg.WarmupCron != "" && cfg.Dashboard != nil {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		if _, err := scheduler.Register(cfg.WarmupCron, NewDashboardWarmupTask(), asynq.Queue(QueueDefault)); err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueNotifyDispatch enqueues a dispatch notification.
func (c *Client) EnqueueNotifyDispatch(ctx context.Context, payload NotifyDispatchPayload) error {
	task, err := NewNotifyDispatchTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueNotifyReceipt enqueues a receipt notification.
func (c *Client) EnqueueNotifyReceipt(ctx context.Context, payload NotifyReceiptPayload) error {
	task, err := NewNotifyReceiptTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueSensorAlert enqueues a sensor threshold alert.
func (c *Client) EnqueueSensorAlert(ctx context.Context, payload SensorAlertPayload) error {
	task, err := NewSensorAlertTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
