package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/metrics"
)

// HandlerFunc verarbeitet einen Job. Ein Fehler führt zu einem erneuten Versuch.
type HandlerFunc func(ctx context.Context, job Job) error

// WorkerConfig steuert Topics und Retries des Workers.
type WorkerConfig struct {
	Topic         string
	PoisonTopic   string
	MaxRetries    int
	RetryInterval time.Duration
	MaxInterval   time.Duration
}

// WorkerConfigFrom reads the worker settings from cfg.
func WorkerConfigFrom(cfg *config.Config) WorkerConfig {
	return WorkerConfig{
		Topic:         cfg.JobTopic,
		PoisonTopic:   cfg.JobPoisonTopic,
		MaxRetries:    cfg.JobMaxRetries,
		RetryInterval: time.Second,
		MaxInterval:   time.Minute,
	}
}

// Worker verteilt Jobs aus dem Topic an die registrierten Handler.
type Worker struct {
	router   *message.Router
	handlers map[Kind]HandlerFunc
	logger   *zap.Logger
}

// NewWorker builds the router. Failed jobs are retried with exponential backoff and then
// moved to the poison topic.
func NewWorker(cfg WorkerConfig, pub message.Publisher, sub message.Subscriber, logger *zap.Logger) (*Worker, error) {
	wmLogger := NewZapLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(pub, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInterval,
			MaxInterval:     cfg.MaxInterval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)

	w := &Worker{
		router:   router,
		handlers: make(map[Kind]HandlerFunc),
		logger:   logger,
	}
	router.AddNoPublisherHandler("oa_workflow_jobs", cfg.Topic, sub, w.dispatch)
	return w, nil
}

// Handle registers fn for kind. Must be called before Run.
func (w *Worker) Handle(kind Kind, fn HandlerFunc) {
	w.handlers[kind] = fn
}

// Run blocks until ctx is cancelled or the router is closed.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running is closed once the router has subscribed.
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

func (w *Worker) Close() error {
	return w.router.Close()
}

func (w *Worker) dispatch(msg *message.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return fmt.Errorf("decode job %s: %w", msg.UUID, err)
	}

	handler, ok := w.handlers[job.Kind]
	if !ok {
		w.logger.Warn("Kein Handler für Jobart, verwerfe Nachricht",
			zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
		metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		return nil
	}

	log := w.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	start := time.Now()
	if err := handler(msg.Context(), job); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "error").Inc()
		log.Warn("Job fehlgeschlagen", zap.Error(err))
		return err
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "ok").Inc()
	log.Debug("Job abgeschlossen", zap.Duration("duration", time.Since(start)))
	return nil
}
