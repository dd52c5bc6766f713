// Package worker runs scoring asynchronously from the EventBus.
//
// A run-requested event triggers a full scoring run; a dataset-seeded event
// does the same, so a freshly seeded database is scored without an explicit
// API call. Only one run executes at a time.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Worker listens for scoring triggers on the event bus.
type Worker struct {
	bus    domain.EventBus
	runner *scoring.Runner

	mu      sync.Mutex
	running bool

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// RunRequest is the payload of a run-requested event.
type RunRequest struct {
	RequestedBy string `json:"requestedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DatasetSeeded is the payload of a dataset-seeded event, published by the
// seed command after a successful save.
type DatasetSeeded struct {
	Claims int   `json:"claims"`
	Seed   int64 `json:"seed"`
}

// NewWorker creates an async scoring worker.
func NewWorker(bus domain.EventBus, runner *scoring.Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the scoring trigger topics.
func (w *Worker) Start() error {
	for _, topic := range []string{domain.TopicRunRequested, domain.TopicDatasetSeeded} {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleTrigger)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("scoring worker started",
		"topics", []string{domain.TopicRunRequested, domain.TopicDatasetSeeded},
	)
	return nil
}

// handleTrigger runs the scoring pipeline. Triggers arriving while a run is
// in flight are dropped; the in-flight run already covers the whole dataset.
func (w *Worker) handleTrigger(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		slog.Debug("scoring run already in progress, dropping trigger",
			"topic", msg.Topic,
			"message_id", msg.ID,
		)
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	var req RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Warn("malformed run request payload",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	slog.Info("scoring run triggered",
		"topic", msg.Topic,
		"requested_by", req.RequestedBy,
	)

	summary, err := w.runner.Run(ctx)
	if err != nil {
		slog.Error("triggered scoring run failed",
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	slog.Info("triggered scoring run finished",
		"run_id", summary.RunID,
		"claims_scored", summary.ClaimsScored,
		"alerts", summary.Alerts,
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers. Returns the first
// unsubscribe error, if any.
func (w *Worker) Stop() error {
	var firstErr error
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.cancel()
	slog.Info("scoring worker stopped")
	return firstErr
}
