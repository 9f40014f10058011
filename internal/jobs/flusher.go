package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/forum"
)

// Flusher drives the periodic write-back of the forum working set. Each
// tick runs one full flush pass through the service, which already
// serializes passes, so a forced flush from the admin endpoint and a
// scheduled tick cannot overlap.
type Flusher struct {
	service  *forum.Service
	logger   *zap.SugaredLogger
	interval time.Duration

	mu        sync.Mutex
	cancelCtx context.CancelFunc
}

func NewFlusher(service *forum.Service, interval time.Duration, logger *zap.SugaredLogger) *Flusher {
	return &Flusher{
		service:  service,
		logger:   logger,
		interval: interval,
	}
}

// Start runs flush passes on the configured interval until the context
// is canceled. A final pass runs on shutdown so recent writes are not
// lost between the last tick and process exit.
func (f *Flusher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancelCtx = cancel
	f.mu.Unlock()

	f.logger.Infow("Starting flusher", "interval", f.interval)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Infow("Flusher stopping; running final flush")
			f.runOnce(context.Background())
			return ctx.Err()
		case <-ticker.C:
			f.runOnce(ctx)
		}
	}
}

func (f *Flusher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelCtx != nil {
		f.cancelCtx()
	}
}

func (f *Flusher) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	runID := uuid.NewString()
	report, err := f.service.Flush(ctx)
	if err != nil {
		f.logger.Errorw("Flush pass failed before writing", "run_id", runID, "error", err)
		return
	}
	if !report.OK() {
		f.logger.Warnw("Flush pass left entities unsaved",
			"run_id", runID, "saved", report.Saved(), "failed", report.Failed())
	}
}
