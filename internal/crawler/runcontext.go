package crawler

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunContext carries the run-wide identity, logger and metrics through both
// phases. It is created once at process start and finalized on every exit
// path.
type RunContext struct {
	ID        string
	StartedAt time.Time
	Logger    *slog.Logger
	Metrics   *Metrics
}

func NewRunContext(logger *slog.Logger) *RunContext {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	return &RunContext{
		ID:        id,
		StartedAt: time.Now(),
		Logger:    logger.With("run_id", id),
		Metrics:   NewMetrics(),
	}
}

// Close logs the run duration. Safe to defer unconditionally.
func (rc *RunContext) Close() {
	rc.Logger.Info("run finished", "duration", time.Since(rc.StartedAt).Round(time.Millisecond))
}
