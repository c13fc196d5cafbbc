package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rxstock/rxstock/internal/alerts"
)

const (
	// TaskLowStockScan rebuilds the low-stock alert snapshot.
	TaskLowStockScan = "stock:lowstock_scan"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanHandler returns the handler that refreshes the alert cache.
func NewLowStockScanHandler(service *alerts.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		snap, err := service.Refresh(ctx)
		if err != nil {
			logger.Error("low stock scan", slog.Any("error", err))
			return err
		}
		logger.Info("low stock scan complete",
			slog.Int("records", len(snap.Records)),
			slog.Time("generated_at", snap.GeneratedAt))
		return nil
	}
}
