package core

// scheduler.go runs PDF storage maintenance in the background.
//
// Each cycle logs usage per directory and evicts temp PDFs with the
// maintenance policy (2h age, 200MiB budget, 20 newest kept). A cycle that
// finds the cleanup lock taken by another process is skipped, not retried.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultMaintenanceInterval is how often the maintenance job runs.
const DefaultMaintenanceInterval = time.Hour

// StartPDFMaintenance runs store.RunMaintenance immediately and then every
// interval until ctx is cancelled. onCycle, when set, receives each
// result.
func StartPDFMaintenance(ctx context.Context, store *PDFStore, interval time.Duration, onCycle func(CleanupResult)) {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	slog.Info("pdf maintenance scheduler started",
		"interval", interval.String(),
		"temp_dir", store.Dirs().Temp,
	)

	runPDFMaintenance(ctx, store, onCycle)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pdf maintenance scheduler stopped")
			return
		case <-ticker.C:
			runPDFMaintenance(ctx, store, onCycle)
		}
	}
}

func runPDFMaintenance(ctx context.Context, store *PDFStore, onCycle func(CleanupResult)) {
	start := time.Now()
	res, err := store.RunMaintenance(ctx)
	switch {
	case errors.Is(err, ErrLockHeld):
		slog.Info("pdf maintenance skipped, cleanup running elsewhere")
		return
	case err != nil:
		slog.Error("pdf maintenance failed", "error", err)
		return
	}
	if onCycle != nil {
		onCycle(res)
	}
	slog.Info("pdf maintenance cycle completed",
		slog.Int("cleaned", res.Cleaned),
		slog.Int("errors", len(res.Errors)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}
