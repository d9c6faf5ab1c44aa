package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
)

// SweepJobName names the periodic sweep.
const SweepJobName = "cleanup_stuck_documents"

// SweepResult reports what a sweep changed.
type SweepResult struct {
	TimedOut    int `json:"documents_reset"`
	Requeued    int `json:"documents_requeued"`
	LostRetries int `json:"tasks_failed"`
}

// TimeoutMessage is the error recorded on documents failed by the sweep.
func (p *Processor) TimeoutMessage() string {
	return "Processing timeout - exceeded " + describeDuration(p.config.StuckThreshold)
}

// describeDuration renders whole hours and minutes in words and anything
// else in Go duration syntax.
func describeDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

// Sweep fails documents stuck in processing past the threshold, re-enqueues
// documents that stayed pending past it, which covers uploads whose enqueue
// failed, and fails tasks whose scheduled retry never arrived.
//
// A re-enqueued document has its UpdatedAt moved to the sweep time first, so
// it is picked up again at most once per threshold.
func (p *Processor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	log := logger.FromContextOrDefault(ctx, p.logger)
	now := p.now()
	cutoff := now.Add(-p.config.StuckThreshold)
	touched := map[uuid.UUID]struct{}{}

	stuck, err := p.docs.FindStale(ctx, domain.DocumentStatusProcessing, cutoff, p.config.SweepBatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to find stuck documents: %w", err)
	}
	for _, doc := range stuck {
		if err := doc.Fail(p.TimeoutMessage(), now); err != nil {
			continue
		}
		if err := p.docs.UpdateProcessing(ctx, doc); err != nil {
			log.Error("failed to fail stuck document",
				slog.String("document_id", doc.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		touched[doc.TenantID] = struct{}{}
		res.TimedOut++
	}

	waiting, err := p.docs.FindStale(ctx, domain.DocumentStatusPending, cutoff, p.config.SweepBatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to find pending documents: %w", err)
	}
	for _, doc := range waiting {
		if doc.IsDeleted {
			continue
		}
		doc.UpdatedAt = now
		if err := p.docs.UpdateProcessing(ctx, doc); err != nil {
			log.Error("failed to mark pending document re-enqueued",
				slog.String("document_id", doc.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if _, err := p.Enqueue(ctx, doc); err != nil {
			log.Error("failed to re-enqueue pending document",
				slog.String("document_id", doc.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		res.Requeued++
	}

	lost, err := p.failLostRetries(ctx, now)
	res.LostRetries = lost
	if err != nil {
		return res, err
	}

	for tenantID := range touched {
		p.invalidate(ctx, tenantID)
	}
	p.metrics.ObserveSweep(res.TimedOut, res.Requeued)
	log.Info("stuck document sweep finished",
		slog.Int("documents_reset", res.TimedOut),
		slog.Int("documents_requeued", res.Requeued),
		slog.Int("tasks_failed", res.LostRetries))
	return res, nil
}

// failLostRetries fails tasks left in retry for longer than the longest
// backoff plus the stuck threshold. Their scheduled retry was dropped, as
// happens to the in-memory queue's timers on shutdown.
func (p *Processor) failLostRetries(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)
	grace := p.RetryDelay(p.config.MaxRetries) + p.config.StuckThreshold
	recs, err := p.tasks.FindStale(ctx, domain.TaskStatusRetry, now.Add(-grace), p.config.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find lost retries: %w", err)
	}

	failed := 0
	for _, rec := range recs {
		rec.Fail("Retry was not delivered within "+describeDuration(grace), now)
		if err := p.tasks.Save(ctx, rec); err != nil {
			log.Error("failed to fail lost retry",
				slog.String("task_id", rec.TaskID),
				slog.String("error", err.Error()))
			continue
		}
		failed++
	}
	return failed, nil
}
