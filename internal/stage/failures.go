package stage

import (
	"context"
	"log/slog"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/logging"
	"marquee/internal/services"
)

// FailureStore is the persistence the shared failure policy needs.
type FailureStore interface {
	MarkInvalid(ctx context.Context, id int64, kind, message string) error
	ScheduleRetry(ctx context.Context, itemID int64, stage, lastError string, maxAttempts int, now time.Time) (int, bool, error)
	ClearRetry(ctx context.Context, itemID int64, stage string) error
}

// FailurePolicy applies the per-item error taxonomy shared by every
// provider-backed stage:
//
//	not found          -> item marked invalid, never retried
//	rate limit, quota  -> counted failed, batch halts
//	configuration      -> counted failed, batch halts
//	data quality       -> item skipped
//	transient, unknown -> counted failed, queued for retry with backoff
//	validation         -> counted failed
type FailurePolicy struct {
	Stage       string
	Store       FailureStore
	MaxAttempts int
	DryRun      bool
	Logger      *slog.Logger
	Now         func() time.Time
}

func (p FailurePolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p FailurePolicy) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

// Succeeded counts a processed item and clears any queued retry for it.
func (p FailurePolicy) Succeeded(ctx context.Context, item *catalog.Item, res *Result) {
	res.Succeeded++
	if p.DryRun || p.Store == nil {
		return
	}
	if err := p.Store.ClearRetry(ctx, item.ID, p.Stage); err != nil {
		p.logger().Warn("clear retry failed",
			logging.Int64(logging.FieldItemID, item.ProviderID),
			logging.Error(err))
	}
}

// Handle records err against item on res. It reports whether the stage must
// stop processing the rest of its batch.
func (p FailurePolicy) Handle(ctx context.Context, item *catalog.Item, err error, res *Result) bool {
	logger := p.logger()
	kind := services.Classify(err)
	attrs := []logging.Attr{
		logging.Int64(logging.FieldItemID, item.ProviderID),
		logging.String("title", item.DisplayTitle()),
		logging.String("error_kind", string(kind)),
		logging.Error(err),
	}

	switch {
	case kind == services.KindNotFound:
		res.Invalid++
		if !p.DryRun && p.Store != nil {
			if markErr := p.Store.MarkInvalid(ctx, item.ID, string(kind), err.Error()); markErr != nil {
				logger.Warn("mark invalid failed", logging.Int64(logging.FieldItemID, item.ProviderID), logging.Error(markErr))
			}
		}
		logging.WarnWithContext(logger, "item no longer resolves", "item_invalid",
			append(attrs, logging.String(logging.FieldErrorHint, "item moved to error status; no action needed"))...)
		return false

	case services.HaltsBatch(err):
		res.Failed++
		res.Halt(string(kind))
		res.AddError("%d: %v", item.ProviderID, err)
		hint := "remaining items are left for the next run"
		if kind == services.KindConfiguration {
			hint = "check the provider api key"
		}
		logging.WarnWithContext(logger, "provider halted batch", "batch_halted",
			append(attrs, logging.String(logging.FieldErrorHint, hint))...)
		return true

	case kind == services.KindDataQuality:
		res.Skipped++
		logging.WarnWithContext(logger, "item skipped for data quality", "item_skipped",
			append(attrs, logging.String(logging.FieldErrorHint, "provider returned unusable data for this item"))...)
		return false

	case services.Retryable(err):
		res.Failed++
		res.AddError("%d: %v", item.ProviderID, err)
		if p.DryRun || p.Store == nil {
			logging.WarnWithContext(logger, "item failed", "item_failure", attrs...)
			return false
		}
		attempts, exhausted, retryErr := p.Store.ScheduleRetry(ctx, item.ID, p.Stage, err.Error(), p.MaxAttempts, p.now())
		if retryErr != nil {
			logger.Warn("schedule retry failed", logging.Int64(logging.FieldItemID, item.ProviderID), logging.Error(retryErr))
		}
		hint := "queued for retry"
		if exhausted {
			hint = "retries exhausted; item moved to error status"
		}
		logging.WarnWithContext(logger, "item failed", "item_failure",
			append(attrs, logging.Int("attempts", attempts), logging.String(logging.FieldErrorHint, hint))...)
		return false

	default:
		res.Failed++
		res.AddError("%d: %v", item.ProviderID, err)
		logging.WarnWithContext(logger, "item failed", "item_failure", attrs...)
		return false
	}
}
