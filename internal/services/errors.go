package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the provider has no record for the identifier. Terminal.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited means the provider is throttling us. Halts the batch.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded is raised locally, before any request, once a daily
	// ceiling has been reached. Halts the batch.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	ErrTransient     = errors.New("transient failure")
	// ErrDataQuality marks unusable nested data; only the affected
	// sub-computation is skipped.
	ErrDataQuality   = errors.New("data quality error")
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
)

// Kind is the coarse classification of an error used for reporting.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindRateLimited   Kind = "rate_limited"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindTransient     Kind = "transient"
	KindDataQuality   Kind = "data_quality"
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps err onto its Kind. Markers are checked in severity order so an
// error wrapped twice reports the more specific class.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDataQuality):
		return KindDataQuality
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// HaltsBatch reports whether the stage must stop issuing provider calls for the
// rest of its batch. Configuration errors halt as well since every later call
// would fail the same way.
func HaltsBatch(err error) bool {
	switch Classify(err) {
	case KindRateLimited, KindQuotaExceeded, KindConfiguration:
		return true
	default:
		return false
	}
}

// Retryable reports whether an item-level failure is worth queuing for a later
// attempt.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindRateLimited, KindUnknown:
		return err != nil
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
