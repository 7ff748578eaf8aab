package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"marquee/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "metadata", "fetch details", "request failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"metadata", "fetch details", "request failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want services.Kind
	}{
		{services.Wrap(services.ErrNotFound, "metadata", "fetch", "gone", nil), services.KindNotFound},
		{fmt.Errorf("outer: %w", services.ErrRateLimited), services.KindRateLimited},
		{services.ErrQuotaExceeded, services.KindQuotaExceeded},
		{services.Wrap(services.ErrDataQuality, "ratings", "parse", "bad votes", nil), services.KindDataQuality},
		{errors.New("plain"), services.KindUnknown},
		{nil, services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestHaltsBatchAndRetryable(t *testing.T) {
	if !services.HaltsBatch(services.ErrRateLimited) || !services.HaltsBatch(services.ErrQuotaExceeded) {
		t.Fatal("expected rate limit and quota errors to halt the batch")
	}
	if services.HaltsBatch(services.ErrTransient) || services.HaltsBatch(services.ErrNotFound) {
		t.Fatal("transient and not-found errors are item scoped")
	}
	if !services.Retryable(services.ErrTransient) {
		t.Fatal("expected transient errors to be retryable")
	}
	if services.Retryable(services.ErrNotFound) || services.Retryable(services.ErrDataQuality) {
		t.Fatal("not-found and data quality errors must not be retried")
	}
	if services.Retryable(nil) {
		t.Fatal("nil is not retryable")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected empty context")
	}
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithStage(ctx, "discover")
	ctx = services.WithItemID(ctx, 550)
	if id, _ := services.RunIDFromContext(ctx); id != "run-42" {
		t.Fatalf("unexpected run id %q", id)
	}
	if stage, _ := services.StageFromContext(ctx); stage != "discover" {
		t.Fatalf("unexpected stage %q", stage)
	}
	if id, _ := services.ItemIDFromContext(ctx); id != 550 {
		t.Fatalf("unexpected item id %d", id)
	}
	if services.WithStage(ctx, "") != ctx {
		t.Fatal("empty stage should return the same context")
	}
}
