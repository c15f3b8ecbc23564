package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	apperrors "github.com/suchitj2702/algo-irl/pkg/errors"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatusCacheSaveAndGet(t *testing.T) {
	t.Parallel()

	statusCache := NewStatusCache(newTestCache(t), time.Minute)
	ctx := context.Background()

	snapshot := StatusSnapshot{
		SubmissionID: "sub-1",
		Status:       model.StatusProcessing,
	}
	if err := statusCache.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := statusCache.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("Status = %q, want processing", got.Status)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestStatusCacheGetMissing(t *testing.T) {
	t.Parallel()

	statusCache := NewStatusCache(newTestCache(t), time.Minute)
	_, err := statusCache.Get(context.Background(), "nope")
	if !apperrors.Is(err, apperrors.NotFound) {
		t.Errorf("code = %v, want NotFound", apperrors.GetCode(err))
	}
}

func TestStatusCacheSaveWithResults(t *testing.T) {
	t.Parallel()

	statusCache := NewStatusCache(newTestCache(t), time.Minute)
	ctx := context.Background()

	report := &model.AggregatedReport{
		Passed:          true,
		TestCasesPassed: 2,
		TestCasesTotal:  2,
	}
	if err := statusCache.Save(ctx, StatusSnapshot{
		SubmissionID: "sub-2",
		Status:       model.StatusCompleted,
		Results:      report,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := statusCache.Get(ctx, "sub-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Results == nil || !got.Results.Passed || got.Results.TestCasesTotal != 2 {
		t.Errorf("Results = %+v", got.Results)
	}
}

func TestStatusCacheValidation(t *testing.T) {
	t.Parallel()

	statusCache := NewStatusCache(newTestCache(t), time.Minute)
	if err := statusCache.Save(context.Background(), StatusSnapshot{}); err == nil {
		t.Error("expected validation error for empty submission id")
	}
	if _, err := statusCache.Get(context.Background(), ""); err == nil {
		t.Error("expected validation error for empty submission id")
	}
}
