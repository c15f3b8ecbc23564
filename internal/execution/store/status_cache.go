package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	apperrors "github.com/suchitj2702/algo-irl/pkg/errors"
)

const statusKeyPrefix = "execution:status:"

// StatusSnapshot is the lightweight status view served to pollers and the
// websocket stream without touching the durable store.
type StatusSnapshot struct {
	SubmissionID string                  `json:"submission_id"`
	Status       model.SubmissionStatus  `json:"status"`
	Results      *model.AggregatedReport `json:"results,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// StatusCache keeps the latest status snapshot per submission in Redis.
type StatusCache struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusCache creates a status cache.
func NewStatusCache(cacheClient cache.Cache, ttl time.Duration) *StatusCache {
	return &StatusCache{cache: cacheClient, TTL: ttl}
}

// Get returns the snapshot for a submission id.
func (c *StatusCache) Get(ctx context.Context, submissionID string) (StatusSnapshot, error) {
	if submissionID == "" {
		return StatusSnapshot{}, apperrors.ValidationError("submission_id", "required")
	}
	if c.cache == nil {
		return StatusSnapshot{}, apperrors.New(apperrors.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := c.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil || val == "" {
		return StatusSnapshot{}, apperrors.New(apperrors.NotFound).WithMessage("submission status not found")
	}
	var snapshot StatusSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return StatusSnapshot{}, apperrors.Wrapf(err, apperrors.CacheError, "decode status failed")
	}
	return snapshot, nil
}

// Save persists a snapshot.
func (c *StatusCache) Save(ctx context.Context, snapshot StatusSnapshot) error {
	if snapshot.SubmissionID == "" {
		return apperrors.ValidationError("submission_id", "required")
	}
	if c.cache == nil {
		return apperrors.New(apperrors.CacheError).WithMessage("cache client is not initialized")
	}
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := c.cache.Set(ctx, statusKeyPrefix+snapshot.SubmissionID, string(data), c.TTL); err != nil {
		return apperrors.Wrapf(err, apperrors.CacheError, "store status failed")
	}
	return nil
}
