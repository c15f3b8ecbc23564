package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/suchitj2702/algo-irl/internal/common/storage"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"
)

// snapshot is the archived record of one execution: the exact program that
// ran plus the final report, kept for audit and debugging.
type snapshot struct {
	SubmissionID string                  `json:"submission_id"`
	Language     string                  `json:"language"`
	Program      string                  `json:"program"`
	Results      *model.AggregatedReport `json:"results,omitempty"`
	ArchivedAt   time.Time               `json:"archived_at"`
}

// SnapshotArchiver writes zstd-compressed execution snapshots to object
// storage. Archival is best-effort; failures are logged, never surfaced to
// the submitting user.
type SnapshotArchiver struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

// NewSnapshotArchiver creates an archiver. Returns an error if the encoder
// cannot be constructed.
func NewSnapshotArchiver(objectStorage storage.ObjectStorage, bucket string) (*SnapshotArchiver, error) {
	if objectStorage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &SnapshotArchiver{
		storage: objectStorage,
		bucket:  bucket,
		encoder: encoder,
	}, nil
}

// Archive compresses and stores one snapshot under
// snapshots/<submission-id>.json.zst.
func (a *SnapshotArchiver) Archive(ctx context.Context, submission *model.Submission, program string) {
	if a == nil || submission == nil {
		return
	}
	payload, err := json.Marshal(snapshot{
		SubmissionID: submission.ID,
		Language:     submission.Language,
		Program:      program,
		Results:      submission.Results,
		ArchivedAt:   time.Now(),
	})
	if err != nil {
		logger.Warn(ctx, "marshal snapshot failed",
			zap.String("submission_id", submission.ID), zap.Error(err))
		return
	}

	compressed := a.encoder.EncodeAll(payload, nil)
	key := fmt.Sprintf("snapshots/%s.json.zst", submission.ID)
	if err := a.storage.PutObject(ctx, a.bucket, key,
		bytes.NewReader(compressed), int64(len(compressed)), "application/zstd"); err != nil {
		logger.Warn(ctx, "archive snapshot failed",
			zap.String("submission_id", submission.ID),
			zap.String("key", key), zap.Error(err))
		return
	}
	logger.Debug(ctx, "snapshot archived",
		zap.String("submission_id", submission.ID),
		zap.Int("raw_bytes", len(payload)),
		zap.Int("compressed_bytes", len(compressed)))
}
