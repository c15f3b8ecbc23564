package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/common/db"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
)

const (
	defaultRecordCacheTTL      = 30 * time.Minute
	defaultRecordCacheEmptyTTL = 5 * time.Minute
	recordCacheKeyPrefix       = "execution:submission:"
)

// MySQLStore persists submission records in MySQL with JSON document columns
// for the structured fields, fronted by an optional cache.
type MySQLStore struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewMySQLStore creates a store with default cache TTLs. cacheClient may be
// nil to bypass caching entirely.
func NewMySQLStore(database db.Database, cacheClient cache.Cache) *MySQLStore {
	return NewMySQLStoreWithTTL(database, cacheClient, defaultRecordCacheTTL, defaultRecordCacheEmptyTTL)
}

// NewMySQLStoreWithTTL creates a store with custom cache TTLs.
func NewMySQLStoreWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLStore {
	if ttl <= 0 {
		ttl = defaultRecordCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultRecordCacheEmptyTTL
	}
	return &MySQLStore{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "submission_id, code, language, test_cases, status, job_handles, results, created_at, updated_at"

// Create inserts a new submission record.
func (s *MySQLStore) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}

	testCases, err := json.Marshal(submission.TestCases)
	if err != nil {
		return fmt.Errorf("marshal test cases: %w", err)
	}
	handles, err := json.Marshal(submission.JobHandles)
	if err != nil {
		return fmt.Errorf("marshal job handles: %w", err)
	}
	var results []byte
	if submission.Results != nil {
		results, err = json.Marshal(submission.Results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}

	query := `
		INSERT INTO execution_submissions
		(submission_id, code, language, test_cases, status, job_handles, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(ctx, query,
		submission.ID,
		submission.Code,
		submission.Language,
		string(testCases),
		string(submission.Status),
		string(handles),
		nullableJSON(results),
	)
	if err != nil {
		return err
	}
	s.setCache(ctx, submission)
	return nil
}

// Get retrieves a submission by id, through the cache when available.
func (s *MySQLStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	if id == "" {
		return nil, errors.New("submission id is required")
	}
	if s.cache != nil {
		submission, err := cache.GetWithCached[*model.Submission](
			ctx,
			s.cache,
			recordCacheKey(id),
			cache.JitterTTL(s.ttl),
			cache.JitterTTL(s.emptyTTL),
			func(submission *model.Submission) bool { return submission == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*model.Submission, error) {
				submission, err := s.getFromDB(ctx, id)
				if err != nil {
					if errors.Is(err, ErrSubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return submission, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	return s.getFromDB(ctx, id)
}

// Update applies a last-write-wins mutation and refreshes the cache with the
// post-update record.
func (s *MySQLStore) Update(ctx context.Context, id string, update Update) error {
	if id == "" {
		return errors.New("submission id is required")
	}

	query := "UPDATE execution_submissions SET status = ?, updated_at = NOW(3)"
	args := []interface{}{string(update.Status)}

	if update.Results != nil {
		results, err := json.Marshal(update.Results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		query += ", results = ?"
		args = append(args, string(results))
	}
	if update.JobHandles != nil {
		handles, err := json.Marshal(update.JobHandles)
		if err != nil {
			return fmt.Errorf("marshal job handles: %w", err)
		}
		query += ", job_handles = ?"
		args = append(args, string(handles))
	}
	query += " WHERE submission_id = ?"
	args = append(args, id)

	result, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// The row may exist with identical values; confirm before reporting
		// a miss.
		if _, getErr := s.getFromDB(ctx, id); getErr != nil {
			return getErr
		}
	}

	if s.cache != nil {
		if submission, err := s.getFromDB(ctx, id); err == nil {
			s.setCache(ctx, submission)
		} else {
			_ = s.cache.Del(ctx, recordCacheKey(id))
		}
	}
	return nil
}

func (s *MySQLStore) getFromDB(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM execution_submissions WHERE submission_id = ? LIMIT 1"
	row := s.db.QueryRow(ctx, query, id)

	submission := &model.Submission{}
	var status, testCases, handles string
	var results *string
	if err := row.Scan(
		&submission.ID,
		&submission.Code,
		&submission.Language,
		&testCases,
		&status,
		&handles,
		&results,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	submission.Status = model.SubmissionStatus(status)
	if err := json.Unmarshal([]byte(testCases), &submission.TestCases); err != nil {
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	if err := json.Unmarshal([]byte(handles), &submission.JobHandles); err != nil {
		return nil, fmt.Errorf("decode job handles: %w", err)
	}
	if results != nil && *results != "" {
		report := &model.AggregatedReport{}
		if err := json.Unmarshal([]byte(*results), report); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		submission.Results = report
	}
	return submission, nil
}

func (s *MySQLStore) setCache(ctx context.Context, submission *model.Submission) {
	if submission == nil || s.cache == nil {
		return
	}
	payload := marshalSubmission(submission)
	if payload == "" {
		return
	}
	_ = s.cache.Set(ctx, recordCacheKey(submission.ID), payload, cache.JitterTTL(s.ttl))
}

func recordCacheKey(id string) string {
	return recordCacheKeyPrefix + id
}

func marshalSubmission(submission *model.Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission model.Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

var _ SubmissionStore = (*MySQLStore)(nil)
