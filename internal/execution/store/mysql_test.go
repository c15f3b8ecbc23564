package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/db"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
)

// fakeDB keeps one submission row in memory and implements just enough of
// db.Database for the store.
type fakeDB struct {
	row      *storedRow
	execLog  []string
	failNext error
}

type storedRow struct {
	id, code, language, testCases, status, handles string
	results                                        *string
	createdAt, updatedAt                           time.Time
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	if f.row == nil || len(args) == 0 || args[0] != f.row.id {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{row: f.row}
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.execLog = append(f.execLog, query)

	switch {
	case strings.Contains(query, "INSERT INTO execution_submissions"):
		row := &storedRow{
			id:        args[0].(string),
			code:      args[1].(string),
			language:  args[2].(string),
			testCases: args[3].(string),
			status:    args[4].(string),
			handles:   args[5].(string),
			createdAt: time.Now(),
			updatedAt: time.Now(),
		}
		if args[6] != nil {
			text := args[6].(string)
			row.results = &text
		}
		f.row = row
		return fakeResult{affected: 1}, nil

	case strings.Contains(query, "UPDATE execution_submissions"):
		if f.row == nil || args[len(args)-1] != f.row.id {
			return fakeResult{affected: 0}, nil
		}
		f.row.status = args[0].(string)
		next := 1
		if strings.Contains(query, "results = ?") {
			text := args[next].(string)
			f.row.results = &text
			next++
		}
		if strings.Contains(query, "job_handles = ?") {
			f.row.handles = args[next].(string)
		}
		f.row.updatedAt = time.Now()
		return fakeResult{affected: 1}, nil
	}
	return fakeResult{}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return nil, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }
func (f *fakeDB) Stats() db.Stats                { return db.Stats{} }

type fakeRow struct {
	row *storedRow
	err error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.row.id
	*dest[1].(*string) = r.row.code
	*dest[2].(*string) = r.row.language
	*dest[3].(*string) = r.row.testCases
	*dest[4].(*string) = r.row.status
	*dest[5].(*string) = r.row.handles
	*dest[6].(**string) = r.row.results
	*dest[7].(*time.Time) = r.row.createdAt
	*dest[8].(*time.Time) = r.row.updatedAt
	return nil
}

type fakeResult struct {
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

func newSubmission() *model.Submission {
	return &model.Submission{
		ID:       "sub-1",
		Code:     "def solution(a, b):\n    return a + b",
		Language: "python",
		TestCases: []model.TestCase{
			{Stdin: "[2,3]", ExpectedStdout: "5"},
		},
		Status: model.StatusPending,
	}
}

func TestMySQLStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	database := &fakeDB{}
	s := NewMySQLStore(database, nil)
	ctx := context.Background()

	if err := s.Create(ctx, newSubmission()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Language != "python" || got.Status != model.StatusPending {
		t.Errorf("got = %+v", got)
	}
	if len(got.TestCases) != 1 || got.TestCases[0].ExpectedStdout != "5" {
		t.Errorf("TestCases = %+v", got.TestCases)
	}
	if got.Results != nil {
		t.Error("Results should be nil before aggregation")
	}
}

func TestMySQLStoreGetMissing(t *testing.T) {
	t.Parallel()

	s := NewMySQLStore(&fakeDB{}, nil)
	if _, err := s.Get(context.Background(), "nope"); err != ErrSubmissionNotFound {
		t.Errorf("err = %v, want ErrSubmissionNotFound", err)
	}
}

func TestMySQLStoreUpdateHandles(t *testing.T) {
	t.Parallel()

	database := &fakeDB{}
	s := NewMySQLStore(database, nil)
	ctx := context.Background()

	if err := s.Create(ctx, newSubmission()); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "sub-1", Update{
		Status:     model.StatusProcessing,
		JobHandles: []string{"tok-1", "tok-2"},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("Status = %q", got.Status)
	}
	if len(got.JobHandles) != 2 || got.JobHandles[0] != "tok-1" {
		t.Errorf("JobHandles = %v", got.JobHandles)
	}
}

func TestMySQLStoreUpdateResults(t *testing.T) {
	t.Parallel()

	database := &fakeDB{}
	s := NewMySQLStore(database, nil)
	ctx := context.Background()

	if err := s.Create(ctx, newSubmission()); err != nil {
		t.Fatal(err)
	}

	report := &model.AggregatedReport{Passed: true, TestCasesPassed: 1, TestCasesTotal: 1}
	if err := s.Update(ctx, "sub-1", Update{Status: model.StatusCompleted, Results: report}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, "sub-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Results == nil || !got.Results.Passed {
		t.Errorf("Results = %+v", got.Results)
	}

	// Round-trip through the JSON column must preserve the report exactly.
	want, _ := json.Marshal(report)
	have, _ := json.Marshal(got.Results)
	if string(want) != string(have) {
		t.Errorf("results drifted: %s vs %s", want, have)
	}
}

func TestMySQLStoreUpdateMissing(t *testing.T) {
	t.Parallel()

	s := NewMySQLStore(&fakeDB{}, nil)
	err := s.Update(context.Background(), "nope", Update{Status: model.StatusError})
	if err != ErrSubmissionNotFound {
		t.Errorf("err = %v, want ErrSubmissionNotFound", err)
	}
}
