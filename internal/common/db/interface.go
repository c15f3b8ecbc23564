package db

import (
	"context"
	"database/sql"
)

// Database defines the unified interface for relational database operations.
// This abstraction allows swapping MySQL/PostgreSQL implementations without
// changing business logic.
type Database interface {
	Querier

	// Transaction executes fn within a database transaction.
	// The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// BeginTx starts a new transaction with the given options
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)

	// Ping verifies the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error

	// Stats returns connection pool statistics
	Stats() Stats
}

// Transaction defines operations available inside a transaction
type Transaction interface {
	Querier

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Rows is the result of a query returning multiple rows
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

// Row is the result of a query returning at most one row
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// TxOptions holds transaction options
type TxOptions struct {
	// Isolation is the transaction isolation level
	Isolation IsolationLevel

	// ReadOnly marks the transaction as read-only
	ReadOnly bool
}

// IsolationLevel mirrors sql.IsolationLevel
type IsolationLevel int

const (
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelWriteCommitted
	LevelRepeatableRead
	LevelSnapshot
	LevelSerializable
	LevelLinearizable
)

// ConvertTxOptions converts TxOptions to sql.TxOptions
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: sql.IsolationLevel(opts.Isolation),
		ReadOnly:  opts.ReadOnly,
	}
}

// Stats contains connection pool statistics
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
}

// ConvertSQLStats converts sql.DBStats to Stats
func ConvertSQLStats(s sql.DBStats) Stats {
	return Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
	}
}
