// Package sqltool executes read-only SQL queries on behalf of the reasoning
// engine and exposes them as a single run_sql tool.
//
// The read-only discipline is a lexical prefix check: anything not starting
// with SELECT is rejected before the data source is touched. That does not
// stop multi-statement injection or destructive statements disguised as
// reads; a hardened deployment should parse the statement and allow-list
// clauses instead.
package sqltool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotReadOnly is returned for queries that do not begin with SELECT.
var ErrNotReadOnly = errors.New("only SELECT queries are allowed in this environment")

// QueryError reports a failure from the underlying data source while
// executing an otherwise admissible query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// QueryExecutor validates and executes a single query against a data source.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (Result, error)
}

// Executor runs queries against a database/sql handle.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates an executor on the shared application database.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute trims and lower-cases the query for inspection, rejects anything
// that is not a SELECT with ErrNotReadOnly, and otherwise runs the query
// as-is. Rows come back as ordered column/value mappings preserving the
// column and row order the data source produced.
func (e *Executor) Execute(ctx context.Context, query string) (Result, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "select") {
		return Result{}, ErrNotReadOnly
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, &QueryError{Query: query, Err: err}
	}

	result := Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return Result{}, &QueryError{Query: query, Err: err}
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[i] = Field{Name: col, Value: normalizeValue(values[i])}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, &QueryError{Query: query, Err: err}
	}

	return result, nil
}

var _ QueryExecutor = (*Executor)(nil)
