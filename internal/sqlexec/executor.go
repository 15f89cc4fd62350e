package sqlexec

import (
	"context"
	"sync"
	"time"

	"github.com/pgconvo/pgconvo/internal/db"
)

// ExecutionResult is the value returned for every execution attempt.
// Execution failure is always a value, never a returned Go error, so the
// orchestration layer can treat SQL errors and connectivity errors uniformly
// as retriable content.
type ExecutionResult struct {
	SQL      string
	Rows     []map[string]any
	RowCount int
	Duration time.Duration
	Columns  []string
	Err      string
}

// Failed reports whether the attempt produced an error.
func (r *ExecutionResult) Failed() bool {
	return r.Err != ""
}

// Executor gates and runs SQL against the database collaborator.
type Executor struct {
	querier db.Querier

	mu       sync.Mutex
	readOnly bool
}

// NewExecutor creates an executor. Read-only mode starts enabled unless the
// caller opts out.
func NewExecutor(querier db.Querier, readOnly bool) *Executor {
	return &Executor{querier: querier, readOnly: readOnly}
}

// SetReadOnly toggles read-only mode.
func (e *Executor) SetReadOnly(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.readOnly = enabled
}

// ReadOnly reports whether read-only mode is active.
func (e *Executor) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.readOnly
}

// Execute runs one statement. Destructive statements are refused outright
// while read-only mode is on; the database is never contacted for them.
// Non-destructive statements run inside an explicit read-only transaction,
// destructive ones (when permitted) run in ordinary mode.
func (e *Executor) Execute(ctx context.Context, sql string) ExecutionResult {
	result := ExecutionResult{SQL: sql}

	destructive := IsDestructiveQuery(sql)

	if destructive && e.ReadOnly() {
		result.Err = "blocked: the statement may modify data or schema and read-only mode is active"
		return result
	}

	var (
		queryResult *db.QueryResult
		err         error
	)

	if destructive {
		queryResult, err = e.querier.Query(ctx, sql)
	} else {
		queryResult, err = e.querier.ReadOnlyQuery(ctx, sql)
	}

	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Rows = queryResult.Rows
	result.RowCount = queryResult.RowCount
	result.Duration = queryResult.Duration
	result.Columns = queryResult.Columns

	return result
}
