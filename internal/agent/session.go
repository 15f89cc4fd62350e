// Package agent runs the conversational turn loop: user text goes to the
// model, extracted SQL is safety-gated and executed, and every intermediate
// step is reported to a message sink as an ordered event stream.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pgconvo/pgconvo/internal/llm"
	"github.com/pgconvo/pgconvo/internal/logging"
	"github.com/pgconvo/pgconvo/internal/schema"
	"github.com/pgconvo/pgconvo/internal/sqlexec"
)

// maxSummaryRows bounds how many result rows are sent back to the model
// when asking for a natural-language summary.
const maxSummaryRows = 20

const systemPromptTemplate = `You are a SQL assistant for a PostgreSQL database. Answer the user's questions about the data. When a question requires querying the database, include exactly one SQL statement in a fenced code block tagged sql. Prefer standard PostgreSQL syntax.

Database schema:

%s`

// Options configures a Session. Engine may be nil when no database is
// connected yet; HandleMessage still works, the model just answers without
// schema grounding.
type Options struct {
	Model    llm.Service
	Executor *sqlexec.Executor
	Engine   *schema.Engine
	Sink     MessageSink
	Logger   *slog.Logger
}

// Session owns the collaborators of one conversation. A reconnect builds a
// fresh Session rather than mutating this one in place. Turns are
// sequential; issuing a second HandleMessage before the first returns is a
// caller error.
type Session struct {
	id       string
	model    llm.Service
	executor *sqlexec.Executor
	engine   *schema.Engine
	sink     MessageSink
	logger   *slog.Logger
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	id := uuid.NewString()

	return &Session{
		id:       id,
		model:    opts.Model,
		executor: opts.Executor,
		engine:   opts.Engine,
		sink:     opts.Sink,
		logger:   logger.With(slog.String("session_id", id)),
	}
}

// ID returns the session identifier used in logs and transports.
func (s *Session) ID() string { return s.id }

// PrimeContext maps the database and seeds the model's system prompt with
// the rendered schema summary. Call it once after connecting and again
// whenever the schema may have changed.
func (s *Session) PrimeContext(ctx context.Context) error {
	if s.engine == nil {
		return nil
	}

	if _, err := s.engine.MapDatabase(ctx); err != nil {
		return err
	}

	s.model.SetSystemPrompt(fmt.Sprintf(systemPromptTemplate, s.engine.ContextSummary()))

	return nil
}

// Schema returns the schema engine for direct administrative access.
func (s *Session) Schema() *schema.Engine { return s.engine }

// SetReadOnly toggles the executor's safety gate.
func (s *Session) SetReadOnly(enabled bool) { s.executor.SetReadOnly(enabled) }

// ReadOnly reports whether destructive statements are blocked.
func (s *Session) ReadOnly() bool { return s.executor.ReadOnly() }

// ExecuteDirect runs SQL outside the conversation, for explicit
// non-conversational execution. The safety gate still applies.
func (s *Session) ExecuteDirect(ctx context.Context, sql string) sqlexec.ExecutionResult {
	return s.executor.Execute(ctx, sql)
}

// ClearConversation drops the model's history, keeping the system prompt.
func (s *Session) ClearConversation() { s.model.ClearHistory() }

// HandleMessage runs one full turn. All output, including failures, arrives
// through the sink; nothing is returned. Within a turn events are emitted in
// a fixed order: thinking, then text and sql, then executing, then result or
// error, then summary.
func (s *Session) HandleMessage(ctx context.Context, userText string) {
	turnID := uuid.NewString()
	logger := s.logger.With(slog.String("turn_id", turnID))

	logger.Debug("turn started", slog.Int("input_len", len(userText)))
	s.sink.Send(Event{Type: EventThinking})

	resp, err := s.model.Chat(ctx, userText)
	if err != nil {
		logger.Warn("model call failed", slog.String("error", err.Error()))
		s.sink.Send(Event{Type: EventError, Content: err.Error()})

		return
	}

	query, ok := sqlexec.ExtractSQL(resp.Content)
	if !ok {
		s.sink.Send(Event{Type: EventText, Content: resp.Content})

		return
	}

	if remainder := sqlexec.RemoveSQL(resp.Content, query); remainder != "" {
		s.sink.Send(Event{Type: EventText, Content: remainder})
	}

	s.sink.Send(Event{Type: EventSQL, Content: query})

	if sqlexec.IsDestructiveQuery(query) && s.executor.ReadOnly() {
		logger.Info("destructive statement blocked", slog.String("sql", query))
		s.sink.Send(Event{
			Type:    EventError,
			Content: "the suggested statement may modify data or schema and read-only mode is active; it was not executed",
		})

		return
	}

	result := s.runQuery(ctx, logger, query)
	if result.Failed() {
		corrected, ok := s.correct(ctx, logger, result)
		if !ok || corrected.Failed() {
			return
		}

		result = corrected
	}

	s.summarize(ctx, logger, result)
}

// runQuery executes one statement, emitting executing and result or error.
func (s *Session) runQuery(ctx context.Context, logger *slog.Logger, query string) sqlexec.ExecutionResult {
	s.sink.Send(Event{Type: EventExecuting})

	result := s.executor.Execute(ctx, query)
	if result.Failed() {
		logger.Info("execution failed", slog.String("error", result.Err))
		s.sink.Send(Event{Type: EventError, Content: result.Err})

		return result
	}

	logger.Debug("execution succeeded",
		slog.Int("rows", result.RowCount),
		slog.Duration("duration", result.Duration))
	s.sink.Send(Event{Type: EventResult, Data: result})

	return result
}

// correct performs the single automatic repair turn after a failed
// execution. The bool is false when the model's reply contained nothing
// executable. A second execution failure has already been reported through
// the sink by runQuery; no further attempts are made.
func (s *Session) correct(ctx context.Context, logger *slog.Logger, failed sqlexec.ExecutionResult) (sqlexec.ExecutionResult, bool) {
	prompt := fmt.Sprintf(
		"The query failed with this error:\n\n%s\n\nProvide a corrected SQL statement for the original question.",
		failed.Err)

	resp, err := s.model.Chat(ctx, prompt)
	if err != nil {
		logger.Warn("correction call failed", slog.String("error", err.Error()))
		s.sink.Send(Event{Type: EventError, Content: err.Error()})

		return sqlexec.ExecutionResult{}, false
	}

	query, ok := sqlexec.ExtractSQL(resp.Content)
	if !ok {
		// The model gave up on SQL; surface its explanation as-is.
		s.sink.Send(Event{Type: EventText, Content: resp.Content})

		return sqlexec.ExecutionResult{}, false
	}

	s.sink.Send(Event{Type: EventSQL, Content: query})

	if sqlexec.IsDestructiveQuery(query) && s.executor.ReadOnly() {
		s.sink.Send(Event{
			Type:    EventError,
			Content: "the corrected statement may modify data or schema and read-only mode is active; it was not executed",
		})

		return sqlexec.ExecutionResult{}, false
	}

	return s.runQuery(ctx, logger, query), true
}

// summarize asks the model for a natural-language reading of the result.
// Failures here are logged and swallowed; the turn already succeeded.
func (s *Session) summarize(ctx context.Context, logger *slog.Logger, result sqlexec.ExecutionResult) {
	if result.RowCount == 0 {
		return
	}

	rows := result.Rows
	if len(rows) > maxSummaryRows {
		rows = rows[:maxSummaryRows]
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		logger.Warn("summary skipped, rows not encodable", slog.String("error", err.Error()))

		return
	}

	prompt := fmt.Sprintf(
		"The query returned %d row(s). Here are the first %d as JSON:\n\n%s\n\nSummarize the result in one or two plain sentences for the user.",
		result.RowCount, len(rows), encoded)

	resp, err := s.model.Chat(ctx, prompt)
	if err != nil {
		logger.Warn("summary call failed", slog.String("error", err.Error()))

		return
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return
	}

	s.sink.Send(Event{Type: EventSummary, Content: summary})
}
