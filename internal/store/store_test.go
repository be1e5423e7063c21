package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func strPtr(s string) *string { return &s }

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleResult() schemas.LoopResult {
	loc, _ := time.LoadLocation("America/New_York")
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, loc)
	obs := schemas.Observation{URL: "https://example.org", VisibleText: "Example Domain"}
	return schemas.LoopResult{
		RunID:     "run-1",
		Objective: "navigate to example.org then finish",
		StartURL:  "https://start.test/",
		MaxSteps:  3,
		Outcome:   schemas.RunCompleted,
		Transcript: []schemas.StepRecord{
			{
				StepIndex:   0,
				Observation: schemas.Observation{URL: "https://start.test/", VisibleText: "Welcome", Truncated: true},
				Proposal:    schemas.ActionProposal{Thought: "go", Action: "navigate", Target: "https://example.org"},
				Outcome:     schemas.ActionOutcome{Status: schemas.OutcomeSuccess, Detail: "navigated to https://example.org"},
				StartedAt:   started,
				Duration:    1500 * time.Millisecond,
			},
			{
				StepIndex:   1,
				Observation: obs,
				Proposal:    schemas.ActionProposal{Thought: "done", Action: "done"},
				Outcome:     schemas.ActionOutcome{Status: schemas.OutcomeCompleted},
				StartedAt:   started.Add(2 * time.Second),
				Duration:    800 * time.Millisecond,
			},
		},
		FinalObservation: &obs,
		StartedAt:        started,
		FinishedAt:       started.Add(3 * time.Second),
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist run and steps in one transaction with UTC timestamps", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		res := sampleResult()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				"run-1", res.Objective, "https://start.test/", 3, "completed",
				(*string)(nil), (*string)(nil), strPtr("https://example.org"), (*string)(nil),
				res.StartedAt.UTC(), res.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for _, step := range res.Transcript {
			mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertStep)).
				WithArgs(
					"run-1", step.StepIndex,
					step.Observation.URL, step.Observation.VisibleText, step.Observation.Truncated,
					step.Proposal.Thought, step.Proposal.Action, step.Proposal.Target,
					string(step.Outcome.Status), step.Outcome.Detail,
					step.StartedAt.UTC(), step.Duration.Milliseconds(),
				).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		// Commit, then the deferred Rollback which reports ErrTxClosed.
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should record error kind and message", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		res := sampleResult()
		res.Outcome = schemas.RunErrored
		res.Error = &schemas.RunError{Kind: "ORACLE_MALFORMED_RESPONSE", Message: "propose: bad json"}
		res.Transcript = nil
		res.ScreenshotPath = "/tmp/final.png"

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				"run-1", res.Objective, res.StartURL, 3, "error",
				strPtr("ORACLE_MALFORMED_RESPONSE"), strPtr("propose: bad json"), strPtr("https://example.org"), strPtr("/tmp/final.png"),
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when a step insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		res := sampleResult()
		stepErr := errors.New("value too long")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertStep)).WillReturnError(stepErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, res)
		require.Error(t, err)
		assert.ErrorIs(t, err, stepErr)
		assert.Contains(t, err.Error(), "step 0 of run run-1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a duplicate run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleResult())
		assert.ErrorIs(t, err, ErrDuplicateRun)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := s.SaveRun(ctx, sampleResult())
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
