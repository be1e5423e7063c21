// internal/agent/loop.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
)

// State is the agent loop's position in its lifecycle.
type State string

const (
	StateRunning         State = "RUNNING"           // Steps are still being taken.
	StateCompleted       State = "COMPLETED"         // The oracle proposed done.
	StateMaxStepsReached State = "MAX_STEPS_REACHED" // The step budget ran out without done.
	StateErrored         State = "ERRORED"           // A non-recoverable error ended the run.
)

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool { return s != StateRunning }

func (s State) outcome() schemas.RunOutcome {
	switch s {
	case StateCompleted:
		return schemas.RunCompleted
	case StateMaxStepsReached:
		return schemas.RunMaxStepsReached
	default:
		return schemas.RunErrored
	}
}

// RunRequest describes one run. Zero MaxSteps and an empty ScreenshotPath take
// the loop's configured defaults.
type RunRequest struct {
	RunID          string `json:"run_id,omitempty"`
	Objective      string `json:"objective"`
	StartURL       string `json:"start_url"`
	MaxSteps       int    `json:"max_steps,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// LoopConfig holds the run-independent settings of a Loop.
type LoopConfig struct {
	MaxSteps       int
	RetryBackoff   time.Duration
	ScreenshotPath string
	// CloseTimeout bounds session teardown and the final screenshot.
	CloseTimeout time.Duration
}

// Observer, Oracle and Actuator are the three step collaborators of a Loop.
type Observer interface {
	Observe(ctx context.Context, session schemas.BrowserSession) (schemas.Observation, error)
}

type Oracle interface {
	Propose(ctx context.Context, objective string, obs schemas.Observation) (schemas.ActionProposal, error)
}

type Actuator interface {
	Execute(ctx context.Context, session schemas.BrowserSession, action ValidatedAction) (schemas.ActionOutcome, error)
}

// Recorder receives run telemetry. Implementations must be safe for concurrent use
// when a Loop is shared by several goroutines.
type Recorder interface {
	RunFinished(outcome schemas.RunOutcome, kind ErrorKind, elapsed time.Duration)
	StepFinished(action schemas.ActionKind, status schemas.OutcomeStatus)
	OracleCall(elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(schemas.RunOutcome, ErrorKind, time.Duration) {}
func (nopRecorder) StepFinished(schemas.ActionKind, schemas.OutcomeStatus)   {}
func (nopRecorder) OracleCall(time.Duration, error)                          {}

// Loop drives observe, propose, validate and execute until a terminal state.
// A Loop holds no per-run state and may serve concurrent runs.
type Loop struct {
	sessions schemas.SessionFactory
	observer Observer
	oracle   Oracle
	actuator Actuator
	cfg      LoopConfig
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithClock replaces time.Now, for deterministic transcripts in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

func NewLoop(sessions schemas.SessionFactory, observer Observer, oracle Oracle, actuator Actuator, cfg LoopConfig, logger *zap.Logger, opts ...Option) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 3
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	l := &Loop{
		sessions: sessions,
		observer: observer,
		oracle:   oracle,
		actuator: actuator,
		cfg:      cfg,
		recorder: nopRecorder{},
		logger:   logger.Named("loop"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLoopFromConfig wires the default observer, oracle and actuator from cfg.
func NewLoopFromConfig(cfg *config.Config, sessions schemas.SessionFactory, llm schemas.LLMClient, logger *zap.Logger, opts ...Option) (*Loop, error) {
	settle, err := NewSettlePolicy(cfg.Agent.Settle)
	if err != nil {
		return nil, fmt.Errorf("failed to build settle policy: %w", err)
	}
	observer := NewPageObserver(cfg.Agent.ObservationMaxChars, cfg.Agent.ObservationTimeout, settle, logger)
	oracle := NewActionOracle(llm, OracleConfig{
		Temperature:      float64(cfg.LLM.Temperature),
		TopP:             float64(cfg.LLM.TopP),
		MaxTokens:        cfg.LLM.MaxTokens,
		MaxResponseBytes: cfg.LLM.MaxResponseBytes,
		RequestTimeout:   cfg.LLM.APITimeout,
	}, logger)
	actuator := NewBrowserActuator(FirstTextMatch{}, logger)

	return NewLoop(sessions, observer, oracle, actuator, LoopConfig{
		MaxSteps:       cfg.Agent.MaxSteps,
		RetryBackoff:   cfg.Agent.RetryBackoff,
		ScreenshotPath: cfg.Agent.ScreenshotPath,
	}, logger, opts...), nil
}

// runState enforces that terminal states are never left.
type runState struct {
	current State
	logger  *zap.Logger
}

func (s *runState) set(next State) {
	if s.current == next {
		return
	}
	if s.current.Terminal() {
		s.logger.Warn("Attempted to transition out of a terminal state. Ignoring.",
			zap.String("current_state", string(s.current)),
			zap.String("attempted_state", string(next)))
		return
	}
	s.logger.Debug("Run state transition", zap.String("from", string(s.current)), zap.String("to", string(next)))
	s.current = next
}

// Run executes one objective to a terminal state. It never returns an error: every
// failure is reported in LoopResult.Error. The session is closed on every path.
func (l *Loop) Run(ctx context.Context, req RunRequest) (result schemas.LoopResult) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.MaxSteps == 0 {
		req.MaxSteps = l.cfg.MaxSteps
	}
	if req.ScreenshotPath == "" {
		req.ScreenshotPath = l.cfg.ScreenshotPath
	}

	logger := l.logger.With(zap.String("run_id", req.RunID))
	state := &runState{current: StateRunning, logger: logger}
	started := l.now()
	result = schemas.LoopResult{
		RunID:      req.RunID,
		Objective:  req.Objective,
		StartURL:   req.StartURL,
		MaxSteps:   req.MaxSteps,
		Transcript: []schemas.StepRecord{},
		StartedAt:  started.UTC(),
	}

	var runErr error
	defer func() {
		result.Outcome = state.current.outcome()
		if runErr != nil {
			result.Error = &schemas.RunError{Kind: string(KindOf(runErr)), Message: runErr.Error()}
		}
		result.FinishedAt = l.now().UTC()
		elapsed := result.FinishedAt.Sub(result.StartedAt)
		l.recorder.RunFinished(result.Outcome, KindOf(runErr), elapsed)
		logger.Info("Run finished.",
			zap.String("outcome", string(result.Outcome)),
			zap.Int("steps", len(result.Transcript)),
			zap.Duration("elapsed", elapsed),
			zap.Error(runErr))
	}()

	fail := func(err error) {
		runErr = err
		state.set(StateErrored)
	}

	if err := validateRequest(req); err != nil {
		fail(err)
		return result
	}
	if err := ctx.Err(); err != nil {
		fail(newError(ErrKindCanceled, "run", err))
		return result
	}

	logger.Info("Starting run.",
		zap.String("objective", req.Objective),
		zap.String("start_url", req.StartURL),
		zap.Int("max_steps", req.MaxSteps))

	session, err := l.sessions.NewSession(ctx)
	if err != nil {
		fail(newError(ErrKindSession, "acquire session", err))
		return result
	}
	defer func() {
		result.ScreenshotPath = l.teardown(ctx, session, req.ScreenshotPath, logger)
	}()

	if err := session.Navigate(ctx, req.StartURL); err != nil {
		if ctx.Err() != nil {
			fail(newError(ErrKindCanceled, "navigate", ctx.Err()))
		} else {
			fail(newError(ErrKindSession, "navigate", err))
		}
		return result
	}

	// A started step runs to completion; cancellation is honored between steps.
	stepCtx := context.WithoutCancel(ctx)
	for i := 0; !state.current.Terminal(); i++ {
		if i >= req.MaxSteps {
			state.set(StateMaxStepsReached)
			break
		}
		if err := ctx.Err(); err != nil {
			fail(newError(ErrKindCanceled, "run", err))
			break
		}

		rec, obs, err := l.step(stepCtx, session, req.Objective, i, logger)
		if obs != nil {
			result.FinalObservation = obs
		}
		if err != nil {
			fail(err)
			break
		}
		result.Transcript = append(result.Transcript, rec)
		if rec.Outcome.Status == schemas.OutcomeCompleted {
			state.set(StateCompleted)
		}
	}
	return result
}

// step performs one observe, propose, validate, execute cycle. The observation is
// returned whenever it was captured, even if a later stage failed.
func (l *Loop) step(ctx context.Context, session schemas.BrowserSession, objective string, index int, logger *zap.Logger) (schemas.StepRecord, *schemas.Observation, error) {
	started := l.now()
	logger = logger.With(zap.Int("step", index))

	obs, err := l.observe(ctx, session, logger)
	if err != nil {
		return schemas.StepRecord{}, nil, err
	}

	oracleStart := time.Now()
	proposal, err := l.oracle.Propose(ctx, objective, obs)
	l.recorder.OracleCall(time.Since(oracleStart), err)
	if err != nil {
		return schemas.StepRecord{}, &obs, err
	}

	action, err := Validate(proposal)
	if err != nil {
		logger.Warn("Oracle proposal rejected.",
			zap.String("action", proposal.Action),
			zap.String("target", proposal.Target),
			zap.Error(err))
		return schemas.StepRecord{}, &obs, err
	}

	outcome, err := l.actuator.Execute(ctx, session, action)
	if err != nil {
		return schemas.StepRecord{}, &obs, err
	}
	l.recorder.StepFinished(action.Kind(), outcome.Status)
	logger.Info("Step executed.",
		zap.String("action", string(action.Kind())),
		zap.String("target", action.Target()),
		zap.String("status", string(outcome.Status)))

	return schemas.StepRecord{
		StepIndex:   index,
		Observation: obs,
		Proposal:    proposal,
		Outcome:     outcome,
		StartedAt:   started.UTC(),
		Duration:    l.now().Sub(started),
	}, &obs, nil
}

// observe allows exactly one retry of an observation failure.
func (l *Loop) observe(ctx context.Context, session schemas.BrowserSession, logger *zap.Logger) (schemas.Observation, error) {
	obs, err := l.observer.Observe(ctx, session)
	if err == nil || !errors.Is(err, ErrObservation) {
		return obs, err
	}
	logger.Warn("Observation failed, retrying once.", zap.Duration("backoff", l.cfg.RetryBackoff), zap.Error(err))
	if serr := sleepCtx(ctx, l.cfg.RetryBackoff); serr != nil {
		return schemas.Observation{}, err
	}
	return l.observer.Observe(ctx, session)
}

// teardown captures the optional screenshot and closes the session on a context
// detached from the caller's, so a canceled run still releases the browser.
func (l *Loop) teardown(ctx context.Context, session schemas.BrowserSession, screenshotPath string, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.CloseTimeout)
	defer cancel()

	written := ""
	if screenshotPath != "" {
		if err := session.CaptureScreenshot(ctx, screenshotPath); err != nil {
			logger.Warn("Failed to capture final screenshot.", zap.String("path", screenshotPath), zap.Error(err))
		} else {
			written = screenshotPath
		}
	}
	if err := session.Close(ctx); err != nil {
		logger.Warn("Failed to close browser session.", zap.Error(err))
	}
	return written
}

func validateRequest(req RunRequest) error {
	if strings.TrimSpace(req.Objective) == "" {
		return newError(ErrKindInvalidRequest, "run", errors.New("objective must not be empty"))
	}
	if req.MaxSteps <= 0 {
		return newError(ErrKindInvalidRequest, "run", fmt.Errorf("max_steps must be positive, got %d", req.MaxSteps))
	}
	if err := checkNavigableURL(req.StartURL); err != nil {
		return newError(ErrKindInvalidRequest, "run", err)
	}
	return nil
}
