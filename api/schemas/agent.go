package schemas

import (
	"time"
)

// Observation is the snapshot of page state captured before each decision.
type Observation struct {
	URL         string    `json:"url"`
	VisibleText string    `json:"visible_text"` // Normalized and truncated body text.
	Truncated   bool      `json:"truncated"`    // True when VisibleText was cut to the configured bound.
	CapturedAt  time.Time `json:"captured_at"`
}

// ActionKind is the closed vocabulary of actions the oracle may propose.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate" // Load the URL in Target.
	ActionClick    ActionKind = "click"    // Click the element whose visible text contains Target.
	ActionType     ActionKind = "type"     // Type Target into the focused or first editable element.
	ActionDone     ActionKind = "done"     // The objective is complete.
)

// ActionKinds lists every valid ActionKind in prompt order.
var ActionKinds = []ActionKind{ActionClick, ActionType, ActionNavigate, ActionDone}

// ActionProposal is the oracle's suggested next step, before validation.
type ActionProposal struct {
	Thought string `json:"thought"`
	Action  string `json:"action"`
	Target  string `json:"target"`
}

// OutcomeStatus classifies what happened when an action was executed.
type OutcomeStatus string

const (
	OutcomeSuccess         OutcomeStatus = "success"
	OutcomeElementNotFound OutcomeStatus = "element_not_found"
	OutcomeActionFailed    OutcomeStatus = "action_failed" // A matched element rejected the click or input.
	OutcomeCompleted       OutcomeStatus = "completed"     // The action was done; nothing was executed.
)

// ActionOutcome is the result of dispatching one validated action to the browser.
type ActionOutcome struct {
	Status OutcomeStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
}

// StepRecord is one append-only entry of a run transcript.
type StepRecord struct {
	StepIndex   int            `json:"step_index"`
	Observation Observation    `json:"observation"`
	Proposal    ActionProposal `json:"proposal"`
	Outcome     ActionOutcome  `json:"outcome"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration"`
}

// RunOutcome names the terminal state a run ended in.
type RunOutcome string

const (
	RunCompleted       RunOutcome = "completed"
	RunMaxStepsReached RunOutcome = "max_steps_reached"
	RunErrored         RunOutcome = "error"
)

// RunError carries the kind and a readable message of the error that ended a run.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LoopResult is the terminal summary of one run. It is the only state that outlives the run.
type LoopResult struct {
	RunID            string       `json:"run_id"`
	Objective        string       `json:"objective"`
	StartURL         string       `json:"start_url"`
	MaxSteps         int          `json:"max_steps"`
	Outcome          RunOutcome   `json:"outcome"`
	Transcript       []StepRecord `json:"transcript"`
	FinalObservation *Observation `json:"final_observation,omitempty"`
	Error            *RunError    `json:"error,omitempty"`
	ScreenshotPath   string       `json:"screenshot_path,omitempty"` // Diagnostic artifact; empty when not written.
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}
