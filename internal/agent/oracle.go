// internal/agent/oracle.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/llmutil"
)

// OracleConfig holds the generation limits for action decisions.
type OracleConfig struct {
	Temperature      float64
	TopP             float64
	MaxTokens        int
	MaxResponseBytes int
	RequestTimeout   time.Duration
}

// DefaultOracleConfig returns the deterministic-leaning limits used for decisions.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		Temperature:      0.1,
		MaxTokens:        500,
		MaxResponseBytes: 8 << 10,
		RequestTimeout:   30 * time.Second,
	}
}

// ActionOracle asks the reasoning model for the next action. Every Propose call
// makes exactly one request; there is no retry here.
type ActionOracle struct {
	llm    schemas.LLMClient
	cfg    OracleConfig
	logger *zap.Logger
}

func NewActionOracle(llm schemas.LLMClient, cfg OracleConfig, logger *zap.Logger) *ActionOracle {
	return &ActionOracle{
		llm:    llm,
		cfg:    cfg,
		logger: logger.Named("oracle"),
	}
}

// wireProposal distinguishes a missing action key from an empty one.
type wireProposal struct {
	Thought string  `json:"thought"`
	Action  *string `json:"action"`
	Target  string  `json:"target"`
}

const systemPrompt = `You are an AI Web Browsing Agent named Nova Act.
You operate a real web browser one step at a time to achieve the user's objective.

Available actions:
- "click": click the link or button whose visible text contains "target".
- "type": type "target" into the focused (or first) text input on the page.
- "navigate": load the absolute http(s) URL given in "target".
- "done": the objective is complete; "target" may be empty.

Respond ONLY with a single valid JSON object in exactly this format, with no other text:
{"thought": "your reasoning here", "action": "click|type|navigate|done", "target": "link text or button text to click, OR text to type, OR URL to navigate to"}`

func buildUserPrompt(objective string, obs schemas.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your objective is: %q\n\n", objective)
	fmt.Fprintf(&b, "Current URL: %s\n", obs.URL)
	if obs.Truncated {
		b.WriteString("Visible Page Text (Truncated):\n")
	} else {
		b.WriteString("Visible Page Text:\n")
	}
	b.WriteString(obs.VisibleText)
	b.WriteString("\n\nBased on your objective and the page content, what should be your next interaction?")
	return b.String()
}

// Propose returns the oracle's raw proposal. Transport failures are
// ErrKindOracleUnavailable; anything unparseable is ErrKindOracleMalformed.
func (o *ActionOracle) Propose(ctx context.Context, objective string, obs schemas.Observation) (schemas.ActionProposal, error) {
	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(objective, obs),
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.Temperature,
			TopP:            o.cfg.TopP,
			MaxTokens:       o.cfg.MaxTokens,
			ForceJSONFormat: true,
		},
	}

	raw, err := o.llm.Generate(ctx, req)
	if err != nil {
		return schemas.ActionProposal{}, newError(ErrKindOracleUnavailable, "propose", err)
	}

	wp, err := llmutil.ParseJSONObject[wireProposal](raw, o.cfg.MaxResponseBytes)
	if err != nil {
		o.logger.Warn("Oracle response could not be parsed.",
			zap.Int("bytes", len(raw)),
			zap.String("excerpt", llmutil.Truncate(raw, 200)),
			zap.Error(err))
		return schemas.ActionProposal{}, newError(ErrKindOracleMalformed, "propose", err)
	}
	if wp.Action == nil {
		return schemas.ActionProposal{}, newError(ErrKindOracleMalformed, "propose", errors.New(`response is missing required key "action"`))
	}

	p := schemas.ActionProposal{Thought: wp.Thought, Action: *wp.Action, Target: wp.Target}
	o.logger.Debug("Oracle proposed action.",
		zap.String("action", p.Action),
		zap.String("target", p.Target),
		zap.String("thought", p.Thought))
	return p, nil
}
