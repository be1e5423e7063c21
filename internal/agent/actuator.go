// internal/agent/actuator.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// BrowserActuator dispatches validated actions to a session. It keeps no state
// between calls.
type BrowserActuator struct {
	matcher Matcher
	logger  *zap.Logger
}

// NewBrowserActuator returns an actuator using m, or FirstTextMatch when m is nil.
func NewBrowserActuator(m Matcher, logger *zap.Logger) *BrowserActuator {
	if m == nil {
		m = FirstTextMatch{}
	}
	return &BrowserActuator{matcher: m, logger: logger.Named("actuator")}
}

// Execute performs the action. A missing target element, or a matched element
// that rejects the click or input, is an outcome, not an error. The returned
// error is always an ErrKindSession.
func (a *BrowserActuator) Execute(ctx context.Context, session schemas.BrowserSession, action ValidatedAction) (schemas.ActionOutcome, error) {
	switch act := action.(type) {
	case DoneAction:
		return schemas.ActionOutcome{Status: schemas.OutcomeCompleted}, nil

	case NavigateAction:
		if err := session.Navigate(ctx, act.url); err != nil {
			return schemas.ActionOutcome{}, newError(ErrKindSession, "navigate", err)
		}
		return schemas.ActionOutcome{Status: schemas.OutcomeSuccess, Detail: "navigated to " + act.url}, nil

	case ClickAction:
		el, err := a.matcher.Match(ctx, session, act.text, schemas.RoleClickable)
		if err != nil {
			return schemas.ActionOutcome{}, newError(ErrKindSession, "click", err)
		}
		if el == nil {
			a.logger.Info("No clickable element matched.", zap.String("text", act.text))
			return notFound("no clickable element contains %q", act.text), nil
		}
		if err := session.Click(ctx, el); err != nil {
			return a.actionFailed("click", el, err)
		}
		return schemas.ActionOutcome{Status: schemas.OutcomeSuccess, Detail: fmt.Sprintf("clicked <%s> %q", el.Tag, el.Text)}, nil

	case TypeAction:
		// The typed text is the value, not a locator; any editable will do.
		el, err := a.matcher.Match(ctx, session, "", schemas.RoleEditable)
		if err != nil {
			return schemas.ActionOutcome{}, newError(ErrKindSession, "type", err)
		}
		if el == nil {
			a.logger.Info("No editable element on page.")
			return notFound("no editable element on page"), nil
		}
		if err := session.SetValue(ctx, el, act.text); err != nil {
			return a.actionFailed("type", el, err)
		}
		return schemas.ActionOutcome{Status: schemas.OutcomeSuccess, Detail: fmt.Sprintf("typed into <%s>", el.Tag)}, nil

	default:
		return schemas.ActionOutcome{}, newError(ErrKindSession, "execute", fmt.Errorf("unsupported action type %T", action))
	}
}

// actionFailed keeps the run going when the element refused the action. Only a
// session that can no longer drive its tab ends the run.
func (a *BrowserActuator) actionFailed(op string, el *schemas.ElementRef, err error) (schemas.ActionOutcome, error) {
	if errors.Is(err, schemas.ErrSessionClosed) || errors.Is(err, context.Canceled) {
		return schemas.ActionOutcome{}, newError(ErrKindSession, op, err)
	}
	a.logger.Info("Action on matched element failed.", zap.String("op", op), zap.String("tag", el.Tag), zap.Error(err))
	return schemas.ActionOutcome{
		Status: schemas.OutcomeActionFailed,
		Detail: fmt.Sprintf("%s on <%s> %q failed: %v", op, el.Tag, el.Text, err),
	}, nil
}

func notFound(format string, args ...any) schemas.ActionOutcome {
	return schemas.ActionOutcome{Status: schemas.OutcomeElementNotFound, Detail: fmt.Sprintf(format, args...)}
}
