// internal/agent/validator.go
package agent

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// ValidatedAction is a proposal that passed Validate. The concrete types are
// NavigateAction, ClickAction, TypeAction and DoneAction; dispatch on them with a
// type switch. Values built outside Validate carry no guarantees.
type ValidatedAction interface {
	Kind() schemas.ActionKind
	Target() string
	validated()
}

// NavigateAction loads an absolute http(s) URL.
type NavigateAction struct{ url string }

// ClickAction clicks the first clickable element whose visible text contains the target.
type ClickAction struct{ text string }

// TypeAction enters text into the focused or first editable element.
type TypeAction struct{ text string }

// DoneAction ends the run as completed.
type DoneAction struct{}

func (a NavigateAction) Kind() schemas.ActionKind { return schemas.ActionNavigate }
func (a NavigateAction) Target() string           { return a.url }
func (NavigateAction) validated()                 {}

func (a ClickAction) Kind() schemas.ActionKind { return schemas.ActionClick }
func (a ClickAction) Target() string           { return a.text }
func (ClickAction) validated()                 {}

func (a TypeAction) Kind() schemas.ActionKind { return schemas.ActionType }
func (a TypeAction) Target() string           { return a.text }
func (TypeAction) validated()                 {}

func (DoneAction) Kind() schemas.ActionKind { return schemas.ActionDone }
func (DoneAction) Target() string           { return "" }
func (DoneAction) validated()               {}

// Validate checks a proposal against the action schema. It has no side effects.
// Every rejection is an ErrKindInvalidAction.
func Validate(p schemas.ActionProposal) (ValidatedAction, error) {
	kind := schemas.ActionKind(strings.ToLower(strings.TrimSpace(p.Action)))
	target := strings.TrimSpace(p.Target)

	switch kind {
	case schemas.ActionDone:
		return DoneAction{}, nil

	case schemas.ActionNavigate:
		if target == "" {
			return nil, invalid("navigate requires a target URL")
		}
		if err := checkNavigableURL(target); err != nil {
			return nil, invalid(err.Error())
		}
		return NavigateAction{url: target}, nil

	case schemas.ActionClick:
		if target == "" {
			return nil, invalid("click requires non-empty target text")
		}
		return ClickAction{text: target}, nil

	case schemas.ActionType:
		// Typed text keeps its inner whitespace; only emptiness is checked on the trimmed form.
		if target == "" {
			return nil, invalid("type requires non-empty text")
		}
		return TypeAction{text: p.Target}, nil

	default:
		return nil, invalid(fmt.Sprintf("unknown action %q (allowed: %s)", p.Action, allowedActions()))
	}
}

func checkNavigableURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("navigate target is not a URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("navigate target %q must be an absolute http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("navigate target %q has no host", raw)
	}
	return nil
}

func allowedActions() string {
	names := make([]string, len(schemas.ActionKinds))
	for i, k := range schemas.ActionKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func invalid(msg string) error {
	return newError(ErrKindInvalidAction, "validate", errors.New(msg))
}
