// internal/agent/matcher.go
package agent

import (
	"context"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// Matcher resolves action target text to an element. A nil ref with a nil
// error means nothing matched.
type Matcher interface {
	Match(ctx context.Context, session schemas.BrowserSession, text string, role schemas.ElementRole) (*schemas.ElementRef, error)
}

// FirstTextMatch picks the first element of the role, in document order, whose
// visible text contains the target (case-sensitive). Ambiguous matches are not
// disambiguated: first match wins.
type FirstTextMatch struct{}

func (FirstTextMatch) Match(ctx context.Context, session schemas.BrowserSession, text string, role schemas.ElementRole) (*schemas.ElementRef, error) {
	return session.QueryByVisibleText(ctx, text, role)
}
