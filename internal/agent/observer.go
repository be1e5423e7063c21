// internal/agent/observer.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t\f\v]+\n`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// DefaultObservationTimeout bounds one observation when none is configured.
const DefaultObservationTimeout = 30 * time.Second

// PageObserver captures a bounded textual snapshot of the current page.
type PageObserver struct {
	maxChars int
	timeout  time.Duration
	settle   SettlePolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewPageObserver creates an observer that keeps at most maxChars runes of body text.
// Settling and reading the page together may take at most timeout; a
// non-positive timeout selects DefaultObservationTimeout.
func NewPageObserver(maxChars int, timeout time.Duration, settle SettlePolicy, logger *zap.Logger) *PageObserver {
	if settle == nil {
		settle = FixedDelay{}
	}
	if timeout <= 0 {
		timeout = DefaultObservationTimeout
	}
	return &PageObserver{
		maxChars: maxChars,
		timeout:  timeout,
		settle:   settle,
		logger:   logger.Named("observer"),
		now:      time.Now,
	}
}

// Observe waits per the settle policy, then reads the URL and the body text.
// Any failure, including running past the observation timeout, is an
// ErrKindObservation.
func (o *PageObserver) Observe(ctx context.Context, session schemas.BrowserSession) (schemas.Observation, error) {
	obsCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.settle.Settle(obsCtx, session); err != nil {
		return schemas.Observation{}, o.fail(obsCtx, fmt.Errorf("settle: %w", err))
	}

	url, err := session.URL(obsCtx)
	if err != nil {
		return schemas.Observation{}, o.fail(obsCtx, err)
	}
	raw, err := session.BodyText(obsCtx)
	if err != nil {
		return schemas.Observation{}, o.fail(obsCtx, err)
	}

	text, truncated := TruncateRunes(NormalizeText(raw), o.maxChars)
	o.logger.Debug("Page observed.",
		zap.String("url", url),
		zap.Int("chars", utf8.RuneCountInString(text)),
		zap.Bool("truncated", truncated))

	return schemas.Observation{
		URL:         url,
		VisibleText: text,
		Truncated:   truncated,
		CapturedAt:  o.now().UTC(),
	}, nil
}

func (o *PageObserver) fail(obsCtx context.Context, err error) error {
	if errors.Is(obsCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("page did not respond within %v: %w", o.timeout, err)
	}
	return newError(ErrKindObservation, "observe", err)
}

// NormalizeText strips trailing whitespace from lines and collapses runs of blank
// lines into one.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankLineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// TruncateRunes keeps at most max runes of s and reports whether anything was cut.
// It never splits a multi-byte character.
func TruncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return "", s != ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
