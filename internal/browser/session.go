// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = schemas.ErrSessionClosed

// ErrNoDocument is returned when the tab has no readable document body.
var ErrNoDocument = errors.New("document has no body")

// Session is one browser tab. It implements schemas.BrowserSession and is
// owned by a single run at a time.
type Session struct {
	id     string
	ctx    context.Context // Tab context; carries the CDP target.
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	refSeq atomic.Int64

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var (
	_ schemas.BrowserSession = (*Session)(nil)
	_ schemas.HTMLSource     = (*Session)(nil)
)

func newSession(tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", id)),
		cfg:     cfg,
		onClose: onClose,
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// runActions executes chromedp actions bounded by both the tab and the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Prefer the context error so callers can classify cancellations.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		return err
	}
	return nil
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating session.", zap.String("url", url))

	navCtx, navCancel := withTimeout(ctx, s.cfg.NavigationTimeout)
	defer navCancel()

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, s.cfg.NavigationTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

type queryResult struct {
	Ref  string `json:"ref"`
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

func (s *Session) QueryByVisibleText(ctx context.Context, substring string, role schemas.ElementRole) (*schemas.ElementRef, error) {
	ref := fmt.Sprintf("%s-%d", s.id[:8], s.refSeq.Add(1))
	script, err := buildQueryScript(substring, role, ref)
	if err != nil {
		return nil, err
	}

	actionCtx, cancel := withTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	var res *queryResult
	if err := s.runActions(actionCtx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	})); err != nil {
		return nil, fmt.Errorf("element query failed: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	s.logger.Debug("Element located.", zap.String("role", string(role)), zap.String("tag", res.Tag), zap.String("ref", res.Ref))
	return &schemas.ElementRef{Ref: res.Ref, Tag: res.Tag, Text: res.Text}, nil
}

func (s *Session) Click(ctx context.Context, el *schemas.ElementRef) error {
	if el == nil {
		return fmt.Errorf("click: nil element")
	}
	actionCtx, cancel := withTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if err := s.runActions(actionCtx, chromedp.Click(refSelector(el.Ref), chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click on <%s> failed: %w", el.Tag, err)
	}
	return nil
}

func (s *Session) SetValue(ctx context.Context, el *schemas.ElementRef, text string) error {
	if el == nil {
		return fmt.Errorf("set value: nil element")
	}
	actionCtx, cancel := withTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	var ok bool
	if err := s.runActions(actionCtx, chromedp.Evaluate(buildSetValueScript(el.Ref, text), &ok)); err != nil {
		return fmt.Errorf("set value on <%s> failed: %w", el.Tag, err)
	}
	if !ok {
		return fmt.Errorf("set value on <%s> failed: element is gone", el.Tag)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.runActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text *string
	if err := s.runActions(ctx, chromedp.Evaluate(bodyTextScript, &text)); err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	if text == nil {
		return "", ErrNoDocument
	}
	return *text, nil
}

// OuterHTML returns the serialized document, for content extraction.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html *string
	if err := s.runActions(ctx, chromedp.Evaluate(outerHTMLScript, &html)); err != nil {
		return "", fmt.Errorf("failed to read document HTML: %w", err)
	}
	if html == nil {
		return "", ErrNoDocument
	}
	return *html, nil
}

// CaptureScreenshot writes a full-page PNG. A leading ~ in path is expanded.
func (s *Session) CaptureScreenshot(ctx context.Context, path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid screenshot path %q: %w", path, err)
	}

	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := s.runActions(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}

	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create screenshot directory: %w", err)
		}
	}
	if err := os.WriteFile(expanded, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	s.logger.Debug("Screenshot written.", zap.String("path", expanded), zap.Int("bytes", len(buf)))
	return nil
}

// Close closes the tab. Subsequent calls are no-ops.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	// chromedp.Cancel closes the target and waits for it, bounded by ctx.
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()

	if s.onClose != nil {
		s.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Error while closing browser tab.", zap.Error(err))
		return fmt.Errorf("failed to close session: %w", err)
	}
	s.logger.Debug("Session closed.")
	return nil
}
