// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
)

// ErrManagerShutdown is returned by NewSession after Shutdown.
var ErrManagerShutdown = errors.New("browser manager is shut down")

// Manager owns the headless browser process and hands out one tab per session.
// The process is launched lazily on the first NewSession call.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx owns the browser process; browserCtx is the first (root) tab
	// context, whose cancellation terminates the browser.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	shutdown bool

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

var _ schemas.SessionFactory = (*Manager)(nil)

// NewManager creates a browser manager. No process is started until a session is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
}

// launch starts the browser process exactly once.
func (m *Manager) launch() error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching headless browser...", zap.Bool("headless", m.cfg.Headless))

		opts, err := m.buildAllocatorOptions()
		if err != nil {
			m.initErr = err
			return
		}

		// The browser outlives any single request, so it hangs off Background.
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
			chromedp.WithLogf(m.logger.Sugar().Debugf),
			chromedp.WithErrorf(m.logger.Sugar().Debugf),
		)

		// The first Run allocates the process. It must not carry a timeout, or the
		// browser would die with it.
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.browserCancel()
			m.allocatorCancel()
			m.initErr = fmt.Errorf("browser failed to start: %w", err)
			return
		}
		m.logger.Info("Browser launched successfully.")
	})
	return m.initErr
}

// buildAllocatorOptions assembles the flags for a configurable headless instance.
func (m *Manager) buildAllocatorOptions() ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// A false value removes a default flag; this one sets navigator.webdriver.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
	)

	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	if m.cfg.ExecPath != "" {
		path, err := homedir.Expand(m.cfg.ExecPath)
		if err != nil {
			return nil, fmt.Errorf("invalid browser exec_path %q: %w", m.cfg.ExecPath, err)
		}
		opts = append(opts, chromedp.ExecPath(path))
	}

	// Custom arguments, "--name=value" or "--name".
	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Containers on Linux usually lack a usable sandbox and a large /dev/shm.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts, nil
}

// NewSession opens a fresh tab. The returned session must be closed by the caller.
func (m *Manager) NewSession(ctx context.Context) (schemas.BrowserSession, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrManagerShutdown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.launch(); err != nil {
		m.wg.Done()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		m.wg.Done()
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	// First Run on a tab context creates the target.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		m.wg.Done()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	var once sync.Once
	s := newSession(tabCtx, tabCancel, m.cfg, m.logger, func() { once.Do(m.wg.Done) })
	m.logger.Debug("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown waits for open sessions, bounded by ctx, then terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
		m.logger.Info("Browser process terminated.")
	}
	return nil
}
