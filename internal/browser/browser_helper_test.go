// internal/browser/browser_helper_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kanakapalli/nova-act/internal/config"
)

const browserTestTimeout = 60 * time.Second

// chromeCandidates are the binary names chromedp itself probes on Linux and macOS.
var chromeCandidates = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// requireChrome skips the test when no Chrome-compatible browser is installed.
func requireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if p := os.Getenv("NOVACT_BROWSER_EXEC_PATH"); p != "" {
		return p
	}
	for _, c := range chromeCandidates {
		if p, err := exec.LookPath(c); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found; skipping browser integration test")
	return ""
}

// testFixture bundles a manager, one open session and the test context.
type testFixture struct {
	Manager *Manager
	Session *Session
	Ctx     context.Context
}

func createTestConfig(execPath string) config.BrowserConfig {
	cfg := config.NewDefaultConfig().Browser
	cfg.Headless = true
	cfg.ExecPath = execPath
	cfg.NavigationTimeout = 20 * time.Second
	cfg.ActionTimeout = 5 * time.Second
	return cfg
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	execPath := requireChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), browserTestTimeout)
	t.Cleanup(cancel)

	m := NewManager(createTestConfig(execPath), zaptest.NewLogger(t))
	t.Cleanup(func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
		defer c()
		_ = m.Shutdown(shutdownCtx)
	})

	bs, err := m.NewSession(ctx)
	require.NoError(t, err)
	s := bs.(*Session)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return &testFixture{Manager: m, Session: s, Ctx: ctx}
}

// serveHTML starts a server that answers every path with body.
func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
