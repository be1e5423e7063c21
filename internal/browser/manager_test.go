// internal/browser/manager_test.go
package browser

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kanakapalli/nova-act/internal/config"
)

func TestBuildAllocatorOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.UserAgent = "novact-test"
	cfg.Args = []string{"--lang=de-DE", "--mute-audio", "--"}
	m := NewManager(cfg, zaptest.NewLogger(t))

	opts, err := m.buildAllocatorOptions()
	require.NoError(t, err)

	// Defaults, five fixed flags, window size, user agent, two custom args.
	want := len(chromedp.DefaultExecAllocatorOptions) + 5 + 1 + 1 + 2
	if runtime.GOOS == "linux" {
		want += 2
	}
	assert.Len(t, opts, want)
}

func TestBuildAllocatorOptions_InvalidExecPath(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.ExecPath = "~otheruser/chrome"
	m := NewManager(cfg, zaptest.NewLogger(t))

	_, err := m.buildAllocatorOptions()
	assert.ErrorContains(t, err, "invalid browser exec_path")
}

func TestManager_ShutdownWithoutLaunch(t *testing.T) {
	m := NewManager(config.NewDefaultConfig().Browser, zaptest.NewLogger(t))
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.NewSession(context.Background())
	assert.ErrorIs(t, err, ErrManagerShutdown)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	fx := newTestFixture(t)
	srv := serveHTML(t, `<html><body><p>isolated</p></body></html>`)

	other, err := fx.Manager.NewSession(fx.Ctx)
	require.NoError(t, err)
	defer other.Close(context.Background())

	require.NoError(t, fx.Session.Navigate(fx.Ctx, srv.URL+"/a"))
	require.NoError(t, other.Navigate(fx.Ctx, srv.URL+"/b"))

	urlA, err := fx.Session.URL(fx.Ctx)
	require.NoError(t, err)
	urlB, err := other.URL(fx.Ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(urlA, "/a"))
	assert.True(t, strings.HasSuffix(urlB, "/b"))
}

func TestManager_ShutdownWaitsForSessions(t *testing.T) {
	fx := newTestFixture(t)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = fx.Session.Close(context.Background())
	}()

	start := time.Now()
	require.NoError(t, fx.Manager.Shutdown(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestNavigate_ConnectionRefused(t *testing.T) {
	fx := newTestFixture(t)
	err := fx.Session.Navigate(fx.Ctx, "http://127.0.0.1:1/unreachable")
	assert.ErrorContains(t, err, "navigation to http://127.0.0.1:1/unreachable failed")
}
