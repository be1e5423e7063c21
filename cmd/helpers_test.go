// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
	"github.com/kanakapalli/nova-act/internal/metrics"
	"github.com/kanakapalli/nova-act/internal/observability"
)

// fakeLLM answers every request through respond. Safe for concurrent use.
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	respond func(req schemas.GenerationRequest) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func answer(s string) *fakeLLM {
	return &fakeLLM{respond: func(schemas.GenerationRequest) (string, error) { return s, nil }}
}

// stubSession serves the same static page at whatever URL it is sent to.
type stubSession struct {
	mu  sync.Mutex
	url string
}

func (s *stubSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}

func (s *stubSession) QueryByVisibleText(context.Context, string, schemas.ElementRole) (*schemas.ElementRef, error) {
	return nil, nil
}
func (s *stubSession) Click(context.Context, *schemas.ElementRef) error            { return nil }
func (s *stubSession) SetValue(context.Context, *schemas.ElementRef, string) error { return nil }

func (s *stubSession) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *stubSession) BodyText(context.Context) (string, error) {
	return "Example Domain\nThis domain is for use in illustrative examples.", nil
}
func (s *stubSession) CaptureScreenshot(context.Context, string) error { return nil }
func (s *stubSession) Close(context.Context) error                     { return nil }

type stubFactory struct{}

func (stubFactory) NewSession(context.Context) (schemas.BrowserSession, error) {
	return &stubSession{}, nil
}

// useDependencies swaps the dependency builder for one returning llm and a stub browser.
func useDependencies(t *testing.T, llm schemas.LLMClient) {
	t.Helper()
	newDependencies = func(context.Context, *config.Config, *zap.Logger) (*dependencies, error) {
		return &dependencies{sessions: stubFactory{}, llm: llm, recorder: metrics.New()}, nil
	}
	t.Cleanup(func() { newDependencies = buildDependencies })
}

func failDependencies(t *testing.T) {
	t.Helper()
	newDependencies = func(context.Context, *config.Config, *zap.Logger) (*dependencies, error) {
		return nil, errors.New("failed to initialize LLM client: missing API key")
	}
	t.Cleanup(func() { newDependencies = buildDependencies })
}

// executeCommand runs a fresh command tree with quiet, fast settings.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("NOVACT_LOGGER_LEVEL", "error")
	t.Setenv("NOVACT_AGENT_SETTLE_DELAY", "0s")
	t.Setenv("NOVACT_AGENT_EXTRACTION_SETTLE_DELAY", "0s")
	t.Setenv("NOVACT_AGENT_RETRY_BACKOFF", "0s")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}
