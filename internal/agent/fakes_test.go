// internal/agent/fakes_test.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface used by ActionOracle.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return nil
}

// -- Browser Session Fake --

type fakeElement struct {
	tag     string
	text    string
	role    schemas.ElementRole
	focused bool
	href    string // Clicking navigates here when set.
}

type fakePage struct {
	body     string
	elements []fakeElement
}

// fakeSession is an in-memory BrowserSession. Unknown URLs load an empty page.
type fakeSession struct {
	mu sync.Mutex

	url   string
	pages map[string]fakePage

	navigateErr   error
	queryErr      error
	clickErr      error
	setValueErr   error
	bodyErrs      []error // Consumed one per BodyText call before reads succeed.
	blockBody     bool    // BodyText hangs until its context is done.
	screenshotErr error

	navigations []string
	clicks      []string
	typed       map[string]string
	screenshots []string
	closed      int
}

func newFakeSession(pages map[string]fakePage) *fakeSession {
	if pages == nil {
		pages = map[string]fakePage{}
	}
	return &fakeSession{pages: pages, typed: map[string]string{}}
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navigateErr != nil {
		return s.navigateErr
	}
	s.navigations = append(s.navigations, url)
	s.url = url
	return nil
}

func (s *fakeSession) QueryByVisibleText(_ context.Context, substring string, role schemas.ElementRole) (*schemas.ElementRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	els := s.pages[s.url].elements
	ref := func(i int) *schemas.ElementRef {
		return &schemas.ElementRef{Ref: fmt.Sprintf("el-%d", i), Tag: els[i].tag, Text: els[i].text}
	}
	if role == schemas.RoleEditable {
		for i, el := range els {
			if el.role == role && el.focused && strings.Contains(el.text, substring) {
				return ref(i), nil
			}
		}
	}
	for i, el := range els {
		if el.role == role && strings.Contains(el.text, substring) {
			return ref(i), nil
		}
	}
	return nil, nil
}

func (s *fakeSession) element(ref string) (fakeElement, error) {
	var i int
	if _, err := fmt.Sscanf(ref, "el-%d", &i); err != nil {
		return fakeElement{}, err
	}
	els := s.pages[s.url].elements
	if i < 0 || i >= len(els) {
		return fakeElement{}, errors.New("stale element ref")
	}
	return els[i], nil
}

func (s *fakeSession) Click(_ context.Context, el *schemas.ElementRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clickErr != nil {
		return s.clickErr
	}
	target, err := s.element(el.Ref)
	if err != nil {
		return err
	}
	s.clicks = append(s.clicks, target.text)
	if target.href != "" {
		s.url = target.href
	}
	return nil
}

func (s *fakeSession) SetValue(_ context.Context, el *schemas.ElementRef, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setValueErr != nil {
		return s.setValueErr
	}
	if _, err := s.element(el.Ref); err != nil {
		return err
	}
	s.typed[el.Ref] = text
	return nil
}

func (s *fakeSession) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *fakeSession) BodyText(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.blockBody {
		s.mu.Unlock()
		<-ctx.Done()
		return "", fmt.Errorf("failed to read body text: %w", ctx.Err())
	}
	defer s.mu.Unlock()
	if len(s.bodyErrs) > 0 {
		err := s.bodyErrs[0]
		s.bodyErrs = s.bodyErrs[1:]
		return "", err
	}
	return s.pages[s.url].body, nil
}

func (s *fakeSession) CaptureScreenshot(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenshotErr != nil {
		return s.screenshotErr
	}
	s.screenshots = append(s.screenshots, path)
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory hands out one prepared session.
type fakeFactory struct {
	session *fakeSession
	err     error
	calls   int
}

func (f *fakeFactory) NewSession(context.Context) (schemas.BrowserSession, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// oracleFunc adapts a function to the Oracle interface.
type oracleFunc func(ctx context.Context, objective string, obs schemas.Observation) (schemas.ActionProposal, error)

func (f oracleFunc) Propose(ctx context.Context, objective string, obs schemas.Observation) (schemas.ActionProposal, error) {
	return f(ctx, objective, obs)
}

// recordingRecorder captures telemetry calls.
type recordingRecorder struct {
	mu          sync.Mutex
	runs        []schemas.RunOutcome
	kinds       []ErrorKind
	steps       []string
	oracleCalls int
	oracleErrs  int
}

func (r *recordingRecorder) RunFinished(outcome schemas.RunOutcome, kind ErrorKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, outcome)
	r.kinds = append(r.kinds, kind)
}

func (r *recordingRecorder) StepFinished(action schemas.ActionKind, status schemas.OutcomeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, string(action)+"/"+string(status))
}

func (r *recordingRecorder) OracleCall(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracleCalls++
	if err != nil {
		r.oracleErrs++
	}
}
