// internal/extract/extract.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/agent"
	"github.com/kanakapalli/nova-act/internal/config"
)

const (
	SourceBody        = "body"
	SourceReadability = "readability"
)

const extractionSystemPrompt = "You are a specialized AI assistant that accurately extracts and structures information from web text."

// Request asks a single question about a single page.
type Request struct {
	Objective string `json:"objective"`
	URL       string `json:"url"`
	// Readability reduces the page to its main article before prompting.
	Readability bool `json:"readability,omitempty"`
}

// Result is the answer to an extraction Request.
type Result struct {
	URL       string `json:"url"`
	Objective string `json:"objective"`
	Answer    string `json:"answer"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source"`
	Truncated bool   `json:"truncated"`
}

// Extractor loads one page, reads it once and asks the model to answer the objective from its text.
type Extractor struct {
	sessions     schemas.SessionFactory
	llm          schemas.LLMClient
	settle       agent.SettlePolicy
	cfg          config.ExtractConfig
	closeTimeout time.Duration
	logger       *zap.Logger
}

func NewExtractor(sessions schemas.SessionFactory, llm schemas.LLMClient, cfg config.ExtractConfig, logger *zap.Logger) (*Extractor, error) {
	settle, err := agent.NewSettlePolicy(cfg.Settle)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction settle policy: %w", err)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = agent.DefaultObservationTimeout
	}
	return &Extractor{
		sessions:     sessions,
		llm:          llm,
		settle:       settle,
		cfg:          cfg,
		closeTimeout: 10 * time.Second,
		logger:       logger.Named("extract"),
	}, nil
}

// Extract runs the request. Errors are *agent.Error values classified with the
// same kinds as agent runs.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, &agent.Error{Kind: agent.ErrKindInvalidRequest, Op: "extract", Err: err}
	}

	session, err := e.sessions.NewSession(ctx)
	if err != nil {
		return nil, &agent.Error{Kind: agent.ErrKindSession, Op: "acquire session", Err: err}
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.closeTimeout)
		defer cancel()
		if cerr := session.Close(closeCtx); cerr != nil {
			e.logger.Warn("Failed to close browser session.", zap.Error(cerr))
		}
	}()

	if err := session.Navigate(ctx, req.URL); err != nil {
		return nil, &agent.Error{Kind: agent.ErrKindSession, Op: "navigate", Err: err}
	}

	text, title, source, err := e.capture(ctx, session, req)
	if err != nil {
		return nil, err
	}
	text, truncated := agent.TruncateRunes(agent.NormalizeText(text), e.cfg.MaxChars)

	e.logger.Info("Page captured for extraction.",
		zap.String("url", req.URL),
		zap.String("source", source),
		zap.Int("bytes", len(text)),
		zap.Bool("truncated", truncated))

	answer, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   buildPrompt(req.Objective, req.URL, text),
		Options: schemas.GenerationOptions{
			Temperature: float64(e.cfg.Temperature),
			TopP:        float64(e.cfg.TopP),
			MaxTokens:   e.cfg.MaxTokens,
		},
	})
	if err != nil {
		return nil, &agent.Error{Kind: agent.ErrKindOracleUnavailable, Op: "extract", Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &agent.Error{Kind: agent.ErrKindOracleMalformed, Op: "extract", Err: errors.New("model returned no text")}
	}

	return &Result{
		URL:       req.URL,
		Objective: req.Objective,
		Answer:    answer,
		Title:     title,
		Source:    source,
		Truncated: truncated,
	}, nil
}

// capture settles and reads the page within the configured read timeout.
func (e *Extractor) capture(ctx context.Context, session schemas.BrowserSession, req Request) (text, title, source string, err error) {
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.ReadTimeout)
	defer cancel()

	wrap := func(op string, err error) error {
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("page did not respond within %v: %w", e.cfg.ReadTimeout, err)
		}
		return &agent.Error{Kind: agent.ErrKindObservation, Op: op, Err: err}
	}

	if err := e.settle.Settle(readCtx, session); err != nil {
		return "", "", "", wrap("settle", err)
	}
	text, title, source, err = e.readPage(readCtx, session, req)
	if err != nil {
		return "", "", "", wrap("read page", err)
	}
	return text, title, source, nil
}

// readPage prefers the readability article when asked for and available, and
// falls back to the rendered body text otherwise.
func (e *Extractor) readPage(ctx context.Context, session schemas.BrowserSession, req Request) (text, title, source string, err error) {
	if req.Readability {
		if src, ok := session.(schemas.HTMLSource); ok {
			article, rerr := articleFrom(ctx, src, req.URL)
			if rerr == nil && strings.TrimSpace(article.TextContent) != "" {
				return article.TextContent, strings.TrimSpace(article.Title), SourceReadability, nil
			}
			e.logger.Warn("Readability extraction unavailable, using body text.", zap.Error(rerr))
		} else {
			e.logger.Warn("Session cannot serialize HTML, using body text.")
		}
	}
	text, err = session.BodyText(ctx)
	return text, "", SourceBody, err
}

func articleFrom(ctx context.Context, src schemas.HTMLSource, pageURL string) (readability.Article, error) {
	html, err := src.OuterHTML(ctx)
	if err != nil {
		return readability.Article{}, fmt.Errorf("failed to read document HTML: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return readability.Article{}, err
	}
	return readability.FromReader(strings.NewReader(html), u)
}

func buildPrompt(objective, pageURL, text string) string {
	return fmt.Sprintf(`You are an AI data extraction agent (Nova Act) that parses raw website text.
Your objective: %s

Here is the raw page text from %s:
---
%s
---

Please output ONLY a structured summary that directly answers the objective based on the text.`, objective, pageURL, text)
}

func validate(req Request) error {
	if strings.TrimSpace(req.Objective) == "" {
		return errors.New("objective must not be empty")
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http or https URL", req.URL)
	}
	return nil
}
