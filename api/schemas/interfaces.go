package schemas

import (
	"context"
	"errors"
)

// -- Browser Session Interfaces --

// ElementRole narrows an element query to the kind of element an action needs.
type ElementRole string

const (
	// RoleClickable covers links, buttons and anything carrying a click role.
	RoleClickable ElementRole = "clickable"
	// RoleEditable covers text inputs, textareas and contenteditable nodes.
	RoleEditable ElementRole = "editable"
)

// ElementRef is an opaque handle to an element located in the live document.
// A ref is only valid until the next navigation of the session that produced it.
type ElementRef struct {
	Ref  string `json:"ref"`  // Session-scoped identifier used to address the element again.
	Tag  string `json:"tag"`  // Lower-case tag name, for diagnostics.
	Text string `json:"text"` // The visible text the element matched on (possibly truncated).
}

// ErrSessionClosed reports that a session can no longer drive its tab, either
// because it was closed or because the browser went away.
var ErrSessionClosed = errors.New("browser session is closed")

// BrowserSession is the capability set the agent loop consumes from a controllable
// headless browser. Implementations are exclusively owned by one run at a time.
type BrowserSession interface {
	// Navigate directs the session to url and returns once the load event fired.
	Navigate(ctx context.Context, url string) error
	// QueryByVisibleText returns the first element in document order whose visible text
	// contains substring (case-sensitive). It returns (nil, nil) when nothing matches.
	QueryByVisibleText(ctx context.Context, substring string, role ElementRole) (*ElementRef, error)
	// Click triggers a click on a previously located element.
	Click(ctx context.Context, el *ElementRef) error
	// SetValue replaces the value of a previously located editable element.
	SetValue(ctx context.Context, el *ElementRef, text string) error
	// URL returns the current document location.
	URL(ctx context.Context) (string, error)
	// BodyText returns the rendered text of the document body.
	BodyText(ctx context.Context) (string, error)
	// CaptureScreenshot writes a full-page PNG to path.
	CaptureScreenshot(ctx context.Context, path string) error
	// Close tears the session down. It must be safe to call more than once.
	Close(ctx context.Context) error
}

// HTMLSource is implemented by sessions that can serialize the live document.
type HTMLSource interface {
	OuterHTML(ctx context.Context) (string, error)
}

// SessionFactory hands out fresh, exclusively owned browser sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}

// -- LLM Client Schemas & Interface --

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the model to output JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter. Zero keeps the model default.
	MaxTokens       int     `json:"max_tokens"`        // Upper bound on generated tokens. Zero keeps the client default.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input.
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
