// Package llm holds the generation backends that turn a research prompt,
// optionally with attached files, into report text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// SessionID identifies the research assistant conversation to the provider.
const SessionID = "research-assistant"

// SystemInstruction describes the report structure every backend asks for.
const SystemInstruction = `You are a Smart Research Assistant. Your role is to:
1. Analyze uploaded files and live data sources
2. Generate concise, evidence-based research reports (2-3 paragraphs)
3. Always include specific citations and sources
4. Focus on key insights and actionable information
5. Maintain academic rigor while being accessible

Format your responses as structured reports with:
- Key Findings (main insights)
- Supporting Evidence (with citations)
- Sources Used (list all sources referenced)`

// Backend kinds accepted by New.
const (
	KindPrimary  = "primary"
	KindFallback = "fallback"
)

var (
	ErrMissingAPIKey = errors.New("llm: missing api key")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Attachment is a file handed to the backend by storage path and MIME type.
type Attachment struct {
	Path     string `json:"file_path"`
	MimeType string `json:"mime_type"`
}

// Message is one prompt plus its optional attachments.
type Message struct {
	Text  string
	Files []Attachment
}

// Backend sends a message to a generative-text provider and returns the
// generated text. Implementations are interchangeable.
type Backend interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// FileOpener opens stored file bytes by storage path.
type FileOpener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Options configure a backend.
type Options struct {
	Kind              string
	APIKey            string
	Model             string
	SessionID         string
	SystemInstruction string
	IntegrationURL    string
}

func (o Options) withDefaults() Options {
	if o.SessionID == "" {
		o.SessionID = SessionID
	}
	if o.SystemInstruction == "" {
		o.SystemInstruction = SystemInstruction
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	return o
}

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// New builds the backend named by opts.Kind. The choice is made once, at
// startup.
func New(ctx context.Context, opts Options, files FileOpener) (Backend, error) {
	opts = opts.withDefaults()
	switch opts.Kind {
	case KindPrimary:
		p, err := NewPrimary(opts, files)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindFallback, "":
		f, err := NewFallback(ctx, opts, files)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", opts.Kind)
	}
}
