package llm

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"google.golang.org/genai"
)

// MaxExcerptBytes caps how much of each attachment is read into the prompt.
const MaxExcerptBytes = 200_000

const failedReadNotice = "[Failed to read file]"

// Generator is the raw text-generation call underneath Fallback.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Fallback talks to Gemini directly. It reads attachments itself and inlines
// truncated excerpts into a single flat prompt.
type Fallback struct {
	opts  Options
	files FileOpener
	gen   Generator
}

// NewFallback builds a Fallback backed by the genai client. With no API key
// the backend is still built; every Send then fails with ErrMissingAPIKey.
func NewFallback(ctx context.Context, opts Options, files FileOpener) (*Fallback, error) {
	opts = opts.withDefaults()
	f := &Fallback{opts: opts, files: files}
	if opts.APIKey == "" {
		return f, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	f.gen = &genaiGenerator{client: client}
	return f, nil
}

// NewFallbackWithGenerator builds a Fallback around an arbitrary Generator.
func NewFallbackWithGenerator(opts Options, files FileOpener, gen Generator) *Fallback {
	return &Fallback{opts: opts.withDefaults(), files: files, gen: gen}
}

// Send builds the flat prompt and runs the generation call in its own
// goroutine, returning early if ctx is cancelled.
func (f *Fallback) Send(ctx context.Context, msg Message) (string, error) {
	if f.opts.APIKey == "" || f.gen == nil {
		return "", ErrMissingAPIKey
	}

	prompt := f.Prompt(ctx, msg)

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := f.gen.Generate(ctx, f.opts.Model, prompt)
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("gemini generate: %w", r.err)
		}
		if strings.TrimSpace(r.text) == "" {
			return "", ErrEmptyResponse
		}
		return r.text, nil
	}
}

// Prompt concatenates the system instruction, the user text and a labeled
// excerpt per attachment.
func (f *Fallback) Prompt(ctx context.Context, msg Message) string {
	var b strings.Builder
	b.WriteString(f.opts.SystemInstruction)
	b.WriteString("\n\nUser Request:\n")
	b.WriteString(msg.Text)

	if len(msg.Files) > 0 {
		b.WriteString("\n\nFile Excerpts:")
		for _, a := range msg.Files {
			b.WriteString(f.excerpt(ctx, a))
		}
	}
	return b.String()
}

func (f *Fallback) excerpt(ctx context.Context, a Attachment) string {
	header := fmt.Sprintf("\n--- FILE: %s (%s) ---\n", path.Base(a.Path), a.MimeType)
	if f.files == nil {
		return header + failedReadNotice + "\n"
	}

	rc, err := f.files.Open(ctx, a.Path)
	if err != nil {
		return header + failedReadNotice + "\n"
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxExcerptBytes))
	if err != nil {
		return header + failedReadNotice + "\n"
	}
	// Invalid UTF-8 is dropped, not replaced.
	return header + strings.ToValidUTF8(string(data), "") + "\n"
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
