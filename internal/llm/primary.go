package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

const chatPath = "/v1/chat/messages"

// Primary delegates to an external managed chat integration over HTTP.
// Attachments are read from storage and sent inline, since the integration
// cannot reach the bucket.
type Primary struct {
	baseURL    string
	opts       Options
	files      FileOpener
	httpClient *http.Client
}

func NewPrimary(opts Options, files FileOpener) (*Primary, error) {
	if opts.IntegrationURL == "" {
		return nil, errors.New("llm: primary backend requires INTEGRATION_URL")
	}
	opts = opts.withDefaults()
	return &Primary{
		baseURL:    strings.TrimRight(opts.IntegrationURL, "/"),
		opts:       opts,
		files:      files,
		httpClient: &http.Client{},
	}, nil
}

type chatRequest struct {
	SessionID     string        `json:"session_id"`
	SystemMessage string        `json:"system_message"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Text          string        `json:"text"`
	FileContents  []fileContent `json:"file_contents,omitempty"`
}

// fileContent carries one attachment's bytes; Data is base64 on the wire.
type fileContent struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// readAttachments loads every attachment. Unlike Fallback, an unreadable
// file fails the call.
func (p *Primary) readAttachments(ctx context.Context, atts []Attachment) ([]fileContent, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	if p.files == nil {
		return nil, errors.New("llm: primary backend has no file store for attachments")
	}
	out := make([]fileContent, 0, len(atts))
	for _, a := range atts {
		rc, err := p.files.Open(ctx, a.Path)
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", a.Path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", a.Path, err)
		}
		out = append(out, fileContent{FileName: path.Base(a.Path), MimeType: a.MimeType, Data: data})
	}
	return out, nil
}

// Send calls POST /v1/chat/messages.
func (p *Primary) Send(ctx context.Context, msg Message) (string, error) {
	if p.opts.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	files, err := p.readAttachments(ctx, msg.Files)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		SessionID:     p.opts.SessionID,
		SystemMessage: p.opts.SystemInstruction,
		Provider:      "gemini",
		Model:         p.opts.Model,
		Text:          msg.Text,
		FileContents:  files,
	})
	if err != nil {
		return "", fmt.Errorf("integration %s: encode: %w", chatPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("integration %s: %w", chatPath, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("integration %s: %w", chatPath, err)
	}
	defer resp.Body.Close()

	if err := checkResp(resp, "integration", chatPath); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("integration %s: decode: %w", chatPath, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", ErrEmptyResponse
	}
	return result.Text, nil
}

// checkResp reads the response body and returns an error if the status is not 2xx.
// On error it includes the upstream body for debugging.
func checkResp(resp *http.Response, service, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s %s returned %d: %s", service, path, resp.StatusCode, string(body))
}
