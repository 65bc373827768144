package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Fallback is returned when the upstream answers 200 but the expected text
// field is missing. A chat UI degrades better with an apologetic reply than
// a hard error.
const Fallback = "Sorry, I couldn't generate a response. Try rephrasing your question."

const defaultTimeout = 15 * time.Second

// UpstreamError means the upstream was reachable and returned an error
// body, as opposed to a transport failure or timeout.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	Endpoint string // base URL of the generation API
	Model    string
	APIKey   string
	Timeout  time.Duration // per-attempt budget
	Retries  int           // additional attempts after the first
}

// Gateway is an outbound client to the external generation API with
// bounded retry and a per-attempt timeout.
type Gateway struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// Generate asks the upstream model for a reply to the prompt. Transport
// failures and upstream error statuses are retried up to the configured
// budget with no backoff; the last error is propagated on exhaustion.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []requestContent{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", strings.TrimSuffix(g.cfg.Endpoint, "/"), g.cfg.Model)

	var lastErr error
	attempts := g.cfg.Retries + 1
	for i := 0; i < attempts; i++ {
		text, err := g.attempt(ctx, url, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// The caller is gone, no point burning the remaining budget.
			break
		}
		if i < attempts-1 {
			slog.Warn("generation attempt failed, retrying", "attempt", i+1, "error", err)
		}
	}

	return "", lastErr
}

func (g *Gateway) attempt(ctx context.Context, url string, body []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Fallback, nil
	}
	if text := parsed.text(); text != "" {
		return text, nil
	}
	return Fallback, nil
}
