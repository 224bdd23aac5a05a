package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"devtracker/internal/config"
)

const onlineSuffix = ":online"

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Client talks to an OpenAI-compatible chat completions endpoint. Settings are read on
// every call so edits apply to the next request without rebuilding the client.
type Client struct {
	settings func() config.AISettings
	http     *http.Client
	limiter  *rate.Limiter
	models   *cache.Cache
	logger   *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit caps outbound requests per second with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

func NewClient(settings func() config.AISettings, opts ...Option) *Client {
	c := &Client{
		settings: settings,
		http:     &http.Client{Timeout: 120 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 2),
		models:   cache.New(30*time.Minute, time.Hour),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ModelID returns the model to request, with the web search suffix applied or stripped.
func ModelID(ai config.AISettings) string {
	id := strings.TrimSpace(ai.Model)
	if id == "" {
		id = config.DefaultModel
	}
	if strings.HasSuffix(strings.ToLower(id), onlineSuffix) {
		id = id[:len(id)-len(onlineSuffix)]
	}
	if ai.WebSearch {
		id += onlineSuffix
	}
	return id
}

func baseURL(ai config.AISettings) string {
	u := strings.TrimRight(strings.TrimSpace(ai.BaseURL), "/")
	if u == "" {
		u = config.DefaultBaseURL
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, ai config.AISettings, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, baseURL(ai)+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ai.APIKey)
	req.Header.Set("HTTP-Referer", ai.SiteURL)
	siteName := ai.SiteName
	if siteName == "" {
		siteName = config.DefaultSiteName
	}
	req.Header.Set("X-Title", siteName)
	return req, nil
}

// Complete performs exactly one chat completion request. It does not retry.
func (c *Client) Complete(ctx context.Context, r Request) (Response, error) {
	ai := c.settings()
	if !ai.HasCredential() {
		return Response{}, config.ErrNoCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	model := ModelID(ai)
	payload, err := json.Marshal(chatRequest{
		Model:      model,
		Messages:   r.Messages,
		Tools:      r.Tools,
		ToolChoice: r.ToolChoice,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, ai, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("chat completion",
		zap.String("model", model),
		zap.Int("messages", len(r.Messages)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &APIError{Status: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("no completion returned")
	}
	msg := parsed.Choices[0].Message
	out := Response{ToolCalls: msg.ToolCalls}
	if msg.Content != nil {
		out.Content = *msg.Content
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
