package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"devtracker/internal/config"
)

// ErrNotConfigured is returned when the index section lacks a key, zone or knowledge box.
var ErrNotConfigured = errors.New("index not configured")

// Client uploads markdown documents to a zone-scoped knowledge box.
type Client struct {
	settings func() config.IndexSettings
	http     *http.Client
}

func NewClient(settings func() config.IndexSettings, h *http.Client) *Client {
	if h == nil {
		h = &http.Client{}
	}
	return &Client{settings: settings, http: h}
}

// ZoneBackend inserts the zone as a subdomain of the backend host:
// https://rag.progress.cloud/api with zone europe-1 becomes https://europe-1.rag.progress.cloud/api.
func ZoneBackend(backend, zone string) string {
	u, err := url.Parse(backend)
	if err != nil || u.Host == "" {
		return strings.TrimRight(backend, "/")
	}
	return fmt.Sprintf("%s://%s.%s%s", u.Scheme, zone, u.Host, strings.TrimRight(u.Path, "/"))
}

func (c *Client) kbURL(s config.IndexSettings, path string) string {
	backend := s.Backend
	if backend == "" {
		backend = config.DefaultIndexBackend
	}
	return ZoneBackend(backend, s.Zone) + "/v1/kb/" + url.PathEscape(s.KnowledgeBox) + path
}

func (c *Client) timeout(s config.IndexSettings) time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Upload posts a markdown document and returns the id the knowledge box assigned to it.
func (c *Client) Upload(ctx context.Context, markdown string) (string, error) {
	s := c.settings()
	if !s.Ready() {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout(s))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.kbURL(s, "/upload"), strings.NewReader(markdown))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-NUCLIA-SERVICEACCOUNT", "Bearer "+s.APIKey)
	req.Header.Set("content-type", "text/MARKDOWN")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		UUID string `json:"uuid"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode upload response: %w", err)
		}
	}
	return out.UUID, nil
}

// Delete removes a previously uploaded resource.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	s := c.settings()
	if !s.Ready() {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout(s))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kbURL(s, "/resources/"+url.PathEscape(remoteID)), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-NUCLIA-SERVICEACCOUNT", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
