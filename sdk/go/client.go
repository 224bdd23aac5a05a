package devtrackersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Dev Challenge Tracker HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. Assistant turns can take a while, so the default
// timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 2 * time.Minute,
	}
}

// Challenge represents the API challenge model.
type Challenge struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Theme       string     `json:"theme"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Progress    int        `json:"progress"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
}

// Task represents the API task model.
type Task struct {
	ID          string     `json:"id"`
	ChallengeID string     `json:"challengeId,omitempty"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type Idea struct {
	ID          string   `json:"id"`
	ChallengeID string   `json:"challengeId,omitempty"`
	Title       string   `json:"title"`
	Impact      string   `json:"impact"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`
}

type Resource struct {
	ID          string   `json:"id"`
	ChallengeID string   `json:"challengeId,omitempty"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Type        string   `json:"type"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	ContextChallengeID string    `json:"contextChallengeId,omitempty"`
	Messages           []Message `json:"messages"`
	Active             bool      `json:"active"`
	Processing         bool      `json:"processing"`
}

// Turn is the outcome of one message sent to the assistant.
type Turn struct {
	ConversationID string   `json:"conversationId"`
	Phase          string   `json:"phase"`
	ChallengeID    string   `json:"challengeId,omitempty"`
	User           Message  `json:"user"`
	Reply          *Message `json:"reply,omitempty"`
	ToolResults    []string `json:"toolResults,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsTurnInFlight reports whether err is the conflict returned while another message to the
// same conversation is being processed.
func IsTurnInFlight(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// ListChallenges returns all challenges, newest first.
func (c *Client) ListChallenges(ctx context.Context) ([]Challenge, error) {
	var resp []Challenge
	err := c.do(ctx, http.MethodGet, "challenges", nil, &resp)
	return resp, err
}

// CreateChallenge creates a challenge; status and progress take their defaults.
func (c *Client) CreateChallenge(ctx context.Context, title, theme string) (Challenge, error) {
	body := map[string]any{
		"title": title,
		"theme": theme,
	}
	var resp Challenge
	err := c.do(ctx, http.MethodPost, "challenges", body, &resp)
	return resp, err
}

// SetChallengeStatus moves a challenge to status, resetting its progress.
func (c *Client) SetChallengeStatus(ctx context.Context, id, status string) (Challenge, error) {
	var resp Challenge
	err := c.do(ctx, http.MethodPatch, "challenges/"+url.PathEscape(id), map[string]any{"status": status}, &resp)
	return resp, err
}

// DeleteChallenge removes a challenge and everything linked to it.
func (c *Client) DeleteChallenge(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "challenges/"+url.PathEscape(id), nil, nil)
}

// CreateTask creates a task, optionally linked to a challenge.
func (c *Client) CreateTask(ctx context.Context, challengeID, title string) (Task, error) {
	body := map[string]any{
		"challengeId": challengeID,
		"title":       title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// ListTasks returns tasks, filtered by challenge when challengeID is set.
func (c *Client) ListTasks(ctx context.Context, challengeID string) ([]Task, error) {
	endpoint := "tasks"
	if challengeID != "" {
		endpoint += "?challenge_id=" + url.QueryEscape(challengeID)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateIdea(ctx context.Context, challengeID, title, impact string) (Idea, error) {
	body := map[string]any{
		"challengeId": challengeID,
		"title":       title,
		"impact":      impact,
	}
	var resp Idea
	err := c.do(ctx, http.MethodPost, "ideas", body, &resp)
	return resp, err
}

func (c *Client) CreateResource(ctx context.Context, challengeID, title, link, resourceType string) (Resource, error) {
	body := map[string]any{
		"challengeId": challengeID,
		"title":       title,
		"url":         link,
		"type":        resourceType,
	}
	var resp Resource
	err := c.do(ctx, http.MethodPost, "resources", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateConversation starts a conversation, optionally scoped to a challenge.
func (c *Client) CreateConversation(ctx context.Context, title, challengeID string) (Conversation, error) {
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	if challengeID != "" {
		body["challengeId"] = challengeID
	}
	var resp Conversation
	err := c.do(ctx, http.MethodPost, "conversations", body, &resp)
	return resp, err
}

func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var resp Conversation
	err := c.do(ctx, http.MethodGet, "conversations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SendMessage runs one assistant turn. viewing is the challenge the caller is looking at and
// may be empty.
func (c *Client) SendMessage(ctx context.Context, conversationID, text, viewing string) (Turn, error) {
	body := map[string]any{"text": text}
	if viewing != "" {
		body["challengeId"] = viewing
	}
	var resp Turn
	err := c.do(ctx, http.MethodPost, "conversations/"+url.PathEscape(conversationID)+"/messages", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
