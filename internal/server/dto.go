package server

import (
	"encoding/json"

	"devtracker/internal/config"
	"devtracker/internal/domain"
	"devtracker/internal/engine"
	"devtracker/internal/llm"
)

// Request payloads

type PatchChallengeRequest struct {
	Status   *domain.ChallengeStatus `json:"status,omitempty" enum:"Ideation,Drafting,In Review,Submitted,Published"`
	Progress *int                    `json:"progress,omitempty" minimum:"0" maximum:"100"`
	Theme    *string                 `json:"theme,omitempty"`
	Tags     []string                `json:"tags,omitempty"`
}

func (r PatchChallengeRequest) patch() engine.ChallengePatch {
	return engine.ChallengePatch{
		Status:   r.Status,
		Progress: r.Progress,
		Theme:    r.Theme,
		Tags:     r.Tags,
	}
}

type TaskStatusRequest struct {
	Status domain.TaskStatus `json:"status" enum:"Not Started,In Progress,Blocked,Done"`
}

type CreateConversationRequest struct {
	Title       string `json:"title,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`
}

type SetContextRequest struct {
	ChallengeID string `json:"challengeId"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
	// ChallengeID is the challenge currently open in the caller's UI, if any.
	ChallengeID string `json:"challengeId,omitempty"`
}

// UpdateSettingsRequest carries the editable settings. Nil fields are left alone.
type UpdateSettingsRequest struct {
	APIKey    *string `json:"api_key,omitempty"`
	Model     *string `json:"model,omitempty"`
	BaseURL   *string `json:"base_url,omitempty"`
	SiteURL   *string `json:"site_url,omitempty"`
	SiteName  *string `json:"site_name,omitempty"`
	WebSearch *bool   `json:"web_search,omitempty"`
}

func (r UpdateSettingsRequest) apply(s *config.Settings) {
	if r.APIKey != nil {
		s.AI.APIKey = *r.APIKey
	}
	if r.Model != nil {
		s.AI.Model = *r.Model
	}
	if r.BaseURL != nil {
		s.AI.BaseURL = *r.BaseURL
	}
	if r.SiteURL != nil {
		s.AI.SiteURL = *r.SiteURL
	}
	if r.SiteName != nil {
		s.AI.SiteName = *r.SiteName
	}
	if r.WebSearch != nil {
		s.AI.WebSearch = *r.WebSearch
	}
}

// Response payloads

type DeleteResponse struct {
	Removed int `json:"removed"`
}

type ChallengeSummary struct {
	domain.Challenge
	TaskCount     int `json:"taskCount"`
	IdeaCount     int `json:"ideaCount"`
	ResourceCount int `json:"resourceCount"`
}

func challengeSummary(st domain.State, c domain.Challenge) ChallengeSummary {
	tasks, ideas, resources := st.Counts(c.ID)
	return ChallengeSummary{Challenge: c, TaskCount: tasks, IdeaCount: ideas, ResourceCount: resources}
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage(e.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ConversationResponse struct {
	domain.Conversation
	Active     bool `json:"active"`
	Processing bool `json:"processing"`
}

type ConversationSummary struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	ContextChallengeID string `json:"contextChallengeId,omitempty"`
	MessageCount       int    `json:"messageCount"`
	LastMessage        string `json:"lastMessage,omitempty"`
	Active             bool   `json:"active"`
}

func conversationSummary(c domain.Conversation, activeID string) ConversationSummary {
	out := ConversationSummary{
		ID:                 c.ID,
		Title:              c.Title,
		ContextChallengeID: c.ContextChallengeID,
		MessageCount:       len(c.Messages),
		Active:             c.ID == activeID,
	}
	if last, ok := c.LastMessage(); ok {
		out.LastMessage = last.Text
	}
	return out
}

type SettingsResponse struct {
	config.Settings
	Configured bool `json:"configured"`
}

type ModelsResponse struct {
	Items []llm.Model `json:"items"`
	// Fallback is set when the provider list could not be fetched.
	Fallback bool `json:"fallback,omitempty"`
}
