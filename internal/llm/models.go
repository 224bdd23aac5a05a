package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	ContextLength int     `json:"context_length,omitempty"`
	Pricing       Pricing `json:"pricing"`
}

type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// FallbackModels is offered when the provider's model list cannot be fetched.
var FallbackModels = []Model{
	{
		ID:            "openai/gpt-4o-mini",
		Name:          "GPT-4o Mini",
		Description:   "Faster, cheaper GPT-4o",
		ContextLength: 128000,
		Pricing:       Pricing{Prompt: "0.00000015", Completion: "0.0000006"},
	},
	{
		ID:            "openai/gpt-4o",
		Name:          "GPT-4o",
		Description:   "GPT-4 Omni multimodal model",
		ContextLength: 128000,
		Pricing:       Pricing{Prompt: "0.000002", Completion: "0.000006"},
	},
	{
		ID:            "anthropic/claude-3.5-sonnet",
		Name:          "Claude 3.5 Sonnet",
		Description:   "Anthropic's most capable model",
		ContextLength: 200000,
		Pricing:       Pricing{Prompt: "0.000003", Completion: "0.000015"},
	},
}

// Models lists the provider's models sorted by display name. Results are cached per base
// URL. When the fetch fails the fallback list is returned together with the error.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	ai := c.settings()
	if !ai.HasCredential() {
		return nil, nil
	}
	key := baseURL(ai)
	if v, ok := c.models.Get(key); ok {
		return v.([]Model), nil
	}
	models, err := c.fetchModels(ctx)
	if err != nil {
		c.logger.Warn("model list unavailable, using fallback", zap.Error(err))
		return append([]Model(nil), FallbackModels...), err
	}
	c.models.Set(key, models, cache.DefaultExpiration)
	return models, nil
}

// RefreshModels drops the cached list.
func (c *Client) RefreshModels() {
	c.models.Flush()
}

func (c *Client) fetchModels(ctx context.Context) ([]Model, error) {
	ai := c.settings()
	req, err := c.newRequest(ctx, ai, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: resp.Status}
	}
	var payload struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	for i := range payload.Data {
		if payload.Data[i].Name == "" {
			payload.Data[i].Name = payload.Data[i].ID
		}
	}
	sort.SliceStable(payload.Data, func(i, j int) bool {
		return strings.ToLower(payload.Data[i].Name) < strings.ToLower(payload.Data[j].Name)
	})
	return payload.Data, nil
}
