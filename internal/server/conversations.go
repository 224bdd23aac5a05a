package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"devtracker/internal/app"
	"devtracker/internal/assistant"
)

func registerConversations(api huma.API, a *app.App) {
	tags := []string{"conversations"}

	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversations",
		Tags:        tags,
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[[]ConversationSummary], error) {
		convs, err := a.Chats.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		activeID, err := activeConversationID(ctx, a)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ConversationSummary, 0, len(convs))
		for _, c := range convs {
			out = append(out, conversationSummary(c, activeID))
		}
		return &bodyOutput[[]ConversationSummary]{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations",
		Summary:     "Start a conversation",
		Description: "The new conversation becomes active and opens with a welcome message.",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateConversationRequest
	}) (*bodyOutput[ConversationResponse], error) {
		if id := input.Body.ChallengeID; id != "" {
			if err := challengeExists(ctx, a, id); err != nil {
				return nil, handleError(err)
			}
		}
		c, err := a.Chats.Create(ctx, input.Body.Title, input.Body.ChallengeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[ConversationResponse]{Body: ConversationResponse{Conversation: c, Active: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}",
		Summary:     "Get a conversation with its messages",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*bodyOutput[ConversationResponse], error) {
		c, err := a.Chats.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		activeID, err := activeConversationID(ctx, a)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[ConversationResponse]{Body: ConversationResponse{
			Conversation: c,
			Active:       c.ID == activeID,
			Processing:   a.Chats.Processing(c.ID),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-conversation",
		Method:      http.MethodDelete,
		Path:        "/conversations/{id}",
		Summary:     "Delete a conversation",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*bodyOutput[DeleteResponse], error) {
		if err := a.Chats.Delete(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[DeleteResponse]{Body: DeleteResponse{Removed: 1}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/activate",
		Summary:     "Make a conversation the active one",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*struct{}, error) {
		if err := a.Chats.SetActive(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-conversation-context",
		Method:      http.MethodPut,
		Path:        "/conversations/{id}/context",
		Summary:     "Scope a conversation to a challenge",
		Description: "An empty challengeId clears the scope.",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *updateInput[SetContextRequest]) (*struct{}, error) {
		if id := input.Body.ChallengeID; id != "" {
			if err := challengeExists(ctx, a, id); err != nil {
				return nil, handleError(err)
			}
		}
		if err := a.Chats.SetContext(ctx, input.ID, input.Body.ChallengeID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/messages",
		Summary:     "Send a message to the assistant",
		Description: "Runs one assistant turn. Only one turn may run per conversation at a time.",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *updateInput[SendMessageRequest]) (*bodyOutput[assistant.Turn], error) {
		turn, err := a.Assistant.Send(ctx, input.ID, input.Body.Text, assistant.PageHint{ChallengeID: input.Body.ChallengeID})
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[assistant.Turn]{Body: turn}, nil
	})
}

func activeConversationID(ctx context.Context, a *app.App) (string, error) {
	c, ok, err := a.Chats.Active(ctx)
	if err != nil || !ok {
		return "", err
	}
	return c.ID, nil
}

func challengeExists(ctx context.Context, a *app.App, id string) error {
	st, err := a.Engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	if _, ok := st.Challenge(id); !ok {
		return newAPIError(http.StatusNotFound, "not_found", "challenge "+id+" not found", map[string]any{"challengeId": id})
	}
	return nil
}

