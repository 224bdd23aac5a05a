package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"devtracker/internal/domain"
	"devtracker/internal/engine"
	"devtracker/internal/repo"
)

type saveInput[F any] struct {
	ActorID string `header:"X-Actor-Id"`
	Body    F
}

type updateInput[F any] struct {
	ID      string `path:"id"`
	ActorID string `header:"X-Actor-Id"`
	Body    F
}

type listInput struct {
	ChallengeID string `query:"challenge_id" doc:"Only records linked to this challenge"`
}

type idInput struct {
	ID      string `path:"id"`
	ActorID string `header:"X-Actor-Id"`
}

type bodyOutput[T any] struct {
	Body T
}

// recordRoutes registers list/create/get/update/delete for one record kind.
type recordRoutes[F domain.Form, R domain.Record] struct {
	eng    *engine.Engine
	kind   domain.Kind
	plural string
	list   func(domain.State) []R
	parent func(R) string
}

func (k recordRoutes[F, R]) register(api huma.API) {
	name := string(k.kind)
	tags := []string{k.plural}

	huma.Register(api, huma.Operation{
		OperationID: "list-" + k.plural,
		Method:      http.MethodGet,
		Path:        "/" + k.plural,
		Summary:     "List " + k.plural,
		Tags:        tags,
	}, func(ctx context.Context, input *listInput) (*bodyOutput[[]R], error) {
		st, err := k.eng.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := k.list(st)
		out := make([]R, 0, len(items))
		for _, it := range items {
			if input.ChallengeID != "" && k.parent != nil && k.parent(it) != input.ChallengeID {
				continue
			}
			out = append(out, it)
		}
		return &bodyOutput[[]R]{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-" + name,
		Method:      http.MethodPost,
		Path:        "/" + k.plural,
		Summary:     "Create a " + name,
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *saveInput[F]) (*bodyOutput[R], error) {
		rec, err := k.eng.Save(ctx, actorOrDefault(input.ActorID), "", input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[R]{Body: rec.(R)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + name,
		Method:      http.MethodGet,
		Path:        "/" + k.plural + "/{id}",
		Summary:     "Get a " + name,
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*bodyOutput[R], error) {
		st, err := k.eng.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		for _, it := range k.list(st) {
			if it.RecordID() == input.ID {
				return &bodyOutput[R]{Body: it}, nil
			}
		}
		return nil, handleError(fmt.Errorf("%s %s: %w", name, input.ID, repo.ErrNotFound))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + name,
		Method:      http.MethodPut,
		Path:        "/" + k.plural + "/{id}",
		Summary:     "Replace the editable fields of a " + name,
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *updateInput[F]) (*bodyOutput[R], error) {
		rec, err := k.eng.Save(ctx, actorOrDefault(input.ActorID), input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[R]{Body: rec.(R)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-" + name,
		Method:      http.MethodDelete,
		Path:        "/" + k.plural + "/{id}",
		Summary:     "Delete a " + name,
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*bodyOutput[DeleteResponse], error) {
		changes, err := k.eng.Remove(ctx, actorOrDefault(input.ActorID), k.kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[DeleteResponse]{Body: DeleteResponse{Removed: len(changes)}}, nil
	})
}

func registerChallenges(api huma.API, e *engine.Engine) {
	recordRoutes[domain.ChallengeForm, domain.Challenge]{
		eng:    e,
		kind:   domain.KindChallenge,
		plural: "challenges",
		list:   func(st domain.State) []domain.Challenge { return st.Challenges },
	}.register(api)

	huma.Register(api, huma.Operation{
		OperationID: "challenge-summary",
		Method:      http.MethodGet,
		Path:        "/challenges/{id}/summary",
		Summary:     "Challenge with counts of linked records",
		Tags:        []string{"challenges"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*bodyOutput[ChallengeSummary], error) {
		st, err := e.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		c, ok := st.Challenge(input.ID)
		if !ok {
			return nil, handleError(fmt.Errorf("challenge %s: %w", input.ID, repo.ErrNotFound))
		}
		return &bodyOutput[ChallengeSummary]{Body: challengeSummary(st, c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-challenge",
		Method:      http.MethodPatch,
		Path:        "/challenges/{id}",
		Summary:     "Change status, progress, theme or tags",
		Description: "A status change resets progress to the value for the new status, ignoring progress in the same request.",
		Tags:        []string{"challenges"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *updateInput[PatchChallengeRequest]) (*bodyOutput[domain.Challenge], error) {
		c, err := e.PatchChallenge(ctx, actorOrDefault(input.ActorID), input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[domain.Challenge]{Body: c}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	recordRoutes[domain.TaskForm, domain.Task]{
		eng:    e,
		kind:   domain.KindTask,
		plural: "tasks",
		list:   func(st domain.State) []domain.Task { return st.Tasks },
		parent: func(t domain.Task) string { return t.ChallengeID },
	}.register(api)

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Set task status",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *updateInput[TaskStatusRequest]) (*bodyOutput[domain.Task], error) {
		t, err := e.UpdateTaskStatus(ctx, actorOrDefault(input.ActorID), input.ID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[domain.Task]{Body: t}, nil
	})
}

func registerIdeas(api huma.API, e *engine.Engine) {
	recordRoutes[domain.IdeaForm, domain.Idea]{
		eng:    e,
		kind:   domain.KindIdea,
		plural: "ideas",
		list:   func(st domain.State) []domain.Idea { return st.Ideas },
		parent: func(i domain.Idea) string { return i.ChallengeID },
	}.register(api)
}

func registerResources(api huma.API, e *engine.Engine) {
	recordRoutes[domain.ResourceForm, domain.Resource]{
		eng:    e,
		kind:   domain.KindResource,
		plural: "resources",
		list:   func(st domain.State) []domain.Resource { return st.Resources },
		parent: func(r domain.Resource) string { return r.ChallengeID },
	}.register(api)
}

func registerState(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/state",
		Summary:     "Export the whole tracker document",
		Tags:        []string{"state"},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[domain.State], error) {
		st, err := e.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[domain.State]{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-state",
		Method:      http.MethodPut,
		Path:        "/state",
		Summary:     "Replace the tracker document",
		Tags:        []string{"state"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		RawBody []byte `contentType:"application/json"`
	}) (*bodyOutput[domain.State], error) {
		st, err := e.Import(ctx, actorOrDefault(input.ActorID), input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[domain.State]{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Dashboard figures",
		Tags:        []string{"state"},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[engine.Stats], error) {
		s, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &bodyOutput[engine.Stats]{Body: s}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"challenge,task,idea,resource,state"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*bodyOutput[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &bodyOutput[paginatedEvents]{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
