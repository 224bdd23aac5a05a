package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"devtracker/internal/domain"
)

// storedChallenge tolerates documents written before progress was persisted.
type storedChallenge struct {
	domain.Challenge
	Progress *int        `json:"progress"`
	Deadline lenientDate `json:"deadline"`
}

type storedTask struct {
	domain.Task
	DueDate lenientDate `json:"dueDate"`
}

// lenientDate accepts any of domain.DateLayouts. Values it cannot read decode as unset.
type lenientDate struct {
	t *time.Time
}

func (d *lenientDate) UnmarshalJSON(data []byte) error {
	d.t = nil
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if t, ok := domain.ParseDate(s); ok {
		d.t = &t
	}
	return nil
}

type storedState struct {
	Challenges []storedChallenge `json:"challenges"`
	Tasks      []storedTask      `json:"tasks"`
	Ideas      []domain.Idea     `json:"ideas"`
	Resources  []domain.Resource `json:"resources"`
}

func EncodeState(st domain.State) ([]byte, error) {
	data, err := json.Marshal(normalize(st))
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState parses a state document. A challenge without progress gets the value implied
// by its status. Dates may be date-only or RFC 3339.
func DecodeState(data []byte) (domain.State, error) {
	var raw storedState
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.State{}, fmt.Errorf("decode state: %w", err)
	}
	st := domain.State{
		Challenges: make([]domain.Challenge, 0, len(raw.Challenges)),
		Tasks:      make([]domain.Task, 0, len(raw.Tasks)),
		Ideas:      raw.Ideas,
		Resources:  raw.Resources,
	}
	for _, sc := range raw.Challenges {
		c := sc.Challenge
		c.Deadline = sc.Deadline.t
		if sc.Progress != nil {
			c.Progress = *sc.Progress
		} else {
			c.Progress = c.Status.Progress()
		}
		st.Challenges = append(st.Challenges, c)
	}
	for _, stk := range raw.Tasks {
		task := stk.Task
		task.DueDate = stk.DueDate.t
		st.Tasks = append(st.Tasks, task)
	}
	return normalize(st), nil
}

// normalize replaces nil slices so the document always carries arrays.
func normalize(st domain.State) domain.State {
	if st.Challenges == nil {
		st.Challenges = []domain.Challenge{}
	}
	if st.Tasks == nil {
		st.Tasks = []domain.Task{}
	}
	if st.Ideas == nil {
		st.Ideas = []domain.Idea{}
	}
	if st.Resources == nil {
		st.Resources = []domain.Resource{}
	}
	return st
}

// Export returns the current state document, indented.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	st, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(normalize(st), "", "  ")
}

// Import validates and replaces the state with the given document.
func (e *Engine) Import(ctx context.Context, actorID string, data []byte) (domain.State, error) {
	st, err := DecodeState(data)
	if err != nil {
		return domain.State{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validateState(st); err != nil {
		return domain.State{}, err
	}
	if err := e.Replace(ctx, actorID, st); err != nil {
		return domain.State{}, err
	}
	return st, nil
}

func validateState(st domain.State) error {
	seen := map[string]bool{}
	check := func(kind domain.Kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: %s without id", ErrInvalid, kind)
		}
		key := string(kind) + "/" + id
		if seen[key] {
			return fmt.Errorf("%w: duplicate %s id %q", ErrInvalid, kind, id)
		}
		seen[key] = true
		return nil
	}
	for _, c := range st.Challenges {
		if err := check(domain.KindChallenge, c.ID); err != nil {
			return err
		}
		if !c.Status.Valid() {
			return fmt.Errorf("%w: challenge %q has unknown status %q", ErrInvalid, c.ID, c.Status)
		}
	}
	for _, t := range st.Tasks {
		if err := check(domain.KindTask, t.ID); err != nil {
			return err
		}
		if !t.Status.Valid() {
			return fmt.Errorf("%w: task %q has unknown status %q", ErrInvalid, t.ID, t.Status)
		}
	}
	for _, i := range st.Ideas {
		if err := check(domain.KindIdea, i.ID); err != nil {
			return err
		}
		if !i.Impact.Valid() {
			return fmt.Errorf("%w: idea %q has unknown impact %q", ErrInvalid, i.ID, i.Impact)
		}
	}
	for _, r := range st.Resources {
		if err := check(domain.KindResource, r.ID); err != nil {
			return err
		}
		if !r.Type.Valid() {
			return fmt.Errorf("%w: resource %q has unknown type %q", ErrInvalid, r.ID, r.Type)
		}
	}
	return nil
}
