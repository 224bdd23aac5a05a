package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"devtracker/internal/domain"
	"devtracker/internal/repo"
)

// Save creates a record from form when id is empty, otherwise edits the record with that id.
// New records are placed first in their collection.
func (e *Engine) Save(ctx context.Context, actorID, id string, form domain.Form) (domain.Record, error) {
	var saved domain.Record
	_, err := e.Apply(ctx, actorID, func(st *domain.State) ([]domain.Change, error) {
		var (
			change domain.Change
			err    error
		)
		switch f := form.(type) {
		case domain.ChallengeForm:
			change, err = e.saveChallenge(st, id, f)
		case domain.TaskForm:
			change, err = e.saveTask(st, id, f)
		case domain.IdeaForm:
			change, err = e.saveIdea(st, id, f)
		case domain.ResourceForm:
			change, err = e.saveResource(st, id, f)
		default:
			return nil, fmt.Errorf("%w: unsupported form %T", ErrInvalid, form)
		}
		if err != nil {
			return nil, err
		}
		saved = change.Record
		return []domain.Change{change}, nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	return nil
}

func checkParent(st *domain.State, challengeID string) error {
	if challengeID == "" {
		return nil
	}
	if _, ok := st.Challenge(challengeID); !ok {
		return fmt.Errorf("challenge %s: %w", challengeID, repo.ErrNotFound)
	}
	return nil
}

func (e *Engine) saveChallenge(st *domain.State, id string, f domain.ChallengeForm) (domain.Change, error) {
	if err := required("title", f.Title); err != nil {
		return domain.Change{}, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return domain.Change{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	if f.Progress != nil && (*f.Progress < 0 || *f.Progress > 100) {
		return domain.Change{}, fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalid)
	}
	if id == "" {
		c := domain.Challenge{
			ID:          e.newID(),
			Title:       strings.TrimSpace(f.Title),
			Theme:       strings.TrimSpace(f.Theme),
			Status:      f.Status,
			Deadline:    f.Deadline,
			Description: strings.TrimSpace(f.Description),
			Tags:        tags(f.Tags),
		}
		if c.Status == "" {
			c.Status = domain.StatusIdeation
		}
		c.Progress = c.Status.Progress()
		if f.Progress != nil {
			c.Progress = *f.Progress
		}
		st.Challenges = append([]domain.Challenge{c}, st.Challenges...)
		return domain.Change{Op: domain.OpCreated, Record: c}, nil
	}
	idx := slices.IndexFunc(st.Challenges, func(c domain.Challenge) bool { return c.ID == id })
	if idx < 0 {
		return domain.Change{}, fmt.Errorf("challenge %s: %w", id, repo.ErrNotFound)
	}
	c := st.Challenges[idx]
	c.Title = strings.TrimSpace(f.Title)
	c.Theme = strings.TrimSpace(f.Theme)
	c.Deadline = f.Deadline
	c.Description = strings.TrimSpace(f.Description)
	c.Tags = tags(f.Tags)
	applyStatus(&c, f.Status, f.Progress)
	st.Challenges[idx] = c
	return domain.Change{Op: domain.OpUpdated, Record: c}, nil
}

// applyStatus recomputes progress when the status changes. A manual progress value only
// sticks when the status stays the same.
func applyStatus(c *domain.Challenge, status domain.ChallengeStatus, progress *int) {
	if status != "" && status != c.Status {
		c.Status = status
		c.Progress = status.Progress()
		return
	}
	if progress != nil {
		c.Progress = *progress
	}
}

func (e *Engine) saveTask(st *domain.State, id string, f domain.TaskForm) (domain.Change, error) {
	if err := required("title", f.Title); err != nil {
		return domain.Change{}, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return domain.Change{}, fmt.Errorf("%w: unknown task status %q", ErrInvalid, f.Status)
	}
	if err := checkParent(st, f.ChallengeID); err != nil {
		return domain.Change{}, err
	}
	t := domain.Task{
		ChallengeID: f.ChallengeID,
		Title:       strings.TrimSpace(f.Title),
		Status:      f.Status,
		DueDate:     f.DueDate,
		Notes:       strings.TrimSpace(f.Notes),
	}
	if t.Status == "" {
		t.Status = domain.TaskNotStarted
	}
	if id == "" {
		t.ID = e.newID()
		st.Tasks = append([]domain.Task{t}, st.Tasks...)
		return domain.Change{Op: domain.OpCreated, Record: t}, nil
	}
	idx := slices.IndexFunc(st.Tasks, func(t domain.Task) bool { return t.ID == id })
	if idx < 0 {
		return domain.Change{}, fmt.Errorf("task %s: %w", id, repo.ErrNotFound)
	}
	t.ID = id
	st.Tasks[idx] = t
	return domain.Change{Op: domain.OpUpdated, Record: t}, nil
}

func (e *Engine) saveIdea(st *domain.State, id string, f domain.IdeaForm) (domain.Change, error) {
	if err := required("title", f.Title); err != nil {
		return domain.Change{}, err
	}
	if !f.Impact.Valid() {
		return domain.Change{}, fmt.Errorf("%w: unknown impact %q", ErrInvalid, f.Impact)
	}
	if err := checkParent(st, f.ChallengeID); err != nil {
		return domain.Change{}, err
	}
	idea := domain.Idea{
		ChallengeID: f.ChallengeID,
		Title:       strings.TrimSpace(f.Title),
		Impact:      f.Impact,
		Notes:       strings.TrimSpace(f.Notes),
		Tags:        tags(f.Tags),
	}
	if id == "" {
		idea.ID = e.newID()
		st.Ideas = append([]domain.Idea{idea}, st.Ideas...)
		return domain.Change{Op: domain.OpCreated, Record: idea}, nil
	}
	idx := slices.IndexFunc(st.Ideas, func(i domain.Idea) bool { return i.ID == id })
	if idx < 0 {
		return domain.Change{}, fmt.Errorf("idea %s: %w", id, repo.ErrNotFound)
	}
	idea.ID = id
	st.Ideas[idx] = idea
	return domain.Change{Op: domain.OpUpdated, Record: idea}, nil
}

func (e *Engine) saveResource(st *domain.State, id string, f domain.ResourceForm) (domain.Change, error) {
	if err := required("title", f.Title); err != nil {
		return domain.Change{}, err
	}
	if err := required("url", f.URL); err != nil {
		return domain.Change{}, err
	}
	if !f.Type.Valid() {
		return domain.Change{}, fmt.Errorf("%w: unknown resource type %q", ErrInvalid, f.Type)
	}
	if err := checkParent(st, f.ChallengeID); err != nil {
		return domain.Change{}, err
	}
	r := domain.Resource{
		ChallengeID: f.ChallengeID,
		Title:       strings.TrimSpace(f.Title),
		URL:         strings.TrimSpace(f.URL),
		Type:        f.Type,
		Notes:       strings.TrimSpace(f.Notes),
		Tags:        tags(f.Tags),
	}
	if id == "" {
		r.ID = e.newID()
		st.Resources = append([]domain.Resource{r}, st.Resources...)
		return domain.Change{Op: domain.OpCreated, Record: r}, nil
	}
	idx := slices.IndexFunc(st.Resources, func(r domain.Resource) bool { return r.ID == id })
	if idx < 0 {
		return domain.Change{}, fmt.Errorf("resource %s: %w", id, repo.ErrNotFound)
	}
	r.ID = id
	st.Resources[idx] = r
	return domain.Change{Op: domain.OpUpdated, Record: r}, nil
}

func tags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// UpdateChallengeStatus sets the status and the progress that status implies.
func (e *Engine) UpdateChallengeStatus(ctx context.Context, actorID, id string, status domain.ChallengeStatus) (domain.Challenge, error) {
	if !status.Valid() {
		return domain.Challenge{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	var out domain.Challenge
	_, err := e.Apply(ctx, actorID, func(st *domain.State) ([]domain.Change, error) {
		idx := slices.IndexFunc(st.Challenges, func(c domain.Challenge) bool { return c.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("challenge %s: %w", id, repo.ErrNotFound)
		}
		c := st.Challenges[idx]
		c.Status = status
		c.Progress = status.Progress()
		st.Challenges[idx] = c
		out = c
		return []domain.Change{{Op: domain.OpUpdated, Record: c}}, nil
	})
	return out, err
}

// ChallengePatch is a partial challenge edit. Nil fields are left alone.
type ChallengePatch struct {
	Status   *domain.ChallengeStatus
	Progress *int
	Theme    *string
	Tags     []string
}

// PatchChallenge applies a partial edit. A status change always resets progress, ignoring
// Progress in the same patch.
func (e *Engine) PatchChallenge(ctx context.Context, actorID, id string, p ChallengePatch) (domain.Challenge, error) {
	if p.Status != nil && !p.Status.Valid() {
		return domain.Challenge{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, *p.Status)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return domain.Challenge{}, fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalid)
	}
	var out domain.Challenge
	_, err := e.Apply(ctx, actorID, func(st *domain.State) ([]domain.Change, error) {
		idx := slices.IndexFunc(st.Challenges, func(c domain.Challenge) bool { return c.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("challenge %s: %w", id, repo.ErrNotFound)
		}
		c := st.Challenges[idx]
		var status domain.ChallengeStatus
		if p.Status != nil {
			status = *p.Status
		}
		applyStatus(&c, status, p.Progress)
		if p.Theme != nil {
			c.Theme = strings.TrimSpace(*p.Theme)
		}
		if p.Tags != nil {
			c.Tags = tags(p.Tags)
		}
		st.Challenges[idx] = c
		out = c
		return []domain.Change{{Op: domain.OpUpdated, Record: c}}, nil
	})
	return out, err
}

func (e *Engine) UpdateTaskStatus(ctx context.Context, actorID, id string, status domain.TaskStatus) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task status %q", ErrInvalid, status)
	}
	var out domain.Task
	_, err := e.Apply(ctx, actorID, func(st *domain.State) ([]domain.Change, error) {
		idx := slices.IndexFunc(st.Tasks, func(t domain.Task) bool { return t.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", id, repo.ErrNotFound)
		}
		st.Tasks[idx].Status = status
		out = st.Tasks[idx]
		return []domain.Change{{Op: domain.OpUpdated, Record: out}}, nil
	})
	return out, err
}

// Remove deletes a record. Removing a challenge also removes its tasks, ideas and resources.
func (e *Engine) Remove(ctx context.Context, actorID string, kind domain.Kind, id string) ([]domain.Change, error) {
	return e.Apply(ctx, actorID, func(st *domain.State) ([]domain.Change, error) {
		var changes []domain.Change
		switch kind {
		case domain.KindChallenge:
			idx := slices.IndexFunc(st.Challenges, func(c domain.Challenge) bool { return c.ID == id })
			if idx < 0 {
				return nil, fmt.Errorf("challenge %s: %w", id, repo.ErrNotFound)
			}
			changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: st.Challenges[idx]})
			st.Challenges = slices.Delete(st.Challenges, idx, idx+1)
			st.Tasks = slices.DeleteFunc(st.Tasks, func(t domain.Task) bool {
				if t.ChallengeID == id {
					changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: t})
					return true
				}
				return false
			})
			st.Ideas = slices.DeleteFunc(st.Ideas, func(i domain.Idea) bool {
				if i.ChallengeID == id {
					changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: i})
					return true
				}
				return false
			})
			st.Resources = slices.DeleteFunc(st.Resources, func(r domain.Resource) bool {
				if r.ChallengeID == id {
					changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: r})
					return true
				}
				return false
			})
		case domain.KindTask:
			idx := slices.IndexFunc(st.Tasks, func(t domain.Task) bool { return t.ID == id })
			if idx < 0 {
				return nil, fmt.Errorf("task %s: %w", id, repo.ErrNotFound)
			}
			changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: st.Tasks[idx]})
			st.Tasks = slices.Delete(st.Tasks, idx, idx+1)
		case domain.KindIdea:
			idx := slices.IndexFunc(st.Ideas, func(i domain.Idea) bool { return i.ID == id })
			if idx < 0 {
				return nil, fmt.Errorf("idea %s: %w", id, repo.ErrNotFound)
			}
			changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: st.Ideas[idx]})
			st.Ideas = slices.Delete(st.Ideas, idx, idx+1)
		case domain.KindResource:
			idx := slices.IndexFunc(st.Resources, func(r domain.Resource) bool { return r.ID == id })
			if idx < 0 {
				return nil, fmt.Errorf("resource %s: %w", id, repo.ErrNotFound)
			}
			changes = append(changes, domain.Change{Op: domain.OpDeleted, Record: st.Resources[idx]})
			st.Resources = slices.Delete(st.Resources, idx, idx+1)
		default:
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, kind)
		}
		return changes, nil
	})
}
