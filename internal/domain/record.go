package domain

import "time"

type Kind string

const (
	KindChallenge Kind = "challenge"
	KindTask      Kind = "task"
	KindIdea      Kind = "idea"
	KindResource  Kind = "resource"
)

// Record is one of Challenge, Task, Idea or Resource.
type Record interface {
	Kind() Kind
	RecordID() string
	RecordTitle() string
}

func (c Challenge) Kind() Kind          { return KindChallenge }
func (c Challenge) RecordID() string    { return c.ID }
func (c Challenge) RecordTitle() string { return c.Title }

func (t Task) Kind() Kind          { return KindTask }
func (t Task) RecordID() string    { return t.ID }
func (t Task) RecordTitle() string { return t.Title }

func (i Idea) Kind() Kind          { return KindIdea }
func (i Idea) RecordID() string    { return i.ID }
func (i Idea) RecordTitle() string { return i.Title }

func (r Resource) Kind() Kind          { return KindResource }
func (r Resource) RecordID() string    { return r.ID }
func (r Resource) RecordTitle() string { return r.Title }

type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
)

// Change describes one committed mutation of the tracker state.
type Change struct {
	Op     ChangeOp
	Record Record
}

// EventType is the audit event name, e.g. "task.created".
func (c Change) EventType() string {
	return string(c.Record.Kind()) + "." + string(c.Op)
}

// Form is the payload of a create/edit dialog for one of the four record kinds.
// The concrete types are ChallengeForm, TaskForm, IdeaForm and ResourceForm.
type Form interface {
	formKind() Kind
}

type ChallengeForm struct {
	Title       string          `json:"title"`
	Theme       string          `json:"theme,omitempty"`
	Status      ChallengeStatus `json:"status,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Progress    *int            `json:"progress,omitempty"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

type TaskForm struct {
	ChallengeID string     `json:"challengeId,omitempty"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type IdeaForm struct {
	ChallengeID string   `json:"challengeId,omitempty"`
	Title       string   `json:"title"`
	Impact      Impact   `json:"impact"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type ResourceForm struct {
	ChallengeID string       `json:"challengeId,omitempty"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Type        ResourceType `json:"type"`
	Notes       string       `json:"notes,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

func (ChallengeForm) formKind() Kind { return KindChallenge }
func (TaskForm) formKind() Kind      { return KindTask }
func (IdeaForm) formKind() Kind      { return KindIdea }
func (ResourceForm) formKind() Kind  { return KindResource }

// FormKind reports which record kind a form edits.
func FormKind(f Form) Kind { return f.formKind() }
