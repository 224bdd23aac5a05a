package domain

import (
	"slices"
	"strings"
	"time"
)

type ChallengeStatus string

const (
	StatusIdeation  ChallengeStatus = "Ideation"
	StatusDrafting  ChallengeStatus = "Drafting"
	StatusInReview  ChallengeStatus = "In Review"
	StatusSubmitted ChallengeStatus = "Submitted"
	StatusPublished ChallengeStatus = "Published"
)

// ChallengeStatuses lists statuses in lifecycle order.
var ChallengeStatuses = []ChallengeStatus{StatusIdeation, StatusDrafting, StatusInReview, StatusSubmitted, StatusPublished}

var statusProgress = map[ChallengeStatus]int{
	StatusIdeation:  10,
	StatusDrafting:  35,
	StatusInReview:  60,
	StatusSubmitted: 80,
	StatusPublished: 100,
}

// Progress returns the fixed completion percentage for a status, 0 when unknown.
func (s ChallengeStatus) Progress() int {
	return statusProgress[s]
}

func (s ChallengeStatus) Valid() bool {
	_, ok := statusProgress[s]
	return ok
}

// Active reports whether the challenge is still being worked on.
func (s ChallengeStatus) Active() bool {
	return s != StatusSubmitted && s != StatusPublished
}

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "Not Started"
	TaskInProgress TaskStatus = "In Progress"
	TaskBlocked    TaskStatus = "Blocked"
	TaskDone       TaskStatus = "Done"
)

var TaskStatuses = []TaskStatus{TaskNotStarted, TaskInProgress, TaskBlocked, TaskDone}

func (s TaskStatus) Valid() bool { return slices.Contains(TaskStatuses, s) }

var taskProgress = map[TaskStatus]int{
	TaskNotStarted: 10,
	TaskInProgress: 60,
	TaskBlocked:    30,
	TaskDone:       100,
}

// Progress is the bar value shown for a task in this status.
func (s TaskStatus) Progress() int { return taskProgress[s] }

type Impact string

const (
	ImpactQuickWin     Impact = "Quick Win"
	ImpactHigh         Impact = "High Impact"
	ImpactFoundational Impact = "Foundational"
)

var Impacts = []Impact{ImpactQuickWin, ImpactHigh, ImpactFoundational}

func (i Impact) Valid() bool { return slices.Contains(Impacts, i) }

type ResourceType string

const (
	ResourceArticle ResourceType = "Article"
	ResourceVideo   ResourceType = "Video"
	ResourceTool    ResourceType = "Tool"
	ResourceSnippet ResourceType = "Snippet"
	ResourceThread  ResourceType = "Thread"
)

var ResourceTypes = []ResourceType{ResourceArticle, ResourceVideo, ResourceTool, ResourceSnippet, ResourceThread}

func (t ResourceType) Valid() bool { return slices.Contains(ResourceTypes, t) }

type Challenge struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Theme       string          `json:"theme"`
	Status      ChallengeStatus `json:"status"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Progress    int             `json:"progress"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
}

type Task struct {
	ID          string     `json:"id"`
	ChallengeID string     `json:"challengeId,omitempty"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type Idea struct {
	ID          string   `json:"id"`
	ChallengeID string   `json:"challengeId,omitempty"`
	Title       string   `json:"title"`
	Impact      Impact   `json:"impact"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`
}

type Resource struct {
	ID          string       `json:"id"`
	ChallengeID string       `json:"challengeId,omitempty"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Type        ResourceType `json:"type"`
	Notes       string       `json:"notes,omitempty"`
	Tags        []string     `json:"tags"`
}

// State is the whole tracker document.
type State struct {
	Challenges []Challenge `json:"challenges"`
	Tasks      []Task      `json:"tasks"`
	Ideas      []Idea      `json:"ideas"`
	Resources  []Resource  `json:"resources"`
}

// Clone returns a deep copy so a mutation never leaks into the source snapshot.
func (s State) Clone() State {
	out := State{
		Challenges: make([]Challenge, len(s.Challenges)),
		Tasks:      make([]Task, len(s.Tasks)),
		Ideas:      make([]Idea, len(s.Ideas)),
		Resources:  make([]Resource, len(s.Resources)),
	}
	for i, c := range s.Challenges {
		c.Tags = slices.Clone(c.Tags)
		c.Deadline = cloneTime(c.Deadline)
		out.Challenges[i] = c
	}
	for i, t := range s.Tasks {
		t.DueDate = cloneTime(t.DueDate)
		out.Tasks[i] = t
	}
	for i, idea := range s.Ideas {
		idea.Tags = slices.Clone(idea.Tags)
		out.Ideas[i] = idea
	}
	for i, r := range s.Resources {
		r.Tags = slices.Clone(r.Tags)
		out.Resources[i] = r
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Challenge looks up a challenge by id.
func (s State) Challenge(id string) (Challenge, bool) {
	for _, c := range s.Challenges {
		if c.ID == id {
			return c, true
		}
	}
	return Challenge{}, false
}

// ChallengeByTitle finds the first challenge whose title contains ref or is contained in
// ref, ignoring case. Failing that, a ref whose words abbreviate the title's words in order
// ("Proj Alpha" for "Project Alpha") matches.
func (s State) ChallengeByTitle(ref string) (Challenge, bool) {
	needle := strings.ToLower(strings.TrimSpace(ref))
	if needle == "" {
		return Challenge{}, false
	}
	for _, c := range s.Challenges {
		title := strings.ToLower(c.Title)
		if title == "" {
			continue
		}
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			return c, true
		}
	}
	words := strings.Fields(needle)
	for _, c := range s.Challenges {
		if abbreviates(words, strings.Fields(strings.ToLower(c.Title))) {
			return c, true
		}
	}
	return Challenge{}, false
}

// abbreviates reports whether every ref word is a prefix of a title word, in order.
func abbreviates(ref, title []string) bool {
	if len(ref) == 0 {
		return false
	}
	i := 0
	for _, w := range title {
		if i < len(ref) && strings.HasPrefix(w, ref[i]) {
			i++
		}
	}
	return i == len(ref)
}

// Counts returns the number of tasks, ideas and resources linked to a challenge.
func (s State) Counts(challengeID string) (tasks, ideas, resources int) {
	for _, t := range s.Tasks {
		if t.ChallengeID == challengeID {
			tasks++
		}
	}
	for _, i := range s.Ideas {
		if i.ChallengeID == challengeID {
			ideas++
		}
	}
	for _, r := range s.Resources {
		if r.ChallengeID == challengeID {
			resources++
		}
	}
	return tasks, ideas, resources
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
