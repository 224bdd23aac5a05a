package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devtracker/internal/domain"
)

// ErrUnknownTool is reported for a call whose name is not in the catalog.
var ErrUnknownTool = errors.New("unknown function")

// Call is one tool invocation requested by the model. Arguments is the raw JSON object.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Batch is the outcome of ExecuteBatch. Results and Errors align with the input calls; an
// entry in Errors is nil when the call succeeded.
type Batch struct {
	Results []string
	Errors  []error
	State   domain.State
	Changes []domain.Change
}

type Executor struct {
	NewID  func() string
	Logger *zap.Logger
}

func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{NewID: uuid.NewString, Logger: logger}
}

func (x *Executor) newID() string {
	if x.NewID != nil {
		return x.NewID()
	}
	return uuid.NewString()
}

func (x *Executor) logger() *zap.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return zap.NewNop()
}

// ExecuteBatch runs calls in order against a copy of snapshot. Each call sees the effects
// of the calls before it. A failing call yields an error text and never stops the batch.
// contextChallengeID is attached to calls that accept a challengeId and did not send one.
func (x *Executor) ExecuteBatch(calls []Call, snapshot domain.State, contextChallengeID string) Batch {
	b := Batch{
		Results: make([]string, len(calls)),
		Errors:  make([]error, len(calls)),
		State:   snapshot.Clone(),
	}
	for i, call := range calls {
		text, change, err := x.execute(call, &b.State, contextChallengeID)
		b.Results[i] = text
		b.Errors[i] = err
		if err != nil {
			x.logger().Warn("tool call failed", zap.String("tool", call.Name), zap.String("call_id", call.ID), zap.Error(err))
			continue
		}
		if change != nil {
			b.Changes = append(b.Changes, *change)
		}
	}
	return b
}

func (x *Executor) execute(call Call, st *domain.State, contextChallengeID string) (string, *domain.Change, error) {
	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return "Error parsing function arguments: " + err.Error(), nil, err
	}
	spec, ok := Lookup(call.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		return fmt.Sprintf("Failed to execute %s: Unknown function: %s", call.Name, call.Name), nil, err
	}
	if _, ok := spec.Param("challengeId"); ok {
		resolveChallengeArg(args, st, contextChallengeID)
	}
	if err := spec.Validate(args); err != nil {
		return fmt.Sprintf("Failed to execute %s: %v", call.Name, err), nil, err
	}

	switch spec.Name {
	case ToolCreateChallenge:
		c := domain.Challenge{
			ID:          x.newID(),
			Title:       str(args, "title"),
			Theme:       str(args, "theme"),
			Description: str(args, "description"),
			Status:      domain.StatusIdeation,
			Progress:    0,
			Deadline:    x.date(args, "deadline"),
			Tags:        strs(args, "tags"),
		}
		st.Challenges = append(st.Challenges, c)
		return fmt.Sprintf(`Created new challenge: "%s" with theme "%s".`, c.Title, c.Theme), created(c), nil
	case ToolAddTask:
		t := domain.Task{
			ID:          x.newID(),
			ChallengeID: str(args, "challengeId"),
			Title:       str(args, "title"),
			Status:      domain.TaskNotStarted,
			DueDate:     x.date(args, "dueDate"),
			Notes:       str(args, "notes"),
		}
		st.Tasks = append(st.Tasks, t)
		return fmt.Sprintf(`Added task: "%s"%s.`, t.Title, parentClause(st, t.ChallengeID)), created(t), nil
	case ToolAddIdea:
		idea := domain.Idea{
			ID:          x.newID(),
			ChallengeID: str(args, "challengeId"),
			Title:       str(args, "title"),
			Impact:      domain.Impact(str(args, "impact")),
			Notes:       str(args, "notes"),
			Tags:        strs(args, "tags"),
		}
		st.Ideas = append(st.Ideas, idea)
		return fmt.Sprintf(`Added idea: "%s" (%s)%s.`, idea.Title, idea.Impact, parentClause(st, idea.ChallengeID)), created(idea), nil
	case ToolAddResource:
		r := domain.Resource{
			ID:          x.newID(),
			ChallengeID: str(args, "challengeId"),
			Title:       str(args, "title"),
			URL:         str(args, "url"),
			Type:        domain.ResourceType(str(args, "type")),
			Notes:       str(args, "notes"),
			Tags:        strs(args, "tags"),
		}
		st.Resources = append(st.Resources, r)
		return fmt.Sprintf(`Added resource: "%s" (%s)%s.`, r.Title, r.Type, parentClause(st, r.ChallengeID)), created(r), nil
	case ToolGetChallengeList:
		return challengeList(*st), nil, nil
	case ToolGetChallengeDetails:
		return challengeDetails(*st, str(args, "challengeId")), nil, nil
	}
	// catalog entries without a handler
	err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	return fmt.Sprintf("Failed to execute %s: Unknown function: %s", call.Name, call.Name), nil, err
}

func created(r domain.Record) *domain.Change {
	return &domain.Change{Op: domain.OpCreated, Record: r}
}

func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// resolveChallengeArg swaps a title-looking challengeId for the id of the matching challenge
// and fills in the context challenge when none was given.
func resolveChallengeArg(args map[string]any, st *domain.State, contextChallengeID string) {
	ref, _ := args["challengeId"].(string)
	if strings.ContainsFunc(ref, unicode.IsSpace) {
		if c, ok := st.ChallengeByTitle(ref); ok {
			args["challengeId"] = c.ID
			return
		}
	}
	if ref == "" && contextChallengeID != "" {
		args["challengeId"] = contextChallengeID
	}
}

// parentClause names the parent challenge, "Unknown" when the id does not resolve.
func parentClause(st *domain.State, challengeID string) string {
	if challengeID == "" {
		return ""
	}
	title := "Unknown"
	if c, ok := st.Challenge(challengeID); ok {
		title = c.Title
	}
	return fmt.Sprintf(` to challenge "%s"`, title)
}

func challengeList(st domain.State) string {
	if len(st.Challenges) == 0 {
		return "No challenges found. Would you like to create one?"
	}
	lines := make([]string, 0, len(st.Challenges)+1)
	lines = append(lines, "Here are your challenges:")
	for _, c := range st.Challenges {
		lines = append(lines, fmt.Sprintf("- %s (%s) - %d%% complete", c.Title, c.Status, c.Progress))
	}
	return strings.Join(lines, "\n")
}

func challengeDetails(st domain.State, id string) string {
	c, ok := st.Challenge(id)
	if !ok {
		return fmt.Sprintf(`Challenge with ID "%s" not found.`, id)
	}
	tasks, ideas, resources := st.Counts(id)
	return strings.Join([]string{
		fmt.Sprintf(`Challenge: "%s"`, c.Title),
		fmt.Sprintf("Status: %s (%d%% complete)", c.Status, c.Progress),
		"Theme: " + c.Theme,
		"Description: " + c.Description,
		"Tags: " + strings.Join(c.Tags, ", "),
		fmt.Sprintf("Tasks: %d", tasks),
		fmt.Sprintf("Ideas: %d", ideas),
		fmt.Sprintf("Resources: %d", resources),
	}, "\n")
}

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func strs(args map[string]any, key string) []string {
	items, _ := args[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// date parses an optional date argument. Values the model phrases loosely are dropped.
func (x *Executor) date(args map[string]any, key string) *time.Time {
	s := str(args, key)
	if s == "" {
		return nil
	}
	if t, ok := domain.ParseDate(s); ok {
		return &t
	}
	x.logger().Debug("ignoring unparseable date", zap.String("field", key), zap.String("value", s))
	return nil
}
