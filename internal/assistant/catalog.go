package assistant

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"devtracker/internal/domain"
	"devtracker/internal/llm"
)

// CatalogVersion changes whenever a tool or one of its parameters changes.
const CatalogVersion = "2024.2"

// Tool names as exchanged with the model.
const (
	ToolCreateChallenge     = "createChallenge"
	ToolAddTask             = "addTask"
	ToolAddIdea             = "addIdea"
	ToolAddResource         = "addResource"
	ToolGetChallengeList    = "getChallengeList"
	ToolGetChallengeDetails = "getChallengeDetails"
)

// ErrInvalidArguments is returned by Validate.
var ErrInvalidArguments = errors.New("invalid arguments")

type ParamType string

const (
	TypeString      ParamType = "string"
	TypeStringArray ParamType = "array"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// AllowEmpty lets a required string be present but blank.
	AllowEmpty  bool
	Enum        []string
}

// ToolSpec describes one operation the model may request.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

func enum[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

var challengeIDParam = Param{Name: "challengeId", Type: TypeString, Description: "Challenge ID (optional if context is clear)"}

var catalog = []ToolSpec{
	{
		Name:        ToolCreateChallenge,
		Description: "Create a new challenge",
		Params: []Param{
			{Name: "title", Type: TypeString, Description: "Challenge title", Required: true},
			{Name: "theme", Type: TypeString, Description: "Challenge theme", Required: true},
			{Name: "description", Type: TypeString, Description: "Challenge description", Required: true},
			{Name: "deadline", Type: TypeString, Description: "Challenge deadline, YYYY-MM-DD (optional)"},
			{Name: "tags", Type: TypeStringArray, Description: "Challenge tags"},
		},
	},
	{
		Name:        ToolAddTask,
		Description: "Add a task to a challenge",
		Params: []Param{
			challengeIDParam,
			{Name: "title", Type: TypeString, Description: "Task title", Required: true},
			{Name: "dueDate", Type: TypeString, Description: "Due date, YYYY-MM-DD (optional)"},
			{Name: "notes", Type: TypeString, Description: "Task notes (optional)"},
		},
	},
	{
		Name:        ToolAddIdea,
		Description: "Add an idea to a challenge",
		Params: []Param{
			challengeIDParam,
			{Name: "title", Type: TypeString, Description: "Idea title", Required: true},
			{Name: "impact", Type: TypeString, Description: "Impact level", Required: true, Enum: enum(domain.Impacts)},
			{Name: "notes", Type: TypeString, Description: "Idea notes", Required: true, AllowEmpty: true},
			{Name: "tags", Type: TypeStringArray, Description: "Idea tags"},
		},
	},
	{
		Name:        ToolAddResource,
		Description: "Add a resource to a challenge",
		Params: []Param{
			challengeIDParam,
			{Name: "title", Type: TypeString, Description: "Resource title", Required: true},
			{Name: "url", Type: TypeString, Description: "Resource URL", Required: true},
			{Name: "type", Type: TypeString, Description: "Resource type", Required: true, Enum: enum(domain.ResourceTypes)},
			{Name: "notes", Type: TypeString, Description: "Resource notes (optional)"},
			{Name: "tags", Type: TypeStringArray, Description: "Resource tags"},
		},
	},
	{
		Name:        ToolGetChallengeList,
		Description: "Get list of challenges",
	},
	{
		Name:        ToolGetChallengeDetails,
		Description: "Get details of a specific challenge",
		Params: []Param{
			{Name: "challengeId", Type: TypeString, Description: "Challenge ID", Required: true},
		},
	},
}

// Catalog returns the tool specs in a stable order.
func Catalog() []ToolSpec {
	return slices.Clone(catalog)
}

// Lookup finds a tool by its wire name.
func Lookup(name string) (ToolSpec, bool) {
	i := slices.IndexFunc(catalog, func(t ToolSpec) bool { return t.Name == name })
	if i < 0 {
		return ToolSpec{}, false
	}
	return catalog[i], true
}

// Param returns the parameter with the given name.
func (t ToolSpec) Param(name string) (Param, bool) {
	i := slices.IndexFunc(t.Params, func(p Param) bool { return p.Name == name })
	if i < 0 {
		return Param{}, false
	}
	return t.Params[i], true
}

// Schema renders the JSON schema object sent to the model.
func (t ToolSpec) Schema() map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, p := range t.Params {
		prop := map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Type == TypeStringArray {
			prop["items"] = map[string]any{"type": "string"}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// LLMTools is the tool list attached to every model request.
func LLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}

// Validate checks decoded arguments against the tool's parameters. Unknown keys are ignored.
func (t ToolSpec) Validate(args map[string]any) error {
	var problems []string
	for _, p := range t.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				problems = append(problems, p.Name+" is required")
			}
			continue
		}
		switch p.Type {
		case TypeString:
			s, ok := v.(string)
			if !ok {
				problems = append(problems, p.Name+" must be a string")
				continue
			}
			if p.Required && !p.AllowEmpty && strings.TrimSpace(s) == "" {
				problems = append(problems, p.Name+" must not be empty")
				continue
			}
			if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
				problems = append(problems, fmt.Sprintf("%s must be one of %s", p.Name, strings.Join(p.Enum, ", ")))
			}
		case TypeStringArray:
			items, ok := v.([]any)
			if !ok {
				problems = append(problems, p.Name+" must be an array of strings")
				continue
			}
			for _, it := range items {
				if _, ok := it.(string); !ok {
					problems = append(problems, p.Name+" must be an array of strings")
					break
				}
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
	}
	return nil
}
