package index

import (
	"fmt"
	"strings"
	"time"

	"devtracker/internal/domain"
)

// Markdown renders a record as the document uploaded to the knowledge base.
func Markdown(r domain.Record) string {
	var body string
	switch v := r.(type) {
	case domain.Challenge:
		body = challengeMarkdown(v)
	case domain.Task:
		body = taskMarkdown(v)
	case domain.Idea:
		body = ideaMarkdown(v)
	case domain.Resource:
		body = resourceMarkdown(v)
	}
	return fmt.Sprintf("# %s\n\n%s", r.RecordTitle(), body)
}

func section(level, name, value string) string {
	return fmt.Sprintf("%s %s\n%s", level, name, value)
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, t := range items {
		lines[i] = "- " + t
	}
	return strings.Join(lines, "\n")
}

func date(t *time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func challengeMarkdown(c domain.Challenge) string {
	parts := []string{section("##", "Theme", c.Theme)}
	if c.Deadline != nil {
		parts = append(parts, "\n"+section("##", "Deadline", date(c.Deadline)))
	}
	parts = append(parts, "\n"+section("##", "Description", c.Description))
	if len(c.Tags) > 0 {
		parts = append(parts, "\n"+section("##", "Tags", bullets(c.Tags)))
	}
	return strings.Join(parts, "\n")
}

func taskMarkdown(t domain.Task) string {
	parts := []string{section("###", "Status", string(t.Status))}
	if t.DueDate != nil {
		parts = append(parts, "\n"+section("###", "Due", date(t.DueDate)))
	}
	if t.Notes != "" {
		parts = append(parts, "\n"+section("###", "Notes", t.Notes))
	}
	return strings.Join(parts, "\n")
}

func ideaMarkdown(i domain.Idea) string {
	parts := []string{
		section("###", "Impact", string(i.Impact)),
		"\n" + section("###", "Notes", i.Notes),
	}
	if len(i.Tags) > 0 {
		parts = append(parts, "\n"+section("###", "Tags", bullets(i.Tags)))
	}
	return strings.Join(parts, "\n")
}

func resourceMarkdown(r domain.Resource) string {
	parts := []string{section("###", "Type", string(r.Type))}
	if r.URL != "" {
		parts = append(parts, "\n"+section("###", "URL", r.URL))
	}
	if r.Notes != "" {
		parts = append(parts, "\n"+section("###", "Notes", r.Notes))
	}
	if len(r.Tags) > 0 {
		parts = append(parts, "\n"+section("###", "Tags", bullets(r.Tags)))
	}
	return strings.Join(parts, "\n")
}
