package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devtracker/internal/app"
	"devtracker/internal/domain"
)

func challengeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "challenge", Aliases: []string{"challenges"}, Short: "Manage challenges"}
	cmd.AddCommand(challengeListCmd())
	cmd.AddCommand(challengeAddCmd())
	cmd.AddCommand(challengeShowCmd())
	cmd.AddCommand(challengeEditCmd())
	cmd.AddCommand(challengeStatusCmd())
	cmd.AddCommand(deleteCmd(domain.KindChallenge, "Delete a challenge with its tasks, ideas and resources"))
	return cmd
}

func challengeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(st domain.State) error {
				if viper.GetBool("json") {
					return printJSON(st.Challenges)
				}
				tw := newTable("ID", "Title", "Status", "Progress", "Deadline", "Theme")
				for _, c := range st.Challenges {
					tw.AppendRow(table.Row{c.ID, c.Title, c.Status, fmt.Sprintf("%d%%", c.Progress), formatDate(c.Deadline), c.Theme})
				}
				tw.Render()
				return nil
			})
		},
	}
}

type challengeFlags struct {
	title, theme, status, deadline, description string
	progress                                    int
	tags                                        []string
}

func (f *challengeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.theme, "theme", "", "theme")
	cmd.Flags().StringVar(&f.status, "status", "", "Ideation, Drafting, In Review, Submitted or Published")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().IntVar(&f.progress, "progress", 0, "progress override (0-100)")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "tag (repeatable)")
}

// apply copies the flags the user set onto form.
func (f *challengeFlags) apply(cmd *cobra.Command, form *domain.ChallengeForm) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		form.Title = f.title
	}
	if changed("theme") {
		form.Theme = f.theme
	}
	if changed("status") {
		form.Status = domain.ChallengeStatus(f.status)
	}
	if changed("deadline") {
		d, err := parseDate(f.deadline)
		if err != nil {
			return err
		}
		form.Deadline = d
	}
	if changed("description") {
		form.Description = f.description
	}
	if changed("progress") {
		p := f.progress
		form.Progress = &p
	}
	if changed("tag") {
		form.Tags = f.tags
	}
	return nil
}

func challengeAddCmd() *cobra.Command {
	var f challengeFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			var form domain.ChallengeForm
			if err := f.apply(cmd, &form); err != nil {
				return err
			}
			return saveAndPrint(cmd.Context(), "", form)
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func challengeEditCmd() *cobra.Command {
	var f challengeFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.Snapshot(ctx)
				if err != nil {
					return err
				}
				c, ok := st.Challenge(args[0])
				if !ok {
					return fmt.Errorf("challenge %s not found", args[0])
				}
				progress := c.Progress
				form := domain.ChallengeForm{
					Title:       c.Title,
					Theme:       c.Theme,
					Status:      c.Status,
					Deadline:    c.Deadline,
					Progress:    &progress,
					Description: c.Description,
					Tags:        c.Tags,
				}
				if err := f.apply(cmd, &form); err != nil {
					return err
				}
				rec, err := a.Engine.Save(ctx, viper.GetString("actor-id"), c.ID, form)
				if err != nil {
					return err
				}
				return printRecord(rec)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func challengeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a challenge to a new status; progress follows",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.ChallengeStatus(strings.Join(args[1:], " "))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.UpdateChallengeStatus(ctx, viper.GetString("actor-id"), args[0], status)
				if err != nil {
					return err
				}
				return printRecord(c)
			})
		},
	}
}

func challengeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a challenge with its linked records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(st domain.State) error {
				c, ok := st.Challenge(args[0])
				if !ok {
					if c, ok = st.ChallengeByTitle(args[0]); !ok {
						return fmt.Errorf("challenge %s not found", args[0])
					}
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				tasks, ideas, resources := st.Counts(c.ID)
				fmt.Printf("%s [%s]\n", c.Title, c.ID)
				fmt.Printf("Status: %s (%d%%)  Theme: %s  Deadline: %s\n", c.Status, c.Progress, c.Theme, orNone(formatDate(c.Deadline)))
				if c.Description != "" {
					fmt.Println(c.Description)
				}
				if len(c.Tags) > 0 {
					fmt.Println("Tags:", strings.Join(c.Tags, ", "))
				}
				fmt.Printf("Tasks: %d  Ideas: %d  Resources: %d\n", tasks, ideas, resources)
				if tasks > 0 {
					tw := newTable("Task", "Status", "Due")
					for _, t := range st.Tasks {
						if t.ChallengeID == c.ID {
							tw.AppendRow(table.Row{t.Title, t.Status, formatDate(t.DueDate)})
						}
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Aliases: []string{"tasks"}, Short: "Manage tasks"}

	var challengeID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(st domain.State) error {
				var items []domain.Task
				for _, t := range st.Tasks {
					if challengeID == "" || t.ChallengeID == challengeID {
						items = append(items, t)
					}
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Status", "Due", "Challenge")
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, formatDate(t.DueDate), challengeTitle(st, t.ChallengeID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&challengeID, "challenge", "", "only tasks of this challenge")
	cmd.AddCommand(list)

	var form domain.TaskForm
	var status, due string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(due)
			if err != nil {
				return err
			}
			form.DueDate = d
			form.Status = domain.TaskStatus(status)
			return saveAndPrint(cmd.Context(), "", form)
		},
	}
	add.Flags().StringVar(&form.ChallengeID, "challenge", "", "challenge id")
	add.Flags().StringVar(&form.Title, "title", "", "title")
	add.Flags().StringVar(&status, "status", "", "Not Started, In Progress, Blocked or Done")
	add.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	add.Flags().StringVar(&form.Notes, "notes", "", "notes")
	_ = add.MarkFlagRequired("title")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set task status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.TaskStatus(strings.Join(args[1:], " "))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTaskStatus(ctx, viper.GetString("actor-id"), args[0], status)
				if err != nil {
					return err
				}
				return printRecord(t)
			})
		},
	})
	cmd.AddCommand(deleteCmd(domain.KindTask, "Delete a task"))
	return cmd
}

func ideaCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "idea", Aliases: []string{"ideas"}, Short: "Manage ideas"}

	var challengeID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(st domain.State) error {
				var items []domain.Idea
				for _, i := range st.Ideas {
					if challengeID == "" || i.ChallengeID == challengeID {
						items = append(items, i)
					}
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Impact", "Challenge", "Tags")
				for _, i := range items {
					tw.AppendRow(table.Row{i.ID, i.Title, i.Impact, challengeTitle(st, i.ChallengeID), strings.Join(i.Tags, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&challengeID, "challenge", "", "only ideas of this challenge")
	cmd.AddCommand(list)

	var form domain.IdeaForm
	var impact string
	add := &cobra.Command{
		Use:   "add",
		Short: "Capture an idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			form.Impact = domain.Impact(impact)
			return saveAndPrint(cmd.Context(), "", form)
		},
	}
	add.Flags().StringVar(&form.ChallengeID, "challenge", "", "challenge id")
	add.Flags().StringVar(&form.Title, "title", "", "title")
	add.Flags().StringVar(&impact, "impact", string(domain.ImpactQuickWin), "Quick Win, High Impact or Foundational")
	add.Flags().StringVar(&form.Notes, "notes", "", "notes")
	add.Flags().StringArrayVar(&form.Tags, "tag", nil, "tag (repeatable)")
	_ = add.MarkFlagRequired("title")
	cmd.AddCommand(add)
	cmd.AddCommand(deleteCmd(domain.KindIdea, "Delete an idea"))
	return cmd
}

func resourceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "resource", Aliases: []string{"resources"}, Short: "Manage resources"}

	var challengeID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(st domain.State) error {
				var items []domain.Resource
				for _, r := range st.Resources {
					if challengeID == "" || r.ChallengeID == challengeID {
						items = append(items, r)
					}
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Type", "URL", "Challenge")
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Title, r.Type, r.URL, challengeTitle(st, r.ChallengeID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&challengeID, "challenge", "", "only resources of this challenge")
	cmd.AddCommand(list)

	var form domain.ResourceForm
	var typ string
	add := &cobra.Command{
		Use:   "add",
		Short: "Save a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			form.Type = domain.ResourceType(typ)
			return saveAndPrint(cmd.Context(), "", form)
		},
	}
	add.Flags().StringVar(&form.ChallengeID, "challenge", "", "challenge id")
	add.Flags().StringVar(&form.Title, "title", "", "title")
	add.Flags().StringVar(&form.URL, "url", "", "link")
	add.Flags().StringVar(&typ, "type", string(domain.ResourceArticle), "Article, Video, Tool, Snippet or Thread")
	add.Flags().StringVar(&form.Notes, "notes", "", "notes")
	add.Flags().StringArrayVar(&form.Tags, "tag", nil, "tag (repeatable)")
	_ = add.MarkFlagRequired("title")
	cmd.AddCommand(add)
	cmd.AddCommand(deleteCmd(domain.KindResource, "Delete a resource"))
	return cmd
}

func deleteCmd(kind domain.Kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				changes, err := a.Engine.Remove(ctx, viper.GetString("actor-id"), kind, args[0])
				if err != nil {
					return err
				}
				for _, c := range changes {
					fmt.Printf("Deleted %s %q\n", c.Record.Kind(), c.Record.RecordTitle())
				}
				return nil
			})
		},
	}
}

func withState(ctx context.Context, fn func(domain.State) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		st, err := a.Engine.Snapshot(ctx)
		if err != nil {
			return err
		}
		return fn(st)
	})
}

func saveAndPrint(ctx context.Context, id string, form domain.Form) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		rec, err := a.Engine.Save(ctx, viper.GetString("actor-id"), id, form)
		if err != nil {
			return err
		}
		return printRecord(rec)
	})
}

func printRecord(rec domain.Record) error {
	if viper.GetBool("json") {
		return printJSON(rec)
	}
	fmt.Printf("%s %s: %s\n", rec.Kind(), rec.RecordID(), rec.RecordTitle())
	return nil
}

func challengeTitle(st domain.State, id string) string {
	if id == "" {
		return ""
	}
	if c, ok := st.Challenge(id); ok {
		return c.Title
	}
	return "Unknown"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
