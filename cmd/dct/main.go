package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"devtracker/internal/app"
	"devtracker/internal/config"
	"devtracker/internal/db"
	"devtracker/internal/domain"
	"devtracker/internal/repo"
	"devtracker/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dct",
	Short: "Dev Challenge Tracker CLI",
	Long: `dct tracks content challenges and the tasks, ideas and resources around them.
- Challenges move Ideation -> Drafting -> In Review -> Submitted -> Published; progress follows the status unless set by hand.
- Tasks, ideas and resources may belong to a challenge; deleting a challenge removes them too.
- The assistant ('dct chat') reads and edits the tracker through tool calls to an OpenAI-compatible model.
- Settings live in .devtracker/settings.yml; DCT_* environment variables override them without being saved.
- Every change is recorded in the event log, view it with 'dct log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	viper.SetEnvPrefix("DCT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(challengeCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// envOverrides maps DCT_* variables (and --log-level) onto settings. They apply in memory
// only and are never written to settings.yml.
func envOverrides() []func(*config.Settings) {
	var out []func(*config.Settings)
	str := func(key string, set func(*config.Settings, string)) {
		if v := viper.GetString(key); v != "" {
			out = append(out, func(s *config.Settings) { set(s, v) })
		}
	}
	boolean := func(key string, set func(*config.Settings, bool)) {
		if viper.IsSet(key) {
			v := viper.GetBool(key)
			out = append(out, func(s *config.Settings) { set(s, v) })
		}
	}
	str("ai.api_key", func(s *config.Settings, v string) { s.AI.APIKey = v })
	str("ai.model", func(s *config.Settings, v string) { s.AI.Model = v })
	str("ai.base_url", func(s *config.Settings, v string) { s.AI.BaseURL = v })
	boolean("ai.web_search", func(s *config.Settings, v bool) { s.AI.WebSearch = v })
	str("index.api_key", func(s *config.Settings, v string) { s.Index.APIKey = v })
	str("index.knowledgebox", func(s *config.Settings, v string) { s.Index.KnowledgeBox = v })
	str("index.zone", func(s *config.Settings, v string) { s.Index.Zone = v })
	boolean("index.enabled", func(s *config.Settings, v bool) { s.Index.Enabled = v })
	str("log.level", func(s *config.Settings, v string) { s.Log.Level = v })
	str("log.format", func(s *config.Settings, v string) { s.Log.Format = v })
	return out
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Show or change settings"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective settings with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s := a.Settings.Get().Masked()
				if viper.GetBool("json") {
					return printJSON(s)
				}
				out, err := yaml.Marshal(s)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one setting, e.g. ai.model openai/gpt-4o",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := settingSetter(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Settings.Update(set); err != nil {
					return err
				}
				fmt.Printf("%s updated\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func settingSetter(key, value string) (func(*config.Settings), error) {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s expects true or false", key)
		}
		return b, nil
	}
	switch key {
	case "ai.api_key":
		return func(s *config.Settings) { s.AI.APIKey = value }, nil
	case "ai.model":
		return func(s *config.Settings) { s.AI.Model = value }, nil
	case "ai.base_url":
		return func(s *config.Settings) { s.AI.BaseURL = value }, nil
	case "ai.site_url":
		return func(s *config.Settings) { s.AI.SiteURL = value }, nil
	case "ai.site_name":
		return func(s *config.Settings) { s.AI.SiteName = value }, nil
	case "ai.web_search":
		b, err := parseBool()
		if err != nil {
			return nil, err
		}
		return func(s *config.Settings) { s.AI.WebSearch = b }, nil
	case "index.enabled":
		b, err := parseBool()
		if err != nil {
			return nil, err
		}
		return func(s *config.Settings) { s.Index.Enabled = b }, nil
	case "index.api_key":
		return func(s *config.Settings) { s.Index.APIKey = value }, nil
	case "index.knowledgebox":
		return func(s *config.Settings) { s.Index.KnowledgeBox = value }, nil
	case "index.zone":
		return func(s *config.Settings) { s.Index.Zone = value }, nil
	case "index.backend":
		return func(s *config.Settings) { s.Index.Backend = value }, nil
	case "index.timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number", key)
		}
		return func(s *config.Settings) { s.Index.TimeoutSeconds = n }, nil
	case "log.level":
		return func(s *config.Settings) { s.Log.Level = value }, nil
	case "log.format":
		return func(s *config.Settings) { s.Log.Format = value }, nil
	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !a.Settings.Get().AI.HasCredential() {
					return fmt.Errorf("%w: run 'dct settings set ai.api_key <key>'", config.ErrNoCredential)
				}
				models, err := a.LLM.Models(ctx)
				if err != nil {
					fmt.Fprintln(os.Stderr, "provider list unavailable, showing built-in models:", err)
				}
				if viper.GetBool("json") {
					return printJSON(models)
				}
				current := a.Settings.Get().AI.Model
				tw := newTable("", "ID", "Name", "Context", "Prompt $/tok")
				for _, m := range models {
					mark := ""
					if m.ID == current {
						mark = "*"
					}
					tw.AppendRow(table.Row{mark, m.ID, m.Name, m.ContextLength, m.Pricing.Prompt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Challenges: %d (%d active), average completion %d%%\n", s.Challenges, s.ActiveChallenges, s.AverageCompletion)
				fmt.Printf("Tasks: %d (%d open)  Ideas: %d  Resources: %d\n", s.Tasks, s.OpenTasks, s.Ideas, s.Resources)
				statuses := make([]string, 0, len(s.ByStatus))
				for st, n := range s.ByStatus {
					statuses = append(statuses, fmt.Sprintf("%s=%d", st, n))
				}
				sort.Strings(statuses)
				fmt.Println("By status:", strings.Join(statuses, ", "))
				tw := newTable("Upcoming", "Status", "Deadline", "Progress")
				for _, c := range s.Upcoming {
					tw.AppendRow(table.Row{c.Title, c.Status, formatDate(c.Deadline), fmt.Sprintf("%d%%", c.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "state", Short: "Export or import the tracker document"}
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the state document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				data, err := a.Engine.Export(ctx)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					fmt.Println(string(data))
					return nil
				}
				return os.WriteFile(out, append(data, '\n'), 0o644)
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the state with a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.Import(ctx, viper.GetString("actor-id"), data)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d challenges, %d tasks, %d ideas, %d resources\n",
					len(st.Challenges), len(st.Tasks), len(st.Ideas), len(st.Resources))
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor")
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, app.Options{
				Workspace: viper.GetString("workspace"),
				InMemory:  ephemeral,
				Overrides: envOverrides(),
			})
			if err != nil {
				return err
			}
			defer a.Close()
			go func() {
				if err := a.Settings.Watch(ctx); err != nil {
					a.Logger.Warn("settings watch stopped", zap.Error(err))
				}
			}()
			handler, err := server.New(server.Config{App: a, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Dev Challenge Tracker API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep state in memory only")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Overrides: envOverrides(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, ok := domain.ParseDate(s); ok {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}
