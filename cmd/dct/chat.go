package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devtracker/internal/app"
	"devtracker/internal/assistant"
	"devtracker/internal/domain"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "chat", Short: "Talk to the assistant"}
	cmd.AddCommand(chatNewCmd())
	cmd.AddCommand(chatListCmd())
	cmd.AddCommand(chatShowCmd())
	cmd.AddCommand(chatSendCmd())
	cmd.AddCommand(chatReplCmd())
	cmd.AddCommand(chatUseCmd())
	cmd.AddCommand(chatContextCmd())
	cmd.AddCommand(chatDeleteCmd())
	return cmd
}

func chatNewCmd() *cobra.Command {
	var title, challengeID string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a conversation and make it active",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				conv, err := a.Chats.Create(ctx, title, challengeID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(conv)
				}
				fmt.Printf("%s  %s\n", conv.ID, conv.Title)
				printMessages(conv.Messages)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "conversation title (default Chat #N)")
	cmd.Flags().StringVar(&challengeID, "challenge", "", "scope the conversation to a challenge")
	return cmd
}

func chatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				convs, err := a.Chats.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(convs)
				}
				active, _, err := a.Chats.Active(ctx)
				if err != nil {
					return err
				}
				st, err := a.Engine.Snapshot(ctx)
				if err != nil {
					return err
				}
				tw := newTable("", "ID", "Title", "Messages", "Challenge", "Updated")
				for _, c := range convs {
					mark := ""
					if c.ID == active.ID {
						mark = "*"
					}
					tw.AppendRow(table.Row{mark, c.ID, c.Title, len(c.Messages), challengeTitle(st, c.ContextChallengeID), c.UpdatedAt.Format("2006-01-02 15:04")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func chatShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation (default: the active one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				conv, err := pickConversation(ctx, a, firstArg(args), false)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(conv)
				}
				fmt.Printf("%s  %s\n", conv.ID, conv.Title)
				printMessages(conv.Messages)
				return nil
			})
		},
	}
}

func chatSendCmd() *cobra.Command {
	var convID, hint string
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				conv, err := pickConversation(ctx, a, convID, true)
				if err != nil {
					return err
				}
				turn, err := a.Assistant.Send(ctx, conv.ID, text, assistant.PageHint{ChallengeID: hint})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(turn)
				}
				printTurn(turn)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id (default: active, created if none)")
	cmd.Flags().StringVar(&hint, "challenge", "", "challenge you are looking at")
	return cmd
}

func chatReplCmd() *cobra.Command {
	var convID, hint string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				conv, err := pickConversation(ctx, a, convID, true)
				if err != nil {
					return err
				}
				return runRepl(ctx, a, conv, hint)
			})
		},
	}
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id (default: active, created if none)")
	cmd.Flags().StringVar(&hint, "challenge", "", "challenge you are looking at")
	return cmd
}

func runRepl(ctx context.Context, a *app.App, conv domain.Conversation, hint string) error {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
		readline.PcItem("/new"),
		readline.PcItem("/list"),
		readline.PcItem("/history"),
		readline.PcItem("/focus"),
		readline.PcItem("/context"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "You> ",
		HistoryFile:       filepath.Join(a.Workspace, ".devtracker", "chat_history"),
		HistoryLimit:      1000,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s  %s  (/help for commands)\n", conv.ID, conv.Title)
	if last, ok := conv.LastMessage(); ok {
		printMessages([]domain.Message{last})
	}
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				fmt.Println("Use /quit to exit or Ctrl+D")
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			fields := strings.Fields(input)
			switch fields[0] {
			case "/quit", "/exit":
				return nil
			case "/help":
				fmt.Println("/new [title]      start a new conversation")
				fmt.Println("/list             list conversations")
				fmt.Println("/history          print this conversation")
				fmt.Println("/focus <id|->     set or clear the challenge you are looking at")
				fmt.Println("/context <id|->   scope this conversation to a challenge")
				fmt.Println("/quit             leave")
			case "/new":
				next, err := a.Chats.Create(ctx, strings.Join(fields[1:], " "), "")
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				conv = next
				fmt.Printf("%s  %s\n", conv.ID, conv.Title)
				printMessages(conv.Messages)
			case "/list":
				convs, err := a.Chats.List(ctx)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				for _, c := range convs {
					fmt.Printf("%s  %s (%d messages)\n", c.ID, c.Title, len(c.Messages))
				}
			case "/history":
				current, err := a.Chats.Get(ctx, conv.ID)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				printMessages(current.Messages)
			case "/focus":
				hint = argOrClear(fields)
				fmt.Println("focus:", orNone(hint))
			case "/context":
				id := argOrClear(fields)
				if err := a.Chats.SetContext(ctx, conv.ID, id); err != nil {
					fmt.Println("error:", err)
					continue
				}
				fmt.Println("context:", orNone(id))
			default:
				fmt.Println("unknown command, try /help")
			}
			continue
		}

		turn, err := a.Assistant.Send(ctx, conv.ID, input, assistant.PageHint{ChallengeID: hint})
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		printTurn(turn)
	}
}

func chatUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a conversation the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Chats.SetActive(ctx, args[0])
			})
		},
	}
}

func chatContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <conversation-id> <challenge-id|->",
		Short: "Scope a conversation to a challenge; - clears it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			challengeID := args[1]
			if challengeID == "-" {
				challengeID = ""
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if challengeID != "" {
					st, err := a.Engine.Snapshot(ctx)
					if err != nil {
						return err
					}
					if _, ok := st.Challenge(challengeID); !ok {
						return fmt.Errorf("challenge %s not found", challengeID)
					}
				}
				return a.Chats.SetContext(ctx, args[0], challengeID)
			})
		},
	}
}

func chatDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Chats.Delete(ctx, args[0])
			})
		},
	}
}

// pickConversation returns the conversation with id, else the active one. With create set a
// new conversation is started when none is active.
func pickConversation(ctx context.Context, a *app.App, id string, create bool) (domain.Conversation, error) {
	if id != "" {
		return a.Chats.Get(ctx, id)
	}
	conv, ok, err := a.Chats.Active(ctx)
	if err != nil {
		return domain.Conversation{}, err
	}
	if ok {
		return conv, nil
	}
	if !create {
		return domain.Conversation{}, errors.New("no active conversation, start one with 'dct chat new'")
	}
	return a.Chats.Create(ctx, "", "")
}

func printTurn(turn assistant.Turn) {
	for _, r := range turn.ToolResults {
		fmt.Println("  ·", r)
	}
	if turn.Reply != nil {
		fmt.Println(renderMarkdown(turn.Reply.Text))
	}
}

func printMessages(msgs []domain.Message) {
	for _, m := range msgs {
		if m.Author == domain.AuthorUser {
			fmt.Printf("You> %s\n", m.Text)
			continue
		}
		fmt.Println(renderMarkdown(m.Text))
	}
}

func renderMarkdown(text string) string {
	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return text
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func argOrClear(fields []string) string {
	if len(fields) < 2 || fields[1] == "-" {
		return ""
	}
	return fields[1]
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
