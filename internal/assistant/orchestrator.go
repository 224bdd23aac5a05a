package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"devtracker/internal/chat"
	"devtracker/internal/config"
	"devtracker/internal/domain"
	"devtracker/internal/llm"
	"devtracker/internal/metrics"
)

// Fixed assistant texts.
const (
	ConfigPrompt      = "To use AI features, please click the ⚙️ settings button and configure your OpenRouter API key. You can get a free API key at openrouter.ai/keys"
	Apology           = "Sorry, I encountered an error processing your request. Please try again."
	EmptyReply        = "I processed your request."
	ClarifyFallback   = "Please clarify your request."
	ActorAssistant    = "assistant"
	historyForModel   = 8
	defaultToolChoice = "auto"
)

var (
	// ErrTurnInFlight is returned by Send while another turn runs for the same conversation.
	ErrTurnInFlight = errors.New("a message is already being processed for this conversation")
	ErrEmptyMessage = errors.New("message text is required")
)

// Phase is a step of the per-turn state machine.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseAwaitingContext       Phase = "awaiting_context"
	PhaseAwaitingModelPass1    Phase = "awaiting_model_pass1"
	PhaseAwaitingToolExecution Phase = "awaiting_tool_execution"
	PhaseAwaitingModelPass2    Phase = "awaiting_model_pass2"
	PhaseDone                  Phase = "done"
	PhaseBlocked               Phase = "blocked"
)

type Store interface {
	Snapshot(ctx context.Context) (domain.State, error)
	Apply(ctx context.Context, actorID string, fn func(*domain.State) ([]domain.Change, error)) ([]domain.Change, error)
}

type Conversations interface {
	Get(ctx context.Context, id string) (domain.Conversation, error)
	Append(ctx context.Context, id string, author domain.Author, text string) (domain.Message, error)
	BeginTurn(id string) error
	EndTurn(id string)
}

type Gateway interface {
	Complete(ctx context.Context, r llm.Request) (llm.Response, error)
}

// Turn reports what a Send did. Reply is nil only when the configuration prompt was
// suppressed because it was already the previous message.
type Turn struct {
	ConversationID string          `json:"conversationId"`
	Phase          Phase           `json:"phase"`
	ChallengeID    string          `json:"challengeId,omitempty"`
	User           domain.Message  `json:"user"`
	Reply          *domain.Message `json:"reply,omitempty"`
	ToolResults    []string        `json:"toolResults,omitempty"`
}

type Orchestrator struct {
	Store    Store
	Chats    Conversations
	Gateway  Gateway
	Settings func() config.AISettings
	Executor *Executor
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// OnPhase, when set, is called on every phase change.
	OnPhase func(conversationID string, p Phase)
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Orchestrator) enter(convID string, p Phase) {
	if o.OnPhase != nil {
		o.OnPhase(convID, p)
	}
}

// Send runs one user turn. The user message is stored before any remote call and every
// turn that gets that far stores exactly one assistant message, unless the configuration
// prompt would repeat itself. Model and tool failures become an apology reply rather than an
// error; tool effects committed before a failure stay.
func (o *Orchestrator) Send(ctx context.Context, convID, text string, hint PageHint) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyMessage
	}
	if err := o.Chats.BeginTurn(convID); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			return Turn{}, ErrTurnInFlight
		}
		return Turn{}, err
	}
	defer func() {
		o.Chats.EndTurn(convID)
		o.enter(convID, PhaseIdle)
	}()
	started := time.Now()

	conv, err := o.Chats.Get(ctx, convID)
	if err != nil {
		return Turn{}, err
	}
	history := conv.Messages
	prev, hasPrev := conv.LastMessage()
	userMsg, err := o.Chats.Append(ctx, convID, domain.AuthorUser, text)
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{ConversationID: convID, User: userMsg}
	// replies are stored even if the caller gave up waiting
	persistCtx := context.WithoutCancel(ctx)

	reply := func(phase Phase, outcome, msg string) (Turn, error) {
		m, err := o.Chats.Append(persistCtx, convID, domain.AuthorAssistant, msg)
		if err != nil {
			return turn, fmt.Errorf("store reply: %w", err)
		}
		turn.Reply = &m
		turn.Phase = phase
		o.enter(convID, phase)
		o.Metrics.ObserveTurn(outcome, started)
		return turn, nil
	}

	if o.Settings == nil || !o.Settings().HasCredential() {
		if hasPrev && prev.Author == domain.AuthorAssistant && prev.Text == ConfigPrompt {
			turn.Phase = PhaseDone
			o.Metrics.ObserveTurn("unconfigured", started)
			return turn, nil
		}
		return reply(PhaseDone, "unconfigured", ConfigPrompt)
	}

	o.enter(convID, PhaseAwaitingContext)
	snapshot, err := o.Store.Snapshot(ctx)
	if err != nil {
		o.logger().Error("load state for turn", zap.String("conversation", convID), zap.Error(err))
		return reply(PhaseDone, "failed", Apology)
	}
	if hint.ChallengeID == "" {
		hint.ChallengeID = conv.ContextChallengeID
	}
	res := Resolve(text, history, Refs(snapshot), hint)
	turn.ChallengeID = res.ChallengeID
	if res.NeedsClarification {
		q := res.ClarificationQuestion
		if q == "" {
			q = ClarifyFallback
		}
		return reply(PhaseBlocked, "clarification", q)
	}

	msg, err := o.run(ctx, convID, text, history, res.ChallengeID, &turn)
	if err != nil {
		o.logger().Error("assistant turn failed", zap.String("conversation", convID), zap.Error(err))
		return reply(PhaseDone, "failed", Apology)
	}
	return reply(PhaseDone, "reply", msg)
}

// run performs the model passes and the tool batch in between.
func (o *Orchestrator) run(ctx context.Context, convID, text string, history []domain.Message, challengeID string, turn *Turn) (string, error) {
	base := modelHistory(history)
	user := llm.Message{Role: llm.RoleUser, Content: text}

	o.enter(convID, PhaseAwaitingModelPass1)
	first := append([]llm.Message{{Role: llm.RoleSystem, Content: FirstPassPrompt(challengeID)}}, base...)
	first = append(first, user)
	resp, err := o.Gateway.Complete(ctx, llm.Request{Messages: first, Tools: LLMTools(), ToolChoice: defaultToolChoice})
	o.Metrics.ModelRequest("initial", err == nil)
	if err != nil {
		return "", fmt.Errorf("initial model call: %w", err)
	}
	toolCalls := resp.Usable()
	if dropped := len(resp.ToolCalls) - len(toolCalls); dropped > 0 {
		o.logger().Warn("dropped tool calls without id or name", zap.Int("count", dropped))
	}
	if len(toolCalls) == 0 {
		return orDefault(resp.Content), nil
	}

	o.enter(convID, PhaseAwaitingToolExecution)
	calls := make([]Call, len(toolCalls))
	for i, tc := range toolCalls {
		calls[i] = Call{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	executor := o.Executor
	if executor == nil {
		executor = NewExecutor(o.Logger)
	}
	var batch Batch
	_, err = o.Store.Apply(ctx, ActorAssistant, func(st *domain.State) ([]domain.Change, error) {
		batch = executor.ExecuteBatch(calls, *st, challengeID)
		*st = batch.State
		return batch.Changes, nil
	})
	if err != nil {
		return "", fmt.Errorf("execute tools: %w", err)
	}
	for i, c := range calls {
		o.Metrics.ToolCall(c.Name, batch.Errors[i] == nil)
	}
	turn.ToolResults = batch.Results

	o.enter(convID, PhaseAwaitingModelPass2)
	follow := append([]llm.Message{{Role: llm.RoleSystem, Content: FollowUpPrompt(challengeID, batch.State.Challenges)}}, base...)
	follow = append(follow, user, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: toolCalls})
	for i, c := range calls {
		follow = append(follow, llm.Message{Role: llm.RoleTool, ToolCallID: c.ID, Content: batch.Results[i]})
	}
	final, err := o.Gateway.Complete(ctx, llm.Request{Messages: follow, Tools: LLMTools()})
	o.Metrics.ModelRequest("follow_up", err == nil)
	if err != nil {
		return "", fmt.Errorf("follow-up model call: %w", err)
	}
	return orDefault(final.Content), nil
}

// modelHistory maps the most recent stored messages to chat roles.
func modelHistory(history []domain.Message) []llm.Message {
	start := max(len(history)-historyForModel, 0)
	out := make([]llm.Message, 0, len(history)-start)
	for _, m := range history[start:] {
		role := llm.RoleAssistant
		if m.Author == domain.AuthorUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	return out
}

func orDefault(content string) string {
	if strings.TrimSpace(content) == "" {
		return EmptyReply
	}
	return content
}
