package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtracker/internal/chat"
	"devtracker/internal/config"
	"devtracker/internal/db"
	"devtracker/internal/domain"
	"devtracker/internal/engine"
	"devtracker/internal/llm"
	"devtracker/internal/migrate"
)

type fakeGateway struct {
	mu        sync.Mutex
	requests  []llm.Request
	responses []llm.Response
	errs      []error
	started   chan struct{}
	release   chan struct{}
}

func (f *fakeGateway) Complete(ctx context.Context, r llm.Request) (llm.Response, error) {
	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, r)
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.Response{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return llm.Response{Content: "ok"}, nil
}

func (f *fakeGateway) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

type orchEnv struct {
	ctx     context.Context
	orch    *Orchestrator
	engine  *engine.Engine
	chats   *chat.Manager
	gateway *fakeGateway
	ai      config.AISettings
	phases  []Phase
}

func newOrchEnv(t *testing.T) *orchEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)

	env := &orchEnv{ctx: context.Background(), gateway: &fakeGateway{}, ai: config.AISettings{APIKey: "sk-test", Model: "m"}}
	env.engine = engine.New(conn, nil)
	env.chats = chat.NewManager(conn, nil)
	n := 0
	exec := &Executor{NewID: func() string { n++; return fmt.Sprintf("gen-%d", n) }}
	var mu sync.Mutex
	env.orch = &Orchestrator{
		Store:    env.engine,
		Chats:    env.chats,
		Gateway:  env.gateway,
		Settings: func() config.AISettings { return env.ai },
		Executor: exec,
		OnPhase: func(_ string, p Phase) {
			mu.Lock()
			env.phases = append(env.phases, p)
			mu.Unlock()
		},
	}
	require.NoError(t, env.engine.Load(env.ctx))
	return env
}

func (e *orchEnv) conversation(t *testing.T, challengeID string) domain.Conversation {
	t.Helper()
	conv, err := e.chats.Create(e.ctx, "", challengeID)
	require.NoError(t, err)
	return conv
}

func (e *orchEnv) messages(t *testing.T, id string) []domain.Message {
	t.Helper()
	conv, err := e.chats.Get(e.ctx, id)
	require.NoError(t, err)
	return conv.Messages
}

func TestSendWithoutCredentialPromptsOnce(t *testing.T) {
	env := newOrchEnv(t)
	env.ai.APIKey = ""
	conv := env.conversation(t, "")

	turn, err := env.orch.Send(env.ctx, conv.ID, "hi", PageHint{})
	require.NoError(t, err)
	require.NotNil(t, turn.Reply)
	assert.Equal(t, ConfigPrompt, turn.Reply.Text)
	msgs := env.messages(t, conv.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.AuthorUser, msgs[1].Author)
	assert.Equal(t, ConfigPrompt, msgs[2].Text)

	// the prompt is the last message, so the next send adds only the user message
	turn, err = env.orch.Send(env.ctx, conv.ID, "hello?", PageHint{})
	require.NoError(t, err)
	assert.Nil(t, turn.Reply)
	assert.Len(t, env.messages(t, conv.ID), 4)

	turn, err = env.orch.Send(env.ctx, conv.ID, "anyone?", PageHint{})
	require.NoError(t, err)
	require.NotNil(t, turn.Reply)
	assert.Len(t, env.messages(t, conv.ID), 6)
	assert.Empty(t, env.gateway.calls())
}

func TestSendWithoutCredentialSkipsRepeatPrompt(t *testing.T) {
	env := newOrchEnv(t)
	env.ai.APIKey = ""
	conv := env.conversation(t, "")
	_, err := env.chats.Append(env.ctx, conv.ID, domain.AuthorAssistant, ConfigPrompt)
	require.NoError(t, err)

	turn, err := env.orch.Send(env.ctx, conv.ID, "hi", PageHint{})
	require.NoError(t, err)
	assert.Nil(t, turn.Reply)
	msgs := env.messages(t, conv.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.AuthorUser, msgs[2].Author)
}

func TestSendAsksForClarification(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")

	turn, err := env.orch.Send(env.ctx, conv.ID, "add a task for this", PageHint{})
	require.NoError(t, err)
	assert.Equal(t, PhaseBlocked, turn.Phase)
	assert.Equal(t, "Which challenge should I help you with?\n1. Spring Community Health Hackathon (Drafting)\n2. AI Mentorship Network (Ideation)", turn.Reply.Text)
	assert.Empty(t, env.gateway.calls())
	assert.Equal(t, []Phase{PhaseAwaitingContext, PhaseBlocked, PhaseIdle}, env.phases)
}

func TestSendPlainReply(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")
	env.gateway.responses = []llm.Response{{Content: ""}}

	turn, err := env.orch.Send(env.ctx, conv.ID, "what can you do?", PageHint{})
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, turn.Reply.Text)

	reqs := env.gateway.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, "auto", reqs[0].ToolChoice)
	assert.Len(t, reqs[0].Tools, 6)
	msgs := reqs[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "No specific challenge context")
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "what can you do?"}, msgs[2])
}

func TestSendExecutesToolsAndFollowsUp(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "ai-mentorship-network")
	env.gateway.responses = []llm.Response{
		{
			Content: "On it",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Type: "function", Function: llm.FunctionCall{Name: ToolAddTask, Arguments: `{"title":"Draft rubric"}`}},
				{ID: "", Type: "function", Function: llm.FunctionCall{Name: ToolAddTask, Arguments: `{"title":"dropped"}`}},
				{ID: "call-2", Type: "function", Function: llm.FunctionCall{Name: "nope", Arguments: `{}`}},
			},
		},
		{Content: "Added the task."},
	}

	turn, err := env.orch.Send(env.ctx, conv.ID, "add a task: draft rubric", PageHint{})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, turn.Phase)
	assert.Equal(t, "ai-mentorship-network", turn.ChallengeID)
	assert.Equal(t, "Added the task.", turn.Reply.Text)
	assert.Equal(t, []string{
		`Added task: "Draft rubric" to challenge "AI Mentorship Network".`,
		"Failed to execute nope: Unknown function: nope",
	}, turn.ToolResults)

	st, err := env.engine.Snapshot(env.ctx)
	require.NoError(t, err)
	tasks, _, _ := st.Counts("ai-mentorship-network")
	assert.Equal(t, 2, tasks)

	reqs := env.gateway.calls()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Messages[0].Content, "Working on challenge ai-mentorship-network")
	follow := reqs[1]
	assert.Empty(t, follow.ToolChoice)
	assert.Len(t, follow.Tools, 6)
	n := len(follow.Messages)
	assistantMsg := follow.Messages[n-3]
	assert.Equal(t, llm.RoleAssistant, assistantMsg.Role)
	require.Len(t, assistantMsg.ToolCalls, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, ToolCallID: "call-1", Content: turn.ToolResults[0]}, follow.Messages[n-2])
	assert.Equal(t, "call-2", follow.Messages[n-1].ToolCallID)
	assert.Contains(t, follow.Messages[0].Content, "- AI Mentorship Network (ID: ai-mentorship-network)")

	assert.Equal(t, []Phase{PhaseAwaitingContext, PhaseAwaitingModelPass1, PhaseAwaitingToolExecution, PhaseAwaitingModelPass2, PhaseDone, PhaseIdle}, env.phases)
}

func TestFollowUpFailureKeepsToolEffects(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")
	env.gateway.responses = []llm.Response{{ToolCalls: []llm.ToolCall{
		{ID: "c1", Function: llm.FunctionCall{Name: ToolCreateChallenge, Arguments: `{"title":"Durable","theme":"t","description":"d"}`}},
	}}}
	env.gateway.errs = []error{nil, errors.New("gateway down")}

	turn, err := env.orch.Send(env.ctx, conv.ID, "create a challenge called Durable", PageHint{})
	require.NoError(t, err)
	assert.Equal(t, Apology, turn.Reply.Text)

	st, err := env.engine.Snapshot(env.ctx)
	require.NoError(t, err)
	c, ok := st.ChallengeByTitle("Durable")
	require.True(t, ok)
	assert.Equal(t, domain.StatusIdeation, c.Status)
	assert.Equal(t, 0, c.Progress)

	msgs := env.messages(t, conv.ID)
	assert.Len(t, msgs, 3)
}

func TestInitialFailureApologises(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")
	env.gateway.errs = []error{&llm.APIError{Status: 500, Body: "boom"}}

	turn, err := env.orch.Send(env.ctx, conv.ID, "hello", PageHint{})
	require.NoError(t, err)
	assert.Equal(t, Apology, turn.Reply.Text)
	assert.Len(t, env.messages(t, conv.ID), 3)
}

func TestSendRejectsConcurrentTurn(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")
	env.gateway.started = make(chan struct{}, 1)
	env.gateway.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.orch.Send(env.ctx, conv.ID, "first", PageHint{})
		done <- err
	}()
	select {
	case <-env.gateway.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the gateway")
	}

	_, err := env.orch.Send(env.ctx, conv.ID, "second", PageHint{})
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.True(t, env.chats.Processing(conv.ID))

	close(env.gateway.release)
	require.NoError(t, <-done)
	assert.False(t, env.chats.Processing(conv.ID))
	msgs := env.messages(t, conv.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[1].Text)
}

func TestSendRejectsEmptyText(t *testing.T) {
	env := newOrchEnv(t)
	conv := env.conversation(t, "")
	_, err := env.orch.Send(env.ctx, conv.ID, "   ", PageHint{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, env.messages(t, conv.ID), 1)
}

func TestModelHistoryKeepsLastEight(t *testing.T) {
	var history []domain.Message
	for i := range 12 {
		author := domain.AuthorUser
		if i%2 == 1 {
			author = domain.AuthorAssistant
		}
		history = append(history, domain.Message{Author: author, Text: fmt.Sprint(i)})
	}
	got := modelHistory(history)
	require.Len(t, got, 8)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "4"}, got[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "11"}, got[7])
}
