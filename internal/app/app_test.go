package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devtracker/internal/assistant"
	"devtracker/internal/config"
	"devtracker/internal/domain"
	"devtracker/internal/llm"
)

type scriptedGateway struct{ responses []llm.Response }

func (g *scriptedGateway) Complete(context.Context, llm.Request) (llm.Response, error) {
	if len(g.responses) == 0 {
		return llm.Response{Content: "done"}, nil
	}
	r := g.responses[0]
	g.responses = g.responses[1:]
	return r, nil
}

func TestOpenWiresAssistantEndToEnd(t *testing.T) {
	ctx := context.Background()
	gw := &scriptedGateway{responses: []llm.Response{{ToolCalls: []llm.ToolCall{{
		ID:       "c1",
		Function: llm.FunctionCall{Name: assistant.ToolAddIdea, Arguments: `{"title":"Livestream","impact":"Quick Win","notes":"","challengeId":"spring-community-build"}`},
	}}}}}
	a, err := Open(ctx, Options{
		InMemory:  true,
		Logger:    zap.NewNop(),
		Gateway:   gw,
		Overrides: []func(*config.Settings){func(s *config.Settings) { s.AI.APIKey = "sk-test" }},
	})
	require.NoError(t, err)
	defer a.Close()

	conv, err := a.Chats.Create(ctx, "", "")
	require.NoError(t, err)
	turn, err := a.Assistant.Send(ctx, conv.ID, "give me ideas for the hackathon", assistant.PageHint{ChallengeID: "spring-community-build"})
	require.NoError(t, err)
	assert.Equal(t, "done", turn.Reply.Text)

	st, err := a.Engine.Snapshot(ctx)
	require.NoError(t, err)
	_, ideas, _ := st.Counts("spring-community-build")
	assert.Equal(t, 2, ideas)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.StoreMutations.WithLabelValues("idea.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.ToolCalls.WithLabelValues(assistant.ToolAddIdea, "ok")))
}

func TestOpenPersistsWorkspace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := Open(ctx, Options{Workspace: dir, Logger: zap.NewNop()})
	require.NoError(t, err)
	_, err = a.Engine.Save(ctx, "tester", "", domain.ChallengeForm{Title: "Kept"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, Options{Workspace: dir, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer b.Close()
	st, err := b.Engine.Snapshot(ctx)
	require.NoError(t, err)
	_, ok := st.ChallengeByTitle("Kept")
	assert.True(t, ok)
	assert.False(t, b.Settings.Get().AI.HasCredential())
}
