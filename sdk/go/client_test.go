package devtrackersdk_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devtracker/internal/app"
	"devtracker/internal/config"
	"devtracker/internal/llm"
	"devtracker/internal/server"
	devtrackersdk "devtracker/sdk/go"
)

type echoGateway struct{}

func (echoGateway) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Content: "noted"}, nil
}

func newClient(t *testing.T) *devtrackersdk.Client {
	t.Helper()
	a, err := app.Open(context.Background(), app.Options{InMemory: true, Logger: zap.NewNop(), Gateway: echoGateway{}})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	a.Settings.Override(func(s *config.Settings) { s.AI.APIKey = "sk-test" })
	handler, err := server.New(server.Config{App: a})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := devtrackersdk.New(srv.URL)
	c.ActorID = "sdk-test"
	return c
}

func TestClientRecords(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	ch, err := c.CreateChallenge(ctx, "SDK week", "tooling")
	require.NoError(t, err)
	assert.Equal(t, "Ideation", ch.Status)
	assert.Equal(t, 10, ch.Progress)

	ch, err = c.SetChallengeStatus(ctx, ch.ID, "Submitted")
	require.NoError(t, err)
	assert.Equal(t, 80, ch.Progress)

	_, err = c.CreateTask(ctx, ch.ID, "Write examples")
	require.NoError(t, err)
	_, err = c.CreateIdea(ctx, ch.ID, "Live coding", "High Impact")
	require.NoError(t, err)
	_, err = c.CreateResource(ctx, ch.ID, "Docs", "https://example.com", "Article")
	require.NoError(t, err)

	tasks, err := c.ListTasks(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	events, err := c.Events(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "sdk-test", events[0].ActorID)

	require.NoError(t, c.DeleteChallenge(ctx, ch.ID))
	err = c.DeleteChallenge(ctx, ch.ID)
	var apiErr *devtrackersdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientConversation(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	conv, err := c.CreateConversation(ctx, "", "spring-community-build")
	require.NoError(t, err)
	assert.True(t, conv.Active)

	turn, err := c.SendMessage(ctx, conv.ID, "what is left to do?", "")
	require.NoError(t, err)
	require.NotNil(t, turn.Reply)
	assert.Equal(t, "noted", turn.Reply.Text)
	assert.Equal(t, "spring-community-build", turn.ChallengeID)

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 3)
	assert.False(t, got.Processing)
}
