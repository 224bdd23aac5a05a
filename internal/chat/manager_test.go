package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtracker/internal/db"
	"devtracker/internal/domain"
	"devtracker/internal/migrate"
	"devtracker/internal/repo"
)

func newManager(t *testing.T, dir string) *Manager {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)
	m := NewManager(conn, nil)
	m.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	m.NewID = func() string { n++; return fmt.Sprint(n) }
	return m
}

func TestCreateNumbersTitlesAndWelcomes(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	first, err := m.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Chat #1", first.Title)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, domain.AuthorAssistant, first.Messages[0].Author)
	assert.True(t, strings.Contains(first.Messages[0].Text, `"create a new challenge"`))

	second, err := m.Create(ctx, "", "ch-1")
	require.NoError(t, err)
	assert.Equal(t, "Chat #2", second.Title)
	assert.Equal(t, "ch-1", second.ContextChallengeID)
	assert.True(t, strings.HasPrefix(second.Messages[0].Text, "Hello! I can help you with this specific challenge."))

	active, ok, err := m.Active(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)
}

func TestAppendPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir)
	conv, err := m.Create(ctx, "Planning", "")
	require.NoError(t, err)
	_, err = m.Append(ctx, conv.ID, domain.AuthorUser, "hello")
	require.NoError(t, err)

	reopened := newManager(t, dir)
	got, err := reopened.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[1].Text)
	assert.True(t, got.Messages[1].Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDeleteClearsActive(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())
	conv, err := m.Create(ctx, "", "")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, conv.ID))
	_, ok, err := m.Active(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, m.Delete(ctx, conv.ID), repo.ErrNotFound)
	assert.ErrorIs(t, m.SetActive(ctx, "missing"), repo.ErrNotFound)
}

func TestProcessingFlagIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir)
	conv, err := m.Create(ctx, "", "")
	require.NoError(t, err)

	require.NoError(t, m.BeginTurn(conv.ID))
	assert.ErrorIs(t, m.BeginTurn(conv.ID), ErrBusy)
	assert.True(t, m.Processing(conv.ID))

	data, err := m.Repo.GetDocument(ctx, repo.ConversationsKey)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "processing")

	m.EndTurn(conv.ID)
	assert.False(t, m.Processing(conv.ID))
	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestCorruptDocumentStartsEmpty(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())
	require.NoError(t, m.Repo.PutDocument(ctx, repo.ConversationsKey, []byte("{not json")))
	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())
	conv, err := m.Create(ctx, "Planning", "")
	require.NoError(t, err)
	require.NoError(t, m.Repo.DB.Close())

	_, err = m.Append(ctx, conv.ID, domain.AuthorUser, "hello")
	require.Error(t, err)
	require.Error(t, m.SetContext(ctx, conv.ID, "ch-1"))
	require.Error(t, m.SetActive(ctx, ""))
	require.Error(t, m.Delete(ctx, conv.ID))
	_, err = m.Create(ctx, "", "")
	require.Error(t, err)

	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
	assert.Empty(t, got.ContextChallengeID)
	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	active, ok, err := m.Active(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conv.ID, active.ID)
}

func TestBeginTurnOnLiteralManager(t *testing.T) {
	m := &Manager{}
	require.NoError(t, m.BeginTurn("c1"))
	assert.ErrorIs(t, m.BeginTurn("c1"), ErrBusy)
	m.EndTurn("c1")
	assert.False(t, m.Processing("c1"))
}
