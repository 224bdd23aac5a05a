package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(dir, nil)
	require.NoError(t, err)

	var got []Settings
	unsubscribe := svc.Subscribe(func(s Settings) { got = append(got, s) })
	next, err := svc.Update(func(s *Settings) { s.AI.Model = "anthropic/claude-3.5-sonnet" })
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", next.AI.Model)
	require.Len(t, got, 1)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", loaded.AI.Model)

	unsubscribe()
	_, err = svc.Update(func(s *Settings) { s.AI.WebSearch = true })
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	svc, err := NewService(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = svc.Update(func(s *Settings) { s.AI.Model = " " })
	assert.Error(t, err)
	assert.Equal(t, DefaultModel, svc.Get().AI.Model)
}

func TestOverrideIsNeverSaved(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(dir, nil)
	require.NoError(t, err)
	svc.Override(func(s *Settings) { s.AI.APIKey = "sk-env" })
	assert.True(t, svc.Get().AI.HasCredential())

	_, err = svc.Update(func(s *Settings) { s.Log.Level = "debug" })
	require.NoError(t, err)
	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-env")
	assert.Equal(t, "sk-env", svc.Get().AI.APIKey)
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	svc := NewStaticService(Default())
	called := false
	svc.Subscribe(func(Settings) { panic("boom") })
	svc.Subscribe(func(Settings) { called = true })
	_, err := svc.Update(func(s *Settings) { s.AI.SiteName = "x" })
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, Default()))
	svc, err := NewService(dir, nil)
	require.NoError(t, err)

	changed := make(chan Settings, 16)
	svc.Subscribe(func(s Settings) {
		select {
		case changed <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()
	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)

	edited := Default()
	edited.AI.Model = "openai/gpt-4o"
	require.NoError(t, Save(dir, edited))

	// a truncating write can surface an intermediate reload first
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case s := <-changed:
			reloaded = s.AI.Model == "openai/gpt-4o"
		case <-deadline:
			cancel()
			t.Fatal("watcher did not reload settings")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "openai/gpt-4o", svc.Get().AI.Model)
}
