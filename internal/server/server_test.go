package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"devtracker/internal/app"
	"devtracker/internal/assistant"
	"devtracker/internal/config"
	"devtracker/internal/domain"
	"devtracker/internal/llm"
)

type testServer struct {
	URL    string
	App    *app.App
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// stubGateway answers every completion with a fixed reply. When release is set each call
// first reports on started and then waits for release.
type stubGateway struct {
	reply   string
	started chan struct{}
	release chan struct{}

	mu       sync.Mutex
	requests []llm.Request
}

func (g *stubGateway) Complete(ctx context.Context, r llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, r)
	g.mu.Unlock()
	if g.release != nil {
		g.started <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	return llm.Response{Content: g.reply}, nil
}

func (g *stubGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func newTestServer(t *testing.T, gw assistant.Gateway) (*testServer, func()) {
	t.Helper()
	if gw == nil {
		gw = &stubGateway{reply: "ok"}
	}
	a, err := app.Open(context.Background(), app.Options{
		InMemory: true,
		Logger:   zap.NewNop(),
		Gateway:  gw,
	})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	handler, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		App:    a,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

func TestChallengeLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/challenges", map[string]any{
		"title": "Launch week",
		"theme": "ai",
	}, map[string]string{"X-Actor-Id": "alice"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create challenge status %d: %s", res.StatusCode, string(data))
	}
	created := decode[domain.Challenge](t, data)
	if created.Status != domain.StatusIdeation || created.Progress != 10 {
		t.Fatalf("unexpected defaults: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPatch, base+"/challenges/"+created.ID, map[string]any{
		"status":   "Published",
		"progress": 5,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	if patched := decode[domain.Challenge](t, data); patched.Progress != 100 {
		t.Fatalf("status change should set progress, got %d", patched.Progress)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/tasks", map[string]any{
		"challengeId": created.ID,
		"title":       "Write outline",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	task := decode[domain.Task](t, data)

	res, data = doJSON(t, client, http.MethodPatch, base+"/tasks/"+task.ID+"/status", map[string]any{"status": "Done"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("task status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/tasks?challenge_id="+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	if tasks := decode[[]domain.Task](t, data); len(tasks) != 1 || tasks[0].Status != domain.TaskDone {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/challenges/"+created.ID+"/summary", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	if summary := decode[ChallengeSummary](t, data); summary.TaskCount != 1 || summary.Title != "Launch week" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	res, data = doJSON(t, client, http.MethodDelete, base+"/challenges/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	if del := decode[DeleteResponse](t, data); del.Removed != 2 {
		t.Fatalf("expected cascade of 2, got %d", del.Removed)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/challenges/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if body := decode[apiError](t, data); body.Body.Code != "not_found" {
		t.Fatalf("unexpected error envelope: %s", string(data))
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/challenges", map[string]any{"title": "  "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/tasks", map[string]any{"title": "x", "challengeId": "missing"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown parent, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, base+"/state", []byte(`{"challenges":[{"id":"x","title":"X","status":"Nope"}]}`), nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad import, got %d %s", res.StatusCode, string(data))
	}
}

func TestStateAndStats(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodGet, base+"/state", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("state status %d: %s", res.StatusCode, string(data))
	}
	st := decode[domain.State](t, data)
	if len(st.Challenges) != 2 {
		t.Fatalf("expected seeded challenges, got %d", len(st.Challenges))
	}
	st.Challenges = st.Challenges[:1]
	st.Tasks, st.Ideas, st.Resources = nil, nil, nil
	doc, _ := json.Marshal(st)
	res, data = doJSON(t, client, http.MethodPut, base+"/state", doc, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var stats struct {
		Challenges int `json:"challenges"`
		Tasks      int `json:"tasks"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Challenges != 1 || stats.Tasks != 0 {
		t.Fatalf("unexpected stats: %s", string(data))
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, base+"/ideas", map[string]any{"title": title, "impact": "Quick Win"}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("create idea status %d: %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, base+"/events?type=idea.created&limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	page := decode[paginatedEvents](t, data)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/events?type=idea.created&limit=2&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	next := decode[paginatedEvents](t, data)
	if len(next.Items) != 1 || next.NextCursor != "" {
		t.Fatalf("unexpected second page: %s", string(data))
	}
	if next.Items[0].ID >= page.Items[1].ID {
		t.Fatalf("events should be newest first")
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?cursor=abc", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d %s", res.StatusCode, string(data))
	}
}

func TestConversationFlow(t *testing.T) {
	gw := &stubGateway{reply: "Here is a plan."}
	srv, cleanup := newTestServer(t, gw)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/conversations", map[string]any{"challengeId": "spring-community-build"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create conversation status %d: %s", res.StatusCode, string(data))
	}
	conv := decode[ConversationResponse](t, data)
	if conv.Title != "Chat #1" || !conv.Active || len(conv.Messages) != 1 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	// no key yet: the assistant asks for configuration without calling the model
	res, data = doJSON(t, client, http.MethodPost, base+"/conversations/"+conv.ID+"/messages", map[string]any{"text": "hello"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status %d: %s", res.StatusCode, string(data))
	}
	turn := decode[assistant.Turn](t, data)
	if turn.Reply == nil || turn.Reply.Text != assistant.ConfigPrompt || gw.count() != 0 {
		t.Fatalf("expected configuration prompt, got %+v", turn)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/models", nil, nil)
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 without key, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, base+"/settings", map[string]any{"api_key": "sk-test"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("settings status %d: %s", res.StatusCode, string(data))
	}
	settings := decode[SettingsResponse](t, data)
	if !settings.Configured || settings.AI.APIKey != "***" {
		t.Fatalf("unexpected settings: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/conversations/"+conv.ID+"/messages", map[string]any{"text": "what should I do next?"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status %d: %s", res.StatusCode, string(data))
	}
	turn = decode[assistant.Turn](t, data)
	if turn.Reply == nil || turn.Reply.Text != "Here is a plan." || turn.ChallengeID != "spring-community-build" {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/conversations/"+conv.ID+"/messages", map[string]any{"text": "   "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/conversations", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	list := decode[[]ConversationSummary](t, data)
	if len(list) != 1 || list[0].LastMessage != "Here is a plan." || !list[0].Active {
		t.Fatalf("unexpected list: %s", string(data))
	}

	res, _ = doJSON(t, client, http.MethodDelete, base+"/conversations/"+conv.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/conversations/"+conv.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestConversationContextAndActivation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodPost, base+"/conversations", map[string]any{"title": "first"}, nil)
	first := decode[ConversationResponse](t, data)
	doJSON(t, client, http.MethodPost, base+"/conversations", map[string]any{"title": "second"}, nil)

	res, data := doJSON(t, client, http.MethodPut, base+"/conversations/"+first.ID+"/context", map[string]any{"challengeId": "missing"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown challenge, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, base+"/conversations/"+first.ID+"/context", map[string]any{"challengeId": "spring-community-build"}, nil)
	if res.StatusCode >= 300 {
		t.Fatalf("set context status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/conversations/"+first.ID+"/activate", nil, nil)
	if res.StatusCode >= 300 {
		t.Fatalf("activate status %d: %s", res.StatusCode, string(data))
	}

	_, data = doJSON(t, client, http.MethodGet, base+"/conversations/"+first.ID, nil, nil)
	got := decode[ConversationResponse](t, data)
	if !got.Active || got.ContextChallengeID != "spring-community-build" || got.Processing {
		t.Fatalf("unexpected conversation: %s", string(data))
	}
}

func TestSendWhileTurnInFlight(t *testing.T) {
	gw := &stubGateway{reply: "slow", started: make(chan struct{}, 1), release: make(chan struct{})}
	srv, cleanup := newTestServer(t, gw)
	defer cleanup()
	srv.App.Settings.Override(func(s *config.Settings) { s.AI.APIKey = "sk-test" })
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodPost, base+"/conversations", map[string]any{"challengeId": "spring-community-build"}, nil)
	conv := decode[ConversationResponse](t, data)
	url := base + "/conversations/" + conv.ID + "/messages"

	done := make(chan int, 1)
	go func() {
		body, _ := json.Marshal(map[string]any{"text": "plan the week"})
		res, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			done <- 0
			return
		}
		res.Body.Close()
		done <- res.StatusCode
	}()

	select {
	case <-gw.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the model")
	}
	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{"text": "again"}, nil)
	if res.StatusCode != http.StatusConflict || !strings.Contains(string(data), "turn_in_flight") {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, base+"/conversations/"+conv.ID, nil, nil)
	if got := decode[ConversationResponse](t, data); !got.Processing {
		t.Fatalf("conversation should report processing")
	}

	close(gw.release)
	if status := <-done; status != http.StatusOK {
		t.Fatalf("first turn status %d", status)
	}
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "send-message") {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "devtracker_") {
		t.Fatalf("metrics %d: %s", res.StatusCode, string(data))
	}
}
