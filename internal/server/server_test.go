package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/fixloop"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	creator = "0x1111111111111111111111111111111111111111"
	player  = "0x2222222222222222222222222222222222222222"
	owner   = "0x0000000000000000000000000000000000000001"
)

const goodReply = "Here is your game.\n```tsx{filename=space-dodger.tsx}\n" +
	"export default function App() {\n  return <div className=\"p-4\">Dodge!</div>;\n}\n```\nHave fun!"

const brokenReply = "Try this.\n```tsx{filename=broken.tsx}\n" +
	"export default function App() {\n  throw new Error(\"kaboom\");\n}\n```\n"

type testServer struct {
	*Server
	store    *chat.Store
	provider *llm.Static
}

func newTestServer(t *testing.T, chunks ...string) *testServer {
	t.Helper()
	store, err := chat.NewStore(filepath.Join(t.TempDir(), "chats"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	coins, err := coin.Open(filepath.Join(t.TempDir(), "coins.db"), owner, nil)
	if err != nil {
		t.Fatalf("coin.Open() error: %v", err)
	}
	t.Cleanup(func() { coins.Close() })

	runner := sandbox.NewRunner(sandbox.Options{})
	t.Cleanup(runner.Close)

	provider := &llm.Static{Chunks: chunks}
	s := New(Options{
		Chats:    store,
		Provider: provider,
		Model:    "claude-sonnet-4-20250514",
		Runner:   runner,
		Fixes:    fixloop.NewTracker(fixloop.Config{MaxFixAttempts: 5, MaxRepeatedErrors: 1}),
		Coins:    coins,
	})
	return &testServer{Server: s, store: store, provider: provider}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %s: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) createChat(t *testing.T, prompt string) chatView {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/chats", gin.H{"prompt": prompt})
	if w.Code != http.StatusCreated {
		t.Fatalf("create chat status = %d: %s", w.Code, w.Body.String())
	}
	return decode[chatView](t, w)
}

func TestCreateAndListChats(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	v := ts.createChat(t, "Make a snake game")
	if v.ID == "" || v.Model != "claude-sonnet-4-20250514" {
		t.Errorf("chat = %+v", v)
	}
	if len(v.Messages) != 1 || v.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", v.Messages)
	}

	w := ts.do(t, http.MethodGet, "/api/chats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[[]chat.Summary](t, w)
	if len(list) != 1 || list[0].ID != v.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateChatValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"missing prompt", gin.H{}},
		{"blank prompt", gin.H{"prompt": "   "}},
		{"unknown model", gin.H{"prompt": "pong", "model": "gpt-nope"}},
	}
	for _, tt := range tests {
		if w := ts.do(t, http.MethodPost, "/api/chats", tt.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, w.Code)
		}
	}
}

func TestGetChatNotFound(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	if w := ts.do(t, http.MethodGet, "/api/chats/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCompletionStreamsAndPersists(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, goodReply[:20], goodReply[20:70], goodReply[70:])
	v := ts.createChat(t, "Make a space game")

	w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/completion", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("completion status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != goodReply {
		t.Errorf("streamed body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	res := w.Result()
	if got := res.Trailer.Get("X-Stream-State"); got != "complete" {
		t.Errorf("X-Stream-State trailer = %q", got)
	}
	msgID := res.Trailer.Get("X-Message-Id")
	if msgID == "" {
		t.Fatal("missing X-Message-Id trailer")
	}

	got := decode[chatView](t, ts.do(t, http.MethodGet, "/api/chats/"+v.ID, nil))
	if got.Title != "Space Dodger" {
		t.Errorf("Title = %q, want name from the first version", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	reply := got.Messages[1]
	if reply.ID != msgID || reply.State != chat.StateComplete || reply.Version != 1 {
		t.Errorf("reply = id %q state %q version %d", reply.ID, reply.State, reply.Version)
	}
	if len(reply.Segments) != 3 {
		t.Errorf("segments = %+v", reply.Segments)
	}
	if got.Live != nil {
		t.Error("no stream should be live after completion")
	}

	frame, ok := ts.opts.Runner.Frame(v.ID)
	if !ok || frame.Status != sandbox.StatusReady {
		t.Errorf("preview frame = %+v, mounted %v", frame, ok)
	}
}

func TestCompletionIncomplete(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "Working on it\n```tsx{filename=cut.tsx}\nexport default function")
	v := ts.createChat(t, "Make a game")

	w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/completion", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("completion status = %d", w.Code)
	}
	if got := w.Result().Trailer.Get("X-Stream-State"); got != "incomplete" {
		t.Errorf("X-Stream-State = %q", got)
	}

	ch, err := ts.store.Load(v.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	last, _ := ch.LastMessage()
	if last.State != chat.StateIncomplete {
		t.Errorf("stored state = %q, want incomplete", last.State)
	}
}

func TestCompletionProviderFailureStoresNothing(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "partial ")
	ts.provider.Err = errors.New("overloaded")
	v := ts.createChat(t, "Make a game")

	w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/completion", nil)
	if got := w.Result().Trailer.Get("X-Stream-State"); got != "failed" {
		t.Errorf("X-Stream-State = %q", got)
	}
	ch, err := ts.store.Load(v.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ch.Messages) != 1 {
		t.Errorf("messages = %d, want only the prompt", len(ch.Messages))
	}
}

func TestCompletionCancelledStoresNothing(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, goodReply)
	v := ts.createChat(t, "Make a game")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chats/"+v.ID+"/completion", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	if got := w.Result().Trailer.Get("X-Stream-State"); got != "cancelled" {
		t.Errorf("X-Stream-State = %q", got)
	}
	ch, err := ts.store.Load(v.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(ch.Messages) != 1 {
		t.Errorf("messages = %d, want only the prompt", len(ch.Messages))
	}
}

func TestCompletionNeedsUserTurn(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, goodReply)
	v := ts.createChat(t, "Make a game")
	if _, err := ts.store.AddMessage(v.ID, llm.RoleAssistant, "done", chat.StateComplete); err != nil {
		t.Fatal(err)
	}
	if w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/completion", nil); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestFixOfferAndLoop(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, brokenReply)
	v := ts.createChat(t, "Make a game")
	ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/completion", nil)

	got := decode[chatView](t, ts.do(t, http.MethodGet, "/api/chats/"+v.ID, nil))
	if got.FixOffer == nil || !strings.Contains(got.FixOffer.Error, "kaboom") {
		t.Fatalf("fix offer = %+v", got.FixOffer)
	}

	w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/fix", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("fix status = %d: %s", w.Code, w.Body.String())
	}
	msg := decode[chat.Message](t, w)
	if !strings.HasPrefix(msg.Content, "The code is not working. Can you fix it? Here's the error:\n\n") {
		t.Errorf("fix prompt = %q", msg.Content)
	}

	// The repeat limit is 1, so the same error is refused the second time.
	w = ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/fix", gin.H{"error": got.FixOffer.Error})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("repeated fix status = %d, want 429", w.Code)
	}
}

func TestFixWithoutError(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	v := ts.createChat(t, "Make a game")
	if w := ts.do(t, http.MethodPost, "/api/chats/"+v.ID+"/fix", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAppDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	v := ts.createChat(t, "Make a game")
	msg, err := ts.store.AddMessage(v.ID, llm.RoleAssistant, goodReply, chat.StateComplete)
	if err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodGet, "/apps/"+msg.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if csp := w.Header().Get("Content-Security-Policy"); csp != sandbox.ContentSecurityPolicy {
		t.Errorf("CSP = %q", csp)
	}
	if !strings.Contains(w.Body.String(), "/api/frames/app-"+msg.ID+"/errors") {
		t.Error("document does not report errors to its frame")
	}

	if w := ts.do(t, http.MethodGet, "/apps/"+v.Messages[0].ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("prompt message status = %d, want 404", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/apps/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown message status = %d, want 404", w.Code)
	}
}

func TestFrameErrorAndRefresh(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	v := ts.createChat(t, "Make a game")
	msg, err := ts.store.AddMessage(v.ID, llm.RoleAssistant, goodReply, chat.StateComplete)
	if err != nil {
		t.Fatal(err)
	}
	ts.do(t, http.MethodGet, "/apps/"+msg.ID, nil)
	slot := appSlot(msg.ID)

	// Documents post text/plain bodies.
	req := httptest.NewRequest(http.MethodPost, "/api/frames/"+slot+"/errors",
		strings.NewReader(`{"key":"`+msg.ID+`","error":"ReferenceError: x is not defined"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]bool](t, w); !got["forwarded"] {
		t.Error("first report should be forwarded")
	}
	second := ts.do(t, http.MethodPost, "/api/frames/"+slot+"/errors", gin.H{"key": msg.ID, "error": "again"})
	if got := decode[map[string]bool](t, second); got["forwarded"] {
		t.Error("second report for the same frame should not be forwarded")
	}

	view := decode[chatView](t, ts.do(t, http.MethodGet, "/api/chats/"+v.ID, nil))
	if view.FixOffer == nil || view.FixOffer.MessageID != msg.ID {
		t.Errorf("fix offer = %+v", view.FixOffer)
	}

	w = ts.do(t, http.MethodPost, "/api/frames/"+slot+"/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	f := decode[sandbox.Frame](t, w)
	if f.Request.Key == msg.ID || f.Status != sandbox.StatusReady {
		t.Errorf("refreshed frame = %+v", f)
	}

	if w := ts.do(t, http.MethodPost, "/api/frames/none/refresh", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown slot refresh status = %d", w.Code)
	}
}

func TestCoinFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	v := ts.createChat(t, "Make a game")
	msg, err := ts.store.AddMessage(v.ID, llm.RoleAssistant, goodReply, chat.StateComplete)
	if err != nil {
		t.Fatal(err)
	}

	draft := decode[coin.Draft](t, ts.do(t, http.MethodGet, "/api/messages/"+msg.ID+"/coin-draft", nil))
	if draft.Name != "Space Dodger" || draft.Symbol != "SPACE" || draft.Description != "Game: Space Dodger" {
		t.Errorf("draft = %+v", draft)
	}

	w := ts.do(t, http.MethodPost, "/api/coins", gin.H{
		"creator": creator, "name": draft.Name, "symbol": draft.Symbol,
		"description": draft.Description, "imageUri": draft.ImageURI,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create coin status = %d: %s", w.Code, w.Body.String())
	}
	created := decode[coinView](t, w)
	if created.ID != 1 || created.TotalSupply != "1000000" || created.MaxSupply != "10000000" {
		t.Errorf("created = %+v", created)
	}

	w = ts.do(t, http.MethodPost, "/api/coins/1/mint", gin.H{"caller": creator, "to": player, "amount": "1000", "reason": "game_reward"})
	if w.Code != http.StatusOK {
		t.Fatalf("mint status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[coinView](t, w).TotalSupply; got != "1001000" {
		t.Errorf("total after mint = %q", got)
	}

	bal := decode[map[string]string](t, ts.do(t, http.MethodGet, "/api/coins/1/balances/"+player, nil))
	if bal["balance"] != "1000" {
		t.Errorf("balance = %+v", bal)
	}

	w = ts.do(t, http.MethodPost, "/api/coins/1/mint", gin.H{"caller": player, "to": player, "amount": "1"})
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner mint status = %d, want 403", w.Code)
	}

	games := decode[[]coin.Game](t, ts.do(t, http.MethodGet, "/api/wallets/"+creator+"/coins", nil))
	if len(games) != 1 || games[0].Symbol != "SPACE" {
		t.Errorf("wallet games = %+v", games)
	}
}

func TestCoinErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"short symbol", http.MethodPost, "/api/coins", gin.H{"creator": creator, "name": "Pong", "symbol": "PO"}, http.StatusBadRequest},
		{"bad creator", http.MethodPost, "/api/coins", gin.H{"creator": "me", "name": "Pong", "symbol": "PONG"}, http.StatusBadRequest},
		{"unknown game", http.MethodGet, "/api/coins/42", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/coins/abc", nil, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/coins/1/mint", gin.H{"caller": creator, "to": player, "amount": "-3"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := ts.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.want, w.Body.String())
		}
	}
}

func TestCoinsDisabled(t *testing.T) {
	t.Parallel()

	store, err := chat.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := New(Options{Chats: store, Provider: &llm.Static{}})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/coins/1", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRunShutsDown(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error: %v", err)
	}
}
