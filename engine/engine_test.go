package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	cfgStructs "github.com/cxykevin/mizar0/config/structs"
	"github.com/cxykevin/mizar0/prompts"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

const chatResponse = `{"choices":[{"message":{"content":"hello there"}}],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`

func TestAskSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-a" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
	})

	text, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{UserName: "alice"}, nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected completion: %q", text)
	}

	conv, err := rig.store.GetConversation("conv1")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Type != storageStructs.MessagesRoleUser || conv.Messages[0].Content != "hi" {
		t.Errorf("unexpected user message: %+v", conv.Messages[0])
	}
	last := conv.Messages[1]
	if last.Type != storageStructs.MessagesRoleAssistant || last.Content != "hello there" {
		t.Errorf("unexpected assistant message: %+v", last)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 10 {
		t.Errorf("expected provider usage on assistant message, got %+v", last.Usage)
	}

	cred, err := rig.store.GetCredential("sk-a")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.Queries != 1 || cred.Tokens != 10 {
		t.Errorf("usage not recorded: %+v", cred)
	}
}

func TestRetryBackoffOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatResponse)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.AltProviderKeys = []string{"alt-1"} // 重试需要配置备用池
	})

	text, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected completion: %q", text)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(rig.delays) != len(want) {
		t.Fatalf("expected %d backoff delays, got %v", len(want), rig.delays)
	}
	for i, d := range want {
		if rig.delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i, d, rig.delays[i])
		}
	}
}

func TestExhaustedAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.AltProviderKeys = []string{"alt-1"}
	})

	_, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got := calls.Load(); got != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, got)
	}
}

func TestNoRetryWithoutAlternatePool(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
	})

	_, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected single attempt without alternate pool, got %d", got)
	}
}

func TestStreamAssembly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.EnableStream = true
	})

	var increments []string
	text, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, func(delta string) {
		increments = append(increments, delta)
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != "Hi!" {
		t.Errorf("expected assembled \"Hi!\", got %q", text)
	}
	if len(increments) != 2 || increments[0] != "Hi" || increments[1] != "!" {
		t.Errorf("unexpected increments: %v", increments)
	}
}

func TestRateLimitBlacklistsAlternateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer alt-1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatResponse)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.AltProviderURL = srv.URL
		cfg.AltProviderKeys = []string{"alt-1", "alt-2"}
		cfg.DisposableKeys = true
	})

	text, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{UseAlternate: true}, nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected completion: %q", text)
	}
	if !rig.registry.Has("alt-1") {
		t.Error("expected alt-1 to be blacklisted after 429")
	}
	if len(rig.delays) != 0 {
		t.Errorf("rate-limit retry must not back off, got delays %v", rig.delays)
	}
}

func TestFatalProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"model overloaded, try later","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.AltProviderKeys = []string{"alt-1"}
	})

	_, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, nil)
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Message != "model overloaded, try later" {
		t.Errorf("unexpected provider message: %q", provErr.Message)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fatal error must not be retried, got %d attempts", got)
	}
}

func TestUnknownShapeRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"unexpected":"layout"}`)
			return
		}
		fmt.Fprint(w, chatResponse)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.AltProviderKeys = []string{"alt-1"}
	})

	text, err := rig.engine.Ask(context.Background(), "conv1", "hi", AskOptions{}, nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected completion: %q", text)
	}
	if len(rig.delays) != 1 || rig.delays[0] != time.Second {
		t.Errorf("expected one backoff delay, got %v", rig.delays)
	}
}

func TestModerationShortCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chatResponse)
	}))
	defer srv.Close()

	rig := newRig(t, func(cfg *cfgStructs.EngineConfig) {
		cfg.ProviderURL = srv.URL
		cfg.ProviderKeys = []string{"sk-a"}
		cfg.EnableModeration = true
		cfg.FilterRules = []string{`Prompt contains "banned"`}
	})

	var sb strings.Builder
	text, err := rig.engine.Ask(context.Background(), "conv1", "say banned things", AskOptions{}, func(delta string) {
		sb.WriteString(delta)
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if text != prompts.Rejection {
		t.Errorf("expected rejection text, got %q", text)
	}
	if sb.String() != prompts.Rejection {
		t.Errorf("rejection must be emitted through the callback, got %q", sb.String())
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("moderation short-circuit must not call the provider, got %d calls", got)
	}
}

func TestResetWrapsArchive(t *testing.T) {
	rig := newRig(t, nil)
	conv := &storageStructs.Conversations{
		ID: "conv1",
		Messages: storageStructs.MessageList{
			{ID: "m1", Type: storageStructs.MessagesRoleUser, Content: "first"},
			{ID: "m2", Type: storageStructs.MessagesRoleAssistant, Content: "second"},
		},
	}
	if err := rig.store.SetConversation(conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	if err := rig.engine.Reset("conv1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	conv, err := rig.store.GetConversation("conv1")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("expected empty conversation after reset, got %d messages", len(conv.Messages))
	}

	batches := rig.archive.Load("conv1")
	if len(batches) != 2 {
		t.Fatalf("expected closed batch + open batch, got %d", len(batches))
	}
	closed := batches[0]
	if len(closed.Messages) != 2 || closed.Messages[0].Content != "first" || closed.Messages[1].Content != "second" {
		t.Errorf("unexpected closed batch: %+v", closed)
	}
	if len(batches[1].Messages) != 0 {
		t.Errorf("open batch must be empty after reset, got %+v", batches[1])
	}
}

func TestResetMissingConversation(t *testing.T) {
	rig := newRig(t, nil)
	if err := rig.engine.Reset("ghost"); err != nil {
		t.Errorf("reset of missing conversation should be a no-op, got %v", err)
	}
}

func TestDeleteLast(t *testing.T) {
	rig := newRig(t, nil)
	conv := &storageStructs.Conversations{
		ID: "conv1",
		Messages: storageStructs.MessageList{
			{ID: "m1", Content: "a"},
			{ID: "m2", Content: "b"},
			{ID: "m3", Content: "c"},
		},
	}
	if err := rig.store.SetConversation(conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	if err := rig.engine.DeleteLast("conv1", 2); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	conv, err := rig.store.GetConversation("conv1")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ID != "m1" {
		t.Errorf("expected only oldest message to remain, got %+v", conv.Messages)
	}

	// n超过消息数时全部清空
	if err := rig.engine.DeleteLast("conv1", 10); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	conv, err = rig.store.GetConversation("conv1")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("expected empty conversation, got %+v", conv.Messages)
	}
}
