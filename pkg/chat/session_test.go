package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MohammadTaha536/mmd536/pkg/core"
	"github.com/MohammadTaha536/mmd536/pkg/core/types"
	"github.com/MohammadTaha536/mmd536/pkg/energy"
	"github.com/MohammadTaha536/mmd536/pkg/gateway"
	"github.com/MohammadTaha536/mmd536/pkg/store"
)

type fakeGateway struct {
	lastReq *gateway.TextRequest
	result  *gateway.TextResult
	err     error
}

func (f *fakeGateway) GenerateText(_ context.Context, req *gateway.TextRequest) (*gateway.TextResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSendBasicRoundTrip(t *testing.T) {
	fake := &fakeGateway{result: &gateway.TextResult{Text: "hi there"}}
	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)

	reply, err := session.Send(context.Background(), "hello", types.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Role != types.RoleModel || reply.Text != "hi there" {
		t.Fatalf("reply = %+v", reply)
	}

	if len(fake.lastReq.History) != 0 {
		t.Fatalf("history len = %d, want 0", len(fake.lastReq.History))
	}
	if fake.lastReq.Prompt != "hello" {
		t.Fatalf("prompt = %q", fake.lastReq.Prompt)
	}
	if fake.lastReq.Model != gateway.ModelTextFlash {
		t.Fatalf("model = %q", fake.lastReq.Model)
	}

	messages := session.Messages()
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Role != types.RoleUser || messages[0].Text != "hello" {
		t.Fatalf("messages[0] = %+v", messages[0])
	}
	if messages[1].Role != types.RoleModel || messages[1].Text != "hi there" {
		t.Fatalf("messages[1] = %+v", messages[1])
	}
}

func TestSendSlidingWindow(t *testing.T) {
	st := newTestStore(t)
	var seeded []types.ChatMessage
	for i := 0; i < 25; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleModel
		}
		seeded = append(seeded, types.NewChatMessage(role, fmt.Sprintf("msg-%d", i)))
	}
	if err := st.Set(store.KeyChatHistory, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &fakeGateway{result: &gateway.TextResult{Text: "ok"}}
	session := NewSession(fake, energy.New(energy.Config{}), st, nil)

	if _, err := session.Send(context.Background(), "new question", types.DefaultSettings(), false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	window := fake.lastReq.History
	if len(window) != DefaultWindow {
		t.Fatalf("window len = %d, want %d", len(window), DefaultWindow)
	}
	for i, turn := range window {
		want := seeded[len(seeded)-DefaultWindow+i]
		if turn.Text != want.Text || turn.Role != want.Role {
			t.Fatalf("window[%d] = %+v, want %q/%q", i, turn, want.Role, want.Text)
		}
	}
}

func TestSendRateLimitForcesPenalty(t *testing.T) {
	fake := &fakeGateway{err: core.NewRateLimitError("quota exceeded", 42)}
	governor := energy.New(energy.Config{})
	session := NewSession(fake, governor, newTestStore(t), nil)

	reply, err := session.Send(context.Background(), "hello", types.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(reply.Text, "42") {
		t.Fatalf("reply %q should surface the cooldown seconds", reply.Text)
	}
	if governor.Level() != 0 {
		t.Fatalf("level = %v, want 0", governor.Level())
	}
	if governor.CooldownRemaining() != 42 {
		t.Fatalf("cooldown = %d, want 42", governor.CooldownRemaining())
	}

	if _, err := session.Send(context.Background(), "again", types.DefaultSettings(), false); !errors.Is(err, ErrLowEnergy) {
		t.Fatalf("send during cooldown = %v, want ErrLowEnergy", err)
	}
}

func TestSendContextOverflowTrimsHistory(t *testing.T) {
	st := newTestStore(t)
	var seeded []types.ChatMessage
	for i := 0; i < 12; i++ {
		seeded = append(seeded, types.NewChatMessage(types.RoleUser, fmt.Sprintf("old-%d", i)))
	}
	if err := st.Set(store.KeyChatHistory, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &fakeGateway{err: core.NewContextTooLargeError("too many tokens")}
	session := NewSession(fake, energy.New(energy.Config{}), st, nil)

	reply, err := session.Send(context.Background(), "one more", types.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Role != types.RoleModel {
		t.Fatalf("reply role = %q", reply.Role)
	}

	messages := session.Messages()
	// last 4 survivors plus the explanatory model message
	if len(messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(messages))
	}
	if messages[3].Text != "one more" {
		t.Fatalf("newest surviving user message = %q, want %q", messages[3].Text, "one more")
	}

	var persisted []types.ChatMessage
	if err := st.Get(store.KeyChatHistory, &persisted); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(persisted) != len(messages) {
		t.Fatalf("persisted = %d, want %d", len(persisted), len(messages))
	}
}

func TestSendTransportErrorAppendsGenericMessage(t *testing.T) {
	fake := &fakeGateway{err: &core.TransportError{Op: "generateText", Err: errors.New("dial tcp: reset")}}
	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)

	reply, err := session.Send(context.Background(), "hello", types.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != genericErrorText {
		t.Fatalf("reply = %q, want generic failure text", reply.Text)
	}
}

func TestSendEmptyReplyFallback(t *testing.T) {
	fake := &fakeGateway{result: &gateway.TextResult{Text: "  "}}
	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)

	reply, err := session.Send(context.Background(), "hello", types.DefaultSettings(), false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != emptyReplyText {
		t.Fatalf("reply = %q, want fallback text", reply.Text)
	}
}

func TestSendPreconditions(t *testing.T) {
	fake := &fakeGateway{result: &gateway.TextResult{Text: "ok"}}

	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)
	if _, err := session.Send(context.Background(), "   ", types.DefaultSettings(), false); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty text = %v, want ErrEmptyMessage", err)
	}

	broke := NewSession(fake, energy.New(energy.Config{Max: 3}), newTestStore(t), nil)
	if _, err := broke.Send(context.Background(), "hello", types.DefaultSettings(), false); !errors.Is(err, ErrLowEnergy) {
		t.Fatalf("low budget = %v, want ErrLowEnergy", err)
	}
	if len(broke.Messages()) != 0 {
		t.Fatalf("refused send must not append messages")
	}
}

func TestSendGroundingAttached(t *testing.T) {
	fake := &fakeGateway{result: &gateway.TextResult{
		Text: "grounded",
		GroundingURLs: []types.GroundingURL{
			{URI: "https://example.com", Title: "Example"},
		},
	}}
	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)

	reply, err := session.Send(context.Background(), "latest news", types.DefaultSettings(), true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !fake.lastReq.UseSearch {
		t.Fatalf("UseSearch not forwarded")
	}
	if len(reply.GroundingURLs) != 1 || reply.GroundingURLs[0].URI != "https://example.com" {
		t.Fatalf("grounding = %+v", reply.GroundingURLs)
	}
}

func TestSendUnrestrictedRequestShape(t *testing.T) {
	fake := &fakeGateway{result: &gateway.TextResult{Text: "ok"}}
	session := NewSession(fake, energy.New(energy.Config{}), newTestStore(t), nil)

	settings := types.DefaultSettings()
	settings.NoRules = true
	settings.ModelTier = types.TierPro
	settings.EnableThinking = true
	settings.ThinkingBudget = 512

	if _, err := session.Send(context.Background(), "do it", settings, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	req := fake.lastReq
	if !req.SafetyOverride {
		t.Fatalf("SafetyOverride not set")
	}
	if !strings.Contains(req.Prompt, "do it") || !strings.Contains(req.Prompt, "[SYSTEM_OVERRIDE_ACTIVE]") {
		t.Fatalf("prompt = %q", req.Prompt)
	}
	if req.Model != gateway.ModelTextPro {
		t.Fatalf("model = %q", req.Model)
	}
	if req.ThinkingBudget != 512 {
		t.Fatalf("thinking budget = %d", req.ThinkingBudget)
	}

	// recorded history keeps the user's original text, not the wrapped prompt
	if session.Messages()[0].Text != "do it" {
		t.Fatalf("stored user text = %q", session.Messages()[0].Text)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	st := newTestStore(t)
	fake := &fakeGateway{result: &gateway.TextResult{Text: "remembered"}}

	first := NewSession(fake, energy.New(energy.Config{}), st, nil)
	if _, err := first.Send(context.Background(), "remember me", types.DefaultSettings(), false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	second := NewSession(fake, energy.New(energy.Config{}), st, nil)
	messages := second.Messages()
	if len(messages) != 2 {
		t.Fatalf("reloaded messages = %d, want 2", len(messages))
	}
	if messages[0].Text != "remember me" || messages[1].Text != "remembered" {
		t.Fatalf("reloaded = %q / %q", messages[0].Text, messages[1].Text)
	}
}

func TestClearWipesMemoryAndDisk(t *testing.T) {
	st := newTestStore(t)
	fake := &fakeGateway{result: &gateway.TextResult{Text: "ok"}}
	session := NewSession(fake, energy.New(energy.Config{}), st, nil)

	if _, err := session.Send(context.Background(), "hello", types.DefaultSettings(), false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := session.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := session.Messages(); len(got) != 0 {
		t.Fatalf("messages after clear = %d", len(got))
	}
	var saved []types.ChatMessage
	if err := st.Get(store.KeyChatHistory, &saved); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after clear = %v, want ErrNotFound", err)
	}
}
