package memstore

import (
	"context"
	"testing"

	"docrag/internal/domain"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	if err := s.Append(ctx, "a", domain.ChatMessage{Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	msgs, _ := s.Load(ctx, "a")
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	// callers must not be able to mutate stored history
	msgs[0].Content = "changed"
	again, _ := s.Load(ctx, "a")
	if again[0].Content != "hi" {
		t.Errorf("history was mutated through Load result")
	}

	if got, _ := s.Load(ctx, "b"); len(got) != 0 {
		t.Errorf("expected empty session b, got %d messages", len(got))
	}
	if s.Sessions() != 1 {
		t.Errorf("expected 1 session, got %d", s.Sessions())
	}

	_ = s.Clear(ctx, "a")
	if got, _ := s.Load(ctx, "a"); len(got) != 0 {
		t.Errorf("expected cleared session, got %d messages", len(got))
	}
}
