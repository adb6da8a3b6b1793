package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/memstore"
	"docrag/internal/domain"
	"docrag/internal/testutil"
)

func TestChatService_KeepsHistoryPerSession(t *testing.T) {
	llm := &testutil.ScriptedLLM{Default: " hello there "}
	sessions := memstore.NewSessionStore()
	chat := NewChatService(llm, sessions, 0, nil)
	ctx := context.Background()

	answer, err := chat.Ask(ctx, "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", answer)

	_, err = chat.Ask(ctx, DefaultSessionID, "again")
	require.NoError(t, err)

	calls := llm.Calls()
	require.Len(t, calls, 2)
	second := calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleSystem, Content: "You are a helpful assistant."}, second[0])
	assert.Equal(t, "hi", second[1].Content)
	assert.Equal(t, domain.RoleAssistant, second[2].Role)
	assert.Equal(t, "again", second[3].Content)

	_, err = chat.Ask(ctx, "other", "fresh")
	require.NoError(t, err)
	assert.Len(t, llm.Calls()[2], 2)
}

func TestChatService_HistoryWindow(t *testing.T) {
	llm := &testutil.ScriptedLLM{Default: "ok"}
	chat := NewChatService(llm, memstore.NewSessionStore(), 4, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := chat.Ask(ctx, "s", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	calls := llm.Calls()
	last := calls[len(calls)-1]
	// system + 4 history messages + new input
	require.Len(t, last, 6)
	assert.Equal(t, "msg 2", last[1].Content)
	assert.Equal(t, "msg 4", last[5].Content)
}

func TestChatService_FailureKeepsHistory(t *testing.T) {
	sessions := memstore.NewSessionStore()
	chat := NewChatService(&testutil.ScriptedLLM{Err: testutil.ErrScripted}, sessions, 0, nil)
	ctx := context.Background()

	_, err := chat.Ask(ctx, "s", "hi")
	assert.ErrorIs(t, err, domain.ErrGeneration)

	msgs, _ := sessions.Load(ctx, "s")
	assert.Empty(t, msgs)

	_, err = chat.Ask(ctx, "s", "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChatService_Reset(t *testing.T) {
	sessions := memstore.NewSessionStore()
	chat := NewChatService(&testutil.ScriptedLLM{Default: "ok"}, sessions, 0, nil)
	ctx := context.Background()

	_, err := chat.Ask(ctx, "s", "hi")
	require.NoError(t, err)
	require.NoError(t, chat.Reset(ctx, "s"))

	msgs, _ := sessions.Load(ctx, "s")
	assert.Empty(t, msgs)
}
