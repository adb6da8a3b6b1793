package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func TestOpenAIClient_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"He gets up at 6am."}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("ollama", "llama3", srv.URL, "", 0.2)
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "when does Brian get up?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "He gets up at 6am.", out)
	assert.Equal(t, 1, c.Stats().TotalCalls)
}

func TestOpenAIClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("custom", "x", srv.URL, "", 0)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")

	_, err = NewOpenAIClient("nope", "x", "", "", 0)
	assert.Error(t, err)

	t.Setenv("TEST_LLM_KEY", "")
	_, err = NewOpenAIClient("openai", "gpt-4o-mini", "", "TEST_LLM_KEY", 0)
	assert.Error(t, err)
}
