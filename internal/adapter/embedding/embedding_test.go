package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_EmbedDocuments(t *testing.T) {
	var batches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches++

		resp := embeddingResponse{}
		// answer in reverse order to exercise index mapping
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(len(req.Input[i])), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "test-key")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "text-embedding-3-small", srv.URL+"/")
	require.NoError(t, err)

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = string(make([]byte, i%7))
	}
	vecs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 150)
	assert.Equal(t, 2, batches)
	assert.Equal(t, float32(3), vecs[3][0])
	assert.Equal(t, float32(145%7), vecs[145][0])
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimension())

	_, err = e.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "")
	_, err := NewOpenAIEmbedder("TEST_EMBED_KEY", "text-embedding-3-small")
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "Brian gets up at 6am")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "brian GETS up at 6am!")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := e.EmbedQuery(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, float32(1), empty[0])
}
