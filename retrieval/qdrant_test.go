package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantPointIDStable(t *testing.T) {
	a := qdrantPointID("doc-1#0")
	b := qdrantPointID("doc-1#0")
	c := qdrantPointID("doc-1#1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func newQdrantTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/policy_chunks":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.URL.Path == "/collections/policy_chunks/points":
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.NotEmpty(t, body.Points)
			assert.Equal(t, qdrantPointID("doc-1#0"), body.Points[0].ID)
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.URL.Path == "/collections/policy_chunks/points/search":
			_, _ = w.Write([]byte(`{"result":[
				{"id":"uuid-1","score":0.92,"payload":{"doc_id":"doc-1#0","text":"试验区由管委会管理","title":"总体方案"}}
			]}`))
		case r.URL.Path == "/collections/policy_chunks/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &paths
}

func TestQdrantStoreRoundTrip(t *testing.T) {
	server, paths := newQdrantTestServer(t)
	store := NewQdrantStore(QdrantConfig{
		BaseURL:    server.URL,
		Collection: "policy_chunks",
		Dimensions: 4,
	}, nil)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []StoredDocument{
		{ID: "doc-1#0", Text: "试验区由管委会管理", Vector: []float64{1, 0, 0, 0}},
	}))

	docs, err := store.Search(ctx, []float64{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1#0", docs[0].ID)
	assert.Equal(t, "试验区由管委会管理", docs[0].Text)
	assert.InDelta(t, 0.92, docs[0].Similarity, 1e-9)
	assert.Equal(t, "总体方案", docs[0].Metadata["title"])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 集合只创建一次
	creates := 0
	for _, p := range *paths {
		if p == "PUT /collections/policy_chunks" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}

func TestQdrantStoreCollectionExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/policy_chunks" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"count":0}}`))
	}))
	t.Cleanup(server.Close)

	store := NewQdrantStore(QdrantConfig{BaseURL: server.URL, Dimensions: 4}, nil)
	_, err := store.Count(context.Background())
	assert.NoError(t, err)
}

func TestQdrantStoreServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	store := NewQdrantStore(QdrantConfig{BaseURL: server.URL, Dimensions: 4}, nil)
	err := store.Add(context.Background(), []StoredDocument{{ID: "x", Vector: []float64{1}}})
	assert.Error(t, err)
}
