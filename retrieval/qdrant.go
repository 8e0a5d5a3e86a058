package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/policyrag/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// qdrantNamespace 用于把任意文档 ID 映射成稳定的 Qdrant point UUID。
var qdrantNamespace = uuid.MustParse("7c1f2a9e-5b3d-4c8e-9f6a-2e4d8b1c3a5f")

// QdrantConfig Qdrant REST 客户端配置。
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// QdrantStore 通过 REST API 访问 Qdrant 的向量存储实现。
// 集合在首次写入或检索时按需创建。
type QdrantStore struct {
	config QdrantConfig
	client *http.Client
	logger *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore 创建 Qdrant 存储。
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) *QdrantStore {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:6333"
	}
	if config.Collection == "" {
		config.Collection = "policy_chunks"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "qdrant_store")),
	}
}

// qdrantPointID 由文档 ID 派生稳定的 point UUID，重复写入即覆盖。
func qdrantPointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.config.Dimensions,
				"distance": "Cosine",
			},
		}
		status, _, err := s.doJSON(ctx, http.MethodPut,
			fmt.Sprintf("/collections/%s", s.config.Collection), body)
		if err != nil {
			s.ensureErr = err
			return
		}
		// 409 表示集合已存在
		if status != http.StatusOK && status != http.StatusConflict {
			s.ensureErr = types.NewError(types.ErrRetrieval,
				fmt.Sprintf("create collection %s failed", s.config.Collection)).
				WithHTTPStatus(status)
			return
		}
		s.logger.Info("Qdrant 集合就绪",
			zap.String("collection", s.config.Collection),
			zap.Int("dimensions", s.config.Dimensions),
		)
	})
	return s.ensureErr
}

// Add 实现 VectorStore.Add。
func (s *QdrantStore) Add(ctx context.Context, docs []StoredDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		payload := map[string]any{
			"doc_id": doc.ID,
			"text":   doc.Text,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		points = append(points, map[string]any{
			"id":      qdrantPointID(doc.ID),
			"vector":  doc.Vector,
			"payload": payload,
		})
	}

	status, _, err := s.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", s.config.Collection),
		map[string]any{"points": points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return types.NewError(types.ErrRetrieval, "upsert points failed").
			WithHTTPStatus(status)
	}
	return nil
}

// Search 实现 VectorStore.Search。
func (s *QdrantStore) Search(ctx context.Context, vector []float64, topK int) ([]types.RetrievedDocument, error) {
	if topK <= 0 {
		return []types.RetrievedDocument{}, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	status, respBody, err := s.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", s.config.Collection),
		map[string]any{
			"vector":       vector,
			"limit":        topK,
			"with_payload": true,
		})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, types.NewError(types.ErrRetrieval, "search points failed").
			WithHTTPStatus(status)
	}

	var parsed struct {
		Result []struct {
			ID      any             `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewError(types.ErrRetrieval, "decode search response").WithCause(err)
	}

	docs := make([]types.RetrievedDocument, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		doc := types.RetrievedDocument{
			ID:         fmt.Sprint(hit.ID),
			Similarity: hit.Score,
		}
		if len(hit.Payload) > 0 {
			var payload map[string]any
			if err := json.Unmarshal(hit.Payload, &payload); err == nil {
				doc.Metadata = map[string]string{}
				for k, v := range payload {
					str, ok := v.(string)
					if !ok {
						continue
					}
					switch k {
					case "doc_id":
						doc.ID = str
					case "text":
						doc.Text = str
					default:
						doc.Metadata[k] = str
					}
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count 实现 VectorStore.Count。
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	status, respBody, err := s.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", s.config.Collection),
		map[string]any{"exact": true})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, types.NewError(types.ErrRetrieval, "count points failed").
			WithHTTPStatus(status)
	}
	var parsed struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, types.NewError(types.ErrRetrieval, "decode count response").WithCause(err)
	}
	return parsed.Result.Count, nil
}

// doJSON 发送 JSON 请求并返回状态码与响应体。
func (s *QdrantStore) doJSON(ctx context.Context, method, path string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, types.NewError(types.ErrRetrieval, "encode request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, types.NewError(types.ErrRetrieval, "build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, types.NewError(types.ErrRetrieval, "qdrant request failed").
			WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, types.NewError(types.ErrRetrieval, "read response").WithCause(err)
	}
	return resp.StatusCode, respBody, nil
}
