package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// EmbeddingsServer is an OpenAI-compatible embeddings endpoint. Each input
// embeds as [len(input), index]. GET /v1/models answers with one model so
// the doctor check passes.
type EmbeddingsServer struct {
	*httptest.Server
	calls atomic.Int32
}

// NewEmbeddingsServer starts the server. Caller must Close it.
func NewEmbeddingsServer() *EmbeddingsServer {
	s := &EmbeddingsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/models" && r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   []map[string]any{{"id": "text-embedding-3-small", "object": "model"}},
			})
		case r.URL.Path == "/v1/embeddings" && r.Method == http.MethodPost:
			s.calls.Add(1)
			var req struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data := make([]map[string]any, len(req.Input))
			for i, in := range req.Input {
				data[i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float64{float64(len(in)), float64(i)},
				}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  req.Model,
				"data":   data,
				"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
			})
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	return s
}

// Calls returns the number of embeddings requests served.
func (s *EmbeddingsServer) Calls() int { return int(s.calls.Load()) }
