package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Entity is one sidecar entity in the /analyze response.
type Entity struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
}

// NERSidecar is an httptest.Server speaking the NER sidecar protocol:
// POST /analyze with {"texts","language"} returns {"results":[[Entity]]}.
// Any other request answers 200 so health checks succeed.
type NERSidecar struct {
	*httptest.Server

	mu     sync.Mutex
	inputs []string
}

// NewNERSidecar starts a sidecar that tags every occurrence of each word in
// names as a PERSON with score 0.9. Caller must call Close() or register
// t.Cleanup(sidecar.Close).
func NewNERSidecar(names ...string) *NERSidecar {
	s := &NERSidecar{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req struct {
			Texts    []string `json:"texts"`
			Language string   `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.inputs = append(s.inputs, req.Texts...)
		s.mu.Unlock()

		results := make([][]Entity, len(req.Texts))
		for i, text := range req.Texts {
			results[i] = []Entity{}
			for _, name := range names {
				from := 0
				for {
					j := strings.Index(text[from:], name)
					if j < 0 {
						break
					}
					start := from + j
					results[i] = append(results[i], Entity{Start: start, End: start + len(name), EntityType: "PERSON", Score: 0.9})
					from = start + len(name)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	return s
}

// Inputs returns every text posted to /analyze so far.
func (s *NERSidecar) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}
