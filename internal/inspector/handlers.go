package inspector

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// listing is the short form of an entry used by list responses.
type listing struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	Created time.Time `json:"created"`
	URL     string    `json:"url"`
	Stats   Stats     `json:"stats"`
}

type detail struct {
	*Entry
	Stats Stats `json:"stats"`
}

func (s *Server) listings() []listing {
	base := s.URL()
	entries := s.List()
	out := make([]listing, len(entries))
	for i, e := range entries {
		out[i] = listing{ID: e.ID, Label: e.Label, Created: e.Created, URL: base + "/inspect/" + e.ID, Stats: e.stats()}
	}
	return out
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      interface{}   `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "inspector.list":
		result = s.listings()
	case "inspector.get":
		result, err = s.rpcEntry(request.Params, func(e *Entry) interface{} {
			return detail{Entry: e, Stats: e.stats()}
		})
	case "inspector.histogram":
		result, err = s.rpcEntry(request.Params, func(e *Entry) interface{} {
			return e.SampleSet.Histogram()
		})
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// rpcEntry resolves params of the form [{"id": "..."}] and renders the
// entry with view.
func (s *Server) rpcEntry(params []interface{}, view func(*Entry) interface{}) (interface{}, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("missing required parameters")
	}
	paramMap, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid parameter format, expected object")
	}
	id, ok := paramMap["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id is required")
	}
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return view(e), nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listings())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detail{Entry: e, Stats: e.stats()})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.SampleSet.Histogram())
}

func (s *Server) entryOr404(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	e, err := s.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
