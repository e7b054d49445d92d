package elasticsearch_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/newsroom/news-collector/internal/models"
)

// fakeES implements the handful of endpoints the store uses.
type fakeES struct {
	mu          sync.Mutex
	index       string
	exists      bool
	createCalls int
	mapping     string
	docs        map[string]models.NewsItem
	failWrites  bool
	lastSize    int
}

type searchBody struct {
	Size  int `json:"size"`
	Query struct {
		Bool struct {
			Filter []struct {
				Term map[string]string `json:"term"`
			} `json:"filter"`
		} `json:"bool"`
	} `json:"query"`
}

func newFakeES(t *testing.T, index string) (*fakeES, *httptest.Server) {
	t.Helper()
	f := &fakeES{index: index, docs: map[string]models.NewsItem{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeES) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/_cluster/health":
		writeBody(w, http.StatusOK, map[string]any{"status": "green"})

	case len(parts) == 1 && parts[0] == f.index && r.Method == http.MethodHead:
		if f.exists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case len(parts) == 1 && parts[0] == f.index && r.Method == http.MethodPut:
		f.createCalls++
		body, _ := io.ReadAll(r.Body)
		f.mapping = string(body)
		f.exists = true
		writeBody(w, http.StatusOK, map[string]any{"acknowledged": true})

	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodPut:
		if f.failWrites {
			writeBody(w, http.StatusInternalServerError, map[string]any{"error": "unavailable"})
			return
		}
		var item models.NewsItem
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeBody(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		f.docs[parts[2]] = item
		writeBody(w, http.StatusCreated, map[string]any{"result": "created", "_id": parts[2]})

	case len(parts) == 2 && parts[1] == "_search":
		var body searchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBody(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		f.lastSize = body.Size
		keyword := ""
		if len(body.Query.Bool.Filter) > 0 {
			keyword = body.Query.Bool.Filter[0].Term["keyword"]
		}
		matched := f.matching(keyword)
		total := len(matched)
		if body.Size < len(matched) {
			matched = matched[:body.Size]
		}
		hits := make([]map[string]any, 0, len(matched))
		for _, item := range matched {
			hits = append(hits, map[string]any{"_id": item.UID, "_source": item})
		}
		writeBody(w, http.StatusOK, map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": total, "relation": "eq"},
				"hits":  hits,
			},
		})

	case len(parts) == 2 && parts[1] == "_count":
		writeBody(w, http.StatusOK, map[string]any{"count": len(f.docs)})

	default:
		writeBody(w, http.StatusNotFound, map[string]any{"error": "no route " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeES) matching(keyword string) []models.NewsItem {
	out := make([]models.NewsItem, 0, len(f.docs))
	for _, item := range f.docs {
		if keyword != "" && item.Keyword != keyword {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID > out[j].UID })
	return out
}

func writeBody(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
