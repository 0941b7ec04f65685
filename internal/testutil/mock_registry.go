// Package testutil provides testing utilities for the npm-discovery client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// SearchCorpus is the scripted result set for one exact query text.
type SearchCorpus struct {
	// Names is the full ordered result list the mock serves for this text.
	// Paging windows (from/size) slice into it server-side.
	Names []string

	// Total is the reported total. Like the real registry it is an estimate
	// and may exceed len(Names) to simulate matches beyond the window.
	Total int
}

// MockRegistry is a configurable mock npm registry for testing. It serves the
// /-/v1/search endpoint from scripted per-text corpora and packuments from a
// name-keyed map, with per-key failure injection for retry tests.
type MockRegistry struct {
	server *httptest.Server

	mu          sync.Mutex
	corpora     map[string]SearchCorpus
	packuments  map[string]string
	failures    map[string]int // remaining failures by query text or package name
	failStatus  int
	searchCalls map[string]int

	// RequestCount counts every request the server received.
	RequestCount int
}

// NewMockRegistry creates a started mock registry.
func NewMockRegistry() *MockRegistry {
	mock := &MockRegistry{
		corpora:     make(map[string]SearchCorpus),
		packuments:  make(map[string]string),
		failures:    make(map[string]int),
		failStatus:  http.StatusServiceUnavailable,
		searchCalls: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.mu.Unlock()

		if r.URL.Path == "/-/v1/search" {
			mock.searchHandler(w, r)
			return
		}
		mock.packumentHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockRegistry) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRegistry) Close() {
	m.server.Close()
}

// SetCorpus scripts the search results for an exact query text.
func (m *MockRegistry) SetCorpus(text string, corpus SearchCorpus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if corpus.Total == 0 {
		corpus.Total = len(corpus.Names)
	}
	m.corpora[text] = corpus
}

// SetPackument scripts the packument body for a package name.
func (m *MockRegistry) SetPackument(name, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packuments[name] = body
}

// FailNext makes the next n requests for the given query text or package name
// respond with status before serving normally again.
func (m *MockRegistry) FailNext(key string, n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = n
	m.failStatus = status
}

// SearchCalls returns how many search requests were served for text.
func (m *MockRegistry) SearchCalls(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls[text]
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRegistry) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// consumeFailure reports whether the request for key should fail, decrementing
// the remaining failure budget.
func (m *MockRegistry) consumeFailure(key string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[key] > 0 {
		m.failures[key]--
		return m.failStatus, true
	}
	return 0, false
}

func (m *MockRegistry) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")

	m.mu.Lock()
	m.searchCalls[text]++
	corpus, ok := m.corpora[text]
	m.mu.Unlock()

	if status, fail := m.consumeFailure(text); fail {
		http.Error(w, `{"error": "injected failure"}`, status)
		return
	}

	size := 20
	if s, err := strconv.Atoi(q.Get("size")); err == nil && s > 0 {
		size = s
	}
	from := 0
	if f, err := strconv.Atoi(q.Get("from")); err == nil && f > 0 {
		from = f
	}

	names := []string{}
	total := 0
	if ok {
		total = corpus.Total
		if from < len(corpus.Names) {
			end := from + size
			if end > len(corpus.Names) {
				end = len(corpus.Names)
			}
			names = corpus.Names[from:end]
		}
	}

	type pkg struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	type object struct {
		Package pkg `json:"package"`
	}
	resp := struct {
		Objects []object `json:"objects"`
		Total   int      `json:"total"`
	}{Objects: make([]object, 0, len(names)), Total: total}
	for _, n := range names {
		resp.Objects = append(resp.Objects, object{Package: pkg{Name: n, Version: "1.0.0"}})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockRegistry) packumentHandler(w http.ResponseWriter, r *http.Request) {
	// r.URL.Path arrives decoded, so scoped names like "@types%2Fnode" are
	// already "@types/node" here.
	name := strings.TrimPrefix(r.URL.Path, "/")

	if status, fail := m.consumeFailure(name); fail {
		http.Error(w, `{"error": "injected failure"}`, status)
		return
	}

	m.mu.Lock()
	body, ok := m.packuments[name]
	m.mu.Unlock()

	if !ok {
		http.Error(w, `{"error": "Not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
