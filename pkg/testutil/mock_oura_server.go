package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// OuraRequest records one request received by MockOuraServer
type OuraRequest struct {
	Timestamp     time.Time
	Path          string
	Authorization string
	Query         map[string]string
}

// ouraRoute is the canned reply for one endpoint
type ouraRoute struct {
	status int
	body   string
	delay  time.Duration
}

// MockOuraServer simulates the Oura usercollection API.
// Routes default to 404 until a response is configured.
type MockOuraServer struct {
	server   *httptest.Server
	token    string
	routes   map[string]ouraRoute
	routesMu sync.RWMutex
	requests []OuraRequest
	reqMu    sync.Mutex
}

// NewMockOuraServer starts a mock API that accepts only the given bearer token
func NewMockOuraServer(token string) *MockOuraServer {
	s := &MockOuraServer{
		token:  token,
		routes: make(map[string]ouraRoute),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the base URL to hand to oura.Options.BaseURL
func (s *MockOuraServer) URL() string {
	return s.server.URL
}

// Close shuts the server down
func (s *MockOuraServer) Close() {
	s.server.Close()
}

// SetResponse configures the reply for a collection, e.g. "daily_sleep"
func (s *MockOuraServer) SetResponse(collection string, status int, body string) {
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	route := s.routes[collection]
	route.status = status
	route.body = body
	s.routes[collection] = route
}

// SetDelay makes a collection wait before replying
func (s *MockOuraServer) SetDelay(collection string, delay time.Duration) {
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	route := s.routes[collection]
	route.delay = delay
	s.routes[collection] = route
}

// Requests returns all requests received so far
func (s *MockOuraServer) Requests() []OuraRequest {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	reqs := make([]OuraRequest, len(s.requests))
	copy(reqs, s.requests)
	return reqs
}

// CountRequests counts requests made to a collection
func (s *MockOuraServer) CountRequests(collection string) int {
	count := 0
	for _, req := range s.Requests() {
		if req.Path == "/v2/usercollection/"+collection {
			count++
		}
	}
	return count
}

func (s *MockOuraServer) handle(w http.ResponseWriter, r *http.Request) {
	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	s.reqMu.Lock()
	s.requests = append(s.requests, OuraRequest{
		Timestamp:     time.Now(),
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Query:         query,
	})
	s.reqMu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+s.token {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid or expired token"}`))
		return
	}

	collection := strings.TrimPrefix(r.URL.Path, "/v2/usercollection/")

	s.routesMu.RLock()
	route, ok := s.routes[collection]
	s.routesMu.RUnlock()

	if !ok || route.status == 0 {
		http.NotFound(w, r)
		return
	}

	if route.delay > 0 {
		select {
		case <-time.After(route.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(route.status)
	w.Write([]byte(route.body))
}
