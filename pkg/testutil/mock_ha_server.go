// Package testutil provides mock Oura and Home Assistant servers plus
// canned API payloads for tests.
package testutil

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MockHAServer simulates the parts of Home Assistant this service talks to:
// the REST state endpoint and the WebSocket event stream.
type MockHAServer struct {
	server      *httptest.Server
	token       string
	states      map[string]*EntityState
	statesMu    sync.RWMutex
	connections []*connWrapper
	connsMu     sync.Mutex
	writes      []StateWrite
	writesMu    sync.Mutex
	subscribed  chan struct{}
	subOnce     sync.Once
}

// EntityState represents a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// StateWrite records one POST /api/states/<entity_id> call
type StateWrite struct {
	Timestamp  time.Time
	EntityID   string
	State      string
	Attributes map[string]interface{}
}

// Message represents a WebSocket message
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Event represents a Home Assistant event
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent represents a state_changed event
type StateChangedEvent struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// SubscribeEventsRequest represents a subscribe_events request
type SubscribeEventsRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// NewMockHAServer starts a mock HA server that accepts only the given token
func NewMockHAServer(token string) *MockHAServer {
	s := &MockHAServer{
		token:       token,
		states:      make(map[string]*EntityState),
		connections: make([]*connWrapper, 0),
		subscribed:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	mux.HandleFunc("/api/states/", s.handleStates)
	s.server = httptest.NewServer(mux)

	return s
}

// URL returns the http:// base URL of the server
func (s *MockHAServer) URL() string {
	return s.server.URL
}

// Close stops the mock server
func (s *MockHAServer) Close() {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	s.server.Close()
}

// Subscribed is closed once a client has subscribed to state_changed events
func (s *MockHAServer) Subscribed() <-chan struct{} {
	return s.subscribed
}

// SetState sets a state and broadcasts a state_changed event
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	oldState := s.states[entityID]

	now := time.Now()
	newState := &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	s.states[entityID] = newState
	s.statesMu.Unlock()

	s.broadcastStateChange(entityID, oldState, newState)
}

// GetState retrieves a state
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// StateWrites returns all REST state writes received so far
func (s *MockHAServer) StateWrites() []StateWrite {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	writes := make([]StateWrite, len(s.writes))
	copy(writes, s.writes)
	return writes
}

// LastStateWrite returns the most recent write for entityID, or nil
func (s *MockHAServer) LastStateWrite(entityID string) *StateWrite {
	writes := s.StateWrites()
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].EntityID == entityID {
			return &writes[i]
		}
	}
	return nil
}

// handleStates serves GET and POST /api/states/<entity_id>
func (s *MockHAServer) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.token {
		http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := strings.TrimPrefix(r.URL.Path, "/api/states/")
	if !strings.Contains(entityID, ".") {
		http.Error(w, "Invalid entity ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		state := s.GetState(entityID)
		if state == nil {
			http.Error(w, "Entity not found.", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(state)

	case http.MethodPost:
		var body struct {
			State      *string                `json:"state"`
			Attributes map[string]interface{} `json:"attributes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.State == nil {
			http.Error(w, "No state specified.", http.StatusBadRequest)
			return
		}

		created := s.GetState(entityID) == nil

		s.writesMu.Lock()
		s.writes = append(s.writes, StateWrite{
			Timestamp:  time.Now(),
			EntityID:   entityID,
			State:      *body.State,
			Attributes: body.Attributes,
		})
		s.writesMu.Unlock()

		s.SetState(entityID, *body.State, body.Attributes)

		w.Header().Set("Content-Type", "application/json")
		if created {
			w.WriteHeader(http.StatusCreated)
		}
		json.NewEncoder(w).Encode(s.GetState(entityID))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWebSocket handles WebSocket connections
func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w.conn == conn {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.writeMu.Lock()
	conn.WriteJSON(Message{Type: "auth_required"})
	wrapper.writeMu.Unlock()

	var authMsg AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}

	if authMsg.AccessToken != s.token {
		wrapper.writeMu.Lock()
		conn.WriteJSON(Message{Type: "auth_invalid"})
		wrapper.writeMu.Unlock()
		return
	}

	wrapper.writeMu.Lock()
	conn.WriteJSON(Message{Type: "auth_ok"})
	wrapper.writeMu.Unlock()

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var req SubscribeEventsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}

		success := true
		wrapper.writeMu.Lock()
		wrapper.conn.WriteJSON(Message{
			ID:      req.ID,
			Type:    "result",
			Success: &success,
		})
		wrapper.writeMu.Unlock()

		if req.Type == "subscribe_events" {
			s.subOnce.Do(func() { close(s.subscribed) })
		}
	}
}

// broadcastStateChange sends a state_changed event to all connections
func (s *MockHAServer) broadcastStateChange(entityID string, oldState, newState *EntityState) {
	eventDataJSON, _ := json.Marshal(StateChangedEvent{
		EntityID: entityID,
		NewState: newState,
		OldState: oldState,
	})

	msg := Message{
		Type: "event",
		Event: &Event{
			EventType: "state_changed",
			Data:      eventDataJSON,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.writeMu.Lock()
		wrapper.conn.WriteJSON(msg)
		wrapper.writeMu.Unlock()
	}
}
