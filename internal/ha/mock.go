package ha

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StateWrite records a SetState call for testing
type StateWrite struct {
	EntityID string
	Update   StateUpdate
	Time     time.Time
}

// MockClient implements HAClient interface for testing
type MockClient struct {
	states      map[string]*State
	statesMu    sync.RWMutex
	subscribers map[string][]subscriberEntry
	subsMu      sync.RWMutex
	nextSubID   int
	connected   bool
	connMu      sync.RWMutex
	writes      []StateWrite
	writesMu    sync.Mutex
	setStateErr error
}

// mockSubscription implements Subscription interface for MockClient
type mockSubscription struct {
	entityID string
	subID    int
	mock     *MockClient
}

func (s *mockSubscription) Unsubscribe() error {
	return s.mock.unsubscribe(s.entityID, s.subID)
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:      make(map[string]*State),
		subscribers: make(map[string][]subscriberEntry),
		writes:      make([]StateWrite, 0),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// SetStateError makes subsequent SetState calls fail with err
func (m *MockClient) SetStateError(err error) {
	m.writesMu.Lock()
	defer m.writesMu.Unlock()
	m.setStateErr = err
}

// SetState records the write and updates the stored state
func (m *MockClient) SetState(ctx context.Context, entityID string, update StateUpdate) error {
	m.writesMu.Lock()
	if m.setStateErr != nil {
		err := m.setStateErr
		m.writesMu.Unlock()
		return err
	}
	m.writes = append(m.writes, StateWrite{EntityID: entityID, Update: update, Time: time.Now()})
	m.writesMu.Unlock()

	m.SimulateStateChange(entityID, update.State, update.Attributes)
	return nil
}

// GetWrites returns all recorded SetState calls
func (m *MockClient) GetWrites() []StateWrite {
	m.writesMu.Lock()
	defer m.writesMu.Unlock()
	writes := make([]StateWrite, len(m.writes))
	copy(writes, m.writes)
	return writes
}

// GetState returns the stored state of an entity
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return state, nil
}

// SubscribeStateChanges registers a handler
func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subID := m.nextSubID
	m.nextSubID++
	m.subscribers[entityID] = append(m.subscribers[entityID], subscriberEntry{subID: subID, handler: handler})

	return &mockSubscription{entityID: entityID, subID: subID, mock: m}, nil
}

func (m *MockClient) unsubscribe(entityID string, subID int) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	entries := m.subscribers[entityID]
	for i, entry := range entries {
		if entry.subID == subID {
			m.subscribers[entityID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(m.subscribers[entityID]) == 0 {
		delete(m.subscribers, entityID)
	}
	return nil
}

// SimulateStateChange stores a new state and notifies subscribers synchronously
func (m *MockClient) SimulateStateChange(entityID, state string, attributes map[string]interface{}) {
	now := time.Now()
	newState := &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	m.statesMu.Lock()
	oldState := m.states[entityID]
	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.subsMu.RLock()
	entries := append([]subscriberEntry(nil), m.subscribers[entityID]...)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(entityID, oldState, newState)
	}
}
