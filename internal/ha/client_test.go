package ha

import (
	"context"
	"testing"
	"time"

	"ouraring/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "test_token"

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://homeassistant.local:8123", "ws://homeassistant.local:8123/api/websocket", false},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket", false},
		{"ws://127.0.0.1:8123/api/websocket", "ws://127.0.0.1:8123/api/websocket", false},
		{"ftp://ha", "", true},
	}

	for _, tt := range tests {
		got, err := WebSocketURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestClient_Connect(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	t.Run("successful connection", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), testToken, logger)
		require.NoError(t, err)

		require.NoError(t, client.Connect())
		assert.True(t, client.IsConnected())

		select {
		case <-server.Subscribed():
		case <-time.After(2 * time.Second):
			t.Fatal("client never subscribed to state_changed")
		}

		require.NoError(t, client.Disconnect())
		assert.False(t, client.IsConnected())
	})

	t.Run("invalid token", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), "wrong_token", logger)
		require.NoError(t, err)

		err = client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
		assert.False(t, client.IsConnected())
	})

	t.Run("already connected", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), testToken, logger)
		require.NoError(t, err)
		require.NoError(t, client.Connect())
		defer client.Disconnect()

		err = client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already connected")
	})

	t.Run("server unreachable", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		url := server.URL()
		server.Close()

		client, err := NewClient(url, testToken, logger)
		require.NoError(t, err)
		assert.Error(t, client.Connect())
	})

	t.Run("connect in background", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), testToken, logger)
		require.NoError(t, err)
		defer client.Disconnect()

		client.ConnectInBackground()
		assert.Eventually(t, client.IsConnected, 5*time.Second, 50*time.Millisecond)
	})
}

func TestClient_SetState(t *testing.T) {
	logger := zap.NewNop()

	t.Run("writes state and attributes", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), testToken, logger)
		require.NoError(t, err)

		err = client.SetState(context.Background(), "sensor.oura_ring_sleep", StateUpdate{
			State:      "82",
			Attributes: map[string]interface{}{"icon": "mdi:sleep"},
		})
		require.NoError(t, err)

		write := server.LastStateWrite("sensor.oura_ring_sleep")
		require.NotNil(t, write)
		assert.Equal(t, "82", write.State)
		assert.Equal(t, "mdi:sleep", write.Attributes["icon"])
	})

	t.Run("rejected token", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), "wrong_token", logger)
		require.NoError(t, err)

		err = client.SetState(context.Background(), "sensor.oura_ring_sleep", StateUpdate{State: "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
		assert.Empty(t, server.StateWrites())
	})

	t.Run("does not need the websocket", func(t *testing.T) {
		server := testutil.NewMockHAServer(testToken)
		defer server.Close()

		client, err := NewClient(server.URL(), testToken, logger)
		require.NoError(t, err)
		assert.False(t, client.IsConnected())

		require.NoError(t, client.SetState(context.Background(), "sensor.x", StateUpdate{State: "1"}))
	})
}

func TestClient_SubscribeStateChanges(t *testing.T) {
	server := testutil.NewMockHAServer(testToken)
	defer server.Close()

	client, err := NewClient(server.URL(), testToken, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	select {
	case <-server.Subscribed():
	case <-time.After(2 * time.Second):
		t.Fatal("client never subscribed to state_changed")
	}

	received := make(chan *State, 4)
	sub, err := client.SubscribeStateChanges("input_button.oura_refresh", func(entityID string, oldState, newState *State) {
		received <- newState
	})
	require.NoError(t, err)

	server.SetState("input_button.other", "2024-01-02T07:00:00+00:00", nil)
	server.SetState("input_button.oura_refresh", "2024-01-02T07:00:00+00:00", nil)

	select {
	case state := <-received:
		assert.Equal(t, "input_button.oura_refresh", state.EntityID)
		assert.Equal(t, "2024-01-02T07:00:00+00:00", state.State)
	case <-time.After(2 * time.Second):
		t.Fatal("state change was not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	server.SetState("input_button.oura_refresh", "2024-01-02T08:00:00+00:00", nil)

	select {
	case <-received:
		t.Fatal("handler called after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	client, err := NewClient("http://localhost:8123", testToken, zap.NewNop())
	require.NoError(t, err)

	sub1, _ := client.SubscribeStateChanges("input_button.a", func(string, *State, *State) {})
	sub2, _ := client.SubscribeStateChanges("input_button.a", func(string, *State, *State) {})

	require.NoError(t, sub1.Unsubscribe())
	assert.Len(t, client.subscribers["input_button.a"], 1)

	require.NoError(t, sub2.Unsubscribe())
	_, ok := client.subscribers["input_button.a"]
	assert.False(t, ok)

	assert.NoError(t, sub2.Unsubscribe(), "double unsubscribe is a no-op")
}
