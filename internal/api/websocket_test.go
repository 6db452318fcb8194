package api

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/models"
	"github.com/Corphon/StoryboardStudio/internal/services"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	reads   chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 4)}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return 1, data, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(appData string) error) {}

func (f *fakeConn) messages() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.written))
	for _, data := range f.written {
		var m map[string]interface{}
		if json.Unmarshal(data, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestHubBroadcastsByProject(t *testing.T) {
	hub := NewWebSocketHub()
	a := newWebSocketClient(newFakeConn(), "p1")
	b := newWebSocketClient(newFakeConn(), "p2")
	hub.Register(a)
	hub.Register(b)

	assert.Equal(t, 1, hub.BroadcastToProject("p1", map[string]string{"type": "x"}))
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 0)

	assert.Equal(t, 2, hub.BroadcastAll(map[string]string{"type": "y"}))
	assert.Equal(t, 2, hub.GetStatus()["total_connections"])

	hub.Unregister(a)
	assert.True(t, a.IsClosed())
	assert.Equal(t, 0, hub.BroadcastToProject("p1", map[string]string{"type": "z"}))
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewWebSocketHub()
	slow := newWebSocketClient(newFakeConn(), "p1")
	hub.Register(slow)

	for i := 0; i < wsSendBuffer; i++ {
		require.Equal(t, 1, hub.BroadcastToProject("p1", i))
	}
	assert.Equal(t, 0, hub.BroadcastToProject("p1", "overflow"))
	assert.True(t, slow.IsClosed())
	assert.Equal(t, 0, hub.GetStatus()["total_connections"])
}

func TestHubCleanupExpired(t *testing.T) {
	hub := NewWebSocketHub()
	client := newWebSocketClient(newFakeConn(), "p1")
	hub.Register(client)

	hub.pingTimeout = time.Hour
	assert.Equal(t, 0, hub.CleanupExpiredConnections())

	client.lastPing.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	assert.Equal(t, 1, hub.CleanupExpiredConnections())
	assert.True(t, client.IsClosed())
}

func TestServeForwardsStoreEvents(t *testing.T) {
	h := newTestHandler(t, 0)
	unsubscribe := h.BindEvents()
	defer unsubscribe()

	conn := newFakeConn()
	client := newWebSocketClient(conn, "p1")
	done := make(chan struct{})
	go func() {
		h.Hub.Serve(client)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.Hub.GetStatus()["total_connections"] == 1 }, time.Second, 5*time.Millisecond)

	path := models.TaskPath{DraftID: "sd_02", EpisodeID: "ep_01_final", SceneID: "sc_01", TaskID: "s1-02"}
	title := "新标题"
	_, err := h.Script.UpdateTask("p1", path, models.TaskPatch{Title: &title})
	require.NoError(t, err)

	conn.reads <- []byte(`{"type":"ping"}`)

	require.Eventually(t, func() bool {
		var sawUpdate, sawPong bool
		for _, m := range conn.messages() {
			switch m["type"] {
			case services.EventProjectUpdated:
				sawUpdate = m["project_id"] == "p1"
			case "pong":
				sawPong = true
			}
		}
		return sawUpdate && sawPong
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return after the connection closed")
	}
	assert.Equal(t, 0, h.Hub.GetStatus()["total_connections"])
}
