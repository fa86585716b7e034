package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishAndHistory(t *testing.T) {
	h := NewHub(2)

	h.Info("one")
	h.Success("two")
	n := h.Publish(LevelError, "three")

	assert.Equal(t, LevelError, n.Level)
	assert.NotEqual(t, "", n.ID.String())

	recent := h.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "three", recent[1].Message)
}

func TestHub_Subscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()

	h.Success("Wallet connected")

	select {
	case n := <-ch:
		assert.Equal(t, LevelSuccess, n.Level)
		assert.Equal(t, "Wallet connected", n.Message)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	// cancelling twice is harmless
	cancel()
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub(100)
	ch, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < clientBuffer+1; i++ {
		h.Info("tick")
	}

	received := 0
	for range ch {
		received++
	}
	assert.Equal(t, clientBuffer, received)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(10)
	ch, _ := h.Subscribe()
	h.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestHub_ServeWS(t *testing.T) {
	h := NewHub(10)
	h.Info("before connect")

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var n Notification
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "before connect", n.Message)

	// wait until the stream has subscribed before publishing
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	h.Error("Deposit failed")
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, LevelError, n.Level)
	assert.Equal(t, "Deposit failed", n.Message)
}
