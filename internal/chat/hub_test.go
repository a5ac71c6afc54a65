package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testMessage struct {
	Body string `json:"body"`
}

// dialTestHub returns the client side of a subscribed connection and
// the server side the hub actually holds.
func dialTestHub(t *testing.T, hub *Hub, room string) (client, server *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Subscribe(room, conn)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case server = <-serverConns:
	case <-time.After(time.Second):
		t.Fatal("server connection was never subscribed")
	}

	return conn, server
}

func TestHubBroadcastReachesRoomSubscribers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t).Sugar())

	conn, _ := dialTestHub(t, hub, "T25060001")

	hub.Broadcast("T25060001", testMessage{Body: "payment received"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got testMessage
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "payment received", got.Body)
}

func TestHubBroadcastIsRoomScoped(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t).Sugar())

	other, _ := dialTestHub(t, hub, "T25060002")

	hub.Broadcast("T25060001", testMessage{Body: "wrong room"})

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var got testMessage
	require.Error(t, other.ReadJSON(&got), "message leaked into another room")
}

func TestHubUnsubscribeRemovesConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t).Sugar())

	_, server := dialTestHub(t, hub, AdminRoom)
	require.Equal(t, 1, hub.Subscribers(AdminRoom))

	hub.Unsubscribe(AdminRoom, server)
	require.Equal(t, 0, hub.Subscribers(AdminRoom))
}
