package handler

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/chatter/internal/config"
	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/store"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	broker := realtime.NewBroker()
	identities := store.NewMemoryStore()
	h := NewWSHandler(broker, ident.RoomCodes(), ident.EntryIDs(), identities, testWSConfig())

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// await reads until a message of the wanted type arrives and decodes it
// into out. Pushed roster and window frames interleave freely, so anything
// of a different type is skipped.
func await(t *testing.T, conn *websocket.Conn, wantType string, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", wantType)

		var base domain.BaseMessage
		require.NoError(t, json.Unmarshal(data, &base))
		if base.Type != wantType {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(data, out))
		}
		return
	}
}

// awaitWindow reads window frames until pred is satisfied.
func awaitWindow(t *testing.T, conn *websocket.Conn, pred func(domain.WindowMessage) bool) domain.WindowMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var win domain.WindowMessage
		await(t, conn, domain.MsgTypeWindow, &win)
		if pred(win) {
			return win
		}
	}
}

func hasChat(win domain.WindowMessage, username, body string) bool {
	for _, row := range win.Rows {
		if row.Entry.Kind == domain.KindChat && row.Entry.Username == username && row.Entry.Body == body {
			return true
		}
	}
	return false
}

func TestJoinAndChat(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "ABCD11", Username: "alice", ClientUID: "client-1"})

	var joined domain.JoinedMessage
	await(t, conn, domain.MsgTypeJoined, &joined)
	require.Equal(t, "ABCD11", joined.Room)
	require.Equal(t, "alice", joined.Username)

	// The subscribe-time sync may arrive before presence is tracked, so
	// read roster pushes until alice appears.
	for {
		var roster domain.RosterMessage
		await(t, conn, domain.MsgTypeRoster, &roster)
		if len(roster.Users) == 1 {
			require.Equal(t, []string{"alice"}, roster.Users)
			break
		}
	}

	send(t, conn, domain.ChatMessageWS{Type: domain.MsgTypeChat, Content: "hello"})

	win := awaitWindow(t, conn, func(w domain.WindowMessage) bool {
		return hasChat(w, "alice", "hello")
	})
	require.Greater(t, win.TotalHeight, 0)
}

func TestJoinWithoutRoomCreatesOne(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Username: "alice", ClientUID: "client-1"})

	var joined domain.JoinedMessage
	await(t, conn, domain.MsgTypeJoined, &joined)
	require.Len(t, joined.Room, ident.RoomCodeLength)
	ok, _ := ident.RoomCodes().Validate(joined.Room)
	require.True(t, ok)
}

func TestJoinRemembersIdentity(t *testing.T) {
	srv := newTestServer(t)

	first := dial(t, srv)
	send(t, first, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "BCDE22", Username: "alice", ClientUID: "client-1"})
	await(t, first, domain.MsgTypeJoined, nil)
	first.Close()

	// Rejoining with only the client uid resolves the remembered username.
	second := dial(t, srv)
	send(t, second, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "BCDE22", ClientUID: "client-1"})

	var joined domain.JoinedMessage
	await(t, second, domain.MsgTypeJoined, &joined)
	require.Equal(t, "alice", joined.Username)
}

func TestJoinRejectsInvalidRoomCode(t *testing.T) {
	srv := newTestServer(t)

	for _, room := range []string{"not-a-room-code", "abcd12", "ABCDZ1", "ABC"} {
		conn := dial(t, srv)
		send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: room, Username: "alice", ClientUID: "c1"})

		var errMsg domain.ErrorMessage
		await(t, conn, domain.MsgTypeError, &errMsg)
		require.Equal(t, domain.ErrCodeBadRequest, errMsg.Code, "room %q", room)
	}
}

func TestJoinWithoutUsername(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "CDEF33", ClientUID: "unknown-client"})

	var errMsg domain.ErrorMessage
	await(t, conn, domain.MsgTypeError, &errMsg)
	require.Equal(t, domain.ErrCodeBadRequest, errMsg.Code)
}

func TestChatBeforeJoin(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, domain.ChatMessageWS{Type: domain.MsgTypeChat, Content: "hello?"})

	var errMsg domain.ErrorMessage
	await(t, conn, domain.MsgTypeError, &errMsg)
	require.Equal(t, domain.ErrCodeNotInRoom, errMsg.Code)
}

func TestTwoClientsSeeEachOther(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	send(t, alice, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "DEFG44", Username: "alice", ClientUID: "c1"})
	await(t, alice, domain.MsgTypeJoined, nil)

	bob := dial(t, srv)
	send(t, bob, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "DEFG44", Username: "bob", ClientUID: "c2"})
	await(t, bob, domain.MsgTypeJoined, nil)

	// Both rosters converge.
	for _, conn := range []*websocket.Conn{alice, bob} {
		deadline := time.Now().Add(2 * time.Second)
		require.NoError(t, conn.SetReadDeadline(deadline))
		for {
			var roster domain.RosterMessage
			await(t, conn, domain.MsgTypeRoster, &roster)
			if len(roster.Users) == 2 {
				require.Equal(t, []string{"alice", "bob"}, roster.Users)
				break
			}
		}
	}

	send(t, alice, domain.ChatMessageWS{Type: domain.MsgTypeChat, Content: "hi bob"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		awaitWindow(t, conn, func(w domain.WindowMessage) bool {
			return hasChat(w, "alice", "hi bob")
		})
	}
}

func TestResizeAndScroll(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "EFGH55", Username: "alice", ClientUID: "c1"})
	await(t, conn, domain.MsgTypeJoined, nil)

	send(t, conn, domain.ResizeMessage{Type: domain.MsgTypeResize, Width: 400, Height: 300})
	await(t, conn, domain.MsgTypeWindow, nil)

	send(t, conn, domain.ScrollMessage{Type: domain.MsgTypeScroll, Offset: 0})
	var win domain.WindowMessage
	await(t, conn, domain.MsgTypeWindow, &win)
	require.Equal(t, 0, win.Offset)
}

func TestDisconnectUnderBroadcastLoad(t *testing.T) {
	// Peers keep broadcasting while other connections churn through
	// join/disconnect. A disconnect racing an observer push must not take
	// the server down.
	srv := newTestServer(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for s := 0; s < 2; s++ {
		spammer := dial(t, srv)
		send(t, spammer, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "FGHI66", Username: fmt.Sprintf("spammer-%d", s), ClientUID: fmt.Sprintf("spam-%d", s)})
		await(t, spammer, domain.MsgTypeJoined, nil)

		wg.Add(1)
		go func(conn *websocket.Conn) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					data, _ := json.Marshal(domain.ChatMessageWS{Type: domain.MsgTypeChat, Content: "noise"})
					if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
					// Drain pushes so the server-side queue keeps moving.
					conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
					conn.ReadMessage()
				}
			}
		}(spammer)
	}

	for i := 0; i < 50; i++ {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		data, err := json.Marshal(domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "FGHI66", Username: fmt.Sprintf("churn-%d", i), ClientUID: fmt.Sprintf("churn-%d", i)})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
		// Disconnect immediately, while joined-room pushes are in flight.
		conn.Close()
	}

	close(stop)
	wg.Wait()

	// The server is still alive and serving joins.
	conn := dial(t, srv)
	send(t, conn, domain.JoinMessage{Type: domain.MsgTypeJoin, Room: "FGHI66", Username: "survivor", ClientUID: "survivor"})
	await(t, conn, domain.MsgTypeJoined, nil)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, map[string]string{"type": domain.MsgTypePing})
	await(t, conn, domain.MsgTypePong, nil)
}

func TestUnknownMessageType(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, map[string]string{"type": "bogus"})

	var errMsg domain.ErrorMessage
	await(t, conn, domain.MsgTypeError, &errMsg)
	require.Equal(t, domain.ErrCodeBadRequest, errMsg.Code)
}
