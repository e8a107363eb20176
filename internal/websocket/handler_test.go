package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomhub/internal/hub"
	"roomhub/internal/mocks"
	"roomhub/internal/room"
	"roomhub/internal/router"
)

type testServer struct {
	server   *httptest.Server
	registry *room.Registry
	handler  *Handler
	store    *mocks.MockImageStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockImageStore(ctrl)
	registry := room.NewRegistry(room.DefaultSettings())
	h := hub.NewHub()
	dispatcher := router.NewDispatcher(h, store, time.Second)

	opts := DefaultOptions()
	opts.PingInterval = 0
	opts.PongWait = 5 * time.Second
	opts.WriteTimeout = time.Second

	handler := NewHandler(registry, dispatcher, h, opts)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", handler.HandleWebSocket)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		handler.Shutdown()
		server.Close()
	})

	return &testServer{server: server, registry: registry, handler: handler, store: store}
}

func (ts *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws/" + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

const crate = `{"id":7,"name":"crate","x":1,"y":2,"z":3,"status":{"description":"ok","level":1,"is_active":true},"image_id":null}`

func TestHandler_JoinSendsEmptySnapshot(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "lobby")

	require.Equal(t, "[]", readText(t, conn))

	r, exists := ts.registry.Get("lobby")
	require.True(t, exists)
	require.Eventually(t, func() bool { return r.Info().ActiveSessions == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_EntityUpsertReachesAllSessionsAndLaterSnapshots(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	bob := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, bob))

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(crate)))

	req.JSONEq(crate, readText(t, alice))
	req.JSONEq(crate, readText(t, bob))

	carol := ts.dial(t, "lobby")
	req.JSONEq("["+crate+"]", readText(t, carol))

	// Other rooms never see it
	other := ts.dial(t, "arena")
	req.Equal("[]", readText(t, other))
}

func TestHandler_ClassifiedTextIsRelayed(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	bob := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, bob))

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("ERROR: disk full")))
	req.JSONEq(`{"content":"ERROR: disk full"}`, readText(t, bob))
	req.JSONEq(`{"content":"ERROR: disk full"}`, readText(t, alice))

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("hello")))
	req.JSONEq(`{"content":"hello"}`, readText(t, bob))

	r, _ := ts.registry.Get("lobby")
	pending := r.PendingMessages()
	req.Len(pending, 1)
	req.Equal("ERROR: disk full", pending[0].Content)
}

func TestHandler_FocalUpdateIsNotRelayed(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	bob := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, bob))

	req.NoError(alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"focal","position":{"x":10,"y":20},"bounds":{"x1":0,"y1":0,"x2":100,"y2":100}}`)))

	r, _ := ts.registry.Get("lobby")
	req.Eventually(func() bool { return r.Info().FocalPoint != nil }, time.Second, 10*time.Millisecond)
	req.Equal([4]float64{0, 0, 100, 100}, *r.Info().FocalRange)
	expectSilence(t, bob)
}

func TestHandler_BinaryFrameBroadcastsImageReference(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	ts.store.EXPECT().Store(gomock.Any(), data).Return("img-1", nil)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	bob := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, bob))

	req.NoError(alice.WriteMessage(websocket.BinaryMessage, data))
	req.JSONEq(`{"image_id":"img-1"}`, readText(t, bob))
}

func TestHandler_StorageFailureKeepsSessionOpen(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	ts.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("", context.DeadlineExceeded)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))

	req.NoError(alice.WriteMessage(websocket.BinaryMessage, []byte("blob")))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("still here")))
	req.JSONEq(`{"content":"still here"}`, readText(t, alice))
}

func TestHandler_PingIsAnsweredWithPong(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))

	pongs := make(chan string, 1)
	alice.SetPongHandler(func(appData string) error {
		pongs <- appData
		return nil
	})
	req.NoError(alice.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)))

	// Control frames are processed inside ReadMessage
	_ = alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, _ = alice.ReadMessage()

	select {
	case appData := <-pongs:
		req.Equal("hb", appData)
	default:
		t.Fatal("expected pong")
	}
}

func TestHandler_LastLeaveTearsDownRoom(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(crate)))
	req.JSONEq(crate, readText(t, alice))

	first, _ := ts.registry.Get("lobby")

	req.NoError(alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	// The server echoes the close handshake
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := alice.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))

	req.Eventually(func() bool { return len(ts.registry.Paths()) == 0 }, 2*time.Second, 10*time.Millisecond)
	req.Eventually(first.Cancelled, time.Second, 10*time.Millisecond)

	// Rejoining creates a fresh room with no entities
	again := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, again))
	second, _ := ts.registry.Get("lobby")
	req.NotSame(first, second)
}

func TestHandler_AbruptDisconnectDeregisters(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, alice))
	bob := ts.dial(t, "lobby")
	req.Equal("[]", readText(t, bob))

	r, _ := ts.registry.Get("lobby")
	req.NoError(bob.UnderlyingConn().Close())

	req.Eventually(func() bool { return r.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(1, r.Info().ActiveSessions)
	req.Equal([]string{"lobby"}, ts.registry.Paths())
}

func TestHandler_RejectsInvalidRoomPath(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()

	ts.handler.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "joined", StateJoined.String())
	require.Equal(t, "closing", StateClosing.String())
	require.Equal(t, "closed", StateClosed.String())
}
