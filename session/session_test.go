package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralis-ai/geminilive/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// liveServer mimics the live endpoint: it consumes the setup frame, releases
// the setup acknowledgement on demand, and records every client frame.
type liveServer struct {
	srv *httptest.Server

	setup      chan []byte
	received   chan []byte
	ackRelease chan struct{}
	outbound   chan string
}

func newLiveServer(t *testing.T, holdAck bool) *liveServer {
	t.Helper()
	ls := &liveServer{
		setup:      make(chan []byte, 1),
		received:   make(chan []byte, 64),
		ackRelease: make(chan struct{}),
		outbound:   make(chan string, 64),
	}
	if !holdAck {
		close(ls.ackRelease)
	}

	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, setup, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ls.setup <- setup

		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				ls.received <- data
			}
		}()

		select {
		case <-ls.ackRelease:
		case <-clientGone:
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`)); err != nil {
			return
		}

		for {
			select {
			case frame := <-ls.outbound:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			case <-clientGone:
				return
			}
		}
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *liveServer) url() string {
	return "ws" + strings.TrimPrefix(ls.srv.URL, "http")
}

func (ls *liveServer) send(frame string) { ls.outbound <- frame }

func newTestSession(t *testing.T, url string, onEvent func(wire.Event)) *Session {
	t.Helper()
	if onEvent == nil {
		onEvent = func(wire.Event) {}
	}
	s, err := New(Config{
		URL:           url,
		Setup:         wire.Setup{Model: "models/test-model"},
		OnEvent:       onEvent,
		SetupDeadline: 2 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func TestSession_ConnectHandshake(t *testing.T) {
	ls := newLiveServer(t, false)
	s := newTestSession(t, ls.url(), nil)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	assert.Equal(t, StateActive, s.State())
	assert.NotEmpty(t, s.ID())

	var env wire.SetupEnvelope
	require.NoError(t, json.Unmarshal(<-ls.setup, &env))
	assert.Equal(t, "models/test-model", env.Setup.Model)
}

func TestSession_SendBeforeConnect(t *testing.T) {
	s := newTestSession(t, "ws://localhost:1", nil)
	assert.ErrorIs(t, s.SendText("hello"), ErrNotConnected)
}

func TestSession_QueuedIntentsFlushInOrder(t *testing.T) {
	ls := newLiveServer(t, true)
	s := newTestSession(t, ls.url(), nil)

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(context.Background()) }()

	require.Eventually(t, func() bool {
		return s.State() == StateAwaitingSetupAck
	}, 2*time.Second, time.Millisecond)

	// Sent while the handshake is still in flight: queued, not failed.
	require.NoError(t, s.SendText("first"))
	require.NoError(t, s.SendText("second"))
	require.NoError(t, s.SendAudio([]byte{0x01, 0x00}))

	// Nothing besides the setup frame may reach the wire before the
	// acknowledgement arrives.
	time.Sleep(50 * time.Millisecond)
	select {
	case data := <-ls.received:
		t.Fatalf("frame sent before setup acknowledgement: %s", data)
	default:
	}

	close(ls.ackRelease)
	require.NoError(t, <-connected)
	defer s.Close()

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case data := <-ls.received:
			got = append(got, string(data))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for flushed intent %d", i)
		}
	}

	assert.Contains(t, got[0], "first")
	assert.Contains(t, got[1], "second")
	assert.Contains(t, got[2], "realtimeInput")
}

func TestSession_SendAfterActive(t *testing.T) {
	ls := newLiveServer(t, false)
	s := newTestSession(t, ls.url(), nil)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.SendText("hello there"))

	select {
	case data := <-ls.received:
		assert.Contains(t, string(data), "clientContent")
		assert.Contains(t, string(data), "hello there")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSession_EventsArriveInOrder(t *testing.T) {
	ls := newLiveServer(t, false)

	events := make(chan wire.Event, 16)
	s := newTestSession(t, ls.url(), func(e wire.Event) { events <- e })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	pcm := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})
	ls.send(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"data":"` + pcm + `"}}]}}}`)
	ls.send(`{"serverContent":{"interrupted":true}}`)
	ls.send(`{"serverContent":{"turnComplete":true}}`)
	ls.send(`{"toolCall":{"functionCalls":[{"id":"c1","name":"lookup"}]}}`)

	expect := func() wire.Event {
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}

	assert.IsType(t, wire.AudioEvent{}, expect())
	assert.IsType(t, wire.InterruptedEvent{}, expect())
	assert.IsType(t, wire.TurnCompleteEvent{}, expect())
	assert.IsType(t, wire.ToolCallEvent{}, expect())
}

func TestSession_MalformedFrameIsDropped(t *testing.T) {
	ls := newLiveServer(t, false)

	events := make(chan wire.Event, 16)
	s := newTestSession(t, ls.url(), func(e wire.Event) { events <- e })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	ls.send(`{{{garbage`)
	ls.send(`{"serverContent":{"turnComplete":true}}`)

	select {
	case e := <-events:
		assert.IsType(t, wire.TurnCompleteEvent{}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not survive a malformed frame")
	}
	assert.Equal(t, StateActive, s.State())
}

func TestSession_SetupTimeout(t *testing.T) {
	ls := newLiveServer(t, true) // ack never released
	s, err := New(Config{
		URL:           ls.url(),
		Setup:         wire.Setup{Model: "models/test-model"},
		OnEvent:       func(wire.Event) {},
		SetupDeadline: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrSetupTimeout)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_RemoteCloseDisconnects(t *testing.T) {
	// Acks setup and then drops the socket without a close frame.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		_ = conn.Close()
	}))
	defer srv.Close()

	closed := make(chan error, 1)
	s, err := New(Config{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http"),
		Setup:         wire.Setup{Model: "models/test-model"},
		OnEvent:       func(wire.Event) {},
		OnClosed:      func(err error) { closed <- err },
		SetupDeadline: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close notification")
	}

	// The session observed the remote close before notifying, so sends now
	// fail instead of writing into the dead socket.
	assert.Equal(t, StateDisconnected, s.State())
	assert.ErrorIs(t, s.SendText("late"), ErrNotConnected)
}

func TestSession_ReconnectUsesFreshSocket(t *testing.T) {
	ls := newLiveServer(t, false)
	s := newTestSession(t, ls.url(), nil)

	require.NoError(t, s.Connect(context.Background()))
	<-ls.setup
	require.NoError(t, s.Close())
	assert.Equal(t, StateDisconnected, s.State())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()
	<-ls.setup
	assert.Equal(t, StateActive, s.State())
	require.NoError(t, s.SendText("second life"))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	ls := newLiveServer(t, false)
	s := newTestSession(t, ls.url(), nil)

	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateDisconnected, s.State())

	assert.ErrorIs(t, s.SendText("late"), ErrNotConnected)
}

func TestSession_OnClosedAfterRequestedClose(t *testing.T) {
	ls := newLiveServer(t, false)

	closed := make(chan error, 1)
	s, err := New(Config{
		URL:           ls.url(),
		Setup:         wire.Setup{Model: "models/test-model"},
		OnEvent:       func(wire.Event) {},
		OnClosed:      func(err error) { closed <- err },
		SetupDeadline: 2 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close notification")
	}
}

func TestSession_ConnectValidation(t *testing.T) {
	_, err := New(Config{OnEvent: func(wire.Event) {}})
	assert.Error(t, err)

	_, err = New(Config{URL: "ws://x"})
	assert.Error(t, err)
}

func TestSession_ConnectTwice(t *testing.T) {
	ls := newLiveServer(t, false)
	s := newTestSession(t, ls.url(), nil)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	assert.Error(t, s.Connect(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "awaiting_setup_ack", StateAwaitingSetupAck.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closing", StateClosing.String())
}
