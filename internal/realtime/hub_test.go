package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bloomence/internal/identity"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*identity.Claims, error) {
	uid, ok := strings.CutPrefix(token, "uid:")
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &identity.Claims{UID: uid}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSessions(t *testing.T, hub *Hub, uid string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Sessions(uid) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d sessions for %q, have %d", want, uid, hub.Sessions(uid))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return env
}

func TestEmitReachesOwnRoomOnly(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(WSHandler(hub, fakeVerifier{}, testLogger(), nil))
	defer server.Close()

	alice := dialWS(t, server, "uid:alice")
	bob := dialWS(t, server, "uid:bob")
	waitForSessions(t, hub, "alice", 1)
	waitForSessions(t, hub, "bob", 1)

	if err := hub.Emit(context.Background(), "alice", "email:sent", map[string]string{"kind": "register", "to": "a@x.com"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	env := readEnvelope(t, alice)
	if env.Event != "email:sent" {
		t.Fatalf("event = %q", env.Event)
	}
	data, ok := env.Data.(map[string]any)
	if !ok || data["kind"] != "register" {
		t.Fatalf("unexpected payload: %#v", env.Data)
	}

	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatalf("bob must not receive alice's event")
	}
}

func TestEmitToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub(testLogger())
	if err := hub.Emit(context.Background(), "nobody", "auth:login", map[string]int64{"when": 1}); err != nil {
		t.Fatalf("emit to empty room: %v", err)
	}
}

func TestMultipleSessionsSameUser(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(WSHandler(hub, fakeVerifier{}, testLogger(), nil))
	defer server.Close()

	first := dialWS(t, server, "uid:alice")
	second := dialWS(t, server, "uid:alice")
	waitForSessions(t, hub, "alice", 2)

	if err := hub.Emit(context.Background(), "alice", "auth:login", map[string]int64{"when": 42}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	for _, conn := range []*websocket.Conn{first, second} {
		if env := readEnvelope(t, conn); env.Event != "auth:login" {
			t.Fatalf("event = %q", env.Event)
		}
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(WSHandler(hub, fakeVerifier{}, testLogger(), nil))
	defer server.Close()

	conn := dialWS(t, server, "uid:alice")
	waitForSessions(t, hub, "alice", 1)

	_ = conn.Close()
	waitForSessions(t, hub, "alice", 0)
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(WSHandler(hub, fakeVerifier{}, testLogger(), nil))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("dial without token must fail")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url+"?token=garbage", nil); err == nil {
		t.Fatalf("dial with bad token must fail")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}
}

func TestConcurrentDeliverToSlowSessions(t *testing.T) {
	hub := NewHub(testLogger())
	for i := 0; i < 100; i++ {
		s := &session{uid: "alice", send: make(chan []byte, 1)}
		s.send <- []byte(`{}`)
		hub.attach(s)
	}

	// Concurrent deliveries hold stale room snapshots while the full-buffer
	// branch drops and closes sessions; a send must never hit a closed
	// channel.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				hub.deliver("alice", []byte(`{"event":"auth:login","data":{"when":1}}`))
			}
		}()
	}
	wg.Wait()

	if n := hub.Sessions("alice"); n != 0 {
		t.Fatalf("expected every slow session dropped, %d remain", n)
	}
}

func TestDeliverRacesDisconnect(t *testing.T) {
	hub := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		s := &session{uid: "alice", send: make(chan []byte, 1)}
		hub.attach(s)

		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.detach(s)
			s.close()
		}()
		go func() {
			defer wg.Done()
			hub.deliver("alice", []byte(`{"event":"email:sent"}`))
		}()
	}
	wg.Wait()
}

func TestRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(WSHandler(hub, fakeVerifier{}, testLogger(), []string{"http://app.example.com"}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=uid:alice"

	headers := map[string][]string{"Origin": {"http://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, headers); err == nil {
		t.Fatalf("dial from unknown origin must fail")
	}

	headers = map[string][]string{"Origin": {"http://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, headers)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	_ = conn.Close()
}
