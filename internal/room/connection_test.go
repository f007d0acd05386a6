package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair spins up a one-shot websocket server and returns both ends: the
// server-side *websocket.Conn (the one ConnectionManager registers, and
// through which Broadcast writes) and the client-side conn a test reads
// from to observe what the server sent.
func dialPair(t *testing.T) (serverConn, clientConn *websocket.Conn, cleanup func()) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade failed: %v", err)
			return
		}
		connCh <- c
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	cc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("client dial failed: %v", err)
	}

	sc := <-connCh
	return sc, cc, func() {
		cc.Close()
		sc.Close()
		srv.Close()
	}
}

func TestConnectionManagerAddRemove(t *testing.T) {
	conn, _, cleanup := dialPair(t)
	defer cleanup()

	m := NewConnectionManager()
	c := m.Add(conn, User{DisplayName: "abe"})

	if m.ConnCount() != 1 {
		t.Fatalf("ConnCount() = %v, want 1", m.ConnCount())
	}
	if c.User.ConnID != c.ID {
		t.Errorf("User.ConnID = %v, want %v (assigned ConnID)", c.User.ConnID, c.ID)
	}

	m.Remove(c.ID)
	if m.ConnCount() != 0 {
		t.Fatalf("ConnCount() = %v, want 0 after Remove", m.ConnCount())
	}
}

func TestConnectionManagerBroadcastExcludesSender(t *testing.T) {
	connA, clientA, cleanupA := dialPair(t)
	defer cleanupA()
	connB, clientB, cleanupB := dialPair(t)
	defer cleanupB()

	m := NewConnectionManager()
	a := m.Add(connA, User{DisplayName: "a"})
	_ = m.Add(connB, User{DisplayName: "b"})

	m.Broadcast("pl 5", a.ID)

	clientB.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := clientB.ReadMessage()
	if err != nil {
		t.Fatalf("expected broadcast frame on B, got error: %v", err)
	}
	if string(data) != "pl 5" {
		t.Errorf("B received %q, want %q", data, "pl 5")
	}

	clientA.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := clientA.ReadMessage(); err == nil {
		t.Errorf("expected no broadcast frame on A (sender excluded), but got one")
	}
}

func TestConnectionManagerRemoveToleratesAbsentID(t *testing.T) {
	m := NewConnectionManager()
	m.Remove(999) // must not panic
}
