package room

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Connection wraps one viewer's websocket, identified by a conn_id that is
// monotonically increasing within the room's lifetime.
type Connection struct {
	ID   int
	User User

	mu   sync.Mutex
	conn *websocket.Conn
}

// Send writes a text frame to the connection. Failures never propagate out:
// a broken socket only signals this connection's death, discovered properly
// by the room's read loop when its next receive fails.
func (c *Connection) Send(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		slog.Debug("room: send failed", "conn_id", c.ID, "err", err)
	}
}

// ReadFrame blocks for the next text frame from the viewer.
func (c *Connection) ReadFrame() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Connection) Close() {
	c.conn.Close()
}

// ConnectionManager maintains conn_id -> Connection for one room.
type ConnectionManager struct {
	mu     sync.RWMutex
	conns  map[int]*Connection
	nextID int
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[int]*Connection)}
}

// Add accepts a websocket connection, allocating the next conn_id.
func (m *ConnectionManager) Add(ws *websocket.Conn, user User) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	c := &Connection{ID: id, User: user, conn: ws}
	c.User.ConnID = id
	m.conns[id] = c
	return c
}

// Remove unregisters a connection. Absent ids are tolerated.
func (m *ConnectionManager) Remove(connID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

// SendTo sends frame to a single recipient. Silently no-ops if the
// connection is gone.
func (m *ConnectionManager) SendTo(connID int, frame string) {
	m.mu.RLock()
	c, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.Send(frame)
}

// Broadcast fans frame out to every connection except those in exclude,
// concurrently, and waits for every send to finish. This keeps the order
// any single client observes broadcasts in equal to the order the room
// applied the underlying state transitions — the caller serializes calls
// to Broadcast under the room mutation lock.
func (m *ConnectionManager) Broadcast(frame string, exclude ...int) {
	excluded := make(map[int]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.conns))
	for id, c := range m.conns {
		if _, skip := excluded[id]; skip {
			continue
		}
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, c := range targets {
		go func(c *Connection) {
			defer wg.Done()
			c.Send(frame)
		}(c)
	}
	wg.Wait()
}

// ConnCount returns the number of currently registered connections.
func (m *ConnectionManager) ConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// UsersSnapshot returns the current viewer roster.
func (m *ConnectionManager) UsersSnapshot() []User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.conns))
	for _, c := range m.conns {
		users = append(users, c.User)
	}
	return users
}
