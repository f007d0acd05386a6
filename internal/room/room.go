package room

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/store"
)

// Room is the in-memory aggregate for one loaded room: its playback
// status, its connected viewers, and its video source. Mutations are
// serialized by mu, the room mutation lock, matching spec §4.4 — fan-out
// may happen while mu is held so that the order of broadcast frames any
// single client observes equals the order of state transitions.
type Room struct {
	ID          string
	DisplayName string
	ImageURL    string

	mu     sync.Mutex
	status *Status
	conns  *ConnectionManager
	source VideoSource

	store       store.Store
	metrics     *metrics.Metrics // optional
	lastLeaveTS time.Time
}

// New constructs a Room already wired to its video source and starting
// status, as loaded from a RoomRecord. The status starts Paused at video
// time 0 on rec.LastFileInd; rec.LastWatchTS seeds the idle clock and is not
// used as a playback position.
func New(rec store.RoomRecord, source VideoSource, st store.Store) *Room {
	return NewWithMetrics(rec, source, st, nil)
}

// NewWithMetrics is New plus a Metrics instance to record frame counters
// against. Passing nil disables instrumentation.
func NewWithMetrics(rec store.RoomRecord, source VideoSource, st store.Store, m *metrics.Metrics) *Room {
	return &Room{
		ID:          rec.RoomID,
		DisplayName: rec.Name,
		ImageURL:    rec.ImageURL,
		status:      NewPaused(0, rec.LastFileInd),
		conns:       NewConnectionManager(),
		source:      source,
		store:       st,
		metrics:     m,
		lastLeaveTS: time.Unix(rec.LastWatchTS, 0),
	}
}

// AddConnection registers ws as a new viewer. Per spec §4.4, the new
// connection immediately suspends playback (resume target Paused) until it
// catches up, then the room broadcasts its current status and the roster.
func (r *Room) AddConnection(ws *websocket.Conn, user User) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.conns.Add(ws, user)
	r.status.SuspendForJoin(c.ID)

	r.conns.SendTo(c.ID, EncodeUsersSnapshot(r.conns.UsersSnapshot()).Encode())
	r.conns.Broadcast(EncodeUserConnected(c.User).Encode(), c.ID)
	r.broadcastStatus()

	return c
}

// RemoveConnection unregisters conn_id, clears any suspend it was holding,
// forces Paused, broadcasts, and records the departure time used by the
// inactivity sweep.
func (r *Room) RemoveConnection(connID int) {
	r.mu.Lock()

	r.conns.Remove(connID)
	r.status.RemoveSuspendBy(connID)
	r.status.SetPause()
	r.lastLeaveTS = time.Now()

	r.conns.Broadcast(EncodeUserDisconnected(connID).Encode())
	r.broadcastStatus()
	fileInd := r.status.CurrentFileInd()

	r.mu.Unlock()
	r.persist(fileInd)
}

// HandleFrame parses and applies a client wire frame under the mutation
// lock, then broadcasts the resulting status (and, for cf, the accepted
// file index) to every connection.
func (r *Room) HandleFrame(frame string, by int) error {
	cmd, err := ParseClientFrame(frame)
	if err != nil {
		slog.Debug("room: rejected frame", "room_id", r.ID, "conn_id", by, "err", err)
		if r.metrics != nil {
			reason := "parse"
			if errors.Is(err, ErrUnknownCommand) {
				reason = "unknown"
			}
			r.metrics.RoomFramesRejected.WithLabelValues(reason).Inc()
		}
		return err
	}

	r.mu.Lock()

	if r.metrics != nil {
		r.metrics.RoomFramesHandled.WithLabelValues(string(cmd.Prefix)).Inc()
	}

	switch cmd.Prefix {
	case PrefixPlay:
		r.status.SetPlay()
	case PrefixPause:
		r.status.SetPause()
	case PrefixSuspend:
		r.status.AddSuspendBy(by)
	case PrefixUnsuspend:
		r.status.RemoveSuspendBy(by)
	case PrefixChangeFile:
		if r.source.SetFileIndex(cmd.FileInd) {
			r.status.SetCurrentFileInd(cmd.FileInd)
			r.conns.Broadcast(EncodeChangeFile(cmd.FileInd).Encode())
		}
	}

	r.broadcastStatus()
	fileInd := r.status.CurrentFileInd()

	r.mu.Unlock()
	r.persist(fileInd)
	return nil
}

// broadcastStatus must be called with mu held.
func (r *Room) broadcastStatus() {
	kind, videoTime := r.status.ToServerCommand()
	r.conns.Broadcast(EncodeStatus(kind, videoTime).Encode())
}

// persist writes through the durable last_file_ind and, as last_watch_ts,
// the current Unix time on every accepted command; the playback position
// itself is not persisted. Callers capture fileInd while mu is held and call this
// after releasing it, so a synchronous store write never serializes other
// viewers' actions on this room behind disk I/O.
func (r *Room) persist(fileInd int) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateWatch(r.ID, fileInd, time.Now().Unix()); err != nil {
		slog.Error("room: failed to persist watch state", "room_id", r.ID, "err", err)
	}
}

// ConnCount reports the number of attached viewers.
func (r *Room) ConnCount() int {
	return r.conns.ConnCount()
}

// IdleSince reports when the room last lost a connection (or, for a room
// that has had none since loading, its record's LastWatchTS). Only
// meaningful when ConnCount() == 0.
func (r *Room) IdleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLeaveTS
}

// ServeFile delegates byte-range serving to the room's video source for the
// currently selected file, or the requested fileInd if it differs.
func (r *Room) ServeFile(c *gin.Context, fileInd int) error {
	return r.source.GetResponse(c, fileInd)
}

// Cleanup releases the room's video source (torrent handle, scratch data).
func (r *Room) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source.Cleanup()
}
