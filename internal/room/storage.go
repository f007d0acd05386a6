package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shapedtime/syncstream/internal/config"
	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/store"
	"github.com/shapedtime/syncstream/internal/torrent"
)

const sweepInterval = 60 * time.Second

// Storage keyed by room_id, lazily loading Rooms from the durable store on
// first access and evicting them on inactivity. Access is guarded by a
// storage-wide lock only for the load/insert step; subsequent room-level
// operations use the per-room mutation lock.
type Storage struct {
	store   store.Store
	torrent torrent.Manager
	cfg     *config.TorrentConfig
	ttl     time.Duration
	metrics *metrics.Metrics // optional

	mu    sync.Mutex
	rooms map[string]*Room

	stop chan struct{}
	done chan struct{}
}

// NewStorage constructs a Storage over st, using mgr/cfg to build
// torrent-backed video sources on demand.
func NewStorage(st store.Store, mgr torrent.Manager, cfg *config.TorrentConfig, inactivityPeriod time.Duration) *Storage {
	return NewStorageWithMetrics(st, mgr, cfg, inactivityPeriod, nil)
}

// NewStorageWithMetrics is NewStorage plus a Metrics instance passed through
// to every Room it constructs.
func NewStorageWithMetrics(st store.Store, mgr torrent.Manager, cfg *config.TorrentConfig, inactivityPeriod time.Duration, m *metrics.Metrics) *Storage {
	return &Storage{
		store:   st,
		torrent: mgr,
		cfg:     cfg,
		ttl:     inactivityPeriod,
		metrics: m,
		rooms:   make(map[string]*Room),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Get returns the Room for roomID, loading it from the store if not already
// in memory.
func (s *Storage) Get(ctx context.Context, roomID string) (*Room, error) {
	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return r, nil
	}
	// Hold the storage lock through the load so two concurrent first
	// accesses for the same room can't both construct and insert it.
	defer s.mu.Unlock()

	rec, err := s.store.Get(roomID)
	if err != nil {
		return nil, err
	}

	source, err := s.buildSource(ctx, rec)
	if err != nil {
		return nil, err
	}

	r := NewWithMetrics(rec, source, s.store, s.metrics)
	s.rooms[roomID] = r
	return r, nil
}

func (s *Storage) buildSource(ctx context.Context, rec store.RoomRecord) (VideoSource, error) {
	switch rec.SourceKind {
	case store.SourceLink:
		return NewLinkSource(rec.SourceData), nil
	case store.SourceTorrent:
		return NewTorrentSourceWithMetrics(ctx, s.torrent, s.cfg, rec.RoomID, rec.SourceData, s.metrics)
	default:
		return NewLinkSource(rec.SourceData), nil
	}
}

// IsLoaded reports whether roomID currently has a Room resident in memory.
func (s *Storage) IsLoaded(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Stats reports aggregate counts across every currently loaded room, for
// the Prometheus collector.
func (s *Storage) Stats() (loadedRooms int, totalConns int) {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	for _, r := range rooms {
		totalConns += r.ConnCount()
	}
	return len(rooms), totalConns
}

// DeleteRoom evicts and permanently removes roomID, cleaning up its video
// source and deleting its RoomRecord.
func (s *Storage) DeleteRoom(roomID string) error {
	s.evict(roomID)
	return s.store.Delete(roomID)
}

// Evict removes roomID from memory and cleans up its video source, without
// touching the durable record. The next Get reloads it from the store,
// picking up any changes made to the record in the meantime.
func (s *Storage) Evict(roomID string) {
	s.evict(roomID)
}

// evict removes roomID from memory and cleans up its video source, without
// touching the durable record.
func (s *Storage) evict(roomID string) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()

	if ok {
		r.Cleanup()
	}
}

// Run starts the background inactivity sweeper. It returns once Shutdown is
// called.
func (s *Storage) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Storage) sweep() {
	s.mu.Lock()
	candidates := make([]string, 0)
	for id, r := range s.rooms {
		if r.ConnCount() == 0 && time.Since(r.IdleSince()) >= s.ttl {
			candidates = append(candidates, id)
		}
	}
	s.mu.Unlock()

	for _, id := range candidates {
		slog.Info("room: evicting inactive room", "room_id", id)
		s.evict(id)
	}
}

// Shutdown stops the sweeper and cleans up every loaded room (full_cleanup).
func (s *Storage) Shutdown(ctx context.Context) {
	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.evict(id)
	}
}
