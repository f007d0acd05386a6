package torrent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"github.com/shapedtime/syncstream/internal/config"
)

// alertBufferSize bounds how many completed piece reads can queue up before
// publish starts dropping further alerts. Sized generously since a room
// rarely has more than a handful of in-flight reads (one per viewer plus
// readahead).
const alertBufferSize = 64

type handle struct {
	t      *torrent.Torrent
	client *torrent.Client

	activity *ActivityManager // optional; pauses network when nobody reads

	// dataDir and dataStorage back this torrent's pieces, isolated per room.
	// dataStorage is closed and dataDir is removed (if deleteData) on Remove.
	dataDir     string
	dataStorage storage.ClientImplCloser

	alerts chan ReadPieceAlert

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// newHandle wraps an anacrolix torrent.Torrent, blocking until its metadata
// is available.
func newHandle(ctx context.Context, client *torrent.Client, t *torrent.Torrent, am *ActivityManager, dataDir string, dataStorage storage.ClientImplCloser) (*handle, error) {
	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		t.Drop()
		return nil, ErrMetadataTimeout
	}

	h := &handle{
		t:           t,
		client:      client,
		activity:    am,
		dataDir:     dataDir,
		dataStorage: dataStorage,
		alerts:      make(chan ReadPieceAlert, alertBufferSize),
	}
	if am != nil {
		am.Register(h.InfoHash(), t)
	}
	return h, nil
}

func (h *handle) InfoHash() string {
	return h.t.InfoHash().HexString()
}

func (h *handle) NumPieces() int {
	return h.t.NumPieces()
}

func (h *handle) PieceLength() int64 {
	info := h.t.Info()
	if info == nil {
		return 0
	}
	return info.PieceLength
}

func (h *handle) PieceSize(i int) int64 {
	return h.t.Piece(i).Info().Length()
}

func (h *handle) HavePiece(i int) bool {
	return h.t.Piece(i).State().Complete
}

func (h *handle) NumFiles() int {
	return len(h.t.Files())
}

func (h *handle) file(i int) (*torrent.File, error) {
	files := h.t.Files()
	if i < 0 || i >= len(files) {
		return nil, ErrFileNotFound
	}
	return files[i], nil
}

func (h *handle) FileName(i int) (string, error) {
	f, err := h.file(i)
	if err != nil {
		return "", err
	}
	return f.DisplayPath(), nil
}

func (h *handle) FilePath(i int) (string, error) {
	f, err := h.file(i)
	if err != nil {
		return "", err
	}
	return f.Path(), nil
}

func (h *handle) FileSize(i int) (int64, error) {
	f, err := h.file(i)
	if err != nil {
		return 0, err
	}
	return f.Length(), nil
}

func (h *handle) FilePieceRange(i int) (begin, end int, err error) {
	f, ferr := h.file(i)
	if ferr != nil {
		return 0, 0, ferr
	}
	return f.BeginPieceIndex(), f.EndPieceIndex(), nil
}

func (h *handle) FileOffset(i int) (int64, error) {
	f, err := h.file(i)
	if err != nil {
		return 0, err
	}
	return f.Offset(), nil
}

func (h *handle) SetPiecesPriority(start, end int, p PiecePriority) {
	ap := toAnacrolixPriority(p)
	for i := start; i < end; i++ {
		h.t.Piece(i).SetPriority(ap)
	}
}

func (h *handle) SetPieceDeadline(i int, d time.Duration) {
	h.t.Piece(i).SetPriority(deadlineToPriority(d))
}

func (h *handle) ClearDeadlines() {
	h.SetPiecesPriority(0, h.NumPieces(), PriorityNone)
}

// ReadPiece reads piece i on its own goroutine and publishes the result on
// Alerts(). Each call opens its own torrent-level reader seeked to the
// piece's absolute offset: pieces are torrent-wide, not scoped to a single
// file, so the read must go through the Torrent rather than a File. Multiple
// concurrent ReadPiece calls are safe; anacrolix/torrent supports any number
// of independent readers against the same Torrent.
//
// A watcher goroutine closes the reader early if ctx is cancelled before the
// read completes, so a disconnected or seeking viewer doesn't leave the
// blocking io.ReadFull (and its Reader) running for a piece nobody still
// wants, possibly for as long as the swarm takes to produce it.
func (h *handle) ReadPiece(ctx context.Context, i int) error {
	pieceLen := h.PieceLength()
	size := h.PieceSize(i)
	if pieceLen == 0 || size == 0 {
		return fmt.Errorf("torrent: piece %d has zero length", i)
	}

	if h.activity != nil {
		h.activity.MarkActive(h.InfoHash())
	}

	r := h.t.NewReader()
	r.SetResponsive()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		defer r.Close()

		offset := int64(i) * pieceLen
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			h.publish(ReadPieceAlert{PieceIndex: i, Err: err})
			return
		}

		buf := make([]byte, size)
		_, err := io.ReadFull(r, buf)
		if err != nil {
			h.publish(ReadPieceAlert{PieceIndex: i, Err: err})
			return
		}

		h.publish(ReadPieceAlert{PieceIndex: i, Data: buf})
	}()

	return nil
}

func (h *handle) publish(a ReadPieceAlert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.alerts <- a:
	default:
		// Slow consumer: drop rather than block the read goroutine
		// indefinitely. The waiting caller eventually fails with its read
		// timeout.
		slog.Warn("torrent: alert channel full, dropping piece alert",
			"info_hash", h.InfoHash(), "piece", a.PieceIndex)
	}
}

func (h *handle) Alerts() <-chan ReadPieceAlert {
	return h.alerts
}

func (h *handle) Remove(deleteData bool) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.alerts)
	h.mu.Unlock()

	if h.activity != nil {
		h.activity.Unregister(h.InfoHash())
	}

	h.t.Drop()
	if h.dataStorage != nil {
		if err := h.dataStorage.Close(); err != nil {
			slog.Warn("torrent: error closing per-room storage", "info_hash", h.InfoHash(), "error", err)
		}
	}
	if deleteData && h.dataDir != "" {
		if err := os.RemoveAll(h.dataDir); err != nil {
			slog.Warn("torrent: failed to remove room data directory",
				"info_hash", h.InfoHash(), "dir", h.dataDir, "error", err)
		}
	}
	return nil
}

// manager implements Manager on top of a single *torrent.Client.
type manager struct {
	client   *torrent.Client
	cfg      *config.TorrentConfig
	activity *ActivityManager // optional

	mu      sync.Mutex
	handles map[string]*handle
}

// NewManager creates a Manager backed by client.
func NewManager(client *torrent.Client, cfg *config.TorrentConfig) Manager {
	return NewManagerWithActivity(client, cfg, nil)
}

// NewManagerWithActivity is NewManager plus an ActivityManager that pauses a
// torrent's network activity once IdleTimeout passes with no piece reads,
// and resumes it on the next read. Idle rooms stay resident (the eviction
// sweep in internal/room.Storage handles that) but stop consuming bandwidth.
func NewManagerWithActivity(client *torrent.Client, cfg *config.TorrentConfig, am *ActivityManager) Manager {
	return &manager{
		client:   client,
		cfg:      cfg,
		activity: am,
		handles:  make(map[string]*handle),
	}
}

func (m *manager) AddFromFile(ctx context.Context, roomID, path string) (Handle, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTorrent, err)
	}

	dataDir := filepath.Join(m.cfg.SavePath, roomID)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("torrent: creating room data dir: %w", err)
	}
	dataStorage := storage.NewFile(dataDir)

	t, _, err := m.client.AddTorrentSpec(&torrent.TorrentSpec{
		InfoBytes: mi.InfoBytes,
		Trackers:  mi.UpvertedAnnounceList(),
		Storage:   dataStorage,
	})
	if err != nil {
		dataStorage.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidTorrent, err)
	}

	addCtx, cancel := context.WithTimeout(ctx, m.cfg.AddTimeoutDuration())
	defer cancel()

	h, err := newHandle(addCtx, m.client, t, m.activity, dataDir, dataStorage)
	if err != nil {
		dataStorage.Close()
		return nil, err
	}
	if h.NumFiles() == 0 {
		h.Remove(true)
		return nil, ErrNoFiles
	}

	m.mu.Lock()
	m.handles[h.InfoHash()] = h
	m.mu.Unlock()

	slog.Info("torrent loaded", "info_hash", h.InfoHash(), "files", h.NumFiles())

	return h, nil
}

func (m *manager) Get(infoHash string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[infoHash]
	if !ok {
		return nil, false
	}
	return h, true
}

func (m *manager) Remove(infoHash string, deleteData bool) error {
	m.mu.Lock()
	h, ok := m.handles[infoHash]
	delete(m.handles, infoHash)
	m.mu.Unlock()

	if !ok {
		return ErrTorrentNotFound
	}
	return h.Remove(deleteData)
}

func (m *manager) Close() error {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[string]*handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.Remove(false)
	}
	if m.activity != nil {
		m.activity.Stop()
	}
	m.client.Close()
	return nil
}
