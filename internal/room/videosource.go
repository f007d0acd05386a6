package room

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/shapedtime/syncstream/internal/config"
	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/streaming"
	"github.com/shapedtime/syncstream/internal/torrent"
)

// SourceKind identifies which VideoSource implementation backs a room.
type SourceKind string

const (
	SourceLink    SourceKind = "link"
	SourceTorrent SourceKind = "torrent"
)

// VideoSource is a capability set rather than a deep class hierarchy: link
// and torrent sources share only what the room actually needs from them.
type VideoSource interface {
	Kind() SourceKind
	// AvailableFiles lists the playable entries the source can serve.
	AvailableFiles() []string
	// SetFileIndex validates and accepts a new file index. Returns false if
	// out of range.
	SetFileIndex(fi int) bool
	// GetResponse serves or redirects to the bytes of the current file,
	// honoring any Range header on c.Request.
	GetResponse(c *gin.Context, fileInd int) error
	// Cleanup releases any resources (torrent handle, scratch directory).
	Cleanup()
}

// linkSource serves an HTTP(S) redirect to an externally hosted file.
type linkSource struct {
	url string
}

// NewLinkSource builds a VideoSource for an absolute URL.
func NewLinkSource(url string) VideoSource {
	return &linkSource{url: url}
}

func (s *linkSource) Kind() SourceKind          { return SourceLink }
func (s *linkSource) AvailableFiles() []string  { return []string{s.url} }
func (s *linkSource) SetFileIndex(fi int) bool  { return fi == 0 }
func (s *linkSource) Cleanup()                  {}

func (s *linkSource) GetResponse(c *gin.Context, fileInd int) error {
	if fileInd != 0 {
		return fmt.Errorf("link source: invalid file index %d", fileInd)
	}
	c.Redirect(http.StatusSeeOther, s.url)
	return nil
}

// torrentSource streams bytes out of an embedded BitTorrent swarm. Its
// downloaded data lives in a directory scoped to the room by the
// torrent.Manager (see torrent.Manager.AddFromFile); Cleanup tells the
// handle to delete it.
//
// fh is read and replaced by concurrent goroutines: GetResponse runs on a
// per-request gin goroutine, and Room.HandleFrame's "cf" path calls
// SetFileIndex under the room's lock, not this source's. mu serializes the
// two so one request can never observe a FileHandler another request just
// closed.
type torrentSource struct {
	handle  torrent.Handle
	metrics *metrics.Metrics // optional

	mu sync.Mutex
	fh *streaming.FileHandler // nil until a file is selected
}

// NewTorrentSource loads torrentPath via mgr, which scopes its downloaded
// data to roomID.
func NewTorrentSource(ctx context.Context, mgr torrent.Manager, cfg *config.TorrentConfig, roomID, torrentPath string) (VideoSource, error) {
	return NewTorrentSourceWithMetrics(ctx, mgr, cfg, roomID, torrentPath, nil)
}

// NewTorrentSourceWithMetrics is NewTorrentSource plus a Metrics instance
// passed through to every FileHandler it constructs.
func NewTorrentSourceWithMetrics(ctx context.Context, mgr torrent.Manager, cfg *config.TorrentConfig, roomID, torrentPath string, m *metrics.Metrics) (VideoSource, error) {
	h, err := mgr.AddFromFile(ctx, roomID, torrentPath)
	if err != nil {
		return nil, err
	}

	if m != nil {
		m.StreamingOpenFiles.Inc()
	}

	return &torrentSource{handle: h, metrics: m}, nil
}

func (s *torrentSource) Kind() SourceKind { return SourceTorrent }

func (s *torrentSource) AvailableFiles() []string {
	files := make([]string, s.handle.NumFiles())
	for i := range files {
		name, err := s.handle.FileName(i)
		if err != nil {
			continue
		}
		files[i] = name
	}
	return files
}

func (s *torrentSource) SetFileIndex(fi int) bool {
	if fi < 0 || fi >= s.handle.NumFiles() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fh != nil {
		s.fh.Close()
	}
	s.fh = streaming.NewFileHandlerWithMetrics(s.handle, fi, s.metrics)
	return true
}

func (s *torrentSource) GetResponse(c *gin.Context, fileInd int) error {
	s.mu.Lock()
	if s.fh == nil || s.fh.FileIndex() != fileInd {
		s.mu.Unlock()
		if !s.SetFileIndex(fileInd) {
			return fmt.Errorf("torrent source: invalid file index %d", fileInd)
		}
		s.mu.Lock()
	}
	fh := s.fh
	s.mu.Unlock()

	size, err := s.handle.FileSize(fileInd)
	if err != nil {
		return err
	}
	return streaming.ServeRange(c, fh, size)
}

func (s *torrentSource) Cleanup() {
	s.mu.Lock()
	if s.fh != nil {
		s.fh.Close()
	}
	s.mu.Unlock()
	s.handle.Remove(true)
	if s.metrics != nil {
		s.metrics.StreamingOpenFiles.Dec()
	}
}
