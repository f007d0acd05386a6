package torrent

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrTorrentNotFound = errors.New("torrent not found")
	ErrMetadataTimeout = errors.New("timeout waiting for torrent metadata")
	ErrInvalidTorrent  = errors.New("invalid .torrent file")
	ErrNoFiles         = errors.New("torrent contains no files")
	ErrFileNotFound    = errors.New("file index out of range")
	ErrPieceTimeout    = errors.New("timeout waiting for piece")
)

// PiecePriority mirrors the handful of urgency tiers a room's streaming
// response can ask the swarm for. It deliberately has far fewer values than
// libtorrent's deadline-in-seconds knob: anacrolix/torrent only exposes a
// small fixed set of piece priorities, so deadlines get bucketed into these
// at the boundary (see priority.go).
type PiecePriority int

const (
	PriorityNone PiecePriority = iota
	PriorityNormal
	PriorityReadahead
	PriorityNow
)

// ReadPieceAlert is pushed onto a Handle's Alerts channel once a requested
// piece's bytes have actually been read off disk/network. This stands in for
// libtorrent's alert-polling model (pop_alerts/read_piece_alert): anacrolix's
// API has no alert system, so Handle simulates one with a worker goroutine
// and a channel (see alertobserver.go).
type ReadPieceAlert struct {
	PieceIndex int
	Data       []byte
	Err        error
}

// Handle is the narrow view of an open torrent that the streaming layer
// needs: piece geometry, priority control, and asynchronous piece reads. It
// is the Go-idiomatic replacement for the Python original's combination of
// Torrent, AlertObserver and PieceGetter — Handle owns piece I/O and alert
// delivery, while internal/streaming.PieceGetter (built on top of it) owns
// the require/wait/release bookkeeping.
type Handle interface {
	// InfoHash identifies the torrent.
	InfoHash() string

	// NumPieces returns the total piece count.
	NumPieces() int
	// PieceLength returns the size in bytes of a regular (non-final) piece.
	PieceLength() int64
	// PieceSize returns the actual size of piece i (the final piece of a
	// torrent is usually shorter than PieceLength).
	PieceSize(i int) int64
	// HavePiece reports whether piece i is already fully downloaded and
	// verified.
	HavePiece(i int) bool

	// NumFiles returns the number of files in the torrent.
	NumFiles() int
	// FileName returns the display name of file i.
	FileName(i int) (string, error)
	// FilePath returns the on-disk path file i will be written to once
	// complete.
	FilePath(i int) (string, error)
	// FileSize returns the length in bytes of file i.
	FileSize(i int) (int64, error)
	// FilePieceRange returns the begin (inclusive) and end (exclusive) piece
	// indices spanned by file i.
	FilePieceRange(i int) (begin, end int, err error)
	// FileOffset returns the byte offset of file i within the torrent.
	FileOffset(i int) (int64, error)

	// SetPiecesPriority sets the same priority on every piece in [start, end).
	SetPiecesPriority(start, end int, p PiecePriority)
	// SetPieceDeadline asks the swarm to prioritize piece i so it arrives
	// within roughly d. A zero or negative d means the piece is needed right
	// now (the read cursor sits on it), which maps to the most urgent tier,
	// not to clearing the deadline.
	SetPieceDeadline(i int, d time.Duration)
	// ClearDeadlines removes all outstanding per-piece deadlines, dropping
	// every piece back to PriorityNone. Used when a viewer jumps to a new
	// file index and the old prioritization is no longer relevant.
	ClearDeadlines()

	// ReadPiece requests an asynchronous read of piece i. The result is
	// delivered on Alerts() as a ReadPieceAlert with the same PieceIndex.
	// ReadPiece does not block; it returns once the request has been queued,
	// not once the data is available.
	ReadPiece(ctx context.Context, i int) error

	// Alerts returns the channel ReadPiece results are delivered on. The
	// channel is shared across all callers of a given Handle, matching the
	// Python original's single AlertObserver per torrent.
	Alerts() <-chan ReadPieceAlert

	// Remove tears down the torrent. If deleteData is true, downloaded data
	// on disk is also removed.
	Remove(deleteData bool) error
}

// Manager loads and tracks Handles, one per active room's video source.
type Manager interface {
	// AddFromFile loads a torrent described by the .torrent file at path and
	// blocks until its metadata (piece layout, file list) is available or
	// ctx is cancelled. roomID names the room the torrent belongs to: its
	// downloaded pieces are written under a directory scoped to roomID, so
	// Remove(true) can delete exactly that room's data.
	AddFromFile(ctx context.Context, roomID, path string) (Handle, error)

	// Get returns the Handle for an already-loaded torrent.
	Get(infoHash string) (Handle, bool)

	// Remove removes a torrent from the manager and the underlying client.
	Remove(infoHash string, deleteData bool) error

	// Close shuts down the manager and its underlying torrent client.
	Close() error
}
