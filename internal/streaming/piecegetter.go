// Package streaming implements the Torrent Streamer half of the server: the
// Piece Getter, File Torrent Handler, and HTTP range response built on top
// of internal/torrent.
package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/torrent"
)

// ErrPieceHaveTimeout is returned when a piece never finishes downloading
// within the wait window.
var ErrPieceHaveTimeout = errors.New("streaming: timed out waiting for piece to download")

// ErrPieceReadTimeout is returned when a piece is downloaded but its bytes
// never arrive via the alert channel within the wait window.
var ErrPieceReadTimeout = errors.New("streaming: timed out waiting for piece read")

const (
	haveTimeout = 60 * time.Second
	readTimeout = 60 * time.Second

	havePollInterval = 50 * time.Millisecond
)

// PieceGetter serializes concurrent requests for the same torrent piece into
// a single underlying read. Two consumers requiring piece 7 at the same time
// both get the same buffer back, and the piece is only evicted once every
// requiring consumer has released it.
type PieceGetter struct {
	handle   torrent.Handle
	observer *torrent.AlertObserver

	mu           sync.Mutex
	pendingCount map[int]int
	pieceBuffer  map[int][]byte
	pieceErr     map[int]error           // set when the dispatched read failed synchronously
	waiters      map[int][]chan struct{} // signaled when pieceBuffer[id] or pieceErr[id] is set
	readInFlight map[int]bool            // true once ReadPiece has been dispatched for a piece

	metrics *metrics.Metrics // optional
}

// NewPieceGetter creates a PieceGetter over handle, using observer to learn
// about completed piece reads.
func NewPieceGetter(handle torrent.Handle, observer *torrent.AlertObserver) *PieceGetter {
	return NewPieceGetterWithMetrics(handle, observer, nil)
}

// NewPieceGetterWithMetrics is NewPieceGetter plus a Metrics instance to
// record wait durations and timeouts against.
func NewPieceGetterWithMetrics(handle torrent.Handle, observer *torrent.AlertObserver, m *metrics.Metrics) *PieceGetter {
	g := &PieceGetter{
		handle:       handle,
		observer:     observer,
		pendingCount: make(map[int]int),
		pieceBuffer:  make(map[int][]byte),
		pieceErr:     make(map[int]error),
		waiters:      make(map[int][]chan struct{}),
		readInFlight: make(map[int]bool),
		metrics:      m,
	}
	observer.AddListener(g.onAlert)
	return g
}

func (g *PieceGetter) onAlert(a torrent.ReadPieceAlert) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, wanted := g.pendingCount[a.PieceIndex]; !wanted {
		return
	}
	if a.Err != nil {
		return
	}
	g.pieceBuffer[a.PieceIndex] = a.Data
	for _, ch := range g.waiters[a.PieceIndex] {
		close(ch)
	}
	delete(g.waiters, a.PieceIndex)
}

// Get fetches the bytes of pieceID, requesting the swarm deliver it within
// roughly deadline. The require/release pair is balanced via defer so a
// cancelled context never leaks a pending-count entry.
func (g *PieceGetter) Get(ctx context.Context, pieceID int, deadline time.Duration) ([]byte, error) {
	start := time.Now()
	g.require(pieceID, deadline)
	defer g.release(pieceID)

	if err := g.waitHave(ctx, pieceID); err != nil {
		if g.metrics != nil && errors.Is(err, ErrPieceHaveTimeout) {
			g.metrics.PieceHaveTimeouts.Inc()
		}
		return nil, err
	}
	buf, err := g.waitRead(ctx, pieceID)
	if g.metrics != nil {
		if errors.Is(err, ErrPieceReadTimeout) {
			g.metrics.PieceReadTimeouts.Inc()
		}
		g.metrics.PieceWaitDuration.Observe(time.Since(start).Seconds())
	}
	return buf, err
}

func (g *PieceGetter) require(pieceID int, deadline time.Duration) {
	g.mu.Lock()
	g.pendingCount[pieceID]++
	g.mu.Unlock()

	g.handle.SetPieceDeadline(pieceID, deadline)
}

func (g *PieceGetter) release(pieceID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pendingCount[pieceID]--
	if g.pendingCount[pieceID] <= 0 {
		delete(g.pendingCount, pieceID)
		delete(g.pieceBuffer, pieceID)
		delete(g.pieceErr, pieceID)
		delete(g.waiters, pieceID)
		delete(g.readInFlight, pieceID)
	}
}

// failPiece records a synchronous read failure for pieceID and wakes every
// waiter blocked on it, mirroring onAlert's fan-out so a dispatch error
// fails fast instead of letting the other waiters sit out the full
// readTimeout for a read that already failed.
func (g *PieceGetter) failPiece(pieceID int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pieceErr[pieceID] = err
	for _, ch := range g.waiters[pieceID] {
		close(ch)
	}
	delete(g.waiters, pieceID)
}

func (g *PieceGetter) waitHave(ctx context.Context, pieceID int) error {
	if g.handle.HavePiece(pieceID) {
		return nil
	}

	deadline := time.Now().Add(haveTimeout)
	ticker := time.NewTicker(havePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if g.handle.HavePiece(pieceID) {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrPieceHaveTimeout
			}
		}
	}
}

func (g *PieceGetter) waitRead(ctx context.Context, pieceID int) ([]byte, error) {
	g.mu.Lock()
	if buf, ok := g.pieceBuffer[pieceID]; ok {
		g.mu.Unlock()
		return buf, nil
	}
	if err, ok := g.pieceErr[pieceID]; ok {
		g.mu.Unlock()
		return nil, err
	}
	ch := make(chan struct{})
	g.waiters[pieceID] = append(g.waiters[pieceID], ch)
	needsRead := !g.readInFlight[pieceID]
	if needsRead {
		g.readInFlight[pieceID] = true
	}
	g.mu.Unlock()

	// Only the first concurrent waiter for a piece dispatches the actual
	// read; everyone else shares its result via the waiters channel. A
	// synchronous failure here must wake those other waiters too, or they
	// sit out the full readTimeout for a read that already failed.
	if needsRead {
		if err := g.handle.ReadPiece(ctx, pieceID); err != nil {
			g.failPiece(pieceID, err)
			return nil, err
		}
	}

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch:
		g.mu.Lock()
		buf, err := g.pieceBuffer[pieceID], g.pieceErr[pieceID]
		g.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return buf, nil
	case <-timer.C:
		return nil, ErrPieceReadTimeout
	}
}
