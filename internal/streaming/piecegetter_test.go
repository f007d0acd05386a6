package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shapedtime/syncstream/internal/torrent"
)

// fakeHandle is a minimal torrent.Handle double. Every piece is 8 bytes and
// already downloaded; readDelay simulates the time a real read takes so
// concurrent callers actually race.
type fakeHandle struct {
	readDelay  time.Duration
	reads      int32 // count of ReadPiece dispatches, for dedup assertions
	alerts     chan torrent.ReadPieceAlert
	pieceBytes []byte
}

func newFakeHandle(readDelay time.Duration) *fakeHandle {
	return &fakeHandle{
		readDelay:  readDelay,
		alerts:     make(chan torrent.ReadPieceAlert, 16),
		pieceBytes: []byte("piece123"),
	}
}

func (h *fakeHandle) InfoHash() string   { return "fake" }
func (h *fakeHandle) NumPieces() int     { return 4 }
func (h *fakeHandle) PieceLength() int64 { return 8 }
func (h *fakeHandle) PieceSize(i int) int64 { return 8 }
func (h *fakeHandle) HavePiece(i int) bool  { return true }

func (h *fakeHandle) NumFiles() int                               { return 1 }
func (h *fakeHandle) FileName(i int) (string, error)               { return "file0", nil }
func (h *fakeHandle) FilePath(i int) (string, error)               { return "file0", nil }
func (h *fakeHandle) FileSize(i int) (int64, error)                { return 32, nil }
func (h *fakeHandle) FilePieceRange(i int) (int, int, error)       { return 0, 4, nil }
func (h *fakeHandle) FileOffset(i int) (int64, error)              { return 0, nil }

func (h *fakeHandle) SetPiecesPriority(start, end int, p torrent.PiecePriority) {}
func (h *fakeHandle) SetPieceDeadline(i int, d time.Duration)                   {}
func (h *fakeHandle) ClearDeadlines()                                          {}

func (h *fakeHandle) ReadPiece(ctx context.Context, i int) error {
	atomic.AddInt32(&h.reads, 1)
	go func() {
		if h.readDelay > 0 {
			time.Sleep(h.readDelay)
		}
		h.alerts <- torrent.ReadPieceAlert{PieceIndex: i, Data: h.pieceBytes}
	}()
	return nil
}

func (h *fakeHandle) Alerts() <-chan torrent.ReadPieceAlert { return h.alerts }
func (h *fakeHandle) Remove(deleteData bool) error          { return nil }

func newTestGetter(h *fakeHandle) (*PieceGetter, context.CancelFunc) {
	observer := torrent.NewAlertObserver(h)
	ctx, cancel := context.WithCancel(context.Background())
	go observer.Run(ctx)
	return NewPieceGetter(h, observer), cancel
}

func TestPieceGetterGetReturnsData(t *testing.T) {
	h := newFakeHandle(0)
	g, cancel := newTestGetter(h)
	defer cancel()

	buf, err := g.Get(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(buf) != "piece123" {
		t.Errorf("Get() = %q, want %q", buf, "piece123")
	}
}

// Two concurrent consumers of the same piece must share one underlying
// read: only one ReadPiece dispatch for piece 0, even though both Get
// calls are in flight at once.
func TestPieceGetterConcurrentGetsShareOneRead(t *testing.T) {
	h := newFakeHandle(30 * time.Millisecond)
	g, cancel := newTestGetter(h)
	defer cancel()

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			buf, err := g.Get(context.Background(), 0, time.Second)
			if err != nil {
				t.Errorf("Get() error: %v", err)
				return
			}
			results[idx] = buf
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&h.reads); got != 1 {
		t.Errorf("ReadPiece dispatched %d times, want exactly 1 for two concurrent waiters", got)
	}
	if string(results[0]) != "piece123" || string(results[1]) != "piece123" {
		t.Errorf("both waiters must observe the same piece bytes, got %q and %q", results[0], results[1])
	}
}

// Once every requiring consumer releases a piece, its bookkeeping must be
// cleared so a later Get dispatches a fresh read rather than reusing stale
// in-flight state.
func TestPieceGetterReleaseClearsStateForNextRead(t *testing.T) {
	h := newFakeHandle(0)
	g, cancel := newTestGetter(h)
	defer cancel()

	if _, err := g.Get(context.Background(), 0, time.Second); err != nil {
		t.Fatalf("first Get() error: %v", err)
	}
	if _, err := g.Get(context.Background(), 0, time.Second); err != nil {
		t.Fatalf("second Get() error: %v", err)
	}

	if got := atomic.LoadInt32(&h.reads); got != 2 {
		t.Errorf("ReadPiece dispatched %d times across two sequential Gets, want 2", got)
	}
}

func TestPieceGetterContextCancellation(t *testing.T) {
	h := newFakeHandle(time.Hour) // never completes within the test
	g, cancel := newTestGetter(h)
	defer cancel()

	ctx, cancelGet := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelGet()

	if _, err := g.Get(ctx, 0, time.Second); err == nil {
		t.Fatal("Get() with a cancelled context returned nil error")
	}
}
