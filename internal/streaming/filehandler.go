package streaming

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/torrent"
)

// FileHandler binds one (torrent, file index) pair and implements the
// streaming primitive IterPieces. On construction it lowers every piece in
// the torrent to no priority, then raises the first and last pieces of the
// bound file's range to the highest priority so the swarm starts fetching
// the file's endpoints immediately, and starts an Alert Observer to service
// piece reads.
type FileHandler struct {
	handle  torrent.Handle
	fileInd int

	begin, end int // file's piece range: [begin, end)

	getter   *PieceGetter
	observer *torrent.AlertObserver

	cancel context.CancelFunc
	once   sync.Once
}

// NewFileHandler binds h to fileInd and begins prioritizing its byte range.
func NewFileHandler(h torrent.Handle, fileInd int) *FileHandler {
	return NewFileHandlerWithMetrics(h, fileInd, nil)
}

// NewFileHandlerWithMetrics is NewFileHandler plus a Metrics instance passed
// through to the underlying PieceGetter.
func NewFileHandlerWithMetrics(h torrent.Handle, fileInd int, m *metrics.Metrics) *FileHandler {
	begin, end, err := h.FilePieceRange(fileInd)
	if err != nil {
		begin, end = 0, 0
	}

	h.SetPiecesPriority(0, h.NumPieces(), torrent.PriorityNone)
	if end > begin {
		h.SetPiecesPriority(begin, begin+1, torrent.PriorityNow)
		h.SetPiecesPriority(end-1, end, torrent.PriorityNow)
	}

	observer := torrent.NewAlertObserver(h)
	ctx, cancel := context.WithCancel(context.Background())
	go observer.Run(ctx)

	return &FileHandler{
		handle:   h,
		fileInd:  fileInd,
		begin:    begin,
		end:      end,
		getter:   NewPieceGetterWithMetrics(h, observer, m),
		observer: observer,
		cancel:   cancel,
	}
}

func (fh *FileHandler) FileIndex() int { return fh.fileInd }

// pieceOf maps a byte offset within the bound file to (piece index,
// intra-piece offset), using the torrent-absolute offset of the file.
func (fh *FileHandler) pieceOf(byteOffset int64) (pieceID int, intraOffset int64) {
	fileOffset, _ := fh.handle.FileOffset(fh.fileInd)
	abs := fileOffset + byteOffset
	pieceLen := fh.handle.PieceLength()
	if pieceLen == 0 {
		return 0, 0
	}
	return int(abs / pieceLen), abs % pieceLen
}

// IterPieces is the streaming primitive: it yields successive byte slices
// covering [byteStart, byteEnd) of the bound file, setting deadlines so
// pieces closer to byteStart arrive first. Boundary case: when byteEnd lands
// exactly on a piece boundary, the end piece is decremented to the previous
// piece (whose intra-piece end offset becomes its full size), since
// byteEnd is exclusive and piece_of(byteEnd) would otherwise point one
// piece too far with a zero intra-offset.
func (fh *FileHandler) IterPieces(ctx context.Context, byteStart, byteEnd int64) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if byteEnd <= byteStart {
			return
		}

		pieceStart, startOffset := fh.pieceOf(byteStart)
		pieceEnd, endOffset := fh.pieceOf(byteEnd)
		if endOffset == 0 {
			pieceEnd--
			endOffset = fh.handle.PieceSize(pieceEnd)
		}

		for p := pieceStart; p <= pieceEnd; p++ {
			fh.handle.SetPieceDeadline(p, time.Duration(p-pieceStart)*time.Second)
		}

		if pieceStart == pieceEnd {
			buf, err := fh.getter.Get(ctx, pieceStart, time.Duration(0))
			if err != nil {
				yield(nil, err)
				return
			}
			if startOffset > int64(len(buf)) {
				startOffset = int64(len(buf))
			}
			if endOffset > int64(len(buf)) {
				endOffset = int64(len(buf))
			}
			yield(buf[startOffset:endOffset], nil)
			return
		}

		first, err := fh.getter.Get(ctx, pieceStart, 0)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(first[startOffset:], nil) {
			return
		}

		for p := pieceStart + 1; p < pieceEnd; p++ {
			buf, err := fh.getter.Get(ctx, p, time.Duration(p-pieceStart)*time.Second)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(buf, nil) {
				return
			}
		}

		last, err := fh.getter.Get(ctx, pieceEnd, time.Duration(pieceEnd-pieceStart)*time.Second)
		if err != nil {
			yield(nil, err)
			return
		}
		if endOffset > int64(len(last)) {
			endOffset = int64(len(last))
		}
		yield(last[:endOffset], nil)
	}
}

// SetFileIndex atomically clears all deadlines and re-initializes
// prioritization for a new file index. The caller must discard the old
// FileHandler and use the returned one instead; in-flight IterPieces calls
// against the old handler are not affected.
func (fh *FileHandler) SetFileIndex(fileInd int) *FileHandler {
	fh.handle.ClearDeadlines()
	fh.Close()
	return NewFileHandler(fh.handle, fileInd)
}

// Close stops the alert observer loop bound to this handler and waits for it
// to actually exit before returning. It does not remove the underlying
// torrent.Handle. Waiting matters because SetFileIndex immediately starts a
// fresh AlertObserver on the same handle's shared alert channel: without the
// wait, the outgoing observer could still be mid-select and race the new one
// for the next alert, occasionally dropping it.
func (fh *FileHandler) Close() {
	fh.once.Do(func() {
		fh.cancel()
		fh.observer.Wait()
	})
}
