package streaming

import (
	"context"
	"testing"
)

func TestIterPiecesWithinSinglePiece(t *testing.T) {
	h := newFakeHandle(0)
	fh := NewFileHandler(h, 0)
	defer fh.Close()

	var got []byte
	for buf, err := range fh.IterPieces(context.Background(), 2, 5) {
		if err != nil {
			t.Fatalf("IterPieces error: %v", err)
		}
		got = append(got, buf...)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bytes, want 3 (byteEnd-byteStart)", len(got))
	}
}

// A requested end that lands exactly on a piece boundary must not emit an
// empty trailing piece: piece length 8, byteEnd 16 means byte_of(16) would
// naively be piece 2 offset 0, which IterPieces must fold back into the
// last byte of piece 1 instead.
func TestIterPiecesEndOnPieceBoundaryNoEmptyTail(t *testing.T) {
	h := newFakeHandle(0)
	fh := NewFileHandler(h, 0)
	defer fh.Close()

	var chunks [][]byte
	for buf, err := range fh.IterPieces(context.Background(), 0, 16) {
		if err != nil {
			t.Fatalf("IterPieces error: %v", err)
		}
		chunks = append(chunks, append([]byte(nil), buf...))
	}

	var total int
	for _, c := range chunks {
		if len(c) == 0 {
			t.Errorf("IterPieces yielded an empty chunk at a piece boundary")
		}
		total += len(c)
	}
	if total != 16 {
		t.Errorf("total bytes = %d, want 16", total)
	}
}

func TestIterPiecesSpansMultiplePieces(t *testing.T) {
	h := newFakeHandle(0)
	fh := NewFileHandler(h, 0)
	defer fh.Close()

	var total int
	for buf, err := range fh.IterPieces(context.Background(), 4, 12) {
		if err != nil {
			t.Fatalf("IterPieces error: %v", err)
		}
		total += len(buf)
	}
	if total != 8 {
		t.Errorf("total bytes = %d, want 8 (byteEnd-byteStart across piece boundary)", total)
	}
}
