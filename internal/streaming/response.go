package streaming

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// byteRange is an inclusive [start, end] byte range as parsed from a Range
// header (HTTP ranges are inclusive on both ends; IterPieces takes a
// half-open end, so callers add one when invoking it).
type byteRange struct {
	start, end int64 // inclusive
}

// parseRangeHeader parses a "bytes=a-b,c-d" header against a file of the
// given size. No pack library exposes byte-range parsing standalone (only
// net/http's unexported internals in fs.go do), so this is hand-rolled
// against RFC 7233's grammar.
func parseRangeHeader(header string, size int64) ([]byteRange, error) {
	const p = "bytes="
	if !strings.HasPrefix(header, p) {
		return nil, fmt.Errorf("streaming: unsupported range unit")
	}
	spec := strings.TrimPrefix(header, p)

	var ranges []byteRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			return nil, fmt.Errorf("streaming: malformed range %q", part)
		}

		startStr, endStr := part[:dash], part[dash+1:]

		var start, end int64
		switch {
		case startStr == "" && endStr == "":
			return nil, fmt.Errorf("streaming: empty range")
		case startStr == "":
			// suffix range: last N bytes
			n, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, err
			}
			if n > size {
				n = size
			}
			start = size - n
			end = size - 1
		default:
			s, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil {
				return nil, err
			}
			start = s
			if endStr == "" {
				end = size - 1
			} else {
				e, err := strconv.ParseInt(endStr, 10, 64)
				if err != nil {
					return nil, err
				}
				end = e
			}
		}

		if start < 0 || start > end || start >= size {
			return nil, fmt.Errorf("streaming: range out of bounds")
		}
		if end >= size {
			end = size - 1
		}
		ranges = append(ranges, byteRange{start: start, end: end})
	}

	return ranges, nil
}

// ServeRange implements the three HTTP response shapes spec'd for range
// requests over a torrent-backed file: plain 200, single 206, and multipart
// 206. The body in every case is produced by fh.IterPieces, so bytes are
// fetched from the swarm only as they are written to the response.
func ServeRange(c *gin.Context, fh *FileHandler, fileSize int64) error {
	// c.Request.Context() is already cancelled by net/http when the
	// underlying connection closes, which is the disconnect watcher the
	// original polling server implements explicitly — Go's server does it
	// for us, and IterPieces' PieceGetter.Get calls unwind via ctx.Err().
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		return serveFull(ctx, c, fh, fileSize)
	}

	ranges, err := parseRangeHeader(rangeHeader, fileSize)
	if err != nil {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if len(ranges) == 1 {
		return serveSingleRange(ctx, c, fh, ranges[0], fileSize)
	}
	return serveMultipartRange(ctx, c, fh, ranges, fileSize)
}

func serveFull(ctx context.Context, c *gin.Context, fh *FileHandler, fileSize int64) error {
	c.Status(http.StatusOK)
	c.Header("Content-Length", strconv.FormatInt(fileSize, 10))
	c.Header("Accept-Ranges", "bytes")
	return writePieces(ctx, c, fh, 0, fileSize)
}

func serveSingleRange(ctx context.Context, c *gin.Context, fh *FileHandler, r byteRange, fileSize int64) error {
	c.Status(http.StatusPartialContent)
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, fileSize))
	c.Header("Content-Length", strconv.FormatInt(r.end-r.start+1, 10))
	c.Header("Accept-Ranges", "bytes")
	return writePieces(ctx, c, fh, r.start, r.end+1)
}

func serveMultipartRange(ctx context.Context, c *gin.Context, fh *FileHandler, ranges []byteRange, fileSize int64) error {
	boundary, err := randomHexBoundary()
	if err != nil {
		return err
	}

	c.Status(http.StatusPartialContent)
	c.Header("Content-Type", "multipart/byteranges; boundary="+boundary)

	w := c.Writer
	for _, r := range ranges {
		part := fmt.Sprintf("--%s\r\nContent-Type: application/octet-stream\r\nContent-Range: bytes %d-%d/%d\r\n\r\n",
			boundary, r.start, r.end, fileSize)
		if _, err := w.WriteString(part); err != nil {
			return err
		}

		if err := writePieces(ctx, c, fh, r.start, r.end+1); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}

	_, err = w.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return err
}

// writePieces streams fh.IterPieces(byteStart, byteEnd) to the response,
// flushing as it goes so bytes reach the client as soon as they are
// available rather than buffering the whole range in memory.
func writePieces(ctx context.Context, c *gin.Context, fh *FileHandler, byteStart, byteEnd int64) error {
	w := c.Writer
	for buf, err := range fh.IterPieces(ctx, byteStart, byteEnd) {
		if err != nil {
			return err
		}
		if _, werr := w.Write(buf); werr != nil {
			return werr
		}
		w.Flush()
	}
	return ctx.Err()
}

// randomHexBoundary returns a 13-byte-hex nonce, matching the original
// server's token_hex(13) multipart boundary.
func randomHexBoundary() (string, error) {
	b := make([]byte, 13)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
