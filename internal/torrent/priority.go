package torrent

import (
	"time"

	"github.com/anacrolix/torrent/types"
)

// deadlineToPriority buckets a requested deadline into one of three of
// anacrolix/torrent's priority tiers. libtorrent's
// set_piece_deadline takes an arbitrary deadline in milliseconds, where a
// deadline of 0 means the piece at the read cursor itself: the most urgent
// piece there is, not one to skip. anacrolix only exposes a handful of
// discrete priorities, so anything due "now" (including non-positive
// deadlines) maps to PiecePriorityNow, anything due soon maps to Readahead,
// and everything else gets PiecePriorityNormal, which still puts it ahead
// of pieces left at PiecePriorityNone. Grounded on the teacher's
// Prioritizer, which performs the same kind of urgent/readahead/normal
// bucketing by byte distance from the read cursor instead of by a time
// budget.
func deadlineToPriority(d time.Duration) types.PiecePriority {
	switch {
	case d <= 2*time.Second:
		return types.PiecePriorityNow
	case d <= 15*time.Second:
		return types.PiecePriorityReadahead
	default:
		return types.PiecePriorityNormal
	}
}

func toAnacrolixPriority(p PiecePriority) types.PiecePriority {
	switch p {
	case PriorityNow:
		return types.PiecePriorityNow
	case PriorityReadahead:
		return types.PiecePriorityReadahead
	case PriorityNormal:
		return types.PiecePriorityNormal
	default:
		return types.PiecePriorityNone
	}
}
