package torrent

import (
	"testing"
	"time"

	"github.com/anacrolix/torrent/types"
)

func TestDeadlineToPriority(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want types.PiecePriority
	}{
		{"zero is most urgent", 0, types.PiecePriorityNow},
		{"negative is most urgent", -time.Second, types.PiecePriorityNow},
		{"urgent", time.Second, types.PiecePriorityNow},
		{"urgent boundary", 2 * time.Second, types.PiecePriorityNow},
		{"readahead", 10 * time.Second, types.PiecePriorityReadahead},
		{"readahead boundary", 15 * time.Second, types.PiecePriorityReadahead},
		{"normal", 30 * time.Second, types.PiecePriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deadlineToPriority(tt.d); got != tt.want {
				t.Errorf("deadlineToPriority(%v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestToAnacrolixPriority(t *testing.T) {
	tests := []struct {
		p    PiecePriority
		want types.PiecePriority
	}{
		{PriorityNone, types.PiecePriorityNone},
		{PriorityNormal, types.PiecePriorityNormal},
		{PriorityReadahead, types.PiecePriorityReadahead},
		{PriorityNow, types.PiecePriorityNow},
	}

	for _, tt := range tests {
		if got := toAnacrolixPriority(tt.p); got != tt.want {
			t.Errorf("toAnacrolixPriority(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
