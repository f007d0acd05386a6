package room

import (
	"errors"
	"testing"
)

func TestParseClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    ClientCommand
		wantErr bool
	}{
		{"play", "pl 12.5", ClientCommand{Prefix: PrefixPlay, VideoTime: 12.5}, false},
		{"pause", "pa 0", ClientCommand{Prefix: PrefixPause, VideoTime: 0}, false},
		{"suspend", "sp 3.2", ClientCommand{Prefix: PrefixSuspend, VideoTime: 3.2}, false},
		{"unsuspend", "up 3.2", ClientCommand{Prefix: PrefixUnsuspend, VideoTime: 3.2}, false},
		{"change file", "cf 2", ClientCommand{Prefix: PrefixChangeFile, FileInd: 2}, false},
		{"unknown prefix", "xx 1", ClientCommand{}, true},
		{"malformed arg", "pl notanumber", ClientCommand{}, true},
		{"negative file index", "cf -1", ClientCommand{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientFrame(tt.frame)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClientFrame(%q) = nil error, want error", tt.frame)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientFrame(%q) unexpected error: %v", tt.frame, err)
			}
			if got != tt.want {
				t.Errorf("ParseClientFrame(%q) = %+v, want %+v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestParseClientFrameUnknownCommandWraps(t *testing.T) {
	_, err := ParseClientFrame("zz")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestEncodeStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindPlaying, "pl 5"},
		{KindPaused, "pa 5"},
		{KindSuspended, "sp 5"},
	}
	for _, tt := range tests {
		got := EncodeStatus(tt.kind, 5).Encode()
		if got != tt.want {
			t.Errorf("EncodeStatus(%v, 5).Encode() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestEncodeChangeFile(t *testing.T) {
	if got := EncodeChangeFile(7).Encode(); got != "cf 7" {
		t.Errorf("EncodeChangeFile(7).Encode() = %q, want %q", got, "cf 7")
	}
}

func TestEncodeUserConnectedIsJSON(t *testing.T) {
	got := EncodeUserConnected(User{ConnID: 1, DisplayName: "abe"}).Encode()
	want := `uc {"conn_id":1,"display_name":"abe"}`
	if got != want {
		t.Errorf("EncodeUserConnected().Encode() = %q, want %q", got, want)
	}
}

func TestEncodeUsersSnapshotEmpty(t *testing.T) {
	got := EncodeUsersSnapshot(nil).Encode()
	if got != "ua null" {
		t.Errorf("EncodeUsersSnapshot(nil).Encode() = %q, want %q", got, "ua null")
	}
}
