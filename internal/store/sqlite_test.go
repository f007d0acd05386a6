package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)

	rec := RoomRecord{
		RoomID:     "room-1",
		Name:       "movie night",
		SourceKind: SourceLink,
		SourceData: "https://example.com/movie.mp4",
	}
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := s.Get("room-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != rec {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestCreateDuplicateNameReturnsErrDuplicateName(t *testing.T) {
	s := openTestStore(t)

	rec1 := RoomRecord{RoomID: "room-1", Name: "same name", SourceKind: SourceLink, SourceData: "a"}
	rec2 := RoomRecord{RoomID: "room-2", Name: "same name", SourceKind: SourceLink, SourceData: "b"}

	if err := s.Create(rec1); err != nil {
		t.Fatalf("Create(rec1) error: %v", err)
	}
	if err := s.Create(rec2); err != ErrDuplicateName {
		t.Fatalf("Create(rec2) error = %v, want ErrDuplicateName", err)
	}
}

func TestUpdateWatchWritesThrough(t *testing.T) {
	s := openTestStore(t)
	rec := RoomRecord{RoomID: "room-1", Name: "n", SourceKind: SourceTorrent, SourceData: "/tmp/x.torrent"}
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := s.UpdateWatch("room-1", 2, 1234); err != nil {
		t.Fatalf("UpdateWatch() error: %v", err)
	}

	got, err := s.Get("room-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.LastFileInd != 2 || got.LastWatchTS != 1234 {
		t.Errorf("Get() = %+v, want LastFileInd=2 LastWatchTS=1234", got)
	}
}

func TestUpdateWatchMissingRoomReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateWatch("nope", 1, 1); err != ErrNotFound {
		t.Fatalf("UpdateWatch() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	rec := RoomRecord{RoomID: "room-1", Name: "n", SourceKind: SourceLink, SourceData: "a"}
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := s.Delete("room-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get("room-1"); err != ErrNotFound {
		t.Fatalf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestListReturnsAllRecords(t *testing.T) {
	s := openTestStore(t)
	s.Create(RoomRecord{RoomID: "r1", Name: "a", SourceKind: SourceLink, SourceData: "a"})
	s.Create(RoomRecord{RoomID: "r2", Name: "b", SourceKind: SourceLink, SourceData: "b"})

	recs, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(recs))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	s1, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("first OpenSQLite() error: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("second OpenSQLite() error: %v", err)
	}
	defer s2.Close()
}
