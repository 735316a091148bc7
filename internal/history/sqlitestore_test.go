package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteAppendAndListOrdersMostRecentFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call_history.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	first := Record{CallID: "1", RemoteID: "alice", Direction: DirectionOutgoing, Outcome: "completed", StartTS: time.Unix(100, 0).UTC()}
	second := Record{CallID: "2", RemoteID: "bob", Direction: DirectionIncoming, Outcome: "missed", StartTS: time.Unix(200, 0).UTC()}

	if err := s.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].CallID != "2" || got[1].CallID != "1" {
		t.Fatalf("List() = %+v, want [2, 1]", got)
	}
}

func TestSQLiteOpenCreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "call_history.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("List() on fresh database = %+v, want empty", got)
	}
}

func TestSQLiteAppendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call_history.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	if err := s.Append(Record{CallID: "1", RemoteID: "alice", Outcome: "completed", StartTS: time.Unix(1, 0).UTC()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen OpenSQLiteStore: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].CallID != "1" {
		t.Fatalf("List() after reopen = %+v, want [1]", got)
	}
}

func TestSQLiteCloseOnNilIsSafe(t *testing.T) {
	var s *SQLiteStore
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil store: %v", err)
	}
}
