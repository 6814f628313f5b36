package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/wapcast-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastSeenUnknownUser(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LastSeen(context.Background(), "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPresenceSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RecordOnline(ctx, "u1", "c1", base); err != nil {
		t.Fatalf("record online c1: %v", err)
	}
	if err := s.RecordOnline(ctx, "u1", "c2", base.Add(time.Minute)); err != nil {
		t.Fatalf("record online c2: %v", err)
	}

	p, err := s.LastSeen(ctx, "u1")
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if !p.Online || p.Sessions != 2 {
		t.Fatalf("expected two open sessions, got %+v", p)
	}
	if !p.LastOnlineAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected last online %v", p.LastOnlineAt)
	}
	if p.LastOfflineAt != nil {
		t.Fatalf("expected no offline time yet, got %v", p.LastOfflineAt)
	}

	if err := s.RecordOffline(ctx, "u1", "c1", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("record offline c1: %v", err)
	}
	// closing twice is harmless
	if err := s.RecordOffline(ctx, "u1", "c1", base.Add(3*time.Minute)); err != nil {
		t.Fatalf("record offline c1 again: %v", err)
	}

	p, err = s.LastSeen(ctx, "u1")
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if !p.Online || p.Sessions != 1 {
		t.Fatalf("expected one open session, got %+v", p)
	}
	if p.LastOfflineAt == nil || !p.LastOfflineAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected last offline %v", p.LastOfflineAt)
	}

	if err := s.RecordOffline(ctx, "u1", "c2", base.Add(4*time.Minute)); err != nil {
		t.Fatalf("record offline c2: %v", err)
	}
	p, err = s.LastSeen(ctx, "u1")
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if p.Online || p.Sessions != 0 {
		t.Fatalf("expected user offline, got %+v", p)
	}
}

func TestCloseOpenSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, conn := range []string{"c1", "c2"} {
		if err := s.RecordOnline(ctx, "u1", conn, now); err != nil {
			t.Fatalf("record online: %v", err)
		}
	}
	if err := s.RecordOnline(ctx, "u2", "c3", now); err != nil {
		t.Fatalf("record online: %v", err)
	}

	n, err := s.CloseOpenSessions(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("close open sessions: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 sessions closed, got %d", n)
	}
	for _, user := range []string{"u1", "u2"} {
		p, err := s.LastSeen(ctx, user)
		if err != nil {
			t.Fatalf("last seen %s: %v", user, err)
		}
		if p.Online {
			t.Fatalf("%s should be offline", user)
		}
	}
}

func TestNewAppliesSchemaOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.RecordOnline(context.Background(), "u1", "c1", time.Now()); err != nil {
		t.Fatalf("record online: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopening must not fail on existing tables
	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.LastSeen(context.Background(), "u1"); err != nil {
		t.Fatalf("last seen after reopen: %v", err)
	}
}

func TestNewWithSetupPropagatesError(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(*sql.DB) error { return errors.New("boom") })
	if err == nil {
		t.Fatalf("expected setup error")
	}
}
