package store

import (
	"context"
	"testing"
	"time"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := s.Set(ctx, KeyGameMode, models.GameModeBlackMarket); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err := s.Get(ctx, KeyGameMode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != models.GameModeBlackMarket {
		t.Errorf("expected %q, got %q", models.GameModeBlackMarket, value)
	}

	// Overwrite replaces
	if err := s.Set(ctx, KeyGameMode, models.GameModeDetective); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _ = s.Get(ctx, KeyGameMode)
	if value != models.GameModeDetective {
		t.Errorf("expected overwritten value, got %q", value)
	}

	if err := s.Delete(ctx, KeyGameMode); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, KeyGameMode); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is fine
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, KeyDeviceID, "dev-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, KeySessionMode, models.SessionModeStandalone); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, KeySessionMode); err != nil {
		t.Fatal(err)
	}

	value, err := s.Get(ctx, KeyDeviceID)
	if err != nil || value != "dev-1" {
		t.Errorf("unrelated key disturbed: value=%q err=%v", value, err)
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := &models.SessionRecord{
		ID:        "20260314-093000-abcd1234",
		StartTime: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Mode:      models.GameModeBlackMarket,
		Teams: map[string]*models.Team{
			"alpha": {ID: "alpha", BaseScore: 10, BonusPoints: 20, Score: 30, TokensScanned: 3},
		},
		TeamOrder: []string{"alpha"},
		Transactions: []models.Transaction{
			{TokenID: "gov1", TeamID: "alpha", Mode: models.GameModeBlackMarket, Points: 5},
		},
	}

	if err := s.SaveSessionRecord(ctx, record); err != nil {
		t.Fatalf("SaveSessionRecord failed: %v", err)
	}

	loaded, err := s.LoadSessionRecord(ctx)
	if err != nil {
		t.Fatalf("LoadSessionRecord failed: %v", err)
	}
	if loaded.ID != record.ID {
		t.Errorf("expected session %q, got %q", record.ID, loaded.ID)
	}
	if len(loaded.Transactions) != 1 || len(loaded.Teams) != 1 {
		t.Errorf("round trip lost data: %d transactions, %d teams",
			len(loaded.Transactions), len(loaded.Teams))
	}
	if loaded.Teams["alpha"].Score != 30 {
		t.Errorf("expected score 30, got %d", loaded.Teams["alpha"].Score)
	}

	if err := s.DeleteSessionRecord(ctx); err != nil {
		t.Fatalf("DeleteSessionRecord failed: %v", err)
	}
	if _, err := s.LoadSessionRecord(ctx); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLoadSessionRecord_Corrupt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, KeySession, "{truncated"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := s.LoadSessionRecord(ctx)
	if err == nil {
		t.Fatal("expected error for corrupt record")
	}
	if !errors.IsKind(err, errors.ErrPersistence) {
		t.Errorf("expected persistence error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
