package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/onionwatch/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "onionwatch.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "newdir", "subdir", "onionwatch.db")
		s, err := Open(dbPath, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if s.Path() != dbPath {
			t.Errorf("Path() = %q", s.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing.db"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "onionwatch.db")
		s, err := Open(dbPath, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := s.UpsertLink(context.Background(), "http://a.onion/", "A"); err != nil {
			t.Fatal(err)
		}
		_ = s.Close()

		s, err = Open(dbPath, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer s.Close()

		link, err := s.GetLink(context.Background(), "http://a.onion/")
		if err != nil || link == nil || link.Title != "A" {
			t.Errorf("expected persisted link, got %+v, %v", link, err)
		}
	})
}

// TestUpsertLink tests link insertion and title updates.
func TestUpsertLink(t *testing.T) {
	t.Parallel()

	s := setupTestDB(t)
	ctx := context.Background()

	id1, err := s.UpsertLink(ctx, "http://a.onion/", "First")
	if err != nil {
		t.Fatalf("UpsertLink() error: %v", err)
	}
	id2, err := s.UpsertLink(ctx, "http://a.onion/", "")
	if err != nil {
		t.Fatalf("UpsertLink() error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same id, got %d and %d", id1, id2)
	}

	link, err := s.GetLink(ctx, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if link.Title != "First" {
		t.Errorf("empty title must not overwrite, got %q", link.Title)
	}
	if link.Status != StatusUnchecked {
		t.Errorf("new link status = %q, expected unchecked", link.Status)
	}
	if link.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if _, err := s.UpsertLink(ctx, "http://a.onion/", "Second"); err != nil {
		t.Fatal(err)
	}
	link, _ = s.GetLink(ctx, "http://a.onion/")
	if link.Title != "Second" {
		t.Errorf("Title = %q, expected Second", link.Title)
	}

	if _, err := s.UpsertLink(ctx, "", "x"); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}

	missing, err := s.GetLink(ctx, "http://missing.onion/")
	if err != nil || missing != nil {
		t.Errorf("expected nil link for missing url, got %+v, %v", missing, err)
	}
}

// TestRecord tests liveness persistence.
func TestRecord(t *testing.T) {
	t.Parallel()

	t.Run("alive then dead keeps last measurement", func(t *testing.T) {
		t.Parallel()

		s := setupTestDB(t)
		ctx := context.Background()

		id, err := s.UpsertLink(ctx, "http://a.onion/", "")
		if err != nil {
			t.Fatal(err)
		}
		checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := s.Record(ctx, model.LivenessRecord{
			TargetID:     id,
			URL:          "http://a.onion/",
			Status:       model.StatusAlive,
			StatusCode:   200,
			ResponseTime: 2 * time.Second,
			CheckedAt:    checked,
		}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}

		link, _ := s.GetLink(ctx, "http://a.onion/")
		if link.Status != StatusAlive || link.StatusCode != 200 || link.ResponseTime != 2 {
			t.Errorf("unexpected link after alive record %+v", link)
		}
		if !link.LastChecked.Equal(checked) {
			t.Errorf("LastChecked = %v, expected %v", link.LastChecked, checked)
		}

		if err := s.Record(ctx, model.LivenessRecord{
			TargetID:    id,
			URL:         "http://a.onion/",
			Status:      model.StatusDead,
			Reason:      "timeout: context deadline exceeded",
			FailureKind: model.FailureTimeout,
			CheckedAt:   checked.Add(time.Hour),
		}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}

		link, _ = s.GetLink(ctx, "http://a.onion/")
		if link.Status != StatusDead {
			t.Errorf("Status = %q, expected dead", link.Status)
		}
		if link.StatusCode != 200 || link.ResponseTime != 2 {
			t.Errorf("dead record must keep the last measurement, got %+v", link)
		}

		history, err := s.History(ctx, "http://a.onion/", 0)
		if err != nil {
			t.Fatalf("History() error: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 history rows, got %d", len(history))
		}
		if history[0].Status != model.StatusDead || history[0].FailureKind != model.FailureTimeout {
			t.Errorf("expected newest first, got %+v", history[0])
		}
		if history[1].ResponseTime != 2*time.Second || history[1].TargetID != id {
			t.Errorf("unexpected alive history row %+v", history[1])
		}

		limited, _ := s.History(ctx, "http://a.onion/", 1)
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d rows", len(limited))
		}
	})

	t.Run("unknown target is created by URL", func(t *testing.T) {
		t.Parallel()

		s := setupTestDB(t)
		ctx := context.Background()

		err := s.Record(ctx, model.LivenessRecord{
			TargetID: 999,
			URL:      "http://new.onion/",
			Status:   model.StatusDead,
			Reason:   "HTTP 404",
		})
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		link, _ := s.GetLink(ctx, "http://new.onion/")
		if link == nil || link.Status != StatusDead || link.LastChecked.IsZero() {
			t.Errorf("expected dead link, got %+v", link)
		}
	})

	t.Run("record without identity", func(t *testing.T) {
		t.Parallel()

		s := setupTestDB(t)
		if err := s.Record(context.Background(), model.LivenessRecord{}); !errors.Is(err, ErrEmptyURL) {
			t.Errorf("expected ErrEmptyURL, got %v", err)
		}
	})
}

// TestListLinks tests status filtering.
func TestListLinks(t *testing.T) {
	t.Parallel()

	s := setupTestDB(t)
	ctx := context.Background()

	urls := []string{"http://a.onion/", "http://b.onion/", "http://c.onion/"}
	for _, u := range urls {
		if _, err := s.UpsertLink(ctx, u, ""); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.Record(ctx, model.LivenessRecord{URL: urls[0], Status: model.StatusAlive, StatusCode: 200})
	_ = s.Record(ctx, model.LivenessRecord{URL: urls[1], Status: model.StatusDead, Reason: "HTTP 500"})

	testCases := []struct {
		status string
		want   []string
	}{
		{status: "", want: urls},
		{status: StatusAlive, want: urls[:1]},
		{status: StatusDead, want: urls[1:2]},
	}
	for _, tc := range testCases {
		links, err := s.ListLinks(ctx, tc.status)
		if err != nil {
			t.Fatalf("ListLinks(%q) error: %v", tc.status, err)
		}
		if len(links) != len(tc.want) {
			t.Fatalf("ListLinks(%q) returned %d links, expected %d", tc.status, len(links), len(tc.want))
		}
		for i, l := range links {
			if l.URL != tc.want[i] {
				t.Errorf("ListLinks(%q)[%d] = %q, expected %q", tc.status, i, l.URL, tc.want[i])
			}
			if l.Target().ID != l.ID || l.Target().URL != l.URL {
				t.Errorf("Target() mismatch for %+v", l)
			}
		}
	}

	unchecked, err := s.ListUnchecked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unchecked) != 1 || unchecked[0].URL != urls[2] {
		t.Errorf("ListUnchecked() = %+v", unchecked)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	want := Stats{Links: 3, Alive: 1, Dead: 1, Unchecked: 1, Checks: 2}
	if stats != want {
		t.Errorf("Stats() = %+v, expected %+v", stats, want)
	}
}

// TestInvestigations tests investigation storage.
func TestInvestigations(t *testing.T) {
	t.Parallel()

	s := setupTestDB(t)
	ctx := context.Background()

	inv := model.NewInvestigation("http://a.onion/")
	inv.Success = true
	inv.Emails = []string{"admin@example.com"}
	inv.HasServerStatus = true
	inv.ServerStatusContent = "Apache Server Status"

	if err := s.SaveInvestigation(ctx, inv); err != nil {
		t.Fatalf("SaveInvestigation() error: %v", err)
	}

	got, err := s.GetInvestigation(ctx, "http://a.onion/")
	if err != nil {
		t.Fatalf("GetInvestigation() error: %v", err)
	}
	if got == nil || !got.Success || len(got.Emails) != 1 || !got.HasServerStatus {
		t.Fatalf("unexpected investigation %+v", got)
	}

	inv.Emails = append(inv.Emails, "ops@example.com")
	if err := s.SaveInvestigation(ctx, inv); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetInvestigation(ctx, "http://a.onion/")
	if got.TotalFindings() != 2 {
		t.Errorf("expected replaced result with 2 findings, got %d", got.TotalFindings())
	}

	stats, _ := s.Stats(ctx)
	if stats.Investigations != 1 {
		t.Errorf("expected 1 investigation row, got %d", stats.Investigations)
	}

	missing, err := s.GetInvestigation(ctx, "http://missing.onion/")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing, got %+v, %v", missing, err)
	}

	if err := s.SaveInvestigation(ctx, nil); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

// TestParseTimestamp tests the timestamp formats SQLite may return.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		zero  bool
	}{
		{"2026-01-02 15:04:05", false},
		{"2026-01-02T15:04:05Z", false},
		{"2026-01-02T15:04:05", false},
		{"2026-01-02T15:04:05.123456789Z", false},
		{"2026-01-02T15:04:05+09:00", false},
		{"not a time", true},
		{"", true},
	}
	for _, tc := range testCases {
		if got := parseTimestamp(tc.input); got.IsZero() != tc.zero {
			t.Errorf("parseTimestamp(%q) = %v", tc.input, got)
		}
	}
}
