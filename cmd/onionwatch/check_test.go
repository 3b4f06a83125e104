package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onionwatch/internal/database"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/onionwatch/internal/progress"
	"github.com/nao1215/onionwatch/internal/tor"
)

const testOnionURL = "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/"

// TestNewCheckCmd tests the check command flags.
func TestNewCheckCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCmd()

	tests := []struct {
		name     string
		defValue string
	}{
		{name: "list", defValue: ""},
		{name: "from-db", defValue: "false"},
		{name: "unchecked", defValue: "false"},
		{name: "concurrency", defValue: "20"},
		{name: "delay", defValue: "500ms"},
		{name: "timeout", defValue: "30s"},
		{name: "rate-limit", defValue: "0"},
		{name: "gateway", defValue: "false"},
		{name: "no-save", defValue: "false"},
		{name: "json", defValue: "false"},
		{name: "markdown", defValue: "false"},
		{name: "output", defValue: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestRunCheckCmdRejectsBadInput tests errors returned before any network use.
func TestRunCheckCmdRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "no targets",
			args:    []string{"--no-save"},
			wantErr: "no targets provided",
		},
		{
			name:    "non-http scheme",
			args:    []string{"--no-save", "ftp://example.com/"},
			wantErr: "invalid target",
		},
		{
			name:    "bad onion checksum",
			args:    []string{"--no-save", "http://bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.onion/"},
			wantErr: "invalid target",
		},
		{
			name:    "conflicting report formats",
			args:    []string{"--no-save", "--json", "--markdown", testOnionURL},
			wantErr: "configuration error",
		},
		{
			name:    "missing list file",
			args:    []string{"--no-save", "--list", "/nonexistent/targets.txt"},
			wantErr: "failed to open target list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			cmd.SetArgs(append([]string{"check", "--config", writeEmptyConfig(t)}, tt.args...))
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".onionwatch")
	writeConfig(t, path, "{}\n")
	return path
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReadTargetList(t *testing.T) {
	t.Parallel()

	input := `# monitored sites
http://one.example/

  http://two.example/
# http://commented.example/
`
	got, err := readTargetList(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"http://one.example/", "http://two.example/"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollectURLs(t *testing.T) {
	t.Parallel()

	list := filepath.Join(t.TempDir(), "targets.txt")
	if err := os.WriteFile(list, []byte("http://b.example/\nhttp://a.example/\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := collectURLs([]string{"http://a.example/", "http://c.example/"}, list)
	if err != nil {
		t.Fatal(err)
	}
	want := "http://a.example/ http://c.example/ http://b.example/"
	if strings.Join(got, " ") != want {
		t.Errorf("got %v, want %s", got, want)
	}
}

func TestValidateTargetURLs(t *testing.T) {
	t.Parallel()

	if err := validateTargetURLs([]string{testOnionURL, "https://example.com/"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := validateTargetURLs([]string{testOnionURL, "http://expyuzz4wqqyqhjn.onion/"})
	if !errors.Is(err, tor.ErrV2AddressDeprecated) {
		t.Errorf("expected v2 error, got %v", err)
	}
}

func TestBuildTargets(t *testing.T) {
	t.Parallel()

	t.Run("without store", func(t *testing.T) {
		t.Parallel()

		targets, err := buildTargets(context.Background(), nil, []string{"http://a.example/", "http://b.example/"}, checkOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if len(targets) != 2 || targets[0].ID != 1 || targets[1].ID != 2 {
			t.Errorf("unexpected targets %+v", targets)
		}
	})

	t.Run("with store and from-db", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store, err := database.Open(filepath.Join(t.TempDir(), "test.db"), database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = store.Close() })

		storedID, err := store.UpsertLink(ctx, "http://stored.example/", "Stored")
		if err != nil {
			t.Fatal(err)
		}
		checkedID, err := store.UpsertLink(ctx, "http://checked.example/", "")
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Record(ctx, model.LivenessRecord{
			TargetID:  checkedID,
			URL:       "http://checked.example/",
			Status:    model.StatusAlive,
			CheckedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}

		targets, err := buildTargets(ctx, store, []string{"http://stored.example/", "http://new.example/"}, checkOptions{fromDB: true, save: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(targets) != 3 {
			t.Fatalf("expected 3 targets without duplicates, got %+v", targets)
		}
		if targets[0].ID != storedID {
			t.Errorf("expected stored link ID %d, got %d", storedID, targets[0].ID)
		}
		if targets[2].URL != "http://checked.example/" {
			t.Errorf("expected stored link appended last, got %+v", targets[2])
		}

		unchecked, err := buildTargets(ctx, store, nil, checkOptions{fromDB: true, unchecked: true, save: true})
		if err != nil {
			t.Fatal(err)
		}
		for _, target := range unchecked {
			if target.ID == checkedID {
				t.Errorf("checked link must be skipped with --unchecked: %+v", unchecked)
			}
		}
	})

	t.Run("from-db without saving leaves the store untouched", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store, err := database.Open(filepath.Join(t.TempDir(), "test.db"), database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = store.Close() })

		storedID, err := store.UpsertLink(ctx, "http://stored.example/", "")
		if err != nil {
			t.Fatal(err)
		}
		otherID, err := store.UpsertLink(ctx, "http://other.example/", "")
		if err != nil {
			t.Fatal(err)
		}

		targets, err := buildTargets(ctx, store, []string{"http://stored.example/", "http://new.example/"}, checkOptions{fromDB: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(targets) != 3 {
			t.Fatalf("expected 3 targets, got %+v", targets)
		}
		if targets[0].ID != storedID {
			t.Errorf("stored URL must keep ID %d, got %d", storedID, targets[0].ID)
		}
		if targets[1].ID <= max(storedID, otherID) {
			t.Errorf("new URL ID %d collides with stored IDs", targets[1].ID)
		}
		if targets[2].ID != otherID {
			t.Errorf("expected stored link %d appended, got %+v", otherID, targets[2])
		}

		links, err := store.ListLinks(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(links) != 2 {
			t.Errorf("--no-save must not add links, store has %+v", links)
		}
	})
}

func TestProgressPrinter(t *testing.T) {
	t.Parallel()

	tracker := progress.NewTracker(time.Minute)
	tracker.Begin("run", 2)

	var buf bytes.Buffer
	observe := progressPrinter(tracker, "run", &buf)
	observe(model.LivenessRecord{
		TargetID:     1,
		URL:          "http://a.example/",
		Status:       model.StatusAlive,
		StatusCode:   200,
		ResponseTime: 1500 * time.Millisecond,
	})
	observe(model.LivenessRecord{
		TargetID: 2,
		URL:      "http://b.example/",
		Status:   model.StatusDead,
		Reason:   "HTTP 503",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "[1/2  50%] alive=1") || !strings.Contains(lines[0], "200 1.50s") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[2/2 100%] alive=1") || !strings.Contains(lines[1], "HTTP 503") {
		t.Errorf("unexpected second line %q", lines[1])
	}

	snap, ok := tracker.Get("run")
	if !ok || snap.Checked != 2 || snap.AliveCount() != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
