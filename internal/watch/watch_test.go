package watch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRequiresCallbacks(t *testing.T) {
	if _, err := New(t.TempDir(), Config{}); err == nil {
		t.Error("expected error without callbacks")
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	cfg := Config{Match: func(string) bool { return true }, OnChange: func(string) {}}
	if _, err := New(filepath.Join(t.TempDir(), "missing"), cfg); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestWatchesRootAndSubdirectories(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"conf", ".git", "node_modules"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	w, err := New(root, Config{Match: func(string) bool { return true }, OnChange: func(string) {}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	list := w.WatchList()
	if len(list) != 2 {
		t.Fatalf("WatchList = %v, want root and conf", list)
	}
	for _, p := range list {
		if strings.Contains(p, ".git") || strings.Contains(p, "node_modules") {
			t.Errorf("unexpected watch %s", p)
		}
	}
}

func TestReportsMatchingWrites(t *testing.T) {
	root := t.TempDir()
	changed := make(chan string, 4)

	w, err := New(root, Config{
		Match:    func(p string) bool { return filepath.Base(p) == "nats.conf" },
		OnChange: func(p string) { changed <- p },
		Delay:    20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(root, "nats.conf")
	if err := os.WriteFile(target, []byte("port: 4222\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if filepath.Base(p) != "nats.conf" {
			t.Errorf("changed = %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), Config{Match: func(string) bool { return true }, OnChange: func(string) {}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
