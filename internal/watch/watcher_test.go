package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w := New(root, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	})

	// give the watcher time to register the tree
	time.Sleep(100 * time.Millisecond)
	return w
}

func expectTrigger(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Trigger():
	case <-time.After(3 * time.Second):
		t.Fatal("no trigger after change")
	}
}

func TestWatcher_TriggersOnChange(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	expectTrigger(t, w)
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	for i := 0; i < 10; i++ {
		if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte{byte(i)}, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	expectTrigger(t, w)

	select {
	case <-w.Trigger():
		t.Fatal("burst produced more than one trigger")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	expectTrigger(t, w)

	// let the new directory be registered
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	expectTrigger(t, w)
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), 0, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for a missing root")
	}
}
