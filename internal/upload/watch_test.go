package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/danmuck/cictl/internal/testutil/testlog"
)

type fakeUploader struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, list []artifacts.Artifact) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(list))
	for _, a := range list {
		names = append(names, a.Name)
	}
	f.batches = append(f.batches, names)
	return Result{Artifacts: len(list)}, f.err
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestWatcherFlushWaitsForStableSize(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	if err := os.WriteFile(path, []byte("part"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	up := &fakeUploader{}
	w := NewWatcher(WatchConfig{Dir: dir, Settle: time.Second}, up)
	t0 := time.Now()
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}, t0)
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Create}, t0)

	if err := w.flush(context.Background(), t0.Add(500*time.Millisecond)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if up.count() != 0 {
		t.Fatalf("uploaded before settle")
	}

	if err := os.WriteFile(path, []byte("partial-more"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := w.flush(context.Background(), t0.Add(2*time.Second)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if up.count() != 0 {
		t.Fatalf("uploaded while size was changing")
	}

	if err := w.flush(context.Background(), t0.Add(3*time.Second)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if up.count() != 1 || up.batches[0][0] != "a.zip" {
		t.Fatalf("unexpected batches: %v", up.batches)
	}
	if len(w.pending) != 0 {
		t.Fatalf("pending not cleared: %v", w.pending)
	}
}

func TestWatcherSkipsAlreadyUploaded(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	if err := os.WriteFile(path, []byte("done"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := artifacts.Collect(dir, ".", nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	up := &fakeUploader{}
	w := NewWatcher(WatchConfig{Dir: dir, Settle: time.Second}, up)
	w.MarkUploaded(list)

	t0 := time.Now()
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod | fsnotify.Write}, t0)
	_ = w.flush(context.Background(), t0.Add(2*time.Second))
	_ = w.flush(context.Background(), t0.Add(3*time.Second))
	if up.count() != 0 {
		t.Fatalf("unchanged file uploaded again: %v", up.batches)
	}
}

func TestWatcherRemoveDropsPending(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(WatchConfig{Dir: dir}, &fakeUploader{})
	path := filepath.Join(dir, "a.zip")
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}, time.Now())
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove}, time.Now())
	if len(w.pending) != 0 {
		t.Fatalf("expected pending cleared")
	}
}

func TestWatcherStrictReturnsUploadError(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var seen error
	up := &fakeUploader{err: ErrUploadFailed}
	w := NewWatcher(WatchConfig{
		Dir:      dir,
		Settle:   time.Second,
		Strict:   true,
		OnResult: func(_ Result, err error) { seen = err },
	}, up)
	t0 := time.Now()
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}, t0)
	_ = w.flush(context.Background(), t0.Add(2*time.Second))
	err := w.flush(context.Background(), t0.Add(3*time.Second))
	if !errors.Is(err, ErrUploadFailed) || !errors.Is(seen, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v / %v", err, seen)
	}
}

func TestWatcherRunUploadsNewFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	up := &fakeUploader{}
	w := NewWatcher(WatchConfig{Dir: dir, Settle: 100 * time.Millisecond}, up)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before the file appears.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "late.zip"), []byte("late"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for up.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if up.count() != 1 || up.batches[0][0] != "late.zip" {
		t.Fatalf("unexpected batches: %v", up.batches)
	}
}

func TestWatcherRunRetriesUnsentFiles(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, name := range []string{"sent.zip", "unsent.zip", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	up := &fakeUploader{}
	w := NewWatcher(WatchConfig{Dir: dir, Settle: 50 * time.Millisecond}, up)
	w.MarkUploaded([]artifacts.Artifact{{Name: "sent.zip", Path: filepath.Join(dir, "sent.zip")}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for up.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	// leave room for a wrongly queued second batch
	time.Sleep(150 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.batches) != 1 || len(up.batches[0]) != 1 || up.batches[0][0] != "unsent.zip" {
		t.Fatalf("unexpected batches: %v", up.batches)
	}
}
