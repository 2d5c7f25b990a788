package reload

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	paths := []string{"", "/tmp/a", "/tmp/b", "/tmp/a", "/tmp/c", "/tmp/b"}
	got := uniquePaths(paths)
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniquePaths() = %v, want %v", got, want)
	}
}

func TestWatcherUpdateTracksExistingFiles(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home.yaml")
	garage := filepath.Join(dir, "garage.yaml")
	writeFile(t, home, "components: {}")
	writeFile(t, garage, "components: {}")

	var watcher Watcher
	if err := watcher.Update(home, garage, dir, filepath.Join(dir, "missing.yaml")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(watcher.files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(watcher.files))
	}
	if _, ok := watcher.files[home]; !ok {
		t.Fatalf("project file %s not tracked", home)
	}
	if _, ok := watcher.files[garage]; !ok {
		t.Fatalf("project file %s not tracked", garage)
	}
}

func TestWatcherCheckDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.yaml")
	fileB := filepath.Join(dir, "b.yaml")
	writeFile(t, fileA, "first")
	writeFile(t, fileB, "second")

	watcher, err := NewWatcher(fileA, fileB)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	if changed, err := watcher.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	} else if len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}

	time.Sleep(10 * time.Millisecond)
	writeFile(t, fileA, "first-UPDATED")
	if err := os.Remove(fileB); err != nil {
		t.Fatalf("Remove(%s) error = %v", fileB, err)
	}

	changed, err := watcher.Check()
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	sort.Strings(changed)
	expected := []string{fileA, fileB}
	sort.Strings(expected)
	if !reflect.DeepEqual(changed, expected) {
		t.Fatalf("Check() = %v, want %v", changed, expected)
	}
}

func TestWatcherTrackAcknowledgesOwnWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "home.yaml")
	writeFile(t, path, "v1")

	watcher, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	watcher.Track(path)

	time.Sleep(10 * time.Millisecond)
	writeFile(t, path, "version-2")
	watcher.Track(path)

	if changed, _ := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes after Track, got %v", changed)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove(%s) error = %v", path, err)
	}
	watcher.Track(path)
	if len(watcher.files) != 0 {
		t.Fatalf("expected removed file to be untracked, got %v", watcher.files)
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var watcher *Watcher
	if err := watcher.Update(); err != nil {
		t.Fatalf("nil watcher Update() error = %v", err)
	}
	watcher.Track("/tmp/a")
	if changed, err := watcher.Check(); err != nil {
		t.Fatalf("nil watcher Check() error = %v", err)
	} else if changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
