package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	want := filepath.Join("/tmp/xdg-state", "ir-bench", "watchers")
	if got := StateDir(); got != want {
		t.Errorf("StateDir() = %s, want %s", got, want)
	}
}

func TestSaveAndLoadState(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	state := &WatcherState{
		PID:        os.Getpid(),
		Dir:        "/data/shards/roxford5k",
		Dataset:    "roxford5k",
		Layer:      "heads",
		World:      4,
		StartedAt:  time.Now(),
		MergeCount: 2,
	}

	if err := SaveState(state); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	loaded, err := LoadState(state.PID)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if loaded.Dir != state.Dir || loaded.Dataset != state.Dataset {
		t.Errorf("loaded state = %+v, want %+v", loaded, state)
	}
	if loaded.World != 4 || loaded.MergeCount != 2 {
		t.Errorf("loaded counters = world %d merges %d, want 4 and 2", loaded.World, loaded.MergeCount)
	}
}

func TestListStatesDropsDeadWatchers(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	live := &WatcherState{
		PID:       os.Getpid(),
		Dir:       "/data/shards/live",
		Layer:     "heads",
		World:     1,
		StartedAt: time.Now(),
	}
	if err := SaveState(live); err != nil {
		t.Fatal(err)
	}

	// A PID beyond the default pid_max cannot belong to a running process
	dead := &WatcherState{
		PID:       1 << 23,
		Dir:       "/data/shards/dead",
		Layer:     "heads",
		World:     1,
		StartedAt: time.Now(),
	}
	if err := SaveState(dead); err != nil {
		t.Fatal(err)
	}

	states, err := ListStates()
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("ListStates() returned %d states, want 1", len(states))
	}
	if states[0].Dir != live.Dir {
		t.Errorf("surviving state dir = %s, want %s", states[0].Dir, live.Dir)
	}

	// The dead watcher's state file was cleaned up
	if _, err := os.Stat(StatePath(dead.PID)); !os.IsNotExist(err) {
		t.Error("expected stale state file to be removed")
	}
}

func TestRemoveState(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	state := &WatcherState{PID: os.Getpid(), Dir: "/tmp", Layer: "heads", World: 1}
	if err := SaveState(state); err != nil {
		t.Fatal(err)
	}
	if err := RemoveState(state.PID); err != nil {
		t.Fatalf("RemoveState() error = %v", err)
	}
	if _, err := LoadState(state.PID); err == nil {
		t.Error("expected LoadState to fail after RemoveState")
	}
}

func TestListStatesEmptyDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	states, err := ListStates()
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(states) != 0 {
		t.Errorf("ListStates() returned %d states, want 0", len(states))
	}
}
