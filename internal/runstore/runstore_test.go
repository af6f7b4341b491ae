package runstore

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/scoring"
)

func TestNewRun(t *testing.T) {
	run := NewRun("roxford5k", "exact")

	if run.ID == "" {
		t.Error("expected ID to be set")
	}
	if run.Dataset != "roxford5k" {
		t.Errorf("expected dataset 'roxford5k', got %s", run.Dataset)
	}
	if run.Engine != "exact" {
		t.Errorf("expected engine 'exact', got %s", run.Engine)
	}
	if run.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, run.Status)
	}
	if run.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	if run.Finished() {
		t.Error("expected new run to be unfinished")
	}

	other := NewRun("roxford5k", "exact")
	if other.ID == run.ID {
		t.Error("expected distinct run ids")
	}
}

func TestRunComplete(t *testing.T) {
	run := NewRun("rparis6k", "exact")

	time.Sleep(time.Millisecond)
	run.Complete(&Result{
		Tiered: &scoring.TieredResult{
			Medium: scoring.AggregateResult{MAP: 0.75, NumQueries: 55},
		},
	})

	if run.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, run.Status)
	}
	if !run.Finished() {
		t.Error("expected completed run to be finished")
	}
	if run.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
	if run.Result == nil || run.Result.Tiered == nil {
		t.Fatal("expected tiered result to be set")
	}
	if run.Result.Tiered.Medium.MAP != 0.75 {
		t.Errorf("expected medium mAP 0.75, got %f", run.Result.Tiered.Medium.MAP)
	}
	if run.Duration() <= 0 {
		t.Errorf("expected positive duration, got %v", run.Duration())
	}
}

func TestRunFail(t *testing.T) {
	run := NewRun("oxford5k", "qdrant")
	run.Fail(stderrors.New("collection unreachable"))

	if run.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, run.Status)
	}
	if run.Error != "collection unreachable" {
		t.Errorf("expected error message to be recorded, got %q", run.Error)
	}
	if !run.Finished() {
		t.Error("expected failed run to be finished")
	}
}

func TestMemoryStorage(t *testing.T) {
	storage := NewMemoryStorage()

	run := NewRun("roxford5k", "exact")
	if err := storage.Save(run); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := storage.Load(run.ID)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Dataset != run.Dataset {
		t.Errorf("expected dataset %s, got %s", run.Dataset, loaded.Dataset)
	}

	if !storage.Exists(run.ID) {
		t.Error("expected run to exist")
	}
	if storage.Exists("nonexistent") {
		t.Error("expected nonexistent run to not exist")
	}

	run2 := NewRun("rparis6k", "exact")
	if err := storage.Save(run2); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	all, err := storage.LoadAll()
	if err != nil {
		t.Fatalf("failed to load all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 runs, got %d", len(all))
	}

	if err := storage.Delete(run.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if storage.Exists(run.ID) {
		t.Error("expected run to be deleted")
	}
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	storage := NewFileStorage(dir)

	run := NewRun("instre", "exact")
	mapVal := 0.41
	run.Complete(&Result{
		Global: &scoring.AggregateResult{MAP: 0.47, NumQueries: 1250},
		MAPVal: &mapVal,
	})
	if err := storage.Save(run); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, run.ID+".json")); err != nil {
		t.Errorf("expected run file to exist: %v", err)
	}

	loaded, err := storage.Load(run.ID)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, loaded.Status)
	}
	if loaded.Result == nil || loaded.Result.Global == nil {
		t.Fatal("expected global result to round-trip")
	}
	if loaded.Result.Global.MAP != 0.47 {
		t.Errorf("expected mAP 0.47, got %f", loaded.Result.Global.MAP)
	}
	if loaded.Result.MAPVal == nil || *loaded.Result.MAPVal != 0.41 {
		t.Error("expected validation mAP to round-trip")
	}

	_, err = storage.Load("nonexistent")
	if err == nil {
		t.Fatal("expected error loading nonexistent run")
	}
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("error %v is not an AppError", err)
	}
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.CodeNotFound)
	}

	// Invalid files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("failed to write garbage file: %v", err)
	}
	all, err := storage.LoadAll()
	if err != nil {
		t.Fatalf("failed to load all: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 run, got %d", len(all))
	}

	if err := storage.Delete(run.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if storage.Exists(run.ID) {
		t.Error("expected run to be deleted")
	}
	if err := storage.Delete(run.ID); err != nil {
		t.Errorf("expected deleting a missing run to be a no-op, got %v", err)
	}
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	run := NewRun("roxford5k", "exact")
	if err := svc.Save(ctx, run); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	got, err := svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, got.Status)
	}

	run.Complete(&Result{Tiered: &scoring.TieredResult{}})
	if err := svc.Save(ctx, run); err != nil {
		t.Fatalf("failed to save completed run: %v", err)
	}

	got, err = svc.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, got.Status)
	}

	if err := svc.Delete(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if svc.Exists(ctx, run.ID) {
		t.Error("expected run to be deleted")
	}
	if err := svc.Delete(ctx, run.ID); err == nil {
		t.Error("expected error deleting missing run")
	}
}

func TestServiceList(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceConfig{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	first := NewRun("roxford5k", "exact")
	first.StartedAt = time.Now().Add(-2 * time.Hour)
	second := NewRun("rparis6k", "exact")
	second.StartedAt = time.Now().Add(-time.Hour)
	third := NewRun("roxford5k", "qdrant")

	for _, run := range []*Run{first, second, third} {
		if err := svc.Save(ctx, run); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
	}

	runs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != third.ID || runs[2].ID != first.ID {
		t.Error("expected runs ordered most recent first")
	}

	oxford, err := svc.ListByDataset(ctx, "roxford5k")
	if err != nil {
		t.Fatalf("failed to list by dataset: %v", err)
	}
	if len(oxford) != 2 {
		t.Errorf("expected 2 roxford5k runs, got %d", len(oxford))
	}
	for _, run := range oxford {
		if run.Dataset != "roxford5k" {
			t.Errorf("unexpected dataset %s in filtered list", run.Dataset)
		}
	}
}

func TestServiceValidation(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	if err := svc.Save(ctx, nil); err == nil {
		t.Error("expected error saving nil run")
	}
	if err := svc.Save(ctx, &Run{Dataset: "roxford5k"}); err == nil {
		t.Error("expected error saving run without id")
	}
	if err := svc.Save(ctx, &Run{ID: "abc"}); err == nil {
		t.Error("expected error saving run without dataset")
	}

	if _, err := NewService(ServiceConfig{Backend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := NewService(ServiceConfig{Backend: "file"}); err == nil {
		t.Error("expected error for file backend without directory")
	}
}

func TestServiceFileBackendReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	svc, err := NewService(ServiceConfig{Backend: "file", Dir: dir})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	run := NewRun("rparis6k", "exact")
	run.Complete(&Result{Tiered: &scoring.TieredResult{
		Hard: scoring.AggregateResult{MAP: 0.31, NumQueries: 55},
	}})
	if err := svc.Save(ctx, run); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	// A fresh service over the same directory sees the stored run.
	reloaded, err := NewService(ServiceConfig{Backend: "file", Dir: dir})
	if err != nil {
		t.Fatalf("failed to recreate service: %v", err)
	}

	got, err := reloaded.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get after reload: %v", err)
	}
	if got.Result == nil || got.Result.Tiered == nil {
		t.Fatal("expected result to survive reload")
	}
	if got.Result.Tiered.Hard.MAP != 0.31 {
		t.Errorf("expected hard mAP 0.31, got %f", got.Result.Tiered.Hard.MAP)
	}
}
