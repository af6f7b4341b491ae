package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWhitening(t *testing.T) {
	root := t.TempDir()
	listFile := filepath.Join(root, "train_list.txt")
	content := "landmarks/001.jpg\n\nlandmarks/002.jpg\nother/003.jpg\n"
	if err := os.WriteFile(listFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := OpenWhitening(root, listFile)
	if err != nil {
		t.Fatalf("OpenWhitening() error = %v", err)
	}

	if d.Name() != "whitening" {
		t.Errorf("Name() = %s, want whitening", d.Name())
	}
	if d.NumDatabase() != 3 {
		t.Errorf("NumDatabase() = %d, want 3 with blank line skipped", d.NumDatabase())
	}
	if d.NumQueries() != 0 {
		t.Errorf("NumQueries() = %d, want 0", d.NumQueries())
	}

	want := filepath.Join(root, "landmarks", "002.jpg")
	if got := d.DatabasePath(1); got != want {
		t.Errorf("DatabasePath(1) = %s, want %s", got, want)
	}
}

func TestOpenWhitening_Errors(t *testing.T) {
	root := t.TempDir()

	t.Run("missing list", func(t *testing.T) {
		if _, err := OpenWhitening(root, filepath.Join(root, "nope.txt")); err == nil {
			t.Error("OpenWhitening() expected error for missing list file")
		}
	})

	t.Run("empty list", func(t *testing.T) {
		listFile := filepath.Join(root, "empty.txt")
		if err := os.WriteFile(listFile, []byte("\n\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenWhitening(root, listFile); err == nil {
			t.Error("OpenWhitening() expected error for empty list")
		}
	})

	t.Run("traversal entry", func(t *testing.T) {
		listFile := filepath.Join(root, "bad.txt")
		if err := os.WriteFile(listFile, []byte("../../etc/passwd\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenWhitening(root, listFile); err == nil {
			t.Error("OpenWhitening() expected error for traversal entry")
		}
	})

	t.Run("absolute entry", func(t *testing.T) {
		listFile := filepath.Join(root, "abs.txt")
		if err := os.WriteFile(listFile, []byte("/etc/passwd\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenWhitening(root, listFile); err == nil {
			t.Error("OpenWhitening() expected error for absolute entry")
		}
	})
}
