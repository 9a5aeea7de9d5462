package fsstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type payload struct {
	Name string `json:"name"`
}

func TestReadWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := WriteJSONAtomic(path, payload{Name: "alpha"}, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}

	var out payload
	ok, err := ReadJSON(path, &out)
	if err != nil || !ok {
		t.Fatalf("ReadJSON() = %v, %v", ok, err)
	}
	if out.Name != "alpha" {
		t.Fatalf("ReadJSON() name = %q, want alpha", out.Name)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != defaultFilePerm {
		t.Fatalf("perm = %v, want %v", info.Mode().Perm(), os.FileMode(defaultFilePerm))
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadJSONMissingOrBlank(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var out payload
	ok, err := ReadJSON(filepath.Join(dir, "absent.json"), &out)
	if ok || err != nil {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}

	blank := filepath.Join(dir, "blank.json")
	if err := os.WriteFile(blank, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ok, err = ReadJSON(blank, &out)
	if ok || err != nil {
		t.Fatalf("blank file: ok=%v err=%v", ok, err)
	}
}

func TestReadJSONDecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out payload
	_, err := ReadJSON(path, &out)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("ReadJSON() error = %v, want ErrDecodeFailed", err)
	}
}

func TestEmptyPathIsInvalid(t *testing.T) {
	t.Parallel()

	if err := WriteJSONAtomic(" ", payload{}, FileOptions{}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("WriteJSONAtomic() error = %v, want ErrInvalidPath", err)
	}
}

func TestEncodeFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.json")
	if err := WriteJSONAtomic(path, make(chan int), FileOptions{}); !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("WriteJSONAtomic() error = %v, want ErrEncodeFailed", err)
	}
}
