// pkg/changelog/changelog_test.go
package changelog

import (
	"os"
	"path/filepath"
	"testing"

	"weft/pkg/document"
	"weft/pkg/types"
)

func TestLogCreateAppendReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.weft")

	d := document.New()
	if _, err := d.Put(types.RootObj, "k", types.Str("v1")); err != nil {
		t.Fatal(err)
	}
	log, err := Create(path, d)
	if err != nil {
		t.Fatalf("failed to create log: %v", err)
	}
	heads := d.Heads()
	if _, err := d.Put(types.RootObj, "k", types.Str("v2")); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(heads); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Document().Get(types.RootObj, "k", nil)
	if err != nil || !ok {
		t.Fatalf("get after replay: ok=%v err=%v", ok, err)
	}
	if v.Scalar.Str() != "v2" {
		t.Errorf("expected v2 after replay, got %q", v.Scalar.Str())
	}
}

func TestLogTornTailDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.weft")

	d := document.New()
	if _, err := d.Put(types.RootObj, "k", types.Str("v1")); err != nil {
		t.Fatal(err)
	}
	log, err := Create(path, d)
	if err != nil {
		t.Fatal(err)
	}
	heads := d.Heads()
	if _, err := d.Put(types.RootObj, "k2", types.Str("v2")); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(heads); err != nil {
		t.Fatal(err)
	}
	log.Close()

	// simulate a crash mid-append: chop bytes off the tail chunk
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-4], 0o644); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("torn tail must not fail open: %v", err)
	}
	defer reopened.Close()
	if _, ok, _ := reopened.Document().Get(types.RootObj, "k2", nil); ok {
		t.Error("torn change must not be applied")
	}
	if _, ok, _ := reopened.Document().Get(types.RootObj, "k", nil); !ok {
		t.Error("intact snapshot must survive")
	}
}

func TestLogCompact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.weft")

	d := document.New()
	log, err := Create(path, d)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		heads := d.Heads()
		if _, err := d.Put(types.RootObj, "k", types.Int(int64(i))); err != nil {
			t.Fatal(err)
		}
		if err := log.Append(heads); err != nil {
			t.Fatal(err)
		}
	}
	before, _ := os.Stat(path)
	if err := log.Compact(); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(path)
	if after.Size() >= before.Size() {
		t.Errorf("compaction should shrink the log: %d -> %d", before.Size(), after.Size())
	}
	log.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Document().Get(types.RootObj, "k", nil)
	if err != nil || !ok || v.Scalar.Int() != 4 {
		t.Fatalf("unexpected value after compaction: %+v ok=%v err=%v", v, ok, err)
	}
}
