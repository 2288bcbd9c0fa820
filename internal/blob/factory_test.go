package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	fsStore, err := Open(ctx, Config{FSRoot: root})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if fsStore.Driver() != DriverFilesystem {
		t.Fatalf("expected default fs driver, got %s", fsStore.Driver())
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %v %v", mem, err)
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestDriversShareSemantics(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	stores := map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
	for name, store := range stores {
		key := "22/47/inputs/samples.tsv"
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("a")), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", name, err)
		}
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("b")), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", name, err)
		}
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("bb")), PutOptions{Overwrite: true}); err != nil {
			t.Fatalf("%s overwrite: %v", name, err)
		}
		info, err := store.Head(ctx, key)
		if err != nil || info.Size != 2 {
			t.Fatalf("%s head: %+v %v", name, info, err)
		}
		if _, err := store.Head(ctx, "22/47/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
		if _, _, err := store.Get(ctx, "22/47/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound on get, got %v", name, err)
		}
	}
}
