package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	key := NewKey(7, "report.pdf")
	if !strings.HasPrefix(key, "requests/7/") || !strings.HasSuffix(key, ".pdf") {
		t.Errorf("key = %q", key)
	}

	content := "protocol contents"
	if err := store.Save(ctx, key, strings.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != content {
		t.Errorf("content = %q, want %q", got, content)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, key); err == nil {
		t.Error("expected open to fail after delete")
	}
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "../escape.txt", strings.NewReader("x"), 1, ""); err == nil {
		t.Error("expected traversal key to be rejected")
	}
	if _, err := store.Open(ctx, "/etc/passwd"); err == nil {
		t.Error("expected absolute key to be rejected")
	}
}
