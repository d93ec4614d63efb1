package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{OverlayKey("job-1", 3), "job-1/page-0003.png"},
		{OverlayKey("/job-1/", 12), "job-1/page-0012.png"},
		{OverlayKey("../../etc", 1), "etc/page-0001.png"},
		{DocumentKey("job-1", "overlays.pdf"), "job-1/overlays.pdf"},
		{DocumentKey("job-1", "../x/report.xlsx"), "job-1/report.xlsx"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	data := []byte{1, 2, 3}
	if err := s.Put(ctx, "job/page-0001.png", ContentTypePNG, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 9
	got, err := s.Get(ctx, "job/page-0001.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("Get returned %v", got)
	}
	if _, err := s.Get(ctx, "job/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	if keys := s.Keys(); len(keys) != 1 || keys[0] != "job/page-0001.png" {
		t.Errorf("Keys: %v", keys)
	}
	if err := s.Put(context.Background(), "  ", ContentTypePNG, nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	testStore(t, s)
	if _, err := os.Stat(filepath.Join(dir, "job", "page-0001.png")); err != nil {
		t.Errorf("artifact file missing: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "job/x.png", ContentTypePNG, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestNewOSSFromEnv(t *testing.T) {
	t.Setenv("OSS_BUCKET", "")
	s, enabled, err := NewOSSFromEnv()
	if s != nil || enabled || err != nil {
		t.Errorf("unset bucket: got %v %v %v", s, enabled, err)
	}

	t.Setenv("OSS_BUCKET", "drawings")
	t.Setenv("OSS_ENDPOINT_INTERNAL", "")
	t.Setenv("OSS_ENDPOINT_PUBLIC", "")
	if _, enabled, err := NewOSSFromEnv(); !enabled || err == nil {
		t.Errorf("missing endpoint: enabled=%v err=%v", enabled, err)
	}
}
