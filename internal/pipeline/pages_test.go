package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/drawdiff/internal/fixture"
)

func TestPagesFromDir(t *testing.T) {
	dir := t.TempDir()
	png := fixture.PNG(t, fixture.White(20, 20))
	for _, name := range []string{"S-201.png", "A-101.PNG", "notes.txt", "M-301.tiff"} {
		if err := os.WriteFile(filepath.Join(dir, name), png, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	pages, err := PagesFromDir(dir, 150)
	if err != nil {
		t.Fatalf("PagesFromDir: %v", err)
	}
	want := []string{"A-101", "M-301", "S-201"}
	if len(pages) != len(want) {
		t.Fatalf("pages: got %d, want %d", len(pages), len(want))
	}
	for i, w := range want {
		if pages[i].Name != w {
			t.Errorf("page %d: got %q, want %q", i+1, pages[i].Name, w)
		}
		if pages[i].Source == nil {
			t.Errorf("page %d has no source", i+1)
		}
	}
}

func TestPagesFromDir_Missing(t *testing.T) {
	if _, err := PagesFromDir(filepath.Join(t.TempDir(), "nope"), 150); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestPagesFromFiles_KeepsOrder(t *testing.T) {
	pages := PagesFromFiles([]string{"/d/z-9.png", "/d/a-1.tif"}, 300)
	if len(pages) != 2 || pages[0].Name != "z-9" || pages[1].Name != "a-1" {
		t.Errorf("unexpected pages: %+v", pages)
	}
}
