package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/fixture"
	"github.com/ironsheep/drawdiff/internal/obs"
	"github.com/ironsheep/drawdiff/internal/pipeline"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	return cfg
}

func TestRun_WritesArtifacts(t *testing.T) {
	t.Setenv("OSS_BUCKET", "")
	oldDir, newDir, outDir := t.TempDir(), t.TempDir(), t.TempDir()

	a := fixture.Drawing(400, 300, 7)
	b := fixture.Drawing(400, 300, 8)
	bNew := fixture.Clone(b)
	fixture.Fill(bNew, 60, 60, 100, 100)

	writeFile(t, filepath.Join(oldDir, "a.png"), fixture.PNG(t, a))
	writeFile(t, filepath.Join(oldDir, "b.png"), fixture.PNG(t, b))
	writeFile(t, filepath.Join(newDir, "a.png"), fixture.PNG(t, fixture.Clone(a)))
	writeFile(t, filepath.Join(newDir, "b.png"), fixture.PNG(t, bNew))

	var out bytes.Buffer
	snap, err := run(context.Background(), testConfig(), obs.Discard(), &out, oldDir, newDir, outDir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.State != pipeline.JobCompleted {
		t.Fatalf("state: got %s", snap.State)
	}
	recs := snap.Records()
	if recs[0].ChangesDetected {
		t.Error("page a should be unchanged")
	}
	if !recs[1].ChangesDetected {
		t.Error("page b should report the added block")
	}

	jobDir := filepath.Join(outDir, string(snap.ID))
	for _, name := range []string{"page-0001.png", "page-0002.png", pdfName, reportName} {
		if _, err := os.Stat(filepath.Join(jobDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	text := out.String()
	for _, want := range []string{"page 1 a:", "page 2 b:", "completed"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRun_PageCountMismatch(t *testing.T) {
	t.Setenv("OSS_BUCKET", "")
	oldDir, newDir := t.TempDir(), t.TempDir()
	png := fixture.PNG(t, fixture.Drawing(200, 150, 1))
	writeFile(t, filepath.Join(oldDir, "1.png"), png)
	writeFile(t, filepath.Join(oldDir, "2.png"), png)
	writeFile(t, filepath.Join(newDir, "1.png"), png)

	_, err := run(context.Background(), testConfig(), obs.Discard(), &bytes.Buffer{}, oldDir, newDir, t.TempDir())
	if !errors.Is(err, failure.ErrPrecondition) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestProgressLine(t *testing.T) {
	failed := pipeline.PageResult{Page: 3, State: pipeline.UnitFailed, Kind: failure.KindTimeout, Err: failure.ErrTimeout}
	if got := progressLine(failed); got != "page 3 -: failed (timeout) unit timeout" {
		t.Errorf("got %q", got)
	}
}
