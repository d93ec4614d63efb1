package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/drawdiff/internal/artifact"
	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/inspect"
	"github.com/ironsheep/drawdiff/internal/jobstore"
	"github.com/ironsheep/drawdiff/internal/pipeline"
	"github.com/ironsheep/drawdiff/internal/publish"
	"github.com/ironsheep/drawdiff/internal/render"
	"github.com/ironsheep/drawdiff/internal/report"
)

const (
	pdfName    = "overlays.pdf"
	reportName = "report.xlsx"
)

// run compares the page sets of oldDir and newDir and stores the overlays and
// job documents. Progress lines go to out as pages finish.
func run(ctx context.Context, cfg config.Config, log *slog.Logger, out io.Writer, oldDir, newDir, outDir string) (pipeline.JobSnapshot, error) {
	oldPages, err := pipeline.PagesFromDir(oldDir, cfg.DefaultDPI)
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}
	newPages, err := pipeline.PagesFromDir(newDir, cfg.DefaultDPI)
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}

	ad, err := openAdapters(cfg, outDir, log)
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}
	defer ad.Close()

	engine, err := pipeline.New(cfg, nil, ad.opts...)
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}
	defer engine.Close()

	id, err := engine.Submit(ctx, oldPages, newPages)
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}

	var (
		mu        sync.Mutex
		delivered sync.WaitGroup
	)
	delivered.Add(len(newPages))
	_, err = engine.Subscribe(id, func(r pipeline.PageResult) {
		defer delivered.Done()
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, progressLine(r))
	})
	if err != nil {
		return pipeline.JobSnapshot{}, err
	}

	snap, err := engine.Wait(ctx, id)
	if errors.Is(err, context.Canceled) {
		log.Warn("interrupted, cancelling pending pages", "job_id", string(id))
		_ = engine.Cancel(id)
		snap, err = engine.Wait(context.Background(), id)
	}
	if err != nil {
		return snap, err
	}
	delivered.Wait()

	if err := writeDocuments(context.Background(), ad.store, snap); err != nil {
		return snap, err
	}
	c := snap.Counts()
	fmt.Fprintf(out, "job %s %s: %d completed, %d failed; artifacts in %s\n",
		id, snap.State, c[pipeline.UnitCompleted], c[pipeline.UnitFailed], ad.where(string(id)))
	return snap, nil
}

func progressLine(r pipeline.PageResult) string {
	name := r.Name
	if name == "" {
		name = "-"
	}
	if r.State != pipeline.UnitCompleted {
		return fmt.Sprintf("page %d %s: %s (%s) %v", r.Page, name, r.State, r.Kind, r.Err)
	}
	rec := r.Record
	return fmt.Sprintf("page %d %s: score=%.3f changes=%d in %s", r.Page, name, rec.AlignmentScore, rec.ChangeCount,
		rec.TotalDuration().Round(time.Millisecond))
}

// adapters holds the optional outer components an Engine is wired to.
type adapters struct {
	opts    []pipeline.Option
	store   artifact.Store
	where   func(jobID string) string
	closers []func() error
}

// openAdapters builds the artifact store (OSS when configured, otherwise a
// file store under outDir; none when outDir is empty), the SQLite journal
// when DB path is set and the Redis stream publisher when a Redis address is
// set.
func openAdapters(cfg config.Config, outDir string, log *slog.Logger) (*adapters, error) {
	ad := &adapters{opts: []pipeline.Option{pipeline.WithLogger(log)}}

	remote, enabled, err := artifact.NewOSSFromEnv()
	switch {
	case enabled && err != nil:
		return nil, err
	case enabled:
		ad.store, ad.where = remote, remote.Location
	case outDir != "":
		fs, err := artifact.NewFileStore(outDir)
		if err != nil {
			return nil, err
		}
		ad.store, ad.where = fs, fs.Path
	}
	if ad.store != nil {
		ad.opts = append(ad.opts, pipeline.WithArtifacts(ad.store))
	}

	if cfg.DBPath != "" {
		js, err := jobstore.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		ad.closers = append(ad.closers, js.Close)
		ad.opts = append(ad.opts, pipeline.WithJournal(js))
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ad.closers = append(ad.closers, rdb.Close)
		ad.opts = append(ad.opts, pipeline.WithPublisher(publish.NewRedisStream(rdb, cfg.RedisStream, 0)))
		log.Info("publishing results", "addr", cfg.RedisAddr, "stream", cfg.RedisStream)
	}
	return ad, nil
}

func (a *adapters) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// writeDocuments stores the overlay PDF of every completed page, with its
// regions numbered as in the report, and the XLSX report.
func writeDocuments(ctx context.Context, store artifact.Store, snap pipeline.JobSnapshot) error {
	if store == nil {
		return errors.New("no artifact store configured")
	}
	jobID := string(snap.ID)

	var pages []render.PDFPage
	for _, rec := range snap.Records() {
		if rec.Overlay == nil {
			continue
		}
		page := rec.PDFPage()
		if len(rec.Regions) > 0 {
			page.Image = inspect.Annotate(rec.Overlay, rec.Regions, inspect.BoxColor)
		}
		pages = append(pages, page)
	}
	if len(pages) > 0 {
		var buf bytes.Buffer
		if err := render.WritePDF(&buf, pages); err != nil {
			return err
		}
		if err := store.Put(ctx, artifact.DocumentKey(jobID, pdfName), artifact.ContentTypePDF, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to store %s: %w", pdfName, err)
		}
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, snap); err != nil {
		return err
	}
	if err := store.Put(ctx, artifact.DocumentKey(jobID, reportName), artifact.ContentTypeXLSX, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store %s: %w", reportName, err)
	}
	return nil
}
