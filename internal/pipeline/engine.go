package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/drawdiff/internal/artifact"
	"github.com/ironsheep/drawdiff/internal/compare"
	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/jobstore"
	"github.com/ironsheep/drawdiff/internal/obs"
	"github.com/ironsheep/drawdiff/internal/publish"
	"github.com/ironsheep/drawdiff/internal/raster"
)

var (
	// ErrUnknownJob is returned for a JobID the engine has never issued.
	ErrUnknownJob = errors.New("unknown job")
	// ErrClosed is returned by Submit and Retry after Close.
	ErrClosed = errors.New("engine closed")
)

// hookTimeout bounds each call to the publisher, journal and artifact store.
const hookTimeout = 10 * time.Second

// PageComparer decodes page sources and compares decoded pages.
// *compare.Comparer implements it.
type PageComparer interface {
	Open(ctx context.Context, src raster.Source) (*raster.Raster, error)
	Compare(ctx context.Context, page int, name string, oldPage, newPage *raster.Raster) (*compare.DiffRecord, error)
}

// Publisher receives every unit that reaches a terminal state.
type Publisher interface {
	Publish(ctx context.Context, e publish.Event) error
}

// Journal persists job and unit transitions.
type Journal interface {
	SaveJob(ctx context.Context, j jobstore.Job) error
	SaveUnit(ctx context.Context, u jobstore.Unit) error
}

// PageInput is one page of one document.
type PageInput struct {
	// Name is the drawing name, if known.
	Name   string
	Source raster.Source
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

// WithArtifacts stores each overlay PNG and sets DiffRecord.OverlayKey.
func WithArtifacts(s artifact.Store) Option { return func(e *Engine) { e.artifacts = s } }

// Engine runs comparison jobs. It is safe for concurrent use.
type Engine struct {
	cmp         PageComparer
	unitTimeout time.Duration
	slots       chan struct{}
	decode      *semaphore.Weighted

	log       *slog.Logger
	tracer    trace.Tracer
	publisher Publisher
	journal   Journal
	artifacts artifact.Store

	mu     sync.RWMutex
	jobs   map[JobID]*job
	closed bool
	wg     sync.WaitGroup
}

// New builds an Engine from cfg. A nil cmp is replaced by a compare.Comparer
// built from the same configuration.
func New(cfg config.Config, cmp PageComparer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	e := &Engine{
		unitTimeout: cfg.UnitTimeout,
		slots:       make(chan struct{}, cfg.Workers),
		decode:      semaphore.NewWeighted(int64(cfg.DecodeSlots)),
		log:         obs.Discard(),
		tracer:      obs.Tracer("drawdiff/pipeline"),
		jobs:        make(map[JobID]*job),
	}
	for _, o := range opts {
		o(e)
	}
	if cmp == nil {
		copts, err := compare.OptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		cmp = compare.New(copts, e.log)
	}
	e.cmp = cmp
	return e, nil
}

// Submit registers a job comparing oldPages[i] with newPages[i] as page
// i+1 and starts dispatching it. It does not wait for any unit.
//
// An empty document or differing page counts reject the job before
// dispatch: the returned error wraps failure.ErrPrecondition, and the job is
// still recorded in state Failed under the returned id.
func (e *Engine) Submit(ctx context.Context, oldPages, newPages []PageInput) (JobID, error) {
	var precond error
	switch {
	case len(oldPages) == 0 || len(newPages) == 0:
		precond = fmt.Errorf("%w: no pages submitted (old=%d new=%d)", failure.ErrPrecondition, len(oldPages), len(newPages))
	case len(oldPages) != len(newPages):
		precond = fmt.Errorf("%w: page count mismatch (old=%d new=%d)", failure.ErrPrecondition, len(oldPages), len(newPages))
	}

	var pairs []compare.PagePair
	if precond == nil {
		pairs = make([]compare.PagePair, len(newPages))
		for i := range newPages {
			name := newPages[i].Name
			if name == "" {
				name = oldPages[i].Name
			}
			pairs[i] = compare.PagePair{
				Number: i + 1,
				Name:   name,
				Old:    oldPages[i].Source,
				New:    newPages[i].Source,
			}
		}
	}
	return e.start(ctx, pairs, e.cmp, "", precond)
}

// Retry submits a new job with the given failed pages of a finished job. An
// empty pages list retries every failed page. cmp may carry different
// parameters; nil reuses the original job's comparer.
func (e *Engine) Retry(ctx context.Context, id JobID, pages []int, cmp PageComparer) (JobID, error) {
	j, err := e.get(id)
	if err != nil {
		return "", err
	}
	snap := j.snapshot()
	if !snap.State.Terminal() {
		return "", fmt.Errorf("%w: job %s is still %s", failure.ErrPrecondition, id, snap.State)
	}
	if len(j.pairs) == 0 {
		return "", fmt.Errorf("%w: job %s has no pages", failure.ErrPrecondition, id)
	}
	if len(pages) == 0 {
		pages = snap.FailedPages()
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: job %s has no failed pages", failure.ErrPrecondition, id)
	}

	byPage := make(map[int]int, len(snap.Units))
	for i, u := range snap.Units {
		byPage[u.Page] = i
	}
	pairs := make([]compare.PagePair, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		i, ok := byPage[p]
		if !ok {
			return "", fmt.Errorf("%w: job %s has no page %d", failure.ErrPrecondition, id, p)
		}
		if snap.Units[i].State != UnitFailed {
			return "", fmt.Errorf("%w: page %d of job %s did not fail", failure.ErrPrecondition, p, id)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, j.pairs[i])
	}
	if cmp == nil {
		cmp = j.cmp
	}
	return e.start(ctx, pairs, cmp, id, nil)
}

func (e *Engine) start(ctx context.Context, pairs []compare.PagePair, cmp PageComparer, retryOf JobID, precond error) (JobID, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	id := JobID(uuid.NewString())
	j := newJob(id, pairs, cmp)
	j.retryOf = retryOf
	// Dispatch outlives the caller's context; trace context is kept.
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel
	e.jobs[id] = j
	if precond == nil {
		e.wg.Add(1)
	}
	e.mu.Unlock()

	log := e.log.With("job_id", string(id))
	e.journalJob(j)

	if precond != nil {
		cancel()
		j.reject(precond)
		obs.RecordJob(string(JobFailed))
		e.journalJob(j)
		log.Warn("job rejected", "state", JobFailed, "cause", failure.Classify(precond), "error", precond)
		return id, precond
	}

	for i := range j.units {
		e.journalUnit(j, i)
	}

	log.Info("job submitted", "pages", len(pairs), "retry_of", string(retryOf))
	go e.dispatch(dctx, j, log)
	return id, nil
}

// dispatch hands units to the compute pool in page order until all are
// started or the job is cancelled.
func (e *Engine) dispatch(ctx context.Context, j *job, log *slog.Logger) {
	defer e.wg.Done()
	defer j.cancel()

	ctx, span := e.tracer.Start(ctx, "pipeline.job", trace.WithAttributes(
		attribute.String("job_id", string(j.id)),
		attribute.Int("pages", len(j.units)),
	))
	defer span.End()

	j.begin()
	e.journalJob(j)

	unitCtx := context.WithoutCancel(ctx)
	var running sync.WaitGroup
	for i := range j.units {
		acquired := false
		select {
		case e.slots <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-e.slots
			}
			e.cancelPending(j, i, log)
			break
		}

		j.markRunning(i)
		e.journalUnit(j, i)
		running.Add(1)
		go func(i int) {
			defer running.Done()
			defer func() { <-e.slots }()
			e.runUnit(unitCtx, j, i, log)
		}(i)
	}
	running.Wait()
	<-j.done

	snap := j.snapshot()
	obs.RecordJob(string(snap.State))
	e.journalJob(j)
	c := snap.Counts()
	log.Info("job finished",
		"state", snap.State,
		"completed", c[UnitCompleted],
		"failed", c[UnitFailed],
		"duration", snap.Finished.Sub(snap.Created),
	)
	if snap.State != JobCompleted {
		span.SetStatus(codes.Error, string(snap.State))
	}
}

// cancelPending fails every unit from index from on that has not started.
func (e *Engine) cancelPending(j *job, from int, log *slog.Logger) {
	for i := from; i < len(j.units); i++ {
		err := fmt.Errorf("%w: page %d not started", failure.ErrCancelled, j.units[i].Page)
		if ev, ok := j.markFailed(i, err); ok {
			e.afterUnit(j, i, ev, log)
		}
	}
}

type unitResult struct {
	rec *compare.DiffRecord
	err error
}

// runUnit runs one unit with its timeout. On expiry the unit is failed and
// runUnit returns without waiting for the computation.
func (e *Engine) runUnit(ctx context.Context, j *job, i int, log *slog.Logger) {
	obs.UnitStarted()
	defer obs.UnitFinished()

	page := j.units[i].Page
	ctx, span := e.tracer.Start(ctx, "pipeline.unit", trace.WithAttributes(attribute.Int("page", page)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.unitTimeout)
	defer cancel()

	out := make(chan unitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- unitResult{err: failure.Panic(r)}
			}
		}()
		rec, err := e.work(ctx, j, i)
		out <- unitResult{rec: rec, err: err}
	}()

	var res unitResult
	select {
	case res = <-out:
	case <-ctx.Done():
		res.err = fmt.Errorf("%w: page %d exceeded %s", failure.ErrTimeout, page, e.unitTimeout)
	}
	if res.err == nil && res.rec == nil {
		res.err = fmt.Errorf("page %d produced no record", page)
	}

	var (
		ev PageResult
		ok bool
	)
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		ev, ok = j.markFailed(i, res.err)
	} else {
		ev, ok = j.markCompleted(i, res.rec)
	}
	if ok {
		e.afterUnit(j, i, ev, log)
	}
}

// work decodes both pages under a decode permit, compares them and stores
// the overlay.
func (e *Engine) work(ctx context.Context, j *job, i int) (*compare.DiffRecord, error) {
	pair := j.pairs[i]

	start := time.Now()
	oldPage, newPage, err := e.open(ctx, j.cmp, pair)
	if err != nil {
		return nil, err
	}
	decoded := time.Since(start)
	obs.RecordStep(compare.StepDecode, decoded)

	rec, err := j.cmp.Compare(ctx, pair.Number, pair.Name, oldPage, newPage)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Metadata.Timings != nil {
		rec.Metadata.Timings[compare.StepDecode] = decoded
	}
	if rec != nil {
		e.storeOverlay(ctx, j, rec)
	}
	return rec, nil
}

func (e *Engine) open(ctx context.Context, cmp PageComparer, pair compare.PagePair) (*raster.Raster, *raster.Raster, error) {
	if err := e.decode.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer e.decode.Release(1)

	oldPage, err := cmp.Open(ctx, pair.Old)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d old: %w", pair.Number, err)
	}
	newPage, err := cmp.Open(ctx, pair.New)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d new: %w", pair.Number, err)
	}
	return oldPage, newPage, nil
}

// storeOverlay uploads the overlay. A failed upload leaves OverlayKey empty
// and does not fail the unit.
func (e *Engine) storeOverlay(ctx context.Context, j *job, rec *compare.DiffRecord) {
	if e.artifacts == nil || rec.Overlay == nil {
		return
	}
	data, err := rec.OverlayPNG()
	if err != nil {
		e.log.Warn("overlay encoding failed", "job_id", string(j.id), "page", rec.PageNumber, "error", err)
		return
	}
	key := artifact.OverlayKey(string(j.id), rec.PageNumber)
	sctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()
	if err := e.artifacts.Put(sctx, key, artifact.ContentTypePNG, data); err != nil {
		e.log.Warn("overlay upload failed", "job_id", string(j.id), "page", rec.PageNumber, "error", err)
		return
	}
	rec.OverlayKey = key
}

// afterUnit runs the side effects of a unit transition to a terminal state.
func (e *Engine) afterUnit(j *job, i int, ev PageResult, log *slog.Logger) {
	kind := string(ev.Kind)
	obs.RecordUnit(kind, ev.Err)
	if ev.State == UnitCompleted {
		log.Info("unit completed",
			"page", ev.Page,
			"state", ev.State,
			"score", ev.Record.AlignmentScore,
			"changes", ev.Record.ChangeCount,
		)
	} else {
		log.Warn("unit failed", "page", ev.Page, "state", ev.State, "cause", kind, "error", ev.Err)
	}
	e.journalUnit(j, i)
	e.publish(ev)
}

func (e *Engine) publish(ev PageResult) {
	if e.publisher == nil {
		return
	}
	msg := publish.Event{
		JobID: string(ev.JobID),
		Page:  ev.Page,
		Name:  ev.Name,
		State: string(ev.State),
		Kind:  string(ev.Kind),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if r := ev.Record; r != nil {
		msg.AlignmentScore = r.AlignmentScore
		msg.ChangesDetected = r.ChangesDetected
		msg.ChangeCount = r.ChangeCount
		msg.OverlayKey = r.OverlayKey
		if b, err := json.Marshal(r); err == nil {
			msg.Record = b
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, msg); err != nil {
		e.log.Warn("publish failed", "job_id", msg.JobID, "page", msg.Page, "error", err)
	}
}

func (e *Engine) journalJob(j *job) {
	if e.journal == nil {
		return
	}
	snap := j.snapshot()
	rec := jobstore.Job{
		ID:        string(snap.ID),
		State:     string(snap.State),
		Pages:     len(snap.Units),
		CreatedAt: snap.Created,
		UpdatedAt: time.Now(),
	}
	if snap.Err != nil {
		rec.Error = snap.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := e.journal.SaveJob(ctx, rec); err != nil {
		e.log.Warn("journal write failed", "job_id", rec.ID, "error", err)
	}
}

func (e *Engine) journalUnit(j *job, i int) {
	if e.journal == nil {
		return
	}
	j.mu.Lock()
	u := j.units[i]
	j.mu.Unlock()

	rec := jobstore.Unit{
		JobID:     string(u.JobID),
		Page:      u.Page,
		Name:      u.Name,
		State:     string(u.State),
		Kind:      string(u.Kind),
		UpdatedAt: time.Now(),
	}
	if u.Err != nil {
		rec.Error = u.Err.Error()
	}
	if r := u.Record; r != nil {
		rec.AlignmentScore = r.AlignmentScore
		rec.ChangesDetected = r.ChangesDetected
		rec.ChangeCount = r.ChangeCount
		rec.OverlayKey = r.OverlayKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := e.journal.SaveUnit(ctx, rec); err != nil {
		e.log.Warn("journal write failed", "job_id", rec.JobID, "page", rec.Page, "error", err)
	}
}

func (e *Engine) get(id JobID) (*job, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return j, nil
}

// State returns a snapshot of the job.
func (e *Engine) State(id JobID) (JobSnapshot, error) {
	j, err := e.get(id)
	if err != nil {
		return JobSnapshot{}, err
	}
	return j.snapshot(), nil
}

// Subscribe calls fn once for every unit of the job that has finished or
// will finish, in completion order, from a goroutine owned by the
// subscription. The returned function cancels the subscription.
func (e *Engine) Subscribe(id JobID, fn func(PageResult)) (func(), error) {
	if fn == nil {
		return nil, errors.New("nil subscriber")
	}
	j, err := e.get(id)
	if err != nil {
		return nil, err
	}
	return j.subscribe(fn), nil
}

// Cancel stops dispatch of the job's pending units. Running units finish on
// their own. Cancelling a finished job is a no-op.
func (e *Engine) Cancel(id JobID) error {
	j, err := e.get(id)
	if err != nil {
		return err
	}
	if j.cancel != nil {
		j.cancel()
	}
	return nil
}

// Wait blocks until the job is terminal or ctx is done.
func (e *Engine) Wait(ctx context.Context, id JobID) (JobSnapshot, error) {
	j, err := e.get(id)
	if err != nil {
		return JobSnapshot{}, err
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Close cancels dispatch of every job and waits for running units to end.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	jobs := make([]*job, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, j)
	}
	e.mu.Unlock()

	for _, j := range jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
	e.wg.Wait()
}
