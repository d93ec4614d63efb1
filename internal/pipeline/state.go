package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ironsheep/drawdiff/internal/compare"
	"github.com/ironsheep/drawdiff/internal/failure"
)

// JobID identifies a submitted job.
type JobID string

// JobState is the aggregate state of a job.
type JobState string

const (
	JobCreated         JobState = "created"
	JobInProgress      JobState = "in_progress"
	JobCompleted       JobState = "completed"
	JobPartiallyFailed JobState = "partially_failed"
	JobFailed          JobState = "failed"
)

// Terminal reports whether s is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobPartiallyFailed || s == JobFailed
}

// UnitState is the state of one page unit.
type UnitState string

const (
	UnitPending    UnitState = "pending"
	UnitInProgress UnitState = "in_progress"
	UnitCompleted  UnitState = "completed"
	UnitFailed     UnitState = "failed"
)

func (s UnitState) Terminal() bool { return s == UnitCompleted || s == UnitFailed }

// PageResult is the state of one page unit. Subscribers receive it once per
// unit when the unit reaches a terminal state.
type PageResult struct {
	JobID JobID
	Page  int
	Name  string
	State UnitState
	// Kind and Err are set for failed units.
	Kind failure.Kind
	Err  error
	// Record is set for completed units.
	Record *compare.DiffRecord

	Started  time.Time
	Finished time.Time
}

// JobSnapshot is a point-in-time copy of a job.
type JobSnapshot struct {
	ID      JobID
	State   JobState
	RetryOf JobID
	// Err is the precondition violation of a job rejected before dispatch.
	Err      error
	Units    []PageResult
	Created  time.Time
	Finished time.Time
}

// Counts tallies the units by state.
func (s JobSnapshot) Counts() map[UnitState]int {
	c := make(map[UnitState]int, 4)
	for _, u := range s.Units {
		c[u.State]++
	}
	return c
}

// Records returns the diff records of completed units ordered by page.
func (s JobSnapshot) Records() []*compare.DiffRecord {
	var out []*compare.DiffRecord
	for _, u := range s.Units {
		if u.State == UnitCompleted && u.Record != nil {
			out = append(out, u.Record)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].PageNumber < out[k].PageNumber })
	return out
}

// FailedPages lists the pages of failed units in page order.
func (s JobSnapshot) FailedPages() []int {
	var out []int
	for _, u := range s.Units {
		if u.State == UnitFailed {
			out = append(out, u.Page)
		}
	}
	sort.Ints(out)
	return out
}

// job is the aggregate behind one JobID. Every mutation goes through one of
// the transition methods below.
type job struct {
	id      JobID
	retryOf JobID
	cmp     PageComparer
	pairs   []compare.PagePair

	// cancel stops dispatch; running units are unaffected.
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     JobState
	err       error
	units     []PageResult
	remaining int
	completed int
	events    []PageResult
	subs      map[int]*subscriber
	nextSub   int
	created   time.Time
	finished  time.Time
}

func newJob(id JobID, pairs []compare.PagePair, cmp PageComparer) *job {
	j := &job{
		id:        id,
		cmp:       cmp,
		pairs:     pairs,
		done:      make(chan struct{}),
		state:     JobCreated,
		units:     make([]PageResult, len(pairs)),
		remaining: len(pairs),
		subs:      make(map[int]*subscriber),
		created:   time.Now(),
	}
	for i, p := range pairs {
		j.units[i] = PageResult{JobID: id, Page: p.Number, Name: p.Name, State: UnitPending}
	}
	return j
}

// reject ends a job that never dispatched.
func (j *job) reject(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JobFailed
	j.err = err
	j.finished = time.Now()
	close(j.done)
}

// begin moves a created job to InProgress once its dispatcher runs, so a job
// cancelled before its first unit starts still passes through InProgress.
func (j *job) begin() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == JobCreated {
		j.state = JobInProgress
	}
}

// markRunning moves unit i to InProgress.
func (j *job) markRunning(i int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.units[i].State != UnitPending {
		return
	}
	j.units[i].State = UnitInProgress
	j.units[i].Started = time.Now()
}

// markCompleted records rec for unit i. It returns false if the unit was
// already terminal.
func (j *job) markCompleted(i int, rec *compare.DiffRecord) (PageResult, bool) {
	return j.finish(i, func(u *PageResult) {
		u.State = UnitCompleted
		u.Record = rec
	})
}

// markFailed records err for unit i. It returns false if the unit was
// already terminal.
func (j *job) markFailed(i int, err error) (PageResult, bool) {
	return j.finish(i, func(u *PageResult) {
		u.State = UnitFailed
		u.Kind = failure.Classify(err)
		u.Err = err
	})
}

func (j *job) finish(i int, set func(u *PageResult)) (PageResult, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	u := &j.units[i]
	if u.State.Terminal() {
		return PageResult{}, false
	}
	set(u)
	u.Finished = time.Now()
	if u.State == UnitCompleted {
		j.completed++
	}
	j.remaining--

	ev := *u
	j.events = append(j.events, ev)
	for _, s := range j.subs {
		s.push(ev)
	}
	if j.remaining == 0 {
		j.settle()
	}
	return ev, true
}

// settle computes the terminal job state. Called with j.mu held.
func (j *job) settle() {
	switch {
	case j.completed == len(j.units):
		j.state = JobCompleted
	case j.completed == 0:
		j.state = JobFailed
	default:
		j.state = JobPartiallyFailed
	}
	j.finished = time.Now()
	for id, s := range j.subs {
		s.close()
		delete(j.subs, id)
	}
	close(j.done)
}

func (j *job) snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	units := make([]PageResult, len(j.units))
	copy(units, j.units)
	return JobSnapshot{
		ID:       j.id,
		State:    j.state,
		RetryOf:  j.retryOf,
		Err:      j.err,
		Units:    units,
		Created:  j.created,
		Finished: j.finished,
	}
}

// subscribe registers fn. Past events are queued first; if the job is
// already finished the subscriber drains them and stops.
func (j *job) subscribe(fn func(PageResult)) func() {
	j.mu.Lock()
	s := newSubscriber(fn)
	for _, ev := range j.events {
		s.push(ev)
	}
	id := j.nextSub
	j.nextSub++
	if j.state.Terminal() {
		s.close()
	} else {
		j.subs[id] = s
	}
	j.mu.Unlock()

	go s.run()

	return func() {
		j.mu.Lock()
		delete(j.subs, id)
		j.mu.Unlock()
		s.stop()
	}
}
