// Package debounce coalesces rapid edits into one delayed commit per
// field group.
package debounce

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/logging"
)

// DefaultWait is the quiet period used when none is configured.
const DefaultWait = 1500 * time.Millisecond

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("debouncer is closed")

// Func is a pending commit.
type Func func(ctx context.Context) error

type pending struct {
	timer *time.Timer
	fn    Func
}

// Debouncer runs at most one commit per group after the group has been
// quiet for the wait period. Each Trigger replaces the group's pending
// commit and restarts its timer. Commits of one group never overlap.
type Debouncer struct {
	wait time.Duration
	log  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*pending
	running map[string]*sync.Mutex
	closed  bool
	onError func(group string, err error)
}

// New creates a debouncer with the given quiet period.
func New(wait time.Duration, log *logging.Logger) *Debouncer {
	if wait <= 0 {
		wait = DefaultWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		wait:    wait,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pending),
		running: make(map[string]*sync.Mutex),
	}
}

// OnError registers the callback for failed commits. The local value is
// left as is; reporting is the callback's job.
func (d *Debouncer) OnError(fn func(group string, err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// Trigger arms or re-arms group with fn. Ignored after Close.
func (d *Debouncer) Trigger(group string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if p, ok := d.pending[group]; ok {
		p.timer.Stop()
	}
	p := &pending{fn: fn}
	p.timer = time.AfterFunc(d.wait, func() { d.fire(group, p) })
	d.pending[group] = p
	d.log.Trace().Str("group", group).Dur("wait", d.wait).Msg("debounce armed")
}

func (d *Debouncer) fire(group string, p *pending) {
	d.mu.Lock()
	if d.closed || d.pending[group] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, group)
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.run(group, p.fn)
}

// Flush runs group's pending commit now and waits for it. It returns the
// commit's error, or nil when nothing was pending.
func (d *Debouncer) Flush(group string) error {
	d.mu.Lock()
	p, ok := d.pending[group]
	if !ok || d.closed {
		d.mu.Unlock()
		return nil
	}
	p.timer.Stop()
	delete(d.pending, group)
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	return d.run(group, p.fn)
}

// Run drops group's pending commit and runs fn now. It waits for a commit
// of the group that is already running, so writes of one group stay in
// order.
func (d *Debouncer) Run(group string, fn Func) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if p, ok := d.pending[group]; ok {
		p.timer.Stop()
		delete(d.pending, group)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	return d.run(group, fn)
}

// FlushAll runs every pending commit now in group-name order and returns
// the first error.
func (d *Debouncer) FlushAll() error {
	var first error
	for _, g := range d.Groups() {
		if err := d.Flush(g); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Cancel drops group's pending commit.
func (d *Debouncer) Cancel(group string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[group]; ok {
		p.timer.Stop()
		delete(d.pending, group)
	}
}

// CancelAll drops every pending commit.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelAllLocked()
}

func (d *Debouncer) cancelAllLocked() {
	for g, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, g)
	}
}

// Pending reports whether group has a commit waiting.
func (d *Debouncer) Pending(group string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[group]
	return ok
}

// Groups returns the groups with a pending commit, sorted.
func (d *Debouncer) Groups() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	groups := make([]string, 0, len(d.pending))
	for g := range d.pending {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return groups
}

// Close drops pending commits, waits for running ones and rejects later
// triggers.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancelAllLocked()
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}

func (d *Debouncer) run(group string, fn Func) error {
	d.mu.Lock()
	gm, ok := d.running[group]
	if !ok {
		gm = &sync.Mutex{}
		d.running[group] = gm
	}
	onError := d.onError
	d.mu.Unlock()

	gm.Lock()
	defer gm.Unlock()

	start := time.Now()
	err := fn(d.ctx)
	if err != nil {
		d.log.Warn().Err(err).Str("group", group).Msg("debounced commit failed")
		if onError != nil {
			onError(group, err)
		}
		return err
	}
	d.log.Debug().Str("group", group).Dur("took", time.Since(start)).Msg("debounced commit")
	return nil
}
