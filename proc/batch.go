package proc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leeineian/tempo/sys"
)

// TrackResolver is the part of the resolver a batch needs.
type TrackResolver interface {
	Resolve(ctx context.Context, locator string, requester Requester) (*Track, error)
}

// BatchReport summarizes one playlist expansion.
type BatchReport struct {
	ID        uuid.UUID
	Total     int
	Added     int
	Rejected  int
	Failed    int
	Cancelled bool
}

type batch struct {
	id        uuid.UUID
	g         *Guild
	res       TrackResolver
	locators  []string
	requester Requester
	opts      SubmitOptions
	ctx       context.Context
	gen       uint64
	interval  time.Duration
	onDone    func(BatchReport)

	report BatchReport
	once   sync.Once
}

// Expand resolves and submits locators one at a time, spaced by the batch
// interval. A Stop cancels whatever has not been submitted yet; onDone
// receives the tally either way.
func (g *Guild) Expand(res TrackResolver, locators []string, requester Requester, opts SubmitOptions, onDone func(BatchReport)) uuid.UUID {
	opts.Silent = true
	b := &batch{
		id:        uuid.New(),
		g:         g,
		res:       res,
		locators:  locators,
		requester: requester,
		opts:      opts,
		interval:  g.cfg.BatchInterval,
		onDone:    onDone,
	}
	b.report = BatchReport{ID: b.id, Total: len(locators)}

	if !g.ask(func() {
		b.ctx, b.gen = g.batchCtx, g.gen
		g.batches++
	}) {
		b.report.Cancelled = true
		if onDone != nil {
			onDone(b.report)
		}
		return b.id
	}
	sys.LogPlayer(sys.MsgPlayerBatchStarted, g.id, b.id, len(locators))
	b.schedule(0, 0)
	return b.id
}

// schedule arms the timer for entry i. Cancelling the batch context stops
// the timer before it can fire.
func (b *batch) schedule(i int, delay time.Duration) {
	if i >= len(b.locators) {
		b.finish(false)
		return
	}
	var (
		mu sync.Mutex
		t  *time.Timer
	)
	stopWatch := context.AfterFunc(b.ctx, func() {
		mu.Lock()
		if t != nil {
			t.Stop()
		}
		mu.Unlock()
		b.finish(true)
	})
	mu.Lock()
	t = time.AfterFunc(delay, func() {
		if !stopWatch() {
			return
		}
		b.fire(i)
	})
	mu.Unlock()
}

func (b *batch) fire(i int) {
	t, err := b.res.Resolve(b.ctx, b.locators[i], b.requester)
	if b.ctx.Err() != nil {
		b.finish(true)
		return
	}
	if err != nil {
		b.report.Failed++
		b.schedule(i+1, b.interval)
		return
	}

	l := b.g.limits(b.ctx)
	var out Outcome
	live := false
	if !b.g.ask(func() {
		if b.gen != b.g.gen || b.ctx.Err() != nil {
			return
		}
		live = true
		out = b.g.submit(t, b.opts, l)
	}) || !live {
		b.finish(true)
		return
	}
	if out.Kind == OutcomeRejected {
		b.report.Rejected++
	} else {
		b.report.Added++
	}
	b.schedule(i+1, b.interval)
}

func (b *batch) finish(cancelled bool) {
	b.once.Do(func() {
		b.report.Cancelled = cancelled
		b.g.post(func() { b.g.batches-- })
		sys.LogPlayer(sys.MsgPlayerBatchDone, b.g.id, b.id, b.report.Added, b.report.Total, cancelled)
		if b.onDone != nil {
			b.onDone(b.report)
		}
	})
}
