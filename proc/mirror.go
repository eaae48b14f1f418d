package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/leeineian/tempo/sys"
)

// QueuePageSize is how many queue entries one mirror page shows.
const QueuePageSize = 10

// Surface is a message the mirror can create, rewrite and remove.
type Surface interface {
	Send(ctx context.Context, v View) (string, error)
	Edit(ctx context.Context, handle string, v View) error
	Delete(ctx context.Context, handle string) error
}

type QueueLine struct {
	Position int
	Track    *Track
}

// View is one rendered frame of the player.
type View struct {
	Current *Track
	Lines   []QueueLine
	Page    int
	Pages   int
	Total   int
	Paused  bool
	Limited bool
}

// Mirror keeps a Surface in sync with a guild. It has no say over
// playback; its only state is the page cursor.
type Mirror struct {
	g       *Guild
	surface Surface
	handle  string
	sub     *Subscription
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	kick    chan struct{}

	mu   sync.Mutex
	page int
	last State

	detachOnce sync.Once
}

func newMirror(g *Guild, surface Surface) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		g:       g,
		surface: surface,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
	}
}

func (m *Mirror) GuildID() snowflake.ID { return m.g.id }

// Handle identifies the rendered surface, for routing its controls.
func (m *Mirror) Handle() string { return m.handle }

func (m *Mirror) attach(ctx context.Context) error {
	m.last = m.g.Snapshot()
	h, err := m.surface.Send(ctx, m.view())
	if err != nil {
		return err
	}
	m.handle = h
	m.g.setMirrored(1)
	m.sub = m.g.Subscribe()
	go m.loop()
	sys.LogMirror(sys.MsgMirrorAttached, m.g.id, h)
	return nil
}

func (m *Mirror) loop() {
	for {
		select {
		case st := <-m.sub.Updates:
			m.OnStateChanged(st)
		case <-m.kick:
			m.render()
		case <-m.sub.Done:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// OnStateChanged re-renders for a new guild state.
func (m *Mirror) OnStateChanged(st State) {
	m.mu.Lock()
	m.last = st
	m.clamp()
	m.mu.Unlock()
	m.render()
}

// Turn moves the page cursor by delta, staying inside the queue.
func (m *Mirror) Turn(delta int) {
	m.mu.Lock()
	m.page += delta
	m.clamp()
	m.mu.Unlock()
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Mirror) Page() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page
}

// Detach removes the surface and stops listening. Safe to call twice.
func (m *Mirror) Detach() {
	m.detachOnce.Do(func() {
		m.cancel()
		if m.sub != nil {
			m.g.Unsubscribe(m.sub)
			m.g.setMirrored(-1)
		}
		if m.handle == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.surface.Delete(ctx, m.handle); err != nil {
			sys.LogMirror(sys.MsgMirrorDeleteFailed, m.g.id, err)
		}
		sys.LogMirror(sys.MsgMirrorDetached, m.g.id)
	})
}

func (m *Mirror) render() {
	if err := m.limiter.Wait(m.ctx); err != nil {
		return
	}
	m.mu.Lock()
	v := m.view()
	m.mu.Unlock()
	if err := m.surface.Edit(m.ctx, m.handle, v); err != nil {
		sys.LogMirror(sys.MsgMirrorRenderFailed, m.g.id, err)
	}
}

func pageCount(n int) int {
	if n == 0 {
		return 1
	}
	return (n + QueuePageSize - 1) / QueuePageSize
}

func (m *Mirror) clamp() {
	if p := pageCount(len(m.last.Queue)); m.page >= p {
		m.page = p - 1
	}
	if m.page < 0 {
		m.page = 0
	}
}

func (m *Mirror) view() View {
	return ViewOf(m.last, m.page)
}

// ViewOf renders page of st's queue. Out-of-range pages are clamped.
func ViewOf(st State, page int) View {
	q := st.Queue
	pages := pageCount(len(q))
	page = max(0, min(page, pages-1))
	v := View{
		Current: st.Current,
		Page:    page,
		Pages:   pages,
		Total:   len(q),
		Paused:  st.Paused,
		Limited: st.Limited,
	}
	start := page * QueuePageSize
	end := min(start+QueuePageSize, len(q))
	for i := start; i < end; i++ {
		v.Lines = append(v.Lines, QueueLine{Position: i + 1, Track: q[i]})
	}
	return v
}
