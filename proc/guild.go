package proc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/tempo/sys"
)

// MaxConsecutiveFaults is how many playback faults in a row stop a guild.
const MaxConsecutiveFaults = 3

const (
	mailboxSize    = 64
	connectTimeout = 15 * time.Second
)

// ErrStreamStart marks a stream that ended before producing audio. The
// scheduler treats it as a start failure rather than a mid-play error.
var ErrStreamStart = errors.New("stream failed to start")

// Settings is the per-guild key-value surface the scheduler reads.
type Settings interface {
	Get(ctx context.Context, guildID snowflake.ID, key, def string) string
}

// Notifier posts a message to a text channel. It must not block.
type Notifier interface {
	Notify(channelID snowflake.ID, content string)
}

// Connector acquires an audio sink for a voice channel.
type Connector interface {
	Open(ctx context.Context, guildID, channelID snowflake.ID) (Sink, error)
}

// Sink is an open audio output owned by one guild.
type Sink interface {
	Play(h *SourceHandle) (Stream, error)
	Pause()
	Resume()
	Disconnect()
}

// Stream is one track playing on a sink. Done closes exactly once, when the
// stream ends for any reason; Err is then the mid-play error, if any.
type Stream interface {
	End()
	Done() <-chan struct{}
	Err() error
}

// GuildConfig holds the timings and defaults shared by every guild.
type GuildConfig struct {
	StopDebounce       time.Duration
	AdvanceDelay       time.Duration
	RetryDelay         time.Duration
	BatchInterval      time.Duration
	DefaultMaxDuration time.Duration
	DefaultQueueLimit  int
}

// GuildDeps are the collaborators a guild talks to.
type GuildDeps struct {
	Connector Connector
	Opener    Opener
	Settings  Settings
	Notifier  Notifier
}

// ControlResult is the closed set of outcomes for control operations.
type ControlResult int

const (
	ControlOK ControlResult = iota
	ControlNothingPlaying
	ControlForbidden
	ControlAlreadyPaused
	ControlNotPaused
	ControlNotFound
	ControlClosed
)

func (c ControlResult) String() string {
	switch c {
	case ControlOK:
		return "ok"
	case ControlNothingPlaying:
		return "nothing-playing"
	case ControlForbidden:
		return "forbidden"
	case ControlAlreadyPaused:
		return "already-paused"
	case ControlNotPaused:
		return "not-paused"
	case ControlNotFound:
		return "not-found"
	default:
		return "closed"
	}
}

// State is a read-only copy of a guild's playback state.
type State struct {
	GuildID      snowflake.ID
	Current      *Track
	Queue        []*Track
	Paused       bool
	Limited      bool
	Connected    bool
	VoiceChannel snowflake.ID
	TextChannel  snowflake.ID
}

type entry struct {
	track  *Track
	silent bool
}

type playing struct {
	*entry
	stream Stream
	handle *SourceHandle
	seq    uint64
}

// Guild is the playback scheduler of one guild. All state below the
// mailbox is owned by the run goroutine and touched nowhere else.
type Guild struct {
	id   snowflake.ID
	cfg  GuildConfig
	deps GuildDeps

	ctx       context.Context
	cancel    context.CancelFunc
	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once

	queue        []*entry
	current      *playing
	sink         Sink
	connecting   bool
	advancing    bool
	seq          uint64
	gen          uint64
	paused       bool
	limited      bool
	announce     bool
	lastStop     time.Time
	faults       int
	batches      int
	batchCtx     context.Context
	batchCancel  context.CancelFunc
	voiceChannel snowflake.ID
	textChannel  snowflake.ID
	mirrored     int
	subs         map[*Subscription]struct{}
}

func NewGuild(id snowflake.ID, cfg GuildConfig, deps GuildDeps) *Guild {
	if deps.Opener == nil {
		deps.Opener = SourceOpener{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Guild{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		mailbox:  make(chan func(), mailboxSize),
		done:     make(chan struct{}),
		announce: true,
		subs:     make(map[*Subscription]struct{}),
	}
	g.batchCtx, g.batchCancel = context.WithCancel(ctx)
	if deps.Settings != nil {
		g.limited, _ = strconv.ParseBool(deps.Settings.Get(ctx, id, sys.SettingLimited, "false"))
	}
	go g.run()
	return g
}

func (g *Guild) ID() snowflake.ID { return g.id }

// --- Mailbox ---

func (g *Guild) run() {
	for {
		select {
		case f := <-g.mailbox:
			g.exec(f)
		case <-g.done:
			for s := range g.subs {
				s.close()
			}
			g.subs = nil
			return
		}
	}
}

func (g *Guild) exec(f func()) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogError(sys.MsgPlayerPanic, g.id, r)
		}
	}()
	f()
}

// post queues f for the run goroutine. It reports false once the guild is closed.
func (g *Guild) post(f func()) bool {
	select {
	case g.mailbox <- f:
		return true
	case <-g.done:
		return false
	}
}

// ask runs f on the run goroutine and waits for it.
func (g *Guild) ask(f func()) bool {
	reply := make(chan struct{})
	if !g.post(func() {
		defer close(reply)
		f()
	}) {
		return false
	}
	select {
	case <-reply:
		return true
	case <-g.done:
		return false
	}
}

// after runs fn on the run goroutine after d, unless the guild was stopped
// in between.
func (g *Guild) after(d time.Duration, fn func()) {
	gen := g.gen
	time.AfterFunc(d, func() {
		g.post(func() {
			if gen == g.gen {
				fn()
			}
		})
	})
}

// --- Operations ---

// Submit runs admission for t and enqueues or plays it.
func (g *Guild) Submit(ctx context.Context, t *Track, opts SubmitOptions) Outcome {
	l := g.limits(ctx)
	var out Outcome
	if !g.ask(func() { out = g.submit(t, opts, l) }) {
		// The guild was torn down; treat it like a fresh stop.
		return rejected(RejectDebounce, t)
	}
	return out
}

func (g *Guild) submit(t *Track, opts SubmitOptions, l limits) Outcome {
	g.announce = l.announce
	if reason, pos := g.admit(t, l, time.Now()); reason != "" {
		out := rejected(reason, t)
		out.Position = pos
		return out
	}
	if opts.TextChannel != 0 {
		g.textChannel = opts.TextChannel
	}

	e := &entry{track: t, silent: opts.Silent}
	elevated := t.Requester.Elevated()
	immediate := opts.PlayImmediately && elevated
	if elevated && (opts.InsertAtFront || immediate) {
		g.queue = append([]*entry{e}, g.queue...)
	} else {
		g.queue = append(g.queue, e)
	}
	if immediate && g.current != nil {
		// The current track still ends normally; advance picks e next.
		g.current.stream.End()
	}

	switch {
	case g.sink == nil:
		if !g.connecting {
			g.connect(opts.VoiceChannel)
		}
	case g.current == nil && !g.advancing:
		// Promotion runs on a later turn, never inside submit.
		g.scheduleAdvance(0)
	}
	g.publish()

	i := slices.Index(g.queue, e)
	if g.current == nil || immediate {
		if i == 0 {
			return Outcome{Kind: OutcomeNowPlaying, Track: t}
		}
		// The head is about to be promoted.
		i--
	}
	return Outcome{Kind: OutcomeQueued, Position: i + 1, Track: t}
}

// Stop clears the queue, ends playback, disconnects and cancels batches.
func (g *Guild) Stop() ControlResult {
	res := ControlClosed
	g.ask(func() {
		if g.current == nil && len(g.queue) == 0 && g.sink == nil && !g.connecting && g.batches == 0 {
			res = ControlNothingPlaying
			return
		}
		res = ControlOK
		g.lastStop = time.Now()
		g.reset()
		g.publish()
		sys.LogPlayer(sys.MsgPlayerStopped, g.id)
	})
	return res
}

// Skip ends the current track. Managers may skip anything, others only
// their own requests.
func (g *Guild) Skip(r Requester) ControlResult {
	res := ControlClosed
	g.ask(func() {
		switch {
		case g.current == nil:
			res = ControlNothingPlaying
		case !r.Elevated() && r.ID != g.current.track.Requester.ID:
			res = ControlForbidden
		default:
			g.current.stream.End()
			res = ControlOK
		}
	})
	return res
}

func (g *Guild) Pause() ControlResult {
	res := ControlClosed
	g.ask(func() {
		switch {
		case g.current == nil:
			res = ControlNothingPlaying
		case g.paused:
			res = ControlAlreadyPaused
		default:
			g.sink.Pause()
			g.paused = true
			res = ControlOK
			g.publish()
		}
	})
	return res
}

func (g *Guild) Resume() ControlResult {
	res := ControlClosed
	g.ask(func() {
		switch {
		case g.current == nil:
			res = ControlNothingPlaying
		case !g.paused:
			res = ControlNotPaused
		default:
			g.sink.Resume()
			g.paused = false
			res = ControlOK
			g.publish()
		}
	})
	return res
}

// Undo removes the requester's most recent queued track. Managers remove
// the last queued track regardless of who asked for it.
func (g *Guild) Undo(r Requester) (ControlResult, *Track) {
	res := ControlClosed
	var removed *Track
	g.ask(func() {
		res = ControlNotFound
		for i := len(g.queue) - 1; i >= 0; i-- {
			if r.Elevated() || g.queue[i].track.Requester.ID == r.ID {
				removed = g.removeAt(i)
				res = ControlOK
				g.publish()
				return
			}
		}
	})
	return res, removed
}

// Remove drops the queue entry at the 1-based position. Managers only.
func (g *Guild) Remove(r Requester, position int) (ControlResult, *Track) {
	res := ControlClosed
	var removed *Track
	g.ask(func() {
		switch {
		case !r.Elevated():
			res = ControlForbidden
		case position < 1 || position > len(g.queue):
			res = ControlNotFound
		default:
			removed = g.removeAt(position - 1)
			res = ControlOK
			g.publish()
		}
	})
	return res, removed
}

// SetLimited toggles limited access, which rejects non-manager submissions.
func (g *Guild) SetLimited(limited bool) {
	g.ask(func() {
		g.limited = limited
		g.publish()
	})
}

// Moved records that the bot was moved to another voice channel.
func (g *Guild) Moved(channelID snowflake.ID) {
	g.ask(func() {
		if g.sink == nil || g.voiceChannel == channelID {
			return
		}
		g.voiceChannel = channelID
		g.publish()
	})
}

// Limits reports the effective admission limits of the guild.
func (g *Guild) Limits(ctx context.Context) (maxDuration time.Duration, queueLimit int) {
	l := g.limits(ctx)
	return time.Duration(l.maxDuration) * time.Second, l.queueLimit
}

func (g *Guild) Snapshot() State {
	var s State
	if !g.ask(func() { s = g.state() }) {
		return State{GuildID: g.id}
	}
	return s
}

// Close stops the guild and ends its run goroutine. Safe to call twice.
func (g *Guild) Close() {
	g.closeOnce.Do(func() {
		g.ask(func() {
			g.reset()
			g.publish()
		})
		close(g.done)
		g.cancel()
	})
}

// --- Run-goroutine internals ---

func (g *Guild) limits(ctx context.Context) limits {
	l := limits{
		maxDuration: int(g.cfg.DefaultMaxDuration / time.Second),
		queueLimit:  g.cfg.DefaultQueueLimit,
		announce:    true,
	}
	if g.deps.Settings == nil {
		return l
	}
	if v, err := strconv.Atoi(g.deps.Settings.Get(ctx, g.id, sys.SettingMaxDuration, "")); err == nil {
		l.maxDuration = v
	}
	if v, err := strconv.Atoi(g.deps.Settings.Get(ctx, g.id, sys.SettingQueueLimit, "")); err == nil {
		l.queueLimit = v
	}
	if v, err := strconv.ParseBool(g.deps.Settings.Get(ctx, g.id, sys.SettingAnnounce, "true")); err == nil {
		l.announce = v
	}
	return l
}

func (g *Guild) connect(channelID snowflake.ID) {
	g.connecting = true
	g.voiceChannel = channelID
	gen := g.gen
	go func() {
		ctx, cancel := context.WithTimeout(g.ctx, connectTimeout)
		defer cancel()
		sink, err := g.deps.Connector.Open(ctx, g.id, channelID)
		if !g.post(func() { g.connected(gen, sink, err) }) && sink != nil {
			sink.Disconnect()
		}
	}()
}

func (g *Guild) connected(gen uint64, sink Sink, err error) {
	if gen != g.gen {
		if sink != nil {
			sink.Disconnect()
		}
		return
	}
	g.connecting = false
	if err != nil {
		sys.LogPlayer(sys.MsgPlayerConnectFailed, g.id, g.voiceChannel, err)
		g.notify(sys.ErrPlayerConnectFailed)
		g.queue = nil
		g.voiceChannel = 0
		g.publish()
		return
	}
	g.sink = sink
	g.advance()
	g.publish()
}

// advance promotes the queue head. It is a no-op while a track is active,
// and tears the sink down once the queue is empty.
func (g *Guild) advance() {
	if g.current != nil || g.sink == nil {
		return
	}
	if len(g.queue) == 0 {
		g.disconnect()
		g.publish()
		return
	}
	e := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]

	h, err := g.deps.Opener.Open(g.ctx, e.track.Source)
	var s Stream
	if err == nil {
		if s, err = g.sink.Play(h); err != nil {
			_ = h.Close()
		}
	}
	if err != nil {
		g.fault(e.track, err)
		return
	}

	g.seq++
	g.current = &playing{entry: e, stream: s, handle: h, seq: g.seq}
	g.paused = false
	seq := g.seq
	go func() {
		<-s.Done()
		g.post(func() { g.ended(seq) })
	}()

	sys.LogPlayer(sys.MsgPlayerNowPlaying, g.id, e.track.Title, e.track.URL)
	if !e.silent && g.announce && g.mirrored == 0 {
		g.notify(fmt.Sprintf(sys.MsgPlayerNowPlayingNotice, e.track.Line(), e.track.Requester.Mention()))
	}
	g.publish()
}

// ended is the single transition out of a playing track.
func (g *Guild) ended(seq uint64) {
	p := g.current
	if p == nil || p.seq != seq {
		return
	}
	g.current = nil
	g.paused = false
	go p.handle.Close()

	if err := p.stream.Err(); errors.Is(err, ErrStreamStart) {
		g.fault(p.track, err)
		return
	} else if err != nil {
		sys.LogPlayer(sys.MsgPlayerStreamError, g.id, p.track.Title, err)
		g.faults++
		if g.faults >= MaxConsecutiveFaults {
			g.halt()
			return
		}
	} else {
		g.faults = 0
	}
	g.publish()
	g.scheduleAdvance(g.cfg.AdvanceDelay)
}

// scheduleAdvance promotes the queue head after d. Submissions in between
// queue behind it instead of starting right away.
func (g *Guild) scheduleAdvance(d time.Duration) {
	g.advancing = true
	g.after(d, func() {
		g.advancing = false
		g.advance()
	})
}

func (g *Guild) fault(t *Track, err error) {
	g.faults++
	sys.LogPlayer(sys.MsgPlayerStartFailed, g.id, t.Title, err)
	g.notify(fmt.Sprintf(sys.ErrPlayerStartFailed, t.Title))
	if g.faults >= MaxConsecutiveFaults {
		g.halt()
		return
	}
	g.publish()
	g.scheduleAdvance(g.cfg.RetryDelay)
}

// halt stops after too many faults in a row.
func (g *Guild) halt() {
	sys.LogPlayer(sys.MsgPlayerFaultCap, g.id, g.faults)
	g.notify(sys.ErrPlayerFaultCap)
	g.reset()
	g.publish()
}

// reset returns the guild to idle. Pending timers, connections and
// batches started before it see a newer generation and drop out.
func (g *Guild) reset() {
	g.gen++
	g.batchCancel()
	g.batchCtx, g.batchCancel = context.WithCancel(g.ctx)
	clear(g.queue)
	g.queue = nil
	if p := g.current; p != nil {
		g.current = nil
		p.stream.End()
		go p.handle.Close()
	}
	g.disconnect()
	g.connecting = false
	g.advancing = false
	g.faults = 0
}

func (g *Guild) disconnect() {
	if g.sink != nil {
		g.sink.Disconnect()
		g.sink = nil
	}
	g.voiceChannel = 0
	g.paused = false
}

func (g *Guild) removeAt(i int) *Track {
	t := g.queue[i].track
	g.queue = append(g.queue[:i], g.queue[i+1:]...)
	return t
}

func (g *Guild) notify(content string) {
	if g.textChannel == 0 || g.deps.Notifier == nil {
		return
	}
	g.deps.Notifier.Notify(g.textChannel, content)
}

func (g *Guild) state() State {
	s := State{
		GuildID:      g.id,
		Queue:        make([]*Track, len(g.queue)),
		Paused:       g.paused,
		Limited:      g.limited,
		Connected:    g.sink != nil,
		VoiceChannel: g.voiceChannel,
		TextChannel:  g.textChannel,
	}
	if g.current != nil {
		s.Current = g.current.track
	}
	for i, e := range g.queue {
		s.Queue[i] = e.track
	}
	return s
}

// --- Subscriptions ---

// Subscription delivers the latest state after every change. Slow readers
// only ever see the newest state.
type Subscription struct {
	Updates <-chan State
	Done    <-chan struct{}

	ch   chan State
	done chan struct{}
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) send(st State) {
	select {
	case s.ch <- st:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- st:
	default:
	}
}

// Subscribe registers for state changes. The current state is delivered
// right away.
func (g *Guild) Subscribe() *Subscription {
	ch := make(chan State, 1)
	done := make(chan struct{})
	s := &Subscription{Updates: ch, Done: done, ch: ch, done: done}
	if !g.ask(func() {
		g.subs[s] = struct{}{}
		s.send(g.state())
	}) {
		s.close()
	}
	return s
}

func (g *Guild) Unsubscribe(s *Subscription) {
	g.ask(func() { delete(g.subs, s) })
	s.close()
}

func (g *Guild) setMirrored(delta int) {
	g.ask(func() { g.mirrored += delta })
}

func (g *Guild) publish() {
	if len(g.subs) == 0 {
		return
	}
	st := g.state()
	for s := range g.subs {
		s.send(st)
	}
}
