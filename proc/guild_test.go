package proc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeineian/tempo/sys"
)

// --- Fakes ---

type fakeStream struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeStream() *fakeStream { return &fakeStream{done: make(chan struct{})} }

func (s *fakeStream) End()                  { s.once.Do(func() { close(s.done) }) }
func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.End()
}

func (s *fakeStream) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type fakeSink struct {
	mu           sync.Mutex
	streams      []*fakeStream
	inputs       []string
	paused       bool
	disconnected bool
}

func (s *fakeSink) Play(h *SourceHandle) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := newFakeStream()
	s.streams = append(s.streams, st)
	s.inputs = append(s.inputs, h.Input)
	return st, nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *fakeSink) Disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

func (s *fakeSink) last() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

func (s *fakeSink) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

type fakeConnector struct {
	mu    sync.Mutex
	sinks []*fakeSink
	err   error
	// gate, when set, holds every Open until it is closed.
	gate chan struct{}
}

func (c *fakeConnector) Open(_ context.Context, _, _ snowflake.ID) (Sink, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeSink{}
	c.sinks = append(c.sinks, s)
	return s, nil
}

func (c *fakeConnector) sink() *fakeSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sinks) == 0 {
		return nil
	}
	return c.sinks[len(c.sinks)-1]
}

func (c *fakeConnector) opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sinks)
}

type fakeOpener struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (o *fakeOpener) Open(_ context.Context, src Source) (*SourceHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[src.Input] {
		return nil, errors.New("source unavailable")
	}
	return &SourceHandle{Input: src.Input}, nil
}

func (o *fakeOpener) failOn(inputs ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, in := range inputs {
		o.fail[in] = true
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(_ snowflake.ID, content string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, content)
	n.mu.Unlock()
}

func (n *fakeNotifier) all() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.msgs, "\n")
}

type fakeSettings map[string]string

func (s fakeSettings) Get(_ context.Context, _ snowflake.ID, key, def string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// --- Harness ---

var (
	member  = Requester{ID: 1, Name: "member"}
	other   = Requester{ID: 2, Name: "other"}
	manager = Requester{ID: 3, Name: "manager", Manager: true}
	owner   = Requester{ID: 4, Name: "owner", Owner: true}
)

var testGuildConfig = GuildConfig{
	StopDebounce:       3 * time.Second,
	AdvanceDelay:       time.Second,
	RetryDelay:         2 * time.Second,
	BatchInterval:      500 * time.Millisecond,
	DefaultMaxDuration: time.Hour,
	DefaultQueueLimit:  5,
}

type harness struct {
	g      *Guild
	conn   *fakeConnector
	opener *fakeOpener
	notes  *fakeNotifier
}

func newHarness(t *testing.T, settings fakeSettings) *harness {
	t.Helper()
	h := &harness{
		conn:   &fakeConnector{},
		opener: &fakeOpener{fail: make(map[string]bool)},
		notes:  &fakeNotifier{},
	}
	h.g = NewGuild(100, testGuildConfig, GuildDeps{
		Connector: h.conn,
		Opener:    h.opener,
		Settings:  settings,
		Notifier:  h.notes,
	})
	t.Cleanup(h.g.Close)
	return h
}

func (h *harness) submit(t *Track, opts SubmitOptions) Outcome {
	opts.VoiceChannel, opts.TextChannel = 200, 300
	return h.g.Submit(context.Background(), t, opts)
}

func track(id string, r Requester) *Track {
	return &Track{
		UniqueID:  id,
		Title:     "Song " + id,
		Duration:  180,
		Source:    Source{Kind: SourceDirect, Input: id},
		Summary:   Summary{Duration: "3:00"},
		Requester: r,
	}
}

func ids(ts []*Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UniqueID
	}
	return out
}

// assertStreamInvariant checks that a current track and a live stream
// always come together.
func assertStreamInvariant(t *testing.T, h *harness) {
	t.Helper()
	st := h.g.Snapshot()
	sink := h.conn.sink()
	if st.Current == nil {
		if sink == nil {
			return
		}
		for _, s := range sink.streams {
			assert.True(t, s.ended(), "idle guild has a live stream")
		}
		return
	}
	require.NotNil(t, sink)
	require.NotNil(t, sink.last())
	assert.False(t, sink.last().ended(), "current track has no live stream")
}

// --- Submission ---

func TestSubmit_EmptyGuildPlaysImmediately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)

		out := h.submit(track("a", member), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)

		synctest.Wait()
		st := h.g.Snapshot()
		require.NotNil(t, st.Current)
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Empty(t, st.Queue)
		assert.True(t, st.Connected)
		assert.Equal(t, snowflake.ID(200), st.VoiceChannel)
		assert.Equal(t, []string{"a"}, h.conn.sink().played())
		assertStreamInvariant(t, h)
	})
}

func TestSubmit_PlaysInOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)

		assert.Equal(t, OutcomeNowPlaying, h.submit(track("a", member), SubmitOptions{}).Kind)
		synctest.Wait()
		b := h.submit(track("b", member), SubmitOptions{})
		c := h.submit(track("c", member), SubmitOptions{})
		assert.Equal(t, Outcome{Kind: OutcomeQueued, Position: 1, Track: b.Track}, b)
		assert.Equal(t, Outcome{Kind: OutcomeQueued, Position: 2, Track: c.Track}, c)

		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b", "c"}, ids(st.Queue))
		assertStreamInvariant(t, h)

		h.conn.sink().last().End()
		synctest.Wait()
		assert.Nil(t, h.g.Snapshot().Current, "advance waits for the delay")
		assertStreamInvariant(t, h)

		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		st = h.g.Snapshot()
		require.NotNil(t, st.Current)
		assert.Equal(t, "b", st.Current.UniqueID)
		assert.Equal(t, []string{"c"}, ids(st.Queue))
		assertStreamInvariant(t, h)
	})
}

func TestSubmit_WhileConnectingReportsPlayablePosition(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.conn.gate = make(chan struct{})

		assert.Equal(t, OutcomeNowPlaying, h.submit(track("a", member), SubmitOptions{}).Kind)
		out := h.submit(track("b", member), SubmitOptions{})
		assert.Equal(t, OutcomeQueued, out.Kind)
		assert.Equal(t, 1, out.Position)

		dup := h.submit(track("a", other), SubmitOptions{})
		assert.Equal(t, RejectAlreadyPlaying, dup.Reason)
		dup = h.submit(track("b", other), SubmitOptions{})
		assert.Equal(t, RejectAlreadyQueued, dup.Reason)
		assert.Equal(t, 1, dup.Position)

		close(h.conn.gate)
		synctest.Wait()
		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b"}, ids(st.Queue))
		assert.Equal(t, 1, h.conn.opened())
	})
}

func TestSubmit_DuplicateKeepsPosition(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		h.submit(track("c", member), SubmitOptions{})

		out := h.submit(track("b", other), SubmitOptions{})
		assert.Equal(t, OutcomeRejected, out.Kind)
		assert.Equal(t, RejectAlreadyQueued, out.Reason)
		assert.Equal(t, 1, out.Position)

		out = h.submit(track("a", manager), SubmitOptions{InsertAtFront: true})
		assert.Equal(t, RejectAlreadyPlaying, out.Reason)
		assert.Equal(t, ClassDuplicate, out.Reason.Class())

		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b", "c"}, ids(st.Queue))
	})
}

func TestSubmit_InsertAtFront(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})

		out := h.submit(track("c", member), SubmitOptions{InsertAtFront: true})
		assert.Equal(t, 2, out.Position, "members always append")

		out = h.submit(track("d", manager), SubmitOptions{InsertAtFront: true})
		assert.Equal(t, OutcomeQueued, out.Kind)
		assert.Equal(t, 1, out.Position)

		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"d", "b", "c"}, ids(st.Queue))
	})
}

func TestSubmit_ManagerFrontPlaysNextAfterCurrentEnds(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()

		h.submit(track("b", manager), SubmitOptions{InsertAtFront: true})
		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b"}, ids(st.Queue))

		h.conn.sink().last().End()
		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Equal(t, "b", h.g.Snapshot().Current.UniqueID)
	})
}

func TestSubmit_PlayImmediately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		first := h.conn.sink().last()

		out := h.submit(track("c", member), SubmitOptions{PlayImmediately: true})
		assert.Equal(t, OutcomeQueued, out.Kind)
		assert.False(t, first.ended(), "members cannot cut in")

		out = h.submit(track("d", manager), SubmitOptions{PlayImmediately: true})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
		assert.True(t, first.ended())

		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		st := h.g.Snapshot()
		assert.Equal(t, "d", st.Current.UniqueID)
		assert.Equal(t, []string{"b", "c"}, ids(st.Queue))
		assertStreamInvariant(t, h)
	})
}

func TestSubmit_DuringAdvanceDelayWaitsForPromotion(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.opener.failOn("bad")
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.conn.sink().last().End()
		synctest.Wait()

		out := h.submit(track("bad", member), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
		out = h.submit(track("good", member), SubmitOptions{})
		assert.Equal(t, Outcome{Kind: OutcomeQueued, Position: 1, Track: out.Track}, out)

		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Equal(t, []string{"bad", "good"}, ids(st.Queue), "nothing starts inside submit")
		assert.NotContains(t, h.notes.all(), "Couldn't play")

		time.Sleep(testGuildConfig.AdvanceDelay / 2)
		synctest.Wait()
		assert.Nil(t, h.g.Snapshot().Current, "the ended track keeps its delay")
		assert.Equal(t, []string{"a"}, h.conn.sink().played())

		time.Sleep(testGuildConfig.AdvanceDelay / 2)
		synctest.Wait()
		assert.Contains(t, h.notes.all(), fmt.Sprintf(sys.ErrPlayerStartFailed, "Song bad"))
		assert.Equal(t, []string{"good"}, ids(h.g.Snapshot().Queue))

		time.Sleep(testGuildConfig.RetryDelay)
		synctest.Wait()
		assert.Equal(t, "good", h.g.Snapshot().Current.UniqueID)
		assert.Equal(t, []string{"a", "good"}, h.conn.sink().played())
	})
}

// --- Admission ---

func TestAdmission(t *testing.T) {
	live := track("live", member)
	live.Livestream = true
	unbounded := track("unbounded", member)
	unbounded.Duration = 0
	long := track("long", member)
	long.Duration = 7200
	blocked := track("blocked", member)
	blocked.Title = "Luis Fonsi - Despacito ft. Daddy Yankee"
	bracketed := track("bracketed", member)
	bracketed.Title = "Luis Fonsi (Despacito)"
	tagged := track("tagged", member)
	tagged.Title = "Summer hits [DESPACITO]"
	braced := track("braced", member)
	braced.Title = "Party mix {Des-pacito Remix}"

	tests := []struct {
		name      string
		settings  fakeSettings
		track     *Track
		requester Requester
		want      RejectReason
		class     RejectClass
	}{
		{"livestream by member", nil, live, member, RejectLivestream, ClassNoPermission},
		{"livestream by manager", nil, live, manager, "", ""},
		{"unbounded by member", nil, unbounded, member, RejectUnbounded, ClassNoPermission},
		{"unbounded by owner", nil, unbounded, owner, "", ""},
		{"too long by member", nil, long, member, RejectTooLong, ClassTooLong},
		{"too long by manager", nil, long, manager, "", ""},
		{"guild max duration", fakeSettings{sys.SettingMaxDuration: "60"}, track("x", member), member, RejectTooLong, ClassTooLong},
		{"blocklisted by member", nil, blocked, member, RejectBlocklisted, ClassBlocklisted},
		{"blocklisted by manager", nil, blocked, manager, RejectBlocklisted, ClassBlocklisted},
		{"blocklisted by owner", nil, blocked, owner, RejectBlocklisted, ClassBlocklisted},
		{"blocklisted in parentheses", nil, bracketed, owner, RejectBlocklisted, ClassBlocklisted},
		{"blocklisted in brackets", nil, tagged, manager, RejectBlocklisted, ClassBlocklisted},
		{"blocklisted in braces", nil, braced, member, RejectBlocklisted, ClassBlocklisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				h := newHarness(t, tt.settings)
				out := h.submit(tt.track.WithRequester(tt.requester), SubmitOptions{})
				if tt.want == "" {
					assert.Equal(t, OutcomeNowPlaying, out.Kind)
					return
				}
				assert.Equal(t, OutcomeRejected, out.Kind)
				assert.Equal(t, tt.want, out.Reason)
				assert.Equal(t, tt.class, out.Reason.Class())

				synctest.Wait()
				st := h.g.Snapshot()
				assert.Nil(t, st.Current)
				assert.Empty(t, st.Queue)
				assert.Zero(t, h.conn.opened(), "a rejection never connects")
			})
		})
	}
}

func TestAdmission_QueueFull(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, fakeSettings{sys.SettingQueueLimit: "2"})
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		h.submit(track("c", member), SubmitOptions{})

		out := h.submit(track("d", member), SubmitOptions{})
		assert.Equal(t, RejectQueueFull, out.Reason)
		assert.Len(t, h.g.Snapshot().Queue, 2)

		out = h.submit(track("d", manager), SubmitOptions{})
		assert.Equal(t, OutcomeQueued, out.Kind)
		assert.Equal(t, 3, out.Position)
	})
}

func TestAdmission_LimitedAccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.g.SetLimited(true)
		assert.True(t, h.g.Snapshot().Limited)

		out := h.submit(track("a", member), SubmitOptions{})
		assert.Equal(t, RejectLimitedAccess, out.Reason)

		out = h.submit(track("a", manager), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
	})
}

func TestAdmission_LimitedLoadedFromSettings(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, fakeSettings{sys.SettingLimited: "true"})
		assert.Equal(t, RejectLimitedAccess, h.submit(track("a", member), SubmitOptions{}).Reason)
	})
}

// --- Controls ---

func TestSkip_Permissions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Equal(t, ControlNothingPlaying, h.g.Skip(member))

		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", other), SubmitOptions{})
		stream := h.conn.sink().last()

		assert.Equal(t, ControlForbidden, h.g.Skip(other))
		synctest.Wait()
		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b"}, ids(st.Queue))
		assert.False(t, stream.ended())

		assert.Equal(t, ControlOK, h.g.Skip(member))
		assert.True(t, stream.ended())

		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Equal(t, "b", h.g.Snapshot().Current.UniqueID)
		assert.Equal(t, ControlOK, h.g.Skip(manager))
	})
}

func TestPauseResume(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Equal(t, ControlNothingPlaying, h.g.Pause())
		assert.Equal(t, ControlNothingPlaying, h.g.Resume())

		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		sink := h.conn.sink()

		assert.Equal(t, ControlNotPaused, h.g.Resume())
		assert.Equal(t, ControlOK, h.g.Pause())
		assert.True(t, h.g.Snapshot().Paused)
		assert.True(t, sink.paused)
		assert.Equal(t, ControlAlreadyPaused, h.g.Pause())

		assert.Equal(t, ControlOK, h.g.Resume())
		assert.False(t, h.g.Snapshot().Paused)
		assert.False(t, sink.paused)
	})
}

func TestUndoAndRemove(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		h.submit(track("c", member), SubmitOptions{})
		h.submit(track("d", other), SubmitOptions{})

		res, removed := h.g.Undo(member)
		assert.Equal(t, ControlOK, res)
		assert.Equal(t, "c", removed.UniqueID)

		res, removed = h.g.Undo(other)
		assert.Equal(t, ControlOK, res)
		assert.Equal(t, "d", removed.UniqueID)

		res, _ = h.g.Undo(other)
		assert.Equal(t, ControlNotFound, res)

		res, _ = h.g.Remove(member, 1)
		assert.Equal(t, ControlForbidden, res)
		res, _ = h.g.Remove(manager, 5)
		assert.Equal(t, ControlNotFound, res)
		res, removed = h.g.Remove(manager, 1)
		assert.Equal(t, ControlOK, res)
		assert.Equal(t, "b", removed.UniqueID)

		st := h.g.Snapshot()
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Empty(t, st.Queue)
	})
}

// --- Stop ---

func TestStop_ClearsEverything(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		h.submit(track("c", member), SubmitOptions{})
		sink := h.conn.sink()
		stream := sink.last()

		assert.Equal(t, ControlOK, h.g.Stop())
		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Empty(t, st.Queue)
		assert.False(t, st.Connected)
		assert.Zero(t, st.VoiceChannel)
		assert.True(t, stream.ended())
		assert.True(t, sink.disconnected)

		time.Sleep(10 * testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Nil(t, h.g.Snapshot().Current, "a stopped guild never advances")
		assert.Equal(t, []string{"a"}, sink.played())
		assert.Equal(t, ControlNothingPlaying, h.g.Stop())
	})
}

func TestStop_Debounce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.g.Stop()

		out := h.submit(track("b", member), SubmitOptions{})
		assert.Equal(t, RejectDebounce, out.Reason)
		assert.Equal(t, ClassDebounce, out.Reason.Class())

		out = h.submit(track("b", manager), SubmitOptions{})
		assert.Equal(t, RejectDebounce, out.Reason, "only owners bypass the debounce")

		time.Sleep(testGuildConfig.StopDebounce)
		out = h.submit(track("b", member), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
	})
}

func TestStop_OwnerBypassesDebounce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.g.Stop()

		out := h.submit(track("b", owner), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
	})
}

func TestStop_IdleLeavesNoDebounce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Equal(t, ControlNothingPlaying, h.g.Stop())

		out := h.submit(track("a", member), SubmitOptions{})
		assert.Equal(t, OutcomeNowPlaying, out.Kind)
	})
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, locator string, r Requester) (*Track, error) {
	if strings.HasPrefix(locator, "broken") {
		return nil, failure(FailNoInfo, locator, nil)
	}
	return track(locator, r), nil
}

func TestStop_CancelsBatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		reports := make(chan BatchReport, 1)

		h.g.Expand(fakeResolver{}, []string{"p1", "p2", "p3", "p4"}, member,
			SubmitOptions{VoiceChannel: 200, TextChannel: 300},
			func(r BatchReport) { reports <- r })
		time.Sleep(time.Millisecond)
		synctest.Wait()
		assert.Equal(t, "p1", h.g.Snapshot().Current.UniqueID)

		time.Sleep(testGuildConfig.BatchInterval)
		synctest.Wait()
		assert.Equal(t, []string{"p2"}, ids(h.g.Snapshot().Queue))

		h.g.Stop()
		r := <-reports
		assert.True(t, r.Cancelled)
		assert.Equal(t, 2, r.Added)
		assert.Equal(t, 4, r.Total)

		time.Sleep(10 * testGuildConfig.BatchInterval)
		synctest.Wait()
		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Empty(t, st.Queue)
		assert.Equal(t, 1, h.conn.opened(), "cancelled entries never reconnect")
	})
}

func TestExpand_ReportsTally(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		reports := make(chan BatchReport, 1)
		h.submit(track("p3", member), SubmitOptions{})
		synctest.Wait()
		h.g.Expand(fakeResolver{}, []string{"p1", "broken", "p3", "p2"}, member,
			SubmitOptions{VoiceChannel: 200, TextChannel: 300},
			func(r BatchReport) { reports <- r })

		time.Sleep(4 * testGuildConfig.BatchInterval)
		r := <-reports
		assert.False(t, r.Cancelled)
		assert.Equal(t, BatchReport{ID: r.ID, Total: 4, Added: 2, Rejected: 1, Failed: 1}, r)
		assert.Equal(t, []string{"p1", "p2"}, ids(h.g.Snapshot().Queue))
		assert.NotContains(t, h.notes.all(), "Song p1", "batch entries are silent")
	})
}

// --- Faults ---

func TestFault_StartFailureRetriesAfterDelay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.opener.failOn("bad")
		h.conn.gate = make(chan struct{})

		h.submit(track("bad", member), SubmitOptions{})
		h.submit(track("good", member), SubmitOptions{})
		close(h.conn.gate)
		synctest.Wait()

		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Equal(t, []string{"good"}, ids(st.Queue))
		assert.Contains(t, h.notes.all(), fmt.Sprintf(sys.ErrPlayerStartFailed, "Song bad"))

		time.Sleep(testGuildConfig.RetryDelay)
		synctest.Wait()
		assert.Equal(t, "good", h.g.Snapshot().Current.UniqueID)
		assertStreamInvariant(t, h)
	})
}

func TestFault_AsyncStartFailureUsesRetryPath(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})

		h.conn.sink().last().fail(fmt.Errorf("%w: no audio", ErrStreamStart))
		synctest.Wait()
		assert.Contains(t, h.notes.all(), fmt.Sprintf(sys.ErrPlayerStartFailed, "Song a"))

		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Nil(t, h.g.Snapshot().Current, "start failures wait the retry delay")

		time.Sleep(testGuildConfig.RetryDelay - testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Equal(t, "b", h.g.Snapshot().Current.UniqueID)
	})
}

func TestFault_MidPlayErrorAdvances(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})

		h.conn.sink().last().fail(errors.New("connection reset"))
		time.Sleep(testGuildConfig.AdvanceDelay)
		synctest.Wait()
		assert.Equal(t, "b", h.g.Snapshot().Current.UniqueID)
		assert.NotContains(t, h.notes.all(), "Couldn't play")
	})
}

func TestFault_CapStopsGuild(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.opener.failOn("x1", "x2", "x3")
		h.conn.gate = make(chan struct{})
		for _, id := range []string{"x1", "x2", "x3", "y"} {
			h.submit(track(id, member), SubmitOptions{})
		}
		close(h.conn.gate)
		synctest.Wait()
		time.Sleep(2 * testGuildConfig.RetryDelay)
		synctest.Wait()

		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Empty(t, st.Queue)
		assert.False(t, st.Connected)
		assert.Contains(t, h.notes.all(), sys.ErrPlayerFaultCap)
		assert.Empty(t, h.conn.sink().played())
	})
}

func TestFault_CleanEndResetsCount(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.opener.failOn("x1", "x2", "x3")
		h.conn.gate = make(chan struct{})
		for _, id := range []string{"x1", "x2", "ok", "x3", "y"} {
			h.submit(track(id, member), SubmitOptions{})
		}
		close(h.conn.gate)
		synctest.Wait()
		time.Sleep(2 * testGuildConfig.RetryDelay)
		synctest.Wait()
		require.NotNil(t, h.g.Snapshot().Current)
		assert.Equal(t, "ok", h.g.Snapshot().Current.UniqueID)

		h.conn.sink().last().End()
		time.Sleep(testGuildConfig.AdvanceDelay + testGuildConfig.RetryDelay)
		synctest.Wait()
		assert.Equal(t, "y", h.g.Snapshot().Current.UniqueID)
		assert.NotContains(t, h.notes.all(), sys.ErrPlayerFaultCap)
	})
}

func TestConnectFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.conn.err = errors.New("voice handshake timed out")
		h.conn.gate = make(chan struct{})

		h.submit(track("a", member), SubmitOptions{})
		h.submit(track("b", member), SubmitOptions{})
		close(h.conn.gate)
		synctest.Wait()

		st := h.g.Snapshot()
		assert.Nil(t, st.Current)
		assert.Empty(t, st.Queue)
		assert.False(t, st.Connected)
		assert.Contains(t, h.notes.all(), sys.ErrPlayerConnectFailed)
	})
}

// --- Announcements ---

func TestAnnouncements(t *testing.T) {
	tests := []struct {
		name     string
		settings fakeSettings
		opts     SubmitOptions
		mirrored bool
		want     bool
	}{
		{"default", nil, SubmitOptions{}, false, true},
		{"silent", nil, SubmitOptions{Silent: true}, false, false},
		{"announce off", fakeSettings{sys.SettingAnnounce: "false"}, SubmitOptions{}, false, false},
		{"mirrored", nil, SubmitOptions{}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				h := newHarness(t, tt.settings)
				if tt.mirrored {
					h.g.setMirrored(1)
				}
				h.submit(track("a", member), tt.opts)
				synctest.Wait()
				if tt.want {
					assert.Contains(t, h.notes.all(), "Song a")
				} else {
					assert.Empty(t, h.notes.all())
				}
			})
		})
	}
}

// --- Subscriptions & lifecycle ---

func TestSubscribe_LatestWins(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		sub := h.g.Subscribe()
		initial := <-sub.Updates
		assert.Nil(t, initial.Current)

		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.submit(track("b", member), SubmitOptions{})
		h.submit(track("c", member), SubmitOptions{})

		st := <-sub.Updates
		assert.Equal(t, "a", st.Current.UniqueID)
		assert.Equal(t, []string{"b", "c"}, ids(st.Queue))
		select {
		case <-sub.Updates:
			t.Fatal("stale states should have been dropped")
		default:
		}

		h.g.Unsubscribe(sub)
		<-sub.Done
	})
}

func TestClose_RejectsFurtherWork(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		sub := h.g.Subscribe()
		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		sink := h.conn.sink()

		h.g.Close()
		<-sub.Done
		assert.True(t, sink.disconnected)
		assert.Equal(t, RejectDebounce, h.submit(track("b", member), SubmitOptions{}).Reason)
		assert.Equal(t, ControlClosed, h.g.Stop())
		assert.Equal(t, State{GuildID: 100}, h.g.Snapshot())
		h.g.Close()
	})
}

func TestMoved_UpdatesVoiceChannel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, nil)
		h.g.Moved(999)
		assert.Zero(t, h.g.Snapshot().VoiceChannel, "ignored while disconnected")

		h.submit(track("a", member), SubmitOptions{})
		synctest.Wait()
		h.g.Moved(999)
		assert.Equal(t, snowflake.ID(999), h.g.Snapshot().VoiceChannel)
	})
}
