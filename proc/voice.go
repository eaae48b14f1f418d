package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/tempo/sys"
)

// VoiceConnector opens Discord voice connections through the gateway.
type VoiceConnector struct {
	Client *bot.Client
}

func (c VoiceConnector) Open(ctx context.Context, guildID, channelID snowflake.ID) (Sink, error) {
	conn := c.Client.VoiceManager.CreateConn(guildID)
	if err := conn.Open(ctx, channelID, false, false); err != nil {
		conn.Close(context.Background())
		return nil, err
	}
	sys.LogVoice(sys.MsgVoiceConnected, channelID, guildID)
	return &voiceSink{conn: conn, guildID: guildID, channelID: channelID}, nil
}

type voiceSink struct {
	conn      voice.Conn
	guildID   snowflake.ID
	channelID snowflake.ID

	mu       sync.Mutex
	provider *framePipe
}

// Play starts transcoding h in the background. Failures to open or decode
// the input surface through the stream as ErrStreamStart.
func (s *voiceSink) Play(h *SourceHandle) (Stream, error) {
	if h == nil || (h.Input == "" && h.Reader == nil) {
		return nil, errors.New("empty source")
	}
	ctx, cancel := context.WithCancel(context.Background())
	st := &audioStream{cancel: cancel, done: make(chan struct{})}
	p := newFramePipe(ctx)

	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()

	go st.transcode(ctx, h, p)
	go func() {
		select {
		case <-p.finished:
		case <-ctx.Done():
		}
		cancel()
		s.release(p)
		st.finish()
	}()

	s.conn.SetOpusFrameProvider(p)
	s.conn.SetSpeaking(context.TODO(), voice.SpeakingFlagMicrophone)
	return st, nil
}

// release detaches p from the connection unless a newer stream replaced it.
func (s *voiceSink) release(p *framePipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != p {
		return
	}
	s.provider = nil
	s.conn.SetOpusFrameProvider(nil)
	s.conn.SetSpeaking(context.TODO(), 0)
}

func (s *voiceSink) Pause()  { s.setPaused(true) }
func (s *voiceSink) Resume() { s.setPaused(false) }

func (s *voiceSink) setPaused(v bool) {
	s.mu.Lock()
	p := s.provider
	s.mu.Unlock()
	if p != nil {
		p.setPaused(v)
	}
}

func (s *voiceSink) Disconnect() {
	s.mu.Lock()
	s.provider = nil
	s.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.conn.SetOpusFrameProvider(nil)
		s.conn.Close(ctx)
		sys.LogVoice(sys.MsgVoiceDisconnected, s.channelID, s.guildID)
	}()
}

type audioStream struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *audioStream) End()                  { s.cancel() }
func (s *audioStream) Done() <-chan struct{} { return s.done }

func (s *audioStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *audioStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *audioStream) finish() {
	s.once.Do(func() { close(s.done) })
}

func (s *audioStream) transcode(ctx context.Context, h *SourceHandle, p *framePipe) {
	defer p.push(nil)
	t := newOpusTranscoder()
	defer t.close()

	if err := t.open(h.Input, h.Reader); err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrStreamStart, err))
		return
	}
	if err := t.setupDecoder(); err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrStreamStart, err))
		return
	}
	if err := t.setupEncoder(); err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrStreamStart, err))
		return
	}
	if err := t.run(ctx, p.push); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		s.fail(err)
	}
}

// framePipe hands transcoded Opus frames to the voice connection. A nil
// frame marks the end of the stream.
type framePipe struct {
	ctx      context.Context
	frames   chan []byte
	finished chan struct{}
	once     sync.Once

	pausedMu   sync.Mutex
	pausedCond *sync.Cond
	paused     bool
}

func newFramePipe(ctx context.Context) *framePipe {
	p := &framePipe{
		ctx:      ctx,
		frames:   make(chan []byte, 100),
		finished: make(chan struct{}),
	}
	p.pausedCond = sync.NewCond(&p.pausedMu)
	context.AfterFunc(ctx, func() {
		p.pausedMu.Lock()
		p.pausedCond.Broadcast()
		p.pausedMu.Unlock()
	})
	return p
}

func (p *framePipe) push(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *framePipe) setPaused(v bool) {
	p.pausedMu.Lock()
	p.paused = v
	p.pausedCond.Broadcast()
	p.pausedMu.Unlock()
}

func (p *framePipe) close() {
	p.once.Do(func() { close(p.finished) })
}

// ProvideOpusFrame blocks while paused and yields silence when the
// transcoder falls behind.
func (p *framePipe) ProvideOpusFrame() ([]byte, error) {
	p.pausedMu.Lock()
	for p.paused && p.ctx.Err() == nil {
		p.pausedCond.Wait()
	}
	p.pausedMu.Unlock()

	select {
	case f := <-p.frames:
		if f == nil {
			p.close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		p.close()
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}

func (p *framePipe) Close() {
	p.close()
}
