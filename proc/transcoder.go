package proc

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
)

const (
	opusSampleRate = 48000
	opusFrameSize  = 960
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// opusTranscoder decodes any input libavformat understands and re-encodes
// it as 20ms stereo Opus frames.
type opusTranscoder struct {
	inputCtx         *astiav.FormatContext
	decoderCtx       *astiav.CodecContext
	encoderCtx       *astiav.CodecContext
	resampleCtx      *astiav.SoftwareResampleContext
	audioStreamIndex int
	packet           *astiav.Packet
	frame            *astiav.Frame
	resampled        *astiav.Frame
	fifo             *astiav.AudioFifo
	reader           io.Reader
	emit             func([]byte)
	pts              int64
}

func newOpusTranscoder() *opusTranscoder {
	return &opusTranscoder{
		packet:    astiav.AllocPacket(),
		frame:     astiav.AllocFrame(),
		resampled: astiav.AllocFrame(),
	}
}

// open reads from r when set, otherwise opens in by name.
func (t *opusTranscoder) open(in string, r io.Reader) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc ctx")
	}
	opts := astiav.NewDictionary()
	defer opts.Free()

	if r != nil {
		t.reader = r
		ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
			return t.reader.Read(b)
		}, func(offset int64, whence int) (int64, error) {
			return 0, errors.New("seek not supported")
		}, nil)
		if err != nil {
			return err
		}
		t.inputCtx.SetPb(ioCtx)
		t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))
		opts.Set("probesize", "10000000", 0)
		opts.Set("analyzeduration", "10000000", 0)
		in = ""
	} else if strings.HasPrefix(in, "http") {
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_at_eof", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "30", 0)
		opts.Set("timeout", "30000000", 0)
	}
	if err := t.inputCtx.OpenInput(in, nil, opts); err != nil {
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errNoAudio
	}
	return nil
}

func (t *opusTranscoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *opusTranscoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(128000)
	t.encoderCtx.SetSampleRate(opusSampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, opusSampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}
	// The resampler configures itself from the first converted frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), opusFrameSize*2)
	return nil
}

// run transcodes until EOF or ctx ends, handing each Opus packet to emit.
func (t *opusTranscoder) run(ctx context.Context, emit func([]byte)) error {
	t.emit = emit
	defer t.packet.Unref()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		err := t.decoderCtx.SendPacket(t.packet)
		t.packet.Unref()
		if err != nil {
			return err
		}
		t.receiveFrames()
		t.drainFifo(opusFrameSize)
	}

	_ = t.decoderCtx.SendPacket(nil)
	t.receiveFrames()
	t.drainFifo(1)
	_ = t.encoderCtx.SendFrame(nil)
	t.receivePackets()
	return nil
}

// receiveFrames resamples every decoded frame into the fifo.
func (t *opusTranscoder) receiveFrames() {
	for t.decoderCtx.ReceiveFrame(t.frame) == nil {
		nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, opusSampleRate)))
		if nb > 0 {
			t.prepare(nb)
			if t.resampleCtx.ConvertFrame(t.frame, t.resampled) == nil {
				_, _ = t.fifo.Write(t.resampled)
			}
		}
		t.frame.Unref()
	}
}

// drainFifo encodes frames while at least floor samples are buffered.
func (t *opusTranscoder) drainFifo(floor int) {
	for t.fifo.Size() >= floor && t.fifo.Size() > 0 {
		n := min(opusFrameSize, t.fifo.Size())
		t.prepare(n)
		_, _ = t.fifo.Read(t.resampled)
		t.resampled.SetPts(t.pts)
		t.pts += int64(n)
		if t.encoderCtx.SendFrame(t.resampled) == nil {
			t.receivePackets()
		}
	}
}

func (t *opusTranscoder) prepare(samples int) {
	t.resampled.Unref()
	t.resampled.SetNbSamples(samples)
	t.resampled.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampled.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampled.SetSampleRate(t.encoderCtx.SampleRate())
	_ = t.resampled.AllocBuffer(0)
}

func (t *opusTranscoder) receivePackets() {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return
		}
		d := p.Data()
		out := make([]byte, len(d))
		copy(out, d)
		p.Free()
		t.emit(out)
	}
}

func (t *opusTranscoder) close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampled != nil {
		t.resampled.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
