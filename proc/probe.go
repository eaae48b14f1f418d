package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
)

// Prober reads container metadata for files and direct media URLs.
type Prober interface {
	Probe(ctx context.Context, input string) (*Probe, error)
}

var errNoAudio = errors.New("no audio stream")

// AstiavProber opens the input with libavformat and reads its header.
type AstiavProber struct{}

func (AstiavProber) Probe(ctx context.Context, in string) (*Probe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("failed to alloc ctx")
	}
	defer fc.Free()

	var opts *astiav.Dictionary
	if strings.HasPrefix(in, "http") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		opts.Set("timeout", "10000000", 0)
	}
	if err := fc.OpenInput(in, nil, opts); err != nil {
		return nil, err
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return nil, err
	}
	hasAudio := false
	for _, s := range fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return nil, errNoAudio
	}

	p := &Probe{}
	if d := fc.Duration(); d > 0 {
		p.Duration = strconv.FormatFloat(float64(d)/1000000.0, 'f', 3, 64)
	}
	if md := fc.Metadata(); md != nil {
		if e := md.Get("title", nil, 0); e != nil {
			p.Title = e.Value()
		}
		if e := md.Get("artist", nil, 0); e != nil {
			p.Uploader = e.Value()
		}
	}
	return p, nil
}

// --- HLS fragment sums ---

// fetchFragments reads an HLS media playlist and returns its #EXTINF durations.
func fetchFragments(ctx context.Context, client *http.Client, playlistURL string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var frags []float64
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#EXTINF:") {
			continue
		}
		v := strings.TrimPrefix(line, "#EXTINF:")
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			frags = append(frags, f)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, errors.New("playlist has no fragments")
	}
	return frags, nil
}

func isHLS(protocol, mediaURL string) bool {
	return strings.HasPrefix(protocol, "m3u8") || strings.Contains(strings.ToLower(mediaURL), ".m3u8")
}
