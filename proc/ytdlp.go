package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/leeineian/tempo/sys"
)

// Probe is raw provider metadata before normalization.
type Probe struct {
	ID          string
	Title       string
	Uploader    string
	UploaderURL string
	Thumbnail   string
	WebpageURL  string
	MediaURL    string
	Protocol    string
	Duration    string
	Live        bool
	Fragments   []float64
}

type PlaylistEntry struct{ URL, Title, Uploader string }

type SearchResult struct {
	URL, Title, Uploader string
	Duration             time.Duration
}

// Extractor fetches provider metadata.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Probe, error)
	Playlist(ctx context.Context, url string, limit int) ([]PlaylistEntry, error)
	Search(ctx context.Context, query string, limit int, music bool) ([]SearchResult, error)
}

// ExtractorError carries the extractor's stderr for classification.
type ExtractorError struct {
	Err    error
	Stderr string
}

func (e *ExtractorError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return e.Err.Error()
	}
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	return fmt.Sprintf("%v: %s", e.Err, msg)
}

func (e *ExtractorError) Unwrap() error { return e.Err }

var errNoOutput = errors.New("extractor returned no output")

// YtdlpExtractor shells out to yt-dlp.
type YtdlpExtractor struct{}

const probeTemplate = "%(id)s\t%(title)s\t%(uploader)s\t%(uploader_url)s\t%(thumbnail)s\t%(webpage_url)s\t%(duration)s\t%(is_live)s\t%(url)s\t%(protocol)s"

func (YtdlpExtractor) Extract(ctx context.Context, u string) (*Probe, error) {
	res, err := ytdlp.New().
		Print(probeTemplate).
		Format("bestaudio/best").
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", u)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return nil, &ExtractorError{Err: err, Stderr: stderr}
	}
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if p, ok := parseProbeLine(l); ok {
			return p, nil
		}
	}
	return nil, errNoOutput
}

func parseProbeLine(l string) (*Probe, bool) {
	ps := strings.Split(l, "\t")
	if len(ps) < 10 {
		return nil, false
	}
	for i, p := range ps {
		if p == "NA" {
			ps[i] = ""
		}
	}
	return &Probe{
		ID:          ps[0],
		Title:       ps[1],
		Uploader:    ps[2],
		UploaderURL: ps[3],
		Thumbnail:   ps[4],
		WebpageURL:  ps[5],
		Duration:    ps[6],
		Live:        strings.EqualFold(ps[7], "true"),
		MediaURL:    ps[8],
		Protocol:    ps[9],
	}, true
}

func (YtdlpExtractor) Playlist(ctx context.Context, u string, m int) ([]PlaylistEntry, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s").
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, u)

	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return nil, &ExtractorError{Err: err, Stderr: stderr}
	}
	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	es := make([]PlaylistEntry, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 3 || ps[0] == "" || ps[0] == "NA" {
			continue
		}
		es = append(es, PlaylistEntry{URL: ps[0], Title: ps[1], Uploader: ps[2]})
	}
	return es, nil
}

func (YtdlpExtractor) Search(ctx context.Context, q string, m int, music bool) ([]SearchResult, error) {
	prefix := "ytsearch"
	if music {
		prefix = "ytmsearch"
	}
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, fmt.Sprintf("%s%d:%s", prefix, m, q))

	if err != nil {
		return nil, err
	}
	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	rs := make([]SearchResult, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		secs, _ := ParseDuration(ps[3])
		rs = append(rs, SearchResult{URL: ps[0], Title: ps[1], Uploader: ps[2], Duration: time.Duration(secs) * time.Second})
	}
	return rs, nil
}

// classifyExtractorError maps extractor stderr into a failure code.
func classifyExtractorError(err error) FailureCode {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailNoInfo
	}
	msg := strings.ToLower(err.Error())
	var ee *ExtractorError
	if errors.As(err, &ee) {
		msg += " " + strings.ToLower(ee.Stderr)
	}
	switch {
	case strings.Contains(msg, "unsupported url"):
		return FailUnsupported
	case strings.Contains(msg, "private video"),
		strings.Contains(msg, "sign in"),
		strings.Contains(msg, "members-only"),
		strings.Contains(msg, "login required"),
		strings.Contains(msg, "http error 403"),
		strings.Contains(msg, "http error 401"),
		strings.Contains(msg, "drm"),
		strings.Contains(msg, "geo restricted"),
		strings.Contains(msg, "not available in your country"):
		return FailNoAccess
	default:
		return FailNoInfo
	}
}

// --- Stream handles ---

// extractorStream is the stdout of a yt-dlp download piped to the transcoder.
type extractorStream struct {
	r      *io.PipeReader
	stderr *bytes.Buffer
	cancel context.CancelFunc
	done   chan error
}

func openExtractorStream(ctx context.Context, u string) (*extractorStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio/best").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, u)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	s := &extractorStream{r: pr, stderr: &stderr, cancel: cancel, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		s.done <- err
	}()
	return s, nil
}

func (s *extractorStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close kills the download and waits for the process to exit.
func (s *extractorStream) Close() error {
	s.cancel()
	_ = s.r.Close()
	err := <-s.done
	s.done <- err
	if err != nil {
		// Killed or broken pipe is the normal way out.
		msg := strings.ToLower(s.stderr.String())
		if strings.Contains(err.Error(), "killed") || strings.Contains(err.Error(), "exit status 1") || strings.Contains(msg, "broken pipe") {
			return nil
		}
		sys.LogVoice(sys.MsgVoiceExtractorExit, err, s.stderr.String())
		return err
	}
	return nil
}
