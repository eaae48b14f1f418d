package proc

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// provider is one resolution strategy. Resolve fills the canonical fields;
// the resolver stamps locator, sanitizes text and builds the summary.
type provider interface {
	Class() ProviderClass
	Match(locator string, u *url.URL) bool
	Resolve(ctx context.Context, locator string, u *url.URL) (*Track, error)
}

// --- Hosted providers (yt-dlp backed) ---

type hostedProvider struct {
	class ProviderClass
	hosts []string
	kind  func(u *url.URL) MediaKind
	ex    Extractor
	http  *http.Client
}

func (p *hostedProvider) Class() ProviderClass { return p.class }

func (p *hostedProvider) Match(_ string, u *url.URL) bool {
	if u == nil {
		return false
	}
	return hostMatches(u.Hostname(), p.hosts)
}

func hostMatches(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (p *hostedProvider) Resolve(ctx context.Context, locator string, u *url.URL) (*Track, error) {
	pr, err := p.ex.Extract(ctx, locator)
	if err != nil {
		return nil, failure(classifyExtractorError(err), locator, err)
	}
	if strings.TrimSpace(pr.Title) == "" {
		return nil, failure(FailNoMetadata, locator, errors.New("missing title"))
	}

	t := &Track{
		Provider:   p.class,
		Kind:       KindVideo,
		Title:      pr.Title,
		URL:        firstNonEmpty(pr.WebpageURL, locator),
		Author:     Author{Name: pr.Uploader, URL: pr.UploaderURL},
		Thumbnail:  pr.Thumbnail,
		Livestream: pr.Live,
		Source:     Source{Kind: SourceExtractor, Input: firstNonEmpty(pr.WebpageURL, locator)},
	}
	if pr.ID != "" {
		t.UniqueID = string(p.class) + ":" + pr.ID
	} else {
		t.UniqueID = t.URL
	}
	if p.kind != nil {
		t.Kind = p.kind(u)
	}
	if pr.Live {
		t.Kind = KindLivestream
		return t, nil
	}

	if secs, ok := ParseDuration(pr.Duration); ok {
		t.Duration = secs
	} else if len(pr.Fragments) > 0 {
		t.Duration = SumFragments(pr.Fragments)
	} else if isHLS(pr.Protocol, pr.MediaURL) && p.http != nil {
		if frags, err := fetchFragments(ctx, p.http, pr.MediaURL); err == nil {
			t.Duration = SumFragments(frags)
		}
	}
	return t, nil
}

func youtubeKind(u *url.URL) MediaKind {
	if u == nil {
		return KindVideo
	}
	if strings.HasPrefix(u.Query().Get("list"), "RD") {
		return KindMix
	}
	if strings.EqualFold(u.Hostname(), "music.youtube.com") {
		return KindAudioTrack
	}
	return KindVideo
}

func audioKind(*url.URL) MediaKind { return KindAudioTrack }

// --- Local files ---

type localFileProvider struct {
	root   string
	prober Prober
}

func (p *localFileProvider) Class() ProviderClass { return ProviderLocalFile }

func (p *localFileProvider) Match(locator string, u *url.URL) bool {
	if p.root == "" {
		return false
	}
	if u != nil && u.Scheme != "" && u.Scheme != "file" {
		return false
	}
	full, ok := p.path(locator)
	if !ok {
		return false
	}
	if strings.HasPrefix(locator, "file://") || filepath.IsAbs(locator) {
		return true
	}
	// Bare relative names only count when the file is there, so search
	// phrases fall through to unsupported.
	_, err := os.Stat(full)
	return err == nil
}

// path maps a locator onto a file below root.
func (p *localFileProvider) path(locator string) (string, bool) {
	loc := strings.TrimPrefix(locator, "file://")
	if loc == "" {
		return "", false
	}
	if !filepath.IsAbs(loc) {
		loc = filepath.Join(p.root, loc)
	}
	loc = filepath.Clean(loc)
	rel, err := filepath.Rel(filepath.Clean(p.root), loc)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return loc, true
}

func (p *localFileProvider) Resolve(ctx context.Context, locator string, _ *url.URL) (*Track, error) {
	full, _ := p.path(locator)
	info, err := os.Stat(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, failure(FailNoInfo, locator, err)
	case err != nil:
		return nil, failure(FailNoAccess, locator, err)
	case info.IsDir():
		return nil, failure(FailUnsupported, locator, errors.New("is a directory"))
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, failure(FailNoAccess, locator, err)
	}
	f.Close()

	pr, err := p.prober.Probe(ctx, full)
	if err != nil {
		return nil, failure(FailNoMetadata, locator, err)
	}
	t := fileTrack(ProviderLocalFile, pr, filepath.Base(full))
	t.UniqueID = "file:" + full
	t.Source = Source{Kind: SourceFile, Input: full}
	return t, nil
}

// --- Direct media links ---

var mediaExtensions = map[string]bool{
	".mp3": true, ".ogg": true, ".opus": true, ".oga": true, ".flac": true, ".wav": true,
	".m4a": true, ".aac": true, ".webm": true, ".mp4": true, ".mkv": true, ".mov": true,
}

type directFileProvider struct {
	prober Prober
}

func (p *directFileProvider) Class() ProviderClass { return ProviderGenericHTTP }

func (p *directFileProvider) Match(_ string, u *url.URL) bool {
	if !isHTTP(u) {
		return false
	}
	return mediaExtensions[strings.ToLower(path.Ext(u.Path))]
}

func (p *directFileProvider) Resolve(ctx context.Context, locator string, u *url.URL) (*Track, error) {
	pr, err := p.prober.Probe(ctx, locator)
	if err != nil {
		if errors.Is(err, errNoAudio) {
			return nil, failure(FailNoMetadata, locator, err)
		}
		return nil, failure(FailNoInfo, locator, err)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	t := fileTrack(ProviderGenericHTTP, pr, name)
	t.URL = locator
	t.UniqueID = locator
	t.Source = Source{Kind: SourceDirect, Input: locator}
	return t, nil
}

func fileTrack(class ProviderClass, pr *Probe, fallbackTitle string) *Track {
	t := &Track{
		Provider: class,
		Kind:     KindFile,
		Title:    firstNonEmpty(pr.Title, fallbackTitle),
		Author:   Author{Name: pr.Uploader},
	}
	t.Duration, _ = ParseDuration(pr.Duration)
	return t
}

// --- Generic pages ---

type genericHTTPProvider struct {
	ex Extractor
}

func (p *genericHTTPProvider) Class() ProviderClass { return ProviderGenericHTTP }

func (p *genericHTTPProvider) Match(_ string, u *url.URL) bool { return isHTTP(u) }

func (p *genericHTTPProvider) Resolve(ctx context.Context, locator string, _ *url.URL) (*Track, error) {
	pr, err := p.ex.Extract(ctx, locator)
	if err != nil {
		return nil, failure(classifyExtractorError(err), locator, err)
	}
	if strings.TrimSpace(pr.Title) == "" {
		return nil, failure(FailNoMetadata, locator, errors.New("missing title"))
	}
	t := &Track{
		Provider:   ProviderGenericHTTP,
		Kind:       KindVideo,
		UniqueID:   locator,
		Title:      pr.Title,
		URL:        locator,
		Author:     Author{Name: pr.Uploader, URL: pr.UploaderURL},
		Thumbnail:  pr.Thumbnail,
		Livestream: pr.Live,
		Source:     Source{Kind: SourceExtractor, Input: locator},
	}
	if pr.Live {
		t.Kind = KindLivestream
	} else {
		t.Duration, _ = ParseDuration(pr.Duration)
	}
	return t, nil
}

func isHTTP(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
