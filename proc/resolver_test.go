package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	mu       sync.Mutex
	probes   map[string]*Probe
	errs     map[string]error
	lists    map[string][]PlaylistEntry
	results  map[bool][]SearchResult
	block    bool
	extracts int
	queries  []string
}

func (f *fakeExtractor) Extract(ctx context.Context, u string) (*Probe, error) {
	f.mu.Lock()
	f.extracts++
	block := f.block
	p, err := f.probes[u], f.errs[u]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errNoOutput
	}
	cp := *p
	return &cp, nil
}

func (f *fakeExtractor) Playlist(_ context.Context, u string, limit int) ([]PlaylistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[u]; err != nil {
		return nil, err
	}
	es := f.lists[u]
	if len(es) > limit {
		es = es[:limit]
	}
	return es, nil
}

func (f *fakeExtractor) Search(_ context.Context, q string, _ int, music bool) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results[music], nil
}

func (f *fakeExtractor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extracts
}

type fakeProber struct {
	mu     sync.Mutex
	probes map[string]*Probe
	err    error
	inputs []string
}

func (f *fakeProber) Probe(_ context.Context, in string) (*Probe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.probes[in]; ok {
		cp := *p
		return &cp, nil
	}
	return &Probe{}, nil
}

func newTestResolver(ex *fakeExtractor, pr *fakeProber, opts ResolverOptions) *Resolver {
	opts.Extractor, opts.Prober = ex, pr
	return NewResolver(opts)
}

const ytWatch = "https://www.youtube.com/watch?v=abc"

func TestResolver_Classify(t *testing.T) {
	r := newTestResolver(&fakeExtractor{}, &fakeProber{}, ResolverOptions{MediaDir: t.TempDir()})
	tests := []struct {
		locator string
		want    ProviderClass
	}{
		{ytWatch, ProviderYouTube},
		{"https://youtu.be/abc", ProviderYouTube},
		{"https://music.youtube.com/watch?v=abc", ProviderYouTube},
		{"https://soundcloud.com/artist/song", ProviderSoundCloud},
		{"https://vimeo.com/123", ProviderVimeo},
		{"https://dai.ly/x8", ProviderDailymotion},
		{"https://fb.watch/abc", ProviderFacebook},
		{"https://streamable.com/xyz", ProviderStreamable},
		{"https://cdn.example.com/a.mp3", ProviderGenericHTTP},
		{"https://example.com/page", ProviderGenericHTTP},
		{"https://notyoutube.com/watch", ProviderGenericHTTP},
		{"  ", ProviderUnresolved},
		{"never gonna give you up", ProviderUnresolved},
		{"ftp://example.com/a.mp3", ProviderUnresolved},
		{"../etc/passwd", ProviderUnresolved},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Classify(tt.locator), tt.locator)
	}
}

func TestResolver_HostedTrack(t *testing.T) {
	ex := &fakeExtractor{probes: map[string]*Probe{
		ytWatch: {
			ID:         "abc",
			Title:      "  Big Song @everyone ",
			Uploader:   "Artist",
			Thumbnail:  "https://i.ytimg.com/abc.jpg",
			WebpageURL: ytWatch,
			Duration:   "3:32",
		},
	}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	tr, err := r.Resolve(context.Background(), " "+ytWatch+" ", member)
	require.NoError(t, err)
	assert.Equal(t, ytWatch, tr.Locator)
	assert.Equal(t, ProviderYouTube, tr.Provider)
	assert.Equal(t, KindVideo, tr.Kind)
	assert.Equal(t, "youtube:abc", tr.UniqueID)
	assert.Equal(t, "Big Song @\u200beveryone", tr.Title)
	assert.Equal(t, 212, tr.Duration)
	assert.Equal(t, member, tr.Requester)
	assert.Equal(t, Source{Kind: SourceExtractor, Input: ytWatch}, tr.Source)
	assert.Equal(t, Summary{
		Title:     "Big Song @\u200beveryone",
		URL:       ytWatch,
		Author:    "Artist",
		Thumbnail: "https://i.ytimg.com/abc.jpg",
		Duration:  "3:32",
	}, tr.Summary)
}

func TestResolver_Kinds(t *testing.T) {
	music := "https://music.youtube.com/watch?v=m"
	mix := "https://www.youtube.com/watch?v=x&list=RDx"
	cloud := "https://soundcloud.com/artist/song"
	ex := &fakeExtractor{probes: map[string]*Probe{
		music: {ID: "m", Title: "M", Duration: "60"},
		mix:   {ID: "x", Title: "X", Duration: "60"},
		cloud: {ID: "c", Title: "C", Duration: "60"},
	}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	for locator, want := range map[string]MediaKind{music: KindAudioTrack, mix: KindMix, cloud: KindAudioTrack} {
		tr, err := r.Resolve(context.Background(), locator, member)
		require.NoError(t, err, locator)
		assert.Equal(t, want, tr.Kind, locator)
	}
}

func TestResolver_Livestream(t *testing.T) {
	ex := &fakeExtractor{probes: map[string]*Probe{
		ytWatch: {ID: "abc", Title: "Radio", Duration: "5000", Live: true},
	}}
	cache := NewMemoryCache(time.Hour, 10)
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{Cache: cache})

	tr, err := r.Resolve(context.Background(), ytWatch, member)
	require.NoError(t, err)
	assert.True(t, tr.Livestream)
	assert.Equal(t, KindLivestream, tr.Kind)
	assert.Zero(t, tr.Duration)
	assert.Equal(t, "LIVE", tr.Summary.Duration)
	assert.Empty(t, cache.entries, "livestreams are never cached")
}

func TestResolver_FragmentDuration(t *testing.T) {
	ex := &fakeExtractor{probes: map[string]*Probe{
		ytWatch: {ID: "abc", Title: "Chunked", Duration: "NA", Fragments: []float64{10, 10, 4.4}},
	}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})
	tr, err := r.Resolve(context.Background(), ytWatch, member)
	require.NoError(t, err)
	assert.Equal(t, 24, tr.Duration)
}

func TestResolver_Failures(t *testing.T) {
	private := "https://www.youtube.com/watch?v=private"
	unsupported := "https://example.com/page"
	untitled := "https://vimeo.com/1"
	ex := &fakeExtractor{
		probes: map[string]*Probe{untitled: {ID: "1"}},
		errs: map[string]error{
			private:     &ExtractorError{Err: errors.New("exit status 1"), Stderr: "ERROR: [youtube] private: Private video. Sign in"},
			unsupported: &ExtractorError{Err: errors.New("exit status 1"), Stderr: "ERROR: Unsupported URL: https://example.com/page"},
		},
	}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	tests := []struct {
		locator string
		want    FailureCode
	}{
		{private, FailNoAccess},
		{unsupported, FailUnsupported},
		{untitled, FailNoMetadata},
		{"https://dai.ly/missing", FailNoInfo},
		{"some search words", FailUnsupported},
		{"", FailUnsupported},
	}
	for _, tt := range tests {
		tr, err := r.Resolve(context.Background(), tt.locator, member)
		assert.Nil(t, tr, tt.locator)
		var re *ResolutionError
		require.ErrorAs(t, err, &re, tt.locator)
		assert.Equal(t, tt.want, re.Code, tt.locator)
		assert.Equal(t, tt.want, FailureOf(err), tt.locator)
	}
	assert.Equal(t, FailNoInfo, FailureOf(errors.New("foreign")))
}

func TestResolver_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ex := &fakeExtractor{block: true}
		r := newTestResolver(ex, &fakeProber{}, ResolverOptions{Timeout: 2 * time.Second})

		start := time.Now()
		_, err := r.Resolve(context.Background(), ytWatch, member)
		assert.Equal(t, FailNoInfo, FailureOf(err))
		assert.Equal(t, 2*time.Second, time.Since(start))
	})
}

func TestResolver_CacheKeepsRequesterFresh(t *testing.T) {
	ex := &fakeExtractor{probes: map[string]*Probe{
		ytWatch: {ID: "abc", Title: "Cached", Duration: "60"},
	}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{Cache: NewMemoryCache(time.Hour, 10)})

	first, err := r.Resolve(context.Background(), ytWatch, member)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), ytWatch, other)
	require.NoError(t, err)

	assert.Equal(t, 1, ex.calls())
	assert.Equal(t, member, first.Requester)
	assert.Equal(t, other, second.Requester)
	assert.Equal(t, first.UniqueID, second.UniqueID)
}

func TestResolver_LocalFile(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(full, []byte("ID3"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "albums"), 0o755))

	pr := &fakeProber{probes: map[string]*Probe{full: {Duration: "61.2", Uploader: "Someone"}}}
	cache := NewMemoryCache(time.Hour, 10)
	r := newTestResolver(&fakeExtractor{}, pr, ResolverOptions{MediaDir: dir, Cache: cache})

	tr, err := r.Resolve(context.Background(), "song.mp3", member)
	require.NoError(t, err)
	assert.Equal(t, ProviderLocalFile, tr.Provider)
	assert.Equal(t, KindFile, tr.Kind)
	assert.Equal(t, "song.mp3", tr.Title)
	assert.Equal(t, 61, tr.Duration)
	assert.Equal(t, "file:"+full, tr.UniqueID)
	assert.Equal(t, Source{Kind: SourceFile, Input: full}, tr.Source)
	assert.Empty(t, cache.entries, "local files are probed every time")

	_, err = r.Resolve(context.Background(), "file://"+full, member)
	assert.NoError(t, err)

	_, err = r.Resolve(context.Background(), filepath.Join(dir, "missing.mp3"), member)
	assert.Equal(t, FailNoInfo, FailureOf(err))

	_, err = r.Resolve(context.Background(), filepath.Join(dir, "albums"), member)
	assert.Equal(t, FailUnsupported, FailureOf(err))

	_, err = r.Resolve(context.Background(), "/etc/passwd", member)
	assert.Equal(t, FailUnsupported, FailureOf(err), "paths outside the media directory are refused")

	pr.err = errors.New("invalid data found when processing input")
	_, err = r.Resolve(context.Background(), "song.mp3", member)
	assert.Equal(t, FailNoMetadata, FailureOf(err))
}

func TestResolver_DirectMedia(t *testing.T) {
	locator := "https://cdn.example.com/music/My%20Song.flac"
	pr := &fakeProber{probes: map[string]*Probe{locator: {Duration: "90"}}}
	r := newTestResolver(&fakeExtractor{}, pr, ResolverOptions{})

	tr, err := r.Resolve(context.Background(), locator, member)
	require.NoError(t, err)
	assert.Equal(t, "My Song.flac", tr.Title)
	assert.Equal(t, KindFile, tr.Kind)
	assert.Equal(t, 90, tr.Duration)
	assert.Equal(t, locator, tr.UniqueID)
	assert.Equal(t, Source{Kind: SourceDirect, Input: locator}, tr.Source)

	pr.err = errNoAudio
	_, err = r.Resolve(context.Background(), locator, member)
	assert.Equal(t, FailNoMetadata, FailureOf(err))

	pr.err = errors.New("connection refused")
	_, err = r.Resolve(context.Background(), locator, member)
	assert.Equal(t, FailNoInfo, FailureOf(err))
}

func TestResolver_GenericPageKeepsURLIdentity(t *testing.T) {
	page := "https://example.com/show?ep=1"
	ex := &fakeExtractor{probes: map[string]*Probe{page: {ID: "ignored", Title: "Episode", Duration: "1200"}}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	tr, err := r.Resolve(context.Background(), page, member)
	require.NoError(t, err)
	assert.Equal(t, page, tr.UniqueID)
	assert.Equal(t, 1200, tr.Duration)
}

func TestIsPlaylist(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/playlist?list=PL123":    true,
		"https://www.youtube.com/watch?v=abc&list=PL123": false,
		"https://www.youtube.com/watch?v=abc":            false,
		"https://soundcloud.com/artist/sets/album":       true,
		"https://soundcloud.com/artist/song":             false,
		"https://example.com/playlist?list=PL123":        false,
		"not a url":                                      false,
	}
	for locator, want := range tests {
		assert.Equal(t, want, IsPlaylist(locator), locator)
	}
}

func TestResolver_Entries(t *testing.T) {
	list := "https://www.youtube.com/playlist?list=PL1"
	empty := "https://www.youtube.com/playlist?list=PL2"
	ex := &fakeExtractor{lists: map[string][]PlaylistEntry{
		list: {{URL: "https://youtu.be/1"}, {URL: "  "}, {URL: "https://youtu.be/2"}, {URL: "https://youtu.be/3"}},
		empty: {{URL: ""}},
	}}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	got, err := r.Entries(context.Background(), list, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtu.be/1", "https://youtu.be/2"}, got)

	_, err = r.Entries(context.Background(), empty, 10)
	assert.Equal(t, FailNoMetadata, FailureOf(err))
}

func TestResolver_ResolveQuery(t *testing.T) {
	ex := &fakeExtractor{
		probes:  map[string]*Probe{ytWatch: {ID: "abc", Title: "Found", Duration: "200"}},
		results: map[bool][]SearchResult{true: {{URL: ytWatch, Title: "Found", Uploader: "Artist - Topic"}}},
	}
	r := newTestResolver(ex, &fakeProber{}, ResolverOptions{})

	tr, err := r.ResolveQuery(context.Background(), "yt: found song", other, SearchPrefixes{YouTube: "yt:"})
	require.NoError(t, err)
	assert.Equal(t, "youtube:abc", tr.UniqueID)
	assert.Equal(t, other, tr.Requester)
	assert.ElementsMatch(t, []string{"found song", "found song"}, ex.queries)

	tr, err = r.ResolveQuery(context.Background(), ytWatch, member, SearchPrefixes{})
	require.NoError(t, err, "links skip the search")
	assert.Equal(t, "Found", tr.Title)
	assert.Len(t, ex.queries, 2)

	ex.results = nil
	_, err = r.ResolveQuery(context.Background(), "nothing matches", member, SearchPrefixes{})
	assert.Equal(t, FailNoInfo, FailureOf(err))

	_, err = r.ResolveQuery(context.Background(), "   ", member, SearchPrefixes{})
	assert.Equal(t, FailUnsupported, FailureOf(err))
}
