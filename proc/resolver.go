package proc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leeineian/tempo/sys"
)

const defaultResolveTimeout = 20 * time.Second

type ResolverOptions struct {
	Extractor  Extractor
	Prober     Prober
	HTTPClient *http.Client
	// MediaDir enables local-file locators below it.
	MediaDir string
	Timeout  time.Duration
	Cache    MetadataCache
}

// Resolver turns locators into tracks. It holds no mutable state of its own
// and is safe for concurrent use.
type Resolver struct {
	providers []provider
	extractor Extractor
	timeout   time.Duration
	cache     MetadataCache
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Extractor == nil {
		opts.Extractor = YtdlpExtractor{}
	}
	if opts.Prober == nil {
		opts.Prober = AstiavProber{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultResolveTimeout
	}
	ex, hc := opts.Extractor, opts.HTTPClient

	return &Resolver{
		// Order is significant: the first match wins.
		providers: []provider{
			&hostedProvider{class: ProviderYouTube, hosts: []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}, kind: youtubeKind, ex: ex, http: hc},
			&hostedProvider{class: ProviderSoundCloud, hosts: []string{"soundcloud.com", "snd.sc"}, kind: audioKind, ex: ex, http: hc},
			&hostedProvider{class: ProviderVimeo, hosts: []string{"vimeo.com"}, ex: ex, http: hc},
			&hostedProvider{class: ProviderDailymotion, hosts: []string{"dailymotion.com", "dai.ly"}, ex: ex, http: hc},
			&hostedProvider{class: ProviderFacebook, hosts: []string{"facebook.com", "fb.watch"}, ex: ex, http: hc},
			&hostedProvider{class: ProviderStreamable, hosts: []string{"streamable.com"}, ex: ex, http: hc},
			&localFileProvider{root: opts.MediaDir, prober: opts.Prober},
			&directFileProvider{prober: opts.Prober},
			&genericHTTPProvider{ex: ex},
		},
		extractor: ex,
		timeout:   opts.Timeout,
		cache:     opts.Cache,
	}
}

// Classify returns the provider class a locator would take.
func (r *Resolver) Classify(locator string) ProviderClass {
	if p, _ := r.classify(strings.TrimSpace(locator)); p != nil {
		return p.Class()
	}
	return ProviderUnresolved
}

func (r *Resolver) classify(locator string) (provider, *url.URL) {
	if locator == "" {
		return nil, nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		u = nil
	}
	for _, p := range r.providers {
		if p.Match(locator, u) {
			return p, u
		}
	}
	return nil, u
}

// Resolve produces a track or a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, locator string, requester Requester) (*Track, error) {
	locator = strings.TrimSpace(locator)
	p, u := r.classify(locator)
	if p == nil {
		return nil, failure(FailUnsupported, locator, nil)
	}

	key := cacheKey(p.Class(), locator)
	if r.cache != nil && p.Class() != ProviderLocalFile {
		if t, ok := r.cache.Get(ctx, key); ok {
			return t.WithRequester(requester), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		t   *Track
		err error
	}
	// Some probes ignore ctx; the buffered channel lets them finish on their own.
	ch := make(chan result, 1)
	go func() {
		t, err := p.Resolve(ctx, locator, u)
		ch <- result{t, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		sys.LogResolver(sys.MsgResolverTimeout, locator, r.timeout)
		return nil, failure(FailNoInfo, locator, ctx.Err())
	}

	if res.err != nil {
		var re *ResolutionError
		if !errors.As(res.err, &re) {
			re = failure(FailNoInfo, locator, res.err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			re.Code = FailNoInfo
		}
		sys.LogResolver(sys.MsgResolverFailed, locator, re.Code, re.Err)
		return nil, re
	}
	if res.t == nil {
		return nil, failure(FailNoInfo, locator, errors.New("provider returned nothing"))
	}

	t := finalize(res.t, p.Class(), locator)
	if r.cache != nil && p.Class() != ProviderLocalFile && !t.Livestream {
		r.cache.Set(context.WithoutCancel(ctx), key, t)
	}
	return t.WithRequester(requester), nil
}

// finalize applies the post-conditions shared by every provider.
func finalize(t *Track, class ProviderClass, locator string) *Track {
	t.Locator = locator
	t.Provider = class
	t.Title = SanitizeMentions(strings.TrimSpace(t.Title))
	t.Author.Name = SanitizeMentions(strings.TrimSpace(t.Author.Name))
	if t.Duration < 0 {
		t.Duration = 0
	}
	if t.Livestream {
		t.Kind = KindLivestream
		t.Duration = 0
	}
	if t.UniqueID == "" {
		t.UniqueID = locator
	}
	t.Summary = buildSummary(t)
	return t
}

// --- Playlists ---

// IsPlaylist reports whether the locator names a list of tracks rather than one.
func IsPlaylist(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || !isHTTP(u) {
		return false
	}
	host := u.Hostname()
	switch {
	case hostMatches(host, []string{"youtube.com"}):
		list := u.Query().Get("list")
		if list == "" {
			return false
		}
		// watch?v=...&list=... plays the single video.
		return u.Query().Get("v") == "" || strings.HasPrefix(u.Path, "/playlist")
	case hostMatches(host, []string{"soundcloud.com"}):
		return strings.Contains(u.Path, "/sets/")
	}
	return false
}

// Entries flattens a playlist into entry locators.
func (r *Resolver) Entries(ctx context.Context, locator string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	es, err := r.extractor.Playlist(ctx, locator, limit)
	if err != nil {
		return nil, failure(classifyExtractorError(err), locator, err)
	}
	out := make([]string, 0, len(es))
	for _, e := range es {
		if u := strings.TrimSpace(e.URL); u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, failure(FailNoMetadata, locator, errors.New("empty playlist"))
	}
	return out, nil
}

// --- Search queries ---

// IsLocator reports whether s is resolvable without a search.
func (r *Resolver) IsLocator(s string) bool {
	return r.Classify(s) != ProviderUnresolved
}

// ResolveQuery resolves a URL directly, or searches for a phrase and
// resolves the best match.
func (r *Resolver) ResolveQuery(ctx context.Context, query string, requester Requester, prefixes SearchPrefixes) (*Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, failure(FailUnsupported, query, nil)
	}
	if r.IsLocator(query) {
		return r.Resolve(ctx, query, requester)
	}

	q, _ := prefixes.strip(query)
	searchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type searchResult struct {
		res  []SearchResult
		prio int
	}
	ch := make(chan searchResult, 2)
	go func() {
		rs, _ := r.extractor.Search(searchCtx, q, 5, true)
		ch <- searchResult{rs, 0}
	}()
	go func() {
		rs, _ := r.extractor.Search(searchCtx, q, 5, false)
		ch <- searchResult{rs, 1}
	}()

	resList := make([][]SearchResult, 2)
	for range 2 {
		sr := <-ch
		resList[sr.prio] = sr.res
	}
	combined := append(resList[0], resList[1]...)
	if len(combined) == 0 {
		return nil, failure(FailNoInfo, query, fmt.Errorf("no results for %q", q))
	}

	best := pickSearchResult(combined, q)
	if !strings.HasPrefix(best.URL, "http") {
		return nil, failure(FailNoInfo, query, errors.New("no playable result"))
	}
	sys.LogResolver(sys.MsgResolverSearchPicked, q, best.Title, best.URL)
	return r.Resolve(ctx, best.URL, requester)
}
