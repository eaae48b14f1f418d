package proc

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

var (
	metadataBlockRegex = regexp.MustCompile(`[\(\[\{].*?[\)\]\}]`)
	camelCaseRegex     = regexp.MustCompile(`([a-z])([A-Z])`)
)

// SearchPrefixes pick a search source from the start of a query.
type SearchPrefixes struct {
	YouTube string
	YTMusic string
}

// strip removes a known prefix and reports whether YouTube was requested.
func (sp SearchPrefixes) strip(q string) (string, bool) {
	upper := strings.ToUpper(q)
	if sp.YouTube != "" && strings.HasPrefix(upper, strings.ToUpper(sp.YouTube)) {
		return strings.TrimSpace(q[len(sp.YouTube):]), true
	}
	if sp.YTMusic != "" && strings.HasPrefix(upper, strings.ToUpper(sp.YTMusic)) {
		return strings.TrimSpace(q[len(sp.YTMusic):]), false
	}
	return q, false
}

// Suggest returns autocomplete candidates from YouTube Music and YouTube.
func Suggest(ctx context.Context, q string, prefixes SearchPrefixes) []SearchResult {
	query, preferYT := prefixes.strip(q)
	ctx, cancel := context.WithTimeout(ctx, 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []SearchResult
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, err := s.Next()
		if err != nil {
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			art := ""
			if len(v.Artists) > 0 {
				art = " - " + v.Artists[0].Name
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, SearchResult{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: TruncateWithPreserve(v.Title, 100, prefixes.YTMusic+" ", art)})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, query)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, SearchResult{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: TruncateWithPreserve(v.Title, 100, prefixes.YouTube+" ", "")})
			}
			resMu.Unlock()
		}
	}()
	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	}

	resMu.Lock()
	defer resMu.Unlock()
	var fin []SearchResult
	if preferYT {
		fin = append(append(fin, yt...), ytm...)
	} else {
		fin = append(append(fin, ytm...), yt...)
	}
	if len(fin) > 25 {
		fin = fin[:25]
	}
	return fin
}

// searchTarget is what a free-text query says about the wanted track.
// "Artist - Title" queries also name the expected uploader.
type searchTarget struct {
	title, artist string
}

func parseSearchTarget(q string) searchTarget {
	q = strings.TrimSpace(q)
	if artist, title, ok := strings.Cut(q, " - "); ok {
		artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
		if artist != "" && title != "" {
			return searchTarget{title: title, artist: artist}
		}
	}
	return searchTarget{title: q}
}

// uploaderName reduces auto-generated channel names to the artist.
func uploaderName(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimSuffix(u, " - topic")
	u = strings.TrimSuffix(u, "vevo")
	return strings.TrimSpace(u)
}

// pickSearchResult returns the result that best matches the query. Earlier
// results win ties.
func pickSearchResult(results []SearchResult, q string) SearchResult {
	if len(results) == 0 {
		return SearchResult{}
	}
	target := parseSearchTarget(q)
	want, wantFull := normalizeTitle(target.title, ""), normalizeTitle(q, "")

	titles := make([]string, len(results))
	corpus := []string{wantFull}
	for i, res := range results {
		titles[i] = normalizeTitle(res.Title, res.Uploader)
		corpus = append(corpus, titles[i])
	}
	weights := calculateTFIDF(corpus)
	artist := strings.ToLower(target.artist)

	best, bestScore := 0, math.Inf(-1)
	for i, res := range results {
		score := 0.0
		if weightedSimilarity(titles[i], want, weights) || weightedSimilarity(titles[i], wantFull, weights) {
			score += 50
		}
		if up := uploaderName(res.Uploader); artist != "" && up != "" {
			switch {
			case up == artist:
				score += 80
			case strings.Contains(up, artist) || strings.Contains(artist, up):
				score += 30
			}
		}
		// Auto-generated artist channels carry the studio recording.
		if strings.HasSuffix(strings.ToLower(res.Uploader), " - topic") {
			score += 5
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return results[best]
}

func normalizeTitle(ti, ch string) string {
	if ti == "" {
		return ""
	}
	// "ArtistVEVO" -> "Artist VEVO" so the suffix becomes its own term
	tBuf := camelCaseRegex.ReplaceAllString(ti, "${1} ${2}")
	cBuf := camelCaseRegex.ReplaceAllString(ch, "${1} ${2}")

	t, c := strings.ToLower(tBuf), strings.ToLower(cBuf)

	for _, sep := range []string{"|", "//", " ─ ", " - "} {
		if strings.Contains(t, sep) {
			ps := strings.Split(t, sep)
			var nps []string
			for _, p := range ps {
				pt := strings.TrimSpace(p)
				shouldStrip := pt == c || pt == strings.ReplaceAll(c, " ", "")
				if !shouldStrip {
					nps = append(nps, pt)
				}
			}
			if len(nps) > 0 {
				t = strings.Join(nps, " ")
			}
			break
		}
	}
	for {
		t = strings.TrimSpace(t)
		loc := metadataBlockRegex.FindStringIndex(t)
		if loc != nil && loc[1] == len(t) {
			t = t[:loc[0]]
			continue
		}
		break
	}
	if c != "" {
		t = strings.ReplaceAll(t, c, " ")
	}
	var sb strings.Builder
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func calculateTFIDF(corpus []string) map[string]float64 {
	df := make(map[string]int)
	total := len(corpus)
	if total == 0 {
		return nil
	}
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(doc)) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}
	weights := make(map[string]float64)
	for w, count := range df {
		// IDF = log(1 + N/count)
		weights[w] = math.Log(1.0 + float64(total)/float64(count))
	}
	return weights
}

func weightedSimilarity(a, b string, weights map[string]float64) bool {
	wa, wb := strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b))
	sa, sb := make(map[string]bool), make(map[string]bool)
	union := make(map[string]bool)

	for _, w := range wa {
		sa[w] = true
		union[w] = true
	}
	for _, w := range wb {
		sb[w] = true
		union[w] = true
	}
	if len(union) == 0 {
		return false
	}
	if a == b {
		return true
	}

	iScore, uScore := 0.0, 0.0
	for w := range union {
		wt := 1.0
		if weights != nil {
			if val, ok := weights[w]; ok {
				wt = val
			} else {
				wt = math.Log(1.0 + float64(len(weights)))
			}
		}
		if sa[w] && sb[w] {
			iScore += wt
		}
		uScore += wt
	}
	if uScore == 0 {
		return false
	}
	return (iScore / uScore) >= 0.7
}
