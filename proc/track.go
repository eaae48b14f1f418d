package proc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

// ProviderClass identifies which provider produced a track.
type ProviderClass string

const (
	ProviderYouTube     ProviderClass = "youtube"
	ProviderSoundCloud  ProviderClass = "soundcloud"
	ProviderVimeo       ProviderClass = "vimeo"
	ProviderDailymotion ProviderClass = "dailymotion"
	ProviderFacebook    ProviderClass = "facebook"
	ProviderStreamable  ProviderClass = "streamable"
	ProviderLocalFile   ProviderClass = "local-file"
	ProviderGenericHTTP ProviderClass = "generic-http"
	ProviderUnresolved  ProviderClass = "unresolved"
)

// MediaKind affects wording and admission.
type MediaKind string

const (
	KindVideo      MediaKind = "video"
	KindLivestream MediaKind = "livestream"
	KindAudioTrack MediaKind = "audio-track"
	KindFile       MediaKind = "file"
	KindMix        MediaKind = "mix"
)

// SourceKind tells the opener how to turn a Source into bytes.
type SourceKind int

const (
	// SourceExtractor streams through the extractor's stdout.
	SourceExtractor SourceKind = iota
	// SourceDirect is a media URL the transcoder opens itself.
	SourceDirect
	// SourceFile is a local filesystem path.
	SourceFile
)

// Source is the playable part of a track.
type Source struct {
	Kind  SourceKind `json:"kind"`
	Input string     `json:"input"`
}

type Author struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Requester is the member who submitted a track.
type Requester struct {
	ID        snowflake.ID
	Name      string
	AvatarURL string
	// Manager marks elevated permission inside the guild.
	Manager bool
	// Owner marks a bot owner.
	Owner bool
}

// Elevated reports whether admission limits are bypassed.
func (r Requester) Elevated() bool {
	return r.Manager || r.Owner
}

func (r Requester) Mention() string {
	if r.ID == 0 {
		return r.Name
	}
	return "<@" + r.ID.String() + ">"
}

// Summary is the display payload built once at resolution.
type Summary struct {
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Author    string `json:"author,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  string `json:"duration"`
}

// Track is immutable once returned by the resolver.
type Track struct {
	Locator    string        `json:"locator"`
	Provider   ProviderClass `json:"provider"`
	Kind       MediaKind     `json:"kind"`
	UniqueID   string        `json:"unique_id,omitempty"`
	Title      string        `json:"title"`
	URL        string        `json:"url,omitempty"`
	Author     Author        `json:"author"`
	Duration   int           `json:"duration"`
	Thumbnail  string        `json:"thumbnail,omitempty"`
	Livestream bool          `json:"livestream"`
	Source     Source        `json:"source"`
	Summary    Summary       `json:"summary"`

	Requester Requester `json:"-"`
}

// WithRequester returns a copy of t attributed to r.
func (t Track) WithRequester(r Requester) *Track {
	t.Requester = r
	return &t
}

// FormatDuration renders seconds as M:SS or H:MM:SS, "LIVE" for livestreams.
func FormatDuration(seconds int, live bool) string {
	if live {
		return "LIVE"
	}
	if seconds <= 0 {
		return "?:??"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func buildSummary(t *Track) Summary {
	return Summary{
		Title:     t.Title,
		URL:       t.URL,
		Author:    t.Author.Name,
		Thumbnail: t.Thumbnail,
		Duration:  FormatDuration(t.Duration, t.Livestream),
	}
}

// Line renders a one-line markdown description of the track.
func (t *Track) Line() string {
	var sb strings.Builder
	if t.URL != "" {
		sb.WriteString("[" + escapeMarkdownLink(t.Title) + "](" + t.URL + ")")
	} else {
		sb.WriteString(t.Title)
	}
	if t.Author.Name != "" {
		sb.WriteString(" · " + t.Author.Name)
	}
	sb.WriteString(" `" + t.Summary.Duration + "`")
	return sb.String()
}

func escapeMarkdownLink(s string) string {
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(s)
}

// --- Resolution failures ---

// FailureCode is the closed set of resolution failures.
type FailureCode string

const (
	FailUnsupported FailureCode = "unsupported"
	FailNoInfo      FailureCode = "no-info"
	FailNoAccess    FailureCode = "no-access"
	FailNoMetadata  FailureCode = "no-metadata"
)

// ResolutionError is the only error type Resolve returns.
type ResolutionError struct {
	Code    FailureCode
	Locator string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Locator, e.Code, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Locator, e.Code)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func failure(code FailureCode, locator string, err error) *ResolutionError {
	return &ResolutionError{Code: code, Locator: locator, Err: err}
}

// FailureOf extracts the failure code of err, FailNoInfo for foreign errors.
func FailureOf(err error) FailureCode {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Code
	}
	return FailNoInfo
}
