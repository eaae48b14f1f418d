package proc

import (
	"strings"
	"time"
	"unicode"

	"github.com/disgoorg/snowflake/v2"
)

// RejectReason is why a submission was refused. Queue state is never
// changed by a rejection.
type RejectReason string

const (
	RejectDebounce       RejectReason = "debounce"
	RejectLimitedAccess  RejectReason = "limited-access"
	RejectQueueFull      RejectReason = "queue-full"
	RejectAlreadyPlaying RejectReason = "already-playing"
	RejectAlreadyQueued  RejectReason = "already-queued"
	RejectLivestream     RejectReason = "livestream"
	RejectUnbounded      RejectReason = "unbounded"
	RejectTooLong        RejectReason = "too-long"
	RejectBlocklisted    RejectReason = "blocklisted"
)

// RejectClass groups reasons the way requesters are told about them.
type RejectClass string

const (
	ClassDebounce     RejectClass = "debounce"
	ClassQueueFull    RejectClass = "queue-full"
	ClassDuplicate    RejectClass = "duplicate"
	ClassNoPermission RejectClass = "no-permission"
	ClassTooLong      RejectClass = "too-long"
	ClassBlocklisted  RejectClass = "blocklisted"
)

func (r RejectReason) Class() RejectClass {
	switch r {
	case RejectDebounce:
		return ClassDebounce
	case RejectQueueFull:
		return ClassQueueFull
	case RejectAlreadyPlaying, RejectAlreadyQueued:
		return ClassDuplicate
	case RejectTooLong:
		return ClassTooLong
	case RejectBlocklisted:
		return ClassBlocklisted
	default:
		return ClassNoPermission
	}
}

// OutcomeKind is the single result every submission produces.
type OutcomeKind int

const (
	OutcomeRejected OutcomeKind = iota
	OutcomeQueued
	OutcomeNowPlaying
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeQueued:
		return "queued"
	case OutcomeNowPlaying:
		return "now-playing"
	default:
		return "rejected"
	}
}

// Outcome reports what Submit did. Position is 1-based within the queue
// for OutcomeQueued and RejectAlreadyQueued.
type Outcome struct {
	Kind     OutcomeKind
	Reason   RejectReason
	Position int
	Track    *Track
}

func rejected(reason RejectReason, t *Track) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, Track: t}
}

// SubmitOptions control placement of one submission.
type SubmitOptions struct {
	// InsertAtFront puts the track at the queue head. Elevated requesters only.
	InsertAtFront bool
	// PlayImmediately also ends the current stream. Elevated requesters only.
	PlayImmediately bool
	// Silent suppresses the now-playing notice for this track.
	Silent bool

	VoiceChannel snowflake.ID
	TextChannel  snowflake.ID
}

// limits are the per-guild settings admission reads.
type limits struct {
	maxDuration int
	queueLimit  int
	announce    bool
}

var blocklist = []string{"despacito"}

// Blocklisted reports whether a title trips the fixed content blocklist.
// The whole title is checked, brackets and uploader segments included.
func Blocklisted(title string) bool {
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	plain := sb.String()
	for _, b := range blocklist {
		if strings.Contains(plain, b) {
			return true
		}
	}
	return false
}

// admit runs the admission rules in order against actor state. It returns
// the rejection, if any, and for duplicates the existing position.
func (g *Guild) admit(t *Track, l limits, now time.Time) (RejectReason, int) {
	r := t.Requester
	elevated := r.Elevated()

	if !r.Owner && !g.lastStop.IsZero() && now.Sub(g.lastStop) < g.cfg.StopDebounce {
		return RejectDebounce, 0
	}
	if g.limited && !elevated {
		return RejectLimitedAccess, 0
	}
	if l.queueLimit > 0 && len(g.queue) >= l.queueLimit && !elevated {
		return RejectQueueFull, 0
	}
	if t.UniqueID != "" {
		if g.current != nil && g.current.track.UniqueID == t.UniqueID {
			return RejectAlreadyPlaying, 0
		}
		for i, e := range g.queue {
			if e.track.UniqueID != t.UniqueID {
				continue
			}
			if g.current == nil {
				// The head is about to be promoted.
				if i == 0 {
					return RejectAlreadyPlaying, 0
				}
				return RejectAlreadyQueued, i
			}
			return RejectAlreadyQueued, i + 1
		}
	}
	if t.Livestream && !elevated {
		return RejectLivestream, 0
	}
	if t.Duration == 0 && !elevated {
		return RejectUnbounded, 0
	}
	if l.maxDuration > 0 && t.Duration > l.maxDuration && !elevated {
		return RejectTooLong, 0
	}
	if Blocklisted(t.Title) {
		return RejectBlocklisted, 0
	}
	return "", 0
}
