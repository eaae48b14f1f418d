package proc

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	everyoneRegex = regexp.MustCompile(`(?i)@(everyone|here)`)
	mentionRegex  = regexp.MustCompile(`<@([!&]?)(\d+)>`)
)

// SanitizeMentions rewrites tokens that would ping members into inert text.
func SanitizeMentions(s string) string {
	s = everyoneRegex.ReplaceAllString(s, "@\u200b$1")
	return mentionRegex.ReplaceAllString(s, "<@\u200b$1$2>")
}

// ParseDuration normalizes a provider duration into whole seconds.
// It accepts plain or fractional seconds and colon separated clock text.
// Unknown values yield 0 and false.
func ParseDuration(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "na", "none", "null", "nan":
		return 0, false
	}

	if !strings.Contains(raw, ":") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int(math.Round(f)), true
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return int(math.Round(total)), true
}

// SumFragments adds per-fragment durations of a chunked stream.
func SumFragments(fragments []float64) int {
	total := 0.0
	for _, f := range fragments {
		if f > 0 {
			total += f
		}
	}
	return int(math.Round(total))
}

// TruncateCenter truncates a string keeping both the start and end.
func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// TruncateWithPreserve truncates text while preserving a prefix and suffix.
func TruncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	rp, rs := []rune(prefix), []rune(suffix)
	fixedLen := len(rp) + len(rs)
	if fixedLen >= maxLen-10 {
		return TruncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + TruncateCenter(text, maxLen-fixedLen) + suffix
}
