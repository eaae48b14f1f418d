package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMentions(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain title", "plain title"},
		{"hello @everyone", "hello @\u200beveryone"},
		{"@HERE now", "@\u200bHERE now"},
		{"by <@123>", "by <@\u200b123>"},
		{"by <@!123> and <@&456>", "by <@\u200b!123> and <@\u200b&456>"},
		{"mail me@example.com", "mail me@example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeMentions(tt.in), tt.in)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"212", 212, true},
		{"212.6", 213, true},
		{" 59.4 ", 59, true},
		{"3:32", 212, true},
		{"1:02:03", 3723, true},
		{"0:00", 0, true},
		{"", 0, false},
		{"NA", 0, false},
		{"none", 0, false},
		{"NaN", 0, false},
		{"-5", 0, false},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
		{"1:x", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDuration(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSumFragments(t *testing.T) {
	assert.Zero(t, SumFragments(nil))
	assert.Equal(t, 30, SumFragments([]float64{10, 10, 10}))
	assert.Equal(t, 21, SumFragments([]float64{10.4, 10.4}))
	assert.Equal(t, 10, SumFragments([]float64{10, -4, 0}))
}

func TestTruncateCenter(t *testing.T) {
	assert.Equal(t, "short", TruncateCenter("short", 10))
	assert.Equal(t, "abc...xyz", TruncateCenter("abcdefghuvwxyz", 9))
	assert.Equal(t, "ab", TruncateCenter("abcdef", 2))
	assert.Equal(t, "á...é", TruncateCenter("áaaaaaaaé", 5))
}

func TestTruncateWithPreserve(t *testing.T) {
	got := TruncateWithPreserve("a very long title that will not fit", 20, "> ", " <")
	assert.LessOrEqual(t, len([]rune(got)), 20)
	assert.Equal(t, "> ", got[:2])
	assert.Equal(t, " <", got[len(got)-2:])

	assert.Equal(t, "> fits <", TruncateWithPreserve("fits", 20, "> ", " <"))

	// Long affixes fall back to truncating the whole line.
	got = TruncateWithPreserve("title", 12, "prefix-", "-suffix")
	assert.LessOrEqual(t, len([]rune(got)), 12)
}
