package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leeineian/tempo/sys"
)

func TestPresenceLines(t *testing.T) {
	uptime := 26*time.Hour + 3*time.Minute + 7*time.Second

	assert.Equal(t, []string{"Uptime: 26h 3m 7s"}, presenceLines(0, 0, uptime, 0))

	assert.Equal(t, []string{
		"Playing in 1 server",
		"Queued: 4",
		"Uptime: 26h 3m 7s",
		"Ping: 42ms",
	}, presenceLines(1, 4, uptime, 42*time.Millisecond))

	lines := presenceLines(1200, 15000, uptime, 0)
	assert.Equal(t, "Playing in 1,200 servers", lines[0])
	assert.Equal(t, "Queued: 15,000", lines[1])
}

func TestPickPresence(t *testing.T) {
	first := func(int) int { return 0 }

	assert.Equal(t, sys.MsgPresenceIdleText, pickPresence(nil, "", first))
	assert.Equal(t, "only", pickPresence([]string{"only"}, "only", first))
	assert.Equal(t, "b", pickPresence([]string{"a", "b"}, "a", first))

	last := func(n int) int { return n - 1 }
	assert.Equal(t, "c", pickPresence([]string{"a", "b", "c"}, "b", last))
}
