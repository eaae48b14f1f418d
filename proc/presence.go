package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/tempo/sys"
)

const configKeyStatusVisible = "status_visible"

// PresenceRotator cycles the bot presence between playback stats.
type PresenceRotator struct {
	Client   *bot.Client
	Registry *Registry
	Started  time.Time

	last string
}

func presenceInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

// Run rotates until ctx ends.
func (p *PresenceRotator) Run(ctx context.Context) {
	for {
		next := presenceInterval()
		p.update(ctx, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (p *PresenceRotator) update(ctx context.Context, next time.Duration) {
	if v, err := sys.GetBotConfig(ctx, configKeyStatusVisible); err == nil && v == "false" {
		_ = p.Client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	playing, queued := p.Registry.Activity()
	lines := presenceLines(playing, queued, time.Since(p.Started), p.Client.Gateway.Latency())
	text := pickPresence(lines, p.last, rand.IntN)
	p.last = text

	err := p.Client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogPresence(sys.MsgPresenceFail, err)
		return
	}
	sys.LogPresence(sys.MsgPresenceRotated, text, next)
}

// presenceLines lists every non-empty presence candidate. Uptime is
// always present.
func presenceLines(playing, queued int, uptime, ping time.Duration) []string {
	var lines []string
	if playing > 0 {
		servers := "1 server"
		if playing > 1 {
			servers = humanize.Comma(int64(playing)) + " servers"
		}
		lines = append(lines, fmt.Sprintf(sys.MsgPresencePlaying, servers))
	}
	if queued > 0 {
		lines = append(lines, fmt.Sprintf(sys.MsgPresenceQueued, humanize.Comma(int64(queued))))
	}
	lines = append(lines, fmt.Sprintf(sys.MsgPresenceUptime, int(uptime.Hours()), int(uptime.Minutes())%60, int(uptime.Seconds())%60))
	if ping > 0 {
		lines = append(lines, fmt.Sprintf(sys.MsgPresenceLatency, ping.Milliseconds()))
	}
	return lines
}

// pickPresence picks a random line other than last, falling back to last
// when it is the only one.
func pickPresence(lines []string, last string, intn func(int) int) string {
	if len(lines) == 0 {
		return sys.MsgPresenceIdleText
	}
	var choices []string
	for _, l := range lines {
		if l != last {
			choices = append(choices, l)
		}
	}
	if len(choices) == 0 {
		return lines[0]
	}
	return choices[intn(len(choices))]
}
