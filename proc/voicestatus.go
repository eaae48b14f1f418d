package proc

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/tempo/sys"
)

const (
	statusMaxLen     = 128
	statusDebounce   = 500 * time.Millisecond
	statusRetryDelay = time.Second
	statusMaxRetries = 3
)

// StatusWriter sets the status line of a voice channel.
type StatusWriter interface {
	SetStatus(ctx context.Context, channelID snowflake.ID, status string) error
}

// StatusLine is the voice channel status for st, empty when idle.
func StatusLine(st State) string {
	if st.Current == nil {
		return ""
	}
	prefix := "🎶 "
	if st.Paused {
		prefix = "⏸️ "
	}
	suffix := ""
	if a := st.Current.Author.Name; a != "" {
		suffix = " · " + a
	}
	return TruncateWithPreserve(st.Current.Title, statusMaxLen, prefix, suffix)
}

type statusTarget struct {
	channel snowflake.ID
	text    string
}

// WatchVoiceStatus keeps the voice channel status in step with g until g
// is closed. Bursts of changes collapse into one write.
func WatchVoiceStatus(g *Guild, w StatusWriter) {
	sub := g.Subscribe()
	go statusLoop(g.id, sub, w)
}

func statusLoop(guildID snowflake.ID, sub *Subscription, w StatusWriter) {
	var (
		cur, next statusTarget
		pending   bool
		retries   int
	)
	t := time.NewTimer(statusDebounce)
	t.Stop()
	defer t.Stop()

	for {
		select {
		case <-sub.Done:
			return
		case st := <-sub.Updates:
			want := statusTarget{channel: st.VoiceChannel, text: StatusLine(st)}
			if want.channel == 0 {
				// Disconnected: clear whatever channel was last written.
				want.channel = cur.channel
				want.text = ""
			}
			if want.channel != cur.channel && cur.text != "" && cur.channel != 0 {
				// Moved channels: the old one keeps its status otherwise.
				go clearStatus(w, cur.channel)
			}
			next = want
			if next == cur || next.channel == 0 {
				pending = false
				continue
			}
			pending = true
			retries = 0
			t.Reset(statusDebounce)
		case <-t.C:
			if !pending {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.SetStatus(ctx, next.channel, next.text)
			cancel()
			if err == nil {
				cur = next
				pending = false
				continue
			}
			sys.LogVoice(sys.MsgVoiceStatusFailed, next.channel, guildID, err)
			if retries++; retries >= statusMaxRetries {
				pending = false
				continue
			}
			t.Reset(statusRetryDelay)
		}
	}
}

func clearStatus(w StatusWriter, channelID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = w.SetStatus(ctx, channelID, "")
}
