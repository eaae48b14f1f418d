package proc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/tempo/sys"
)

// Player component IDs. The component handler routes on the "player:" prefix.
const (
	PlayerPrev  = "player:prev"
	PlayerNext  = "player:next"
	PlayerPause = "player:pause"
	PlayerSkip  = "player:skip"
	PlayerStop  = "player:stop"
)

// RestNotifier posts plain notices to a text channel.
type RestNotifier struct {
	Client *bot.Client
}

func (n RestNotifier) Notify(channelID snowflake.ID, content string) {
	if channelID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := discord.NewMessageCreate().
			WithIsComponentsV2(true).
			AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
			WithAllowedMentions(&discord.AllowedMentions{})
		if _, err := n.Client.Rest.CreateMessage(channelID, msg, rest.WithCtx(ctx)); err != nil {
			sys.LogWarn(sys.MsgNotifyFailed, channelID, err)
		}
	}()
}

// MessageSurface renders a player view as a channel message.
type MessageSurface struct {
	Client    *bot.Client
	ChannelID snowflake.ID
}

func (s MessageSurface) Send(ctx context.Context, v View) (string, error) {
	msg := discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(RenderPlayer(v)).
		WithAllowedMentions(&discord.AllowedMentions{})
	m, err := s.Client.Rest.CreateMessage(s.ChannelID, msg, rest.WithCtx(ctx))
	if err != nil {
		return "", err
	}
	return m.ID.String(), nil
}

func (s MessageSurface) Edit(ctx context.Context, handle string, v View) error {
	id, err := snowflake.Parse(handle)
	if err != nil {
		return err
	}
	upd := discord.NewMessageUpdate().
		WithIsComponentsV2(true).
		WithComponents(RenderPlayer(v))
	_, err = s.Client.Rest.UpdateMessage(s.ChannelID, id, upd, rest.WithCtx(ctx))
	return err
}

func (s MessageSurface) Delete(ctx context.Context, handle string) error {
	id, err := snowflake.Parse(handle)
	if err != nil {
		return err
	}
	return s.Client.Rest.DeleteMessage(s.ChannelID, id, rest.WithCtx(ctx))
}

// RenderPlayer builds the player container for v.
func RenderPlayer(v View) discord.ContainerComponent {
	pauseLabel := sys.MsgViewBtnPause
	if v.Paused {
		pauseLabel = sys.MsgViewBtnResume
	}
	idle := v.Current == nil
	return discord.NewContainer(append(viewBody(v),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgViewBtnPrev, PlayerPrev, "", 0).WithDisabled(v.Page == 0),
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgViewBtnNext, PlayerNext, "", 0).WithDisabled(v.Page >= v.Pages-1),
			discord.NewButton(discord.ButtonStylePrimary, pauseLabel, PlayerPause, "", 0).WithDisabled(idle),
			discord.NewButton(discord.ButtonStyleSuccess, sys.MsgViewBtnSkip, PlayerSkip, "", 0).WithDisabled(idle),
			discord.NewButton(discord.ButtonStyleDanger, sys.MsgViewBtnStop, PlayerStop, "", 0),
		),
	)...)
}

// RenderQueue builds a static snapshot of v without controls.
func RenderQueue(v View) discord.ContainerComponent {
	return discord.NewContainer(viewBody(v)...)
}

func viewBody(v View) []discord.ContainerSubComponent {
	var head string
	switch {
	case v.Current == nil:
		head = sys.MsgViewIdle
	case v.Paused:
		head = fmt.Sprintf(sys.MsgViewPaused, v.Current.Line(), v.Current.Requester.Mention())
	default:
		head = fmt.Sprintf(sys.MsgViewPlaying, v.Current.Line(), v.Current.Requester.Mention())
	}

	queue := sys.MsgViewQueueEmpty
	if v.Total > 0 {
		var sb strings.Builder
		for _, l := range v.Lines {
			sb.WriteString(fmt.Sprintf("`%d.` %s\n", l.Position, l.Track.Line()))
		}
		sb.WriteString(fmt.Sprintf(sys.MsgViewQueueFooter, v.Page+1, v.Pages, humanize.Comma(int64(v.Total))))
		queue = sb.String()
	}
	if v.Limited {
		queue += "\n" + sys.MsgViewLimited
	}
	return []discord.ContainerSubComponent{
		discord.NewTextDisplay(head),
		discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
		discord.NewTextDisplay(queue),
	}
}

// VoiceStatusWriter sets a voice channel's status line over REST.
type VoiceStatusWriter struct {
	Client *bot.Client
}

func (w VoiceStatusWriter) SetStatus(ctx context.Context, channelID snowflake.ID, status string) error {
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	return w.Client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil, rest.WithCtx(ctx))
}
