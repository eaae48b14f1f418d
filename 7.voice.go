package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/tempo/proc"
	"github.com/leeineian/tempo/sys"
)

var manageGuildPerm = discord.PermissionManageGuild

func init() {
	RegisterDaemon(sys.LogPresence, func(ctx context.Context) (bool, func(), func()) {
		if Music == nil {
			return false, nil, nil
		}
		r := &proc.PresenceRotator{Client: Music.client, Registry: Music.registry, Started: StartupTime}
		return true, func() { r.Run(ctx) }, nil
	})

	RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		if Music != nil {
			Music.onVoiceStateUpdate(event)
		}
	})
	RegisterGuildLeaveHandler(func(event *events.GuildLeave) {
		if Music != nil {
			Music.onGuildLeave(event)
		}
	})

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music playback",
		Contexts:    []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a link, a search, or an uploaded file",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "A URL or something to search for",
						Required:     false,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionAttachment{
						Name:        "file",
						Description: "An audio or video file to play",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "mode",
						Description: "Where to put the track (managers only)",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Play now", Value: "now"},
							{Name: "Play next", Value: "next"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback, clear the queue and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "page",
						Description: "Page to show",
						Required:    false,
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "undo",
				Description: "Remove your most recently queued track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a track from the queue (managers only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "Queue position",
						Required:    true,
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "player",
				Description: "Post a live player in this channel",
			},
		},
	}, handleMusic)

	RegisterAutocompleteHandler("music", handleMusicAutocomplete)
	RegisterComponentHandler("player:", handlePlayerComponent)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "musicadmin",
		Description:              "Music settings for this server",
		Contexts:                 []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		DefaultMemberPermissions: omit.New(&manageGuildPerm),
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "limit",
				Description: "Toggle manager-only queuing",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "maxduration",
				Description: "Set the longest track non-managers may queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "minutes",
						Description: "Length in minutes",
						Required:    true,
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queuelimit",
				Description: "Set how many tracks non-managers may queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "tracks",
						Description: "Queue length",
						Required:    true,
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "announce",
				Description: "Toggle now-playing notices",
			},
		},
	}, handleMusicAdmin)
}

// --- App State ---

type musicApp struct {
	cfg      *sys.Config
	client   *bot.Client
	resolver *proc.Resolver
	registry *proc.Registry
	settings *sys.SettingsStore
	prefixes proc.SearchPrefixes

	autoMu     sync.Mutex
	autoPaused map[snowflake.ID]bool
}

var Music *musicApp

func setupMusic(cfg *sys.Config, client *bot.Client, settings *sys.SettingsStore, cache proc.MetadataCache) {
	resolver := proc.NewResolver(proc.ResolverOptions{
		HTTPClient: HttpClient,
		MediaDir:   cfg.MediaDir,
		Timeout:    cfg.ResolveTimeout,
		Cache:      cache,
	})
	registry := proc.NewRegistry(proc.GuildConfig{
		StopDebounce:       cfg.StopDebounce,
		AdvanceDelay:       cfg.AdvanceDelay,
		RetryDelay:         cfg.RetryDelay,
		BatchInterval:      cfg.BatchInterval,
		DefaultMaxDuration: cfg.DefaultMaxDuration,
		DefaultQueueLimit:  cfg.DefaultQueueLimit,
	}, proc.GuildDeps{
		Connector: proc.VoiceConnector{Client: client},
		Settings:  settings,
		Notifier:  proc.RestNotifier{Client: client},
	})
	registry.OnCreate = func(g *proc.Guild) {
		proc.WatchVoiceStatus(g, proc.VoiceStatusWriter{Client: client})
	}

	Music = &musicApp{
		cfg:        cfg,
		client:     client,
		resolver:   resolver,
		registry:   registry,
		settings:   settings,
		prefixes:   proc.SearchPrefixes{YouTube: cfg.YoutubePrefix, YTMusic: cfg.YTMusicPrefix},
		autoPaused: make(map[snowflake.ID]bool),
	}
}

// ===========================
// Command Handlers
// ===========================

func handleMusic(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	if event.GuildID() == nil {
		musicReply(event, sys.MsgMusicNotInGuild, true)
		return
	}
	switch *data.SubCommandName {
	case "play":
		handleMusicPlay(event, data)
	case "stop":
		handleMusicStop(event)
	case "skip":
		handleMusicSkip(event)
	case "pause":
		handleMusicPause(event)
	case "resume":
		handleMusicResume(event)
	case "queue":
		handleMusicQueue(event, data)
	case "undo":
		handleMusicUndo(event)
	case "remove":
		handleMusicRemove(event, data)
	case "player":
		handleMusicPlayer(event)
	}
}

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := *event.GuildID()
	query, _ := data.OptString("query")
	if file, ok := data.OptAttachment("file"); ok {
		query = file.URL
	}
	query = strings.TrimSpace(query)
	if query == "" {
		musicReply(event, sys.ErrResolveUnsupported, true)
		return
	}

	vs, ok := event.Client().Caches.VoiceState(guildID, event.User().ID)
	if !ok || vs.ChannelID == nil {
		musicReply(event, sys.MsgMusicJoinVoice, true)
		return
	}

	mode, _ := data.OptString("mode")
	opts := proc.SubmitOptions{
		InsertAtFront:   mode == "next",
		PlayImmediately: mode == "now",
		VoiceChannel:    *vs.ChannelID,
		TextChannel:     event.Channel().ID(),
	}
	requester := requesterFrom(event.Member(), event.User())
	sys.LogPlayer(sys.MsgPlayerRequest, requester.Name, requester.ID, query)

	_ = event.DeferCreateMessage(false)
	g := Music.registry.Get(guildID)

	if proc.IsPlaylist(query) {
		Music.expandPlaylist(event, g, query, requester, opts)
		return
	}

	t, err := Music.resolver.ResolveQuery(AppContext, query, requester, Music.prefixes)
	if err != nil {
		updateResponse(event, resolutionText(err))
		return
	}
	out := g.Submit(AppContext, t, opts)
	if text := outcomeText(g, out); text != "" {
		updateResponse(event, text)
	} else {
		deleteResponse(event)
	}
}

func (m *musicApp) expandPlaylist(event *events.ApplicationCommandInteractionCreate, g *proc.Guild, locator string, requester proc.Requester, opts proc.SubmitOptions) {
	locators, err := m.resolver.Entries(AppContext, locator, m.cfg.PlaylistLimit)
	if err != nil {
		updateResponse(event, resolutionText(err))
		return
	}
	updateResponse(event, fmt.Sprintf(sys.MsgMusicPlaylistStarted, len(locators)))

	g.Expand(m.resolver, locators, requester, opts, func(r proc.BatchReport) {
		content := fmt.Sprintf(sys.MsgMusicPlaylistDone, r.Added, r.Rejected, r.Failed)
		if r.Cancelled {
			content = fmt.Sprintf(sys.MsgMusicPlaylistStopped, r.Added, r.Total)
		}
		updateResponse(event, content)
	})
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNothingPlaying, true)
		return
	}
	Music.clearAutoPause(g.ID())
	if res := g.Stop(); res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, sys.MsgMusicStopped, false)
}

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNothingPlaying, true)
		return
	}
	if res := g.Skip(requesterFrom(event.Member(), event.User())); res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, sys.MsgMusicSkipped, false)
}

func handleMusicPause(event *events.ApplicationCommandInteractionCreate) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNothingPlaying, true)
		return
	}
	if res := g.Pause(); res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, sys.MsgMusicPaused, false)
}

func handleMusicResume(event *events.ApplicationCommandInteractionCreate) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNothingPlaying, true)
		return
	}
	Music.clearAutoPause(g.ID())
	if res := g.Resume(); res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, sys.MsgMusicResumed, false)
}

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	page, ok := data.OptInt("page")
	if !ok {
		page = 1
	}
	st := proc.State{GuildID: *event.GuildID()}
	if g, ok := Music.registry.Lookup(*event.GuildID()); ok {
		st = g.Snapshot()
	}
	view := proc.ViewOf(st, page-1)
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(proc.RenderQueue(view)).
		WithAllowedMentions(&discord.AllowedMentions{}).
		WithEphemeral(true))
}

func handleMusicUndo(event *events.ApplicationCommandInteractionCreate) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNotFound, true)
		return
	}
	res, t := g.Undo(requesterFrom(event.Member(), event.User()))
	if res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, fmt.Sprintf(sys.MsgMusicUndone, t.Line()), false)
}

func handleMusicRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	g, ok := Music.registry.Lookup(*event.GuildID())
	if !ok {
		musicReply(event, sys.ErrControlNotFound, true)
		return
	}
	pos, _ := data.OptInt("position")
	res, t := g.Remove(requesterFrom(event.Member(), event.User()), pos)
	if res != proc.ControlOK {
		musicReply(event, controlText(res), true)
		return
	}
	musicReply(event, fmt.Sprintf(sys.MsgMusicRemoved, t.Line()), false)
}

func handleMusicPlayer(event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := context.WithTimeout(AppContext, 10*time.Second)
	defer cancel()
	surface := proc.MessageSurface{Client: event.Client(), ChannelID: event.Channel().ID()}
	if _, err := Music.registry.AttachMirror(ctx, *event.GuildID(), surface); err != nil {
		musicReply(event, fmt.Sprintf(sys.ErrMirrorAttachFailed, err), true)
		return
	}
	musicReply(event, sys.MsgMusicPlayerPosted, true)
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	f := event.Data.Focused()
	if f.Name != "query" {
		_ = event.AutocompleteResult(nil)
		return
	}
	q := strings.TrimSpace(f.String())
	if q == "" || Music.resolver.IsLocator(q) {
		_ = event.AutocompleteResult(nil)
		return
	}

	rs := proc.Suggest(AppContext, q, Music.prefixes)
	cs := make([]discord.AutocompleteChoice, 0, len(rs))
	for i, r := range rs {
		if i >= 25 {
			break
		}
		n := r.Title
		if r.Uploader != "" {
			n += " · " + r.Uploader
		}
		if r.Duration > 0 {
			n += " (" + proc.FormatDuration(int(r.Duration.Seconds()), false) + ")"
		}
		if nr := []rune(n); len(nr) > 100 {
			n = string(nr[:97]) + "..."
		}
		v := r.URL
		if len(v) > 100 {
			v = r.Title
			if len(v) > 100 {
				v = v[:100]
			}
		}
		cs = append(cs, discord.AutocompleteChoiceString{Name: n, Value: v})
	}
	_ = event.AutocompleteResult(cs)
}

// ===========================
// Player Controls
// ===========================

func handlePlayerComponent(event *events.ComponentInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	guildID := *event.GuildID()
	m, ok := Music.registry.Mirror(guildID)
	if !ok || m.Handle() != event.Message.ID.String() {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgMusicNoPlayer).
			WithEphemeral(true))
		return
	}
	_ = event.DeferUpdateMessage()

	g := Music.registry.Get(guildID)
	requester := requesterFrom(event.Member(), event.User())
	res := proc.ControlOK
	switch event.Data.CustomID() {
	case proc.PlayerPrev:
		m.Turn(-1)
	case proc.PlayerNext:
		m.Turn(1)
	case proc.PlayerPause:
		Music.clearAutoPause(guildID)
		if g.Snapshot().Paused {
			res = g.Resume()
		} else {
			res = g.Pause()
		}
	case proc.PlayerSkip:
		res = g.Skip(requester)
	case proc.PlayerStop:
		Music.clearAutoPause(guildID)
		res = g.Stop()
	}

	if res != proc.ControlOK {
		_, _ = event.Client().Rest.CreateFollowupMessage(event.ApplicationID(), event.Token(),
			discord.NewMessageCreate().
				WithContent(controlText(res)).
				WithEphemeral(true))
	}
}

// ===========================
// Admin Commands
// ===========================

func handleMusicAdmin(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	if event.GuildID() == nil {
		musicReply(event, sys.MsgMusicNotInGuild, true)
		return
	}
	guildID := *event.GuildID()
	ctx, cancel := context.WithTimeout(AppContext, 5*time.Second)
	defer cancel()

	var key, value, content string
	switch *data.SubCommandName {
	case "limit":
		limited := !Music.registry.Get(guildID).Snapshot().Limited
		key, value = sys.SettingLimited, strconv.FormatBool(limited)
		content = sys.MsgAdminLimitOff
		if limited {
			content = sys.MsgAdminLimitOn
		}
	case "maxduration":
		minutes, _ := data.OptInt("minutes")
		if minutes <= 0 {
			musicReply(event, sys.ErrAdminBadValue, true)
			return
		}
		key, value = sys.SettingMaxDuration, strconv.Itoa(minutes*60)
		content = fmt.Sprintf(sys.MsgAdminMaxDuration, proc.FormatDuration(minutes*60, false))
	case "queuelimit":
		n, _ := data.OptInt("tracks")
		if n <= 0 {
			musicReply(event, sys.ErrAdminBadValue, true)
			return
		}
		key, value = sys.SettingQueueLimit, strconv.Itoa(n)
		content = fmt.Sprintf(sys.MsgAdminQueueLimit, n)
	case "announce":
		on, _ := strconv.ParseBool(Music.settings.Get(ctx, guildID, sys.SettingAnnounce, "true"))
		key, value = sys.SettingAnnounce, strconv.FormatBool(!on)
		content = sys.MsgAdminAnnounceOff
		if !on {
			content = sys.MsgAdminAnnounceOn
		}
	default:
		return
	}

	if err := Music.settings.Set(ctx, guildID, key, value); err != nil {
		sys.LogError(sys.MsgGenericError, err)
		musicReply(event, sys.ErrAdminSaveFailed, true)
		return
	}
	if key == sys.SettingLimited {
		Music.registry.Get(guildID).SetLimited(value == "true")
	}
	musicReply(event, content, false)
}

// ===========================
// Voice Presence
// ===========================

func (m *musicApp) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID
	g, ok := m.registry.Lookup(guildID)
	if !ok {
		return
	}
	st := g.Snapshot()

	if event.VoiceState.UserID == event.Client().ID() {
		switch {
		case event.VoiceState.ChannelID == nil:
			m.clearAutoPause(guildID)
			if st.Connected {
				sys.LogVoice(sys.MsgVoiceKicked, guildID)
				g.Stop()
			}
		case *event.VoiceState.ChannelID != st.VoiceChannel:
			g.Moved(*event.VoiceState.ChannelID)
		}
		return
	}

	if !st.Connected || st.VoiceChannel == 0 {
		return
	}
	humans := m.countHumans(event.Client(), guildID, st.VoiceChannel)

	m.autoMu.Lock()
	defer m.autoMu.Unlock()
	switch {
	case humans == 0 && st.Current != nil && !st.Paused:
		if g.Pause() == proc.ControlOK {
			m.autoPaused[guildID] = true
			sys.LogVoice(sys.MsgVoiceNoListeners, guildID)
		}
	case humans > 0 && m.autoPaused[guildID]:
		delete(m.autoPaused, guildID)
		if g.Resume() == proc.ControlOK {
			sys.LogVoice(sys.MsgVoiceListenerBack, guildID)
		}
	}
}

func (m *musicApp) countHumans(client *bot.Client, guildID, channelID snowflake.ID) int {
	n := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == client.ID() {
			continue
		}
		if member, ok := client.Caches.Member(guildID, state.UserID); !ok || !member.User.Bot {
			n++
		}
	}
	return n
}

// clearAutoPause forgets an automatic pause once a person takes control.
func (m *musicApp) clearAutoPause(guildID snowflake.ID) {
	m.autoMu.Lock()
	delete(m.autoPaused, guildID)
	m.autoMu.Unlock()
}

func (m *musicApp) onGuildLeave(event *events.GuildLeave) {
	sys.LogInfo(sys.MsgBotGuildLeft, event.GuildID)
	m.clearAutoPause(event.GuildID)
	m.registry.Remove(event.GuildID)

	ctx, cancel := context.WithTimeout(AppContext, 5*time.Second)
	defer cancel()
	if err := m.settings.DeleteGuild(ctx, event.GuildID); err != nil {
		sys.LogWarn(sys.MsgGenericError, err)
	}
}

// ===========================
// Utilities
// ===========================

func requesterFrom(member *discord.ResolvedMember, user discord.User) proc.Requester {
	r := proc.Requester{
		ID:        user.ID,
		Name:      user.Username,
		AvatarURL: user.EffectiveAvatarURL(),
		Owner:     Music.cfg.IsOwner(user.ID),
	}
	if member != nil {
		r.Manager = member.Permissions.Has(discord.PermissionManageGuild) ||
			member.Permissions.Has(discord.PermissionAdministrator)
	}
	return r
}

func musicReply(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		WithAllowedMentions(&discord.AllowedMentions{}).
		WithEphemeral(ephemeral))
}

func updateResponse(event *events.ApplicationCommandInteractionCreate, content string) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdate().
			WithContent(content).
			WithAllowedMentions(&discord.AllowedMentions{}))
	if err != nil {
		sys.LogWarn(sys.MsgGenericError, err)
	}
}

func deleteResponse(event *events.ApplicationCommandInteractionCreate) {
	if err := event.Client().Rest.DeleteInteractionResponse(event.ApplicationID(), event.Token()); err != nil {
		sys.LogWarn(sys.MsgGenericError, err)
	}
}

func outcomeText(g *proc.Guild, out proc.Outcome) string {
	switch out.Kind {
	case proc.OutcomeNowPlaying:
		return fmt.Sprintf(sys.MsgMusicNowPlaying, out.Track.Line())
	case proc.OutcomeQueued:
		return fmt.Sprintf(sys.MsgMusicQueued, out.Track.Line(), humanize.Ordinal(out.Position))
	}

	switch out.Reason {
	case proc.RejectDebounce:
		// Debounced requests get no reply.
		return ""
	case proc.RejectLimitedAccess:
		return sys.ErrRejectLimited
	case proc.RejectQueueFull:
		_, limit := g.Limits(AppContext)
		return fmt.Sprintf(sys.ErrRejectQueueFull, limit)
	case proc.RejectAlreadyPlaying:
		return sys.ErrRejectPlaying
	case proc.RejectAlreadyQueued:
		return fmt.Sprintf(sys.ErrRejectQueued, out.Position)
	case proc.RejectLivestream:
		return sys.ErrRejectLivestream
	case proc.RejectUnbounded:
		return sys.ErrRejectUnbounded
	case proc.RejectTooLong:
		limit, _ := g.Limits(AppContext)
		return fmt.Sprintf(sys.ErrRejectTooLong, proc.FormatDuration(int(limit.Seconds()), false))
	default:
		return sys.ErrRejectBlocklisted
	}
}

func resolutionText(err error) string {
	switch proc.FailureOf(err) {
	case proc.FailNoInfo:
		return sys.ErrResolveNoInfo
	case proc.FailNoAccess:
		return sys.ErrResolveNoAccess
	case proc.FailNoMetadata:
		return sys.ErrResolveNoMetadata
	default:
		return sys.ErrResolveUnsupported
	}
}

func intPtr(i int) *int {
	return &i
}

func controlText(res proc.ControlResult) string {
	switch res {
	case proc.ControlNothingPlaying:
		return sys.ErrControlNothingPlaying
	case proc.ControlForbidden:
		return sys.ErrControlForbidden
	case proc.ControlAlreadyPaused:
		return sys.ErrControlAlreadyPaused
	case proc.ControlNotPaused:
		return sys.ErrControlNotPaused
	case proc.ControlNotFound:
		return sys.ErrControlNotFound
	default:
		return sys.ErrControlClosed
	}
}
