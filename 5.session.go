package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/tempo/sys"
)

const (
	StatsAnsiReset    = "\u001b[0m"
	StatsAnsiPink     = "\u001b[35m"
	StatsAnsiPinkBold = "\u001b[1;35m"

	consoleLines = 20
)

var adminPerm = discord.PermissionAdministrator

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "session",
		Description:              "Session management utilities (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shutdown",
				Description: "Shut down the bot process (owners only)",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stats",
				Description: "Display system and playback statistics",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "ephemeral",
						Description: "Whether the message should be ephemeral (default: true)",
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "status",
				Description: "Configure bot presence rotation",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "visible",
						Description: "Enable or disable presence rotation",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "console",
				Description: "View recent bot logs",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "truncate",
						Description: "Whether to clear the log file after viewing (default: false)",
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "cleanup",
				Description: "Clear all guild commands from the current server",
			},
		},
	}, handleSession)
}

func handleSession(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "shutdown":
		handleSessionShutdown(event)
	case "stats":
		handleSessionStats(event, data)
	case "status":
		handleSessionStatus(event, data)
	case "console":
		handleSessionConsole(event, data)
	case "cleanup":
		handleSessionCleanup(event)
	}
}

func handleSessionShutdown(event *events.ApplicationCommandInteractionCreate) {
	if Music == nil || !Music.cfg.IsOwner(event.User().ID) {
		musicReply(event, sys.ErrSessionOwnerOnly, true)
		return
	}
	sys.LogWarn(sys.MsgSessionShutdownCommanded, event.User().Username, event.User().ID)
	musicReply(event, sys.MsgSessionShuttingDown, true)
	time.Sleep(time.Second)
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

func handleSessionStatus(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	visible := data.Bool("visible")
	if err := sys.SetBotConfig(AppContext, "status_visible", fmt.Sprint(visible)); err != nil {
		musicReply(event, sys.ErrAdminSaveFailed, true)
		return
	}
	content := sys.MsgSessionStatusDisabled
	if visible {
		content = sys.MsgSessionStatusEnabled
	}
	musicReply(event, content, true)
}

func handleSessionStats(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	ephemeral := true
	if eph, ok := data.OptBool("ephemeral"); ok {
		ephemeral = eph
	}
	musicReply(event, sys.MsgSessionStatsLoading, ephemeral)

	go func() {
		roundTrip := time.Since(event.ID().Time())

		start := time.Now()
		_, _ = sys.GetBotConfig(AppContext, "ping_test")
		dbLatency := time.Since(start)

		var playing, queued int
		if Music != nil {
			playing, queued = Music.registry.Activity()
		}
		content := renderStats(sessionStats{
			Uptime:    time.Since(StartupTime),
			Gateway:   event.Client().Gateway.Latency(),
			RoundTrip: roundTrip,
			Database:  dbLatency,
			Playing:   playing,
			Queued:    queued,
		})
		_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
			discord.NewMessageUpdate().
				WithIsComponentsV2(true).
				AddComponents(discord.NewContainer(discord.NewTextDisplay(content))))
	}()
}

func handleSessionCleanup(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		musicReply(event, sys.MsgMusicNotInGuild, true)
		return
	}
	_, err := event.Client().Rest.SetGuildCommands(event.ApplicationID(), *guildID, []discord.ApplicationCommandCreate{})
	if err != nil {
		musicReply(event, fmt.Sprintf(sys.ErrSessionCleanupFail, err), true)
		return
	}
	musicReply(event, sys.MsgSessionCleared, true)
}

func handleSessionConsole(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	path := sys.GetLogPath()
	if path == "" {
		musicReply(event, sys.MsgSessionConsoleNoFile, true)
		return
	}
	lines, err := tailLines(path, consoleLines)
	if err != nil {
		musicReply(event, fmt.Sprintf(sys.MsgGenericError, err), true)
		return
	}
	content := sys.MsgSessionConsoleEmpty
	if len(lines) > 0 {
		content = "```ansi\n" + truncateConsole(strings.Join(lines, "\n"), 3900) + "\n```"
	}
	musicReply(event, content, true)

	if trunc, ok := data.OptBool("truncate"); ok && trunc {
		_ = os.Truncate(path, 0)
		sys.LogInfo(sys.MsgSessionTruncated, event.User().Username)
	}
}

// --- Stats ---

type sessionStats struct {
	Uptime    time.Duration
	Gateway   time.Duration
	RoundTrip time.Duration
	Database  time.Duration
	Playing   int
	Queued    int
}

func renderStats(s sessionStats) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	system := []string{
		statsTitle("System"),
		statsKey("Platform") + " " + statsVal(runtime.GOOS+" "+runtime.GOARCH),
		statsKey("Go Version") + " " + statsVal(runtime.Version()),
		statsKey("Memory") + " " + statsVal(humanize.Bytes(m.HeapAlloc)+" / "+humanize.Bytes(m.Sys)+" (Sys)"),
		statsKey("Goroutines") + " " + statsVal(humanize.Comma(int64(runtime.NumGoroutine()))),
	}

	uptime := fmt.Sprintf("%dd %dh %dm", int(s.Uptime.Hours())/24, int(s.Uptime.Hours())%24, int(s.Uptime.Minutes())%60)
	app := []string{
		statsTitle("App"),
		statsKey("Uptime") + " " + statsVal(uptime),
		statsKey("Playing") + " " + statsVal(humanize.Comma(int64(s.Playing))+" guilds"),
		statsKey("Queued") + " " + statsVal(humanize.Comma(int64(s.Queued))+" tracks"),
	}
	if s.Gateway > 0 {
		app = append(app, statsKey("Gateway")+" "+statsVal(fmt.Sprintf("%dms", s.Gateway.Milliseconds())))
	}
	if s.RoundTrip > 0 {
		app = append(app, statsKey("API Latency")+" "+statsVal(fmt.Sprintf("%dms", s.RoundTrip.Milliseconds())))
	}
	if s.Database > 0 {
		app = append(app, statsKey("Database")+" "+statsVal(fmt.Sprintf("%.2fms", float64(s.Database.Microseconds())/1000)))
	}
	return fmt.Sprintf("```ansi\n%s\n\n%s\n```", strings.Join(system, "\n"), strings.Join(app, "\n"))
}

func statsTitle(t string) string { return StatsAnsiPink + t + StatsAnsiReset }
func statsKey(t string) string   { return StatsAnsiPink + "> " + t + ":" + StatsAnsiReset }
func statsVal(t string) string   { return StatsAnsiPinkBold + t + StatsAnsiReset }

// --- Console ---

// tailLines returns the last n non-empty lines of the file at path.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	return ring, scanner.Err()
}

// truncateConsole keeps the newest part of s within max bytes, cutting at a
// line boundary.
func truncateConsole(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[len(s)-max:]
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
