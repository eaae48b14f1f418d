package sys

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad      = "Failed to load config: %v"
	MsgConfigMissingToken      = "DISCORD_TOKEN is not set in .env file"
	MsgConfigBadValue          = "Ignoring %s=%q, using default %v"
	MsgDatabaseInitSuccess     = "Database initialized successfully"
	MsgDatabaseTableError      = "Failed to create table: %w"
	MsgDatabasePragmaError     = "Failed to set pragma %s: %w"
	MsgDatabaseSettingReadFail = "Failed to read setting %s for guild %s: %v"
	MsgDaemonStarting          = "Starting..."
	MsgBotStarting             = "Starting %s..."
	MsgBotReady                = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown             = "Shutting down %s..."
	MsgBotKillingOld           = "Killing running instance... (PID: %d)"
	MsgBotKillFail             = "Failed to kill old instance: %v"
	MsgBotOldTerminated        = "Old instance terminated."
	MsgBotPIDWriteFail         = "Failed to write PID file: %v"
	MsgBotRegisterFail         = "Command registration failed: %v"
	MsgBotAPIStatusError       = "discord API returned status %d"
	MsgBotGuildLeft            = "Left guild %s, tearing down its player"
	MsgGenericError            = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Resolver & Cache ---
	MsgResolverTimeout      = "Resolving %q timed out after %v"
	MsgResolverFailed       = "Resolving %q failed (%s): %v"
	MsgResolverSearchPicked = "Search %q picked %s (%s)"
	MsgCacheReadFail        = "Cache read for %s failed: %v"
	MsgCacheDecodeFail      = "Cache entry %s is corrupt: %v"
	MsgCacheWriteFail       = "Cache write for %s failed: %v"

	// --- Voice ---
	MsgVoiceConnected     = "Connected to %s in guild %s"
	MsgVoiceDisconnected  = "Disconnected from %s in guild %s"
	MsgVoiceExtractorExit = "Extractor exited: %v %s"
	MsgVoiceStatusFailed  = "Failed to update status for %s in guild %s: %v"
	MsgVoiceNoListeners   = "No listeners left in guild %s, pausing"
	MsgVoiceListenerBack  = "Listener returned in guild %s, resuming"
	MsgVoiceKicked        = "Disconnected externally from guild %s, stopping"

	// --- Player ---
	MsgPlayerPanic         = "Recovered from panic in guild %s: %v"
	MsgPlayerGuildCreated  = "Player created for guild %s"
	MsgPlayerGuildRemoved  = "Player removed for guild %s"
	MsgPlayerStopped       = "Stopped guild %s"
	MsgPlayerConnectFailed = "Guild %s failed to join %s: %v"
	MsgPlayerNowPlaying    = "Guild %s now playing %s (%s)"
	MsgPlayerStreamError   = "Guild %s stream error on %s: %v"
	MsgPlayerStartFailed   = "Guild %s failed to start %s: %v"
	MsgPlayerFaultCap      = "Guild %s stopping after %d faults in a row"
	MsgPlayerBatchStarted  = "Guild %s batch %s started with %d entries"
	MsgPlayerBatchDone     = "Guild %s batch %s done: %d/%d added (cancelled: %t)"
	MsgPlayerRequest       = "User %s (%s) requested: %s"
	MsgNotifyFailed        = "Failed to notify %s: %v"

	MsgPlayerNowPlayingNotice = "🎶 Now playing %s, requested by %s"
	ErrPlayerConnectFailed    = "❌ Couldn't join the voice channel."
	ErrPlayerStartFailed      = "❌ Couldn't play **%s**, skipping."
	ErrPlayerFaultCap         = "🛑 Too many tracks failed in a row. Stopped."

	// --- Mirror ---
	MsgMirrorAttached     = "Mirror attached in guild %s (message %s)"
	MsgMirrorDetached     = "Mirror detached in guild %s"
	MsgMirrorDeleteFailed = "Failed to delete mirror in guild %s: %v"
	MsgMirrorRenderFailed = "Failed to render mirror in guild %s: %v"

	MsgViewIdle        = "💤 Nothing playing."
	MsgViewPlaying     = "🎶 **Now Playing**\n%s\nRequested by %s"
	MsgViewPaused      = "⏸️ **Paused**\n%s\nRequested by %s"
	MsgViewQueueEmpty  = "**Queue:** _Empty_"
	MsgViewQueueFooter = "-# Page %d/%d · %s queued"
	MsgViewLimited     = "🔒 Only managers can queue right now."
	MsgViewBtnPrev     = "◀"
	MsgViewBtnNext     = "▶"
	MsgViewBtnPause    = "Pause"
	MsgViewBtnResume   = "Resume"
	MsgViewBtnSkip     = "Skip"
	MsgViewBtnStop     = "Stop"

	// --- Presence ---
	MsgPresenceRotated  = "Presence: %s (next in %v)"
	MsgPresenceFail     = "Failed to update presence: %v"
	MsgPresencePlaying  = "Playing in %s"
	MsgPresenceQueued   = "Queued: %s"
	MsgPresenceUptime   = "Uptime: %dh %dm %ds"
	MsgPresenceLatency  = "Ping: %dms"
	MsgPresenceIdleText = "Idle"

	// --- Music Commands ---
	MsgMusicNotInGuild      = "This command only works in a server."
	MsgMusicJoinVoice       = "Join a voice channel first."
	MsgMusicNowPlaying      = "🎶 Playing %s"
	MsgMusicQueued          = "✅ Queued %s, %s in line."
	MsgMusicPlaylistStarted = "📜 Queuing %d tracks..."
	MsgMusicPlaylistDone    = "📜 Playlist done: %d added, %d skipped, %d failed."
	MsgMusicPlaylistStopped = "📜 Playlist stopped after %d of %d tracks."
	MsgMusicStopped         = "⏹️ Stopped and disconnected."
	MsgMusicSkipped         = "⏭️ Skipped."
	MsgMusicPaused          = "⏸️ Paused."
	MsgMusicResumed         = "▶️ Resumed."
	MsgMusicUndone          = "↩️ Removed %s from the queue."
	MsgMusicRemoved         = "🗑️ Removed %s from the queue."
	MsgMusicPlayerPosted    = "Player posted."
	MsgMusicNoPlayer        = "That player is no longer active."

	ErrResolveUnsupported = "❌ That isn't a link or file I can play."
	ErrResolveNoInfo      = "❌ Couldn't find anything for that."
	ErrResolveNoAccess    = "❌ That media is private or unavailable."
	ErrResolveNoMetadata  = "❌ That media has no usable information."

	ErrRejectLimited     = "🔒 Only managers can queue tracks right now."
	ErrRejectQueueFull   = "📋 The queue is full (%d tracks)."
	ErrRejectPlaying     = "🎶 That's already playing."
	ErrRejectQueued      = "📋 That's already queued at position %d."
	ErrRejectLivestream  = "📡 Only managers can queue livestreams."
	ErrRejectUnbounded   = "♾️ Only managers can queue tracks with no known length."
	ErrRejectTooLong     = "⏱️ That's over the %s limit."
	ErrRejectBlocklisted = "🚫 No."

	ErrControlNothingPlaying = "Nothing is playing."
	ErrControlForbidden      = "You can only do that to your own tracks."
	ErrControlAlreadyPaused  = "Already paused."
	ErrControlNotPaused      = "Not paused."
	ErrControlNotFound       = "Nothing to remove there."
	ErrControlClosed         = "The player is shutting down."
	ErrMirrorAttachFailed    = "❌ Couldn't post the player: %v"

	// --- Music Admin ---
	MsgAdminLimitOn     = "🔒 Limited mode on. Only managers can queue."
	MsgAdminLimitOff    = "🔓 Limited mode off. Everyone can queue."
	MsgAdminMaxDuration = "⏱️ Longest allowed track is now %s."
	MsgAdminQueueLimit  = "📋 Queue limit is now %d."
	MsgAdminAnnounceOn  = "📢 Now-playing notices on."
	MsgAdminAnnounceOff = "🔕 Now-playing notices off."
	ErrAdminSaveFailed  = "❌ Couldn't save that setting."
	ErrAdminBadValue    = "❌ The value must be positive."

	// --- Session ---
	MsgSessionShutdownCommanded = "Shutdown commanded by %s (%s)"
	MsgSessionShuttingDown      = "👋 Shutting down..."
	MsgSessionStatusEnabled     = "✅ Presence rotation enabled."
	MsgSessionStatusDisabled    = "💤 Presence rotation disabled."
	MsgSessionStatsLoading      = "📊 Gathering stats..."
	MsgSessionConsoleEmpty      = "_The log file is empty._"
	MsgSessionConsoleNoFile     = "File logging is disabled."
	MsgSessionCleared           = "🧹 Cleared all guild commands from this server."
	MsgSessionTruncated         = "Log file truncated by %s"
	ErrSessionOwnerOnly         = "🔒 Only bot owners can do that."
	ErrSessionCleanupFail       = "❌ Couldn't clear commands: %v"
)
