package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	karaokeColor  = color.New(color.FgMagenta)
	voiceColor    = color.New(color.FgMagenta)
	statsColor    = color.New(color.FgMagenta)
	reminderColor = color.New(color.FgMagenta)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := GetProjectName() + ".log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogKaraoke(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "karaoke"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogStats(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "stats"))
}

func LogReminder(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "reminder"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
		if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
			if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
				displayMsg = r.Message
			}
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "KARAOKE":
		return karaokeColor
	case "VOICE":
		return voiceColor
	case "STATS":
		return statsColor
	case "REMINDER":
		return reminderColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

// --- Utilities & State ---

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotKillFail         = "Failed to kill old instance: %v"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotPIDWriteFail     = "Failed to write PID file: %v"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderTransition         = "[TRANSITION] Switching from %s to %s mode."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Karaoke System ---
	MsgKaraokeSongsLoaded       = "Song registry loaded (%d songs)"
	MsgKaraokeSongsFileInvalid  = "Failed to read songs.json: %v"
	MsgKaraokeSessionCreated    = "Session created for %s in guild %s (%v)"
	MsgKaraokeSessionActive     = "Session active for %s in guild %s"
	MsgKaraokeSessionCompleted  = "Session completed for %s in guild %s"
	MsgKaraokeSessionStopped    = "Session stopped for %s in guild %s"
	MsgKaraokeSessionFailed     = "Session failed for %s in guild %s: %v"
	MsgKaraokeCompletionDropped = "Completion event dropped for guild %s"
	MsgKaraokeRenderFailed      = "Lyric render failed in guild %s: %v"
	MsgKaraokeRespondError      = "Failed to respond to interaction: %v"
	MsgKaraokeLyricsLoadFailed  = "Failed to load lyrics for %s: %v"
	MsgKaraokeStartRequested    = "Karaoke start by %s (%s): %s"
	MsgKaraokeStopRequested     = "Karaoke stop by %s (%s) in guild %s"
	MsgKaraokeForceStop         = "Karaoke force-stop by %s (%s) in guild %s"
	MsgKaraokeVoiceLost         = "Voice connection lost in guild %s, stopping session"
	MsgKaraokeStarted           = "🎤 Now singing **%s** by %s!"
	MsgKaraokeDuetSuffix        = "\nDuet: <@%s> & <@%s>"
	MsgKaraokeStopped           = "Karaoke session stopped."
	MsgKaraokeReloaded          = "Song registry reloaded."
	MsgKaraokeNowState          = "\n> Status: `%s`\n"
	MsgKaraokeNowSinger         = "> Singer %d: <@%s>\n"
	MsgKaraokeListHeader        = "**Karaoke Songs** (%d available)\n\n"
	MsgKaraokeListItem          = "%d. **%s** by %s (%s) `%s`\n"
	ErrKaraokeGuildOnly         = "This command can only be used in a server."
	ErrKaraokeUnknownSong       = "Unknown song: `%s`. Use `/karaoke list` to see available songs."
	ErrKaraokeNotInVoice        = "You must be in a voice channel to start karaoke!"
	ErrKaraokeLyricsInvalid     = "The lyrics for **%s** could not be parsed."
	ErrKaraokeLyricsUnavailable = "The lyrics for **%s** are unavailable."
	ErrKaraokeAlreadyActive     = "A karaoke session is already running in this server. Stop it first with `/karaoke stop`."
	ErrKaraokeNoAudio           = "No audio source could be found for **%s**. Try again later."
	ErrKaraokeVoiceJoinFailed   = "Failed to join your voice channel."
	ErrKaraokeDisplayFailed     = "Failed to post the lyric display."
	ErrKaraokeStreamFailed      = "Failed to start audio playback."
	ErrKaraokeNoSession         = "No karaoke session is currently running."

	// --- Stats & Achievements ---
	MsgStatsSinkStopped         = "Shutting down stats sink..."
	MsgStatsCompletionRecorded  = "Recorded completion of %s in guild %s (%d participants)"
	MsgStatsAchievementUnlocked = "Achievement %s unlocked for user %s"
	MsgStatsUnlockAnnounce      = "%s <@%s> unlocked the **%s** achievement!"
	MsgStatsProfileHeader       = "**Karaoke Profile: %s**\n\n"
	MsgStatsProfileSessions     = "> Songs completed: `%d`\n"
	MsgStatsProfileDuets        = "> Duets completed: `%d`\n"
	MsgStatsProfileEarned       = "%s **%s**\n"
	MsgStatsProfileLocked       = "🔒 %s (%d to go)\n"
	ErrStatsHistoryWrite        = "Failed to record karaoke history: %v"
	ErrStatsIncrement           = "Failed to increment %s for user %s: %v"
	ErrStatsUnlockWrite         = "Failed to record achievement %s for user %s: %v"
	ErrStatsUnlockAnnounce      = "Failed to announce achievement: %v"
	ErrStatsRead                = "Failed to read stats for user %s: %v"
	ErrStatsUnavailable         = "Failed to retrieve karaoke stats."

	// --- Reminder System ---
	MsgReminderFailedToQueryDue    = "Failed to query due reminders: %v"
	MsgReminderFailedToCreateDM    = "Failed to create DM channel for user %s: %v"
	MsgReminderFailedToSend        = "Failed to send reminder %d: %v"
	MsgReminderSentAndDeleted      = "Sent and deleted reminder %d for user %s"
	MsgReminderFailedToSave        = "Failed to save reminder: %v"
	MsgReminderFailedToDeleteAll   = "Failed to delete all reminders: %v"
	MsgReminderFailedToQuery       = "Failed to query reminders: %v"
	MsgReminderAutocompleteFailed  = "Failed to query reminders for autocomplete: %v"
	MsgReminderRespondError        = "Failed to respond to interaction: %v"
	MsgReminderNaturalTimeInitFail = "Failed to initialize naturaltime parser: %v"
	ErrReminderParseFailed         = "Failed to parse the date/time. Try formats like 'tomorrow', 'in 2 hours', 'next friday at 3pm'."
	ErrReminderPastTime            = "The reminder time must be in the future!"
	ErrReminderSaveFailed          = "Failed to save reminder. Please try again."
	ErrReminderFetchFailed         = "Failed to retrieve your reminders."
	ErrReminderDismissFailed       = "Failed to dismiss reminder."
	ErrReminderDismissAllFail      = "Failed to dismiss all reminders."
	MsgReminderSetSuccess          = "Reminder set for %s\n\n %s"
	MsgReminderDismissedBatch      = "Dismissed **%d** reminder(s)!"
	MsgReminderNoActive            = "You have no active reminders. Set one with `/reminder set`!"
	MsgReminderDismissed           = "Reminder dismissed!"
	MsgReminderListHeader          = "**Your Reminders** (%d active)\n\n"
	MsgReminderListItem            = "%d. **%s** - %s\n"
	MsgReminderChoiceAll           = "Dismiss All (%d reminders)"
	MsgReminderStatsHeader         = "**Your Active Reminders (%d)**\n\n"
	MsgReminderStatsMore           = "> ...and %d more."
	MsgReminderStatsDue            = "> Due %s (`%s`)\n"
	MsgReminderStatsDM             = "> Delivery: Direct Message\n"
	MsgReminderRelLessMinute       = "in less than a minute"
	MsgReminderRelMinute           = "in 1 minute"
	MsgReminderRelMinutes          = "in %d minutes"
	MsgReminderRelHour             = "in 1 hour"
	MsgReminderRelHours            = "in %d hours"
	MsgReminderRelDay              = "in 1 day"
	MsgReminderRelDays             = "in %d days"
	MsgReminderRelWeek             = "in 1 week"
	MsgReminderRelWeeks            = "in %d weeks"
	MsgReminderRelMonth            = "in 1 month"
	MsgReminderRelMonths           = "in %d months"
	MsgReminderRelYear             = "in 1 year"
	MsgReminderRelYears            = "in %d years"
)
