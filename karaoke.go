package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ===========================
// Command Registration
// ===========================

func init() {
	adminPerm := discord.PermissionAdministrator

	OnClientReady(func(ctx context.Context, client *bot.Client) {
		RegisterDaemon(LogKaraoke, func(ctx context.Context) (bool, func(), func()) {
			return true, func() {}, func() {
				LogKaraoke("Shutting down karaoke sessions...")
				GetKaraokeManager().Shutdown()
			}
		})

		RegisterVoiceStateUpdateHandler(onKaraokeVoiceStateUpdate)
	})

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "karaoke",
		Description: "Sing along with synced lyrics",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "start",
				Description: "Start a karaoke session",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "song",
						Description:  "The song to sing",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionUser{
						Name:        "partner",
						Description: "Duet partner (alternates lines with you)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop the current karaoke session",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "now",
				Description: "Show the current karaoke session",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List available karaoke songs",
			},
		},
	}, handleKaraoke)

	RegisterAutocompleteHandler("karaoke", handleKaraokeAutocomplete)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "karaokeadmin",
		Description:              "Karaoke administration (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "forcestop",
				Description: "Force-stop the karaoke session in this server",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "reload",
				Description: "Reload the song registry and lyric cache",
			},
		},
	}, handleKaraokeAdmin)
}

// ===========================
// Session Engine
// ===========================

// VerseBreakGap is the timestamp gap, in seconds, above which a blank
// separator line is inserted between rendered lyric lines.
const VerseBreakGap = 4.0

const karaokeBarWidth = 20

// ErrAlreadyActive is returned when a guild already has a live session.
var ErrAlreadyActive = errors.New("a karaoke session is already active in this server")

// SessionState tracks a session through its lifecycle. Transitions are
// one-way: a terminal state is never left.
type SessionState int

const (
	StateCreated SessionState = iota
	StateAudioStarting
	StateActive
	StateStopped
	StateCompleted
	StateFailed
)

func (s SessionState) Terminal() bool {
	return s >= StateStopped
}

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAudioStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// KaraokeMode distinguishes solo and duet sessions.
type KaraokeMode int

const (
	ModeSolo KaraokeMode = iota
	ModeDuet
)

func (m KaraokeMode) String() string {
	if m == ModeDuet {
		return "duet"
	}
	return "solo"
}

// LyricsRenderer pushes a rendered karaoke display somewhere visible.
type LyricsRenderer interface {
	Render(progress float64, body string) error
}

// KaraokeCompletion is emitted when a session runs to its natural end.
type KaraokeCompletion struct {
	GuildID      snowflake.ID
	ChannelID    snowflake.ID
	SongID       string
	Participants []snowflake.ID
	Duet         bool
}

// KaraokeSystem manages karaoke sessions across guilds. At most one live
// session exists per guild.
type KaraokeSystem struct {
	mu          sync.Mutex
	sessions    map[snowflake.ID]*KaraokeSession
	completions chan KaraokeCompletion
	now         func() time.Time
}

var (
	KaraokeManager *KaraokeSystem
	OnceKaraoke    sync.Once
)

// GetKaraokeManager returns the singleton KaraokeSystem instance.
func GetKaraokeManager() *KaraokeSystem {
	OnceKaraoke.Do(func() {
		KaraokeManager = NewKaraokeSystem()
	})
	return KaraokeManager
}

// NewKaraokeSystem builds an empty session registry.
func NewKaraokeSystem() *KaraokeSystem {
	return &KaraokeSystem{
		sessions:    make(map[snowflake.ID]*KaraokeSession),
		completions: make(chan KaraokeCompletion, 16),
		now:         time.Now,
	}
}

// Completions exposes the stream of finished sessions.
func (ks *KaraokeSystem) Completions() <-chan KaraokeCompletion {
	return ks.completions
}

// Session returns the live session for a guild, or nil.
func (ks *KaraokeSystem) Session(guildID snowflake.ID) *KaraokeSession {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.sessions[guildID]
}

// Create registers a new session for a guild. If the guild already has a
// live session it is left untouched and ErrAlreadyActive is returned.
func (ks *KaraokeSystem) Create(guildID, channelID snowflake.ID, song KaraokeSong, lines []LyricLine, participants []snowflake.ID) (*KaraokeSession, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.sessions[guildID]; ok {
		return nil, ErrAlreadyActive
	}

	mode := ModeSolo
	if len(participants) > 1 {
		mode = ModeDuet
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &KaraokeSession{
		GuildID:      guildID,
		ChannelID:    channelID,
		Song:         song,
		Lines:        lines,
		Participants: participants,
		Mode:         mode,
		state:        StateCreated,
		lastDecile:   -1,
		system:       ks,
		cancelCtx:    ctx,
		cancelFunc:   cancel,
	}
	sess.staticBody = sess.RenderStaticLyrics()
	ks.sessions[guildID] = sess
	LogKaraoke(MsgKaraokeSessionCreated, song.ID, guildID, mode)
	return sess, nil
}

// remove drops a session from the registry if it is still the registered one.
func (ks *KaraokeSystem) remove(sess *KaraokeSession) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.sessions[sess.GuildID] == sess {
		delete(ks.sessions, sess.GuildID)
	}
}

// emit publishes a completion event without ever blocking the engine.
func (ks *KaraokeSystem) emit(c KaraokeCompletion) {
	select {
	case ks.completions <- c:
	default:
		LogKaraoke(MsgKaraokeCompletionDropped, c.GuildID)
	}
}

// Shutdown stops every live session.
func (ks *KaraokeSystem) Shutdown() {
	ks.mu.Lock()
	sessions := make([]*KaraokeSession, 0, len(ks.sessions))
	for _, s := range ks.sessions {
		sessions = append(sessions, s)
	}
	ks.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// KaraokeSession is one guild's sing-along: a song, its parsed lyric lines,
// the ordered participants and the timing state driving the display.
type KaraokeSession struct {
	GuildID      snowflake.ID
	ChannelID    snowflake.ID
	Song         KaraokeSong
	Lines        []LyricLine
	Participants []snowflake.ID
	Mode         KaraokeMode

	mu         sync.Mutex
	state      SessionState
	startTime  time.Time
	lastDecile int
	staticBody string
	renderer   LyricsRenderer
	system     *KaraokeSystem
	cancelCtx  context.Context
	cancelFunc context.CancelFunc
}

// State reports the current lifecycle state.
func (s *KaraokeSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetRenderer installs the display target. Must be set before activation.
func (s *KaraokeSession) SetRenderer(r LyricsRenderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
}

// ElapsedSeconds is the wall-clock time since the session went active. The
// engine trusts the clock, not the audio pipeline, so network stalls in
// playback do not slow the lyric display down.
func (s *KaraokeSession) ElapsedSeconds(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(now)
}

func (s *KaraokeSession) elapsedLocked(now time.Time) float64 {
	if s.startTime.IsZero() {
		return 0
	}
	d := now.Sub(s.startTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// ProgressFraction is elapsed time over song duration, clamped to [0, 1].
func (s *KaraokeSession) ProgressFraction(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked(now)
}

func (s *KaraokeSession) progressLocked(now time.Time) float64 {
	if s.Song.Duration <= 0 {
		return 0
	}
	p := s.elapsedLocked(now) / float64(s.Song.Duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// AssignedParticipant maps the nth rendered lyric line to its singer.
// In a duet the participants alternate; solo sessions always return the
// single participant.
func (s *KaraokeSession) AssignedParticipant(ordinal int) snowflake.ID {
	if len(s.Participants) == 0 {
		return 0
	}
	return s.Participants[ordinal%len(s.Participants)]
}

// RenderStaticLyrics builds the full lyric sheet once. Empty lines, "--"
// markers and bracketed comment lines are dropped; a blank separator is
// inserted where consecutive kept lines are more than VerseBreakGap apart.
// Separators do not advance the duet alternation.
func (s *KaraokeSession) RenderStaticLyrics() string {
	var sb strings.Builder
	prev := -1.0
	ordinal := 0

	for _, ln := range s.Lines {
		text := strings.TrimSpace(ln.Text)
		if text == "" || strings.HasPrefix(text, "--") || strings.HasPrefix(text, "[") {
			continue
		}
		if prev >= 0 && ln.Timestamp-prev > VerseBreakGap {
			sb.WriteString("\n")
		}
		if s.Mode == ModeDuet {
			singer := s.AssignedParticipant(ordinal)
			if ordinal%2 == 0 {
				sb.WriteString(fmt.Sprintf("🎤 <@%s> **%s**\n", singer, text))
			} else {
				sb.WriteString(fmt.Sprintf("🎙️ <@%s> *%s*\n", singer, text))
			}
		} else {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		ordinal++
		prev = ln.Timestamp
	}
	return strings.TrimRight(sb.String(), "\n")
}

// StaticLyrics returns the precomputed lyric sheet.
func (s *KaraokeSession) StaticLyrics() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staticBody
}

// MarkAudioStarting transitions Created -> AudioStarting.
func (s *KaraokeSession) MarkAudioStarting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCreated {
		s.state = StateAudioStarting
	}
}

// Activate records the start time and enters Active. The start time is set
// exactly once; repeated calls are no-ops.
func (s *KaraokeSession) Activate(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated && s.state != StateAudioStarting {
		return
	}
	if s.startTime.IsZero() {
		s.startTime = now
	}
	s.state = StateActive
	LogKaraoke(MsgKaraokeSessionActive, s.Song.ID, s.GuildID)
}

// StartTicker drives the display once per second until the session ends.
func (s *KaraokeSession) StartTicker() {
	safeGo(func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.cancelCtx.Done():
				return
			case <-ticker.C:
				s.Tick(s.system.now())
			}
		}
	})
}

// Tick advances the display for the given instant. It is idempotent: the
// renderer only fires when progress enters a new decile, and ticks on
// finished sessions do nothing. A render failure is logged and the session
// keeps going.
func (s *KaraokeSession) Tick(now time.Time) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	p := s.progressLocked(now)
	decile := int(p * 10)
	if decile == s.lastDecile {
		s.mu.Unlock()
		if p >= 1 {
			s.Complete()
		}
		return
	}
	s.lastDecile = decile
	renderer := s.renderer
	body := s.staticBody
	s.mu.Unlock()

	if renderer != nil {
		if err := renderer.Render(p, body); err != nil {
			LogKaraoke(MsgKaraokeRenderFailed, s.GuildID, err)
		}
	}
	if p >= 1 {
		s.Complete()
	}
}

// Complete finishes an Active session and emits its completion event.
func (s *KaraokeSession) Complete() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = StateCompleted
	s.mu.Unlock()

	s.cancelFunc()
	s.system.remove(s)
	s.system.emit(KaraokeCompletion{
		GuildID:      s.GuildID,
		ChannelID:    s.ChannelID,
		SongID:       s.Song.ID,
		Participants: append([]snowflake.ID(nil), s.Participants...),
		Duet:         s.Mode == ModeDuet,
	})
	LogKaraoke(MsgKaraokeSessionCompleted, s.Song.ID, s.GuildID)
}

// Stop ends a session early. No completion event is emitted.
func (s *KaraokeSession) Stop() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.cancelFunc()
	s.system.remove(s)
	LogKaraoke(MsgKaraokeSessionStopped, s.Song.ID, s.GuildID)
}

// Fail ends a session with an error. Fatal only during setup; a session
// that already produced a display simply stops updating.
func (s *KaraokeSession) Fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.mu.Unlock()

	s.cancelFunc()
	s.system.remove(s)
	LogKaraoke(MsgKaraokeSessionFailed, s.Song.ID, s.GuildID, err)
}

// ===========================
// Render Adapter
// ===========================

// messageRenderer edits the session's lyric message in place. Edits go
// through a rate limiter so a burst of deciles cannot hammer the REST API.
type messageRenderer struct {
	client    *bot.Client
	channelID snowflake.ID
	messageID snowflake.ID
	song      KaraokeSong
	limiter   *rate.Limiter
}

func newMessageRenderer(client *bot.Client, channelID, messageID snowflake.ID, song KaraokeSong) *messageRenderer {
	return &messageRenderer{
		client:    client,
		channelID: channelID,
		messageID: messageID,
		song:      song,
		limiter:   rate.NewLimiter(rate.Every(1200*time.Millisecond), 2),
	}
}

func (r *messageRenderer) Render(progress float64, body string) error {
	ctx := AppContext
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	container := NewV2Container(
		NewTextDisplay(karaokeHeader(r.song, progress)),
		NewSeparator(true),
		NewTextDisplay(body),
	)
	_, err := EditMessageV2(*r.client, r.channelID, r.messageID, container)
	return err
}

// karaokeHeader renders the progress bar and clock line above the lyrics.
func karaokeHeader(song KaraokeSong, progress float64) string {
	filled := int(progress * karaokeBarWidth)
	if filled > karaokeBarWidth {
		filled = karaokeBarWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", karaokeBarWidth-filled)
	elapsed := int(progress * float64(song.Duration))
	return fmt.Sprintf("🎤 **%s** · %s\n`[%s]` `%s / %s`",
		song.Title, song.Artist, bar, formatClock(elapsed), formatClock(song.Duration))
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ===========================
// Command Handlers
// ===========================

// handleKaraoke routes karaoke subcommands to their respective handlers.
func handleKaraoke(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	switch *data.SubCommandName {
	case "start":
		handleKaraokeStart(event, data)
	case "stop":
		handleKaraokeStop(event)
	case "now":
		handleKaraokeNow(event)
	case "list":
		handleKaraokeList(event)
	}
}

// karaokeRespondImmediate sends an ephemeral response message.
func karaokeRespondImmediate(event *events.ApplicationCommandInteractionCreate, content string) {
	if err := RespondInteractionV2(*event.Client(), event, NewV2Container(NewTextDisplay(content)), true); err != nil {
		LogKaraoke(MsgKaraokeRespondError, err)
	}
}

func handleKaraokeStart(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		karaokeRespondImmediate(event, ErrKaraokeGuildOnly)
		return
	}

	songID := data.String("song")
	song, ok := GetSongLibrary().Get(songID)
	if !ok {
		karaokeRespondImmediate(event, fmt.Sprintf(ErrKaraokeUnknownSong, songID))
		return
	}

	vs, ok := event.Client().Caches.VoiceState(*guildID, event.User().ID)
	if !ok || vs.ChannelID == nil {
		karaokeRespondImmediate(event, ErrKaraokeNotInVoice)
		return
	}

	participants := []snowflake.ID{event.User().ID}
	if partner, ok := data.OptSnowflake("partner"); ok && partner != event.User().ID {
		participants = append(participants, partner)
	}

	lines, err := GetSongLibrary().Lyrics(songID)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			karaokeRespondImmediate(event, fmt.Sprintf(ErrKaraokeLyricsInvalid, song.Title))
		} else {
			karaokeRespondImmediate(event, fmt.Sprintf(ErrKaraokeLyricsUnavailable, song.Title))
		}
		LogKaraoke(MsgKaraokeLyricsLoadFailed, songID, err)
		return
	}

	sess, err := GetKaraokeManager().Create(*guildID, event.Channel().ID(), song, lines, participants)
	if err != nil {
		karaokeRespondImmediate(event, ErrKaraokeAlreadyActive)
		return
	}

	LogKaraoke(MsgKaraokeStartRequested, event.User().Username, event.User().ID, song.ID)
	_ = event.DeferCreateMessage(false)
	safeGo(func() { startKaraokePlayback(event, sess, *vs.ChannelID) })
}

// startKaraokePlayback resolves audio, joins voice and wires the session
// to the audio transport. Any failure here is fatal for the session.
func startKaraokePlayback(event *events.ApplicationCommandInteractionCreate, sess *KaraokeSession, voiceChannelID snowflake.ID) {
	client := event.Client()

	failSetup := func(userMsg string, err error) {
		sess.Fail(err)
		GetAudioManager().Leave(context.Background(), sess.GuildID)
		_ = EditInteractionV2(*client, event, NewV2Container(NewTextDisplay(userMsg)))
	}

	ctx, cancel := context.WithTimeout(sess.cancelCtx, 30*time.Second)
	defer cancel()

	url, err := GetAudioManager().ResolveAudioSource(ctx, sess.Song)
	if err != nil {
		failSetup(fmt.Sprintf(ErrKaraokeNoAudio, sess.Song.Title), err)
		return
	}

	sess.MarkAudioStarting()
	if err := GetAudioManager().Connect(ctx, client, sess.GuildID, voiceChannelID); err != nil {
		failSetup(ErrKaraokeVoiceJoinFailed, err)
		return
	}

	container := NewV2Container(
		NewTextDisplay(karaokeHeader(sess.Song, 0)),
		NewSeparator(true),
		NewTextDisplay(sess.StaticLyrics()),
	)
	msg, err := SendMessageV2(*client, sess.ChannelID, container, nil)
	if err != nil {
		failSetup(ErrKaraokeDisplayFailed, err)
		return
	}
	sess.SetRenderer(newMessageRenderer(client, sess.ChannelID, msg.ID, sess.Song))
	GetAudioManager().SetStatus(sess.GuildID, fmt.Sprintf("🎤 %s · %s", sess.Song.Title, sess.Song.Artist))

	err = GetAudioManager().PlayStream(sess.GuildID, url,
		func(startedAt time.Time) {
			sess.Activate(startedAt)
			sess.StartTicker()
		},
		func(playErr error) {
			if playErr != nil {
				sess.Fail(playErr)
			} else {
				sess.Complete()
			}
			GetAudioManager().Leave(context.Background(), sess.GuildID)
		})
	if err != nil {
		failSetup(ErrKaraokeStreamFailed, err)
		return
	}

	header := fmt.Sprintf(MsgKaraokeStarted, sess.Song.Title, sess.Song.Artist)
	if sess.Mode == ModeDuet {
		header += fmt.Sprintf(MsgKaraokeDuetSuffix, sess.Participants[0], sess.Participants[1])
	}
	_ = EditInteractionV2(*client, event, NewV2Container(NewTextDisplay(header)))
}

func handleKaraokeStop(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		karaokeRespondImmediate(event, ErrKaraokeGuildOnly)
		return
	}
	sess := GetKaraokeManager().Session(*guildID)
	if sess == nil {
		karaokeRespondImmediate(event, ErrKaraokeNoSession)
		return
	}
	LogKaraoke(MsgKaraokeStopRequested, event.User().Username, event.User().ID, *guildID)
	sess.Stop()
	GetAudioManager().Leave(context.Background(), *guildID)
	karaokeRespondImmediate(event, MsgKaraokeStopped)
}

func handleKaraokeNow(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		karaokeRespondImmediate(event, ErrKaraokeGuildOnly)
		return
	}
	sess := GetKaraokeManager().Session(*guildID)
	if sess == nil {
		karaokeRespondImmediate(event, ErrKaraokeNoSession)
		return
	}

	now := GetKaraokeManager().now()
	var sb strings.Builder
	sb.WriteString(karaokeHeader(sess.Song, sess.ProgressFraction(now)))
	sb.WriteString(fmt.Sprintf(MsgKaraokeNowState, sess.State()))
	for i, p := range sess.Participants {
		sb.WriteString(fmt.Sprintf(MsgKaraokeNowSinger, i+1, p))
	}
	karaokeRespondImmediate(event, sb.String())
}

func handleKaraokeList(event *events.ApplicationCommandInteractionCreate) {
	songs := GetSongLibrary().All()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgKaraokeListHeader, len(songs)))
	for i, s := range songs {
		sb.WriteString(fmt.Sprintf(MsgKaraokeListItem, i+1, s.Title, s.Artist, formatClock(s.Duration), s.ID))
	}
	karaokeRespondImmediate(event, sb.String())
}

func handleKaraokeAdmin(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	switch *data.SubCommandName {
	case "forcestop":
		guildID := event.GuildID()
		if guildID == nil {
			karaokeRespondImmediate(event, ErrKaraokeGuildOnly)
			return
		}
		sess := GetKaraokeManager().Session(*guildID)
		if sess == nil {
			karaokeRespondImmediate(event, ErrKaraokeNoSession)
			return
		}
		LogKaraoke(MsgKaraokeForceStop, event.User().Username, event.User().ID, *guildID)
		sess.Stop()
		GetAudioManager().Leave(context.Background(), *guildID)
		karaokeRespondImmediate(event, MsgKaraokeStopped)
	case "reload":
		GetSongLibrary().Reload()
		karaokeRespondImmediate(event, MsgKaraokeReloaded)
	}
}

// handleKaraokeAutocomplete suggests songs from the registry.
func handleKaraokeAutocomplete(event *events.AutocompleteInteractionCreate) {
	f := event.Data.Focused()
	if f.Name != "song" {
		return
	}
	q := strings.ToLower(f.String())

	var choices []discord.AutocompleteChoice
	for _, s := range GetSongLibrary().All() {
		if q != "" && !ContainsLower(s.Title, q) && !ContainsLower(s.Artist, q) && !ContainsLower(s.ID, q) {
			continue
		}
		name := Truncate(fmt.Sprintf("%s - %s (%s)", s.Title, s.Artist, formatClock(s.Duration)), 100)
		choices = append(choices, discord.AutocompleteChoiceString{Name: name, Value: s.ID})
		if len(choices) >= 25 {
			break
		}
	}
	_ = event.AutocompleteResult(choices)
}

// onKaraokeVoiceStateUpdate stops the lyric session when the bot loses its
// voice connection mid-song.
func onKaraokeVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() || event.VoiceState.ChannelID != nil {
		return
	}
	// Drop the audio session first so a retry gets a fresh connection and
	// the stream pipeline unblocks.
	GetAudioManager().Leave(context.Background(), event.VoiceState.GuildID)
	sess := GetKaraokeManager().Session(event.VoiceState.GuildID)
	if sess == nil {
		return
	}
	LogKaraoke(MsgKaraokeVoiceLost, event.VoiceState.GuildID)
	sess.Stop()
}
