package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Achievement Definitions
// ===========================

// Achievement unlocks when a tracked stat reaches its threshold.
type Achievement struct {
	ID        string
	Name      string
	Emoji     string
	Stat      string
	Threshold int64
}

const (
	StatKaraokeSessions = "karaoke_sessions"
	StatKaraokeDuets    = "karaoke_duets"
)

var achievementDefs = []Achievement{
	{ID: "first_song", Name: "First Song", Emoji: "🎵", Stat: StatKaraokeSessions, Threshold: 1},
	{ID: "karaoke_star", Name: "Karaoke Star", Emoji: "⭐", Stat: StatKaraokeSessions, Threshold: 10},
	{ID: "karaoke_master", Name: "Karaoke Master", Emoji: "👑", Stat: StatKaraokeSessions, Threshold: 25},
	{ID: "duet_partner", Name: "Duet Partner", Emoji: "🎭", Stat: StatKaraokeDuets, Threshold: 10},
}

func init() {
	OnClientReady(func(ctx context.Context, client *bot.Client) {
		RegisterDaemon(LogStats, func(ctx context.Context) (bool, func(), func()) {
			return true, func() { runStatsSink(ctx, client) }, func() {
				LogStats(MsgStatsSinkStopped)
			}
		})
	})

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "achievements",
		Description: "Show your karaoke stats and achievements",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "Another member to look up",
				Required:    false,
			},
		},
	}, handleAchievements)
}

// ===========================
// Completion Sink
// ===========================

// runStatsSink drains session completions into the stats tables and
// announces any unlocks. Stats are best effort: a database error loses
// one completion, never the session itself.
func runStatsSink(ctx context.Context, client *bot.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-GetKaraokeManager().Completions():
			recordCompletion(ctx, client, c)
		}
	}
}

func recordCompletion(ctx context.Context, client *bot.Client, c KaraokeCompletion) {
	if err := AddKaraokeHistory(ctx, c); err != nil {
		LogStats(ErrStatsHistoryWrite, err)
	}

	for _, userID := range c.Participants {
		newSessions, err := IncrementKaraokeStat(ctx, userID, StatKaraokeSessions, 1)
		if err != nil {
			LogStats(ErrStatsIncrement, StatKaraokeSessions, userID, err)
			continue
		}
		values := map[string]int64{StatKaraokeSessions: newSessions}

		if c.Duet {
			newDuets, err := IncrementKaraokeStat(ctx, userID, StatKaraokeDuets, 1)
			if err != nil {
				LogStats(ErrStatsIncrement, StatKaraokeDuets, userID, err)
			} else {
				values[StatKaraokeDuets] = newDuets
			}
		}

		for _, a := range checkUnlocks(ctx, userID, values) {
			announceUnlock(client, c.ChannelID, userID, a)
		}
	}
	LogStats(MsgStatsCompletionRecorded, c.SongID, c.GuildID, len(c.Participants))
}

// checkUnlocks returns the achievements newly earned by the given stat
// values. The unlock table insert is the dedupe point, so a stat sitting
// past its threshold only ever unlocks once.
func checkUnlocks(ctx context.Context, userID snowflake.ID, values map[string]int64) []Achievement {
	var unlocked []Achievement
	for _, a := range achievementDefs {
		v, ok := values[a.Stat]
		if !ok || v < a.Threshold {
			continue
		}
		fresh, err := UnlockAchievement(ctx, userID, a.ID)
		if err != nil {
			LogStats(ErrStatsUnlockWrite, a.ID, userID, err)
			continue
		}
		if fresh {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}

func announceUnlock(client *bot.Client, channelID snowflake.ID, userID snowflake.ID, a Achievement) {
	LogStats(MsgStatsAchievementUnlocked, a.ID, userID)
	content := fmt.Sprintf(MsgStatsUnlockAnnounce, a.Emoji, userID, a.Name)
	if _, err := SendMessageV2(*client, channelID, NewV2Container(NewTextDisplay(content)), nil); err != nil {
		LogStats(ErrStatsUnlockAnnounce, err)
	}
}

// ===========================
// Command Handler
// ===========================

func handleAchievements(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	target := event.User()
	if u, ok := data.OptUser("user"); ok {
		target = u
	}

	ctx := AppContext
	if ctx == nil {
		ctx = context.Background()
	}

	stats, err := GetKaraokeStats(ctx, target.ID)
	if err != nil {
		LogStats(ErrStatsRead, target.ID, err)
		karaokeRespondImmediate(event, ErrStatsUnavailable)
		return
	}
	earned, err := GetUserAchievements(ctx, target.ID)
	if err != nil {
		LogStats(ErrStatsRead, target.ID, err)
		karaokeRespondImmediate(event, ErrStatsUnavailable)
		return
	}
	earnedSet := make(map[string]bool, len(earned))
	for _, id := range earned {
		earnedSet[id] = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgStatsProfileHeader, target.EffectiveName()))
	sb.WriteString(fmt.Sprintf(MsgStatsProfileSessions, stats[StatKaraokeSessions]))
	sb.WriteString(fmt.Sprintf(MsgStatsProfileDuets, stats[StatKaraokeDuets]))
	sb.WriteString("\n")
	for _, a := range achievementDefs {
		if earnedSet[a.ID] {
			sb.WriteString(fmt.Sprintf(MsgStatsProfileEarned, a.Emoji, a.Name))
		} else {
			remaining := a.Threshold - stats[a.Stat]
			if remaining < 0 {
				remaining = 0
			}
			sb.WriteString(fmt.Sprintf(MsgStatsProfileLocked, a.Name, remaining))
		}
	}

	karaokeRespondImmediate(event, sb.String())
}
