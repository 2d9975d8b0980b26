package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
)

// --- Phase 1: Configuration & Environment ---

type Config struct {
	Token          string
	GuildID        string
	DatabasePath   string
	KaraokeDataDir string
	OwnerIDs       []string
	Silent         bool
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	dataDir := os.Getenv("KARAOKE_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
		if info, err := os.Stat("songs"); err == nil && info.IsDir() {
			dataDir = "./songs"
		}
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:          token,
		GuildID:        os.Getenv("GUILD_ID"),
		DatabasePath:   dbPath,
		KaraokeDataDir: dataDir,
		OwnerIDs:       ownerIDs,
		Silent:         silent,
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg

	// Callers still get a usable config (paths, flags) on validation errors.
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

// --- Phase 2: Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS karaoke_stats (
			user_id TEXT NOT NULL,
			stat TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, stat)
		)`,
		`CREATE TABLE IF NOT EXISTS karaoke_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			song_id TEXT NOT NULL,
			participants TEXT NOT NULL,
			completed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS karaoke_achievements (
			user_id TEXT NOT NULL,
			achievement TEXT NOT NULL,
			unlocked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, achievement)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			guild_id TEXT,
			message TEXT NOT NULL,
			remind_at DATETIME NOT NULL,
			send_to TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE karaoke_history ADD COLUMN duet INTEGER NOT NULL DEFAULT 0",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Phase 3: Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Phase 4: Application Logic (Karaoke Stats) ---

// IncrementKaraokeStat bumps a per-user counter and returns the new value.
func IncrementKaraokeStat(ctx context.Context, userID snowflake.ID, stat string, delta int64) (int64, error) {
	var value int64
	err := DB.QueryRowContext(ctx, `
		INSERT INTO karaoke_stats (user_id, stat, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, stat) DO UPDATE SET value = value + excluded.value, updated_at = CURRENT_TIMESTAMP
		RETURNING value
	`, userID.String(), stat, delta).Scan(&value)
	return value, err
}

func GetKaraokeStats(ctx context.Context, userID snowflake.ID) (map[string]int64, error) {
	rows, err := DB.QueryContext(ctx, "SELECT stat, value FROM karaoke_stats WHERE user_id = ?", userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var stat string
		var value int64
		if err := rows.Scan(&stat, &value); err != nil {
			return nil, err
		}
		stats[stat] = value
	}
	return stats, rows.Err()
}

// AddKaraokeHistory records a finished session. Participants are stored as
// a comma-separated snowflake list.
func AddKaraokeHistory(ctx context.Context, c KaraokeCompletion) error {
	parts := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		parts[i] = p.String()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO karaoke_history (guild_id, song_id, participants, duet)
		VALUES (?, ?, ?, ?)
	`, c.GuildID.String(), c.SongID, strings.Join(parts, ","), boolToInt(c.Duet))
	return err
}

// UnlockAchievement records an unlock. Returns true only on the first
// insert for this user and achievement.
func UnlockAchievement(ctx context.Context, userID snowflake.ID, achievement string) (bool, error) {
	result, err := DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO karaoke_achievements (user_id, achievement) VALUES (?, ?)
	`, userID.String(), achievement)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func GetUserAchievements(ctx context.Context, userID snowflake.ID) ([]string, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT achievement FROM karaoke_achievements WHERE user_id = ? ORDER BY unlocked_at ASC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var achievements []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// --- Phase 5: Application Logic (Reminders) ---

type Reminder struct {
	ID        int64
	UserID    snowflake.ID
	ChannelID snowflake.ID
	GuildID   snowflake.ID
	Message   string
	RemindAt  time.Time
	SendTo    string
	CreatedAt time.Time
}

func AddReminder(ctx context.Context, r *Reminder) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO reminders (user_id, channel_id, guild_id, message, remind_at, send_to)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.UserID.String(), r.ChannelID.String(), r.GuildID.String(), r.Message, r.RemindAt, r.SendTo)
	return err
}

func scanReminder(rows *sql.Rows) (*Reminder, error) {
	r := &Reminder{}
	var uid, cid, gid string
	err := rows.Scan(&r.ID, &uid, &cid, &gid, &r.Message, &r.RemindAt, &r.SendTo, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.UserID, err = snowflake.Parse(uid)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID '%s' for reminder %d: %w", uid, r.ID, err)
	}
	r.ChannelID, err = snowflake.Parse(cid)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel ID '%s' for reminder %d: %w", cid, r.ID, err)
	}
	r.GuildID, err = snowflake.Parse(gid)
	if err != nil {
		// Guild ID can be empty for DMs, but if it's there it should be valid
		if gid != "" {
			return nil, fmt.Errorf("failed to parse guild ID '%s' for reminder %d: %w", gid, r.ID, err)
		}
	}
	return r, nil
}

func GetRemindersForUser(ctx context.Context, userID snowflake.ID) ([]*Reminder, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, user_id, channel_id, guild_id, message, remind_at, send_to, created_at
		FROM reminders WHERE user_id = ? ORDER BY remind_at ASC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

func ClaimDueReminders(ctx context.Context) ([]*Reminder, error) {
	rows, err := DB.QueryContext(ctx, `
		DELETE FROM reminders
		WHERE remind_at <= ?
		RETURNING id, user_id, channel_id, guild_id, message, remind_at, send_to, created_at
	`, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

func DeleteReminder(ctx context.Context, id int64, userID snowflake.ID) (bool, error) {
	result, err := DB.ExecContext(ctx, "DELETE FROM reminders WHERE id = ? AND user_id = ?", id, userID.String())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func DeleteAllRemindersForUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	result, err := DB.ExecContext(ctx, "DELETE FROM reminders WHERE user_id = ?", userID.String())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func GetRemindersCountForUser(ctx context.Context, userID snowflake.ID) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminders WHERE user_id = ?", userID.String()).Scan(&count)
	return count, err
}
