// Package store persists server state in SQLite: accounts, per-mode
// stats, scores, beatmap metadata and the various small relations the
// online server needs (friendships, mail, client hashes, achievements).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Sentinel errors for lookups that can legitimately miss.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrMapNotFound   = errors.New("beatmap not found")
	ErrScoreNotFound = errors.New("score not found")
)

// BotID is the reserved account id of the server-side bot.
const BotID = 1

// Store persists server state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database, runs migrations and seeds
// the rows the server cannot run without (bot account, default channels,
// achievement definitions).
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.seed(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	safe_name TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	pw_bcrypt TEXT NOT NULL,
	priv INTEGER NOT NULL DEFAULT 1,
	country TEXT NOT NULL DEFAULT 'xx',
	silence_end INTEGER NOT NULL DEFAULT 0,
	creation_time INTEGER NOT NULL DEFAULT 0,
	latest_activity INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stats (
	id INTEGER NOT NULL,
	mode INTEGER NOT NULL,
	tscore INTEGER NOT NULL DEFAULT 0,
	rscore INTEGER NOT NULL DEFAULT 0,
	pp INTEGER NOT NULL DEFAULT 0,
	acc REAL NOT NULL DEFAULT 0.0,
	plays INTEGER NOT NULL DEFAULT 0,
	playtime INTEGER NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	xh_count INTEGER NOT NULL DEFAULT 0,
	x_count INTEGER NOT NULL DEFAULT 0,
	sh_count INTEGER NOT NULL DEFAULT 0,
	s_count INTEGER NOT NULL DEFAULT 0,
	a_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, mode)
);

CREATE TABLE IF NOT EXISTS maps (
	id INTEGER PRIMARY KEY,
	set_id INTEGER NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	md5 TEXT NOT NULL UNIQUE,
	artist TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	total_length INTEGER NOT NULL DEFAULT 0,
	max_combo INTEGER NOT NULL DEFAULT 0,
	mode INTEGER NOT NULL DEFAULT 0,
	frozen INTEGER NOT NULL DEFAULT 0,
	plays INTEGER NOT NULL DEFAULT 0,
	passes INTEGER NOT NULL DEFAULT 0,
	bpm REAL NOT NULL DEFAULT 0.0,
	diff REAL NOT NULL DEFAULT 0.0
);

CREATE TABLE IF NOT EXISTS friendships (
	user1 INTEGER NOT NULL,
	user2 INTEGER NOT NULL,
	rel INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user1, user2)
);

CREATE TABLE IF NOT EXISTS client_hashes (
	userid INTEGER NOT NULL,
	osupath TEXT NOT NULL,
	adapters TEXT NOT NULL,
	uninstall_id TEXT NOT NULL,
	disk_serial TEXT NOT NULL,
	latest_time INTEGER NOT NULL,
	occurrences INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (userid, osupath, adapters, uninstall_id, disk_serial)
);

CREATE TABLE IF NOT EXISTS mail (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id INTEGER NOT NULL,
	to_id INTEGER NOT NULL,
	msg TEXT NOT NULL,
	time INTEGER NOT NULL,
	read INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_mail_to ON mail(to_id, read);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id INTEGER NOT NULL,
	to_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	msg TEXT NOT NULL DEFAULT '',
	time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL DEFAULT '',
	read_priv INTEGER NOT NULL DEFAULT 1,
	write_priv INTEGER NOT NULL DEFAULT 2,
	auto_join INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS achievements (
	id INTEGER PRIMARY KEY,
	file TEXT NOT NULL,
	name TEXT NOT NULL,
	descr TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_achievements (
	userid INTEGER NOT NULL,
	achid INTEGER NOT NULL,
	PRIMARY KEY (userid, achid)
);

CREATE TABLE IF NOT EXISTS ratings (
	userid INTEGER NOT NULL,
	map_md5 TEXT NOT NULL,
	rating INTEGER NOT NULL,
	PRIMARY KEY (userid, map_md5)
);

CREATE TABLE IF NOT EXISTS favourites (
	userid INTEGER NOT NULL,
	setid INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (userid, setid)
);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id INTEGER NOT NULL,
	target_type TEXT NOT NULL,
	userid INTEGER NOT NULL,
	time INTEGER NOT NULL,
	comment TEXT NOT NULL,
	colour TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tourney_pools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	created_by INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tourney_pool_maps (
	map_id INTEGER NOT NULL,
	pool_id INTEGER NOT NULL,
	mods INTEGER NOT NULL,
	slot INTEGER NOT NULL,
	PRIMARY KEY (pool_id, mods, slot)
);

CREATE TABLE IF NOT EXISTS startups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ver_major INTEGER NOT NULL,
	ver_minor INTEGER NOT NULL,
	ver_micro INTEGER NOT NULL,
	datetime INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}

	// Vanilla, relax and autopilot plays live in separate tables of one
	// shape so their leaderboards never mix.
	for _, tbl := range []string{"scores_vn", "scores_rx", "scores_ap"} {
		stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	map_md5 TEXT NOT NULL,
	score INTEGER NOT NULL,
	pp REAL NOT NULL,
	acc REAL NOT NULL,
	max_combo INTEGER NOT NULL,
	mods INTEGER NOT NULL,
	n300 INTEGER NOT NULL,
	n100 INTEGER NOT NULL,
	n50 INTEGER NOT NULL,
	ngeki INTEGER NOT NULL,
	nkatu INTEGER NOT NULL,
	nmiss INTEGER NOT NULL,
	grade TEXT NOT NULL DEFAULT 'N',
	status INTEGER NOT NULL,
	mode INTEGER NOT NULL,
	play_time INTEGER NOT NULL,
	time_elapsed INTEGER NOT NULL,
	client_flags INTEGER NOT NULL,
	userid INTEGER NOT NULL,
	perfect INTEGER NOT NULL,
	online_checksum TEXT NOT NULL,
	has_replay INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_map ON %[1]s(map_md5, status);
CREATE INDEX IF NOT EXISTS idx_%[1]s_user ON %[1]s(userid, status);
CREATE INDEX IF NOT EXISTS idx_%[1]s_checksum ON %[1]s(online_checksum);
`, tbl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", tbl, err)
		}
	}

	slog.Debug("sqlite migrations applied")
	return nil
}

// seed inserts the rows the server assumes exist. Idempotent.
func (s *Store) seed(ctx context.Context) error {
	// The bot account never logs in through the gateway; its empty
	// password hash is unusable on purpose.
	if _, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO users (id, name, safe_name, pw_bcrypt, priv, country)
VALUES (?, 'BanchoBot', 'banchobot', '', 3, 'ca')`, BotID); err != nil {
		return fmt.Errorf("seed bot account: %w", err)
	}

	for _, ch := range []struct {
		name, topic         string
		readPriv, writePriv int
		autoJoin            bool
	}{
		{"#osu", "General discussion.", 1, 2, true},
		{"#announce", "Exemplary performance and public announcements.", 1, 8192, true},
		{"#lobby", "Multiplayer lobby discussion.", 1, 2, false},
		{"#staff", "Staff only.", 28672, 28672, true},
	} {
		if _, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO channels (name, topic, read_priv, write_priv, auto_join)
VALUES (?, ?, ?, ?, ?)`, ch.name, ch.topic, ch.readPriv, ch.writePriv, ch.autoJoin); err != nil {
			return fmt.Errorf("seed channel %s: %w", ch.name, err)
		}
	}

	return s.seedAchievements(ctx)
}

// RecordStartup logs one server boot for version bookkeeping.
func (s *Store) RecordStartup(ctx context.Context, major, minor, micro int, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO startups (ver_major, ver_minor, ver_micro, datetime) VALUES (?, ?, ?, ?)`,
		major, minor, micro, now)
	if err != nil {
		return fmt.Errorf("record startup: %w", err)
	}
	return nil
}
