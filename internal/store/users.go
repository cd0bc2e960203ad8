package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bancho/server/internal/osu"
)

// User is one account row.
type User struct {
	ID             int32
	Name           string
	SafeName       string
	Email          string
	PwBcrypt       string
	Priv           osu.Privileges
	Country        string
	SilenceEnd     int64
	CreationTime   int64
	LatestActivity int64
}

// SafeName normalizes a username the way the client does for lookups:
// lowercase, spaces as underscores.
func SafeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

const userCols = `id, name, safe_name, email, pw_bcrypt, priv, country, silence_end, creation_time, latest_activity`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.SafeName, &u.Email, &u.PwBcrypt,
		&u.Priv, &u.Country, &u.SilenceEnd, &u.CreationTime, &u.LatestActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// UserBySafeName looks an account up by its normalized name.
func (s *Store) UserBySafeName(ctx context.Context, safeName string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE safe_name = ?`, safeName)
	return scanUser(row)
}

// UserByID looks an account up by id.
func (s *Store) UserByID(ctx context.Context, id int32) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// CreateUser inserts a new account and returns its id.
func (s *Store) CreateUser(ctx context.Context, name, email, pwBcrypt string, now int64) (int32, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (name, safe_name, email, pw_bcrypt, priv, creation_time, latest_activity)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, SafeName(name), email, pwBcrypt, osu.PrivUnrestricted, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	slog.Info("user created", "user_id", id, "name", name)
	return int32(id), nil
}

// TouchLatestActivity bumps the account's last-seen timestamp.
func (s *Store) TouchLatestActivity(ctx context.Context, userID int32, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET latest_activity = ? WHERE id = ?`, now, userID)
	if err != nil {
		return fmt.Errorf("touch latest activity: %w", err)
	}
	return nil
}

// SetPrivileges overwrites the account's privilege bitset.
func (s *Store) SetPrivileges(ctx context.Context, userID int32, priv osu.Privileges) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET priv = ? WHERE id = ?`, priv, userID)
	if err != nil {
		return fmt.Errorf("set privileges: %w", err)
	}
	slog.Info("privileges updated", "user_id", userID, "priv", uint32(priv))
	return nil
}

// SetSilenceEnd sets the unix time at which the account's silence lifts.
func (s *Store) SetSilenceEnd(ctx context.Context, userID int32, end int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET silence_end = ? WHERE id = ?`, end, userID)
	if err != nil {
		return fmt.Errorf("set silence end: %w", err)
	}
	return nil
}

// SetCountry records the geolocated country code on first login.
func (s *Store) SetCountry(ctx context.Context, userID int32, country string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET country = ? WHERE id = ?`, country, userID)
	if err != nil {
		return fmt.Errorf("set country: %w", err)
	}
	return nil
}

// Relationship kinds stored in friendships.rel. A pair holds at most
// one row, so a user can never both follow and block the same id.
const (
	relFriend = 0
	relBlock  = 1
)

func (s *Store) relations(ctx context.Context, userID int32, rel int) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user2 FROM friendships WHERE user1 = ? AND rel = ?`, userID, rel)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Friends returns the ids the user follows.
func (s *Store) Friends(ctx context.Context, userID int32) ([]int32, error) {
	return s.relations(ctx, userID, relFriend)
}

// Blocks returns the ids the user has blocked.
func (s *Store) Blocks(ctx context.Context, userID int32) ([]int32, error) {
	return s.relations(ctx, userID, relBlock)
}

func (s *Store) setRelation(ctx context.Context, userID, otherID int32, rel int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friendships (user1, user2, rel) VALUES (?, ?, ?)
		 ON CONFLICT (user1, user2) DO UPDATE SET rel = excluded.rel`,
		userID, otherID, rel)
	if err != nil {
		return fmt.Errorf("upsert friendship: %w", err)
	}
	return nil
}

// AddFriend records a follow, replacing a block of the same id.
// Idempotent.
func (s *Store) AddFriend(ctx context.Context, userID, friendID int32) error {
	return s.setRelation(ctx, userID, friendID, relFriend)
}

// AddBlock records a block, replacing a follow of the same id.
// Idempotent.
func (s *Store) AddBlock(ctx context.Context, userID, blockedID int32) error {
	return s.setRelation(ctx, userID, blockedID, relBlock)
}

// RemoveFriend deletes a follow. A block of the same id is untouched.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID int32) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE user1 = ? AND user2 = ? AND rel = ?`,
		userID, friendID, relFriend)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

// RemoveBlock lifts a block.
func (s *Store) RemoveBlock(ctx context.Context, userID, blockedID int32) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE user1 = ? AND user2 = ? AND rel = ?`,
		userID, blockedID, relBlock)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

// Blocked reports whether owner has blocked other.
func (s *Store) Blocked(ctx context.Context, ownerID, otherID int32) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendships WHERE user1 = ? AND user2 = ? AND rel = ?`,
		ownerID, otherID, relBlock).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query block: %w", err)
	}
	return n > 0, nil
}

// ClientHashes is the hardware identity bundle a client reports at login.
type ClientHashes struct {
	OsuPath     string
	Adapters    string
	UninstallID string
	DiskSerial  string
}

// UpsertClientHashes records one sighting of a hardware bundle for the
// account, bumping the occurrence count on repeats.
func (s *Store) UpsertClientHashes(ctx context.Context, userID int32, h ClientHashes, now int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO client_hashes (userid, osupath, adapters, uninstall_id, disk_serial, latest_time, occurrences)
VALUES (?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (userid, osupath, adapters, uninstall_id, disk_serial)
DO UPDATE SET latest_time = ?, occurrences = occurrences + 1`,
		userID, h.OsuPath, h.Adapters, h.UninstallID, h.DiskSerial, now, now)
	if err != nil {
		return fmt.Errorf("upsert client hashes: %w", err)
	}
	return nil
}

// HardwareMatches returns other unrestricted accounts that have logged
// in with the same adapters, uninstall id or disk serial. Used for the
// multi-account check on unverified logins.
func (s *Store) HardwareMatches(ctx context.Context, userID int32, h ClientHashes) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT `+prefixCols("u", userCols)+`
FROM client_hashes ch
JOIN users u ON u.id = ch.userid
WHERE ch.userid != ?
  AND (ch.adapters = ? OR ch.uninstall_id = ? OR ch.disk_serial = ?)
  AND (u.priv & ?) != 0`,
		userID, h.Adapters, h.UninstallID, h.DiskSerial, osu.PrivUnrestricted)
	if err != nil {
		return nil, fmt.Errorf("query hardware matches: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.SafeName, &u.Email, &u.PwBcrypt,
			&u.Priv, &u.Country, &u.SilenceEnd, &u.CreationTime, &u.LatestActivity); err != nil {
			return nil, fmt.Errorf("scan hardware match: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// Mail is one offline message, replayed at the recipient's next login.
type Mail struct {
	ID       int64
	FromID   int32
	FromName string
	ToID     int32
	Msg      string
	Time     int64
}

// InsertMail stores an offline message.
func (s *Store) InsertMail(ctx context.Context, fromID, toID int32, msg string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mail (from_id, to_id, msg, time) VALUES (?, ?, ?, ?)`,
		fromID, toID, msg, now)
	if err != nil {
		return fmt.Errorf("insert mail: %w", err)
	}
	return nil
}

// UnreadMail returns unread mail for the recipient, oldest first.
func (s *Store) UnreadMail(ctx context.Context, toID int32) ([]Mail, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT m.id, m.from_id, u.name, m.to_id, m.msg, m.time
FROM mail m
JOIN users u ON u.id = m.from_id
WHERE m.to_id = ? AND m.read = 0
ORDER BY m.id`, toID)
	if err != nil {
		return nil, fmt.Errorf("query unread mail: %w", err)
	}
	defer rows.Close()

	var mail []Mail
	for rows.Next() {
		var m Mail
		if err := rows.Scan(&m.ID, &m.FromID, &m.FromName, &m.ToID, &m.Msg, &m.Time); err != nil {
			return nil, fmt.Errorf("scan mail: %w", err)
		}
		mail = append(mail, m)
	}
	return mail, rows.Err()
}

// MarkMailRead flags everything from one sender to one recipient read.
func (s *Store) MarkMailRead(ctx context.Context, fromID, toID int32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mail SET read = 1 WHERE from_id = ? AND to_id = ? AND read = 0`,
		fromID, toID)
	if err != nil {
		return fmt.Errorf("mark mail read: %w", err)
	}
	return nil
}

// InsertLog appends one audit log row (restrictions, silences, notable
// server actions).
func (s *Store) InsertLog(ctx context.Context, fromID, toID int32, action, msg string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (from_id, to_id, action, msg, time) VALUES (?, ?, ?, ?, ?)`,
		fromID, toID, action, msg, now)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// ChannelRow is a persisted chat channel definition.
type ChannelRow struct {
	Name      string
	Topic     string
	ReadPriv  osu.Privileges
	WritePriv osu.Privileges
	AutoJoin  bool
}

// Channels returns all configured channels.
func (s *Store) Channels(ctx context.Context) ([]ChannelRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, topic, read_priv, write_priv, auto_join FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var chans []ChannelRow
	for rows.Next() {
		var c ChannelRow
		if err := rows.Scan(&c.Name, &c.Topic, &c.ReadPriv, &c.WritePriv, &c.AutoJoin); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		chans = append(chans, c)
	}
	return chans, rows.Err()
}
