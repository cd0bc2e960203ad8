package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bancho/server/internal/osu"
)

// ModeStats is one user's aggregate stats in one game mode.
type ModeStats struct {
	TotalScore  int64
	RankedScore int64
	PP          int32
	Acc         float64 // percentage, 0..100
	Plays       int32
	Playtime    int64 // seconds
	MaxCombo    int32
	XHCount     int32
	XCount      int32
	SHCount     int32
	SCount      int32
	ACount      int32
}

const statsCols = `tscore, rscore, pp, acc, plays, playtime, max_combo,
	xh_count, x_count, sh_count, s_count, a_count`

// Stats fetches the user's stats for one mode, inserting a zero row on
// first sight.
func (s *Store) Stats(ctx context.Context, userID int32, mode osu.GameMode) (ModeStats, error) {
	var st ModeStats
	err := s.db.QueryRowContext(ctx,
		`SELECT `+statsCols+` FROM stats WHERE id = ? AND mode = ?`,
		userID, mode).Scan(
		&st.TotalScore, &st.RankedScore, &st.PP, &st.Acc, &st.Plays,
		&st.Playtime, &st.MaxCombo,
		&st.XHCount, &st.XCount, &st.SHCount, &st.SCount, &st.ACount)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO stats (id, mode) VALUES (?, ?)`, userID, mode); err != nil {
			return ModeStats{}, fmt.Errorf("insert stats row: %w", err)
		}
		return ModeStats{}, nil
	}
	if err != nil {
		return ModeStats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// AllStats fetches the user's stats for every mode at once, for the
// login snapshot.
func (s *Store) AllStats(ctx context.Context, userID int32) ([osu.ModeCount]ModeStats, error) {
	var out [osu.ModeCount]ModeStats
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode, `+statsCols+` FROM stats WHERE id = ?`, userID)
	if err != nil {
		return out, fmt.Errorf("query all stats: %w", err)
	}
	defer rows.Close()

	seen := [osu.ModeCount]bool{}
	for rows.Next() {
		var (
			mode uint8
			st   ModeStats
		)
		if err := rows.Scan(&mode,
			&st.TotalScore, &st.RankedScore, &st.PP, &st.Acc, &st.Plays,
			&st.Playtime, &st.MaxCombo,
			&st.XHCount, &st.XCount, &st.SHCount, &st.SCount, &st.ACount); err != nil {
			return out, fmt.Errorf("scan stats: %w", err)
		}
		if mode < uint8(osu.ModeCount) {
			out[mode] = st
			seen[mode] = true
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	// Backfill missing mode rows so later updates can assume presence.
	for m := osu.GameMode(0); m < osu.ModeCount; m++ {
		if !seen[m] {
			if _, err := s.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO stats (id, mode) VALUES (?, ?)`, userID, m); err != nil {
				return out, fmt.Errorf("insert stats row: %w", err)
			}
		}
	}
	return out, nil
}

// UpdateStats overwrites the user's stats row for one mode.
func (s *Store) UpdateStats(ctx context.Context, userID int32, mode osu.GameMode, st ModeStats) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE stats SET
	tscore = ?, rscore = ?, pp = ?, acc = ?, plays = ?, playtime = ?,
	max_combo = ?, xh_count = ?, x_count = ?, sh_count = ?, s_count = ?, a_count = ?
WHERE id = ? AND mode = ?`,
		st.TotalScore, st.RankedScore, st.PP, st.Acc, st.Plays, st.Playtime,
		st.MaxCombo, st.XHCount, st.XCount, st.SHCount, st.SCount, st.ACount,
		userID, mode)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return nil
}

// GlobalRank is 1 plus the number of unrestricted players with strictly
// more pp in the mode.
func (s *Store) GlobalRank(ctx context.Context, userID int32, mode osu.GameMode, pp int32) (int32, error) {
	var higher int32
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM stats st
JOIN users u ON u.id = st.id
WHERE st.mode = ? AND st.pp > ? AND (u.priv & ?) != 0 AND u.id != ?`,
		mode, pp, osu.PrivUnrestricted, userID).Scan(&higher)
	if err != nil {
		return 0, fmt.Errorf("query global rank: %w", err)
	}
	return higher + 1, nil
}
