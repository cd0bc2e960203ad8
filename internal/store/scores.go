package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bancho/server/internal/osu"
)

// Score is one persisted play.
type Score struct {
	ID             int64
	MapMD5         string
	Score          int64
	PP             float64
	Acc            float64
	MaxCombo       int32
	Mods           osu.Mods
	N300           int32
	N100           int32
	N50            int32
	NGeki          int32
	NKatu          int32
	NMiss          int32
	Grade          osu.Grade
	Status         osu.SubmissionStatus
	Mode           osu.GameMode
	PlayTime       int64
	TimeElapsed    int64
	ClientFlags    osu.ClientFlags
	UserID         int32
	Perfect        bool
	OnlineChecksum string
	HasReplay      bool
}

const scoreCols = `id, map_md5, score, pp, acc, max_combo, mods,
	n300, n100, n50, ngeki, nkatu, nmiss, grade, status, mode,
	play_time, time_elapsed, client_flags, userid, perfect, online_checksum, has_replay`

func scanScore(scan func(...any) error) (Score, error) {
	var (
		sc    Score
		grade string
	)
	err := scan(&sc.ID, &sc.MapMD5, &sc.Score, &sc.PP, &sc.Acc, &sc.MaxCombo,
		&sc.Mods, &sc.N300, &sc.N100, &sc.N50, &sc.NGeki, &sc.NKatu, &sc.NMiss,
		&grade, &sc.Status, &sc.Mode, &sc.PlayTime, &sc.TimeElapsed,
		&sc.ClientFlags, &sc.UserID, &sc.Perfect, &sc.OnlineChecksum, &sc.HasReplay)
	if err != nil {
		return Score{}, err
	}
	sc.Grade = osu.ParseGrade(grade)
	return sc, nil
}

// ScoreExistsByChecksum reports whether the online checksum was already
// submitted in the mode. This is the canonical duplicate check.
func (s *Store) ScoreExistsByChecksum(ctx context.Context, mode osu.GameMode, checksum string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+mode.ScoresTable()+` WHERE online_checksum = ?`,
		checksum).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query score by checksum: %w", err)
	}
	return n > 0, nil
}

// PersonalBest returns the user's current best on the map in the mode.
func (s *Store) PersonalBest(ctx context.Context, userID int32, mapMD5 string, mode osu.GameMode) (Score, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scoreCols+` FROM `+mode.ScoresTable()+`
WHERE userid = ? AND map_md5 = ? AND mode = ? AND status = ?`,
		userID, mapMD5, mode, osu.StatusBest)
	sc, err := scanScore(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Score{}, ErrScoreNotFound
		}
		return Score{}, fmt.Errorf("query personal best: %w", err)
	}
	return sc, nil
}

// ScoreByID fetches a score by id in the mode's table.
func (s *Store) ScoreByID(ctx context.Context, id int64, mode osu.GameMode) (Score, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scoreCols+` FROM `+mode.ScoresTable()+` WHERE id = ?`, id)
	sc, err := scanScore(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Score{}, ErrScoreNotFound
		}
		return Score{}, fmt.Errorf("query score by id: %w", err)
	}
	return sc, nil
}

// DemotePersonalBest downgrades the user's current best on the map to
// an ordinary submitted score, ahead of inserting a new best.
func (s *Store) DemotePersonalBest(ctx context.Context, userID int32, mapMD5 string, mode osu.GameMode) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+mode.ScoresTable()+` SET status = ?
WHERE userid = ? AND map_md5 = ? AND mode = ? AND status = ?`,
		osu.StatusSubmitted, userID, mapMD5, mode, osu.StatusBest)
	if err != nil {
		return fmt.Errorf("demote personal best: %w", err)
	}
	return nil
}

// InsertScore persists a play and returns its assigned id.
func (s *Store) InsertScore(ctx context.Context, sc Score) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+sc.Mode.ScoresTable()+` (
	map_md5, score, pp, acc, max_combo, mods,
	n300, n100, n50, ngeki, nkatu, nmiss, grade, status, mode,
	play_time, time_elapsed, client_flags, userid, perfect, online_checksum, has_replay
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.MapMD5, sc.Score, sc.PP, sc.Acc, sc.MaxCombo, sc.Mods,
		sc.N300, sc.N100, sc.N50, sc.NGeki, sc.NKatu, sc.NMiss,
		sc.Grade.Name(), sc.Status, sc.Mode,
		sc.PlayTime, sc.TimeElapsed, sc.ClientFlags, sc.UserID,
		sc.Perfect, sc.OnlineChecksum, sc.HasReplay)
	if err != nil {
		return 0, fmt.Errorf("insert score: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// SetReplayStored flags the score as having a replay file on disk.
func (s *Store) SetReplayStored(ctx context.Context, id int64, mode osu.GameMode) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+mode.ScoresTable()+` SET has_replay = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("set replay stored: %w", err)
	}
	return nil
}

// BestEntry is one row of a user's best-score listing, enough to
// recompute weighted accuracy and pp.
type BestEntry struct {
	PP  float64
	Acc float64
}

// BestScores returns the user's best scores on ranked or approved maps,
// ordered by pp descending, capped at limit.
func (s *Store) BestScores(ctx context.Context, userID int32, mode osu.GameMode, limit int) ([]BestEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sc.pp, sc.acc
FROM `+mode.ScoresTable()+` sc
JOIN maps m ON m.md5 = sc.map_md5
WHERE sc.userid = ? AND sc.mode = ? AND sc.status = ? AND m.status IN (?, ?)
ORDER BY sc.pp DESC
LIMIT ?`,
		userID, mode, osu.StatusBest, osu.MapRanked, osu.MapApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("query best scores: %w", err)
	}
	defer rows.Close()

	var out []BestEntry
	for rows.Next() {
		var e BestEntry
		if err := rows.Scan(&e.PP, &e.Acc); err != nil {
			return nil, fmt.Errorf("scan best score: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountBestScores counts all of the user's best scores on ranked or
// approved maps, for the bonus-pp term.
func (s *Store) CountBestScores(ctx context.Context, userID int32, mode osu.GameMode) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
FROM `+mode.ScoresTable()+` sc
JOIN maps m ON m.md5 = sc.map_md5
WHERE sc.userid = ? AND sc.mode = ? AND sc.status = ? AND m.status IN (?, ?)`,
		userID, mode, osu.StatusBest, osu.MapRanked, osu.MapApproved).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count best scores: %w", err)
	}
	return n, nil
}

// FirstPlace is the current #1 holder on a map.
type FirstPlace struct {
	UserID int32
	Name   string
	PP     float64
	Score  int64
}

// MapFirstPlace returns the leaderboard #1 on the map in the mode,
// ranked by pp for relax/autopilot and by score otherwise. Restricted
// players do not hold ranks.
func (s *Store) MapFirstPlace(ctx context.Context, mapMD5 string, mode osu.GameMode) (FirstPlace, error) {
	metric := "sc.score"
	if mode.RankingByPP() {
		metric = "sc.pp"
	}
	var fp FirstPlace
	err := s.db.QueryRowContext(ctx,
		`SELECT sc.userid, u.name, sc.pp, sc.score
FROM `+mode.ScoresTable()+` sc
JOIN users u ON u.id = sc.userid
WHERE sc.map_md5 = ? AND sc.mode = ? AND sc.status = ? AND (u.priv & ?) != 0
ORDER BY `+metric+` DESC
LIMIT 1`,
		mapMD5, mode, osu.StatusBest, osu.PrivUnrestricted).Scan(
		&fp.UserID, &fp.Name, &fp.PP, &fp.Score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FirstPlace{}, ErrScoreNotFound
		}
		return FirstPlace{}, fmt.Errorf("query map first place: %w", err)
	}
	return fp, nil
}

// MapScoreRank returns the score's 1-based position on the map
// leaderboard among unrestricted players' bests.
func (s *Store) MapScoreRank(ctx context.Context, sc Score) (int32, error) {
	metric, value := "sc.score", any(sc.Score)
	if sc.Mode.RankingByPP() {
		metric, value = "sc.pp", any(sc.PP)
	}
	var higher int32
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
FROM `+sc.Mode.ScoresTable()+` sc
JOIN users u ON u.id = sc.userid
WHERE sc.map_md5 = ? AND sc.mode = ? AND sc.status = ? AND (u.priv & ?) != 0
  AND `+metric+` > ?`,
		sc.MapMD5, sc.Mode, osu.StatusBest, osu.PrivUnrestricted, value).Scan(&higher)
	if err != nil {
		return 0, fmt.Errorf("query map score rank: %w", err)
	}
	return higher + 1, nil
}
