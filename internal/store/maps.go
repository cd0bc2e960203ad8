package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bancho/server/internal/osu"
)

// Beatmap is one map difficulty's metadata.
type Beatmap struct {
	ID          int32
	SetID       int32
	Status      osu.RankedStatus
	MD5         string
	Artist      string
	Title       string
	Version     string
	Creator     string
	TotalLength int32
	MaxCombo    int32
	Mode        uint8
	Frozen      bool
	Plays       int32
	Passes      int32
	BPM         float64
	Diff        float64
}

// FullName is the map's display name, "Artist - Title [Version]".
func (b Beatmap) FullName() string {
	return fmt.Sprintf("%s - %s [%s]", b.Artist, b.Title, b.Version)
}

// URL is the map's osu.ppy.sh beatmap page.
func (b Beatmap) URL() string {
	return fmt.Sprintf("https://osu.ppy.sh/b/%d", b.ID)
}

// Embed is the chat-link form of the map name.
func (b Beatmap) Embed() string {
	return fmt.Sprintf("[%s %s]", b.URL(), b.FullName())
}

const mapCols = `id, set_id, status, md5, artist, title, version, creator,
	total_length, max_combo, mode, frozen, plays, passes, bpm, diff`

func scanMap(row *sql.Row) (Beatmap, error) {
	var b Beatmap
	err := row.Scan(&b.ID, &b.SetID, &b.Status, &b.MD5, &b.Artist, &b.Title,
		&b.Version, &b.Creator, &b.TotalLength, &b.MaxCombo, &b.Mode,
		&b.Frozen, &b.Plays, &b.Passes, &b.BPM, &b.Diff)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Beatmap{}, ErrMapNotFound
		}
		return Beatmap{}, fmt.Errorf("scan beatmap: %w", err)
	}
	return b, nil
}

// MapByMD5 looks a map up by file hash.
func (s *Store) MapByMD5(ctx context.Context, md5 string) (Beatmap, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mapCols+` FROM maps WHERE md5 = ?`, md5)
	return scanMap(row)
}

// MapByID looks a map up by beatmap id.
func (s *Store) MapByID(ctx context.Context, id int32) (Beatmap, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mapCols+` FROM maps WHERE id = ?`, id)
	return scanMap(row)
}

// UpsertMap inserts or refreshes a map row (status is preserved for
// frozen maps).
func (s *Store) UpsertMap(ctx context.Context, b Beatmap) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO maps (`+mapCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	set_id = excluded.set_id,
	status = CASE WHEN maps.frozen != 0 THEN maps.status ELSE excluded.status END,
	md5 = excluded.md5,
	artist = excluded.artist, title = excluded.title,
	version = excluded.version, creator = excluded.creator,
	total_length = excluded.total_length, max_combo = excluded.max_combo,
	mode = excluded.mode, bpm = excluded.bpm, diff = excluded.diff`,
		b.ID, b.SetID, b.Status, b.MD5, b.Artist, b.Title, b.Version, b.Creator,
		b.TotalLength, b.MaxCombo, b.Mode, b.Frozen, b.Plays, b.Passes, b.BPM, b.Diff)
	if err != nil {
		return fmt.Errorf("upsert beatmap: %w", err)
	}
	return nil
}

// BumpMapPlaycount increments the map's play (and optionally pass)
// counters after a submission.
func (s *Store) BumpMapPlaycount(ctx context.Context, md5 string, passed bool) error {
	pass := 0
	if passed {
		pass = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE maps SET plays = plays + 1, passes = passes + ? WHERE md5 = ?`,
		pass, md5)
	if err != nil {
		return fmt.Errorf("bump map playcount: %w", err)
	}
	return nil
}

// SetRating records the user's 1-10 star rating for a map and returns
// the map's new average.
func (s *Store) SetRating(ctx context.Context, userID int32, mapMD5 string, rating int) (float64, error) {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO ratings (userid, map_md5, rating) VALUES (?, ?, ?)
ON CONFLICT (userid, map_md5) DO NOTHING`, userID, mapMD5, rating); err != nil {
		return 0, fmt.Errorf("insert rating: %w", err)
	}
	var avg float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(rating), 0) FROM ratings WHERE map_md5 = ?`, mapMD5).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("query rating average: %w", err)
	}
	return avg, nil
}

// AddFavourite records a favourited beatmap set.
func (s *Store) AddFavourite(ctx context.Context, userID, setID int32, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favourites (userid, setid, created_at) VALUES (?, ?, ?)`,
		userID, setID, now)
	if err != nil {
		return fmt.Errorf("insert favourite: %w", err)
	}
	return nil
}

// Favourites returns the set ids the user has favourited.
func (s *Store) Favourites(ctx context.Context, userID int32) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT setid FROM favourites WHERE userid = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query favourites: %w", err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favourite: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TourneyPoolMap is one (mods, slot) pick in a tournament mappool.
type TourneyPoolMap struct {
	MapID  int32
	PoolID int32
	Mods   osu.Mods
	Slot   int
}

// TourneyPool is a named tournament mappool with its picks.
type TourneyPool struct {
	ID   int32
	Name string
	Maps []TourneyPoolMap
}

// TourneyPools loads every pool with its map assignments.
func (s *Store) TourneyPools(ctx context.Context) ([]TourneyPool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tourney_pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tourney pools: %w", err)
	}
	defer rows.Close()

	var pools []TourneyPool
	for rows.Next() {
		var p TourneyPool
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan tourney pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pools {
		mrows, err := s.db.QueryContext(ctx,
			`SELECT map_id, pool_id, mods, slot FROM tourney_pool_maps WHERE pool_id = ?`,
			pools[i].ID)
		if err != nil {
			return nil, fmt.Errorf("query tourney pool maps: %w", err)
		}
		for mrows.Next() {
			var m TourneyPoolMap
			if err := mrows.Scan(&m.MapID, &m.PoolID, &m.Mods, &m.Slot); err != nil {
				mrows.Close()
				return nil, fmt.Errorf("scan tourney pool map: %w", err)
			}
			pools[i].Maps = append(pools[i].Maps, m)
		}
		if err := mrows.Err(); err != nil {
			mrows.Close()
			return nil, err
		}
		mrows.Close()
	}
	return pools, nil
}

// InsertComment stores a map/replay/song comment.
func (s *Store) InsertComment(ctx context.Context, targetID int32, targetType string, userID int32, t int64, comment, colour string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO comments (target_id, target_type, userid, time, comment, colour)
VALUES (?, ?, ?, ?, ?, ?)`, targetID, targetType, userID, t, comment, colour)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}
