package score

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"bancho/server/internal/osu"
	"bancho/server/internal/store"
)

// evaluateAchievements checks every medal the player has not yet earned
// against the new best score and persists the ones it unlocks.
func (s *Server) evaluateAchievements(ctx context.Context, userID int32, bmap store.Beatmap, sc store.Score) []store.Achievement {
	defs, err := s.db.Achievements(ctx)
	if err != nil {
		slog.Error("achievement defs fetch failed", "err", err)
		return nil
	}
	have, err := s.db.UserAchievements(ctx, userID)
	if err != nil {
		slog.Error("user achievements fetch failed", "err", err)
		return nil
	}

	var unlocked []store.Achievement
	for _, a := range defs {
		if have[a.ID] {
			continue
		}
		if !achievementEarned(a.File, bmap, sc) {
			continue
		}
		if err := s.db.UnlockAchievement(ctx, userID, a.ID); err != nil {
			slog.Error("achievement unlock failed", "ach", a.File, "err", err)
			continue
		}
		unlocked = append(unlocked, a)
	}
	return unlocked
}

// achievementEarned decides one medal from its file key. Skill medals
// are standard-mode only and keyed on the map's star bracket; combo
// medals on the score's max combo.
func achievementEarned(file string, bmap store.Beatmap, sc store.Score) bool {
	switch {
	case strings.HasPrefix(file, "osu-skill-pass-"):
		n, err := strconv.Atoi(strings.TrimPrefix(file, "osu-skill-pass-"))
		if err != nil {
			return false
		}
		return sc.Mode.AsVanilla() == 0 && starBracket(bmap.Diff) == n &&
			sc.Mods&(osu.ModEasy|osu.ModNoFail|osu.ModHalfTime) == 0
	case strings.HasPrefix(file, "osu-skill-fc-"):
		n, err := strconv.Atoi(strings.TrimPrefix(file, "osu-skill-fc-"))
		if err != nil {
			return false
		}
		return sc.Mode.AsVanilla() == 0 && sc.Perfect && starBracket(bmap.Diff) == n
	case strings.HasPrefix(file, "osu-combo-"):
		n, err := strconv.Atoi(strings.TrimPrefix(file, "osu-combo-"))
		if err != nil {
			return false
		}
		return sc.Mode.AsVanilla() == 0 && sc.MaxCombo >= int32(n)
	default:
		return false
	}
}

// starBracket maps a star rating onto the 1..10 skill medal tiers.
func starBracket(diff float64) int {
	n := int(diff)
	if n < 1 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
