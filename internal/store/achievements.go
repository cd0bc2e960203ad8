package store

import (
	"context"
	"fmt"
)

// Achievement is one unlockable medal definition. Unlock conditions
// live in code (internal/score); the store only holds identity and
// display metadata.
type Achievement struct {
	ID    int32
	File  string
	Name  string
	Descr string
}

var achievementDefs = []Achievement{
	{1, "osu-skill-pass-1", "Rising Star", "Can't go forward without the first steps."},
	{2, "osu-skill-pass-2", "Constellation Prize", "Definitely not a consolation prize. Now things start getting hard!"},
	{3, "osu-skill-pass-3", "Building Confidence", "Oh, you've SO got this."},
	{4, "osu-skill-pass-4", "Insanity Approaches", "You're not twitching, you're just ready."},
	{5, "osu-skill-pass-5", "These Clarion Skies", "Everything seems so clear now."},
	{6, "osu-skill-pass-6", "Above and Beyond", "A cut above the rest."},
	{7, "osu-skill-pass-7", "Supremacy", "All marvel before your prowess."},
	{8, "osu-skill-pass-8", "Absolution", "My god, you're full of stars!"},
	{9, "osu-skill-pass-9", "Event Horizon", "No force dares to pull you under."},
	{10, "osu-skill-pass-10", "Phantasm", "Fevered is your passion, extraordinary is your skill."},
	{11, "osu-skill-fc-1", "Totality", "All the notes. Every single one."},
	{12, "osu-skill-fc-2", "Business As Usual", "Two to go, please."},
	{13, "osu-skill-fc-3", "Building Steam", "Hey, this isn't so bad."},
	{14, "osu-skill-fc-4", "Moving Forward", "Bet you feel good about that."},
	{15, "osu-skill-fc-5", "Paradigm Shift", "Surprisingly difficult."},
	{16, "osu-skill-fc-6", "Anguish Quelled", "Don't choke."},
	{17, "osu-skill-fc-7", "Never Give Up", "Excellence is its own reward."},
	{18, "osu-skill-fc-8", "Aberration", "They said it couldn't be done. They were wrong."},
	{19, "osu-skill-fc-9", "Chosen", "Reign among the Prometheans, where you belong."},
	{20, "osu-skill-fc-10", "Unfathomable", "You have no equal."},
	{21, "osu-combo-500", "500 Combo", "500 big ones! You're moving up in the world!"},
	{22, "osu-combo-750", "750 Combo", "750 notes back to back? Woah."},
	{23, "osu-combo-1000", "1,000 Combo", "A thousand reasons why you rock at this game."},
	{24, "osu-combo-2000", "2,000 Combo", "Nothing can stop you now."},
}

func (s *Store) seedAchievements(ctx context.Context) error {
	for _, a := range achievementDefs {
		if _, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO achievements (id, file, name, descr) VALUES (?, ?, ?, ?)`,
			a.ID, a.File, a.Name, a.Descr); err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.File, err)
		}
	}
	return nil
}

// Achievements returns every medal definition.
func (s *Store) Achievements(ctx context.Context) ([]Achievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, name, descr FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	var achs []Achievement
	for rows.Next() {
		var a Achievement
		if err := rows.Scan(&a.ID, &a.File, &a.Name, &a.Descr); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achs = append(achs, a)
	}
	return achs, rows.Err()
}

// UserAchievements returns the medal ids the user has unlocked.
func (s *Store) UserAchievements(ctx context.Context, userID int32) (map[int32]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT achid FROM user_achievements WHERE userid = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[int32]bool)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user achievement: %w", err)
		}
		unlocked[id] = true
	}
	return unlocked, rows.Err()
}

// UnlockAchievement records a medal unlock. Idempotent.
func (s *Store) UnlockAchievement(ctx context.Context, userID, achID int32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_achievements (userid, achid) VALUES (?, ?)`,
		userID, achID)
	if err != nil {
		return fmt.Errorf("unlock achievement: %w", err)
	}
	return nil
}
