package osu

// GameMode is a server-side game mode: the client's four vanilla modes
// crossed with the relax/autopilot mod variants, which keep separate
// score tables and leaderboards.
type GameMode uint8

const (
	ModeVanillaStd GameMode = iota
	ModeVanillaTaiko
	ModeVanillaCatch
	ModeVanillaMania

	ModeRelaxStd
	ModeRelaxTaiko
	ModeRelaxCatch

	ModeAutopilotStd

	ModeCount
)

var gameModeNames = [ModeCount]string{
	"vn!std", "vn!taiko", "vn!catch", "vn!mania",
	"rx!std", "rx!taiko", "rx!catch",
	"ap!std",
}

func (m GameMode) String() string {
	if m >= ModeCount {
		return "unknown"
	}
	return gameModeNames[m]
}

// ModeFromParams folds the relax/autopilot mods into the vanilla mode
// byte the client sends. Invalid combinations (e.g. rx!mania) fall back
// to the vanilla mode.
func ModeFromParams(vanilla uint8, mods Mods) GameMode {
	mode := GameMode(vanilla)
	if mods&ModRelax != 0 {
		mode += 4
	} else if mods&ModAutopilot != 0 {
		mode += 7
	}
	if mode >= ModeCount {
		return GameMode(vanilla)
	}
	return mode
}

// AsVanilla maps back to the client's four mode bytes.
func (m GameMode) AsVanilla() uint8 {
	if m == ModeAutopilotStd {
		return 0
	}
	return uint8(m) % 4
}

// RankingByPP reports whether the mode ranks personal bests by
// performance points rather than raw score.
func (m GameMode) RankingByPP() bool {
	return m >= ModeRelaxStd
}

// ScoresTable returns the SQL table holding this mode's scores.
func (m GameMode) ScoresTable() string {
	switch {
	case m < ModeRelaxStd:
		return "scores_vn"
	case m < ModeAutopilotStd:
		return "scores_rx"
	default:
		return "scores_ap"
	}
}

// StatsSuffix is the per-mode column suffix in the stats table.
func (m GameMode) StatsSuffix() string {
	if m >= ModeCount {
		return "vn_std"
	}
	return [ModeCount]string{
		"vn_std", "vn_taiko", "vn_catch", "vn_mania",
		"rx_std", "rx_taiko", "rx_catch",
		"ap_std",
	}[m]
}
