package osu

import "strings"

// Mods is the osu! client mod bitset, as sent over the wire.
type Mods uint32

const (
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModTouchscreen Mods = 1 << 2
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModRelax       Mods = 1 << 7
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
	ModAutoplay    Mods = 1 << 11
	ModSpunOut     Mods = 1 << 12
	ModAutopilot   Mods = 1 << 13
	ModPerfect     Mods = 1 << 14
	ModKey4        Mods = 1 << 15
	ModKey5        Mods = 1 << 16
	ModKey6        Mods = 1 << 17
	ModKey7        Mods = 1 << 18
	ModKey8        Mods = 1 << 19
	ModFadeIn      Mods = 1 << 20
	ModRandom      Mods = 1 << 21
	ModCinema      Mods = 1 << 22
	ModTarget      Mods = 1 << 23
	ModKey9        Mods = 1 << 24
	ModKeyCoop     Mods = 1 << 25
	ModKey1        Mods = 1 << 26
	ModKey3        Mods = 1 << 27
	ModKey2        Mods = 1 << 28
	ModScoreV2     Mods = 1 << 29
	ModMirror      Mods = 1 << 30
)

// SpeedChangingMods stay on the room when freemods is enabled.
const SpeedChangingMods = ModDoubleTime | ModNightcore | ModHalfTime

const KeyMods = ModKey1 | ModKey2 | ModKey3 | ModKey4 | ModKey5 |
	ModKey6 | ModKey7 | ModKey8 | ModKey9

var modAcronyms = []struct {
	mod Mods
	tag string
}{
	{ModNoFail, "NF"}, {ModEasy, "EZ"}, {ModTouchscreen, "TD"},
	{ModHidden, "HD"}, {ModHardRock, "HR"}, {ModSuddenDeath, "SD"},
	{ModDoubleTime, "DT"}, {ModRelax, "RX"}, {ModHalfTime, "HT"},
	{ModNightcore, "NC"}, {ModFlashlight, "FL"}, {ModAutoplay, "AU"},
	{ModSpunOut, "SO"}, {ModAutopilot, "AP"}, {ModPerfect, "PF"},
	{ModKey4, "4K"}, {ModKey5, "5K"}, {ModKey6, "6K"}, {ModKey7, "7K"},
	{ModKey8, "8K"}, {ModFadeIn, "FI"}, {ModRandom, "RN"},
	{ModCinema, "CN"}, {ModTarget, "TP"}, {ModKey9, "9K"},
	{ModKeyCoop, "CO"}, {ModKey1, "1K"}, {ModKey3, "3K"},
	{ModKey2, "2K"}, {ModScoreV2, "V2"}, {ModMirror, "MR"},
}

// String renders the two-letter acronym form, e.g. "HDDT". NC implies DT
// on the wire, but both acronyms are kept so round-trips stay faithful.
func (m Mods) String() string {
	if m == 0 {
		return ""
	}
	var b strings.Builder
	for _, ma := range modAcronyms {
		if m&ma.mod != 0 {
			b.WriteString(ma.tag)
		}
	}
	return b.String()
}

// ParseMods reads acronym pairs ("HDDTRX"); unknown pairs are ignored.
func ParseMods(s string) Mods {
	var m Mods
	for i := 0; i+2 <= len(s); i += 2 {
		tag := strings.ToUpper(s[i : i+2])
		for _, ma := range modAcronyms {
			if ma.tag == tag {
				m |= ma.mod
				break
			}
		}
	}
	return m
}
