package osu

// SlotStatus is the wire state byte of a multiplayer slot.
type SlotStatus uint8

const (
	SlotOpen     SlotStatus = 1 << 0
	SlotLocked   SlotStatus = 1 << 1
	SlotNotReady SlotStatus = 1 << 2
	SlotReady    SlotStatus = 1 << 3
	SlotNoMap    SlotStatus = 1 << 4
	SlotPlaying  SlotStatus = 1 << 5
	SlotComplete SlotStatus = 1 << 6
	SlotQuit     SlotStatus = 1 << 7

	// SlotHasPlayer covers every status with a player in the slot.
	SlotHasPlayer = SlotNotReady | SlotReady | SlotNoMap | SlotPlaying | SlotComplete
)

// MatchTeam is a slot's team assignment in team modes.
type MatchTeam uint8

const (
	TeamNeutral MatchTeam = iota
	TeamBlue
	TeamRed
)

// WinCondition decides how multiplayer results are ranked.
type WinCondition uint8

const (
	WinByScore WinCondition = iota
	WinByAccuracy
	WinByCombo
	WinByScoreV2
)

// TeamType is the multiplayer room's team arrangement.
type TeamType uint8

const (
	TeamTypeHeadToHead TeamType = iota
	TeamTypeTagCoop
	TeamTypeTeamVS
	TeamTypeTagTeamVS
)

func (t TeamType) Teamed() bool {
	return t == TeamTypeTeamVS || t == TeamTypeTagTeamVS
}
