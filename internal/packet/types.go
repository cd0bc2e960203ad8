package packet

import "bancho/server/internal/osu"

// Message is the chat composite shared by public and private messages.
type Message struct {
	Sender    string
	Text      string
	Recipient string
	SenderID  int32
}

// Channel is the composite behind channelInfo/channelAutoJoin.
type Channel struct {
	Name    string
	Topic   string
	Players uint16
}

// MatchState is the wire snapshot of a multiplayer room. It is a plain
// value: the codec never touches live room state, callers snapshot into
// one of these under their own locks.
type MatchState struct {
	ID         uint16
	InProgress bool
	Mods       osu.Mods

	Name     string
	Password string

	MapName string
	MapID   int32
	MapMD5  string

	SlotStatus [16]osu.SlotStatus
	SlotTeam   [16]osu.MatchTeam
	SlotUserID [16]int32 // meaningful iff the status has a player

	HostID int32

	Mode         uint8
	WinCondition osu.WinCondition
	TeamType     osu.TeamType

	Freemods bool
	SlotMods [16]osu.Mods // encoded only when Freemods

	Seed int32
}

// ScoreFrame is one live gameplay frame, relayed verbatim between
// spectators and multiplayer slots.
type ScoreFrame struct {
	Time         int32
	SlotID       uint8
	Count300     uint16
	Count100     uint16
	Count50      uint16
	CountGeki    uint16
	CountKatu    uint16
	CountMiss    uint16
	TotalScore   int32
	MaxCombo     uint16
	CurrentCombo uint16
	Perfect      bool
	CurrentHP    uint8
	TagByte      uint8
	ScoreV2      bool

	// Present on the wire only when ScoreV2 is set.
	ComboPortion float32
	BonusPortion float32
}
