package osu

// Action is the client's self-reported activity, shown in user panels.
type Action uint8

const (
	ActionIdle Action = iota
	ActionAfk
	ActionPlaying
	ActionEditing
	ActionModding
	ActionMultiplayer
	ActionWatching
	ActionUnknown
	ActionTesting
	ActionSubmitting
	ActionPaused
	ActionLobby
	ActionMultiplaying
	ActionOsuDirect
)

// ClientFlags are the legacy client anticheat bits appended to score
// submissions. Mostly noise on modern clients; logged, never trusted.
type ClientFlags uint32

const (
	FlagClean                  ClientFlags = 0
	FlagSpeedHackDetected      ClientFlags = 1 << 1
	FlagIncorrectModValue      ClientFlags = 1 << 2
	FlagMultipleOsuClients     ClientFlags = 1 << 3
	FlagChecksumFailure        ClientFlags = 1 << 4
	FlagFlashlightChecksum     ClientFlags = 1 << 5
	FlagOsuExecutableChecksum  ClientFlags = 1 << 6
	FlagMissingProcessesInList ClientFlags = 1 << 7
	FlagFlashlightImageHack    ClientFlags = 1 << 8
	FlagSpinnerHack            ClientFlags = 1 << 9
	FlagTransparentWindow      ClientFlags = 1 << 10
	FlagFastPress              ClientFlags = 1 << 11
	FlagRawMouseDiscrepancy    ClientFlags = 1 << 12
	FlagRawKeyboardDiscrepancy ClientFlags = 1 << 13
)
