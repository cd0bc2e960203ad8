// Package packet implements the osu! bancho binary wire format: a
// stream of 7-byte-headed frames (u16 packet id, one pad byte, u32
// payload length, all little-endian) carrying primitive and composite
// payloads.
package packet

// ID is a wire packet identifier. Osu* ids are client→server, Srv* ids
// are server→client.
type ID uint16

const (
	OsuChangeAction            ID = 0
	OsuSendPublicMessage       ID = 1
	OsuLogout                  ID = 2
	OsuRequestStatusUpdate     ID = 3
	OsuPing                    ID = 4
	SrvUserID                  ID = 5
	SrvSendMessage             ID = 7
	SrvPong                    ID = 8
	SrvUserStats               ID = 11
	SrvUserLogout              ID = 12
	SrvSpectatorJoined         ID = 13
	SrvSpectatorLeft           ID = 14
	SrvSpectateFrames          ID = 15
	OsuStartSpectating         ID = 16
	OsuStopSpectating          ID = 17
	OsuSpectateFrames          ID = 18
	SrvVersionUpdate           ID = 19
	OsuErrorReport             ID = 20
	OsuCantSpectate            ID = 21
	SrvSpectatorCantSpectate   ID = 22
	SrvGetAttention            ID = 23
	SrvNotification            ID = 24
	OsuSendPrivateMessage      ID = 25
	SrvUpdateMatch             ID = 26
	SrvNewMatch                ID = 27
	SrvDisposeMatch            ID = 28
	OsuPartLobby               ID = 29
	OsuJoinLobby               ID = 30
	OsuCreateMatch             ID = 31
	OsuJoinMatch               ID = 32
	OsuPartMatch               ID = 33
	SrvToggleBlockNonFriendDMs ID = 34
	SrvMatchJoinSuccess        ID = 36
	SrvMatchJoinFail           ID = 37
	OsuMatchChangeSlot         ID = 38
	OsuMatchReady              ID = 39
	OsuMatchLock               ID = 40
	OsuMatchChangeSettings     ID = 41
	SrvFellowSpectatorJoined   ID = 42
	SrvFellowSpectatorLeft     ID = 43
	OsuMatchStart              ID = 44
	SrvMatchStart              ID = 46
	OsuMatchScoreUpdate        ID = 47
	SrvMatchScoreUpdate        ID = 48
	OsuMatchComplete           ID = 49
	SrvMatchTransferHost       ID = 50
	OsuMatchChangeMods         ID = 51
	OsuMatchLoadComplete       ID = 52
	SrvMatchAllPlayersLoaded   ID = 53
	OsuMatchNoBeatmap          ID = 54
	OsuMatchNotReady           ID = 55
	OsuMatchFailed             ID = 56
	SrvMatchPlayerFailed       ID = 57
	SrvMatchComplete           ID = 58
	OsuMatchHasBeatmap         ID = 59
	OsuMatchSkipRequest        ID = 60
	SrvMatchSkip               ID = 61
	OsuChannelJoin             ID = 63
	SrvChannelJoinSuccess      ID = 64
	SrvChannelInfo             ID = 65
	SrvChannelKick             ID = 66
	SrvChannelAutoJoin         ID = 67
	OsuBeatmapInfoRequest      ID = 68
	OsuMatchTransferHost       ID = 70
	SrvPrivileges              ID = 71
	SrvFriendsList             ID = 72
	OsuFriendAdd               ID = 73
	OsuFriendRemove            ID = 74
	SrvProtocolVersion         ID = 75
	SrvMainMenuIcon            ID = 76
	OsuMatchChangeTeam         ID = 77
	OsuChannelPart             ID = 78
	OsuReceiveUpdates          ID = 79
	SrvMatchPlayerSkipped      ID = 81
	OsuSetAwayMessage          ID = 82
	SrvUserPresence            ID = 83
	OsuIrcOnly                 ID = 84
	OsuUserStatsRequest        ID = 85
	SrvRestart                 ID = 86
	OsuMatchInvite             ID = 87
	SrvMatchInvite             ID = 88
	SrvChannelInfoEnd          ID = 89
	OsuMatchChangePassword     ID = 90
	SrvMatchChangePassword     ID = 91
	SrvSilenceEnd              ID = 92
	OsuTourneyMatchInfoRequest ID = 93
	SrvUserSilenced            ID = 94
	SrvUserPresenceSingle      ID = 95
	SrvUserPresenceBundle      ID = 96
	OsuUserPresenceRequest     ID = 97
	OsuUserPresenceRequestAll  ID = 98
	OsuToggleBlockNonFriendDMs ID = 99
	SrvUserDMBlocked           ID = 100
	SrvTargetIsSilenced        ID = 101
	SrvVersionUpdateForced     ID = 102
	SrvSwitchServer            ID = 103
	SrvAccountRestricted       ID = 104
	SrvMatchAbort              ID = 106
	OsuTourneyJoinMatchChannel ID = 108
	OsuTourneyPartMatchChannel ID = 109
)

// ProtocolVersion is the bancho protocol revision spoken by modern clients.
const ProtocolVersion = 19

// HeaderLen is the fixed frame header size.
const HeaderLen = 7
