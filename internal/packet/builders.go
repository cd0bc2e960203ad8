package packet

import "bancho/server/internal/osu"

// UserPresence is everything the client shows on a player panel.
type UserPresence struct {
	UserID      int32
	Name        string
	UTCOffset   int8
	CountryCode uint8
	ClientPrivs osu.ClientPrivileges
	Mode        uint8 // vanilla mode byte
	Longitude   float32
	Latitude    float32
	GlobalRank  int32
}

// UserStats is the stats panel payload for one player.
type UserStats struct {
	UserID      int32
	Action      osu.Action
	InfoText    string
	MapMD5      string
	Mods        osu.Mods
	Mode        uint8 // vanilla mode byte
	MapID       int32
	RankedScore int64
	Accuracy    float32 // 0..1
	Plays       int32
	TotalScore  int64
	GlobalRank  int32
	PP          uint16
}

func WriteUserID(id int32) []byte {
	return NewWriter(SrvUserID).I32(id).Bytes()
}

func WriteNotification(msg string) []byte {
	return NewWriter(SrvNotification).String(msg).Bytes()
}

func WriteProtocolVersion(v int32) []byte {
	return NewWriter(SrvProtocolVersion).I32(v).Bytes()
}

func WriteBanchoPrivileges(p osu.ClientPrivileges) []byte {
	return NewWriter(SrvPrivileges).I32(int32(p)).Bytes()
}

func WritePong() []byte {
	return NewWriter(SrvPong).Bytes()
}

func WriteSendMessage(m Message) []byte {
	return NewWriter(SrvSendMessage).Message(m).Bytes()
}

func WriteChannelInfo(c Channel) []byte {
	return NewWriter(SrvChannelInfo).String(c.Name).String(c.Topic).U16(c.Players).Bytes()
}

func WriteChannelAutoJoin(c Channel) []byte {
	return NewWriter(SrvChannelAutoJoin).String(c.Name).String(c.Topic).U16(c.Players).Bytes()
}

func WriteChannelJoinSuccess(name string) []byte {
	return NewWriter(SrvChannelJoinSuccess).String(name).Bytes()
}

func WriteChannelKick(name string) []byte {
	return NewWriter(SrvChannelKick).String(name).Bytes()
}

func WriteChannelInfoEnd() []byte {
	return NewWriter(SrvChannelInfoEnd).Bytes()
}

func WriteUserPresence(p UserPresence) []byte {
	return NewWriter(SrvUserPresence).
		I32(p.UserID).
		String(p.Name).
		U8(uint8(p.UTCOffset + 24)).
		U8(p.CountryCode).
		U8(uint8(p.ClientPrivs) | p.Mode<<5).
		F32(p.Longitude).
		F32(p.Latitude).
		I32(p.GlobalRank).
		Bytes()
}

func WriteUserStats(s UserStats) []byte {
	return NewWriter(SrvUserStats).
		I32(s.UserID).
		U8(uint8(s.Action)).
		String(s.InfoText).
		String(s.MapMD5).
		I32(int32(s.Mods)).
		U8(s.Mode).
		I32(s.MapID).
		I64(s.RankedScore).
		F32(s.Accuracy).
		I32(s.Plays).
		I64(s.TotalScore).
		I32(s.GlobalRank).
		U16(s.PP).
		Bytes()
}

func WriteLogout(userID int32) []byte {
	return NewWriter(SrvUserLogout).I32(userID).U8(0).Bytes()
}

func WriteSpectatorJoined(userID int32) []byte {
	return NewWriter(SrvSpectatorJoined).I32(userID).Bytes()
}

func WriteSpectatorLeft(userID int32) []byte {
	return NewWriter(SrvSpectatorLeft).I32(userID).Bytes()
}

func WriteFellowSpectatorJoined(userID int32) []byte {
	return NewWriter(SrvFellowSpectatorJoined).I32(userID).Bytes()
}

func WriteFellowSpectatorLeft(userID int32) []byte {
	return NewWriter(SrvFellowSpectatorLeft).I32(userID).Bytes()
}

func WriteSpectatorCantSpectate(userID int32) []byte {
	return NewWriter(SrvSpectatorCantSpectate).I32(userID).Bytes()
}

// WriteSpectateFrames relays the client's raw replay frame bundle
// without decoding it.
func WriteSpectateFrames(raw []byte) []byte {
	return NewWriter(SrvSpectateFrames).Raw(raw).Bytes()
}

func WriteVersionUpdate() []byte {
	return NewWriter(SrvVersionUpdate).Bytes()
}

func WriteVersionUpdateForced() []byte {
	return NewWriter(SrvVersionUpdateForced).Bytes()
}

func WriteNewMatch(m MatchState, sendPW bool) []byte {
	return NewWriter(SrvNewMatch).Match(m, sendPW).Bytes()
}

func WriteUpdateMatch(m MatchState, sendPW bool) []byte {
	return NewWriter(SrvUpdateMatch).Match(m, sendPW).Bytes()
}

func WriteMatchJoinSuccess(m MatchState) []byte {
	return NewWriter(SrvMatchJoinSuccess).Match(m, true).Bytes()
}

func WriteMatchJoinFail() []byte {
	return NewWriter(SrvMatchJoinFail).Bytes()
}

func WriteDisposeMatch(matchID int32) []byte {
	return NewWriter(SrvDisposeMatch).I32(matchID).Bytes()
}

func WriteMatchStart(m MatchState) []byte {
	return NewWriter(SrvMatchStart).Match(m, true).Bytes()
}

// WriteMatchScoreUpdate relays a slot's score frame, with the slot id
// already rewritten by the caller.
func WriteMatchScoreUpdate(f ScoreFrame) []byte {
	return NewWriter(SrvMatchScoreUpdate).ScoreFrame(f).Bytes()
}

func WriteMatchTransferHost() []byte {
	return NewWriter(SrvMatchTransferHost).Bytes()
}

func WriteMatchAllPlayersLoaded() []byte {
	return NewWriter(SrvMatchAllPlayersLoaded).Bytes()
}

func WriteMatchPlayerFailed(slotID int32) []byte {
	return NewWriter(SrvMatchPlayerFailed).I32(slotID).Bytes()
}

func WriteMatchComplete() []byte {
	return NewWriter(SrvMatchComplete).Bytes()
}

func WriteMatchSkip() []byte {
	return NewWriter(SrvMatchSkip).Bytes()
}

func WriteMatchPlayerSkipped(userID int32) []byte {
	return NewWriter(SrvMatchPlayerSkipped).I32(userID).Bytes()
}

func WriteMatchInvite(from string, fromID int32, to string, text string) []byte {
	return NewWriter(SrvMatchInvite).Message(Message{
		Sender:    from,
		Text:      text,
		Recipient: to,
		SenderID:  fromID,
	}).Bytes()
}

func WriteMatchChangePassword(pw string) []byte {
	return NewWriter(SrvMatchChangePassword).String(pw).Bytes()
}

func WriteMatchAbort() []byte {
	return NewWriter(SrvMatchAbort).Bytes()
}

func WriteFriendsList(ids []int32) []byte {
	return NewWriter(SrvFriendsList).I32List(ids).Bytes()
}

// WriteSilenceEnd carries seconds remaining; zero lifts the silence.
func WriteSilenceEnd(delta int32) []byte {
	return NewWriter(SrvSilenceEnd).I32(delta).Bytes()
}

func WriteUserSilenced(userID int32) []byte {
	return NewWriter(SrvUserSilenced).I32(userID).Bytes()
}

// WriteRestart tells the client to reconnect after ms milliseconds.
func WriteRestart(ms int32) []byte {
	return NewWriter(SrvRestart).I32(ms).Bytes()
}

func WriteMainMenuIcon(iconURL, onclickURL string) []byte {
	return NewWriter(SrvMainMenuIcon).String(iconURL + "|" + onclickURL).Bytes()
}

func WriteUserPresenceSingle(userID int32) []byte {
	return NewWriter(SrvUserPresenceSingle).I32(userID).Bytes()
}

func WriteUserPresenceBundle(ids []int32) []byte {
	return NewWriter(SrvUserPresenceBundle).I32List(ids).Bytes()
}

func WriteUserDMBlocked(target string) []byte {
	return NewWriter(SrvUserDMBlocked).Message(Message{Recipient: target}).Bytes()
}

func WriteTargetIsSilenced(target string) []byte {
	return NewWriter(SrvTargetIsSilenced).Message(Message{Recipient: target}).Bytes()
}

func WriteAccountRestricted() []byte {
	return NewWriter(SrvAccountRestricted).Bytes()
}

func WriteSwitchServer(t int32) []byte {
	return NewWriter(SrvSwitchServer).I32(t).Bytes()
}

func WriteGetAttention() []byte {
	return NewWriter(SrvGetAttention).Bytes()
}
