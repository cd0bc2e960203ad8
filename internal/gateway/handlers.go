package gateway

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"bancho/server/internal/core"
	"bancho/server/internal/metrics"
	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// maxMessageLen is the chat truncation limit; osu! itself caps around 2k.
const maxMessageLen = 2000

func (s *Server) buildHandlerTable() map[packet.ID]handlerFunc {
	return map[packet.ID]handlerFunc{
		packet.OsuChangeAction:         s.handleChangeAction,
		packet.OsuSendPublicMessage:    s.handlePublicMessage,
		packet.OsuLogout:               s.handleLogout,
		packet.OsuRequestStatusUpdate:  s.handleStatusUpdateRequest,
		packet.OsuPing:                 s.handlePing,
		packet.OsuStartSpectating:      s.handleStartSpectating,
		packet.OsuStopSpectating:       s.handleStopSpectating,
		packet.OsuSpectateFrames:       s.handleSpectateFrames,
		packet.OsuCantSpectate:         s.handleCantSpectate,
		packet.OsuSendPrivateMessage:   s.handlePrivateMessage,
		packet.OsuPartLobby:            s.handlePartLobby,
		packet.OsuJoinLobby:            s.handleJoinLobby,
		packet.OsuCreateMatch:          s.handleCreateMatch,
		packet.OsuJoinMatch:            s.handleJoinMatch,
		packet.OsuPartMatch:            s.handlePartMatch,
		packet.OsuMatchChangeSlot:      s.handleMatchChangeSlot,
		packet.OsuMatchReady:           s.slotStatusHandler(osu.SlotReady),
		packet.OsuMatchLock:            s.handleMatchLock,
		packet.OsuMatchChangeSettings:  s.handleMatchChangeSettings,
		packet.OsuMatchStart:           s.handleMatchStart,
		packet.OsuMatchScoreUpdate:     s.handleMatchScoreUpdate,
		packet.OsuMatchComplete:        s.handleMatchComplete,
		packet.OsuMatchChangeMods:      s.handleMatchChangeMods,
		packet.OsuMatchLoadComplete:    s.handleMatchLoadComplete,
		packet.OsuMatchNoBeatmap:       s.slotStatusHandler(osu.SlotNoMap),
		packet.OsuMatchNotReady:        s.slotStatusHandler(osu.SlotNotReady),
		packet.OsuMatchFailed:          s.handleMatchFailed,
		packet.OsuMatchHasBeatmap:      s.slotStatusHandler(osu.SlotNotReady),
		packet.OsuMatchSkipRequest:     s.handleMatchSkipRequest,
		packet.OsuChannelJoin:          s.handleChannelJoin,
		packet.OsuMatchTransferHost:    s.handleMatchTransferHost,
		packet.OsuFriendAdd:            s.handleFriendAdd,
		packet.OsuFriendRemove:         s.handleFriendRemove,
		packet.OsuMatchChangeTeam:      s.handleMatchChangeTeam,
		packet.OsuChannelPart:          s.handleChannelPart,
		packet.OsuReceiveUpdates:       s.handleReceiveUpdates,
		packet.OsuSetAwayMessage:       s.handleSetAwayMessage,
		packet.OsuUserStatsRequest:     s.handleUserStatsRequest,
		packet.OsuMatchInvite:          s.handleMatchInvite,
		packet.OsuMatchChangePassword:  s.handleMatchChangePassword,
		packet.OsuTourneyMatchInfoRequest: s.handleTourneyMatchInfo,
		packet.OsuUserPresenceRequest:     s.handleUserPresenceRequest,
		packet.OsuUserPresenceRequestAll:  s.handleUserPresenceRequestAll,
		packet.OsuToggleBlockNonFriendDMs: s.handleToggleBlockDMs,
		packet.OsuTourneyJoinMatchChannel: s.handleTourneyJoinChannel,
		packet.OsuTourneyPartMatchChannel: s.handleTourneyPartChannel,
	}
}

func (s *Server) handleChangeAction(_ context.Context, sess *core.Session, r *packet.Reader) {
	action := osu.Action(r.U8())
	info := r.String()
	mapMD5 := r.String()
	mods := osu.Mods(r.U32())
	vanillaMode := r.U8()
	mapID := r.I32()
	if r.Err() != nil {
		return
	}

	sess.SetStatus(core.Status{
		Action:   action,
		InfoText: info,
		MapMD5:   mapMD5,
		Mods:     mods,
		Mode:     osu.ModeFromParams(vanillaMode, mods),
		MapID:    mapID,
	})
	s.state.BroadcastStats(sess)
}

func (s *Server) handlePing(context.Context, *core.Session, *packet.Reader) {}

func (s *Server) handleLogout(_ context.Context, sess *core.Session, r *packet.Reader) {
	r.I32()
	// The client fires a stray logout right after login; ignore it.
	if time.Since(sess.LoginTime) < time.Second {
		return
	}
	s.state.RemoveSession(sess)
	metrics.SessionsOnline.Set(float64(s.state.SessionCount()))
}

func (s *Server) handleStatusUpdateRequest(_ context.Context, sess *core.Session, _ *packet.Reader) {
	sess.Enqueue(sess.StatsPacket())
}

var npMapLink = regexp.MustCompile(`https?://osu\.[^ ]+/(?:b|beatmaps)/(\d+)|#/(\d+)`)

func (s *Server) handlePublicMessage(ctx context.Context, sess *core.Session, r *packet.Reader) {
	m := r.Message()
	if r.Err() != nil {
		return
	}
	if sess.Restricted() {
		return
	}
	if sess.SilenceRemaining(time.Now()) > 0 {
		slog.Warn("silenced player tried to chat", "user_id", sess.ID)
		return
	}

	ch, ok := s.state.ResolveChannel(sess, m.Recipient)
	if !ok {
		slog.Warn("message to unknown channel", "user_id", sess.ID, "channel", m.Recipient)
		return
	}
	if !ch.CanWrite(sess.Priv()) {
		slog.Warn("write without privilege", "user_id", sess.ID, "channel", ch.Name)
		return
	}

	text, truncated := truncateMessage(m.Text)
	if truncated {
		sess.Enqueue(packet.WriteNotification("Your message was truncated: the limit is 2000 characters."))
	}
	s.rememberNP(sess, text)
	s.state.SendToChannel(ch, packet.Message{
		Sender:    sess.Name,
		Text:      text,
		Recipient: ch.DisplayName(),
		SenderID:  sess.ID,
	}, sess)

	if strings.HasPrefix(text, "!") {
		if reply := s.runCommand(ctx, sess, ch, text); reply != "" {
			s.state.SendAsBot(ch, reply)
		}
	}
}

func (s *Server) handlePrivateMessage(ctx context.Context, sess *core.Session, r *packet.Reader) {
	m := r.Message()
	if r.Err() != nil {
		return
	}
	if sess.Restricted() {
		return
	}
	if sess.SilenceRemaining(time.Now()) > 0 {
		return
	}
	text, truncated := truncateMessage(m.Text)
	if truncated {
		sess.Enqueue(packet.WriteNotification("Your message was truncated: the limit is 2000 characters."))
	}
	s.rememberNP(sess, text)

	target, online := s.state.SessionByName(m.Recipient)
	if !online {
		// Recipient is offline; leave mail for their next login.
		user, err := s.db.UserBySafeName(ctx, store.SafeName(m.Recipient))
		if err != nil {
			if !errors.Is(err, store.ErrUserNotFound) {
				slog.Error("dm recipient lookup failed", "err", err)
			}
			return
		}
		blocked, err := s.db.Blocked(ctx, user.ID, sess.ID)
		if err != nil {
			slog.Error("block lookup failed", "err", err)
			return
		}
		if blocked {
			sess.Enqueue(packet.WriteUserDMBlocked(user.Name))
			return
		}
		if err := s.db.InsertMail(ctx, sess.ID, user.ID, text, time.Now().Unix()); err != nil {
			slog.Error("mail insert failed", "err", err)
		}
		return
	}

	if target.ID == s.state.Bot.ID {
		if reply := s.runCommand(ctx, sess, nil, text); reply != "" {
			sess.Enqueue(packet.WriteSendMessage(packet.Message{
				Sender: s.state.Bot.Name, Text: reply, Recipient: sess.Name, SenderID: s.state.Bot.ID,
			}))
		}
		return
	}
	if target.IsBlocked(sess.ID) {
		sess.Enqueue(packet.WriteUserDMBlocked(target.Name))
		return
	}
	if target.PMPrivate() && !target.IsFriend(sess.ID) {
		sess.Enqueue(packet.WriteUserDMBlocked(target.Name))
		return
	}
	if target.SilenceRemaining(time.Now()) > 0 {
		sess.Enqueue(packet.WriteTargetIsSilenced(target.Name))
		return
	}
	if away := target.AwayMessage(); away != "" {
		sess.Enqueue(packet.WriteSendMessage(packet.Message{
			Sender: target.Name, Text: away, Recipient: sess.Name, SenderID: target.ID,
		}))
	}

	target.Enqueue(packet.WriteSendMessage(packet.Message{
		Sender: sess.Name, Text: text, Recipient: target.Name, SenderID: sess.ID,
	}))
}

// truncateMessage caps a chat message at maxMessageLen characters. The
// cut is on rune boundaries so a multi-byte character is never split.
func truncateMessage(text string) (string, bool) {
	if len(text) <= maxMessageLen {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxMessageLen {
		return text, false
	}
	return string(runes[:maxMessageLen]) + "... (truncated)", true
}

// rememberNP captures the map id out of a /np action message so chat
// commands can refer to "the last map".
func (s *Server) rememberNP(sess *core.Session, text string) {
	if !strings.HasPrefix(text, "\x01ACTION") {
		return
	}
	match := npMapLink.FindStringSubmatch(text)
	if match == nil {
		return
	}
	raw := match[1]
	if raw == "" {
		raw = match[2]
	}
	var mapID int32
	for _, c := range raw {
		mapID = mapID*10 + int32(c-'0')
	}
	st := sess.Status()
	sess.SetLastNP(core.NPContext{
		MapID:   mapID,
		Mods:    st.Mods,
		Mode:    st.Mode,
		Expires: time.Now().Add(5 * time.Minute),
	})
}

func (s *Server) handleStartSpectating(_ context.Context, sess *core.Session, r *packet.Reader) {
	hostID := r.I32()
	if r.Err() != nil {
		return
	}
	host, ok := s.state.SessionByID(hostID)
	if !ok || host.ID == s.state.Bot.ID {
		slog.Warn("spectate target not online", "user_id", sess.ID, "target", hostID)
		return
	}
	if err := s.state.StartSpectating(sess, host); err != nil {
		slog.Warn("spectate rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleStopSpectating(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.StopSpectating(sess)
}

func (s *Server) handleSpectateFrames(_ context.Context, sess *core.Session, r *packet.Reader) {
	s.state.BroadcastFrames(sess, r.Remaining())
}

func (s *Server) handleCantSpectate(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.CantSpectate(sess)
}

func (s *Server) handleJoinLobby(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SetLobby(sess, true)
	sess.Enqueue(s.state.LobbySnapshots()...)
}

func (s *Server) handlePartLobby(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SetLobby(sess, false)
}

func (s *Server) handleCreateMatch(_ context.Context, sess *core.Session, r *packet.Reader) {
	ms := r.Match()
	if r.Err() != nil {
		return
	}
	if sess.Restricted() {
		sess.Enqueue(
			packet.WriteMatchJoinFail(),
			packet.WriteNotification("Multiplayer is unavailable while restricted."),
		)
		return
	}
	if _, err := s.state.CreateMatch(sess, ms); err != nil {
		slog.Warn("match create failed", "user_id", sess.ID, "err", err)
		sess.Enqueue(packet.WriteMatchJoinFail())
	}
}

func (s *Server) handleJoinMatch(_ context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	passwd := r.String()
	if r.Err() != nil {
		return
	}

	// Ids above the room table are clickable menu targets smuggled
	// through chat embeds.
	if id >= core.MaxMatches {
		if opt, ok := sess.TakeMenuOption(id); ok {
			opt.Handler(sess)
			return
		}
		sess.Enqueue(packet.WriteMatchJoinFail())
		return
	}
	if err := s.state.JoinMatch(sess, int(id), passwd); err != nil {
		slog.Warn("match join failed", "user_id", sess.ID, "match_id", id, "err", err)
		sess.Enqueue(packet.WriteMatchJoinFail())
	}
}

func (s *Server) handlePartMatch(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.LeaveMatch(sess)
}

func (s *Server) handleMatchChangeSlot(_ context.Context, sess *core.Session, r *packet.Reader) {
	target := r.I32()
	if r.Err() != nil {
		return
	}
	if err := s.state.ChangeSlot(sess, int(target)); err != nil {
		slog.Debug("slot change rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) slotStatusHandler(status osu.SlotStatus) handlerFunc {
	return func(_ context.Context, sess *core.Session, _ *packet.Reader) {
		s.state.SetSlotStatus(sess, status)
	}
}

func (s *Server) handleMatchLock(_ context.Context, sess *core.Session, r *packet.Reader) {
	target := r.I32()
	if r.Err() != nil {
		return
	}
	if err := s.state.LockSlot(sess, int(target)); err != nil {
		slog.Debug("slot lock rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchChangeSettings(_ context.Context, sess *core.Session, r *packet.Reader) {
	ms := r.Match()
	if r.Err() != nil {
		return
	}
	if err := s.state.ChangeSettings(sess, ms); err != nil {
		slog.Debug("settings change rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchStart(_ context.Context, sess *core.Session, _ *packet.Reader) {
	if err := s.state.StartMatch(sess); err != nil {
		slog.Debug("match start rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchScoreUpdate(_ context.Context, sess *core.Session, r *packet.Reader) {
	f := r.ScoreFrame()
	if r.Err() != nil {
		return
	}
	s.state.MatchFrame(sess, f)
}

func (s *Server) handleMatchComplete(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SlotComplete(sess)
}

func (s *Server) handleMatchChangeMods(_ context.Context, sess *core.Session, r *packet.Reader) {
	mods := r.I32()
	if r.Err() != nil {
		return
	}
	if err := s.state.ChangeMods(sess, osu.Mods(mods)); err != nil {
		slog.Debug("mods change rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchLoadComplete(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SlotLoaded(sess)
}

func (s *Server) handleMatchFailed(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SlotFailed(sess)
}

func (s *Server) handleMatchSkipRequest(_ context.Context, sess *core.Session, _ *packet.Reader) {
	s.state.SkipRequest(sess)
}

func (s *Server) handleMatchTransferHost(_ context.Context, sess *core.Session, r *packet.Reader) {
	target := r.I32()
	if r.Err() != nil {
		return
	}
	if err := s.state.TransferHost(sess, int(target)); err != nil {
		slog.Debug("host transfer rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchChangeTeam(_ context.Context, sess *core.Session, _ *packet.Reader) {
	if err := s.state.ChangeTeam(sess); err != nil {
		slog.Debug("team change rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchChangePassword(_ context.Context, sess *core.Session, r *packet.Reader) {
	ms := r.Match()
	if r.Err() != nil {
		return
	}
	if err := s.state.ChangePassword(sess, ms.Password); err != nil {
		slog.Debug("password change rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleMatchInvite(_ context.Context, sess *core.Session, r *packet.Reader) {
	targetID := r.I32()
	if r.Err() != nil {
		return
	}
	target, ok := s.state.SessionByID(targetID)
	if !ok {
		return
	}
	if err := s.state.Invite(sess, target); err != nil {
		slog.Debug("invite rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleChannelJoin(_ context.Context, sess *core.Session, r *packet.Reader) {
	name := r.String()
	if r.Err() != nil {
		return
	}
	ch, ok := s.state.ResolveChannel(sess, name)
	if !ok {
		slog.Warn("join of unknown channel", "user_id", sess.ID, "channel", name)
		return
	}
	if err := s.state.JoinChannel(sess, ch); err != nil {
		slog.Warn("channel join rejected", "user_id", sess.ID, "channel", ch.Name, "err", err)
	}
}

func (s *Server) handleChannelPart(_ context.Context, sess *core.Session, r *packet.Reader) {
	name := r.String()
	if r.Err() != nil {
		return
	}
	ch, ok := s.state.ResolveChannel(sess, name)
	if !ok {
		return
	}
	s.state.PartChannel(sess, ch)
}

func (s *Server) handleFriendAdd(ctx context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	if r.Err() != nil || id == sess.ID || id == s.state.Bot.ID {
		return
	}
	if err := s.db.AddFriend(ctx, sess.ID, id); err != nil {
		slog.Error("friend add failed", "err", err)
		return
	}
	sess.AddFriend(id)
}

func (s *Server) handleFriendRemove(ctx context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	if r.Err() != nil {
		return
	}
	if err := s.db.RemoveFriend(ctx, sess.ID, id); err != nil {
		slog.Error("friend remove failed", "err", err)
		return
	}
	sess.RemoveFriend(id)
}

func (s *Server) handleReceiveUpdates(_ context.Context, _ *core.Session, r *packet.Reader) {
	r.I32() // presence filter; all updates are pushed regardless
}

func (s *Server) handleSetAwayMessage(_ context.Context, sess *core.Session, r *packet.Reader) {
	m := r.Message()
	if r.Err() != nil {
		return
	}
	sess.SetAwayMessage(m.Text)
	if m.Text == "" {
		sess.Enqueue(packet.WriteNotification("You are no longer marked as away."))
		return
	}
	sess.Enqueue(packet.WriteNotification("You are now marked as away: " + m.Text))
}

func (s *Server) handleUserStatsRequest(_ context.Context, sess *core.Session, r *packet.Reader) {
	ids := r.I32List()
	if r.Err() != nil {
		return
	}
	for _, id := range ids {
		if id == sess.ID {
			continue
		}
		if id == s.state.Bot.ID {
			sess.Enqueue(s.state.BotStatsPacket())
			continue
		}
		if other, ok := s.state.SessionByID(id); ok && !other.Restricted() {
			sess.Enqueue(other.StatsPacket())
		}
	}
}

func (s *Server) handleUserPresenceRequest(_ context.Context, sess *core.Session, r *packet.Reader) {
	ids := r.I32List()
	if r.Err() != nil {
		return
	}
	for _, id := range ids {
		if id == s.state.Bot.ID {
			sess.Enqueue(s.state.BotPresencePacket())
			continue
		}
		if other, ok := s.state.SessionByID(id); ok && !other.Restricted() {
			sess.Enqueue(other.PresencePacket())
		}
	}
}

func (s *Server) handleUserPresenceRequestAll(_ context.Context, sess *core.Session, _ *packet.Reader) {
	sess.Enqueue(s.state.BotPresencePacket())
	for _, other := range s.state.Sessions() {
		if other.ID == s.state.Bot.ID || other.Restricted() {
			continue
		}
		sess.Enqueue(other.PresencePacket())
	}
}

func (s *Server) handleToggleBlockDMs(_ context.Context, sess *core.Session, r *packet.Reader) {
	v := r.I32()
	if r.Err() != nil {
		return
	}
	sess.SetPMPrivate(v == 1)
}

func (s *Server) handleTourneyMatchInfo(_ context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	if r.Err() != nil || !sess.Tourney {
		return
	}
	if ms, ok := s.state.MatchSnapshot(int(id)); ok {
		sess.Enqueue(packet.WriteUpdateMatch(ms, false))
	}
}

func (s *Server) handleTourneyJoinChannel(_ context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	if r.Err() != nil || !sess.Tourney {
		return
	}
	if err := s.state.JoinMatchChannel(sess, int(id)); err != nil {
		slog.Debug("tourney channel join rejected", "user_id", sess.ID, "err", err)
	}
}

func (s *Server) handleTourneyPartChannel(_ context.Context, sess *core.Session, r *packet.Reader) {
	id := r.I32()
	if r.Err() != nil || !sess.Tourney {
		return
	}
	s.state.PartMatchChannel(sess, int(id))
}
