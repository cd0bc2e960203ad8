package core

import (
	"fmt"
	"log/slog"
	"time"

	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// ghostIdle is how long a same-name session must have been silent
// before a new login may silently reclaim the account.
const ghostIdle = 10 * time.Second

// AddSession registers a logged-in session in all indexes.
func (st *State) AddSession(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.byToken[s.Token]; ok {
		return fmt.Errorf("session token already registered")
	}
	if _, ok := st.byID[s.ID]; ok {
		return fmt.Errorf("user %d already online", s.ID)
	}
	st.byToken[s.Token] = s
	st.byID[s.ID] = s
	st.byName[s.SafeName] = s

	slog.Info("session added", "user_id", s.ID, "name", s.Name, "online", len(st.byToken))
	return nil
}

// SessionByToken resolves the osu-token header.
func (st *State) SessionByToken(token string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byToken[token]
	return s, ok
}

// SessionByID resolves a user id. The bot is resolvable.
func (st *State) SessionByID(id int32) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	return s, ok
}

// SessionByName resolves a display or safe name. The bot is resolvable.
func (st *State) SessionByName(name string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byName[store.SafeName(name)]
	return s, ok
}

// Sessions returns a snapshot of every online session, bot included.
func (st *State) Sessions() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.byID))
	for _, s := range st.byID {
		out = append(out, s)
	}
	return out
}

// SessionCount is the number of polling clients (bot excluded).
func (st *State) SessionCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byToken)
}

// Broadcast enqueues frames to every polling session.
func (st *State) Broadcast(frames ...[]byte) {
	for _, s := range st.pollingSessions() {
		s.Enqueue(frames...)
	}
}

// BroadcastToLobby enqueues frames to sessions sitting in the lobby.
func (st *State) BroadcastToLobby(frames ...[]byte) {
	st.mu.RLock()
	targets := make([]*Session, 0, 8)
	for _, s := range st.byToken {
		if s.InLobby {
			targets = append(targets, s)
		}
	}
	st.mu.RUnlock()
	for _, s := range targets {
		s.Enqueue(frames...)
	}
}

func (st *State) pollingSessions() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.byToken))
	for _, s := range st.byToken {
		out = append(out, s)
	}
	return out
}

// BroadcastStats fans the session's stats panel out to everyone. A
// restricted player's panel only reaches themselves.
func (st *State) BroadcastStats(s *Session) {
	frame := s.StatsPacket()
	if s.Restricted() {
		s.Enqueue(frame)
		return
	}
	st.Broadcast(frame)
}

// BroadcastPresence fans the session's presence out to everyone.
// Restricted players stay invisible.
func (st *State) BroadcastPresence(s *Session) {
	if s.Restricted() {
		s.Enqueue(s.PresencePacket())
		return
	}
	st.Broadcast(s.PresencePacket())
}

// EvictGhost drops a lingering same-name session if it has been silent
// long enough for the login path to reclaim the account. Returns false
// when the existing session is still live (the new login must be
// rejected instead).
func (st *State) EvictGhost(safeName string, now time.Time) bool {
	st.mu.RLock()
	old, ok := st.byName[safeName]
	st.mu.RUnlock()
	if !ok || old == st.Bot {
		return true
	}
	if now.Unix()-old.LastRecv() <= int64(ghostIdle/time.Second) {
		return false
	}
	slog.Info("evicting ghost session", "user_id", old.ID, "name", old.Name)
	st.RemoveSession(old)
	return true
}

// RemoveSession logs a session out: leaves its match, stops all
// spectating relations, parts every channel, drops the indexes and
// broadcasts the logout. Idempotent.
func (st *State) RemoveSession(s *Session) {
	st.mu.Lock()
	if _, ok := st.byToken[s.Token]; !ok {
		st.mu.Unlock()
		return
	}

	if s.Match != nil {
		st.leaveMatchLocked(s)
	}
	if s.Spectating != nil {
		st.stopSpectatingLocked(s)
	}
	for _, sp := range append([]*Session(nil), s.Spectators...) {
		st.stopSpectatingLocked(sp)
	}
	for _, name := range s.channelNamesLocked() {
		if c, ok := st.channels[name]; ok {
			st.leaveChannelLocked(s, c, false)
		}
	}
	s.InLobby = false

	delete(st.byToken, s.Token)
	delete(st.byID, s.ID)
	if st.byName[s.SafeName] == s {
		delete(st.byName, s.SafeName)
	}
	remaining := len(st.byToken)
	st.mu.Unlock()

	if !s.Restricted() {
		st.Broadcast(packet.WriteLogout(s.ID))
	}
	slog.Info("session removed", "user_id", s.ID, "name", s.Name, "online", remaining)
}

// SweepInactive drops sessions that have not sent a packet within the
// ping timeout. Players mid-multiplayer-game are spared; their client
// is busy, not gone.
func (st *State) SweepInactive(now time.Time) int {
	cutoff := now.Add(-PingTimeout).Unix()

	st.mu.RLock()
	var stale []*Session
	for _, s := range st.byToken {
		if s.LastRecv() >= cutoff {
			continue
		}
		if m := s.Match; m != nil && m.InProgress {
			continue
		}
		stale = append(stale, s)
	}
	st.mu.RUnlock()

	for _, s := range stale {
		slog.Info("sweeping inactive session", "user_id", s.ID, "name", s.Name,
			"idle_s", now.Unix()-s.LastRecv())
		st.RemoveSession(s)
	}
	return len(stale)
}

// SetLobby flips the session's lobby-view flag.
func (st *State) SetLobby(s *Session, in bool) {
	st.mu.Lock()
	s.InLobby = in
	st.mu.Unlock()
}
