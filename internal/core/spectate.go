package core

import (
	"fmt"
	"log/slog"

	"bancho/server/internal/packet"
)

// StartSpectating attaches the session to a host's live play. The host
// is pulled into its own spectator channel when the first watcher
// arrives.
func (st *State) StartSpectating(s, host *Session) error {
	if s.ID == host.ID {
		return fmt.Errorf("cannot spectate yourself")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.Spectating == host {
		return nil
	}
	if s.Spectating != nil {
		st.stopSpectatingLocked(s)
	}

	chanName := fmt.Sprintf("#spec_%d", host.ID)
	c, ok := st.channels[chanName]
	if !ok {
		c = st.createInstanceChannelLocked(chanName, fmt.Sprintf("%s's spectator channel", host.Name))
		if err := st.joinChannelLocked(host, c); err != nil {
			return fmt.Errorf("host spectator channel: %w", err)
		}
	}
	if err := st.joinChannelLocked(s, c); err != nil {
		return err
	}

	// Existing watchers and the newcomer learn about each other.
	fellow := packet.WriteFellowSpectatorJoined(s.ID)
	for _, other := range host.Spectators {
		other.Enqueue(fellow)
		s.Enqueue(packet.WriteFellowSpectatorJoined(other.ID))
	}

	host.Spectators = append(host.Spectators, s)
	s.Spectating = host
	host.Enqueue(packet.WriteSpectatorJoined(s.ID))

	slog.Info("spectating started", "user_id", s.ID, "host_id", host.ID,
		"spectators", len(host.Spectators))
	return nil
}

// StopSpectating detaches the session from whoever it is watching.
func (st *State) StopSpectating(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopSpectatingLocked(s)
}

func (st *State) stopSpectatingLocked(s *Session) {
	host := s.Spectating
	if host == nil {
		return
	}
	s.Spectating = nil
	for i, sp := range host.Spectators {
		if sp.ID == s.ID {
			host.Spectators = append(host.Spectators[:i], host.Spectators[i+1:]...)
			break
		}
	}

	chanName := fmt.Sprintf("#spec_%d", host.ID)
	if c, ok := st.channels[chanName]; ok {
		st.leaveChannelLocked(s, c, true)
		if len(host.Spectators) == 0 {
			// Host parts too; the channel dies with them.
			st.leaveChannelLocked(host, c, true)
		}
	}

	host.Enqueue(packet.WriteSpectatorLeft(s.ID))
	frame := packet.WriteFellowSpectatorLeft(s.ID)
	for _, other := range host.Spectators {
		other.Enqueue(frame)
	}

	slog.Info("spectating stopped", "user_id", s.ID, "host_id", host.ID,
		"spectators", len(host.Spectators))
}

// BroadcastFrames relays a host's raw replay frame bundle to all of its
// watchers.
func (st *State) BroadcastFrames(host *Session, raw []byte) {
	st.mu.RLock()
	targets := append([]*Session(nil), host.Spectators...)
	st.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	frame := packet.WriteSpectateFrames(raw)
	for _, s := range targets {
		s.Enqueue(frame)
	}
}

// CantSpectate reports that a watcher lacks the host's current map; the
// host and fellow watchers see a placeholder panel.
func (st *State) CantSpectate(s *Session) {
	st.mu.RLock()
	host := s.Spectating
	var targets []*Session
	if host != nil {
		targets = append(targets, host)
		targets = append(targets, host.Spectators...)
	}
	st.mu.RUnlock()
	if host == nil {
		return
	}
	frame := packet.WriteSpectatorCantSpectate(s.ID)
	for _, t := range targets {
		if t.ID != s.ID {
			t.Enqueue(frame)
		}
	}
}
