package core

import (
	"fmt"
	"log/slog"
	"strings"

	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// Channel is one chat channel. Membership is guarded by State.mu; the
// rest is immutable after creation.
type Channel struct {
	Name      string // real name, e.g. "#osu" or "#spec_1001"
	Topic     string
	ReadPriv  osu.Privileges
	WritePriv osu.Privileges
	AutoJoin  bool
	Instance  bool // per-spectator/per-match channel, dies when empty

	members map[int32]*Session
}

// DisplayName is what the client sees. Instanced channels all present
// under one generic name.
func (c *Channel) DisplayName() string {
	switch {
	case strings.HasPrefix(c.Name, "#spec_"):
		return "#spectator"
	case strings.HasPrefix(c.Name, "#multi_"):
		return "#multiplayer"
	default:
		return c.Name
	}
}

// CanRead reports whether the privileges may see and join the channel.
func (c *Channel) CanRead(p osu.Privileges) bool {
	if c.ReadPriv == 0 {
		return true
	}
	return p&c.ReadPriv != 0
}

// CanWrite reports whether the privileges may send to the channel.
func (c *Channel) CanWrite(p osu.Privileges) bool {
	if c.WritePriv == 0 {
		return true
	}
	return p&c.WritePriv != 0
}

// MemberCount returns the number of joined sessions.
func (c *Channel) MemberCount() int {
	return len(c.members)
}

func (c *Channel) infoPacket() []byte {
	return packet.WriteChannelInfo(packet.Channel{
		Name:    c.DisplayName(),
		Topic:   c.Topic,
		Players: uint16(len(c.members)),
	})
}

// SeedChannels installs the persisted channel definitions.
func (st *State) SeedChannels(rows []store.ChannelRow) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, r := range rows {
		st.channels[r.Name] = &Channel{
			Name:      r.Name,
			Topic:     r.Topic,
			ReadPriv:  r.ReadPriv,
			WritePriv: r.WritePriv,
			AutoJoin:  r.AutoJoin,
			members:   make(map[int32]*Session),
		}
	}
	slog.Info("channels seeded", "count", len(rows))
}

// ChannelByName resolves a channel by its real name.
func (st *State) ChannelByName(name string) (*Channel, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := st.channels[name]
	return c, ok
}

// PublicChannels returns the non-instanced channels the privileges may
// read, for the login channel listing.
func (st *State) PublicChannels(p osu.Privileges) []*Channel {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*Channel
	for _, c := range st.channels {
		if !c.Instance && c.CanRead(p) {
			out = append(out, c)
		}
	}
	return out
}

func (st *State) createInstanceChannelLocked(name, topic string) *Channel {
	c := &Channel{
		Name:     name,
		Topic:    topic,
		Instance: true,
		members:  make(map[int32]*Session),
	}
	st.channels[name] = c
	return c
}

// JoinChannel adds the session to a channel, running the read gates.
func (st *State) JoinChannel(s *Session, c *Channel) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.joinChannelLocked(s, c)
}

func (st *State) joinChannelLocked(s *Session, c *Channel) error {
	if _, ok := s.channels[c.Name]; ok {
		return fmt.Errorf("already in %s", c.Name)
	}
	if !c.CanRead(s.Priv()) {
		return fmt.Errorf("insufficient privileges for %s", c.Name)
	}
	if c.Name == "#lobby" && !s.InLobby && !s.Tourney {
		return fmt.Errorf("%s requires being in the lobby", c.Name)
	}

	c.members[s.ID] = s
	s.channels[c.Name] = c

	s.Enqueue(packet.WriteChannelJoinSuccess(c.DisplayName()))
	st.publishChannelInfoLocked(c)
	slog.Debug("channel joined", "user_id", s.ID, "channel", c.Name, "members", len(c.members))
	return nil
}

// LeaveChannel removes the session from a channel. Instanced channels
// are destroyed when the last member parts.
func (st *State) LeaveChannel(s *Session, c *Channel) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.leaveChannelLocked(s, c, true)
}

func (st *State) leaveChannelLocked(s *Session, c *Channel, kick bool) {
	if _, ok := s.channels[c.Name]; !ok {
		return
	}
	delete(c.members, s.ID)
	delete(s.channels, c.Name)
	if kick {
		s.Enqueue(packet.WriteChannelKick(c.DisplayName()))
	}

	if c.Instance && len(c.members) == 0 {
		delete(st.channels, c.Name)
		slog.Debug("instance channel destroyed", "channel", c.Name)
		return
	}
	st.publishChannelInfoLocked(c)
}

// publishChannelInfoLocked refreshes the channel's member count on
// every client that can see it.
func (st *State) publishChannelInfoLocked(c *Channel) {
	frame := c.infoPacket()
	if c.Instance {
		for _, m := range c.members {
			m.Enqueue(frame)
		}
		return
	}
	for _, s := range st.byToken {
		if c.CanRead(s.Priv()) {
			s.Enqueue(frame)
		}
	}
}

// SendToChannel enqueues a chat message to every member except the
// sender. The write gate must already have passed.
func (st *State) SendToChannel(c *Channel, msg packet.Message, except *Session) {
	frame := packet.WriteSendMessage(msg)
	st.mu.RLock()
	targets := make([]*Session, 0, len(c.members))
	for _, m := range c.members {
		if except == nil || m.ID != except.ID {
			targets = append(targets, m)
		}
	}
	st.mu.RUnlock()
	for _, m := range targets {
		m.Enqueue(frame)
	}
}

// Announce posts a server message to #announce as the bot, echoing to
// every member including any sender.
func (st *State) Announce(text string) {
	c, ok := st.ChannelByName("#announce")
	if !ok {
		return
	}
	st.SendToChannel(c, packet.Message{
		Sender:    st.Bot.Name,
		Text:      text,
		Recipient: c.DisplayName(),
		SenderID:  st.Bot.ID,
	}, nil)
}

// ResolveChannel maps a client-facing channel name to the channel the
// session actually means: "#multiplayer" is its match channel and
// "#spectator" the channel of whoever it is watching (or its own, when
// hosting).
func (st *State) ResolveChannel(s *Session, name string) (*Channel, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	switch name {
	case "#multiplayer":
		if s.Match == nil {
			return nil, false
		}
		return s.Match.Chat, true
	case "#spectator":
		hostID := s.ID
		if s.Spectating != nil {
			hostID = s.Spectating.ID
		}
		c, ok := st.channels[fmt.Sprintf("#spec_%d", hostID)]
		return c, ok
	default:
		c, ok := st.channels[name]
		return c, ok
	}
}

// SendAsBot posts to a channel as the bot, reaching every member.
func (st *State) SendAsBot(c *Channel, text string) {
	st.SendToChannel(c, packet.Message{
		Sender:    st.Bot.Name,
		Text:      text,
		Recipient: c.DisplayName(),
		SenderID:  st.Bot.ID,
	}, nil)
}

// PartChannel removes the session at its own request. No kick frame is
// sent since the client already considers itself gone.
func (st *State) PartChannel(s *Session, c *Channel) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.leaveChannelLocked(s, c, false)
}
