// Package core holds the in-memory state of the online server: the
// session registry, chat channels, multiplayer matches and the fan-out
// helpers that keep every connected client's view current.
//
// Locking: State.mu guards all structural relations (session indexes,
// channel membership, match slots, spectator lists). Each Session
// additionally carries a leaf mutex for its own mutable data (outbound
// queue, status, stats). The leaf mutex is never held while acquiring
// State.mu.
package core

import (
	"sync"
	"sync/atomic"
	"time"

	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// Status is the client's self-reported activity panel.
type Status struct {
	Action   osu.Action
	InfoText string
	MapMD5   string
	Mods     osu.Mods
	Mode     osu.GameMode
	MapID    int32
}

// ModeStats is a session's cached aggregate stats in one mode, with the
// live global rank.
type ModeStats struct {
	store.ModeStats
	Rank int32
}

// NPContext remembers the last /np'd map so chat commands can act on it.
type NPContext struct {
	MapID   int32
	Mods    osu.Mods
	Mode    osu.GameMode
	Expires time.Time
}

// Session is one logged-in client.
type Session struct {
	// Immutable after login.
	ID        int32
	Name      string
	SafeName  string
	Token     string
	UTCOffset int8
	Tourney   bool
	LoginTime time.Time

	// Geolocation, set once during login.
	Country     string
	CountryCode uint8
	Lon, Lat    float32

	lastRecv atomic.Int64

	mu         sync.Mutex
	priv       osu.Privileges
	silenceEnd int64
	queue      []byte
	status     Status
	stats      [osu.ModeCount]ModeStats
	friends    map[int32]struct{}
	blocks     map[int32]struct{}
	awayMsg    string
	lastNP     *NPContext
	menu       map[int32]MenuOption
	pmPrivate  bool

	// Structural fields, guarded by State.mu.
	Match      *Match
	Spectating *Session
	Spectators []*Session
	channels   map[string]*Channel
	InLobby    bool
}

// MenuOption is a clickable chat-embed action. The client "joins" match
// id Target to trigger it.
type MenuOption struct {
	Target  int32
	Name    string
	Handler func(*Session)
}

// NewSession builds a bare session; the login path fills in location,
// privileges, stats and friends before registering it.
func NewSession(id int32, name, token string) *Session {
	return newSession(id, name, token)
}

func newSession(id int32, name, token string) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		SafeName:  store.SafeName(name),
		Token:     token,
		LoginTime: time.Now(),
		friends:   make(map[int32]struct{}),
		blocks:    make(map[int32]struct{}),
		channels:  make(map[string]*Channel),
		menu:      make(map[int32]MenuOption),
	}
}

// Enqueue appends encoded frames to the session's outbound buffer. They
// are flushed on the client's next poll.
func (s *Session) Enqueue(frames ...[]byte) {
	s.mu.Lock()
	for _, f := range frames {
		s.queue = append(s.queue, f...)
	}
	s.mu.Unlock()
}

// Dequeue swaps the outbound buffer out and returns it.
func (s *Session) Dequeue() []byte {
	s.mu.Lock()
	out := s.queue
	s.queue = nil
	s.mu.Unlock()
	return out
}

// QueueEmpty reports whether anything is waiting to flush.
func (s *Session) QueueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0
}

// TouchRecv records packet activity for the inactivity sweeper.
func (s *Session) TouchRecv(now time.Time) {
	s.lastRecv.Store(now.Unix())
}

// LastRecv is the unix time of the last client packet.
func (s *Session) LastRecv() int64 { return s.lastRecv.Load() }

// Priv returns the session's privilege bitset.
func (s *Session) Priv() osu.Privileges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priv
}

// SetPriv replaces the privilege bitset.
func (s *Session) SetPriv(p osu.Privileges) {
	s.mu.Lock()
	s.priv = p
	s.mu.Unlock()
}

// Restricted reports whether the account is restricted (invisible to
// other players, no leaderboard presence).
func (s *Session) Restricted() bool {
	return s.Priv()&osu.PrivUnrestricted == 0
}

// SilenceRemaining returns the seconds left on an active silence, or 0.
func (s *Session) SilenceRemaining(now time.Time) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem := s.silenceEnd - now.Unix(); rem > 0 {
		return int32(rem)
	}
	return 0
}

// SetSilenceEnd sets the unix time the silence lifts.
func (s *Session) SetSilenceEnd(end int64) {
	s.mu.Lock()
	s.silenceEnd = end
	s.mu.Unlock()
}

// Status returns a copy of the current activity panel.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus replaces the activity panel.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Stats returns the cached stats for one mode.
func (s *Session) Stats(mode osu.GameMode) ModeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[mode]
}

// SetStats replaces the cached stats for one mode.
func (s *Session) SetStats(mode osu.GameMode, st ModeStats) {
	s.mu.Lock()
	s.stats[mode] = st
	s.mu.Unlock()
}

// SetAllStats installs the login-time stats snapshot.
func (s *Session) SetAllStats(st [osu.ModeCount]ModeStats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// Friends returns the ids the session follows (including itself, so
// presence filters keep the player visible to themselves).
func (s *Session) Friends() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int32, 0, len(s.friends))
	for id := range s.friends {
		out = append(out, id)
	}
	return out
}

// IsFriend reports whether the session follows the id.
func (s *Session) IsFriend(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.friends[id]
	return ok
}

// SetFriends installs the login-time friends list.
func (s *Session) SetFriends(ids []int32) {
	s.mu.Lock()
	s.friends = make(map[int32]struct{}, len(ids)+1)
	s.friends[s.ID] = struct{}{}
	for _, id := range ids {
		s.friends[id] = struct{}{}
	}
	s.mu.Unlock()
}

// AddFriend records a follow in the live set. A follow lifts any block
// on the same id; the two sets never overlap.
func (s *Session) AddFriend(id int32) {
	s.mu.Lock()
	s.friends[id] = struct{}{}
	delete(s.blocks, id)
	s.mu.Unlock()
}

// RemoveFriend drops a follow from the live set.
func (s *Session) RemoveFriend(id int32) {
	s.mu.Lock()
	delete(s.friends, id)
	s.mu.Unlock()
}

// SetBlocks installs the login-time block list. Blocked ids are evicted
// from the friends set so the two stay disjoint.
func (s *Session) SetBlocks(ids []int32) {
	s.mu.Lock()
	s.blocks = make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		s.blocks[id] = struct{}{}
		delete(s.friends, id)
	}
	s.mu.Unlock()
}

// IsBlocked reports whether the session blocks the id.
func (s *Session) IsBlocked(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[id]
	return ok
}

// AddBlock records a block in the live set and drops any follow.
func (s *Session) AddBlock(id int32) {
	s.mu.Lock()
	s.blocks[id] = struct{}{}
	delete(s.friends, id)
	s.mu.Unlock()
}

// RemoveBlock lifts a block from the live set.
func (s *Session) RemoveBlock(id int32) {
	s.mu.Lock()
	delete(s.blocks, id)
	s.mu.Unlock()
}

// SetLocation installs the geolocation result from login.
func (s *Session) SetLocation(country string, lat, lon float32) {
	s.Country = country
	s.CountryCode = countryCode(country)
	s.Lat = lat
	s.Lon = lon
}

// PMPrivate reports whether the player blocks DMs from non-friends.
func (s *Session) PMPrivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pmPrivate
}

// SetPMPrivate flips the non-friend DM block.
func (s *Session) SetPMPrivate(v bool) {
	s.mu.Lock()
	s.pmPrivate = v
	s.mu.Unlock()
}

// AwayMessage returns the away auto-reply, if set.
func (s *Session) AwayMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awayMsg
}

// SetAwayMessage sets or clears the away auto-reply.
func (s *Session) SetAwayMessage(msg string) {
	s.mu.Lock()
	s.awayMsg = msg
	s.mu.Unlock()
}

// LastNP returns the last /np context if it has not expired.
func (s *Session) LastNP(now time.Time) *NPContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastNP == nil || now.After(s.lastNP.Expires) {
		return nil
	}
	np := *s.lastNP
	return &np
}

// SetLastNP remembers a /np context.
func (s *Session) SetLastNP(np NPContext) {
	s.mu.Lock()
	s.lastNP = &np
	s.mu.Unlock()
}

// AddMenuOption registers a clickable chat action and returns its
// target id (>= 64, clear of real match ids).
func (s *Session) AddMenuOption(opt MenuOption) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int32(64 + len(s.menu))
	for {
		if _, taken := s.menu[id]; !taken {
			break
		}
		id++
	}
	opt.Target = id
	s.menu[id] = opt
	return id
}

// TakeMenuOption pops the menu option for a target id, if registered.
func (s *Session) TakeMenuOption(target int32) (MenuOption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opt, ok := s.menu[target]
	if ok {
		delete(s.menu, target)
	}
	return opt, ok
}

// PresencePacket builds the session's presence frame.
func (s *Session) PresencePacket() []byte {
	s.mu.Lock()
	priv := s.priv
	mode := s.status.Mode
	rank := s.stats[mode].Rank
	s.mu.Unlock()
	return packet.WriteUserPresence(packet.UserPresence{
		UserID:      s.ID,
		Name:        s.Name,
		UTCOffset:   s.UTCOffset,
		CountryCode: s.CountryCode,
		ClientPrivs: priv.ToClient(),
		Mode:        mode.AsVanilla(),
		Longitude:   s.Lon,
		Latitude:    s.Lat,
		GlobalRank:  rank,
	})
}

// StatsPacket builds the session's stats frame.
func (s *Session) StatsPacket() []byte {
	s.mu.Lock()
	st := s.status
	ms := s.stats[st.Mode]
	s.mu.Unlock()

	pp := ms.PP
	rankedScore := ms.RankedScore
	// The osu! client's pp field is a u16; overflow spills into the
	// score field so enormous values still render.
	if pp > 0x7fff {
		rankedScore = int64(pp)
		pp = 0
	}
	return packet.WriteUserStats(packet.UserStats{
		UserID:      s.ID,
		Action:      st.Action,
		InfoText:    st.InfoText,
		MapMD5:      st.MapMD5,
		Mods:        st.Mods,
		Mode:        st.Mode.AsVanilla(),
		MapID:       st.MapID,
		RankedScore: rankedScore,
		Accuracy:    float32(ms.Acc / 100),
		Plays:       ms.Plays,
		TotalScore:  ms.TotalScore,
		GlobalRank:  ms.Rank,
		PP:          uint16(pp),
	})
}

// ChannelNames returns the names of the channels the session is in.
// Caller must hold State.mu.
func (s *Session) channelNamesLocked() []string {
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	return out
}
