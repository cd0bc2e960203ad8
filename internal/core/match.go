package core

import (
	"fmt"
	"log/slog"
	"time"

	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// MatchSlots is the fixed slot count of a multiplayer room.
const MatchSlots = 16

// Start-timer bounds. Durations outside (0, MaxTimerSeconds] are
// rejected outright.
const MaxTimerSeconds = 300

// Slot is one seat in a multiplayer room. Guarded by State.mu.
type Slot struct {
	Session *Session
	Status  osu.SlotStatus
	Team    osu.MatchTeam
	Mods    osu.Mods

	Loaded  bool
	Skipped bool
	Failed  bool

	// Last live score frame, for scrim point resolution.
	LastFrame packet.ScoreFrame
}

func (sl *Slot) reset() {
	*sl = Slot{Status: osu.SlotOpen}
}

// Empty reports whether the slot can take a player.
func (sl *Slot) Empty() bool {
	return sl.Status == osu.SlotOpen
}

// Occupied reports whether a player sits in the slot.
func (sl *Slot) Occupied() bool {
	return sl.Status&osu.SlotHasPlayer != 0 && sl.Session != nil
}

// Match is one multiplayer room. All fields are guarded by State.mu.
type Match struct {
	ID     uint16
	Name   string
	Passwd string

	Host *Session
	// Referees beyond the host (tourney clients, !mp addref).
	Refs map[int32]struct{}

	MapName string
	MapID   int32
	MapMD5  string
	// Remembered while the host browses for a new map.
	prevMapID int32

	Mode         uint8
	Mods         osu.Mods
	Freemods     bool
	WinCondition osu.WinCondition
	TeamType     osu.TeamType
	InProgress   bool
	Seed         int32

	Slots [MatchSlots]Slot
	Chat  *Channel

	// Scrim overlay.
	Scrimming bool
	BestOf    int
	Points    map[string]int // winner label → points
	Winners   []string       // per-game winner labels, "" for a draw

	// Mappool overlay.
	Pool *store.TourneyPool
	Bans map[poolPick]struct{}

	timer    *time.Timer
	timerGen uint64
}

type poolPick struct {
	Mods osu.Mods
	Slot int
}

// snapshotLocked builds the wire state. Caller holds State.mu.
func (m *Match) snapshotLocked() packet.MatchState {
	ms := packet.MatchState{
		ID:           m.ID,
		InProgress:   m.InProgress,
		Mods:         m.Mods,
		Name:         m.Name,
		Password:     m.Passwd,
		MapName:      m.MapName,
		MapID:        m.MapID,
		MapMD5:       m.MapMD5,
		HostID:       m.Host.ID,
		Mode:         m.Mode,
		WinCondition: m.WinCondition,
		TeamType:     m.TeamType,
		Freemods:     m.Freemods,
		Seed:         m.Seed,
	}
	for i := range m.Slots {
		sl := &m.Slots[i]
		ms.SlotStatus[i] = sl.Status
		ms.SlotTeam[i] = sl.Team
		ms.SlotMods[i] = sl.Mods
		if sl.Occupied() {
			ms.SlotUserID[i] = sl.Session.ID
		}
	}
	return ms
}

// slotOf returns the session's slot index, or -1.
func (m *Match) slotOf(s *Session) int {
	for i := range m.Slots {
		if m.Slots[i].Session != nil && m.Slots[i].Session.ID == s.ID {
			return i
		}
	}
	return -1
}

// isRef reports whether the session may run privileged room actions.
func (m *Match) isRef(s *Session) bool {
	if s.ID == m.Host.ID {
		return true
	}
	_, ok := m.Refs[s.ID]
	return ok
}

func (m *Match) chatName() string { return fmt.Sprintf("#multi_%d", m.ID) }

// enqueueMembersLocked sends frames to every player in the room.
func (m *Match) enqueueMembersLocked(frames ...[]byte) {
	for i := range m.Slots {
		if m.Slots[i].Occupied() {
			m.Slots[i].Session.Enqueue(frames...)
		}
	}
}

// enqueuePlayingLocked sends frames to slots currently in the game.
func (m *Match) enqueuePlayingLocked(frames ...[]byte) {
	for i := range m.Slots {
		if m.Slots[i].Status == osu.SlotPlaying && m.Slots[i].Session != nil {
			m.Slots[i].Session.Enqueue(frames...)
		}
	}
}

// publishStateLocked fans the room state out: members get the password,
// the lobby gets a redacted snapshot.
func (st *State) publishStateLocked(m *Match) {
	ms := m.snapshotLocked()
	m.enqueueMembersLocked(packet.WriteUpdateMatch(ms, true))
	redacted := packet.WriteUpdateMatch(ms, false)
	for _, s := range st.byToken {
		if s.InLobby {
			s.Enqueue(redacted)
		}
	}
}

// CreateMatch opens a room with the host in slot 0.
func (st *State) CreateMatch(host *Session, ms packet.MatchState) (*Match, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if host.Match != nil {
		return nil, fmt.Errorf("already in a match")
	}
	id := -1
	for i := range st.matches {
		if st.matches[i] == nil {
			id = i
			break
		}
	}
	if id == -1 {
		return nil, fmt.Errorf("no free match slots")
	}

	m := &Match{
		ID:           uint16(id),
		Name:         ms.Name,
		Passwd:       ms.Password,
		Host:         host,
		Refs:         make(map[int32]struct{}),
		MapName:      ms.MapName,
		MapID:        ms.MapID,
		MapMD5:       ms.MapMD5,
		Mode:         ms.Mode,
		Mods:         ms.Mods,
		Freemods:     ms.Freemods,
		WinCondition: ms.WinCondition,
		TeamType:     ms.TeamType,
		Seed:         ms.Seed,
		Points:       make(map[string]int),
		Bans:         make(map[poolPick]struct{}),
	}
	for i := range m.Slots {
		m.Slots[i].reset()
	}
	st.matches[id] = m

	m.Chat = st.createInstanceChannelLocked(m.chatName(), "Multiplayer room discussion.")
	if err := st.joinChannelLocked(host, m.Chat); err != nil {
		delete(st.channels, m.Chat.Name)
		st.matches[id] = nil
		return nil, err
	}

	m.Slots[0].Session = host
	m.Slots[0].Status = osu.SlotNotReady
	host.Match = m

	host.Enqueue(packet.WriteMatchJoinSuccess(m.snapshotLocked()))
	st.broadcastToLobbyLocked(packet.WriteNewMatch(m.snapshotLocked(), false))
	slog.Info("match created", "match_id", m.ID, "name", m.Name, "host_id", host.ID)
	return m, nil
}

func (st *State) broadcastToLobbyLocked(frames ...[]byte) {
	for _, s := range st.byToken {
		if s.InLobby {
			s.Enqueue(frames...)
		}
	}
}

// MatchByID resolves an open room.
func (st *State) MatchByID(id int) (*Match, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || id >= MaxMatches || st.matches[id] == nil {
		return nil, false
	}
	return st.matches[id], true
}

// Matches returns the open rooms, for the lobby listing.
func (st *State) Matches() []*Match {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*Match
	for _, m := range st.matches {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// LobbySnapshots returns redacted new-match frames for every open room.
func (st *State) LobbySnapshots() [][]byte {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out [][]byte
	for _, m := range st.matches {
		if m != nil {
			out = append(out, packet.WriteNewMatch(m.snapshotLocked(), false))
		}
	}
	return out
}

// JoinMatch seats a session in a room, password checked.
func (st *State) JoinMatch(s *Session, id int, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if id < 0 || id >= MaxMatches || st.matches[id] == nil {
		return fmt.Errorf("no such match")
	}
	m := st.matches[id]
	if s.Match != nil {
		return fmt.Errorf("already in a match")
	}
	// Tourney manager clients slip past the password.
	if m.Passwd != "" && passwd != m.Passwd && !s.Tourney {
		return fmt.Errorf("wrong password")
	}

	slot := -1
	for i := range m.Slots {
		if m.Slots[i].Empty() {
			slot = i
			break
		}
	}
	if slot == -1 {
		return fmt.Errorf("match is full")
	}

	if err := st.joinChannelLocked(s, m.Chat); err != nil {
		return err
	}
	m.Slots[slot].Session = s
	m.Slots[slot].Status = osu.SlotNotReady
	if m.TeamType.Teamed() {
		m.Slots[slot].Team = osu.TeamRed
	}
	s.Match = m

	s.Enqueue(packet.WriteMatchJoinSuccess(m.snapshotLocked()))
	st.publishStateLocked(m)
	slog.Info("match joined", "match_id", m.ID, "user_id", s.ID, "slot", slot)
	return nil
}

// LeaveMatch removes the session from its room. The last player out
// disposes the room; a departing host hands the room over first.
func (st *State) LeaveMatch(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.leaveMatchLocked(s)
}

func (st *State) leaveMatchLocked(s *Session) {
	m := s.Match
	if m == nil {
		return
	}
	if i := m.slotOf(s); i != -1 {
		m.Slots[i].reset()
	}
	s.Match = nil
	st.leaveChannelLocked(s, m.Chat, true)

	occupied := 0
	var first *Session
	for i := range m.Slots {
		if m.Slots[i].Occupied() {
			occupied++
			if first == nil {
				first = m.Slots[i].Session
			}
		}
	}

	if occupied == 0 {
		st.disposeMatchLocked(m)
		return
	}
	if m.Host.ID == s.ID {
		m.Host = first
		first.Enqueue(packet.WriteMatchTransferHost())
		slog.Info("match host transferred", "match_id", m.ID, "new_host_id", first.ID)
	}
	st.publishStateLocked(m)
}

func (st *State) disposeMatchLocked(m *Match) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.timerGen++
	}
	st.matches[m.ID] = nil
	st.broadcastToLobbyLocked(packet.WriteDisposeMatch(int32(m.ID)))
	slog.Info("match disposed", "match_id", m.ID, "name", m.Name)
}

// ChangeSlot moves the session to an open slot.
func (st *State) ChangeSlot(s *Session, target int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil {
		return fmt.Errorf("not in a match")
	}
	if target < 0 || target >= MatchSlots {
		return fmt.Errorf("slot out of range")
	}
	if !m.Slots[target].Empty() {
		return fmt.Errorf("slot not open")
	}
	cur := m.slotOf(s)
	if cur == -1 || cur == target {
		return nil
	}
	m.Slots[target] = m.Slots[cur]
	m.Slots[cur].reset()
	st.publishStateLocked(m)
	return nil
}

// SetSlotStatus flips the session's ready/no-map style status.
func (st *State) SetSlotStatus(s *Session, status osu.SlotStatus) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil {
		return
	}
	if i := m.slotOf(s); i != -1 {
		m.Slots[i].Status = status
		st.publishStateLocked(m)
	}
}

// LockSlot toggles a slot between open and locked (host only). Locking
// an occupied slot ejects the occupant from the room.
func (st *State) LockSlot(s *Session, target int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if target < 0 || target >= MatchSlots {
		return fmt.Errorf("slot out of range")
	}
	sl := &m.Slots[target]
	if sl.Session != nil && sl.Session.ID == m.Host.ID {
		return nil // the host cannot lock themselves out
	}
	if sl.Status == osu.SlotLocked {
		sl.Status = osu.SlotOpen
	} else {
		if sl.Occupied() {
			victim := sl.Session
			sl.reset()
			sl.Status = osu.SlotLocked
			victim.Match = nil
			st.leaveChannelLocked(victim, m.Chat, true)
			victim.Enqueue(packet.WriteMatchJoinFail())
			st.publishStateLocked(m)
			return nil
		}
		sl.Status = osu.SlotLocked
	}
	st.publishStateLocked(m)
	return nil
}

// ChangeSettings applies a host's settings frame: name, map, win
// condition, team type and the freemod switch, with their knock-on
// resets.
func (st *State) ChangeSettings(s *Session, ns packet.MatchState) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}

	if ns.Freemods != m.Freemods {
		if ns.Freemods {
			// Everyone inherits the room's non-speed mods; the room
			// keeps only the shared speed mods.
			for i := range m.Slots {
				if m.Slots[i].Occupied() {
					m.Slots[i].Mods = m.Mods &^ osu.SpeedChangingMods
				}
			}
			m.Mods &= osu.SpeedChangingMods
		} else {
			// The host's slot mods fold back into the room.
			if hi := m.slotOf(m.Host); hi != -1 {
				m.Mods = m.Mods&osu.SpeedChangingMods | m.Slots[hi].Mods
			}
			for i := range m.Slots {
				m.Slots[i].Mods = 0
			}
		}
		m.Freemods = ns.Freemods
	}

	if ns.MapID == -1 {
		// Host is browsing; remember what was up.
		if m.MapID != -1 {
			m.prevMapID = m.MapID
		}
		m.MapID = -1
		m.MapName = ""
		m.MapMD5 = ""
		m.unreadyLocked(osu.SlotReady)
	} else if ns.MapMD5 != m.MapMD5 {
		m.MapID = ns.MapID
		m.MapName = ns.MapName
		m.MapMD5 = ns.MapMD5
		m.Mode = ns.Mode
		m.unreadyLocked(osu.SlotReady)
	}

	if ns.TeamType != m.TeamType {
		if m.Scrimming {
			return fmt.Errorf("cannot change team type mid-scrim")
		}
		var team osu.MatchTeam
		if ns.TeamType.Teamed() {
			team = osu.TeamRed
		}
		for i := range m.Slots {
			if m.Slots[i].Occupied() {
				m.Slots[i].Team = team
			}
		}
		m.TeamType = ns.TeamType
	}

	if ns.WinCondition != m.WinCondition && !m.Scrimming {
		m.WinCondition = ns.WinCondition
	}

	if ns.Name != "" {
		m.Name = ns.Name
	}

	st.publishStateLocked(m)
	return nil
}

// unreadyLocked knocks slots with the given status back to not-ready.
func (m *Match) unreadyLocked(from osu.SlotStatus) {
	for i := range m.Slots {
		if m.Slots[i].Status == from {
			m.Slots[i].Status = osu.SlotNotReady
		}
	}
}

// ChangeMods applies a mods frame under the freemod rules.
func (st *State) ChangeMods(s *Session, mods osu.Mods) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil {
		return fmt.Errorf("not in a match")
	}
	if m.Freemods {
		if s.ID == m.Host.ID {
			// Host picks the shared speed mods for the room.
			m.Mods = mods & osu.SpeedChangingMods
		}
		if i := m.slotOf(s); i != -1 {
			m.Slots[i].Mods = mods &^ osu.SpeedChangingMods
		}
	} else {
		if !m.isRef(s) {
			return fmt.Errorf("not the host")
		}
		m.Mods = mods
	}
	st.publishStateLocked(m)
	return nil
}

// ChangeTeam flips the session between red and blue in team modes.
func (st *State) ChangeTeam(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil {
		return fmt.Errorf("not in a match")
	}
	if !m.TeamType.Teamed() {
		return fmt.Errorf("not a team mode")
	}
	if i := m.slotOf(s); i != -1 {
		if m.Slots[i].Team == osu.TeamBlue {
			m.Slots[i].Team = osu.TeamRed
		} else {
			m.Slots[i].Team = osu.TeamBlue
		}
		st.publishStateLocked(m)
	}
	return nil
}

// ChangePassword replaces the room password (host only).
func (st *State) ChangePassword(s *Session, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	m.Passwd = passwd
	m.enqueueMembersLocked(packet.WriteMatchChangePassword(passwd))
	st.publishStateLocked(m)
	return nil
}

// TransferHost hands the room to the player in the target slot.
func (st *State) TransferHost(s *Session, target int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if target < 0 || target >= MatchSlots || !m.Slots[target].Occupied() {
		return fmt.Errorf("no player in slot")
	}
	m.Host = m.Slots[target].Session
	m.Host.Enqueue(packet.WriteMatchTransferHost())
	st.publishStateLocked(m)
	slog.Info("match host transferred", "match_id", m.ID, "new_host_id", m.Host.ID)
	return nil
}

// StartMatch begins the game: everyone seated with the map loads in.
// Players without the map stay behind.
func (st *State) StartMatch(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	return st.startMatchLocked(m)
}

func (st *State) startMatchLocked(m *Match) error {
	if m.InProgress {
		return fmt.Errorf("already in progress")
	}
	if m.MapID == -1 {
		return fmt.Errorf("no map selected")
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.timerGen++
	}

	started := 0
	for i := range m.Slots {
		sl := &m.Slots[i]
		if sl.Occupied() && sl.Status != osu.SlotNoMap {
			sl.Status = osu.SlotPlaying
			sl.Loaded = false
			sl.Skipped = false
			sl.Failed = false
			sl.LastFrame = packet.ScoreFrame{}
			started++
		}
	}
	if started == 0 {
		return fmt.Errorf("nobody has the map")
	}
	m.InProgress = true

	frame := packet.WriteMatchStart(m.snapshotLocked())
	m.enqueuePlayingLocked(frame)
	st.publishStateLocked(m)
	slog.Info("match started", "match_id", m.ID, "players", started)
	return nil
}

// SlotLoaded marks the session loaded; when the last playing slot
// loads, gameplay begins for everyone.
func (st *State) SlotLoaded(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.InProgress {
		return
	}
	i := m.slotOf(s)
	if i == -1 {
		return
	}
	m.Slots[i].Loaded = true
	for j := range m.Slots {
		if m.Slots[j].Status == osu.SlotPlaying && !m.Slots[j].Loaded {
			return
		}
	}
	m.enqueuePlayingLocked(packet.WriteMatchAllPlayersLoaded())
}

// SkipRequest marks the session as wanting to skip the intro; once all
// playing slots agree, the skip fires.
func (st *State) SkipRequest(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.InProgress {
		return
	}
	i := m.slotOf(s)
	if i == -1 {
		return
	}
	m.Slots[i].Skipped = true
	m.enqueuePlayingLocked(packet.WriteMatchPlayerSkipped(s.ID))
	for j := range m.Slots {
		if m.Slots[j].Status == osu.SlotPlaying && !m.Slots[j].Skipped {
			return
		}
	}
	m.enqueuePlayingLocked(packet.WriteMatchSkip())
}

// MatchFrame relays a playing slot's live score frame to the room,
// remembering it for scrim resolution.
func (st *State) MatchFrame(s *Session, f packet.ScoreFrame) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.InProgress {
		return
	}
	i := m.slotOf(s)
	if i == -1 {
		return
	}
	f.SlotID = uint8(i)
	m.Slots[i].LastFrame = f
	m.enqueueMembersLocked(packet.WriteMatchScoreUpdate(f))
}

// SlotFailed reports the session's play as failed.
func (st *State) SlotFailed(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.InProgress {
		return
	}
	if i := m.slotOf(s); i != -1 {
		m.Slots[i].Failed = true
		m.enqueuePlayingLocked(packet.WriteMatchPlayerFailed(int32(i)))
	}
}

// SlotComplete marks the session done; when the last playing slot
// finishes, the game closes out (and scrim points resolve).
func (st *State) SlotComplete(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.InProgress {
		return
	}
	i := m.slotOf(s)
	if i == -1 {
		return
	}
	m.Slots[i].Status = osu.SlotComplete
	for j := range m.Slots {
		if m.Slots[j].Status == osu.SlotPlaying {
			return
		}
	}
	st.completeMatchLocked(m)
}

func (st *State) completeMatchLocked(m *Match) {
	var wasPlaying []*Session
	for i := range m.Slots {
		if m.Slots[i].Status == osu.SlotComplete {
			wasPlaying = append(wasPlaying, m.Slots[i].Session)
			m.Slots[i].Status = osu.SlotNotReady
		}
		m.Slots[i].Loaded = false
		m.Slots[i].Skipped = false
	}
	m.InProgress = false

	frame := packet.WriteMatchComplete()
	for _, p := range wasPlaying {
		if p != nil {
			p.Enqueue(frame)
		}
	}
	st.publishStateLocked(m)
	slog.Info("match completed", "match_id", m.ID)

	if m.Scrimming {
		st.resolveScrimGameLocked(m)
	}
}

// AbortMatch cancels an in-progress game (host only).
func (st *State) AbortMatch(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if !m.InProgress {
		return fmt.Errorf("not in progress")
	}
	m.enqueuePlayingLocked(packet.WriteMatchAbort())
	for i := range m.Slots {
		if m.Slots[i].Status == osu.SlotPlaying || m.Slots[i].Status == osu.SlotComplete {
			m.Slots[i].Status = osu.SlotNotReady
		}
		m.Slots[i].Loaded = false
		m.Slots[i].Skipped = false
	}
	m.InProgress = false
	st.publishStateLocked(m)
	slog.Info("match aborted", "match_id", m.ID)
	return nil
}

// Invite sends a clickable room invite to the target. The room fields
// are copied out under the lock so a concurrent settings or password
// change cannot tear the embed.
func (st *State) Invite(s, target *Session) error {
	st.mu.RLock()
	m := s.Match
	var id int
	var passwd, name string
	if m != nil {
		id, passwd, name = int(m.ID), m.Passwd, m.Name
	}
	st.mu.RUnlock()
	if m == nil {
		return fmt.Errorf("not in a match")
	}
	if target.ID == st.Bot.ID {
		return fmt.Errorf("the bot has plans")
	}
	text := fmt.Sprintf("Come join my game: [osump://%d/%s %s].", id, passwd, name)
	target.Enqueue(packet.WriteMatchInvite(s.Name, s.ID, target.Name, text))
	return nil
}

// MatchSnapshot returns a wire snapshot of a room. Callers choose the
// password redaction when encoding it.
func (st *State) MatchSnapshot(id int) (packet.MatchState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || id >= MaxMatches || st.matches[id] == nil {
		return packet.MatchState{}, false
	}
	return st.matches[id].snapshotLocked(), true
}

// JoinMatchChannel adds a tourney client to a room's chat without
// seating it in a slot.
func (st *State) JoinMatchChannel(s *Session, id int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id < 0 || id >= MaxMatches || st.matches[id] == nil {
		return fmt.Errorf("no such match")
	}
	m := st.matches[id]
	m.Refs[s.ID] = struct{}{}
	return st.joinChannelLocked(s, m.Chat)
}

// PartMatchChannel removes a tourney client from a room's chat.
func (st *State) PartMatchChannel(s *Session, id int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id < 0 || id >= MaxMatches || st.matches[id] == nil {
		return
	}
	m := st.matches[id]
	delete(m.Refs, s.ID)
	st.leaveChannelLocked(s, m.Chat, true)
}
