package core

import (
	"fmt"
	"log/slog"
	"time"

	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// timerAlerts are the remaining-second marks announced during a
// countdown, besides whole minutes.
var timerAlerts = map[int]bool{30: true, 10: true, 5: true, 4: true, 3: true, 2: true, 1: true}

// botChatLocked speaks as the bot in the room's channel.
func (st *State) botChatLocked(m *Match, text string) {
	frame := packet.WriteSendMessage(packet.Message{
		Sender:    st.Bot.Name,
		Text:      text,
		Recipient: m.Chat.DisplayName(),
		SenderID:  st.Bot.ID,
	})
	for _, member := range m.Chat.members {
		member.Enqueue(frame)
	}
}

// StartScrim arms best-of-N scoring on the room. N must be odd and at
// most 15.
func (st *State) StartScrim(s *Session, bestOf int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if bestOf <= 0 || bestOf > 15 || bestOf%2 == 0 {
		return fmt.Errorf("best-of must be an odd number up to 15")
	}
	m.Scrimming = true
	m.BestOf = bestOf
	m.Points = make(map[string]int)
	m.Winners = nil
	st.botChatLocked(m, fmt.Sprintf("A scrimmage has been started (first to %d)!", bestOf/2+1))
	return nil
}

// StopScrim disarms scrim scoring without touching history.
func (st *State) StopScrim(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if !m.Scrimming {
		return fmt.Errorf("not scrimming")
	}
	m.Scrimming = false
	st.botChatLocked(m, "Scrimmage cancelled.")
	return nil
}

// UndoScrimGame rolls the last finished game back, for a rematch after
// a disputed result.
func (st *State) UndoScrimGame(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if len(m.Winners) == 0 {
		return fmt.Errorf("no games to roll back")
	}
	last := m.Winners[len(m.Winners)-1]
	m.Winners = m.Winners[:len(m.Winners)-1]
	if last != "" {
		m.Points[last]--
	}
	st.botChatLocked(m, "The last game's result has been rolled back; replay it when ready.")
	return nil
}

// slotMetric scores one finished slot under the room's win condition.
func slotMetric(sl *Slot, wc osu.WinCondition) float64 {
	f := sl.LastFrame
	switch wc {
	case osu.WinByAccuracy:
		total := float64(f.Count300+f.Count100+f.Count50+f.CountMiss) * 300
		if total == 0 {
			return 0
		}
		hit := float64(f.Count300)*300 + float64(f.Count100)*100 + float64(f.Count50)*50
		return hit / total * 100
	case osu.WinByCombo:
		return float64(f.MaxCombo)
	default: // score and score v2
		return float64(f.TotalScore)
	}
}

// resolveScrimGameLocked tallies the finished game and announces
// points, match point and the series winner.
func (st *State) resolveScrimGameLocked(m *Match) {
	scores := make(map[string]float64)
	if m.TeamType.Teamed() {
		for i := range m.Slots {
			sl := &m.Slots[i]
			if sl.Session == nil || sl.Failed {
				continue
			}
			label := "Red"
			if sl.Team == osu.TeamBlue {
				label = "Blue"
			}
			scores["Team "+label] += slotMetric(sl, m.WinCondition)
		}
	} else {
		for i := range m.Slots {
			sl := &m.Slots[i]
			if sl.Session == nil || sl.Failed {
				continue
			}
			scores[sl.Session.Name] = slotMetric(sl, m.WinCondition)
		}
	}

	var winner string
	var best float64
	tied := false
	for label, v := range scores {
		switch {
		case v > best:
			winner, best, tied = label, v, false
		case v == best && best > 0:
			tied = true
		}
	}
	if winner == "" || tied {
		m.Winners = append(m.Winners, "")
		st.botChatLocked(m, "The game ended in a draw; no points awarded.")
		return
	}

	m.Winners = append(m.Winners, winner)
	m.Points[winner]++
	pts := m.Points[winner]
	needed := m.BestOf/2 + 1

	switch {
	case pts >= needed:
		m.Scrimming = false
		st.botChatLocked(m, fmt.Sprintf("%s takes the series %d-%d, gg!", winner, pts, otherPoints(m.Points, winner)))
		slog.Info("scrim series decided", "match_id", m.ID, "winner", winner)
	case pts == needed-1:
		st.botChatLocked(m, fmt.Sprintf("%s wins the game and reaches match point! (%d/%d)", winner, pts, needed))
	default:
		st.botChatLocked(m, fmt.Sprintf("%s wins the game! (%d/%d)", winner, pts, needed))
	}
}

func otherPoints(points map[string]int, winner string) int {
	best := 0
	for label, pts := range points {
		if label != winner && pts > best {
			best = pts
		}
	}
	return best
}

// StartTimer begins a revocable countdown that starts the game at
// zero. Durations outside (0, MaxTimerSeconds] are rejected.
func (st *State) StartTimer(s *Session, seconds int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if seconds <= 0 || seconds > MaxTimerSeconds {
		return fmt.Errorf("timer must be within (0, %d] seconds", MaxTimerSeconds)
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	st.botChatLocked(m, fmt.Sprintf("Match starting in %d seconds.", seconds))
	st.scheduleTickLocked(m, seconds)
	return nil
}

// scheduleTickLocked arms the next one-second tick of the countdown.
// The closure captures the countdown generation: a fired-but-unstopped
// timer from a replaced countdown sees a newer generation and dies
// instead of forking a second tick chain.
func (st *State) scheduleTickLocked(m *Match, remaining int) {
	gen := m.timerGen
	m.timer = time.AfterFunc(time.Second, func() {
		st.timerTick(m, gen, remaining)
	})
}

func (st *State) timerTick(m *Match, gen uint64, remaining int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	// The room may have been disposed, the timer revoked, or the
	// countdown replaced since this tick was armed.
	if st.matches[m.ID] != m || m.timer == nil || m.timerGen != gen {
		return
	}
	left := remaining - 1
	if left <= 0 {
		m.timer = nil
		if err := st.startMatchLocked(m); err != nil {
			st.botChatLocked(m, "Countdown finished but the match could not start: "+err.Error())
		}
		return
	}
	if timerAlerts[left] || left%60 == 0 {
		st.botChatLocked(m, fmt.Sprintf("Match starting in %s.", secondsPhrase(left)))
	}
	st.scheduleTickLocked(m, left)
}

func secondsPhrase(s int) string {
	if s >= 60 && s%60 == 0 {
		if s == 60 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", s/60)
	}
	if s == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", s)
}

// StopTimer revokes a running countdown.
func (st *State) StopTimer(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if m.timer == nil {
		return fmt.Errorf("no countdown running")
	}
	m.timer.Stop()
	m.timer = nil
	m.timerGen++
	st.botChatLocked(m, "Countdown aborted.")
	return nil
}

// AssignPool attaches a tournament mappool to the room.
func (st *State) AssignPool(s *Session, pool *store.TourneyPool) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	m.Pool = pool
	m.Bans = make(map[poolPick]struct{})
	if pool != nil {
		st.botChatLocked(m, fmt.Sprintf("Mappool set to %s.", pool.Name))
	} else {
		st.botChatLocked(m, "Mappool removed.")
	}
	return nil
}

// BanPoolMap marks a (mods, slot) pool entry as banned.
func (st *State) BanPoolMap(s *Session, mods osu.Mods, slot int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	if m.Pool == nil {
		return fmt.Errorf("no mappool active")
	}
	pick := poolPick{Mods: mods, Slot: slot}
	if !poolHas(m.Pool, pick) {
		return fmt.Errorf("no such pool map")
	}
	m.Bans[pick] = struct{}{}
	return nil
}

// UnbanPoolMap lifts a ban.
func (st *State) UnbanPoolMap(s *Session, mods osu.Mods, slot int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	delete(m.Bans, poolPick{Mods: mods, Slot: slot})
	return nil
}

// PickPoolMap resolves a pool pick to its map id, enforcing bans. The
// caller loads the map row and applies it with ApplyPoolPick.
func (st *State) PickPoolMap(s *Session, mods osu.Mods, slot int) (int32, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return 0, fmt.Errorf("not the host")
	}
	if m.Pool == nil {
		return 0, fmt.Errorf("no mappool active")
	}
	pick := poolPick{Mods: mods, Slot: slot}
	if _, banned := m.Bans[pick]; banned {
		return 0, fmt.Errorf("that map has been banned")
	}
	for _, pm := range m.Pool.Maps {
		if pm.Mods == mods && pm.Slot == slot {
			return pm.MapID, nil
		}
	}
	return 0, fmt.Errorf("no such pool map")
}

// ApplyPoolPick swaps the room onto a picked map, with the pick's mods.
func (st *State) ApplyPoolPick(s *Session, b store.Beatmap, mods osu.Mods) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := s.Match
	if m == nil || !m.isRef(s) {
		return fmt.Errorf("not the host")
	}
	m.MapID = b.ID
	m.MapMD5 = b.MD5
	m.MapName = b.FullName()
	if mods != 0 {
		m.Mods = mods
		m.Freemods = false
	}
	m.unreadyLocked(osu.SlotReady)
	st.publishStateLocked(m)
	st.botChatLocked(m, fmt.Sprintf("Map changed to %s.", b.Embed()))
	return nil
}

func poolHas(pool *store.TourneyPool, pick poolPick) bool {
	for _, pm := range pool.Maps {
		if pm.Mods == pick.Mods && pm.Slot == pick.Slot {
			return true
		}
	}
	return false
}
