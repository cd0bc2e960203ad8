package core

import (
	"testing"

	"bancho/server/internal/osu"
	"bancho/server/internal/store"
)

func seedTestChannels(st *State) {
	st.SeedChannels([]store.ChannelRow{
		{Name: "#osu", Topic: "general", ReadPriv: osu.PrivUnrestricted, WritePriv: osu.PrivVerified, AutoJoin: true},
		{Name: "#lobby", Topic: "mp", ReadPriv: osu.PrivUnrestricted, WritePriv: osu.PrivVerified},
		{Name: "#staff", Topic: "staff", ReadPriv: osu.PrivStaff, WritePriv: osu.PrivStaff},
		{Name: "#announce", Topic: "announcements", ReadPriv: osu.PrivUnrestricted, WritePriv: osu.PrivStaff, AutoJoin: true},
	})
}

func TestChannelJoinGates(t *testing.T) {
	t.Parallel()
	st := NewState()
	seedTestChannels(st)
	s := addSession(t, st, 1001, "player")

	ch, ok := st.ChannelByName("#osu")
	if !ok {
		t.Fatal("#osu missing")
	}
	if err := st.JoinChannel(s, ch); err != nil {
		t.Fatalf("join #osu: %v", err)
	}
	if err := st.JoinChannel(s, ch); err == nil {
		t.Fatal("double join should fail")
	}

	staff, _ := st.ChannelByName("#staff")
	if err := st.JoinChannel(s, staff); err == nil {
		t.Fatal("player joined #staff without privileges")
	}

	// #lobby is gated on actually being in the lobby.
	lobby, _ := st.ChannelByName("#lobby")
	if err := st.JoinChannel(s, lobby); err == nil {
		t.Fatal("joined #lobby outside the lobby")
	}
	st.mu.Lock()
	s.InLobby = true
	st.mu.Unlock()
	if err := st.JoinChannel(s, lobby); err != nil {
		t.Fatalf("join #lobby from lobby: %v", err)
	}
}

func TestChannelDisplayNames(t *testing.T) {
	t.Parallel()
	cases := []struct{ real, display string }{
		{"#osu", "#osu"},
		{"#spec_1001", "#spectator"},
		{"#multi_3", "#multiplayer"},
	}
	for _, c := range cases {
		ch := &Channel{Name: c.real}
		if got := ch.DisplayName(); got != c.display {
			t.Fatalf("%s displayed as %s", c.real, got)
		}
	}
}

func TestSpectatorChannelLifecycle(t *testing.T) {
	t.Parallel()
	st := NewState()
	host := addSession(t, st, 1001, "host")
	w1 := addSession(t, st, 1002, "watcher1")
	w2 := addSession(t, st, 1003, "watcher2")

	if err := st.StartSpectating(w1, host); err != nil {
		t.Fatalf("spectate: %v", err)
	}
	if _, ok := st.ChannelByName("#spec_1001"); !ok {
		t.Fatal("spectator channel not created")
	}
	if err := st.StartSpectating(w2, host); err != nil {
		t.Fatalf("second spectate: %v", err)
	}
	st.mu.RLock()
	n := len(host.Spectators)
	st.mu.RUnlock()
	if n != 2 {
		t.Fatalf("expected 2 spectators, got %d", n)
	}

	// Spectating someone else moves the watcher over.
	other := addSession(t, st, 1004, "other")
	if err := st.StartSpectating(w1, other); err != nil {
		t.Fatalf("switch hosts: %v", err)
	}
	st.mu.RLock()
	n = len(host.Spectators)
	st.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected 1 spectator after switch, got %d", n)
	}

	// The channel (host included) dies with the last watcher.
	st.StopSpectating(w2)
	if _, ok := st.ChannelByName("#spec_1001"); ok {
		t.Fatal("spectator channel should be destroyed when empty")
	}
	st.mu.RLock()
	watching := w2.Spectating
	st.mu.RUnlock()
	if watching != nil {
		t.Fatal("watcher still attached")
	}
}

func TestSpectateSelfRejected(t *testing.T) {
	t.Parallel()
	st := NewState()
	s := addSession(t, st, 1001, "narcissist")
	if err := st.StartSpectating(s, s); err == nil {
		t.Fatal("self-spectate should be rejected")
	}
}

func TestBroadcastFramesReachWatchersOnly(t *testing.T) {
	t.Parallel()
	st := NewState()
	host := addSession(t, st, 1001, "host")
	watcher := addSession(t, st, 1002, "watcher")
	bystander := addSession(t, st, 1003, "bystander")

	if err := st.StartSpectating(watcher, host); err != nil {
		t.Fatalf("spectate: %v", err)
	}
	watcher.Dequeue()
	bystander.Dequeue()

	st.BroadcastFrames(host, []byte{0xde, 0xad})
	if watcher.QueueEmpty() {
		t.Fatal("watcher missed the frame bundle")
	}
	if !bystander.QueueEmpty() {
		t.Fatal("bystander received spectator frames")
	}
}

func TestLogoutCleansEverything(t *testing.T) {
	t.Parallel()
	st := NewState()
	seedTestChannels(st)
	s := addSession(t, st, 1001, "quitter")
	watcher := addSession(t, st, 1002, "watcher")

	ch, _ := st.ChannelByName("#osu")
	if err := st.JoinChannel(s, ch); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := st.StartSpectating(watcher, s); err != nil {
		t.Fatalf("spectate: %v", err)
	}
	if _, err := st.CreateMatch(s, newRoomState("room")); err != nil {
		t.Fatalf("create match: %v", err)
	}

	st.RemoveSession(s)

	if ch.MemberCount() != 0 {
		t.Fatal("channel membership survived logout")
	}
	if _, ok := st.ChannelByName("#spec_1001"); ok {
		t.Fatal("spectator channel survived logout")
	}
	st.mu.RLock()
	watching := watcher.Spectating
	st.mu.RUnlock()
	if watching != nil {
		t.Fatal("watcher still attached to a logged-out host")
	}
	if ms := st.Matches(); len(ms) != 0 {
		t.Fatalf("match survived logout: %d open", len(ms))
	}
}
