package core

import (
	"testing"
	"time"

	"bancho/server/internal/osu"
	"bancho/server/internal/store"
)

func testSession(id int32, name string) *Session {
	s := newSession(id, name, "tok-"+name)
	s.priv = osu.PrivUnrestricted | osu.PrivVerified
	s.TouchRecv(time.Now())
	return s
}

func addSession(t *testing.T, st *State, id int32, name string) *Session {
	t.Helper()
	s := testSession(id, name)
	if err := st.AddSession(s); err != nil {
		t.Fatalf("add session %s: %v", name, err)
	}
	return s
}

func TestQueueSwapDrain(t *testing.T) {
	t.Parallel()
	s := testSession(2, "player")

	s.Enqueue([]byte{1, 2}, []byte{3})
	if s.QueueEmpty() {
		t.Fatal("queue should have data")
	}
	got := s.Dequeue()
	if len(got) != 3 {
		t.Fatalf("drained %d bytes", len(got))
	}
	if !s.QueueEmpty() {
		t.Fatal("queue should be empty after drain")
	}
	if again := s.Dequeue(); len(again) != 0 {
		t.Fatalf("second drain returned %d bytes", len(again))
	}
}

func TestRegistryIndexes(t *testing.T) {
	t.Parallel()
	st := NewState()
	s := addSession(t, st, 1001, "Some Player")

	if got, ok := st.SessionByToken(s.Token); !ok || got != s {
		t.Fatal("token lookup failed")
	}
	if got, ok := st.SessionByID(1001); !ok || got != s {
		t.Fatal("id lookup failed")
	}
	// Name lookups normalize the way the client does.
	if got, ok := st.SessionByName("some player"); !ok || got != s {
		t.Fatal("name lookup failed")
	}
	if got, ok := st.SessionByName("SOME_PLAYER"); !ok || got != s {
		t.Fatal("safe-name lookup failed")
	}

	// The bot is always resolvable but never counted as polling.
	if _, ok := st.SessionByID(store.BotID); !ok {
		t.Fatal("bot should be resolvable")
	}
	if st.SessionCount() != 1 {
		t.Fatalf("count=%d", st.SessionCount())
	}

	if err := st.AddSession(testSession(1001, "Other Name")); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
}

func TestRemoveSessionIdempotent(t *testing.T) {
	t.Parallel()
	st := NewState()
	s := addSession(t, st, 1001, "leaver")

	st.RemoveSession(s)
	if _, ok := st.SessionByID(1001); ok {
		t.Fatal("session still resolvable after removal")
	}
	// A second removal is a no-op.
	st.RemoveSession(s)
	if st.SessionCount() != 0 {
		t.Fatalf("count=%d", st.SessionCount())
	}
}

func TestGhostEviction(t *testing.T) {
	t.Parallel()
	st := NewState()
	ghost := addSession(t, st, 1001, "flaky")

	// A live session blocks the reclaim.
	if st.EvictGhost(ghost.SafeName, time.Now()) {
		t.Fatal("live session should not be evicted")
	}
	if _, ok := st.SessionByID(1001); !ok {
		t.Fatal("live session should still be online")
	}

	// Once silent past the threshold it is silently dropped.
	ghost.lastRecv.Store(time.Now().Add(-time.Minute).Unix())
	if !st.EvictGhost(ghost.SafeName, time.Now()) {
		t.Fatal("silent ghost should be evicted")
	}
	if _, ok := st.SessionByID(1001); ok {
		t.Fatal("ghost still online after eviction")
	}

	// No same-name session at all is fine.
	if !st.EvictGhost("nobody", time.Now()) {
		t.Fatal("missing name should not block login")
	}
}

func TestSweepSparesActiveAndMidMatch(t *testing.T) {
	t.Parallel()
	st := NewState()
	active := addSession(t, st, 1001, "active")
	idle := addSession(t, st, 1002, "idle")
	playing := addSession(t, st, 1003, "playing")

	old := time.Now().Add(-PingTimeout - time.Minute).Unix()
	idle.lastRecv.Store(old)
	playing.lastRecv.Store(old)

	// Seat the stale player in an in-progress match.
	if _, err := st.CreateMatch(playing, newRoomState("room")); err != nil {
		t.Fatalf("create match: %v", err)
	}
	if err := st.StartMatch(playing); err != nil {
		t.Fatalf("start match: %v", err)
	}

	swept := st.SweepInactive(time.Now())
	if swept != 1 {
		t.Fatalf("swept %d sessions", swept)
	}
	if _, ok := st.SessionByID(idle.ID); ok {
		t.Fatal("idle session survived the sweep")
	}
	if _, ok := st.SessionByID(active.ID); !ok {
		t.Fatal("active session was swept")
	}
	if _, ok := st.SessionByID(playing.ID); !ok {
		t.Fatal("mid-match session was swept")
	}
}

func TestRestrictedPresenceStaysPrivate(t *testing.T) {
	t.Parallel()
	st := NewState()
	viewer := addSession(t, st, 1001, "viewer")
	hidden := addSession(t, st, 1002, "hidden")
	hidden.SetPriv(0) // restricted

	viewer.Dequeue()
	hidden.Dequeue()

	st.BroadcastPresence(hidden)
	st.BroadcastStats(hidden)
	if !viewer.QueueEmpty() {
		t.Fatal("restricted presence leaked to another player")
	}
	if hidden.QueueEmpty() {
		t.Fatal("restricted player should still see themselves")
	}
}

func TestPasswordCacheOnlyStoresSuccess(t *testing.T) {
	t.Parallel()
	st := NewState()

	// An invalid hash always fails and must not poison the cache.
	if err := st.VerifyPassword("$2b$10$invalidhash", "md5md5md5"); err == nil {
		t.Fatal("expected verification failure")
	}
	st.pwMu.Lock()
	n := len(st.pwCache)
	st.pwMu.Unlock()
	if n != 0 {
		t.Fatalf("failure was cached, cache size %d", n)
	}

	// A cached success answers both match and mismatch without bcrypt.
	st.pwMu.Lock()
	st.pwCache["somehash"] = "goodmd5"
	st.pwMu.Unlock()
	if err := st.VerifyPassword("somehash", "goodmd5"); err != nil {
		t.Fatalf("cached verify: %v", err)
	}
	if err := st.VerifyPassword("somehash", "badmd5"); err == nil {
		t.Fatal("cached mismatch should fail")
	}
}

func TestBotCacheInvalidation(t *testing.T) {
	t.Parallel()
	st := NewState()

	a := st.BotStatsPacket()
	b := st.BotStatsPacket()
	if &a[0] != &b[0] {
		t.Fatal("bot stats frame should be cached")
	}
	st.RerollBotStatus()
	c := st.BotStatsPacket()
	if &a[0] == &c[0] {
		t.Fatal("reroll should invalidate the cached frame")
	}
}

func TestFriendsAndBlocksStayDisjoint(t *testing.T) {
	t.Parallel()
	s := testSession(7, "player")
	s.SetFriends([]int32{10, 11})

	s.AddBlock(10)
	if s.IsFriend(10) || !s.IsBlocked(10) {
		t.Fatal("blocking should replace the follow")
	}
	s.AddFriend(10)
	if s.IsBlocked(10) || !s.IsFriend(10) {
		t.Fatal("following should lift the block")
	}

	s.SetBlocks([]int32{11})
	if s.IsFriend(11) || !s.IsBlocked(11) {
		t.Fatal("login-time blocks should evict matching follows")
	}
	s.RemoveBlock(11)
	if s.IsBlocked(11) {
		t.Fatal("block not lifted")
	}
}
