package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bancho/server/internal/config"
	"bancho/server/internal/core"
	"bancho/server/internal/geoloc"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

const (
	testPassword = "hunter22"
	testOsuVer   = "b20250901.2"
)

func testConfig() config.Config {
	return config.Config{
		LoginRate:    100,
		LoginBurst:   100,
		MaxClientAge: 20 * 365 * 24 * time.Hour,
	}
}

func newTestGateway(t *testing.T) (*Server, *store.Store, *core.State) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "bancho.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	state := core.NewState()
	rows, err := db.Channels(context.Background())
	if err != nil {
		t.Fatalf("load channels: %v", err)
	}
	state.SeedChannels(rows)

	srv := New(testConfig(), state, db, geoloc.New())
	return srv, db, state
}

func pwMD5(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func createTestUser(t *testing.T, db *store.Store, name string) int32 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pwMD5(testPassword)), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	id, err := db.CreateUser(context.Background(), name, name+"@example.com", string(hash), time.Now().Unix())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func loginBody(name, password, osuVer string) string {
	return name + "\n" + pwMD5(password) + "\n" + osuVer + "|-5|0|a:b:c:d:e|0\n"
}

// post runs one gateway request. token == "" means a login attempt.
func post(t *testing.T, srv *Server, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	if token != "" {
		req.Header.Set("osu-token", token)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

// frameIDs decodes a response body into its packet id sequence.
func frameIDs(t *testing.T, body []byte) []packet.ID {
	t.Helper()
	var ids []packet.ID
	dec := packet.NewDecoder(body)
	for {
		id, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !ok {
			return ids
		}
		ids = append(ids, id)
	}
}

// userIDFrame returns the value carried in the first user-id packet.
func userIDFrame(t *testing.T, body []byte) int32 {
	t.Helper()
	dec := packet.NewDecoder(body)
	for {
		id, payload, ok, err := dec.Next()
		if err != nil || !ok {
			t.Fatal("no user id packet in response")
		}
		if id == packet.SrvUserID {
			return payload.I32()
		}
	}
}

func hasID(ids []packet.ID, want packet.ID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	userID := createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer)))

	token := rec.Header().Get("cho-token")
	if len(token) != 36 || strings.Count(token, "-") != 4 {
		t.Fatalf("cho-token %q is not a uuid", token)
	}
	if got := userIDFrame(t, rec.Body.Bytes()); got != userID {
		t.Fatalf("user id packet carried %d, want %d", got, userID)
	}

	ids := frameIDs(t, rec.Body.Bytes())
	for _, want := range []packet.ID{
		packet.SrvProtocolVersion,
		packet.SrvPrivileges,
		packet.SrvNotification,
		packet.SrvChannelInfoEnd,
		packet.SrvFriendsList,
		packet.SrvSilenceEnd,
		packet.SrvUserPresence,
		packet.SrvUserStats,
	} {
		if !hasID(ids, want) {
			t.Fatalf("login reply missing packet %d; got %v", want, ids)
		}
	}

	sess, ok := state.SessionByName("alice")
	if !ok {
		t.Fatal("session not registered")
	}
	if sess.Token != token {
		t.Fatal("registered token differs from cho-token header")
	}
}

func TestLoginUnknownUserAndBadPassword(t *testing.T) {
	t.Parallel()
	srv, db, _ := newTestGateway(t)
	createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("nobody", testPassword, testOsuVer)))
	if rec.Header().Get("cho-token") != "no" {
		t.Fatalf("cho-token %q", rec.Header().Get("cho-token"))
	}
	if got := userIDFrame(t, rec.Body.Bytes()); got != -1 {
		t.Fatalf("unknown user code %d", got)
	}

	rec = post(t, srv, "", []byte(loginBody("alice", "wrongpass", testOsuVer)))
	if got := userIDFrame(t, rec.Body.Bytes()); got != -1 {
		t.Fatalf("bad password code %d", got)
	}
}

func TestLoginOutdatedClient(t *testing.T) {
	t.Parallel()
	srv, db, _ := newTestGateway(t)
	createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("alice", testPassword, "b20070815")))
	if got := userIDFrame(t, rec.Body.Bytes()); got != -2 {
		t.Fatalf("outdated client code %d", got)
	}
	if !hasID(frameIDs(t, rec.Body.Bytes()), packet.SrvVersionUpdateForced) {
		t.Fatal("outdated client should be told to update")
	}
}

func TestLoginUnparsableVersion(t *testing.T) {
	t.Parallel()
	srv, db, _ := newTestGateway(t)
	createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("alice", testPassword, "garbage")))
	if got := userIDFrame(t, rec.Body.Bytes()); got != -8 {
		t.Fatalf("unparsable version code %d", got)
	}
}

func TestLoginMalformedBody(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestGateway(t)

	rec := post(t, srv, "", []byte("not a login body"))
	if got := userIDFrame(t, rec.Body.Bytes()); got != -5 {
		t.Fatalf("malformed body code %d", got)
	}
}

func TestLoginWhileOnlineRejected(t *testing.T) {
	t.Parallel()
	srv, db, _ := newTestGateway(t)
	createTestUser(t, db, "alice")

	first := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer)))
	if first.Header().Get("cho-token") == "no" {
		t.Fatal("first login failed")
	}
	second := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer)))
	if got := userIDFrame(t, second.Body.Bytes()); got != -5 {
		t.Fatalf("second login code %d", got)
	}
}

func TestUnknownTokenTellsClientToReconnect(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestGateway(t)

	rec := post(t, srv, "stale-token", nil)
	ids := frameIDs(t, rec.Body.Bytes())
	if !hasID(ids, packet.SrvRestart) || !hasID(ids, packet.SrvNotification) {
		t.Fatalf("stale token reply %v", ids)
	}
}

func TestPingTransactionKeepsSession(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer)))
	token := rec.Header().Get("cho-token")

	ping := packet.NewWriter(packet.OsuPing).Bytes()
	rec = post(t, srv, token, ping)
	if rec.Code != http.StatusOK {
		t.Fatalf("ping status %d", rec.Code)
	}
	if _, ok := state.SessionByToken(token); !ok {
		t.Fatal("session dropped by a ping")
	}
}

func TestMalformedStreamDropsSession(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	createTestUser(t, db, "alice")

	rec := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer)))
	token := rec.Header().Get("cho-token")

	// A header that promises more payload than the body carries.
	rec = post(t, srv, token, []byte{0x04, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00})
	if !hasID(frameIDs(t, rec.Body.Bytes()), packet.SrvRestart) {
		t.Fatal("malformed stream should tell the client to reconnect")
	}
	if _, ok := state.SessionByToken(token); ok {
		t.Fatal("session should be dropped after a malformed stream")
	}
}

func TestHandlerTableCoversSessionOpcodes(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestGateway(t)

	for _, id := range []packet.ID{
		packet.OsuChangeAction,
		packet.OsuSendPublicMessage,
		packet.OsuSendPrivateMessage,
		packet.OsuLogout,
		packet.OsuPing,
		packet.OsuStartSpectating,
		packet.OsuJoinLobby,
		packet.OsuCreateMatch,
		packet.OsuJoinMatch,
		packet.OsuMatchStart,
		packet.OsuMatchScoreUpdate,
		packet.OsuChannelJoin,
		packet.OsuFriendAdd,
		packet.OsuUserStatsRequest,
		packet.OsuTourneyMatchInfoRequest,
	} {
		if _, ok := srv.handlers[id]; !ok {
			t.Fatalf("no handler for packet %d", id)
		}
	}
	for _, id := range []packet.ID{packet.SrvUserID, packet.SrvRestart} {
		if _, ok := srv.handlers[id]; ok {
			t.Fatalf("server-bound packet %d should not be handled", id)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()
	db, err := store.Open(filepath.Join(t.TempDir(), "bancho.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	state := core.NewState()

	cfg := testConfig()
	cfg.LoginRate = 0.001
	cfg.LoginBurst = 2
	srv := New(cfg, state, db, geoloc.New())

	post(t, srv, "", []byte("x"))
	post(t, srv, "", []byte("x"))
	rec := post(t, srv, "", []byte("x"))
	if got := userIDFrame(t, rec.Body.Bytes()); got != -5 {
		t.Fatalf("rate limited login code %d", got)
	}
	if !hasID(frameIDs(t, rec.Body.Bytes()), packet.SrvNotification) {
		t.Fatal("rate limit should explain itself")
	}
}

func TestTruncateMessageCutsOnRunes(t *testing.T) {
	t.Parallel()
	short, truncated := truncateMessage("hello")
	if truncated || short != "hello" {
		t.Fatalf("short message altered: %q", short)
	}

	// Many bytes but few characters must pass untouched.
	wide := strings.Repeat("é", 1100)
	if got, truncated := truncateMessage(wide); truncated || got != wide {
		t.Fatal("byte length alone should not truncate")
	}

	long, truncated := truncateMessage(strings.Repeat("é", 2100))
	if !truncated {
		t.Fatal("overlong message not truncated")
	}
	if !strings.HasSuffix(long, "... (truncated)") {
		t.Fatalf("missing suffix: %q", long[len(long)-30:])
	}
	body := strings.TrimSuffix(long, "... (truncated)")
	if n := len([]rune(body)); n != maxMessageLen {
		t.Fatalf("kept %d characters", n)
	}
	// The cut must not split a multi-byte character.
	if !strings.HasSuffix(body, "é") {
		t.Fatal("truncation split a character")
	}
}

func dmFrame(recipient, text string) []byte {
	return packet.NewWriter(packet.OsuSendPrivateMessage).
		Message(packet.Message{Recipient: recipient, Text: text}).Bytes()
}

func TestOverlongMessageNotifiesSender(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	aliceTok := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer))).Header().Get("cho-token")
	post(t, srv, "", []byte(loginBody("bob", testPassword, testOsuVer)))

	rec := post(t, srv, aliceTok, dmFrame("bob", strings.Repeat("a", 3000)))
	if !hasID(frameIDs(t, rec.Body.Bytes()), packet.SrvNotification) {
		t.Fatal("sender not notified of the truncation")
	}

	bob, ok := state.SessionByName("bob")
	if !ok {
		t.Fatal("bob not online")
	}
	dec := packet.NewDecoder(bob.Dequeue())
	for {
		id, payload, ok, err := dec.Next()
		if err != nil || !ok {
			t.Fatal("truncated message never delivered")
		}
		if id != packet.SrvSendMessage {
			continue
		}
		msg := payload.Message()
		if !strings.HasSuffix(msg.Text, "... (truncated)") {
			t.Fatalf("delivered text not truncated: %d chars", len(msg.Text))
		}
		return
	}
}

func TestBlockedSenderCannotDM(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	aliceID := createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	aliceTok := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer))).Header().Get("cho-token")
	post(t, srv, "", []byte(loginBody("bob", testPassword, testOsuVer)))

	bob, ok := state.SessionByName("bob")
	if !ok {
		t.Fatal("bob not online")
	}
	bob.AddBlock(aliceID)
	bob.Dequeue()

	rec := post(t, srv, aliceTok, dmFrame("bob", "hello?"))
	if !hasID(frameIDs(t, rec.Body.Bytes()), packet.SrvUserDMBlocked) {
		t.Fatal("blocked sender not told the DM was dropped")
	}
	if ids := frameIDs(t, bob.Dequeue()); hasID(ids, packet.SrvSendMessage) {
		t.Fatal("blocked sender's DM was delivered")
	}
}

func TestBlockCommandSurvivesRelogin(t *testing.T) {
	t.Parallel()
	srv, db, state := newTestGateway(t)
	createTestUser(t, db, "alice")
	bobID := createTestUser(t, db, "bob")

	aliceTok := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer))).Header().Get("cho-token")
	alice, _ := state.SessionByToken(aliceTok)

	post(t, srv, aliceTok, dmFrame("BanchoBot", "!block bob"))
	if !alice.IsBlocked(bobID) {
		t.Fatal("block command did not take effect live")
	}

	// The block is persisted; a fresh login carries it.
	state.RemoveSession(alice)
	tok2 := post(t, srv, "", []byte(loginBody("alice", testPassword, testOsuVer))).Header().Get("cho-token")
	again, ok := state.SessionByToken(tok2)
	if !ok {
		t.Fatal("relogin failed")
	}
	if !again.IsBlocked(bobID) {
		t.Fatal("block did not survive a relogin")
	}

	post(t, srv, tok2, dmFrame("BanchoBot", "!unblock bob"))
	if again.IsBlocked(bobID) {
		t.Fatal("unblock command did not take effect")
	}
}
