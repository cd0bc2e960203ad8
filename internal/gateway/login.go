package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"bancho/server/internal/core"
	"bancho/server/internal/metrics"
	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// Login reply codes carried in the user-id packet.
const (
	loginUnknownUser    = -1
	loginOutdatedClient = -2
	loginBanned         = -3
	loginError          = -5
	loginNeedsVerify    = -8
)

// loginRequest is the parsed three-line login body.
type loginRequest struct {
	Username  string
	PwMD5     string
	OsuVer    string
	BuildDate time.Time
	UTCOffset int8
	Hashes    store.ClientHashes
	PMPrivate bool
	Tourney   bool
}

// parseLoginBody parses the login payload: username, password MD5 and a
// pipe-separated metadata line whose fourth field is the colon-separated
// hardware hash bundle.
func parseLoginBody(body []byte) (loginRequest, error) {
	lines := strings.Split(string(body), "\n")
	if len(lines) < 3 {
		return loginRequest{}, fmt.Errorf("expected 3 lines, got %d", len(lines))
	}

	var req loginRequest
	req.Username = strings.TrimSpace(lines[0])
	req.PwMD5 = strings.TrimSpace(lines[1])
	if req.Username == "" || len(req.PwMD5) != 32 {
		return loginRequest{}, fmt.Errorf("bad credentials format")
	}

	meta := strings.Split(lines[2], "|")
	if len(meta) != 5 {
		return loginRequest{}, fmt.Errorf("expected 5 metadata fields, got %d", len(meta))
	}

	req.OsuVer = meta[0]
	req.Tourney = strings.Contains(req.OsuVer, "tourney")
	datePart := strings.TrimPrefix(req.OsuVer, "b")
	if i := strings.IndexAny(datePart, ".abcrt"); i >= 8 {
		datePart = datePart[:8]
	}
	if len(datePart) >= 8 {
		if t, err := time.Parse("20060102", datePart[:8]); err == nil {
			req.BuildDate = t
		}
	}

	utc, err := strconv.Atoi(meta[1])
	if err != nil || utc < -12 || utc > 14 {
		return loginRequest{}, fmt.Errorf("bad utc offset %q", meta[1])
	}
	req.UTCOffset = int8(utc)

	bundle := strings.Split(meta[3], ":")
	if len(bundle) < 5 {
		return loginRequest{}, fmt.Errorf("expected 5 hardware hashes, got %d", len(bundle))
	}
	req.Hashes = store.ClientHashes{
		OsuPath:     bundle[0],
		Adapters:    bundle[1],
		UninstallID: bundle[3],
		DiskSerial:  bundle[4],
	}

	req.PMPrivate = meta[4] == "1"
	return req, nil
}

func loginReply(c echo.Context, token string, frames ...[]byte) error {
	c.Response().Header().Set("cho-token", token)
	return c.Blob(http.StatusOK, contentType, concat(frames...))
}

func (s *Server) loginFail(c echo.Context, outcome string, code int32, extra ...[]byte) error {
	metrics.Logins.WithLabelValues(outcome).Inc()
	return loginReply(c, "no", append([][]byte{packet.WriteUserID(code)}, extra...)...)
}

// handleLogin runs the token-less branch of the gateway: authenticate,
// build the session and emit the full login packet sequence.
func (s *Server) handleLogin(c echo.Context, body []byte) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if !s.limiter(ip).Allow() {
		return s.loginFail(c, "rate_limited", loginError,
			packet.WriteNotification("Too many login attempts. Slow down."))
	}

	req, err := parseLoginBody(body)
	if err != nil {
		slog.Warn("malformed login body", "ip", ip, "err", err)
		return s.loginFail(c, "malformed", loginError)
	}

	if req.BuildDate.IsZero() {
		return s.loginFail(c, "bad_version", loginNeedsVerify)
	}
	if time.Since(req.BuildDate) > s.cfg.MaxClientAge {
		return s.loginFail(c, "outdated", loginOutdatedClient, packet.WriteVersionUpdateForced())
	}

	// The whole check-then-register path runs under one lock so two
	// racing logins for the same account cannot both pass.
	s.state.LoginMu.Lock()
	defer s.state.LoginMu.Unlock()

	user, err := s.db.UserBySafeName(ctx, store.SafeName(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return s.loginFail(c, "unknown_user", loginUnknownUser)
		}
		slog.Error("login user lookup failed", "err", err)
		return s.loginFail(c, "error", loginError)
	}

	if err := s.state.VerifyPassword(user.PwBcrypt, req.PwMD5); err != nil {
		return s.loginFail(c, "bad_password", loginUnknownUser)
	}

	if user.Priv == 0 {
		return s.loginFail(c, "banned", loginBanned,
			packet.WriteNotification("Your account is banned."))
	}

	firstLogin := false
	if user.Priv&osu.PrivVerified == 0 {
		matches, err := s.db.HardwareMatches(ctx, user.ID, req.Hashes)
		if err != nil {
			slog.Error("hardware check failed", "err", err)
			return s.loginFail(c, "error", loginError)
		}
		if len(matches) > 0 {
			slog.Warn("multi-account hardware match", "user_id", user.ID, "matches", len(matches))
			return s.loginFail(c, "multiaccount", loginError,
				packet.WriteNotification("Your hardware is already tied to another account. Contact staff if this is a mistake."))
		}
		user.Priv |= osu.PrivVerified
		if err := s.db.SetPrivileges(ctx, user.ID, user.Priv); err != nil {
			slog.Error("verify grant failed", "err", err)
			return s.loginFail(c, "error", loginError)
		}
		firstLogin = true
	}

	if err := s.db.UpsertClientHashes(ctx, user.ID, req.Hashes, time.Now().Unix()); err != nil {
		slog.Error("client hash upsert failed", "err", err)
	}

	if !s.state.EvictGhost(user.SafeName, time.Now()) {
		return s.loginFail(c, "already_online", loginError,
			packet.WriteNotification("You are already logged in from another client."))
	}

	sess, err := s.buildSession(ctx, user, req, ip)
	if err != nil {
		slog.Error("session build failed", "user_id", user.ID, "err", err)
		return s.loginFail(c, "error", loginError)
	}

	if err := s.state.AddSession(sess); err != nil {
		slog.Error("session registration failed", "user_id", user.ID, "err", err)
		return s.loginFail(c, "error", loginError)
	}

	s.enqueueLoginSequence(ctx, sess)
	if firstLogin {
		sess.Enqueue(packet.WriteSendMessage(packet.Message{
			Sender:    s.state.Bot.Name,
			Text:      fmt.Sprintf("Welcome to the server, %s! Message me with !help to see what I can do.", sess.Name),
			Recipient: sess.Name,
			SenderID:  s.state.Bot.ID,
		}))
	}
	_ = s.db.TouchLatestActivity(ctx, user.ID, time.Now().Unix())

	metrics.Logins.WithLabelValues("ok").Inc()
	metrics.SessionsOnline.Set(float64(s.state.SessionCount()))
	slog.Info("login", "user_id", user.ID, "name", user.Name, "ip", ip, "ver", req.OsuVer)
	return loginReply(c, sess.Token, sess.Dequeue())
}

// buildSession assembles a Session from the account row, client
// metadata and geolocation.
func (s *Server) buildSession(ctx context.Context, user store.User, req loginRequest, ip string) (*core.Session, error) {
	sess := core.NewSession(user.ID, user.Name, uuid.NewString())
	sess.UTCOffset = req.UTCOffset
	sess.SetPMPrivate(req.PMPrivate)
	sess.Tourney = req.Tourney
	sess.SetPriv(user.Priv)
	sess.SetSilenceEnd(user.SilenceEnd)
	sess.TouchRecv(time.Now())

	loc := s.geo.Lookup(ctx, ip)
	country := user.Country
	if country == "" || country == "xx" {
		if loc.Country != "xx" {
			country = loc.Country
			_ = s.db.SetCountry(ctx, user.ID, country)
		}
	}
	sess.SetLocation(country, loc.Lat, loc.Lon)

	allStats, err := s.db.AllStats(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	var stats [osu.ModeCount]core.ModeStats
	for mode := osu.GameMode(0); mode < osu.ModeCount; mode++ {
		rank, err := s.db.GlobalRank(ctx, user.ID, mode, allStats[mode].PP)
		if err != nil {
			return nil, fmt.Errorf("load rank: %w", err)
		}
		stats[mode] = core.ModeStats{ModeStats: allStats[mode], Rank: rank}
	}
	sess.SetAllStats(stats)

	friends, err := s.db.Friends(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}
	sess.SetFriends(friends)

	blocks, err := s.db.Blocks(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	sess.SetBlocks(blocks)
	return sess, nil
}

// enqueueLoginSequence emits the login reply packets into the fresh
// session's queue and announces it to everyone else.
func (s *Server) enqueueLoginSequence(ctx context.Context, sess *core.Session) {
	now := time.Now()

	sess.Enqueue(
		packet.WriteUserID(sess.ID),
		packet.WriteProtocolVersion(packet.ProtocolVersion),
		packet.WriteBanchoPrivileges(sess.Priv().ToClient()),
		packet.WriteNotification(fmt.Sprintf("Welcome back, %s!", sess.Name)),
	)

	for _, ch := range s.state.PublicChannels(sess.Priv()) {
		if ch.AutoJoin {
			sess.Enqueue(packet.WriteChannelAutoJoin(packet.Channel{
				Name: ch.DisplayName(), Topic: ch.Topic, Players: uint16(ch.MemberCount()),
			}))
			if err := s.state.JoinChannel(sess, ch); err != nil {
				slog.Warn("autojoin failed", "channel", ch.Name, "err", err)
			}
			continue
		}
		sess.Enqueue(packet.WriteChannelInfo(packet.Channel{
			Name: ch.DisplayName(), Topic: ch.Topic, Players: uint16(ch.MemberCount()),
		}))
	}
	sess.Enqueue(packet.WriteChannelInfoEnd())

	if s.cfg.MenuIconURL != "" {
		sess.Enqueue(packet.WriteMainMenuIcon(s.cfg.MenuIconURL, s.cfg.MenuOnclickURL))
	}

	sess.Enqueue(
		packet.WriteFriendsList(sess.Friends()),
		packet.WriteSilenceEnd(sess.SilenceRemaining(now)),
		sess.PresencePacket(),
		sess.StatsPacket(),
		s.state.BotPresencePacket(),
		s.state.BotStatsPacket(),
	)

	for _, other := range s.state.Sessions() {
		if other.ID == sess.ID || other.ID == s.state.Bot.ID || other.Restricted() {
			continue
		}
		sess.Enqueue(other.PresencePacket(), other.StatsPacket())
	}

	if sess.Restricted() {
		sess.Enqueue(
			packet.WriteAccountRestricted(),
			packet.WriteNotification("Your account is restricted: you are invisible to other players and cannot appear on leaderboards."),
		)
	} else {
		s.state.BroadcastPresence(sess)
		s.state.BroadcastStats(sess)
	}

	mail, err := s.db.UnreadMail(ctx, sess.ID)
	if err != nil {
		slog.Error("mail replay failed", "user_id", sess.ID, "err", err)
		return
	}
	for _, m := range mail {
		ts := time.Unix(m.Time, 0).UTC().Format("Jan 2 15:04")
		sess.Enqueue(packet.WriteSendMessage(packet.Message{
			Sender:    m.FromName,
			Text:      fmt.Sprintf("[%s] %s", ts, m.Msg),
			Recipient: sess.Name,
			SenderID:  m.FromID,
		}))
		_ = s.db.MarkMailRead(ctx, m.FromID, sess.ID)
	}
}
