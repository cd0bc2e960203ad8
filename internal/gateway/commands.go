package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"bancho/server/internal/core"
	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// runCommand executes a "!" chat command and returns the bot's reply.
// ch is the channel the command was issued in, or nil for a DM to the
// bot. An empty reply means nothing to say.
func (s *Server) runCommand(ctx context.Context, sess *core.Session, ch *core.Channel, text string) string {
	fields := strings.Fields(strings.TrimPrefix(text, "!"))
	if len(fields) == 0 {
		return ""
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help":
		return "Commands: !roll [max], !stats, !block/!unblock <player>, !mp <start|abort|timer|aborttimer|scrim|endscrim|rematch|invite>, !pool <assign|pick|ban|unban|clear>"
	case "roll":
		max := 100
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				max = n
			}
		}
		return fmt.Sprintf("%s rolls %d points!", sess.Name, rand.Intn(max)+1)
	case "stats":
		ms := sess.Stats(sess.Status().Mode)
		return fmt.Sprintf("%s: #%d, %dpp, %.2f%% acc, %d plays",
			sess.Name, ms.Rank, ms.PP, ms.Acc, ms.Plays)
	case "block":
		if len(args) == 0 {
			return "Usage: !block <player>"
		}
		return s.blockCommand(ctx, sess, strings.Join(args, " "), true)
	case "unblock":
		if len(args) == 0 {
			return "Usage: !unblock <player>"
		}
		return s.blockCommand(ctx, sess, strings.Join(args, " "), false)
	case "mp":
		if ch == nil || !strings.HasPrefix(ch.Name, "#multi_") {
			return "!mp commands only work in a multiplayer room."
		}
		return s.runMatchCommand(sess, args)
	case "pool":
		if ch == nil || !strings.HasPrefix(ch.Name, "#multi_") {
			return "!pool commands only work in a multiplayer room."
		}
		return s.runPoolCommand(ctx, sess, args)
	case "silence":
		if sess.Priv()&osu.PrivStaff == 0 {
			return ""
		}
		if len(args) < 2 {
			return "Usage: !silence <player> <seconds> [reason]"
		}
		target, ok := s.state.SessionByName(args[0])
		if !ok {
			return "That player is not online."
		}
		secs, err := strconv.Atoi(args[1])
		if err != nil || secs <= 0 {
			return "Usage: !silence <player> <seconds> [reason]"
		}
		reason := strings.Join(args[2:], " ")
		s.silenceUser(ctx, target, time.Duration(secs)*time.Second, reason)
		return fmt.Sprintf("%s silenced for %ds.", target.Name, secs)
	default:
		return ""
	}
}

// blockCommand flips a block on the named player. Blocking replaces a
// follow of the same player, so the two relations never coexist.
func (s *Server) blockCommand(ctx context.Context, sess *core.Session, name string, block bool) string {
	user, err := s.db.UserBySafeName(ctx, store.SafeName(name))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Sprintf("No player named %q.", name)
		}
		slog.Error("block target lookup failed", "err", err)
		return "Could not look up that player."
	}
	if user.ID == sess.ID || user.ID == s.state.Bot.ID {
		return "You cannot block that account."
	}

	if block {
		if err := s.db.AddBlock(ctx, sess.ID, user.ID); err != nil {
			slog.Error("block persist failed", "err", err)
			return "Could not save the block."
		}
		sess.AddBlock(user.ID)
		return fmt.Sprintf("%s is now blocked.", user.Name)
	}
	if err := s.db.RemoveBlock(ctx, sess.ID, user.ID); err != nil {
		slog.Error("unblock persist failed", "err", err)
		return "Could not lift the block."
	}
	sess.RemoveBlock(user.ID)
	return fmt.Sprintf("%s is no longer blocked.", user.Name)
}

func (s *Server) runMatchCommand(sess *core.Session, args []string) string {
	if len(args) == 0 {
		return "Usage: !mp <start|abort|timer|aborttimer|scrim|endscrim|rematch|invite>"
	}
	sub, args := strings.ToLower(args[0]), args[1:]

	switch sub {
	case "start":
		if len(args) > 0 {
			secs, err := strconv.Atoi(args[0])
			if err != nil {
				return "Usage: !mp start [seconds]"
			}
			if err := s.state.StartTimer(sess, secs); err != nil {
				return err.Error()
			}
			return ""
		}
		if err := s.state.StartMatch(sess); err != nil {
			return err.Error()
		}
		return ""
	case "abort":
		if err := s.state.AbortMatch(sess); err != nil {
			return err.Error()
		}
		return "Match aborted."
	case "timer":
		if len(args) == 0 {
			return "Usage: !mp timer <seconds>"
		}
		secs, err := strconv.Atoi(args[0])
		if err != nil {
			return "Usage: !mp timer <seconds>"
		}
		if err := s.state.StartTimer(sess, secs); err != nil {
			return err.Error()
		}
		return ""
	case "aborttimer":
		if err := s.state.StopTimer(sess); err != nil {
			return err.Error()
		}
		return ""
	case "scrim":
		if len(args) == 0 {
			return "Usage: !mp scrim <best-of>"
		}
		bestOf, err := strconv.Atoi(args[0])
		if err != nil {
			return "Usage: !mp scrim <best-of>"
		}
		if err := s.state.StartScrim(sess, bestOf); err != nil {
			return err.Error()
		}
		return ""
	case "endscrim":
		if err := s.state.StopScrim(sess); err != nil {
			return err.Error()
		}
		return ""
	case "rematch":
		if err := s.state.UndoScrimGame(sess); err != nil {
			return err.Error()
		}
		return ""
	case "invite":
		if len(args) == 0 {
			return "Usage: !mp invite <player>"
		}
		target, ok := s.state.SessionByName(strings.Join(args, " "))
		if !ok {
			return "That player is not online."
		}
		if err := s.state.Invite(sess, target); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Invited %s to the room.", target.Name)
	default:
		return fmt.Sprintf("Unknown subcommand %q.", sub)
	}
}

func (s *Server) runPoolCommand(ctx context.Context, sess *core.Session, args []string) string {
	if len(args) == 0 {
		return "Usage: !pool <assign|pick|ban|unban|clear>"
	}
	sub, args := strings.ToLower(args[0]), args[1:]

	switch sub {
	case "assign":
		if len(args) == 0 {
			return "Usage: !pool assign <pool name>"
		}
		name := strings.Join(args, " ")
		pools, err := s.db.TourneyPools(ctx)
		if err != nil {
			slog.Error("pool fetch failed", "err", err)
			return "Could not load mappools."
		}
		for i := range pools {
			if strings.EqualFold(pools[i].Name, name) {
				if err := s.state.AssignPool(sess, &pools[i]); err != nil {
					return err.Error()
				}
				return ""
			}
		}
		return fmt.Sprintf("No mappool named %q.", name)
	case "clear":
		if err := s.state.AssignPool(sess, nil); err != nil {
			return err.Error()
		}
		return ""
	case "pick":
		if len(args) == 0 {
			return "Usage: !pool pick <code>, e.g. HD2"
		}
		mods, slot, err := parsePoolCode(args[0])
		if err != nil {
			return err.Error()
		}
		mapID, err := s.state.PickPoolMap(sess, mods, slot)
		if err != nil {
			return err.Error()
		}
		b, err := s.db.MapByID(ctx, mapID)
		if err != nil {
			if errors.Is(err, store.ErrMapNotFound) {
				return "That pool map is not in the map database."
			}
			slog.Error("pool map fetch failed", "err", err)
			return "Could not load the picked map."
		}
		if err := s.state.ApplyPoolPick(sess, b, mods); err != nil {
			return err.Error()
		}
		return ""
	case "ban":
		if len(args) == 0 {
			return "Usage: !pool ban <code>"
		}
		mods, slot, err := parsePoolCode(args[0])
		if err != nil {
			return err.Error()
		}
		if err := s.state.BanPoolMap(sess, mods, slot); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s banned.", strings.ToUpper(args[0]))
	case "unban":
		if len(args) == 0 {
			return "Usage: !pool unban <code>"
		}
		mods, slot, err := parsePoolCode(args[0])
		if err != nil {
			return err.Error()
		}
		if err := s.state.UnbanPoolMap(sess, mods, slot); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s unbanned.", strings.ToUpper(args[0]))
	default:
		return fmt.Sprintf("Unknown subcommand %q.", sub)
	}
}

// parsePoolCode splits a pick code like "HD2" or "NM1" into its mod
// combination and slot number. "NM" is the no-mod prefix.
func parsePoolCode(code string) (osu.Mods, int, error) {
	code = strings.ToUpper(code)
	i := strings.IndexFunc(code, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return 0, 0, fmt.Errorf("bad pick code %q; expected e.g. NM1, HD2, DT1", code)
	}
	slot, err := strconv.Atoi(code[i:])
	if err != nil || slot <= 0 {
		return 0, 0, fmt.Errorf("bad slot number in %q", code)
	}
	prefix := code[:i]
	if prefix == "NM" {
		return 0, slot, nil
	}
	mods := osu.ParseMods(prefix)
	if mods == 0 {
		return 0, 0, fmt.Errorf("unknown mod prefix %q", prefix)
	}
	return mods, slot, nil
}

// silenceUser applies a chat silence and tells everyone who can see the
// player. Used by the score pipeline's integrity path and staff tools.
func (s *Server) silenceUser(ctx context.Context, target *core.Session, d time.Duration, reason string) {
	end := time.Now().Add(d).Unix()
	target.SetSilenceEnd(end)
	if err := s.db.SetSilenceEnd(ctx, target.ID, end); err != nil {
		slog.Error("silence persist failed", "user_id", target.ID, "err", err)
	}
	_ = s.db.InsertLog(ctx, s.state.Bot.ID, target.ID, "silence", reason, time.Now().Unix())
	target.Enqueue(packet.WriteSilenceEnd(int32(d / time.Second)))
	s.state.Broadcast(packet.WriteUserSilenced(target.ID))
	slog.Info("user silenced", "user_id", target.ID, "duration", d, "reason", reason)
}
