package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"bancho/server/internal/config"
	"bancho/server/internal/core"
	"bancho/server/internal/metrics"
	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// submission is the decrypted, parsed score payload.
type submission struct {
	MapMD5      string
	Username    string
	Checksum    string
	N300        int32
	N100        int32
	N50         int32
	NGeki       int32
	NKatu       int32
	NMiss       int32
	Score       int64
	MaxCombo    int32
	Perfect     bool
	GradeStr    string
	Mods        osu.Mods
	Passed      bool
	VanillaMode uint8
	ClientFlags osu.ClientFlags
}

// parseSubmission maps the colon-separated payload fields into a
// submission. The field order is fixed by the client.
func parseSubmission(fields []string) (submission, error) {
	if len(fields) < 18 {
		return submission{}, fmt.Errorf("expected 18 fields, got %d", len(fields))
	}
	atoi32 := func(s string) int32 {
		n, _ := strconv.ParseInt(s, 10, 32)
		return int32(n)
	}

	var sub submission
	sub.MapMD5 = fields[0]
	// A trailing space marks supporter status, not part of the name.
	sub.Username = strings.TrimSuffix(fields[1], " ")
	sub.Checksum = fields[2]
	sub.N300 = atoi32(fields[3])
	sub.N100 = atoi32(fields[4])
	sub.N50 = atoi32(fields[5])
	sub.NGeki = atoi32(fields[6])
	sub.NKatu = atoi32(fields[7])
	sub.NMiss = atoi32(fields[8])
	sub.Score, _ = strconv.ParseInt(fields[9], 10, 64)
	sub.MaxCombo = atoi32(fields[10])
	sub.Perfect = fields[11] == "True" || fields[11] == "1"
	sub.GradeStr = fields[12]
	sub.Mods = osu.Mods(atoi32(fields[13]))
	sub.Passed = fields[14] == "True" || fields[14] == "1"
	mode := atoi32(fields[15])
	if mode < 0 || mode > 3 {
		return submission{}, fmt.Errorf("bad mode %d", mode)
	}
	sub.VanillaMode = uint8(mode)
	sub.ClientFlags = osu.ClientFlags(strings.Count(fields[17], " "))

	if len(sub.MapMD5) != 32 || len(sub.Checksum) != 32 || sub.Username == "" {
		return submission{}, fmt.Errorf("bad hash fields")
	}
	return sub, nil
}

// handleSubmit runs the full submission pipeline: decrypt, authenticate,
// classify, persist, aggregate and chart.
func (s *Server) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()

	fields, err := decryptSubmission(c.FormValue("score"), c.FormValue("iv"), c.FormValue("osuver"))
	if err != nil {
		slog.Warn("undecryptable submission", "err", err)
		metrics.ScoresSubmitted.WithLabelValues("malformed").Inc()
		return c.String(http.StatusOK, "error: no")
	}
	sub, err := parseSubmission(fields)
	if err != nil {
		slog.Warn("unparsable submission", "err", err)
		metrics.ScoresSubmitted.WithLabelValues("malformed").Inc()
		return c.String(http.StatusOK, "error: no")
	}

	user, err := s.authenticate(ctx, sub.Username, c.FormValue("pass"))
	if err != nil {
		metrics.ScoresSubmitted.WithLabelValues("bad_auth").Inc()
		return c.String(http.StatusOK, "error: pass")
	}

	bmap, err := s.db.MapByMD5(ctx, sub.MapMD5)
	if err != nil {
		if errors.Is(err, store.ErrMapNotFound) {
			metrics.ScoresSubmitted.WithLabelValues("unknown_map").Inc()
			return c.String(http.StatusOK, "error: beatmap")
		}
		slog.Error("map lookup failed", "err", err)
		return c.String(http.StatusOK, "error: no")
	}

	mode := osu.ModeFromParams(sub.VanillaMode, sub.Mods)

	dup, err := s.db.ScoreExistsByChecksum(ctx, mode, sub.Checksum)
	if err != nil {
		slog.Error("dedup check failed", "err", err)
		return c.String(http.StatusOK, "error: no")
	}
	if dup {
		metrics.ScoresSubmitted.WithLabelValues("duplicate").Inc()
		return c.String(http.StatusOK, "error: no")
	}

	acc := accuracy(sub.VanillaMode, sub.N300, sub.N100, sub.N50, sub.NGeki, sub.NKatu, sub.NMiss)
	var pp float64
	if sub.Passed {
		pp = performancePoints(bmap, sub.Mods, acc, sub.MaxCombo, sub.NMiss)
	}

	prev, prevErr := s.db.PersonalBest(ctx, user.ID, sub.MapMD5, mode)
	hasPrev := prevErr == nil
	if prevErr != nil && !errors.Is(prevErr, store.ErrScoreNotFound) {
		slog.Error("personal best lookup failed", "err", prevErr)
		return c.String(http.StatusOK, "error: no")
	}

	status := osu.StatusFailed
	if sub.Passed {
		status = osu.StatusSubmitted
		if !hasPrev || beatsPrevious(mode, pp, sub.Score, prev) {
			status = osu.StatusBest
		}
	}

	// Automatic restriction for scores over the pp cap. Whitelisted
	// players (verified legitimate) are exempt.
	if sub.Passed && bmap.Status.AwardsRankedPP() &&
		user.Priv&osu.PrivWhitelisted == 0 && user.Priv&osu.PrivUnrestricted != 0 {
		cap := ppCap(s.cfg, mode, sub.Mods)
		if cap > 0 && pp > float64(cap) {
			s.restrict(ctx, user, fmt.Sprintf("pp cap exceeded: %.0fpp on %s", pp, bmap.FullName()))
			user.Priv &^= osu.PrivUnrestricted
		}
	}

	// Snapshot the current #1 before this score lands, for the
	// announcement's "previous #1" credit.
	prevFirst, prevFirstErr := s.db.MapFirstPlace(ctx, sub.MapMD5, mode)

	if status == osu.StatusBest && hasPrev {
		if err := s.db.DemotePersonalBest(ctx, user.ID, sub.MapMD5, mode); err != nil {
			slog.Error("personal best demotion failed", "err", err)
			return c.String(http.StatusOK, "error: no")
		}
	}

	sc := store.Score{
		MapMD5:         sub.MapMD5,
		Score:          sub.Score,
		PP:             pp,
		Acc:            acc,
		MaxCombo:       sub.MaxCombo,
		Mods:           sub.Mods,
		N300:           sub.N300,
		N100:           sub.N100,
		N50:            sub.N50,
		NGeki:          sub.NGeki,
		NKatu:          sub.NKatu,
		NMiss:          sub.NMiss,
		Grade:          submissionGrade(sub),
		Status:         status,
		Mode:           mode,
		PlayTime:       time.Now().Unix(),
		TimeElapsed:    elapsedMillis(c, sub.Passed),
		ClientFlags:    sub.ClientFlags,
		UserID:         user.ID,
		Perfect:        sub.Perfect,
		OnlineChecksum: sub.Checksum,
	}
	scoreID, err := s.db.InsertScore(ctx, sc)
	if err != nil {
		slog.Error("score insert failed", "err", err)
		return c.String(http.StatusOK, "error: no")
	}
	sc.ID = scoreID

	if sub.Passed {
		s.storeReplay(ctx, c, scoreID, sc.Mode, user)
	}

	statsBefore, err := s.db.Stats(ctx, user.ID, mode)
	if err != nil {
		slog.Error("stats fetch failed", "err", err)
		return c.String(http.StatusOK, "error: no")
	}
	rankBefore, _ := s.db.GlobalRank(ctx, user.ID, mode, statsBefore.PP)

	stats := statsBefore
	stats.Playtime += sc.TimeElapsed / 1000
	stats.Plays++
	stats.TotalScore += sub.Score
	if sub.Passed && bmap.Status.HasLeaderboard() && sub.MaxCombo > stats.MaxCombo {
		stats.MaxCombo = sub.MaxCombo
	}

	if status == osu.StatusBest && bmap.Status.AwardsRankedPP() {
		delta := sub.Score
		if hasPrev {
			delta -= prev.Score
		}
		stats.RankedScore += delta

		best, err := s.db.BestScores(ctx, user.ID, mode, 100)
		if err != nil {
			slog.Error("best scores fetch failed", "err", err)
			return c.String(http.StatusOK, "error: no")
		}
		count, err := s.db.CountBestScores(ctx, user.ID, mode)
		if err != nil {
			slog.Error("best score count failed", "err", err)
			return c.String(http.StatusOK, "error: no")
		}
		stats.Acc = weightedAccuracy(best)
		stats.PP = int32(math.Round(weightedPP(best) + bonusPP(count)))

		applyGradeChange(&stats, sc.Grade, prev, hasPrev)
	}

	if err := s.db.UpdateStats(ctx, user.ID, mode, stats); err != nil {
		slog.Error("stats update failed", "err", err)
		return c.String(http.StatusOK, "error: no")
	}
	rankAfter, _ := s.db.GlobalRank(ctx, user.ID, mode, stats.PP)

	if sess, ok := s.state.SessionByID(user.ID); ok {
		sess.SetStats(mode, core.ModeStats{ModeStats: stats, Rank: rankAfter})
		s.state.BroadcastStats(sess)
	}

	if err := s.db.BumpMapPlaycount(ctx, sub.MapMD5, sub.Passed); err != nil {
		slog.Error("map playcount bump failed", "err", err)
	}

	mapRankAfter := int32(0)
	if status == osu.StatusBest && bmap.Status.HasLeaderboard() {
		mapRankAfter, _ = s.db.MapScoreRank(ctx, sc)
		if mapRankAfter == 1 && user.Priv&osu.PrivUnrestricted != 0 {
			s.announceFirstPlace(user, bmap, sc, prevFirst, prevFirstErr == nil)
		}
	}

	var unlocked []store.Achievement
	if status == osu.StatusBest && bmap.Status.AwardsRankedPP() && user.Priv&osu.PrivUnrestricted != 0 {
		unlocked = s.evaluateAchievements(ctx, user.ID, bmap, sc)
	}

	metrics.ScoresSubmitted.WithLabelValues("ok").Inc()
	slog.Info("score submitted", "user_id", user.ID, "map_id", bmap.ID,
		"mode", mode, "status", status, "pp", pp, "score_id", scoreID)

	// The client can only chart passed vanilla plays.
	if !sub.Passed || mode.RankingByPP() {
		return c.String(http.StatusOK, "error: no")
	}

	mapRankBefore := int32(0)
	if hasPrev {
		mapRankBefore, _ = s.db.MapScoreRank(ctx, prev)
	}
	chart := buildCharts(chartInput{
		Map:           bmap,
		Score:         sc,
		Prev:          prev,
		HasPrev:       hasPrev,
		MapRankBefore: mapRankBefore,
		MapRankAfter:  mapRankAfter,
		StatsBefore:   statsBefore,
		StatsAfter:    stats,
		RankBefore:    rankBefore,
		RankAfter:     rankAfter,
		Unlocked:      unlocked,
	})
	return c.String(http.StatusOK, chart)
}

// ppCap picks the autorestriction ceiling, keyed on mode and on
// flashlight, which has its own lower limit.
func ppCap(cfg config.Config, mode osu.GameMode, mods osu.Mods) uint32 {
	fl := mods&osu.ModFlashlight != 0
	switch {
	case mode.RankingByPP() && fl:
		return cfg.PPCapRelaxFL
	case mode.RankingByPP():
		return cfg.PPCapRelax
	case fl:
		return cfg.PPCapVanillaFL
	default:
		return cfg.PPCapVanilla
	}
}

// beatsPrevious compares against the prior best under the mode's
// ranking metric: pp for relax/autopilot, score otherwise.
func beatsPrevious(mode osu.GameMode, pp float64, total int64, prev store.Score) bool {
	if mode.RankingByPP() {
		return pp > prev.PP
	}
	return total > prev.Score
}

func submissionGrade(sub submission) osu.Grade {
	if !sub.Passed {
		return osu.GradeF
	}
	hidden := sub.Mods&(osu.ModHidden|osu.ModFlashlight) != 0
	return osu.GradeFromString(sub.GradeStr, hidden)
}

// elapsedMillis reads the client's play duration: "st" on a pass, "ft"
// on a fail.
func elapsedMillis(c echo.Context, passed bool) int64 {
	key := "st"
	if !passed {
		key = "ft"
	}
	n, _ := strconv.ParseInt(c.FormValue(key), 10, 64)
	return n
}

// storeReplay persists the attached replay. A passed score without one
// is physically impossible from a real client, so its absence restricts
// the submitter.
func (s *Server) storeReplay(ctx context.Context, c echo.Context, scoreID int64, mode osu.GameMode, user store.User) {
	fh, err := c.FormFile("score")
	if err != nil || fh.Size == 0 {
		if user.Priv&osu.PrivUnrestricted != 0 {
			s.restrict(ctx, user, "passed score submitted without a replay")
		}
		return
	}
	f, err := fh.Open()
	if err != nil {
		slog.Error("replay open failed", "err", err)
		return
	}
	defer f.Close()
	if err := s.blobs.PutReplay(scoreID, f); err != nil {
		slog.Error("replay store failed", "score_id", scoreID, "err", err)
		return
	}
	if err := s.db.SetReplayStored(ctx, scoreID, mode); err != nil {
		slog.Error("replay flag update failed", "err", err)
	}
}

// applyGradeChange bumps the new grade's histogram column and, when a
// previous best with a different tracked grade existed, decrements it.
func applyGradeChange(stats *store.ModeStats, grade osu.Grade, prev store.Score, hasPrev bool) {
	bump := func(g osu.Grade, delta int32) {
		switch g {
		case osu.GradeXH:
			stats.XHCount += delta
		case osu.GradeX:
			stats.XCount += delta
		case osu.GradeSH:
			stats.SHCount += delta
		case osu.GradeS:
			stats.SCount += delta
		case osu.GradeA:
			stats.ACount += delta
		}
	}
	bump(grade, 1)
	if hasPrev && prev.Grade != grade && prev.Grade <= osu.GradeA {
		bump(prev.Grade, -1)
	}
}

func (s *Server) announceFirstPlace(user store.User, bmap store.Beatmap, sc store.Score, prevFirst store.FirstPlace, hadFirst bool) {
	msg := fmt.Sprintf("\x01ACTION achieved #1 on %s with %.2f%% and %dpp.",
		bmap.Embed(), sc.Acc, int(math.Round(sc.PP)))
	if hadFirst && prevFirst.UserID != user.ID {
		msg += fmt.Sprintf(" (Previous #1: [https://osu.ppy.sh/u/%d %s])", prevFirst.UserID, prevFirst.Name)
	}
	ch, ok := s.state.ChannelByName("#announce")
	if !ok {
		return
	}
	// Sender is the submitter and the message echoes to everyone,
	// submitter included.
	s.state.SendToChannel(ch, packet.Message{
		Sender:    user.Name,
		Text:      msg,
		Recipient: ch.DisplayName(),
		SenderID:  user.ID,
	}, nil)
}

// accuracy computes hit accuracy (0..100) per vanilla mode.
func accuracy(vanillaMode uint8, n300, n100, n50, ngeki, nkatu, nmiss int32) float64 {
	switch vanillaMode {
	case 1: // taiko
		total := n300 + n100 + nmiss
		if total == 0 {
			return 0
		}
		return float64(n300*2+n100) / float64(total*2) * 100
	case 2: // catch
		total := n300 + n100 + n50 + nkatu + nmiss
		if total == 0 {
			return 0
		}
		return float64(n300+n100+n50) / float64(total) * 100
	case 3: // mania
		total := n300 + n100 + n50 + ngeki + nkatu + nmiss
		if total == 0 {
			return 0
		}
		points := float64(ngeki+n300)*300 + float64(nkatu)*200 + float64(n100)*100 + float64(n50)*50
		return points / (float64(total) * 300) * 100
	default: // standard
		total := n300 + n100 + n50 + nmiss
		if total == 0 {
			return 0
		}
		points := float64(n300)*300 + float64(n100)*100 + float64(n50)*50
		return points / (float64(total) * 300) * 100
	}
}

// performancePoints is a local estimator over the map's star rating,
// accuracy, combo and mods. It is deterministic and monotonic in the
// inputs, which is all the pipeline's ordering logic needs.
func performancePoints(bmap store.Beatmap, mods osu.Mods, acc float64, combo, nmiss int32) float64 {
	base := math.Pow(bmap.Diff, 2) * 15

	accFactor := math.Pow(acc/100, 5.5)

	comboFactor := 1.0
	if bmap.MaxCombo > 0 {
		comboFactor = math.Pow(float64(combo)/float64(bmap.MaxCombo), 0.8)
		if comboFactor > 1 {
			comboFactor = 1
		}
	}

	missPenalty := math.Pow(0.97, float64(nmiss))

	mult := 1.0
	if mods&osu.ModHidden != 0 {
		mult *= 1.06
	}
	if mods&osu.ModHardRock != 0 {
		mult *= 1.12
	}
	if mods&(osu.ModDoubleTime|osu.ModNightcore) != 0 {
		mult *= 1.20
	}
	if mods&osu.ModFlashlight != 0 {
		mult *= 1.12
	}
	if mods&osu.ModEasy != 0 {
		mult *= 0.50
	}
	if mods&osu.ModHalfTime != 0 {
		mult *= 0.30
	}
	if mods&osu.ModNoFail != 0 {
		mult *= 0.90
	}

	return base * accFactor * comboFactor * missPenalty * mult
}

// weightedAccuracy is the 0.95-geometric-weighted mean over the top
// accuracies, normalized so a full top-100 of 100% yields 100.
func weightedAccuracy(best []store.BestEntry) float64 {
	if len(best) == 0 {
		return 0
	}
	var total float64
	for i, e := range best {
		total += e.Acc * math.Pow(0.95, float64(i))
	}
	norm := 100.0 / (20 * (1 - math.Pow(0.95, float64(len(best)))))
	return total * norm / 100
}

// weightedPP is the 0.95-geometric-weighted sum of the top pp values.
func weightedPP(best []store.BestEntry) float64 {
	var total float64
	for i, e := range best {
		total += e.PP * math.Pow(0.95, float64(i))
	}
	return total
}

// bonusPP is the logarithmic reward for sheer score-count.
func bonusPP(count int) float64 {
	return 416.6667 * (1 - math.Pow(0.9994, float64(count)))
}

type chartInput struct {
	Map           store.Beatmap
	Score         store.Score
	Prev          store.Score
	HasPrev       bool
	MapRankBefore int32
	MapRankAfter  int32
	StatsBefore   store.ModeStats
	StatsAfter    store.ModeStats
	RankBefore    int32
	RankAfter     int32
	Unlocked      []store.Achievement
}

// chartEntry renders one Before/After pair; empty strings render as
// blank fields the client treats as "no previous value".
func chartEntry(name, before, after string) string {
	return fmt.Sprintf("%sBefore:%s|%sAfter:%s", name, before, name, after)
}

func i32s(v int32) string   { return strconv.FormatInt(int64(v), 10) }
func i64s(v int64) string   { return strconv.FormatInt(v, 10) }
func accs(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// buildCharts renders the three-block submission response: map header,
// beatmap ranking chart and overall ranking chart with new medals.
func buildCharts(in chartInput) string {
	header := fmt.Sprintf(
		"beatmapId:%d|beatmapSetId:%d|beatmapPlaycount:%d|beatmapPasscount:%d|approvedDate:",
		in.Map.ID, in.Map.SetID, in.Map.Plays, in.Map.Passes)

	var prevRank, prevScore, prevPP string
	if in.HasPrev {
		prevRank = i32s(in.MapRankBefore)
		prevScore = i64s(in.Prev.Score)
		prevPP = i32s(int32(math.Round(in.Prev.PP)))
	}
	mapChart := strings.Join([]string{
		"chartId:beatmap",
		fmt.Sprintf("chartUrl:%s", in.Map.URL()),
		"chartName:Beatmap Ranking",
		chartEntry("rank", prevRank, i32s(in.MapRankAfter)),
		chartEntry("rankedScore", prevScore, i64s(in.Score.Score)),
		chartEntry("totalScore", prevScore, i64s(in.Score.Score)),
		chartEntry("maxCombo", "", i32s(in.Score.MaxCombo)),
		chartEntry("accuracy", "", accs(in.Score.Acc)),
		chartEntry("pp", prevPP, i32s(int32(math.Round(in.Score.PP)))),
		fmt.Sprintf("onlineScoreId:%d", in.Score.ID),
	}, "|")

	medals := make([]string, 0, len(in.Unlocked))
	for _, a := range in.Unlocked {
		medals = append(medals, fmt.Sprintf("%s+%s+%s", a.File, a.Name, a.Descr))
	}
	overallChart := strings.Join([]string{
		"chartId:overall",
		"chartUrl:https://osu.ppy.sh/u/" + i32s(in.Score.UserID),
		"chartName:Overall Ranking",
		chartEntry("rank", i32s(in.RankBefore), i32s(in.RankAfter)),
		chartEntry("rankedScore", i64s(in.StatsBefore.RankedScore), i64s(in.StatsAfter.RankedScore)),
		chartEntry("totalScore", i64s(in.StatsBefore.TotalScore), i64s(in.StatsAfter.TotalScore)),
		chartEntry("maxCombo", i32s(in.StatsBefore.MaxCombo), i32s(in.StatsAfter.MaxCombo)),
		chartEntry("accuracy", accs(in.StatsBefore.Acc), accs(in.StatsAfter.Acc)),
		chartEntry("pp", i32s(in.StatsBefore.PP), i32s(in.StatsAfter.PP)),
		"achievements-new:" + strings.Join(medals, "/"),
	}, "|")

	return strings.Join([]string{header, mapChart, overallChart}, "\n")
}
