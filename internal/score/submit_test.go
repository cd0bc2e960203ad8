package score

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"testing"

	"bancho/server/internal/config"
	"bancho/server/internal/osu"
	"bancho/server/internal/store"
)

const testOsuVer = "20210901.4"

// encryptSubmission is the inverse of decryptSubmission, with PKCS#7
// padding the way the client pads.
func encryptSubmission(t *testing.T, fields []string, osuVer string) (scoreB64, ivB64 string) {
	t.Helper()
	plain := []byte(strings.Join(fields, ":"))
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	for i := 0; i < pad; i++ {
		plain = append(plain, byte(pad))
	}
	iv := make([]byte, aes.BlockSize)
	for i := range iv {
		iv[i] = byte(i * 7)
	}
	block, err := aes.NewCipher(submissionKey(osuVer))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(iv)
}

func sampleFields() []string {
	return []string{
		strings.Repeat("a", 32), // map md5
		"alice ",                // name, trailing space = supporter
		strings.Repeat("b", 32), // online checksum
		"500", "20", "3", "80", "4", "2", // 300/100/50/geki/katu/miss
		"1234567",    // score
		"812",        // max combo
		"False",      // perfect
		"S",          // grade
		"72",         // mods (HDDT)
		"True",       // passed
		"0",          // mode
		"2109010004", // client timestamp
		testOsuVer + "  ", // version + flag spaces
	}
}

func TestDecryptRoundTrip(t *testing.T) {
	fields := sampleFields()
	scoreB64, ivB64 := encryptSubmission(t, fields, testOsuVer)

	got, err := decryptSubmission(scoreB64, ivB64, testOsuVer)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i := range fields {
		if got[i] != fields[i] {
			t.Fatalf("field %d: got %q want %q", i, got[i], fields[i])
		}
	}
}

func TestDecryptWrongVersionGarbles(t *testing.T) {
	scoreB64, ivB64 := encryptSubmission(t, sampleFields(), testOsuVer)
	got, err := decryptSubmission(scoreB64, ivB64, "20200101.1")
	if err == nil && len(got) > 0 && got[0] == sampleFields()[0] {
		t.Fatal("wrong key still produced the original payload")
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	cases := []struct{ score, iv string }{
		{"not base64!!", base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{base64.StdEncoding.EncodeToString(make([]byte, 16)), "not base64!!"},
		{base64.StdEncoding.EncodeToString(make([]byte, 16)), base64.StdEncoding.EncodeToString(make([]byte, 8))},
		{base64.StdEncoding.EncodeToString(make([]byte, 17)), base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"", base64.StdEncoding.EncodeToString(make([]byte, 16))},
	}
	for i, tc := range cases {
		if _, err := decryptSubmission(tc.score, tc.iv, testOsuVer); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestStripPaddingZeroFallback(t *testing.T) {
	// 0xFF is not valid PKCS#7, so only trailing NULs come off.
	data := []byte{'a', 'b', 0, 0, 0xff}
	if got := stripPadding(data); string(got) != string(data) {
		t.Fatalf("got %q", got)
	}
	data = []byte{'a', 'b', 0, 0}
	if got := stripPadding(data); string(got) != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestParseSubmission(t *testing.T) {
	sub, err := parseSubmission(sampleFields())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub.Username != "alice" {
		t.Fatalf("username %q", sub.Username)
	}
	if sub.N300 != 500 || sub.N100 != 20 || sub.N50 != 3 || sub.NGeki != 80 || sub.NKatu != 4 || sub.NMiss != 2 {
		t.Fatalf("judgements %+v", sub)
	}
	if sub.Score != 1234567 || sub.MaxCombo != 812 {
		t.Fatalf("score %d combo %d", sub.Score, sub.MaxCombo)
	}
	if sub.Mods != osu.ModHidden|osu.ModDoubleTime {
		t.Fatalf("mods %v", sub.Mods)
	}
	if !sub.Passed || sub.Perfect {
		t.Fatalf("passed %v perfect %v", sub.Passed, sub.Perfect)
	}
	if sub.VanillaMode != 0 {
		t.Fatalf("mode %d", sub.VanillaMode)
	}
	if sub.ClientFlags != 2 {
		t.Fatalf("flags %d", sub.ClientFlags)
	}
}

func TestParseSubmissionRejects(t *testing.T) {
	short := sampleFields()[:10]
	if _, err := parseSubmission(short); err == nil {
		t.Fatal("short payload accepted")
	}
	badMode := sampleFields()
	badMode[15] = "7"
	if _, err := parseSubmission(badMode); err == nil {
		t.Fatal("out of range mode accepted")
	}
	badMD5 := sampleFields()
	badMD5[0] = "tooshort"
	if _, err := parseSubmission(badMD5); err == nil {
		t.Fatal("short md5 accepted")
	}
}

func TestAccuracy(t *testing.T) {
	cases := []struct {
		name                                  string
		mode                                  uint8
		n300, n100, n50, ngeki, nkatu, nmiss int32
		want                                  float64
	}{
		{"std all 300", 0, 100, 0, 0, 0, 0, 0, 100},
		{"std mixed", 0, 90, 10, 0, 0, 0, 0, 93.33333333},
		{"std all miss", 0, 0, 0, 0, 0, 0, 10, 0},
		{"taiko halves", 1, 50, 50, 0, 0, 0, 0, 75},
		{"catch fruit", 2, 80, 10, 10, 0, 0, 0, 100},
		{"catch drops", 2, 90, 0, 0, 0, 5, 5, 90},
		{"mania max", 3, 0, 0, 0, 100, 0, 0, 100},
		{"mania katu", 3, 0, 0, 0, 0, 100, 0, 66.66666667},
		{"empty", 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		got := accuracy(tc.mode, tc.n300, tc.n100, tc.n50, tc.ngeki, tc.nkatu, tc.nmiss)
		if math.Abs(got-tc.want) > 1e-6 {
			t.Fatalf("%s: got %.8f want %.8f", tc.name, got, tc.want)
		}
	}
}

func TestWeightedPP(t *testing.T) {
	best := []store.BestEntry{{PP: 100}, {PP: 100}, {PP: 100}}
	want := 100 + 100*0.95 + 100*0.95*0.95
	if got := weightedPP(best); math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %f want %f", got, want)
	}
	if got := weightedPP(nil); got != 0 {
		t.Fatalf("empty: %f", got)
	}
}

func TestBonusPPGrowsAndSaturates(t *testing.T) {
	if bonusPP(0) != 0 {
		t.Fatal("zero scores should earn no bonus")
	}
	if bonusPP(100) <= bonusPP(10) {
		t.Fatal("bonus should grow with score count")
	}
	if bonusPP(1_000_000) > 416.67 {
		t.Fatalf("bonus exceeds its asymptote: %f", bonusPP(1_000_000))
	}
}

func TestWeightedAccuracyFullHundreds(t *testing.T) {
	best := make([]store.BestEntry, 100)
	for i := range best {
		best[i].Acc = 100
	}
	if got := weightedAccuracy(best); math.Abs(got-100) > 0.5 {
		t.Fatalf("all-100 profile: got %f", got)
	}
	single := []store.BestEntry{{Acc: 97}}
	if got := weightedAccuracy(single); math.Abs(got-97) > 1e-6 {
		t.Fatalf("single score: got %f", got)
	}
	if got := weightedAccuracy(nil); got != 0 {
		t.Fatalf("empty: %f", got)
	}
}

func TestBeatsPrevious(t *testing.T) {
	prev := store.Score{PP: 200, Score: 1_000_000}
	if !beatsPrevious(osu.ModeRelaxStd, 201, 1, prev) {
		t.Fatal("relax should compare by pp")
	}
	if beatsPrevious(osu.ModeRelaxStd, 199, 2_000_000, prev) {
		t.Fatal("relax should ignore score")
	}
	if !beatsPrevious(osu.ModeVanillaStd, 1, 1_000_001, prev) {
		t.Fatal("vanilla should compare by score")
	}
	if beatsPrevious(osu.ModeVanillaStd, 500, 999_999, prev) {
		t.Fatal("vanilla should ignore pp")
	}
}

func TestPerformancePointsMonotonic(t *testing.T) {
	bmap := store.Beatmap{Diff: 5.3, MaxCombo: 1000}
	base := performancePoints(bmap, 0, 98, 900, 1)
	if base <= 0 {
		t.Fatalf("base pp %f", base)
	}
	if performancePoints(bmap, 0, 99, 900, 1) <= base {
		t.Fatal("higher accuracy should yield more pp")
	}
	if performancePoints(bmap, 0, 98, 1000, 1) <= base {
		t.Fatal("higher combo should yield more pp")
	}
	if performancePoints(bmap, 0, 98, 900, 5) >= base {
		t.Fatal("more misses should yield less pp")
	}
	if performancePoints(bmap, osu.ModHidden, 98, 900, 1) <= base {
		t.Fatal("hidden should multiply pp up")
	}
	if performancePoints(bmap, osu.ModHalfTime, 98, 900, 1) >= base {
		t.Fatal("half time should multiply pp down")
	}
	harder := store.Beatmap{Diff: 6.3, MaxCombo: 1000}
	if performancePoints(harder, 0, 98, 900, 1) <= base {
		t.Fatal("higher stars should yield more pp")
	}
}

func TestApplyGradeChange(t *testing.T) {
	var stats store.ModeStats
	applyGradeChange(&stats, osu.GradeS, store.Score{}, false)
	if stats.SCount != 1 {
		t.Fatalf("SCount %d", stats.SCount)
	}
	// Improving an S to an SH moves the histogram.
	applyGradeChange(&stats, osu.GradeSH, store.Score{Grade: osu.GradeS}, true)
	if stats.SCount != 0 || stats.SHCount != 1 {
		t.Fatalf("after upgrade: S=%d SH=%d", stats.SCount, stats.SHCount)
	}
	// A previous B does not appear in the histogram, nothing to undo.
	applyGradeChange(&stats, osu.GradeA, store.Score{Grade: osu.GradeB}, true)
	if stats.ACount != 1 || stats.SHCount != 1 {
		t.Fatalf("after B->A: A=%d SH=%d", stats.ACount, stats.SHCount)
	}
	// Same grade twice only bumps.
	applyGradeChange(&stats, osu.GradeA, store.Score{Grade: osu.GradeA}, true)
	if stats.ACount != 2 {
		t.Fatalf("repeat grade: A=%d", stats.ACount)
	}
}

func TestSubmissionGrade(t *testing.T) {
	failed := submission{Passed: false, GradeStr: "S"}
	if g := submissionGrade(failed); g != osu.GradeF {
		t.Fatalf("failed play graded %v", g)
	}
	hiddenS := submission{Passed: true, GradeStr: "S", Mods: osu.ModHidden}
	if g := submissionGrade(hiddenS); g != osu.GradeSH {
		t.Fatalf("hidden S graded %v", g)
	}
	plainS := submission{Passed: true, GradeStr: "S"}
	if g := submissionGrade(plainS); g != osu.GradeS {
		t.Fatalf("plain S graded %v", g)
	}
}

func TestBuildCharts(t *testing.T) {
	in := chartInput{
		Map: store.Beatmap{ID: 42, SetID: 7, Plays: 100, Passes: 60,
			Artist: "artist", Title: "title", Version: "ver"},
		Score: store.Score{ID: 9001, UserID: 3, Score: 1234567, MaxCombo: 812,
			Acc: 98.5, PP: 317.4},
		Prev:          store.Score{Score: 1000000, PP: 280},
		HasPrev:       true,
		MapRankBefore: 5,
		MapRankAfter:  1,
		StatsBefore:   store.ModeStats{RankedScore: 10, TotalScore: 20, PP: 1000, Acc: 98, MaxCombo: 700},
		StatsAfter:    store.ModeStats{RankedScore: 15, TotalScore: 25, PP: 1040, Acc: 98.2, MaxCombo: 812},
		RankBefore:    120,
		RankAfter:     110,
		Unlocked: []store.Achievement{
			{File: "osu-combo-500", Name: "500 Combo", Descr: "500 big ones!"},
		},
	}
	chart := buildCharts(in)

	blocks := strings.Split(chart, "\n")
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if !strings.HasPrefix(blocks[0], "beatmapId:42|beatmapSetId:7|") {
		t.Fatalf("header %q", blocks[0])
	}
	if !strings.Contains(blocks[1], "chartId:beatmap") ||
		!strings.Contains(blocks[1], "rankBefore:5|rankAfter:1") ||
		!strings.Contains(blocks[1], fmt.Sprintf("onlineScoreId:%d", in.Score.ID)) {
		t.Fatalf("map chart %q", blocks[1])
	}
	if !strings.Contains(blocks[2], "chartId:overall") ||
		!strings.Contains(blocks[2], "rankBefore:120|rankAfter:110") ||
		!strings.Contains(blocks[2], "ppBefore:1000|ppAfter:1040") {
		t.Fatalf("overall chart %q", blocks[2])
	}
	if !strings.Contains(blocks[2], "achievements-new:osu-combo-500+500 Combo+500 big ones!") {
		t.Fatalf("medals %q", blocks[2])
	}
}

func TestBuildChartsNoPreviousLeavesBlanks(t *testing.T) {
	in := chartInput{
		Map:          store.Beatmap{ID: 1, SetID: 1},
		Score:        store.Score{ID: 5, Score: 100, PP: 50, Acc: 90, MaxCombo: 10},
		MapRankAfter: 3,
	}
	chart := buildCharts(in)
	if !strings.Contains(chart, "rankBefore:|rankAfter:3") {
		t.Fatalf("first score should leave before fields blank:\n%s", chart)
	}
	if !strings.Contains(chart, "achievements-new:\n") && !strings.HasSuffix(chart, "achievements-new:") {
		t.Fatalf("no medals should render an empty list:\n%s", chart)
	}
}

func TestAchievementEarned(t *testing.T) {
	std := store.Score{Mode: osu.ModeVanillaStd, MaxCombo: 600, Perfect: true}
	fiveStar := store.Beatmap{Diff: 5.4}

	if !achievementEarned("osu-skill-pass-5", fiveStar, std) {
		t.Fatal("5.4 stars should earn skill-pass-5")
	}
	if achievementEarned("osu-skill-pass-6", fiveStar, std) {
		t.Fatal("5.4 stars should not earn skill-pass-6")
	}
	nfScore := std
	nfScore.Mods = osu.ModNoFail
	if achievementEarned("osu-skill-pass-5", fiveStar, nfScore) {
		t.Fatal("no-fail should not earn skill passes")
	}
	if !achievementEarned("osu-skill-fc-5", fiveStar, std) {
		t.Fatal("perfect 5.4 stars should earn skill-fc-5")
	}
	imperfect := std
	imperfect.Perfect = false
	if achievementEarned("osu-skill-fc-5", fiveStar, imperfect) {
		t.Fatal("non-fc should not earn fc medals")
	}
	if !achievementEarned("osu-combo-500", fiveStar, std) {
		t.Fatal("600 combo should earn combo-500")
	}
	if achievementEarned("osu-combo-750", fiveStar, std) {
		t.Fatal("600 combo should not earn combo-750")
	}
	mania := std
	mania.Mode = osu.ModeVanillaMania
	if achievementEarned("osu-skill-pass-5", fiveStar, mania) {
		t.Fatal("skill medals are standard only")
	}
	if achievementEarned("osu-unknown-42", fiveStar, std) {
		t.Fatal("unknown medal key earned")
	}
}

func TestStarBracket(t *testing.T) {
	cases := []struct {
		diff float64
		want int
	}{{0.5, 0}, {1.0, 1}, {5.99, 5}, {10.0, 10}, {11.5, 10}}
	for _, tc := range cases {
		if got := starBracket(tc.diff); got != tc.want {
			t.Fatalf("starBracket(%f) = %d, want %d", tc.diff, got, tc.want)
		}
	}
}

func TestPPCapKeyedOnModeAndFlashlight(t *testing.T) {
	cfg := config.Config{
		PPCapVanilla:   1500,
		PPCapVanillaFL: 1200,
		PPCapRelax:     2500,
		PPCapRelaxFL:   2000,
	}
	cases := []struct {
		mode osu.GameMode
		mods osu.Mods
		want uint32
	}{
		{osu.ModeVanillaStd, 0, 1500},
		{osu.ModeVanillaStd, osu.ModHidden, 1500},
		{osu.ModeVanillaStd, osu.ModFlashlight, 1200},
		{osu.ModeVanillaStd, osu.ModHidden | osu.ModFlashlight, 1200},
		{osu.ModeRelaxStd, 0, 2500},
		{osu.ModeRelaxStd, osu.ModFlashlight, 2000},
	}
	for _, tc := range cases {
		if got := ppCap(cfg, tc.mode, tc.mods); got != tc.want {
			t.Fatalf("ppCap(%v, %v) = %d, want %d", tc.mode, tc.mods, got, tc.want)
		}
	}
}
