package packet

import (
	"bytes"
	"testing"

	"bancho/server/internal/osu"
)

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello world", "#osu", string(make([]byte, 200))}
	for _, s := range cases {
		w := NewWriter(SrvNotification).String(s)
		b := w.Bytes()
		r := NewReader(b[HeaderLen:])
		if got := r.String(); got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
		if err := r.Err(); err != nil {
			t.Fatalf("round trip %q: %v", s, err)
		}
	}
}

func TestEmptyStringIsSingleNullByte(t *testing.T) {
	b := NewWriter(SrvNotification).String("").Bytes()
	if payload := b[HeaderLen:]; len(payload) != 1 || payload[0] != 0x00 {
		t.Fatalf("empty string encoded as % x", payload)
	}
}

func TestULEB128MultiByteLength(t *testing.T) {
	s := string(bytes.Repeat([]byte{'x'}, 300))
	b := NewWriter(SrvNotification).String(s).Bytes()
	payload := b[HeaderLen:]
	// 0x0b, then 300 = 0xac 0x02 in uleb128.
	if payload[0] != 0x0b || payload[1] != 0xac || payload[2] != 0x02 {
		t.Fatalf("length prefix % x", payload[:3])
	}
	r := NewReader(payload)
	if got := r.String(); got != s {
		t.Fatalf("decoded %d bytes", len(got))
	}
}

func TestHeaderLayout(t *testing.T) {
	b := NewWriter(SrvUserID).I32(1001).Bytes()
	want := []byte{0x05, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xe9, 0x03, 0x00, 0x00}
	if !bytes.Equal(b, want) {
		t.Fatalf("got % x want % x", b, want)
	}
}

func TestI32ListRoundTrip(t *testing.T) {
	for _, ids := range [][]int32{nil, {1}, {1, 2, 3, -5, 1 << 30}} {
		b := NewWriter(SrvFriendsList).I32List(ids).Bytes()
		r := NewReader(b[HeaderLen:])
		got := r.I32List()
		if err := r.Err(); err != nil {
			t.Fatalf("%v: %v", ids, err)
		}
		if len(got) != len(ids) {
			t.Fatalf("%v: got %v", ids, got)
		}
		for i := range ids {
			if got[i] != ids[i] {
				t.Fatalf("%v: got %v", ids, got)
			}
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{Sender: "cmyui", Text: "hello!", Recipient: "#osu", SenderID: 3}
	b := NewWriter(SrvSendMessage).Message(m).Bytes()
	r := NewReader(b[HeaderLen:])
	got := r.Message()
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v", got)
	}
}

func sampleMatch() MatchState {
	m := MatchState{
		ID:           3,
		InProgress:   false,
		Mods:         osu.ModDoubleTime | osu.ModHidden,
		Name:         "my room",
		Password:     "hunter2",
		MapName:      "artist - title [diff]",
		MapID:        1917,
		MapMD5:       "1c9898652a09f0e0ae4a26b6a2a774ae",
		HostID:       1001,
		Mode:         0,
		WinCondition: osu.WinByScore,
		TeamType:     osu.TeamTypeTeamVS,
		Seed:         42,
	}
	for i := range m.SlotStatus {
		m.SlotStatus[i] = osu.SlotOpen
	}
	m.SlotStatus[0] = osu.SlotNotReady
	m.SlotUserID[0] = 1001
	m.SlotTeam[0] = osu.TeamRed
	m.SlotStatus[4] = osu.SlotReady
	m.SlotUserID[4] = 1002
	m.SlotTeam[4] = osu.TeamBlue
	m.SlotStatus[7] = osu.SlotLocked
	return m
}

func TestMatchRoundTrip(t *testing.T) {
	m := sampleMatch()
	b := NewWriter(SrvUpdateMatch).Match(m, true).Bytes()
	r := NewReader(b[HeaderLen:])
	got := r.Match()
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v\nwant %+v", got, m)
	}
}

func TestMatchRoundTripFreemods(t *testing.T) {
	m := sampleMatch()
	m.Freemods = true
	m.Mods = osu.ModDoubleTime
	m.SlotMods[0] = osu.ModHidden
	m.SlotMods[4] = osu.ModHardRock | osu.ModHidden
	b := NewWriter(SrvUpdateMatch).Match(m, true).Bytes()
	r := NewReader(b[HeaderLen:])
	got := r.Match()
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v\nwant %+v", got, m)
	}
}

func TestMatchPasswordRedaction(t *testing.T) {
	m := sampleMatch()

	withPW := NewWriter(SrvUpdateMatch).Match(m, true).Bytes()
	redacted := NewWriter(SrvUpdateMatch).Match(m, false).Bytes()
	if bytes.Equal(withPW, redacted) {
		t.Fatal("redaction did not change encoding")
	}
	if bytes.Contains(redacted, []byte("hunter2")) {
		t.Fatal("password leaked in redacted encoding")
	}

	// Redacted form still marks the password present.
	r := NewReader(redacted[HeaderLen:])
	got := r.Match()
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if got.Password != "" {
		t.Fatalf("redacted password decoded as %q", got.Password)
	}

	// An unset password encodes as a plain empty string either way.
	m.Password = ""
	a := NewWriter(SrvUpdateMatch).Match(m, true).Bytes()
	b := NewWriter(SrvUpdateMatch).Match(m, false).Bytes()
	if !bytes.Equal(a, b) {
		t.Fatal("empty password should encode identically")
	}
}

func TestScoreFrameRoundTrip(t *testing.T) {
	f := ScoreFrame{
		Time: 12345, SlotID: 4,
		Count300: 100, Count100: 5, Count50: 1,
		CountGeki: 20, CountKatu: 3, CountMiss: 2,
		TotalScore: 727727, MaxCombo: 250, CurrentCombo: 12,
		Perfect: false, CurrentHP: 180, TagByte: 0,
	}
	for _, v2 := range []bool{false, true} {
		f.ScoreV2 = v2
		if v2 {
			f.ComboPortion = 0.7
			f.BonusPortion = 0.3
		}
		b := NewWriter(SrvMatchScoreUpdate).ScoreFrame(f).Bytes()
		r := NewReader(b[HeaderLen:])
		got := r.ScoreFrame()
		if err := r.Err(); err != nil {
			t.Fatal(err)
		}
		if got != f {
			t.Fatalf("v2=%v: got %+v", v2, got)
		}
	}
}

func TestDecoderWalksFrames(t *testing.T) {
	var body []byte
	body = append(body, NewWriter(OsuPing).Bytes()...)
	body = append(body, NewWriter(OsuChannelJoin).String("#osu").Bytes()...)
	body = append(body, 0x01, 0x02) // trailing runt, ignored

	d := NewDecoder(body)

	id, _, ok, err := d.Next()
	if err != nil || !ok || id != OsuPing {
		t.Fatalf("frame 1: id=%d ok=%v err=%v", id, ok, err)
	}
	id, p, ok, err := d.Next()
	if err != nil || !ok || id != OsuChannelJoin {
		t.Fatalf("frame 2: id=%d ok=%v err=%v", id, ok, err)
	}
	if name := p.String(); name != "#osu" {
		t.Fatalf("frame 2 payload %q", name)
	}
	if _, _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("expected clean end, ok=%v err=%v", ok, err)
	}
}

func TestDecoderTruncatedPayload(t *testing.T) {
	b := NewWriter(OsuChannelJoin).String("#osu").Bytes()
	d := NewDecoder(b[:len(b)-2]) // header claims more than remains
	if _, _, _, err := d.Next(); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x00}) // too short for an i32
	_ = r.I32()
	if r.Err() == nil {
		t.Fatal("expected truncation error")
	}
	// Further reads stay zero, error stays put.
	if v := r.U16(); v != 0 {
		t.Fatalf("read after error returned %d", v)
	}
	if r.Err() == nil {
		t.Fatal("error was cleared")
	}
}

func TestReaderBadExistenceByte(t *testing.T) {
	r := NewReader([]byte{0x07})
	_ = r.String()
	if r.Err() == nil {
		t.Fatal("expected error for bad existence byte")
	}
}
