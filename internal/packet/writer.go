package packet

import (
	"encoding/binary"
	"math"

	"bancho/server/internal/osu"
)

// Writer builds one outgoing frame. The header is written up front with
// a zero length; Bytes patches the real payload length in.
type Writer struct {
	b []byte
}

func NewWriter(id ID) *Writer {
	b := make([]byte, HeaderLen, HeaderLen+16)
	binary.LittleEndian.PutUint16(b, uint16(id))
	return &Writer{b: b}
}

// Bytes finalizes the frame. The writer must not be reused after.
func (w *Writer) Bytes() []byte {
	binary.LittleEndian.PutUint32(w.b[3:], uint32(len(w.b)-HeaderLen))
	return w.b
}

func (w *Writer) U8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) U16(v uint16) *Writer {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
	return w
}

func (w *Writer) I32(v int32) *Writer { return w.U32(uint32(v)) }

func (w *Writer) U64(v uint64) *Writer {
	w.b = binary.LittleEndian.AppendUint64(w.b, v)
	return w
}

func (w *Writer) I64(v int64) *Writer { return w.U64(uint64(v)) }

func (w *Writer) F32(v float32) *Writer { return w.U32(math.Float32bits(v)) }

func (w *Writer) F64(v float64) *Writer { return w.U64(math.Float64bits(v)) }

// String encodes an osu! string: 0x00 for empty, else 0x0b + ULEB128
// length + bytes.
func (w *Writer) String(s string) *Writer {
	if s == "" {
		return w.U8(0x00)
	}
	w.b = append(w.b, 0x0b)
	w.b = appendULEB128(w.b, uint(len(s)))
	w.b = append(w.b, s...)
	return w
}

func appendULEB128(b []byte, v uint) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func (w *Writer) I32List(vs []int32) *Writer {
	w.U16(uint16(len(vs)))
	for _, v := range vs {
		w.I32(v)
	}
	return w
}

func (w *Writer) Raw(p []byte) *Writer {
	w.b = append(w.b, p...)
	return w
}

func (w *Writer) Message(m Message) *Writer {
	return w.String(m.Sender).String(m.Text).String(m.Recipient).I32(m.SenderID)
}

// Match encodes a room snapshot. The password is only revealed to
// recipients with password rights (the room's own members); everyone
// else sees a present-but-empty marker so clients still render the lock
// icon.
func (w *Writer) Match(m MatchState, sendPW bool) *Writer {
	w.U16(m.ID)
	w.Bool(m.InProgress)
	w.U8(0) // match type
	w.U32(uint32(m.Mods))
	w.String(m.Name)
	switch {
	case m.Password == "":
		w.U8(0x00)
	case sendPW:
		w.String(m.Password)
	default:
		w.U8(0x0b).U8(0x00)
	}
	w.String(m.MapName)
	w.I32(m.MapID)
	w.String(m.MapMD5)
	for _, st := range m.SlotStatus {
		w.U8(uint8(st))
	}
	for _, t := range m.SlotTeam {
		w.U8(uint8(t))
	}
	for i, st := range m.SlotStatus {
		if st&osu.SlotHasPlayer != 0 {
			w.I32(m.SlotUserID[i])
		}
	}
	w.I32(m.HostID)
	w.U8(m.Mode)
	w.U8(uint8(m.WinCondition))
	w.U8(uint8(m.TeamType))
	w.Bool(m.Freemods)
	if m.Freemods {
		for _, mods := range m.SlotMods {
			w.U32(uint32(mods))
		}
	}
	w.I32(m.Seed)
	return w
}

func (w *Writer) ScoreFrame(f ScoreFrame) *Writer {
	w.I32(f.Time)
	w.U8(f.SlotID)
	w.U16(f.Count300)
	w.U16(f.Count100)
	w.U16(f.Count50)
	w.U16(f.CountGeki)
	w.U16(f.CountKatu)
	w.U16(f.CountMiss)
	w.I32(f.TotalScore)
	w.U16(f.MaxCombo)
	w.U16(f.CurrentCombo)
	w.Bool(f.Perfect)
	w.U8(f.CurrentHP)
	w.U8(f.TagByte)
	w.Bool(f.ScoreV2)
	if f.ScoreV2 {
		w.F32(f.ComboPortion)
		w.F32(f.BonusPortion)
	}
	return w
}
