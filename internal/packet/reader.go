package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"bancho/server/internal/osu"
)

// ErrTruncated is returned when a payload declares more data than the
// request body carries, or a composite runs past its payload. It means
// the stream itself is broken; callers should drop the session.
var ErrTruncated = errors.New("packet: truncated payload")

// Decoder walks the frames of one client request body.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Next returns the next frame's id and payload reader. ok is false once
// fewer than HeaderLen bytes remain; trailing sub-header bytes are not
// an error, clients pad freely.
func (d *Decoder) Next() (id ID, payload *Reader, ok bool, err error) {
	if len(d.buf)-d.off < HeaderLen {
		return 0, nil, false, nil
	}
	id = ID(binary.LittleEndian.Uint16(d.buf[d.off:]))
	length := binary.LittleEndian.Uint32(d.buf[d.off+3:])
	d.off += HeaderLen
	if uint32(len(d.buf)-d.off) < length {
		return 0, nil, false, fmt.Errorf("%w: packet %d declares %d bytes, %d remain",
			ErrTruncated, id, length, len(d.buf)-d.off)
	}
	payload = &Reader{b: d.buf[d.off : d.off+int(length)]}
	d.off += int(length)
	return id, payload, true, nil
}

// Reader decodes one frame's payload. Read errors are sticky: after the
// first short read every further call returns zero values, and Err()
// reports the failure once at the end of the handler.
type Reader struct {
	b   []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) Err() error { return r.err }

// Remaining returns the undecoded tail of the payload.
func (r *Reader) Remaining() []byte { return r.b[r.off:] }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) U8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) Bool() bool { return r.U8() != 0 }

func (r *Reader) U16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *Reader) I16() int16 { return int16(r.U16()) }

func (r *Reader) U32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *Reader) I32() int32 { return int32(r.U32()) }

func (r *Reader) U64() uint64 {
	p := r.take(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) F64() float64 { return math.Float64frombits(r.U64()) }

// String decodes an osu! string: one existence byte (0x00 absent, 0x0b
// present), then a ULEB128 length and that many bytes of UTF-8.
func (r *Reader) String() string {
	switch r.U8() {
	case 0x00:
		return ""
	case 0x0b:
		n := r.uleb128()
		p := r.take(n)
		if p == nil {
			return ""
		}
		return string(p)
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: bad string existence byte", ErrTruncated)
		}
		return ""
	}
}

func (r *Reader) uleb128() int {
	var v, shift uint
	for {
		p := r.take(1)
		if p == nil {
			return 0
		}
		v |= uint(p[0]&0x7f) << shift
		if p[0]&0x80 == 0 {
			return int(v)
		}
		shift += 7
		if shift > 35 {
			r.err = fmt.Errorf("%w: uleb128 overflow", ErrTruncated)
			return 0
		}
	}
}

// I32List decodes a u16 count followed by that many i32s. Used for
// friends lists, presence requests and spectator-less filters.
func (r *Reader) I32List() []int32 {
	n := int(r.U16())
	if r.err != nil {
		return nil
	}
	out := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.I32())
		if r.err != nil {
			return nil
		}
	}
	return out
}

func (r *Reader) Message() Message {
	return Message{
		Sender:    r.String(),
		Text:      r.String(),
		Recipient: r.String(),
		SenderID:  r.I32(),
	}
}

func (r *Reader) Match() MatchState {
	var m MatchState
	m.ID = r.U16()
	m.InProgress = r.Bool()
	r.U8() // match type, unused
	m.Mods = osu.Mods(r.U32())
	m.Name = r.String()
	m.Password = r.String()
	m.MapName = r.String()
	m.MapID = r.I32()
	m.MapMD5 = r.String()
	for i := range m.SlotStatus {
		m.SlotStatus[i] = osu.SlotStatus(r.U8())
	}
	for i := range m.SlotTeam {
		m.SlotTeam[i] = osu.MatchTeam(r.U8())
	}
	for i, st := range m.SlotStatus {
		if st&osu.SlotHasPlayer != 0 {
			m.SlotUserID[i] = r.I32()
		}
	}
	m.HostID = r.I32()
	m.Mode = r.U8()
	m.WinCondition = osu.WinCondition(r.U8())
	m.TeamType = osu.TeamType(r.U8())
	m.Freemods = r.Bool()
	if m.Freemods {
		for i := range m.SlotMods {
			m.SlotMods[i] = osu.Mods(r.U32())
		}
	}
	m.Seed = r.I32()
	return m
}

func (r *Reader) ScoreFrame() ScoreFrame {
	var f ScoreFrame
	f.Time = r.I32()
	f.SlotID = r.U8()
	f.Count300 = r.U16()
	f.Count100 = r.U16()
	f.Count50 = r.U16()
	f.CountGeki = r.U16()
	f.CountKatu = r.U16()
	f.CountMiss = r.U16()
	f.TotalScore = r.I32()
	f.MaxCombo = r.U16()
	f.CurrentCombo = r.U16()
	f.Perfect = r.Bool()
	f.CurrentHP = r.U8()
	f.TagByte = r.U8()
	f.ScoreV2 = r.Bool()
	if f.ScoreV2 {
		f.ComboPortion = r.F32()
		f.BonusPortion = r.F32()
	}
	return f
}
