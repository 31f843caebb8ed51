package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire limits for length-prefixed strings.
const (
	MaxShortString = math.MaxUint8  // names, flags, rooms
	MaxLongString  = math.MaxUint16 // chat text, error messages
)

// ErrEmptyFrame is returned when decoding a zero-length message.
var ErrEmptyFrame = errors.New("protocol: empty frame")

// DecodeError describes a frame that ended before all of its fields were read.
type DecodeError struct {
	Opcode Opcode
	Field  string
	Offset int // offset of the field that could not be read
	Need   int // bytes the field needed
	Have   int // bytes remaining at Offset
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: truncated frame 0x%02x at offset %d reading %s: need %d bytes, have %d",
		uint8(e.Opcode), e.Offset, e.Field, e.Need, e.Have)
}

// EncodeError describes a frame that cannot be represented on the wire.
type EncodeError struct {
	Opcode Opcode
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("protocol: cannot encode frame 0x%02x: %s", uint8(e.Opcode), e.Reason)
}

// Encode serializes f into a freshly allocated buffer.
func Encode(f Frame) ([]byte, error) {
	if f == nil {
		return nil, &EncodeError{Reason: "nil frame"}
	}
	e := &encoder{op: f.Opcode()}
	e.u8(uint8(f.Opcode()))

	switch f := f.(type) {
	case Login:
		e.u8(f.Protocol)
		e.str8("name", f.Name)
		e.str8("session", f.Session)
		e.u16(f.HorizonX)
		e.u16(f.HorizonY)
		e.str8("flag", f.Flag)
	case LoginAck:
		e.u16(f.ID)
		e.u16(f.Team)
		e.u32(f.Clock)
		e.str8("room", f.Room)
	case Ping:
		e.u32(f.Clock)
		e.u32(f.Num)
	case Pong:
		e.u32(f.Num)
	case Keepalive:
	case Error:
		e.u8(f.Code)
		e.str16("message", f.Message)
	case ServerClose:
		e.str16("reason", f.Reason)
	case Command:
		e.str8("com", f.Com)
		e.str8("data", f.Data)
	case PlayerJoin:
		e.u16(f.ID)
		e.u8(f.Status)
		e.str8("name", f.Name)
		e.u16(f.Team)
		e.f32(f.X)
		e.f32(f.Y)
		e.f32(f.Rot)
	case PlayerLeave:
		e.u16(f.ID)
	case PlayerUpdate:
		e.u32(f.Clock)
		e.u16(f.ID)
		e.u8(f.Keys)
		e.f32(f.X)
		e.f32(f.Y)
		e.f32(f.Rot)
		e.f32(f.VelX)
		e.f32(f.VelY)
	case PlayerDeath:
		e.u16(f.ID)
		e.u16(f.Killer)
		e.f32(f.X)
		e.f32(f.Y)
	case PlayerRespawn:
		e.u16(f.ID)
		e.f32(f.X)
		e.f32(f.Y)
		e.f32(f.Rot)
	case ChatMessage:
		e.u16(f.ID)
		e.str16("text", f.Text)
	case ControlInput:
		e.u32(f.Wingman)
		e.u32(f.Seq)
		e.u8(f.Keys)
		e.f32(f.Heading)
	case Spawn:
		e.u32(f.Wingman)
		e.str8("name", f.Name)
	case Despawn:
		e.u32(f.Wingman)
	case Unknown:
		if Known(f.Code) {
			return nil, &EncodeError{Opcode: f.Code, Reason: "unknown frame shadows a known opcode"}
		}
		e.buf = append(e.buf, f.Payload...)
	default:
		return nil, &EncodeError{Opcode: f.Opcode(), Reason: fmt.Sprintf("unsupported frame type %T", f)}
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// Decode parses one frame from b. Unrecognized opcodes produce Unknown;
// truncated frames produce a *DecodeError. Bytes after the last field of a
// known frame are ignored. Decode never retains b.
func Decode(b []byte) (Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}
	op := Opcode(b[0])
	d := &decoder{op: op, buf: b, off: 1}

	var f Frame
	switch op {
	case OpLogin:
		f = Login{
			Protocol: d.u8("protocol"),
			Name:     d.str8("name"),
			Session:  d.str8("session"),
			HorizonX: d.u16("horizonX"),
			HorizonY: d.u16("horizonY"),
			Flag:     d.str8("flag"),
		}
	case OpLoginAck:
		f = LoginAck{
			ID:    d.u16("id"),
			Team:  d.u16("team"),
			Clock: d.u32("clock"),
			Room:  d.str8("room"),
		}
	case OpPing:
		f = Ping{Clock: d.u32("clock"), Num: d.u32("num")}
	case OpPong:
		f = Pong{Num: d.u32("num")}
	case OpKeepalive:
		f = Keepalive{}
	case OpError:
		f = Error{Code: d.u8("code"), Message: d.str16("message")}
	case OpServerClose:
		f = ServerClose{Reason: d.str16("reason")}
	case OpCommand:
		f = Command{Com: d.str8("com"), Data: d.str8("data")}
	case OpPlayerJoin:
		f = PlayerJoin{
			ID:     d.u16("id"),
			Status: d.u8("status"),
			Name:   d.str8("name"),
			Team:   d.u16("team"),
			X:      d.f32("x"),
			Y:      d.f32("y"),
			Rot:    d.f32("rot"),
		}
	case OpPlayerLeave:
		f = PlayerLeave{ID: d.u16("id")}
	case OpPlayerUpdate:
		f = PlayerUpdate{
			Clock: d.u32("clock"),
			ID:    d.u16("id"),
			Keys:  d.u8("keys"),
			X:     d.f32("x"),
			Y:     d.f32("y"),
			Rot:   d.f32("rot"),
			VelX:  d.f32("velX"),
			VelY:  d.f32("velY"),
		}
	case OpPlayerDeath:
		f = PlayerDeath{
			ID:     d.u16("id"),
			Killer: d.u16("killer"),
			X:      d.f32("x"),
			Y:      d.f32("y"),
		}
	case OpPlayerRespawn:
		f = PlayerRespawn{
			ID:  d.u16("id"),
			X:   d.f32("x"),
			Y:   d.f32("y"),
			Rot: d.f32("rot"),
		}
	case OpChatMessage:
		f = ChatMessage{ID: d.u16("id"), Text: d.str16("text")}
	case OpControlInput:
		f = ControlInput{
			Wingman: d.u32("wingman"),
			Seq:     d.u32("seq"),
			Keys:    d.u8("keys"),
			Heading: d.f32("heading"),
		}
	case OpSpawn:
		f = Spawn{Wingman: d.u32("wingman"), Name: d.str8("name")}
	case OpDespawn:
		f = Despawn{Wingman: d.u32("wingman")}
	default:
		u := Unknown{Code: op}
		if len(b) > 1 {
			u.Payload = append([]byte(nil), b[1:]...)
		}
		return u, nil
	}

	if d.err != nil {
		return nil, d.err
	}
	return f, nil
}

type encoder struct {
	op  Opcode
	buf []byte
	err error
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) str8(field, s string) {
	if len(s) > MaxShortString {
		e.fail(fmt.Sprintf("%s is %d bytes, limit %d", field, len(s), MaxShortString))
		return
	}
	e.u8(uint8(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) str16(field, s string) {
	if len(s) > MaxLongString {
		e.fail(fmt.Sprintf("%s is %d bytes, limit %d", field, len(s), MaxLongString))
		return
	}
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) fail(reason string) {
	if e.err == nil {
		e.err = &EncodeError{Opcode: e.op, Reason: reason}
	}
}

// decoder reads fields in order. The first short read is recorded and every
// later read returns a zero value.
type decoder struct {
	op  Opcode
	buf []byte
	off int
	err error
}

func (d *decoder) take(field string, n int) []byte {
	if d.err != nil {
		return nil
	}
	if have := len(d.buf) - d.off; have < n {
		d.err = &DecodeError{Opcode: d.op, Field: field, Offset: d.off, Need: n, Have: have}
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8(field string) uint8 {
	if b := d.take(field, 1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16(field string) uint16 {
	if b := d.take(field, 2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32(field string) uint32 {
	if b := d.take(field, 4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) f32(field string) float32 {
	return math.Float32frombits(d.u32(field))
}

func (d *decoder) str8(field string) string {
	n := int(d.u8(field))
	if b := d.take(field, n); b != nil {
		return string(b)
	}
	return ""
}

func (d *decoder) str16(field string) string {
	n := int(d.u16(field))
	if b := d.take(field, n); b != nil {
		return string(b)
	}
	return ""
}
