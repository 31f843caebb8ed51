package server

import (
	"strings"

	"github.com/lab1702/ground-control/protocol"
)

// logPursuit traces one control decision. It costs nothing unless the
// logger is at trace level.
func (s *Session) logPursuit(w *Wingman, in protocol.ControlInput) {
	ev := s.log.Trace()
	if !ev.Enabled() {
		return
	}
	ev.Uint32("wingman", in.Wingman).
		Uint32("seq", in.Seq).
		Str("keys", keyString(in.Keys)).
		Float32("heading", in.Heading).
		Str("target", w.TargetName).
		Int("deaths", w.Deaths()).
		Msg("Pursuit")
}

var keyNames = []struct {
	bit  uint8
	name string
}{
	{protocol.KeyUp, "UP"},
	{protocol.KeyDown, "DOWN"},
	{protocol.KeyLeft, "LEFT"},
	{protocol.KeyRight, "RIGHT"},
	{protocol.KeyFire, "FIRE"},
	{protocol.KeySpecial, "SPECIAL"},
}

// keyString renders a key bitmask as "UP|LEFT|FIRE", or "-" when empty.
func keyString(keys uint8) string {
	var parts []string
	for _, k := range keyNames {
		if keys&k.bit != 0 {
			parts = append(parts, k.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}
