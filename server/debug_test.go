package server

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/lab1702/ground-control/protocol"
)

func TestKeyString(t *testing.T) {
	assert.Equal(t, "-", keyString(0))
	assert.Equal(t, "UP", keyString(protocol.KeyUp))
	assert.Equal(t, "UP|LEFT|FIRE", keyString(protocol.KeyUp|protocol.KeyLeft|protocol.KeyFire))
	assert.Equal(t, "UP|DOWN|LEFT|RIGHT|FIRE|SPECIAL", keyString(0xFF))
}

func TestLogPursuitOnlyAtTrace(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	w := NewWingman(4, Requester{Session: "ws://a", Player: 7}, "xplay", epoch)
	in := protocol.ControlInput{Wingman: 4, Seq: 9, Keys: protocol.KeyUp | protocol.KeyRight}

	var buf bytes.Buffer
	s := NewSession("ws://a", NewRegistry(5), DefaultSessionConfig(), zerolog.New(&buf).Level(zerolog.DebugLevel))
	s.logPursuit(w, in)
	assert.Zero(t, buf.Len())

	s = NewSession("ws://a", NewRegistry(5), DefaultSessionConfig(), zerolog.New(&buf).Level(zerolog.TraceLevel))
	s.logPursuit(w, in)
	out := buf.String()
	assert.Contains(t, out, `"keys":"UP|RIGHT"`)
	assert.Contains(t, out, `"target":"xplay"`)
	assert.Contains(t, out, `"session":"ws://a"`)
}
