package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"--gc-wings 3", Command{Kind: KindWings, Count: 3}, true},
		{"--gc-wings", Command{Kind: KindWings, Count: 1}, true},
		{"  --gc-wings   2  ", Command{Kind: KindWings, Count: 2}, true},
		{"--gc-wings 9", Command{Kind: KindWings, Count: 5}, true},
		{"--gc-wings 0", Command{}, false},
		{"--gc-wings 00", Command{}, false},
		{"--gc-wings -4", Command{}, false},
		{"--gc-wings 99999999999999999999", Command{Kind: KindWings, Count: 5}, true},
		{"--gc-wings -99999999999999999999", Command{}, false},
		{"--gc-wings 2 please", Command{Kind: KindWings, Count: 2}, true},
		{"--gc-wings\t4", Command{Kind: KindWings, Count: 4}, true},
		{"--gc-wings abc", Command{}, false},
		{"--gc-wings 3x", Command{}, false},
		{"--gc-call-off", Command{Kind: KindCallOff}, true},
		{"--gc-call-off now", Command{}, false},
		{"--gc-help", Command{Kind: KindHelp}, true},
		{"--gc-help me", Command{}, false},
		{"--gc-version", Command{Kind: KindVersion}, true},
		{"--gc-version please", Command{}, false},
		{"  --gc-version  ", Command{Kind: KindVersion}, true},
		{"--gc-launch", Command{}, false},
		{"--gc", Command{}, false},
		{"--gc-", Command{}, false},
		{"--gc-wings3", Command{}, false},
		{"gc-wings 3", Command{}, false},
		{"hello --gc-wings 3", Command{}, false},
		{"gg", Command{}, false},
		{"", Command{}, false},
		{"--GC-WINGS 3", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCommand(tt.text, 5)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandHonoursMax(t *testing.T) {
	got, ok := ParseCommand("--gc-wings 4", 2)
	assert.True(t, ok)
	assert.Equal(t, 2, got.Count)

	got, ok = ParseCommand("--gc-wings 4", 0)
	assert.True(t, ok)
	assert.Equal(t, 1, got.Count)
}

func TestParseCommandRejectsHostileInput(t *testing.T) {
	_, ok := ParseCommand("--gc-wings 3"+strings.Repeat(" ", MaxCommandLength), 5)
	assert.False(t, ok, "oversized line")

	_, ok = ParseCommand("--gc-wings \xff\xfe", 5)
	assert.False(t, ok, "invalid UTF-8")

	_, ok = ParseCommand("--gc-help \xc3", 5)
	assert.False(t, ok, "truncated UTF-8 sequence")

	assert.NotPanics(t, func() {
		for i := 0; i < 256; i++ {
			ParseCommand("--gc-wings "+string(rune(i)), 5)
			ParseCommand(string([]byte{'-', '-', 'g', 'c', '-', byte(i)}), 5)
		}
	})
}

func TestReplies(t *testing.T) {
	assert.Equal(t, "OK xplay, 3 wings are coming!", wingsReply("xplay", 3))
	assert.Equal(t, "Calling off all wings from xplay", callOffReply("xplay"))
	assert.Equal(t, "Ground Control, standing by for newbie! Use --gc-help for help.", announceLine("newbie"))
	assert.Equal(t, "AIRMASH Ground Control, version "+Version, versionLine())
	assert.Equal(t, []string{
		"--gc-wings: request X attacking wingmen",
		"--gc-call-off: remove any requested wingmen",
		"--gc-version: program version",
	}, helpLines())
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "wings", KindWings.String())
	assert.Equal(t, "call-off", KindCallOff.String())
	assert.Equal(t, "unknown", CommandKind(0).String())
}
