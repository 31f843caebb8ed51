package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Chat commands understood by ground control
const (
	CommandPrefix = "--gc-"

	CmdWings   = CommandPrefix + "wings"
	CmdCallOff = CommandPrefix + "call-off"
	CmdHelp    = CommandPrefix + "help"
	CmdVersion = CommandPrefix + "version"
)

// Version is reported by the version command. Overridden at link time.
var Version = "0.3.0"

// CommandKind identifies a parsed chat command.
type CommandKind int

const (
	KindWings CommandKind = iota + 1
	KindCallOff
	KindHelp
	KindVersion
)

func (k CommandKind) String() string {
	switch k {
	case KindWings:
		return "wings"
	case KindCallOff:
		return "call-off"
	case KindHelp:
		return "help"
	case KindVersion:
		return "version"
	}
	return "unknown"
}

// Command is one chat command. Count is only meaningful for KindWings and is
// already capped at maxWings.
type Command struct {
	Kind  CommandKind
	Count int
}

// ParseCommand recognizes a ground control command in a chat line. Ordinary
// chat, oversized lines, invalid UTF-8, malformed arguments and wing counts
// below one all yield false. Only the first two fields of the line are
// looked at.
func ParseCommand(text string, maxWings int) (Command, bool) {
	if len(text) > MaxCommandLength || !utf8.ValidString(text) {
		return Command{}, false
	}
	if !strings.HasPrefix(strings.TrimLeft(text, " \t"), CommandPrefix) {
		return Command{}, false
	}

	keyword, arg, extra := splitCommand(text)
	switch keyword {
	case CmdWings:
		n := 1
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil {
				// Overflowing digits still mean "as many as allowed".
				if !errors.Is(err, strconv.ErrRange) || strings.HasPrefix(arg, "-") {
					return Command{}, false
				}
				v = maxWings
			}
			if v < 1 {
				return Command{}, false
			}
			n = v
		}
		return Command{Kind: KindWings, Count: clampCount(n, maxWings)}, true

	case CmdCallOff:
		if arg != "" || extra {
			return Command{}, false
		}
		return Command{Kind: KindCallOff}, true

	case CmdHelp, CmdVersion:
		if arg != "" || extra {
			return Command{}, false
		}
		if keyword == CmdHelp {
			return Command{Kind: KindHelp}, true
		}
		return Command{Kind: KindVersion}, true
	}
	return Command{}, false
}

// splitCommand returns the first two whitespace separated fields of text and
// whether anything follows them, without allocating a slice of every field.
func splitCommand(text string) (first, second string, more bool) {
	rest := strings.TrimSpace(text)
	first, rest = cutField(rest)
	second, rest = cutField(rest)
	return first, second, rest != ""
}

func cutField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t\r\n")
}

func clampCount(n, maxWings int) int {
	if maxWings < 1 {
		maxWings = 1
	}
	if n > maxWings {
		return maxWings
	}
	return n
}

// helpLines is the reply to the help command, one chat message per line.
func helpLines() []string {
	return []string{
		CmdWings + ": request X attacking wingmen",
		CmdCallOff + ": remove any requested wingmen",
		CmdVersion + ": program version",
	}
}

func versionLine() string {
	return "AIRMASH Ground Control, version " + Version
}

func wingsReply(name string, granted int) string {
	return fmt.Sprintf("OK %s, %d wings are coming!", name, granted)
}

func callOffReply(name string) string {
	return fmt.Sprintf("Calling off all wings from %s", name)
}

func announceLine(name string) string {
	return fmt.Sprintf("Ground Control, standing by for %s! Use %s for help.", name, CmdHelp)
}
