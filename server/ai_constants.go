package server

import (
	"fmt"
	"time"
)

// Wingman AI constants
// These control how wingmen chase and shoot at the player who called them in.

const (
	// Pursuit
	FireRange     = 700.0 // Fire only while the target is this close
	TurnTolerance = 0.15  // Radians of heading error before a turn key is held

	// TargetStaleAfter bounds how long a target may go without an update
	// before its wingmen give up on it. An idle requester frees their slots.
	TargetStaleAfter = 60 * time.Second

	// MaxCommandLength is the longest chat line ParseCommand will look at.
	MaxCommandLength = 256
)

// BotNames are the callsigns handed out to wingmen
var BotNames = []string{
	"HAL-9000", "R2-D2", "C-3PO", "Data", "Bishop", "T-800",
	"Johnny-5", "WALL-E", "EVE", "Optimus", "Bender", "K-2SO",
	"BB-8", "IG-88", "HK-47", "GLaDOS", "SHODAN", "Cortana",
	"Friday", "Jarvis", "Vision", "Ultron", "Skynet", "Agent-Smith",
}

// Callsign returns the in-game name a wingman flies under. It is unique per
// wingman id so the session can find the aircraft the server spawned for it.
func Callsign(id WingmanID) string {
	return fmt.Sprintf("%s %d", BotNames[int(id)%len(BotNames)], id)
}
