package server

import (
	"github.com/lab1702/ground-control/game"
	"github.com/lab1702/ground-control/protocol"
)

// pursuitCourse aims straight at the target's last known position. No lead
// is applied: the wingman chases where the target is, not where it will be.
func pursuitCourse(self, target game.Player) float64 {
	return game.Bearing(self.X, self.Y, target.X, target.Y)
}

// steer picks the turn key that brings rot toward heading. Inside
// TurnTolerance no turn key is held so the wingman does not oscillate.
func steer(rot, heading float64) uint8 {
	diff := game.AngleDiff(rot, heading)
	switch {
	case diff > TurnTolerance:
		return protocol.KeyRight
	case diff < -TurnTolerance:
		return protocol.KeyLeft
	}
	return 0
}

// shouldFire reports whether the wingman should hold the trigger.
func shouldFire(self, target game.Player) bool {
	if !target.Alive() {
		return false
	}
	return game.Distance(self.X, self.Y, target.X, target.Y) <= FireRange
}

// pursue computes the keys and heading for one control tick.
func pursue(self, target game.Player) (keys uint8, heading float64) {
	heading = pursuitCourse(self, target)
	keys = protocol.KeyUp | steer(self.Rot, heading)
	if shouldFire(self, target) {
		keys |= protocol.KeyFire
	}
	return keys, heading
}
