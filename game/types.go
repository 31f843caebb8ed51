package game

import (
	"math"
	"time"
)

// Arena constants
const (
	// The arena spans [-BoundaryX, BoundaryX] x [-BoundaryY, BoundaryY].
	BoundaryX = 16384.0
	BoundaryY = BoundaryX / 2

	// MaxWingmen is the per-requester cap on live wingmen.
	MaxWingmen = 5

	// ProtocolVersion is sent in the Login frame.
	ProtocolVersion = 5

	// Horizon requested at login; the server only streams updates for players
	// within this window around our aircraft.
	HorizonX = 3000
	HorizonY = 3000

	// TickInterval is the default cadence of wingman control ticks.
	TickInterval = 50 * time.Millisecond
)

// Player status
const (
	StatusAlive = 0
	StatusDead  = 1
)

// Player is the last known state of one player on a server.
type Player struct {
	ID     uint16  `json:"id"`
	Name   string  `json:"name"`
	Team   uint16  `json:"team"`
	Status int     `json:"status"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VelX   float64 `json:"velX"`
	VelY   float64 `json:"velY"`
	Rot    float64 `json:"rot"` // Heading in radians
	Keys   uint8   `json:"keys"`

	// Clock is the server clock of the newest applied PlayerUpdate.
	Clock    uint32    `json:"-"`
	HasClock bool      `json:"-"`
	LastSeen time.Time `json:"-"`
}

// Alive reports whether the player is currently flying.
func (p Player) Alive() bool {
	return p.Status == StatusAlive
}

// Distance returns the Euclidean distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// NormalizeAngle maps angle into [0, 2*pi). NaN and infinities map to 0.
func NormalizeAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	angle = math.Mod(angle, 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	if angle >= 2*math.Pi {
		angle = 0
	}
	return angle
}

// AngleDiff returns the signed shortest rotation from `from` to `to`, in
// (-pi, pi]. Positive values turn clockwise in screen coordinates.
func AngleDiff(from, to float64) float64 {
	d := NormalizeAngle(to) - NormalizeAngle(from)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// Bearing returns the heading from (x1, y1) toward (x2, y2) in [0, 2*pi).
func Bearing(x1, y1, x2, y2 float64) float64 {
	return NormalizeAngle(math.Atan2(y2-y1, x2-x1))
}
