// Package protocol implements the binary frame codec spoken between ground
// control and the game servers. Every websocket message carries exactly one
// frame: a single opcode byte followed by the frame's fields in little-endian
// order.
package protocol

import "fmt"

// Opcode identifies the kind of a frame on the wire.
type Opcode uint8

// Frame opcodes.
const (
	OpLogin         Opcode = 0x01 // client login request
	OpLoginAck      Opcode = 0x02 // server accepted login
	OpPing          Opcode = 0x05 // server ping, must be answered with Pong
	OpPong          Opcode = 0x06 // client ping reply
	OpKeepalive     Opcode = 0x07 // empty keepalive, either direction
	OpError         Opcode = 0x08 // server-side error report
	OpServerClose   Opcode = 0x09 // server is closing the connection
	OpCommand       Opcode = 0x0A // client command (spectate, ...)
	OpPlayerJoin    Opcode = 0x0B // player entered the game
	OpPlayerLeave   Opcode = 0x0C // player left the game
	OpPlayerUpdate  Opcode = 0x0D // position/velocity/heading update
	OpPlayerDeath   Opcode = 0x0E // player was shot down
	OpPlayerRespawn Opcode = 0x0F // player is back in the air
	OpChatMessage   Opcode = 0x14 // public chat line
	OpControlInput  Opcode = 0x1E // wingman movement/fire keys
	OpSpawn         Opcode = 0x1F // launch a wingman aircraft
	OpDespawn       Opcode = 0x20 // remove a wingman aircraft
)

// Key bits carried by ControlInput and PlayerUpdate.
const (
	KeyUp      uint8 = 1 << 0
	KeyDown    uint8 = 1 << 1
	KeyLeft    uint8 = 1 << 2
	KeyRight   uint8 = 1 << 3
	KeyFire    uint8 = 1 << 4
	KeySpecial uint8 = 1 << 5
)

// Player status values carried by PlayerJoin.
const (
	StatusAlive uint8 = 0
	StatusDead  uint8 = 1
)

// Frame is one protocol message. The set of implementations is closed: every
// frame kind lives in this file, plus Unknown for opcodes this build does not
// understand.
type Frame interface {
	Opcode() Opcode
	frame()
}

// Login is the first frame a client sends after connecting.
type Login struct {
	Protocol uint8
	Name     string
	Session  string
	HorizonX uint16
	HorizonY uint16
	Flag     string
}

// LoginAck confirms a login and tells the client its own player id.
type LoginAck struct {
	ID    uint16
	Team  uint16
	Clock uint32
	Room  string
}

// Ping is sent by the server; the client answers with Pong{Num}.
type Ping struct {
	Clock uint32
	Num   uint32
}

// Pong answers a Ping.
type Pong struct {
	Num uint32
}

// Keepalive has no payload.
type Keepalive struct{}

// Error reports a server-side problem with the previous request.
type Error struct {
	Code    uint8
	Message string
}

// ServerClose announces that the server is going away.
type ServerClose struct {
	Reason string
}

// Command is a generic client command such as "spectate".
type Command struct {
	Com  string
	Data string
}

// PlayerJoin announces a player, including players already present at login.
type PlayerJoin struct {
	ID     uint16
	Status uint8
	Name   string
	Team   uint16
	X      float32
	Y      float32
	Rot    float32
}

// PlayerLeave announces that a player disconnected.
type PlayerLeave struct {
	ID uint16
}

// PlayerUpdate carries a player's movement state stamped with the server clock.
type PlayerUpdate struct {
	Clock uint32
	ID    uint16
	Keys  uint8
	X     float32
	Y     float32
	Rot   float32
	VelX  float32
	VelY  float32
}

// PlayerDeath reports that ID was shot down by Killer.
type PlayerDeath struct {
	ID     uint16
	Killer uint16
	X      float32
	Y      float32
}

// PlayerRespawn reports that ID is flying again.
type PlayerRespawn struct {
	ID  uint16
	X   float32
	Y   float32
	Rot float32
}

// ChatMessage is a public chat line. ID is the sender; it is ignored by the
// server on outbound messages.
type ChatMessage struct {
	ID   uint16
	Text string
}

// ControlInput sets the pressed keys and desired heading of one wingman.
type ControlInput struct {
	Wingman uint32
	Seq     uint32
	Keys    uint8
	Heading float32
}

// Spawn asks the server to launch a bot aircraft flying under Name.
type Spawn struct {
	Wingman uint32
	Name    string
}

// Despawn removes a bot aircraft previously launched with Spawn.
type Despawn struct {
	Wingman uint32
}

// Unknown holds a frame whose opcode this build does not know. An empty
// payload always decodes as nil, so Unknown{Payload: []byte{}} comes back
// from a round trip as Unknown{}.
type Unknown struct {
	Code    Opcode
	Payload []byte
}

func (Login) Opcode() Opcode         { return OpLogin }
func (LoginAck) Opcode() Opcode      { return OpLoginAck }
func (Ping) Opcode() Opcode          { return OpPing }
func (Pong) Opcode() Opcode          { return OpPong }
func (Keepalive) Opcode() Opcode     { return OpKeepalive }
func (Error) Opcode() Opcode         { return OpError }
func (ServerClose) Opcode() Opcode   { return OpServerClose }
func (Command) Opcode() Opcode       { return OpCommand }
func (PlayerJoin) Opcode() Opcode    { return OpPlayerJoin }
func (PlayerLeave) Opcode() Opcode   { return OpPlayerLeave }
func (PlayerUpdate) Opcode() Opcode  { return OpPlayerUpdate }
func (PlayerDeath) Opcode() Opcode   { return OpPlayerDeath }
func (PlayerRespawn) Opcode() Opcode { return OpPlayerRespawn }
func (ChatMessage) Opcode() Opcode   { return OpChatMessage }
func (ControlInput) Opcode() Opcode  { return OpControlInput }
func (Spawn) Opcode() Opcode         { return OpSpawn }
func (Despawn) Opcode() Opcode       { return OpDespawn }
func (u Unknown) Opcode() Opcode     { return u.Code }

func (Login) frame()         {}
func (LoginAck) frame()      {}
func (Ping) frame()          {}
func (Pong) frame()          {}
func (Keepalive) frame()     {}
func (Error) frame()         {}
func (ServerClose) frame()   {}
func (Command) frame()       {}
func (PlayerJoin) frame()    {}
func (PlayerLeave) frame()   {}
func (PlayerUpdate) frame()  {}
func (PlayerDeath) frame()   {}
func (PlayerRespawn) frame() {}
func (ChatMessage) frame()   {}
func (ControlInput) frame()  {}
func (Spawn) frame()         {}
func (Despawn) frame()       {}
func (Unknown) frame()       {}

// Known reports whether op is one of the opcodes this package decodes.
func Known(op Opcode) bool {
	_, ok := opcodeNames[op]
	return ok
}

var opcodeNames = map[Opcode]string{
	OpLogin:         "Login",
	OpLoginAck:      "LoginAck",
	OpPing:          "Ping",
	OpPong:          "Pong",
	OpKeepalive:     "Keepalive",
	OpError:         "Error",
	OpServerClose:   "ServerClose",
	OpCommand:       "Command",
	OpPlayerJoin:    "PlayerJoin",
	OpPlayerLeave:   "PlayerLeave",
	OpPlayerUpdate:  "PlayerUpdate",
	OpPlayerDeath:   "PlayerDeath",
	OpPlayerRespawn: "PlayerRespawn",
	OpChatMessage:   "ChatMessage",
	OpControlInput:  "ControlInput",
	OpSpawn:         "Spawn",
	OpDespawn:       "Despawn",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint8(op))
}
