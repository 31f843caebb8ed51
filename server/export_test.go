package server

// Chat lines exposed to the external test package.
var (
	WingsReply   = wingsReply
	CallOffReply = callOffReply
	VersionLine  = versionLine
)
