package server

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/lab1702/ground-control/server"

// meter returns the global meter. It is a no-op unless the host process
// installs a provider.
func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// counter creates an Int64Counter, falling back to a no-op instrument if the
// provider rejects it. Metrics never stop the bot from flying.
func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

// sessionMetrics are shared by every Session of a process.
type sessionMetrics struct {
	framesIn      metric.Int64Counter
	framesOut     metric.Int64Counter
	decodeErrors  metric.Int64Counter
	chatCommands  metric.Int64Counter
	reconnections metric.Int64Counter
}

func newSessionMetrics() *sessionMetrics {
	m := meter()
	return &sessionMetrics{
		framesIn:      counter(m, "groundctrl.frames.received", "Frames received from game servers"),
		framesOut:     counter(m, "groundctrl.frames.sent", "Frames sent to game servers"),
		decodeErrors:  counter(m, "groundctrl.frames.malformed", "Inbound frames discarded because they failed to decode"),
		chatCommands:  counter(m, "groundctrl.commands.accepted", "Chat commands recognized"),
		reconnections: counter(m, "groundctrl.sessions.reconnects", "Reconnect attempts after a session ended"),
	}
}
