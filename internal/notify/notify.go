// Package notify is the fire-and-forget notification collaborator used to
// tell interested parties that a dispatch happened. The real-time UI
// transport lives outside this process; the default implementation logs.
package notify

import "github.com/rs/zerolog"

type Notifier interface {
	Emit(event string, payload map[string]interface{})
}

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Emit(event string, payload map[string]interface{}) {
	n.log.Info().Str("event", event).Fields(payload).Msg("notification")
}

// Nop discards notifications. Used in tests.
type Nop struct{}

func (Nop) Emit(string, map[string]interface{}) {}
