package realtime

// State is the realtime channel lifecycle. Exactly one session is active per
// mounted map screen; transitions drive publish/subscribe availability.
type State int32

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means publish/subscribe are available.
	StateConnected
	// StateReconnecting means a transport error occurred and one reconnect
	// attempt is scheduled after the configured delay.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
