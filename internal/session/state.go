package session

// State is the position of the controller's session state machine.
type State int

const (
	// StateUnauthenticated means no session exists.
	StateUnauthenticated State = iota
	// StateAuthenticating means a sign-in, sign-up or restore is in flight.
	StateAuthenticating
	// StateAuthenticated means a live session exists.
	StateAuthenticated
	// StateRefreshing means a live session is renewing its credentials.
	StateRefreshing
)

func (state State) String() string {
	switch state {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// IsLive reports whether a session exists in this state.
func (state State) IsLive() bool {
	return state == StateAuthenticated || state == StateRefreshing
}
