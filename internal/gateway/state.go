package gateway

// State is the connection state of a session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Identifying
	Resuming
	Disconnected
)

var stateNames = map[State]string{
	Idle:         "idle",
	Connecting:   "connecting",
	Connected:    "connected",
	Identifying:  "identifying",
	Resuming:     "resuming",
	Disconnected: "disconnected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
