package session

// State is a lifecycle state of the Manager
type State int

const (
	StateIdle State = iota
	StateProvisioning
	StateChannelJoining
	StateChannelJoined
	StateProtocolHandshaking
	StateActive
	StateLeaving
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisioning:
		return "provisioning"
	case StateChannelJoining:
		return "channel_joining"
	case StateChannelJoined:
		return "channel_joined"
	case StateProtocolHandshaking:
		return "protocol_handshaking"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
