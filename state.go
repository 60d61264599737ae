package livecam

// SessionState is the lifecycle state of a Manager.
type SessionState int

const (
	StateUninitialized SessionState = iota // No engine, nothing in flight
	StateInitializing                      // Engine construction in flight
	StateReady                             // Engine built, staged config applied, capture running
	StateStreaming                         // Publishing to a destination
	StateDisposed                          // Terminal
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// hasEngine reports whether the engine exists in this state.
func (s SessionState) hasEngine() bool {
	return s == StateReady || s == StateStreaming
}

// CameraPosition identifies which physical camera a device faces.
type CameraPosition int

const (
	CameraPositionUnspecified CameraPosition = iota // External or unknown
	CameraPositionFront                             // Facing the user
	CameraPositionBack                              // Facing away from the user
)

// DefaultCameraPosition is reported before a camera has been chosen.
const DefaultCameraPosition = CameraPositionBack

func (p CameraPosition) String() string {
	switch p {
	case CameraPositionFront:
		return "front"
	case CameraPositionBack:
		return "back"
	default:
		return "unspecified"
	}
}

// ParseCameraPosition parses "front", "back" or "unspecified".
func ParseCameraPosition(s string) (CameraPosition, bool) {
	switch s {
	case "front", "user":
		return CameraPositionFront, true
	case "back", "environment":
		return CameraPositionBack, true
	case "", "unspecified":
		return CameraPositionUnspecified, true
	default:
		return CameraPositionUnspecified, false
	}
}
