package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the handshake attempt (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this end is the client or the server.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address, when the transport has one.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PeerName is the expected peer domain name.
	PeerName string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Transfer    *TransferEvent    `cbor:"10,keyasint,omitempty"` // Transport and session layers
	Handshake   *HandshakeEvent   `cbor:"11,keyasint,omitempty"` // Engine layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Engine state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the bridge between the engine and the transport (ciphertext).
	LayerTransport Layer = 0
	// LayerEngine is the handshake and record engine.
	LayerEngine Layer = 1
	// LayerSession is the plaintext stream exposed to the application.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerEngine:
		return "ENGINE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryTransfer indicates bytes moved through a layer.
	CategoryTransfer Category = 0
	// CategoryHandshake indicates a handshake step and its outcome.
	CategoryHandshake Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransfer:
		return "TRANSFER"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which end of the handshake logged the event.
type Role uint8

const (
	// RoleServer indicates the accepting end.
	RoleServer Role = 0
	// RoleClient indicates the initiating end.
	RoleClient Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// TransferEvent captures a single pull/push or read/write call.
type TransferEvent struct {
	// Requested is the buffer size offered to the call.
	Requested int `cbor:"1,keyasint"`

	// Transferred is the number of bytes actually moved.
	Transferred int `cbor:"2,keyasint"`

	// Status is the engine status code reported with the call.
	Status int32 `cbor:"3,keyasint,omitempty"`

	// StatusName is the symbolic name of Status.
	StatusName string `cbor:"4,keyasint,omitempty"`
}

// HandshakeEvent captures one handshake step.
type HandshakeEvent struct {
	// Step counts handshake calls for this connection, starting at 1.
	Step int `cbor:"1,keyasint"`

	// Outcome is READY, SERVER_AUTH_COMPLETED, CLIENT_CERT_REQUESTED,
	// WOULD_BLOCK or FAILED.
	Outcome string `cbor:"2,keyasint"`

	// Status is the engine status code that produced the outcome.
	Status int32 `cbor:"3,keyasint,omitempty"`

	// Cipher is the negotiated cipher suite (READY only).
	Cipher string `cbor:"4,keyasint,omitempty"`

	// Version is the negotiated protocol version (READY only).
	Version string `cbor:"5,keyasint,omitempty"`

	// Duration is the time spent inside this step.
	Duration time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures engine lifecycle transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the engine status code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
