package native

import "strconv"

// Status is the result code returned by every native engine operation and by
// the I/O upcalls. The values follow the Secure Transport OSStatus numbering
// so that logs read the same regardless of the backing engine.
type Status int32

const (
	// StatusSuccess indicates the operation completed.
	StatusSuccess Status = 0

	// StatusUnimplemented indicates the engine does not implement the operation.
	StatusUnimplemented Status = -4

	// StatusIO indicates a generic transport I/O failure.
	StatusIO Status = -36

	// StatusParam indicates an invalid parameter.
	StatusParam Status = -50

	// StatusBadReq indicates the operation is not valid in the current state.
	StatusBadReq Status = -909

	// StatusProtocol indicates a TLS protocol violation.
	StatusProtocol Status = -9800

	// StatusNegotiation indicates no common cipher suite or version.
	StatusNegotiation Status = -9801

	// StatusWouldBlock indicates the transport cannot make progress right now.
	StatusWouldBlock Status = -9803

	// StatusClosedGraceful indicates the peer closed with a close notification.
	StatusClosedGraceful Status = -9805

	// StatusClosedAbort indicates the connection was reset.
	StatusClosedAbort Status = -9806

	// StatusCertChainInvalid indicates the peer chain failed verification.
	StatusCertChainInvalid Status = -9807

	// StatusBadCert indicates a malformed or unusable certificate.
	StatusBadCert Status = -9808

	// StatusInternal indicates an internal engine failure.
	StatusInternal Status = -9810

	// StatusUnknownRootCert indicates the chain ends in an untrusted root.
	StatusUnknownRootCert Status = -9812

	// StatusCertExpired indicates a certificate in the chain has expired.
	StatusCertExpired Status = -9814

	// StatusClosedNoNotify indicates the transport ended without a close notification.
	StatusClosedNoNotify Status = -9816

	// StatusPeerHandshakeFail indicates the peer rejected the handshake.
	StatusPeerHandshakeFail Status = -9824

	// StatusHostNameMismatch indicates the peer certificate does not match the expected name.
	StatusHostNameMismatch Status = -9843

	// StatusPeerAuthCompleted indicates the peer's certificate chain has been
	// received and the handshake is paused for caller inspection.
	StatusPeerAuthCompleted Status = -9841

	// StatusBadConfiguration indicates the context is missing required
	// configuration, such as a server without an identity.
	StatusBadConfiguration Status = -9848

	// StatusClientCertRequested indicates the server asked for a client
	// certificate and the handshake is paused for the caller to supply one.
	StatusClientCertRequested Status = -9842
)

// Error implements error so that a non-success Status can be returned directly.
func (s Status) Error() string {
	return "native: " + s.String()
}

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUnimplemented:
		return "UNIMPLEMENTED"
	case StatusIO:
		return "IO_ERROR"
	case StatusParam:
		return "PARAM"
	case StatusBadReq:
		return "BAD_REQUEST"
	case StatusProtocol:
		return "PROTOCOL"
	case StatusNegotiation:
		return "NEGOTIATION"
	case StatusWouldBlock:
		return "WOULD_BLOCK"
	case StatusClosedGraceful:
		return "CLOSED_GRACEFUL"
	case StatusClosedAbort:
		return "CLOSED_ABORT"
	case StatusCertChainInvalid:
		return "CERT_CHAIN_INVALID"
	case StatusBadCert:
		return "BAD_CERT"
	case StatusInternal:
		return "INTERNAL"
	case StatusUnknownRootCert:
		return "UNKNOWN_ROOT_CERT"
	case StatusCertExpired:
		return "CERT_EXPIRED"
	case StatusClosedNoNotify:
		return "CLOSED_NO_NOTIFY"
	case StatusPeerHandshakeFail:
		return "PEER_HANDSHAKE_FAIL"
	case StatusHostNameMismatch:
		return "HOST_NAME_MISMATCH"
	case StatusPeerAuthCompleted:
		return "PEER_AUTH_COMPLETED"
	case StatusClientCertRequested:
		return "CLIENT_CERT_REQUESTED"
	case StatusBadConfiguration:
		return "BAD_CONFIGURATION"
	default:
		return "STATUS(" + strconv.Itoa(int(s)) + ")"
	}
}

// Closed reports whether the status is one of the three end-of-stream codes.
func (s Status) Closed() bool {
	return s == StatusClosedGraceful || s == StatusClosedAbort || s == StatusClosedNoNotify
}
