package protocol

const (
	// Protocol/transport validation.
	CodeProtoBadRequest = "proto_bad_request"

	// Session gating.
	CodeSessionNotLive   = "session_not_live"
	CodeUserGateRequired = "user_gate_required"

	// Allow-list denials.
	CodeSurfaceNotAllowed = "surface_not_allowed"
	CodeEventNotAllowed   = "event_not_allowed"

	// Generic.
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

var knownCodes = map[string]struct{}{
	CodeProtoBadRequest:   {},
	CodeSessionNotLive:    {},
	CodeUserGateRequired:  {},
	CodeSurfaceNotAllowed: {},
	CodeEventNotAllowed:   {},
	CodeBadRequest:        {},
	CodeInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
