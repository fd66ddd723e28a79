package resolve

import (
	"errors"
	"fmt"
)

// ErrManifestEndpointMissing is terminal: the AgentCard declares no
// A2UI_MANIFEST endpoint, so retrying the resolution cannot help.
var ErrManifestEndpointMissing = errors.New("manifest_endpoint_missing")

// ChainReadError wraps a transport or contract-read failure from the
// registry. The resolver performs no retries; retry policy belongs to the
// caller.
type ChainReadError struct {
	Registry string
	TokenID  string
	Err      error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s/%s: %v", e.Registry, e.TokenID, e.Err)
}

func (e *ChainReadError) Unwrap() error { return e.Err }

// InvalidAgentCardError marks an AgentCard document that fetched but did
// not parse.
type InvalidAgentCardError struct {
	URI string
	Err error
}

func (e *InvalidAgentCardError) Error() string {
	return fmt.Sprintf("invalid agent card at %s: %v", e.URI, e.Err)
}

func (e *InvalidAgentCardError) Unwrap() error { return e.Err }

// NetworkError is a transport-level fetch failure, distinct from
// resolution-logic failures.
type NetworkError struct {
	URI string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URI, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is a fetch that completed with a non-2xx status.
type HTTPStatusError struct {
	URI    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: http status %d", e.URI, e.Status)
}

// NotJSONError is a fetch whose body was not a well-formed JSON document.
type NotJSONError struct {
	URI string
}

func (e *NotJSONError) Error() string { return fmt.Sprintf("fetch %s: body is not JSON", e.URI) }
