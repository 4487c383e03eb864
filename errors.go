package harbor

import "fmt"

// NotFoundError is raised when the registry has no mapping for a request.
type NotFoundError struct {
	Path   string
	Method string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("harbor: no route for %s %s", e.Method, e.Path)
}

// ForbiddenError is raised when a share request resolves outside its root.
type ForbiddenError struct {
	Path string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("harbor: forbidden path %s", e.Path)
}

// InvalidStateError is raised when a caller mutates a response after it has
// been flushed, writes a body for a method that forbids one, or selects a
// reserved WebSocket close code.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("harbor: invalid state: %s", e.Reason)
}

// TransformerError wraps the error a transformer returned while converting a
// captured path segment into its typed value.
type TransformerError struct {
	Param string
	Err   error
}

func (e *TransformerError) Error() string {
	return fmt.Sprintf("harbor: transformer for %q failed: %v", e.Param, e.Err)
}

func (e *TransformerError) Unwrap() error {
	return e.Err
}

// PayloadTooLargeError is raised when a WebSocket frame declares a length
// that cannot be represented, per RFC 6455 section 5.2.
type PayloadTooLargeError struct {
	Length uint64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("harbor: payload too large: %d", e.Length)
}

// ProtocolError is raised when an incoming WebSocket frame violates RFC 6455
// (unknown opcode, oversized or fragmented control frame, unmasked client
// frame).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("harbor: websocket protocol error: %s", e.Reason)
}

// UpstreamIOError wraps a socket read/write failure that results in a
// silent close of the underlying connection.
type UpstreamIOError struct {
	Err error
}

func (e *UpstreamIOError) Error() string {
	return fmt.Sprintf("harbor: upstream i/o error: %v", e.Err)
}

func (e *UpstreamIOError) Unwrap() error {
	return e.Err
}

// DuplicateRouteError is raised by Registry.Register when an identical
// (pattern, method-set, domain-set, handler) tuple is already registered.
type DuplicateRouteError struct {
	Pattern string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("harbor: route %q is already registered", e.Pattern)
}
