package harbor

import "strings"

// RequireDomains builds an HTTPRequirement satisfied only when the request's
// Host header matches one of domains (case-insensitive). It duplicates the
// registry's own domain-set filter but as a requirement it can be combined
// with Requirements added after the route's domain-set was fixed, e.g. by a
// Group.
func RequireDomains(domains ...string) HTTPRequirement {
	allow := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		allow[strings.ToLower(d)] = struct{}{}
	}

	return func(req *Request) bool {
		_, ok := allow[strings.ToLower(req.Host)]
		return ok
	}
}

// RequireHeader builds an HTTPRequirement satisfied only when the request
// carries a header named name. If value is non-empty, the header's value
// must also equal it exactly.
func RequireHeader(name, value string) HTTPRequirement {
	return func(req *Request) bool {
		v, ok := req.Header.Get(name)
		if !ok {
			return false
		}

		return value == "" || v == value
	}
}

// RequireMethod builds an HTTPRequirement satisfied only when the request's
// method is one of methods. Unlike the registry's static method-set filter,
// this can be attached after registration via a Group's requirements.
func RequireMethod(methods ...string) HTTPRequirement {
	allow := toSet(methods)

	return func(req *Request) bool {
		_, ok := allow[req.Method]
		return ok
	}
}

// RequireSubprotocol builds a WebSocketRequirement satisfied only when the
// connection negotiated one of the given subprotocols.
func RequireSubprotocol(protocols ...string) WebSocketRequirement {
	allow := toSet(protocols)

	return func(conn *WSConnection, _ *Frame) bool {
		_, ok := allow[conn.Subprotocol]
		return ok
	}
}

// RequireOpcode builds a WebSocketRequirement satisfied only when the
// dispatched frame's opcode is one of opcodes.
func RequireOpcode(opcodes ...Opcode) WebSocketRequirement {
	allow := make(map[Opcode]struct{}, len(opcodes))
	for _, op := range opcodes {
		allow[op] = struct{}{}
	}

	return func(_ *WSConnection, frame *Frame) bool {
		if frame == nil {
			return false
		}
		_, ok := allow[frame.Opcode]
		return ok
	}
}

// evaluateHTTPRequirements reports whether every requirement in rs applies
// to req. An empty rs always applies.
func evaluateHTTPRequirements(rs []HTTPRequirement, req *Request) bool {
	for _, r := range rs {
		if !r(req) {
			return false
		}
	}

	return true
}

// evaluateWSRequirements reports whether every requirement in rs applies to
// the (conn, frame) pair. An empty rs always applies.
func evaluateWSRequirements(rs []WebSocketRequirement, conn *WSConnection, frame *Frame) bool {
	for _, r := range rs {
		if !r(conn, frame) {
			return false
		}
	}

	return true
}
