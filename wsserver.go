package harbor

import "sync"

// WSServer owns the set of active WebSocket connections, grouped by the
// path they upgraded on, and provides path-scoped broadcast. See spec §4.J.
type WSServer struct {
	h *Harbor

	mu      sync.RWMutex
	clients map[string]map[*WSConnection]struct{}
}

// newWSServer returns an empty WSServer bound to h.
func newWSServer(h *Harbor) *WSServer {
	return &WSServer{
		h:       h,
		clients: make(map[string]map[*WSConnection]struct{}),
	}
}

// adopt registers c under its Path and spawns its dedicated read/dispatch
// worker, per spec §5 ("Each WebSocket connection owns a dedicated
// worker"). It blocks until the connection closes, so callers run it on its
// own goroutine.
func (s *WSServer) adopt(c *WSConnection) {
	s.mu.Lock()
	set, ok := s.clients[c.Path]
	if !ok {
		set = make(map[*WSConnection]struct{})
		s.clients[c.Path] = set
	}
	set[c] = struct{}{}
	s.mu.Unlock()

	c.Serve()

	s.mu.Lock()
	delete(s.clients[c.Path], c)
	if len(s.clients[c.Path]) == 0 {
		delete(s.clients, c.Path)
	}
	s.mu.Unlock()
}

// Broadcast sends payload as opcode to every client connected under path.
// Per-connection send failures are skipped; Broadcast does not stop early.
func (s *WSServer) Broadcast(path string, opcode Opcode, payload []byte) {
	s.mu.RLock()
	targets := make([]*WSConnection, 0, len(s.clients[path]))
	for c := range s.clients[path] {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.Send(opcode, payload)
	}
}

// Connections returns a snapshot of the clients currently connected under
// path.
func (s *WSServer) Connections(path string) []*WSConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*WSConnection, 0, len(s.clients[path]))
	for c := range s.clients[path] {
		out = append(out, c)
	}

	return out
}

// Shutdown sends a 1001 Going Away close to every connected client and
// closes their sockets, per spec §4.J ("Graceful shutdown sends 1001 to all
// clients, interrupts workers, and closes the listener").
func (s *WSServer) Shutdown() {
	s.mu.RLock()
	var all []*WSConnection
	for _, set := range s.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range all {
		c.SendClose(CloseGoingAway, "server shutting down")
		c.Close()
	}
}
