package harbor

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// RouteKind distinguishes the three mapping tables the Registry holds.
type RouteKind uint8

// The three route kinds. See spec §3 ("Route registry").
const (
	RouteKindHTTP RouteKind = iota
	RouteKindWebSocket
	RouteKindShare
)

// baseMapping holds the fields shared by HTTP and WebSocket endpoint
// mappings: the compiled pattern, the domain/header admission filters
// checked directly by Resolve, the priority bucket, the registration
// sequence used to break ties within a bucket, and the transformer
// pipeline bound to the pattern's captured parameters.
type baseMapping struct {
	id              uint64
	seq             uint64
	pattern         *Pattern
	domains         map[string]struct{}
	requiredHeaders []string
	priority        Priority
	transformers    []TransformerBinding
}

func (b *baseMapping) domainAllowed(domain string) bool {
	if len(b.domains) == 0 {
		return true
	}

	_, ok := b.domains[domain]

	return ok
}

func (b *baseMapping) headersSatisfied(present map[string]bool) bool {
	for _, h := range b.requiredHeaders {
		if !present[h] {
			return false
		}
	}

	return true
}

// HTTPHandler serves one matched HTTP endpoint. params holds the captured
// path segments in the pattern's declaration order, already run through the
// transformer pipeline's cache (raw strings only; typed values are obtained
// by re-running the bound Transformer, see transform.go).
type HTTPHandler func(ex *Exchange, params []string) error

// HTTPRequirement is a per-dispatch admission predicate evaluated after
// pattern matching but before the transformer pipeline. See spec §4.C.
type HTTPRequirement func(req *Request) bool

// HTTPMapping is an immutable HTTP endpoint mapping. See spec §3.
type HTTPMapping struct {
	baseMapping

	Methods      map[string]struct{}
	Handler      HTTPHandler
	Requirements []HTTPRequirement
}

// WebSocketHandler serves one matched WebSocket data message. payload is the
// fully assembled, extension-decoded message body.
type WebSocketHandler func(ex *WebSocketExchange, payload []byte, params []string) error

// WebSocketRequirement is a per-dispatch admission predicate for WebSocket
// endpoints; it may inspect the frame that triggered dispatch.
type WebSocketRequirement func(conn *WSConnection, frame *Frame) bool

// WebSocketMapping is an immutable WebSocket endpoint mapping.
type WebSocketMapping struct {
	baseMapping

	Handler      WebSocketHandler
	Requirements []WebSocketRequirement
}

// ShareMapping maps a URL prefix to an on-disk directory. See spec §3 and
// §4.K.
type ShareMapping struct {
	seq    uint64
	id     uint64
	Prefix string
	Root   string
	Index  string
}

// RouteHandle identifies a previously registered mapping so it can be
// unregistered later.
type RouteHandle struct {
	kind RouteKind
	id   uint64
}

// registrySnapshot is the immutable state swapped in by Register/Unregister.
// Readers obtain one snapshot via atomic load and hold it for the duration
// of a single Resolve call, per the copy-on-write policy in spec §5.
type registrySnapshot struct {
	http   []*HTTPMapping
	ws     []*WebSocketMapping
	shares []*ShareMapping
}

// Registry is the route registry described in spec §4.B. It is read-mostly:
// Register and Unregister swap an immutable snapshot under a mutex;
// Resolve/ResolveWebSocket/IsShare/GetShare read the current snapshot
// without blocking writers.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[registrySnapshot]
	nextID   uint64
	nextSeq  uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&registrySnapshot{})

	return r
}

func (r *Registry) load() *registrySnapshot {
	return r.snapshot.Load()
}

// handlerIdentity returns a comparable identity for a handler func, used to
// detect duplicate registrations. Go funcs are not comparable with ==, but
// their code pointer is stable for the lifetime of the process.
func handlerIdentity(h interface{}) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// RegisterHTTP appends a new HTTP endpoint mapping and returns a handle for
// later Unregister. It fails with DuplicateRouteError if an identical
// (pattern, method-set, domain-set, handler) tuple is already registered.
func (r *Registry) RegisterHTTP(
	pattern *Pattern,
	methods []string,
	domains []string,
	requiredHeaders []string,
	handler HTTPHandler,
	priority Priority,
	requirements []HTTPRequirement,
	transformers []TransformerBinding,
) (RouteHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()

	methodSet := toSet(methods)
	domainSet := toSet(domains)
	identity := handlerIdentity(handler)

	for _, m := range cur.http {
		if m.pattern.String() != pattern.String() {
			continue
		}
		if !sameSet(m.Methods, methodSet) || !sameSet(m.domains, domainSet) {
			continue
		}
		if handlerIdentity(m.Handler) == identity {
			return RouteHandle{}, &DuplicateRouteError{Pattern: pattern.String()}
		}
	}

	r.nextID++
	m := &HTTPMapping{
		baseMapping: baseMapping{
			id:              r.nextID,
			seq:             r.nextSeq,
			pattern:         pattern,
			domains:         domainSet,
			requiredHeaders: requiredHeaders,
			priority:        priority,
			transformers:    transformers,
		},
		Methods:      methodSet,
		Handler:      handler,
		Requirements: requirements,
	}
	r.nextSeq++

	next := &registrySnapshot{
		http:   append(append([]*HTTPMapping{}, cur.http...), m),
		ws:     cur.ws,
		shares: cur.shares,
	}
	r.snapshot.Store(next)

	return RouteHandle{kind: RouteKindHTTP, id: m.id}, nil
}

// RegisterWebSocket appends a new WebSocket endpoint mapping.
func (r *Registry) RegisterWebSocket(
	pattern *Pattern,
	domains []string,
	requiredHeaders []string,
	handler WebSocketHandler,
	priority Priority,
	requirements []WebSocketRequirement,
	transformers []TransformerBinding,
) (RouteHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	domainSet := toSet(domains)
	identity := handlerIdentity(handler)

	for _, m := range cur.ws {
		if m.pattern.String() == pattern.String() &&
			sameSet(m.domains, domainSet) &&
			handlerIdentity(m.Handler) == identity {
			return RouteHandle{}, &DuplicateRouteError{Pattern: pattern.String()}
		}
	}

	r.nextID++
	m := &WebSocketMapping{
		baseMapping: baseMapping{
			id:              r.nextID,
			seq:             r.nextSeq,
			pattern:         pattern,
			domains:         domainSet,
			requiredHeaders: requiredHeaders,
			priority:        priority,
			transformers:    transformers,
		},
		Handler:      handler,
		Requirements: requirements,
	}
	r.nextSeq++

	next := &registrySnapshot{
		http:   cur.http,
		ws:     append(append([]*WebSocketMapping{}, cur.ws...), m),
		shares: cur.shares,
	}
	r.snapshot.Store(next)

	return RouteHandle{kind: RouteKindWebSocket, id: m.id}, nil
}

// RegisterShare appends a new share mapping. prefix/root pairs are not
// deduplicated beyond exact (prefix, root) equality.
func (r *Registry) RegisterShare(prefix, root, index string) RouteHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()

	r.nextID++
	m := &ShareMapping{
		seq:    r.nextSeq,
		id:     r.nextID,
		Prefix: prefix,
		Root:   root,
		Index:  index,
	}
	r.nextSeq++

	next := &registrySnapshot{
		http: cur.http,
		ws:   cur.ws,
		shares: append(
			append([]*ShareMapping{}, cur.shares...),
			m,
		),
	}
	r.snapshot.Store(next)

	return RouteHandle{kind: RouteKindShare, id: m.id}
}

// Unregister removes the mapping identified by h, if present.
func (r *Registry) Unregister(h RouteHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()

	switch h.kind {
	case RouteKindHTTP:
		out := make([]*HTTPMapping, 0, len(cur.http))
		for _, m := range cur.http {
			if m.id != h.id {
				out = append(out, m)
			}
		}
		r.snapshot.Store(&registrySnapshot{http: out, ws: cur.ws, shares: cur.shares})
	case RouteKindWebSocket:
		out := make([]*WebSocketMapping, 0, len(cur.ws))
		for _, m := range cur.ws {
			if m.id != h.id {
				out = append(out, m)
			}
		}
		r.snapshot.Store(&registrySnapshot{http: cur.http, ws: out, shares: cur.shares})
	case RouteKindShare:
		out := make([]*ShareMapping, 0, len(cur.shares))
		for _, m := range cur.shares {
			if m.id != h.id {
				out = append(out, m)
			}
		}
		r.snapshot.Store(&registrySnapshot{http: cur.http, ws: cur.ws, shares: out})
	}
}

// Resolve returns the ordered list of HTTP mappings whose pattern matches
// path, whose Methods contains method, whose domains is empty or contains
// domain, and whose requiredHeaders is a subset of headerNames. The result
// is sorted by priority bucket ascending, then by registration order. It
// never errors; an empty result means "no route". See spec §4.B and §8
// property 1.
func (r *Registry) Resolve(path, method, domain string, headerNames map[string]bool) []*HTTPMapping {
	snap := r.load()

	var matches []*HTTPMapping
	for _, m := range snap.http {
		if _, ok := m.Methods[method]; !ok {
			continue
		}
		if !m.domainAllowed(domain) {
			continue
		}
		if !m.headersSatisfied(headerNames) {
			continue
		}
		if _, ok := m.pattern.Match(path); !ok {
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].priority != matches[j].priority {
			return matches[i].priority < matches[j].priority
		}
		return matches[i].seq < matches[j].seq
	})

	return matches
}

// ResolveWebSocket is the WebSocket analogue of Resolve; there is no method
// set to filter on.
func (r *Registry) ResolveWebSocket(path, domain string, headerNames map[string]bool) []*WebSocketMapping {
	snap := r.load()

	var matches []*WebSocketMapping
	for _, m := range snap.ws {
		if !m.domainAllowed(domain) {
			continue
		}
		if !m.headersSatisfied(headerNames) {
			continue
		}
		if _, ok := m.pattern.Match(path); !ok {
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].priority != matches[j].priority {
			return matches[i].priority < matches[j].priority
		}
		return matches[i].seq < matches[j].seq
	})

	return matches
}

// IsShare reports whether path falls under any registered share prefix.
func (r *Registry) IsShare(path string) bool {
	_, ok := r.GetShare(path)
	return ok
}

// GetShare returns the share mapping whose Prefix is the longest match for
// path, if any.
func (r *Registry) GetShare(path string) (*ShareMapping, bool) {
	snap := r.load()

	var best *ShareMapping
	for _, m := range snap.shares {
		if !hasPrefixSegment(path, m.Prefix) {
			continue
		}
		if best == nil || len(m.Prefix) > len(best.Prefix) {
			best = m
		}
	}

	return best, best != nil
}

func hasPrefixSegment(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}

	return path[:len(prefix)] == prefix
}

func toSet(ss []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}

	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}

	return true
}
