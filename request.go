package harbor

import (
	"net/url"
	"strings"
)

// QueryParams is an ordered-insertion multimap of URL query parameters,
// preserving the original casing and order of appearance in the query
// string (unlike url.Values, which is an unordered map).
type QueryParams struct {
	names  []string
	values map[string][]string
}

func newQueryParams() *QueryParams {
	return &QueryParams{values: make(map[string][]string)}
}

func parseQueryParams(raw string) *QueryParams {
	q := newQueryParams()

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}

		var name, value string
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name, value = pair[:i], pair[i+1:]
		} else {
			name = pair
		}

		name, _ = url.QueryUnescape(name)
		value, _ = url.QueryUnescape(value)

		if _, ok := q.values[name]; !ok {
			q.names = append(q.names, name)
		}

		q.values[name] = append(q.values[name], value)
	}

	return q
}

// Get returns the first value stored under name and whether it is present.
func (q *QueryParams) Get(name string) (string, bool) {
	vs, ok := q.values[name]
	if !ok || len(vs) == 0 {
		return "", ok
	}

	return vs[0], true
}

// Values returns every value stored under name, in insertion order.
func (q *QueryParams) Values(name string) []string {
	return q.values[name]
}

// Names returns the query parameter names in first-insertion order.
func (q *QueryParams) Names() []string {
	return append([]string{}, q.names...)
}

// Request is created per accepted HTTP exchange. See spec §3.
type Request struct {
	RawURL   string
	Path     string
	Query    *QueryParams
	Cookies  *CookieTable
	Header   *Header
	RemoteIP string
	Host     string
	Method   string
	Body     *Body

	// Matched holds the endpoint mappings the registry resolved for this
	// request, in dispatch order, populated by the dispatcher before
	// RequestEvent fires.
	Matched []*HTTPMapping

	Scratch *Scratch
}

// resolveRemoteIP implements the precedence from spec §3: Cf-Connecting-IP,
// then the first token of X-Forwarded-For, then the TCP peer address.
func resolveRemoteIP(header *Header, peerAddr string) string {
	if ip, ok := header.Get("Cf-Connecting-IP"); ok && ip != "" {
		return ip
	}

	if fwd, ok := header.Get("X-Forwarded-For"); ok && fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	return peerAddr
}

// splitRequestURL splits a raw request-target into its path and query
// components, matching the "trimmed path" / "ordered-insertion query
// parameter map" split from spec §3.
func splitRequestURL(rawURL string) (path, query string) {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i], rawURL[i+1:]
	}

	return rawURL, ""
}
