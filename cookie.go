package harbor

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SameSite is a Set-Cookie SameSite attribute value. See spec §3.
type SameSite int

// The three SameSite values a Cookie may declare. The zero value,
// SameSiteDefault, omits the attribute entirely.
const (
	SameSiteDefault SameSite = iota
	SameSiteStrict
	SameSiteLax
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteStrict:
		return "Strict"
	case SameSiteLax:
		return "Lax"
	case SameSiteNone:
		return "None"
	default:
		return ""
	}
}

// Cookie is an HTTP cookie, serializable to a Set-Cookie header value. See
// spec §3 and §6.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	SameSite SameSite
	Secure   bool
	HTTPOnly bool
}

// markDeleted rewrites c so its serialization instructs the client to
// discard the cookie immediately: Max-Age=0 and an Expires timestamp well
// in the past.
func (c *Cookie) markDeleted() {
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	c.Value = ""
}

// String returns the Set-Cookie serialization of c, or the empty string if
// c.Name is not a valid cookie token.
func (c *Cookie) String() string {
	if !validCookieName(c.Name) {
		return ""
	}

	var buf bytes.Buffer

	n := strings.NewReplacer("\r", "-", "\n", "-").Replace(c.Name)
	v := sanitize(c.Value, validCookieValueByte)
	if strings.IndexByte(v, ' ') >= 0 || strings.IndexByte(v, ',') >= 0 {
		v = `"` + v + `"`
	}

	buf.WriteString(n)
	buf.WriteByte('=')
	buf.WriteString(v)

	if c.Path != "" {
		buf.WriteString("; Path=")
		buf.WriteString(sanitize(c.Path, func(b byte) bool {
			return 0x20 <= b && b < 0x7f && b != ';'
		}))
	}

	if validCookieDomain(c.Domain) {
		d := c.Domain
		if d[0] == '.' {
			d = d[1:]
		}

		buf.WriteString("; Domain=")
		buf.WriteString(d)
	}

	if c.Expires.Year() >= 1601 {
		buf.WriteString("; Expires=")
		buf.WriteString(c.Expires.UTC().Format(http.TimeFormat))
	}

	switch {
	case c.MaxAge > 0:
		buf.WriteString("; Max-Age=")
		buf.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		buf.WriteString("; Max-Age=0")
	}

	if s := c.SameSite.String(); s != "" {
		buf.WriteString("; SameSite=")
		buf.WriteString(s)
	}

	if c.Secure {
		buf.WriteString("; Secure")
	}

	if c.HTTPOnly {
		buf.WriteString("; HttpOnly")
	}

	return buf.String()
}

func validCookieName(n string) bool {
	return n != "" && strings.IndexFunc(n, func(r rune) bool {
		return !strings.ContainsRune(
			"!#$%&'*+-."+
				"0123456789"+
				"ABCDEFGHIJKLMNOPQRSTUWVXYZ"+
				"^_`"+
				"abcdefghijklmnopqrstuvwxyz"+
				"|~",
			r,
		)
	}) < 0
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func validCookieDomain(d string) bool {
	if l := len(d); l == 0 || l > 255 {
		return false
	}

	if ip := net.ParseIP(d); ip != nil && !strings.Contains(d, ":") {
		return true
	}

	if d[0] == '.' {
		d = d[1:]
	}

	ok := false
	last := byte('.')
	partLen := 0

	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partLen++
		case '0' <= c && c <= '9':
			partLen++
		case c == '-':
			if last == '.' {
				return false
			}
			partLen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partLen > 63 || partLen == 0 {
				return false
			}
			partLen = 0
		default:
			return false
		}

		last = c
	}

	if last == '-' || partLen > 63 {
		return false
	}

	return ok
}

func sanitize(s string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(s); i++ {
		if !valid(s[i]) {
			ok = false
			break
		}
	}

	if ok {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if b := s[i]; valid(b) {
			buf = append(buf, b)
		}
	}

	return string(buf)
}

// CookieTable is an insertion-ordered name -> Cookie map, used by both
// Request (cookies sent by the client) and Response (cookies queued via
// Set-Cookie).
type CookieTable struct {
	order  []string
	byName map[string]*Cookie
}

// NewCookieTable returns an empty CookieTable.
func NewCookieTable() *CookieTable {
	return &CookieTable{byName: make(map[string]*Cookie)}
}

// Set stores c, replacing any existing cookie with the same name.
func (t *CookieTable) Set(c *Cookie) {
	if _, exists := t.byName[c.Name]; !exists {
		t.order = append(t.order, c.Name)
	}

	t.byName[c.Name] = c
}

// Get returns the cookie named name, if any.
func (t *CookieTable) Get(name string) (*Cookie, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// All returns every cookie in insertion order.
func (t *CookieTable) All() []*Cookie {
	out := make([]*Cookie, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}

	return out
}
