package harbor

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// deflateTrailer is the four-octet sync-flush marker compress/flate always
// emits at the end of a Flush call. RFC 7692 §7.2.1 strips it from the wire
// payload and requires the receiver to reconstruct it before inflating.
var deflateTrailer = []byte{0x00, 0x00, 0xFF, 0xFF}

// Extension is a WebSocket frame transformer negotiated at handshake time,
// e.g. permessage-deflate. See spec §4.I and the GLOSSARY.
//
// Encode and Decode operate on a fully assembled message, before
// fragmentation/after reassembly; the connection machine runs every
// negotiated extension's Encode in application order on the way out and
// every extension's Decode in reverse application order on the way in, so
// the last-negotiated extension is outermost on the wire.
type Extension interface {
	Name() string
	Encode(data []byte) (out []byte, rsv1 bool, err error)
	Decode(data []byte, rsv1 bool) ([]byte, error)
}

// PermessageDeflate implements the permessage-deflate extension (RFC 7692).
// See spec §6.
type PermessageDeflate struct {
	Threshold          int
	MaxDecompressed    int
	Level              int
	NoContextTakeover  bool
}

// NewPermessageDeflate returns a PermessageDeflate configured with the given
// minimum-size-to-compress threshold, decompressed-size cap, and deflate
// level.
func NewPermessageDeflate(threshold, maxDecompressed, level int) *PermessageDeflate {
	return &PermessageDeflate{
		Threshold:       threshold,
		MaxDecompressed: maxDecompressed,
		Level:           level,
	}
}

// Name implements Extension.
func (p *PermessageDeflate) Name() string { return "permessage-deflate" }

// Encode compresses data with raw DEFLATE and strips the trailing sync-flush
// marker, per RFC 7692 §7.2.1. Messages shorter than Threshold are passed
// through unencoded with rsv1=false.
func (p *PermessageDeflate) Encode(data []byte) ([]byte, bool, error) {
	if len(data) < p.Threshold {
		return data, false, nil
	}

	var buf bytes.Buffer

	fw, err := flate.NewWriter(&buf, p.Level)
	if err != nil {
		return nil, false, fmt.Errorf("harbor: failed to build deflate writer: %w", err)
	}

	if _, err := fw.Write(data); err != nil {
		return nil, false, fmt.Errorf("harbor: failed to deflate message: %w", err)
	}

	if err := fw.Flush(); err != nil {
		return nil, false, fmt.Errorf("harbor: failed to flush deflate writer: %w", err)
	}

	out := buf.Bytes()
	out = bytes.TrimSuffix(out, deflateTrailer)

	return out, true, nil
}

// Decode reconstructs the sync-flush trailer and inflates data, enforcing
// MaxDecompressed. If rsv1 is false the message was sent uncompressed and is
// returned unchanged.
func (p *PermessageDeflate) Decode(data []byte, rsv1 bool) ([]byte, error) {
	if !rsv1 {
		return data, nil
	}

	src := make([]byte, 0, len(data)+len(deflateTrailer))
	src = append(src, data...)
	src = append(src, deflateTrailer...)

	fr := flate.NewReader(bytes.NewReader(src))
	defer fr.Close()

	limit := int64(p.MaxDecompressed) + 1
	out, err := io.ReadAll(io.LimitReader(fr, limit))
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to inflate message: %w", err)
	}

	if int64(len(out)) > int64(p.MaxDecompressed) {
		return nil, &PayloadTooLargeError{Length: uint64(len(out))}
	}

	return out, nil
}

// NegotiateExtensions parses a Sec-WebSocket-Extensions request header value
// and returns the subset this Harbor supports, in the order they appeared,
// plus the header value to echo in the handshake response. Per spec §4.I
// the caller must reverse the returned slice before storing it as the
// connection's application-order extension chain.
func NegotiateExtensions(header string, available map[string]func(params map[string]string) Extension) ([]Extension, string) {
	if header == "" || available == nil {
		return nil, ""
	}

	var (
		negotiated []Extension
		responses  []string
	)

	for _, offer := range strings.Split(header, ",") {
		parts := strings.Split(offer, ";")
		name := strings.TrimSpace(parts[0])

		factory, ok := available[name]
		if !ok {
			continue
		}

		params := make(map[string]string, len(parts)-1)
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}

			if i := strings.IndexByte(p, '='); i >= 0 {
				params[strings.TrimSpace(p[:i])] = strings.Trim(strings.TrimSpace(p[i+1:]), `"`)
			} else {
				params[p] = ""
			}
		}

		negotiated = append(negotiated, factory(params))
		responses = append(responses, name)
	}

	return negotiated, strings.Join(responses, ", ")
}

// reverseExtensions returns a new slice with exts in reverse order, per spec
// §4.I ("the final extension list is reversed so the last-negotiated
// extension encodes outermost and decodes innermost").
func reverseExtensions(exts []Extension) []Extension {
	out := make([]Extension, len(exts))
	for i, e := range exts {
		out[len(exts)-1-i] = e
	}

	return out
}

func parseUintParam(params map[string]string, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}
