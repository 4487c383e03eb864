package harbor

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// StreamEncoder wraps an io.Writer so that bytes written to the returned
// WriteCloser are encoded before reaching w. Closing it flushes any
// buffered output and finalizes the stream (e.g. the gzip footer). See
// spec §4.F ("stream encoders form a chain").
type StreamEncoder interface {
	Name() string
	Wrap(w io.Writer) (io.WriteCloser, error)
}

type identityEncoder struct{}

func (identityEncoder) Name() string { return "identity" }

func (identityEncoder) Wrap(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type gzipEncoder struct{}

func (gzipEncoder) Name() string { return "gzip" }

func (gzipEncoder) Wrap(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

type deflateEncoder struct{}

func (deflateEncoder) Name() string { return "deflate" }

func (deflateEncoder) Wrap(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

type zstdEncoder struct{}

func (zstdEncoder) Name() string { return "zstd" }

func (zstdEncoder) Wrap(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

// EncoderRegistry holds the named stream encoders a Response may select
// from, by name or by content negotiation against Accept-Encoding.
type EncoderRegistry struct {
	encoders map[string]StreamEncoder
}

// NewEncoderRegistry returns a registry seeded with identity, gzip, deflate
// and zstd.
func NewEncoderRegistry() *EncoderRegistry {
	r := &EncoderRegistry{encoders: make(map[string]StreamEncoder)}
	r.Register(identityEncoder{})
	r.Register(gzipEncoder{})
	r.Register(deflateEncoder{})
	r.Register(zstdEncoder{})

	return r
}

// Register adds or replaces the encoder stored under e.Name().
func (r *EncoderRegistry) Register(e StreamEncoder) {
	r.encoders[e.Name()] = e
}

// Get looks an encoder up by name.
func (r *EncoderRegistry) Get(name string) (StreamEncoder, error) {
	e, ok := r.encoders[name]
	if !ok {
		return nil, fmt.Errorf("harbor: unknown stream encoder %q", name)
	}

	return e, nil
}

// Negotiate picks the best encoder for an Accept-Encoding header value,
// honoring q-values and falling back to identity when nothing else
// matches or the header is absent.
func (r *EncoderRegistry) Negotiate(acceptEncoding string) StreamEncoder {
	type candidate struct {
		name string
		q    float64
	}

	var candidates []candidate

	for _, tok := range strings.Split(acceptEncoding, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		name, q := tok, 1.0
		if i := strings.IndexByte(tok, ';'); i >= 0 {
			name = strings.TrimSpace(tok[:i])
			params := tok[i+1:]
			if j := strings.Index(params, "q="); j >= 0 {
				if v, err := strconv.ParseFloat(strings.TrimSpace(params[j+2:]), 64); err == nil {
					q = v
				}
			}
		}

		if q <= 0 {
			continue
		}

		if _, ok := r.encoders[name]; !ok && name != "*" {
			continue
		}

		candidates = append(candidates, candidate{name: name, q: q})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].q > candidates[j].q
	})

	for _, c := range candidates {
		if c.name == "*" {
			continue
		}

		if e, ok := r.encoders[c.name]; ok {
			return e
		}
	}

	return identityEncoder{}
}
