package harbor

import (
	"bytes"
	"errors"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

// bodyMinifier minifies response bodies and cached share assets by MIME
// type, adapted from the teacher's minifier.go. See spec §4.F (response
// writer) and §4.K (share handler).
type bodyMinifier struct {
	m *minify.M
}

// minifierSingleton is the process-wide minifier instance, mirroring the
// teacher's own singleton.
var minifierSingleton = &bodyMinifier{m: minify.New()}

// minify minifies b according to mimeType, lazily registering a minifier
// for that type the first time it is seen.
func (bm *bodyMinifier) minify(mimeType string, b []byte) ([]byte, error) {
	if ss := strings.Split(mimeType, ";"); len(ss) > 1 {
		mimeType = strings.TrimSpace(ss[0])
	}

	buf := &bytes.Buffer{}

	err := bm.m.Minify(mimeType, buf, bytes.NewReader(b))
	if err == nil {
		return buf.Bytes(), nil
	}
	if err != minify.ErrNotExist {
		return nil, err
	}

	switch mimeType {
	case "text/html":
		bm.m.Add(mimeType, html.DefaultMinifier)
	case "text/css":
		bm.m.Add(mimeType, css.DefaultMinifier)
	case "text/javascript", "application/javascript":
		bm.m.Add(mimeType, js.DefaultMinifier)
	case "application/json":
		bm.m.Add(mimeType, json.DefaultMinifier)
	case "text/xml", "application/xml":
		bm.m.Add(mimeType, xml.DefaultMinifier)
	case "image/svg+xml":
		bm.m.Add(mimeType, svg.DefaultMinifier)
	case "image/jpeg":
		bm.m.AddFunc(mimeType, func(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
			img, err := jpeg.Decode(r)
			if err != nil {
				return err
			}

			return jpeg.Encode(w, img, nil)
		})
	case "image/png":
		bm.m.AddFunc(mimeType, func(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
			img, err := png.Decode(r)
			if err != nil {
				return err
			}

			return (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(w, img)
		})
	default:
		return nil, errors.New("harbor: unsupported minifier mime type")
	}

	return bm.minify(mimeType, b)
}
