package harbor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"strings"
	"sync"
)

// bodyBufferSize is the chunk size used while streaming a request body into
// its temp file, per spec §4.E.
const bodyBufferSize = 2 * 1024

var (
	tempFileRegistryMu sync.Mutex
	tempFileRegistry   = map[string]struct{}{}
)

func registerTempFile(path string) {
	tempFileRegistryMu.Lock()
	defer tempFileRegistryMu.Unlock()
	tempFileRegistry[path] = struct{}{}
}

func unregisterTempFile(path string) {
	tempFileRegistryMu.Lock()
	defer tempFileRegistryMu.Unlock()
	delete(tempFileRegistry, path)
}

// CleanupTempFiles removes every request body temp file still registered.
// Harbor calls this from its shutdown path; callers embedding Harbor in a
// larger process should call it from their own signal handler too, since Go
// offers no portable atexit hook for files created by a crashed process.
func CleanupTempFiles() {
	tempFileRegistryMu.Lock()
	defer tempFileRegistryMu.Unlock()

	for path := range tempFileRegistry {
		os.Remove(path)
		delete(tempFileRegistry, path)
	}
}

// MultipartPart is one named part of a multipart/form-data body.
type MultipartPart struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Body is the per-request body handle described in spec §3 and §4.E: the
// raw bytes live in a temp file, and form/multipart/JSON views are parsed
// lazily and cached on first access.
type Body struct {
	path        string
	size        int64
	hasBody     bool
	contentType string

	once struct {
		form      sync.Once
		multipart sync.Once
		json      sync.Once
	}

	form          map[string][]string
	formErr       error
	multipartForm map[string][]MultipartPart
	multipartErr  error
	jsonValue     interface{}
	jsonErr       error
}

// newBody streams r into a fresh owner-only temp file under tempDir. If no
// bytes are read, the temp file is removed immediately and the Body reports
// hasBody=false.
func newBody(r io.Reader, contentType, tempDir string) (*Body, error) {
	f, err := os.CreateTemp(tempDir, "harbor-body-*")
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to create body temp file: %w", err)
	}

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("harbor: failed to chmod body temp file: %w", err)
	}

	buf := make([]byte, bodyBufferSize)

	n, err := io.CopyBuffer(f, r, buf)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("harbor: failed to buffer body: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("harbor: failed to close body temp file: %w", err)
	}

	if n == 0 {
		os.Remove(f.Name())
		return &Body{hasBody: false}, nil
	}

	registerTempFile(f.Name())

	return &Body{
		path:        f.Name(),
		size:        n,
		hasBody:     true,
		contentType: contentType,
	}, nil
}

// HasBody reports whether the request carried a non-empty body.
func (b *Body) HasBody() bool {
	return b.hasBody
}

// Size returns the buffered body length in bytes.
func (b *Body) Size() int64 {
	return b.size
}

// rawBody returns a fresh sequential reader over the buffered body. The
// caller must Close it.
func (b *Body) rawBody() (io.ReadCloser, error) {
	if !b.hasBody {
		return io.NopCloser(strings.NewReader("")), nil
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to reopen body temp file: %w", err)
	}

	return f, nil
}

// dispose deletes the backing temp file. Called by the dispatcher when the
// request closes; see spec §3.
func (b *Body) dispose() {
	if !b.hasBody {
		return
	}

	os.Remove(b.path)
	unregisterTempFile(b.path)
	b.hasBody = false
}

// Form lazily parses an application/x-www-form-urlencoded body into a
// name -> values map.
func (b *Body) Form() (map[string][]string, error) {
	b.once.form.Do(func() {
		r, err := b.rawBody()
		if err != nil {
			b.formErr = err
			return
		}
		defer r.Close()

		raw, err := io.ReadAll(bufio.NewReader(r))
		if err != nil {
			b.formErr = fmt.Errorf("harbor: failed to read form body: %w", err)
			return
		}

		values, err := url.ParseQuery(string(raw))
		if err != nil {
			b.formErr = fmt.Errorf("harbor: failed to parse form body: %w", err)
			return
		}

		b.form = map[string][]string(values)
	})

	return b.form, b.formErr
}

// Multipart lazily parses a multipart/form-data body into name -> parts.
func (b *Body) Multipart() (map[string][]MultipartPart, error) {
	b.once.multipart.Do(func() {
		_, params, err := mime.ParseMediaType(b.contentType)
		if err != nil {
			b.multipartErr = fmt.Errorf("harbor: invalid multipart content-type: %w", err)
			return
		}

		boundary, ok := params["boundary"]
		if !ok {
			b.multipartErr = fmt.Errorf("harbor: multipart content-type missing boundary")
			return
		}

		r, err := b.rawBody()
		if err != nil {
			b.multipartErr = err
			return
		}
		defer r.Close()

		mr := multipart.NewReader(r, boundary)
		out := make(map[string][]MultipartPart)

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				b.multipartErr = fmt.Errorf("harbor: failed to read multipart body: %w", err)
				return
			}

			data, err := io.ReadAll(part)
			if err != nil {
				b.multipartErr = fmt.Errorf("harbor: failed to read multipart part: %w", err)
				return
			}

			name := part.FormName()
			out[name] = append(out[name], MultipartPart{
				Data:        data,
				ContentType: part.Header.Get("Content-Type"),
				Filename:    part.FileName(),
			})
		}

		b.multipartForm = out
	})

	return b.multipartForm, b.multipartErr
}

// JSON lazily unmarshals the body as JSON into v.
func (b *Body) JSON(v interface{}) error {
	b.once.json.Do(func() {
		r, err := b.rawBody()
		if err != nil {
			b.jsonErr = err
			return
		}
		defer r.Close()

		raw, err := io.ReadAll(r)
		if err != nil {
			b.jsonErr = fmt.Errorf("harbor: failed to read json body: %w", err)
			return
		}

		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			b.jsonErr = fmt.Errorf("harbor: failed to parse json body: %w", err)
			return
		}

		b.jsonValue = generic
	})

	if b.jsonErr != nil {
		return b.jsonErr
	}

	raw, err := json.Marshal(b.jsonValue)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}

// Raw reads and returns the whole buffered body as a byte slice.
func (b *Body) Raw() ([]byte, error) {
	r, err := b.rawBody()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
