package harbor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// CORSPolicy describes the cross-origin resource sharing headers a Response
// applies on flush, when attached. See spec §4.F.
type CORSPolicy struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int
}

func (c *CORSPolicy) apply(req *Request, h *Header) {
	if c == nil {
		return
	}

	origin, _ := req.Header.Get("Origin")

	allowed := ""
	for _, o := range c.AllowOrigins {
		if o == "*" || o == origin {
			allowed = o
			break
		}
	}

	if allowed == "" {
		return
	}

	h.Set("Access-Control-Allow-Origin", allowed)

	if len(c.AllowMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", joinComma(c.AllowMethods))
	}
	if len(c.AllowHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", joinComma(c.AllowHeaders))
	}
	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	}
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}

	return out
}

// Response is created paired with a Request. Its fields are mutable until
// the first body write freezes them; see spec §3 and §4.F.
type Response struct {
	Status  int
	Header  *Header
	Cookies *CookieTable
	CORS    *CORSPolicy
	Encoder StreamEncoder

	method      string
	hrw         http.ResponseWriter
	encoders    *EncoderRegistry
	req         *Request
	flushed     bool
	sendingFile bool
	bodyWriter  io.WriteCloser
}

// NewResponse returns a Response wrapping hrw, the underlying transport's
// response writer, for a request that used the given method and whose
// Accept-Encoding negotiation/default encoder selection uses encoders.
func NewResponse(hrw http.ResponseWriter, req *Request, encoders *EncoderRegistry) *Response {
	return &Response{
		Status:   http.StatusOK,
		Header:   NewHeader(),
		Cookies:  NewCookieTable(),
		Encoder:  identityEncoder{},
		method:   req.Method,
		hrw:      hrw,
		encoders: encoders,
		req:      req,
	}
}

func (r *Response) guardMutation() error {
	if r.flushed {
		return &InvalidStateError{Reason: "response already flushed"}
	}

	return nil
}

// SetStatus sets the response status code. Fails with InvalidStateError
// after the first flush.
func (r *Response) SetStatus(code int) error {
	if err := r.guardMutation(); err != nil {
		return err
	}

	r.Status = code

	return nil
}

// SetHeader replaces the value(s) stored under name. A null key or value is
// rejected silently, matching net/http.Header.Set's own silent no-op for an
// empty key.
func (r *Response) SetHeader(name, value string) error {
	if err := r.guardMutation(); err != nil {
		return err
	}

	r.Header.Set(name, value)

	return nil
}

// AddHeader appends value to name's existing values.
func (r *Response) AddHeader(name, value string) error {
	if err := r.guardMutation(); err != nil {
		return err
	}

	r.Header.Add(name, value)

	return nil
}

// SetCookie queues c to be serialized into a Set-Cookie header on flush.
func (r *Response) SetCookie(c *Cookie) error {
	if err := r.guardMutation(); err != nil {
		return err
	}

	r.Cookies.Set(c)

	return nil
}

// SetStreamEncoder selects the named encoder for the body about to be
// written.
func (r *Response) SetStreamEncoder(name string) error {
	if err := r.guardMutation(); err != nil {
		return err
	}

	e, err := r.encoders.Get(name)
	if err != nil {
		return err
	}

	r.Encoder = e

	return nil
}

// canCarryBody reports whether the request method allows a response body.
func (r *Response) canCarryBody() bool {
	return r.method != http.MethodHead && r.method != ""
}

// flush serializes cookies and CORS headers, applies the selected
// encoder's Content-Encoding, and writes the status line and headers. It is
// a no-op if already flushed.
func (r *Response) flush() error {
	if r.flushed {
		return nil
	}

	for _, c := range r.Cookies.All() {
		if s := c.String(); s != "" {
			r.Header.Add("Set-Cookie", s)
		}
	}

	r.CORS.apply(r.req, r.Header)

	if r.Encoder.Name() != "identity" {
		r.Header.Set("Content-Encoding", r.Encoder.Name())
	}

	if _, ok := r.Header.Get("Content-Type"); !ok {
		r.Header.Set("Content-Type", "application/json")
	}

	dst := r.hrw.Header()
	for _, name := range r.Header.Names() {
		for _, v := range r.Header.Values(canonicalHeaderKey(name)) {
			dst.Add(name, v)
		}
	}

	r.hrw.WriteHeader(r.Status)
	r.flushed = true

	bw, err := r.Encoder.Wrap(r.hrw)
	if err != nil {
		return fmt.Errorf("harbor: failed to wrap response encoder: %w", err)
	}

	r.bodyWriter = bw

	return nil
}

// PrintBytes flushes headers (if not already flushed) and writes b to the
// body.
func (r *Response) PrintBytes(b []byte) (int, error) {
	if !r.canCarryBody() {
		return 0, &InvalidStateError{Reason: fmt.Sprintf("method %s cannot carry a body", r.method)}
	}
	if r.sendingFile {
		return 0, &InvalidStateError{Reason: "a file is already being sent"}
	}

	if err := r.flush(); err != nil {
		return 0, err
	}

	return r.bodyWriter.Write(b)
}

// PrintStream flushes headers (if not already flushed) and copies every
// byte read from src into the body. Because the length is not known ahead
// of time, the underlying transport falls back to chunked framing.
func (r *Response) PrintStream(src io.Reader) (int64, error) {
	if !r.canCarryBody() {
		return 0, &InvalidStateError{Reason: fmt.Sprintf("method %s cannot carry a body", r.method)}
	}
	if r.sendingFile {
		return 0, &InvalidStateError{Reason: "a file is already being sent"}
	}

	if err := r.flush(); err != nil {
		return 0, err
	}

	return io.Copy(r.bodyWriter, src)
}

// PrintFile sends the file at path as the response body. If the selected
// encoder is identity, the file's known size becomes Content-Length and the
// raw stream is copied; otherwise the file is first encoded into a second
// temp file so its resulting size can be used as Content-Length. After a
// successful call, sendingFile is set and further writes are refused.
func (r *Response) PrintFile(path string) error {
	if err := r.guardMutation(); err != nil {
		return err
	}
	if !r.canCarryBody() {
		return &InvalidStateError{Reason: fmt.Sprintf("method %s cannot carry a body", r.method)}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("harbor: failed to open file for sending: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("harbor: failed to stat file for sending: %w", err)
	}

	if r.Encoder.Name() == "identity" {
		r.Header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))

		if err := r.flush(); err != nil {
			return err
		}

		if _, err := io.Copy(r.bodyWriter, f); err != nil {
			return fmt.Errorf("harbor: failed to send file: %w", err)
		}

		r.sendingFile = true

		return nil
	}

	tmp, err := os.CreateTemp("", "harbor-sendfile-*")
	if err != nil {
		return fmt.Errorf("harbor: failed to create encoded-send temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc, err := r.Encoder.Wrap(tmp)
	if err != nil {
		return fmt.Errorf("harbor: failed to wrap send-file encoder: %w", err)
	}

	if _, err := io.Copy(enc, f); err != nil {
		return fmt.Errorf("harbor: failed to encode file for sending: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("harbor: failed to finalize encoded file: %w", err)
	}

	encInfo, err := tmp.Stat()
	if err != nil {
		return fmt.Errorf("harbor: failed to stat encoded file: %w", err)
	}

	r.Header.Set("Content-Length", strconv.FormatInt(encInfo.Size(), 10))

	if err := r.flush(); err != nil {
		return err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("harbor: failed to rewind encoded file: %w", err)
	}

	if _, err := io.Copy(r.hrw, tmp); err != nil {
		return fmt.Errorf("harbor: failed to send encoded file: %w", err)
	}

	r.sendingFile = true

	return nil
}

// PrintJSON marshals v as the response body. If the request's query string
// carries "format=pretty", the output is re-indented for readability, per
// the supplemented "pretty JSON" feature.
func (r *Response) PrintJSON(v interface{}) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("harbor: failed to marshal json response: %w", err)
	}

	if format, ok := r.req.Query.Get("format"); ok && format == "pretty" {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			b = pretty
		}
	}

	if _, ok := r.Header.Get("Content-Type"); !ok {
		r.Header.Set("Content-Type", "application/json")
	}

	return r.PrintBytes(b)
}

// Close finalizes the response: it flushes headers if nothing was ever
// written, and closes the body encoder.
func (r *Response) Close() error {
	if err := r.flush(); err != nil {
		return err
	}

	if r.bodyWriter != nil {
		return r.bodyWriter.Close()
	}

	return nil
}
