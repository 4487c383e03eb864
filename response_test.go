package harbor

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(method, rawURL string) *Request {
	path, query := splitRequestURL(rawURL)

	return &Request{
		RawURL: rawURL,
		Path:   path,
		Query:  parseQueryParams(query),
		Header: NewHeader(),
		Method: method,
	}
}

func TestResponseSetStatusAndHeaderBeforeFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.SetStatus(201))
	require.NoError(t, resp.SetHeader("X-Foo", "bar"))

	_, err := resp.PrintBytes([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "bar", rec.Header().Get("X-Foo"))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestResponseMutationFailsAfterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	_, err := resp.PrintBytes([]byte("first"))
	require.NoError(t, err)

	assert.Error(t, resp.SetStatus(500))
	assert.Error(t, resp.SetHeader("X-Late", "v"))
	assert.Error(t, resp.AddHeader("X-Late", "v"))
	assert.Error(t, resp.SetCookie(&Cookie{Name: "a", Value: "b"}))
	assert.Error(t, resp.SetStreamEncoder("gzip"))
}

func TestResponseHeadMethodCannotCarryBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("HEAD", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	_, err := resp.PrintBytes([]byte("nope"))
	assert.Error(t, err)
}

func TestResponseSetCookieIsSerializedOnFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.SetCookie(&Cookie{Name: "session", Value: "abc"}))

	_, err := resp.PrintBytes([]byte("ok"))
	require.NoError(t, err)

	assert.Contains(t, rec.Header().Get("Set-Cookie"), "session=abc")
}

func TestResponseCORSAppliesMatchingOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	req.Header.Set("Origin", "https://allowed.example")

	resp := NewResponse(rec, req, NewEncoderRegistry())
	resp.CORS = &CORSPolicy{
		AllowOrigins:     []string{"https://allowed.example"},
		AllowMethods:     []string{"GET", "POST"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	_, err := resp.PrintBytes([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestResponseCORSOmittedForUnlistedOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	req.Header.Set("Origin", "https://evil.example")

	resp := NewResponse(rec, req, NewEncoderRegistry())
	resp.CORS = &CORSPolicy{AllowOrigins: []string{"https://allowed.example"}}

	_, err := resp.PrintBytes([]byte("ok"))
	require.NoError(t, err)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResponseDefaultContentTypeIsJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	_, err := resp.PrintBytes([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestResponsePrintJSONMarshalsValue(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	_, err := resp.PrintJSON(map[string]int{"a": 1})
	require.NoError(t, err)

	assert.JSONEq(t, `{"a":1}`, rec.Body.String())
}

func TestResponsePrintJSONPrettyFormatsOnQueryFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x?format=pretty")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	_, err := resp.PrintJSON(map[string]int{"a": 1})
	require.NoError(t, err)

	assert.Contains(t, rec.Body.String(), "\n")
	assert.JSONEq(t, `{"a":1}`, rec.Body.String())
}

func TestResponseSetStreamEncoderSetsContentEncoding(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.SetStreamEncoder("gzip"))

	_, err := resp.PrintBytes([]byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestResponseCloseFlushesEvenWithNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.Close())
	assert.Equal(t, 200, rec.Code)
}

func TestResponseFlushIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.flush())
	require.NoError(t, resp.flush())
}

func TestResponsePrintFileSendsContentsWithLength(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0o644))

	rec := httptest.NewRecorder()
	req := newTestRequest("GET", "/x")
	resp := NewResponse(rec, req, NewEncoderRegistry())

	require.NoError(t, resp.PrintFile(path))

	assert.Equal(t, "file contents", rec.Body.String())
	assert.Equal(t, "13", rec.Header().Get("Content-Length"))

	_, err := resp.PrintBytes([]byte("more"))
	assert.Error(t, err, "further writes after sendingFile must be refused")
}
