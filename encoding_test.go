package harbor

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderRegistryNegotiatesHighestQValue(t *testing.T) {
	r := NewEncoderRegistry()

	e := r.Negotiate("gzip;q=0.5, deflate;q=0.9")
	assert.Equal(t, "deflate", e.Name())
}

func TestEncoderRegistryNegotiateFallsBackToIdentity(t *testing.T) {
	r := NewEncoderRegistry()

	e := r.Negotiate("br")
	assert.Equal(t, "identity", e.Name())

	e = r.Negotiate("")
	assert.Equal(t, "identity", e.Name())
}

func TestEncoderRegistryNegotiateIgnoresZeroQValue(t *testing.T) {
	r := NewEncoderRegistry()

	e := r.Negotiate("gzip;q=0, deflate;q=0.1")
	assert.Equal(t, "deflate", e.Name())
}

func TestEncoderRegistryGetUnknownNameErrors(t *testing.T) {
	r := NewEncoderRegistry()

	_, err := r.Get("brotli")
	assert.Error(t, err)
}

func TestGzipEncoderWrapsWriter(t *testing.T) {
	r := NewEncoderRegistry()
	e, err := r.Get("gzip")
	require.NoError(t, err)

	var buf bytes.Buffer
	wc, err := e.Wrap(&buf)
	require.NoError(t, err)

	_, err = wc.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	gr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	defer gr.Close()

	out, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestIdentityEncoderPassesThroughUnchanged(t *testing.T) {
	e := identityEncoder{}

	var buf bytes.Buffer
	wc, err := e.Wrap(&buf)
	require.NoError(t, err)

	_, err = wc.Write([]byte("verbatim"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	assert.Equal(t, "verbatim", buf.String())
}
