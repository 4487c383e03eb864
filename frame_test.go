package harbor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTripUnmasked(t *testing.T) {
	f := &Frame{FIN: true, Opcode: OpcodeText, Payload: []byte("hello world")}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f, false))

	got, err := DecodeFrame(&buf)
	require.NoError(t, err)

	assert.True(t, got.FIN)
	assert.Equal(t, OpcodeText, got.Opcode)
	assert.False(t, got.Masked)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestFrameEncodeDecodeRoundTripMasked(t *testing.T) {
	f := &Frame{FIN: true, Opcode: OpcodeBinary, Payload: []byte{1, 2, 3, 4, 5}}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f, true))

	got, err := DecodeFrame(&buf)
	require.NoError(t, err)

	assert.True(t, got.Masked)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestFrameDecodeRejectsUnknownOpcode(t *testing.T) {
	// First byte: FIN=1, opcode=0x3 (reserved/unknown), second byte: len=0.
	buf := bytes.NewReader([]byte{0x83, 0x00})

	_, err := DecodeFrame(buf)
	require.Error(t, err)

	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestFrameDecodeRejectsFragmentedControlFrame(t *testing.T) {
	// FIN=0, opcode=PING (0x9).
	buf := bytes.NewReader([]byte{0x09, 0x00})

	_, err := DecodeFrame(buf)
	require.Error(t, err)

	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestFrameDecodeRejectsOversizedControlFrame(t *testing.T) {
	f := &Frame{FIN: true, Opcode: OpcodePing, Payload: bytes.Repeat([]byte{'a'}, 126)}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f, false))

	_, err := DecodeFrame(&buf)
	require.Error(t, err)

	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestFrameDecodeHandlesExtendedLength16(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 200)
	f := &Frame{FIN: true, Opcode: OpcodeBinary, Payload: payload}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f, false))

	got, err := DecodeFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestFrameDecodeHandlesExtendedLength64(t *testing.T) {
	payload := bytes.Repeat([]byte{'y'}, 70_000)
	f := &Frame{FIN: true, Opcode: OpcodeBinary, Payload: payload}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f, false))

	got, err := DecodeFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), len(got.Payload))
	assert.Equal(t, payload, got.Payload)
}

func TestAppendContinuationJoinsPayloadsAndTakesFollowerFIN(t *testing.T) {
	prior := &Frame{FIN: false, Opcode: OpcodeText, Payload: []byte("hel")}
	follower := &Frame{FIN: true, Opcode: OpcodeContinuation, Payload: []byte("lo")}

	joined, err := AppendContinuation(prior, follower)
	require.NoError(t, err)

	assert.True(t, joined.FIN)
	assert.Equal(t, OpcodeText, joined.Opcode)
	assert.Equal(t, "hello", string(joined.Payload))
}

func TestAppendContinuationRejectsAfterFinalFrame(t *testing.T) {
	prior := &Frame{FIN: true, Opcode: OpcodeText, Payload: []byte("done")}
	follower := &Frame{FIN: true, Opcode: OpcodeContinuation, Payload: []byte("?")}

	_, err := AppendContinuation(prior, follower)
	assert.Error(t, err)
}

func TestAppendContinuationRejectsNonContinuationFollower(t *testing.T) {
	prior := &Frame{FIN: false, Opcode: OpcodeText, Payload: []byte("a")}
	follower := &Frame{FIN: true, Opcode: OpcodeText, Payload: []byte("b")}

	_, err := AppendContinuation(prior, follower)
	assert.Error(t, err)
}

func TestFragmentFrameSplitsIntoBoundedFragments(t *testing.T) {
	payload := []byte(strings.Repeat("a", 25))
	f := &Frame{FIN: true, Opcode: OpcodeText, Payload: payload}

	frags := FragmentFrame(f, 10)
	require.Len(t, frags, 3)

	assert.Equal(t, OpcodeText, frags[0].Opcode)
	assert.False(t, frags[0].FIN)

	assert.Equal(t, OpcodeContinuation, frags[1].Opcode)
	assert.False(t, frags[1].FIN)

	assert.Equal(t, OpcodeContinuation, frags[2].Opcode)
	assert.True(t, frags[2].FIN)

	var rejoined []byte
	for _, fr := range frags {
		rejoined = append(rejoined, fr.Payload...)
	}
	assert.Equal(t, payload, rejoined)
}

func TestFragmentFrameReturnsSingleFrameWhenUnderLimit(t *testing.T) {
	f := &Frame{FIN: true, Opcode: OpcodeText, Payload: []byte("short")}

	frags := FragmentFrame(f, 100)
	require.Len(t, frags, 1)
	assert.Same(t, f, frags[0])
}

func TestFragmentFrameNoSplitWhenMaxFragmentNonPositive(t *testing.T) {
	f := &Frame{FIN: true, Opcode: OpcodeText, Payload: []byte("anything")}

	frags := FragmentFrame(f, 0)
	require.Len(t, frags, 1)
	assert.Same(t, f, frags[0])
}
