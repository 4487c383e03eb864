package harbor

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireDomainsIsCaseInsensitive(t *testing.T) {
	req := RequireDomains("Example.com", "other.org")

	r := &Request{Host: "EXAMPLE.COM"}
	assert.True(t, req(r))

	r = &Request{Host: "nope.com"}
	assert.False(t, req(r))
}

func TestRequireHeaderChecksPresenceAndOptionalValue(t *testing.T) {
	h := NewHeader()
	h.Set("X-Api-Key", "secret")

	present := RequireHeader("X-Api-Key", "")
	assert.True(t, present(&Request{Header: h}))

	exact := RequireHeader("X-Api-Key", "secret")
	assert.True(t, exact(&Request{Header: h}))

	wrong := RequireHeader("X-Api-Key", "other")
	assert.False(t, wrong(&Request{Header: h}))

	missing := RequireHeader("X-Missing", "")
	assert.False(t, missing(&Request{Header: h}))
}

func TestRequireMethod(t *testing.T) {
	req := RequireMethod(http.MethodGet, http.MethodHead)

	assert.True(t, req(&Request{Method: http.MethodGet}))
	assert.False(t, req(&Request{Method: http.MethodPost}))
}

func TestRequireSubprotocol(t *testing.T) {
	req := RequireSubprotocol("chat", "echo")

	assert.True(t, req(&WSConnection{Subprotocol: "chat"}, nil))
	assert.False(t, req(&WSConnection{Subprotocol: "other"}, nil))
}

func TestRequireOpcode(t *testing.T) {
	req := RequireOpcode(OpcodeText, OpcodeBinary)

	assert.True(t, req(nil, &Frame{Opcode: OpcodeText}))
	assert.False(t, req(nil, &Frame{Opcode: OpcodePing}))
	assert.False(t, req(nil, nil))
}

func TestEvaluateHTTPRequirementsEmptyAlwaysApplies(t *testing.T) {
	assert.True(t, evaluateHTTPRequirements(nil, &Request{}))
}

func TestEvaluateHTTPRequirementsAllMustPass(t *testing.T) {
	alwaysTrue := func(*Request) bool { return true }
	alwaysFalse := func(*Request) bool { return false }

	assert.True(t, evaluateHTTPRequirements([]HTTPRequirement{alwaysTrue, alwaysTrue}, &Request{}))
	assert.False(t, evaluateHTTPRequirements([]HTTPRequirement{alwaysTrue, alwaysFalse}, &Request{}))
}
