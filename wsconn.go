package harbor

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// websocketAcceptMagic is the GUID RFC 6455 §1.3 appends to the client's key
// before hashing to produce Sec-WebSocket-Accept.
const websocketAcceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// The WebSocket close codes this implementation selects. See spec §4.I.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseUnsupported   = 1003
	CloseNoStatus      = 1005
	CloseAbnormal      = 1006
	closeReservedLow   = 1004
	closeReservedHigh  = 1015
	ClosePolicy        = 1008
	ClosePayloadTooBig = 1009
	CloseServerError   = 1011
	CloseTryAgain      = 1013
)

// isReservedCloseCode reports whether code falls in the internal range
// applications must not select directly, per spec §4.I.
func isReservedCloseCode(code int) bool {
	return code >= closeReservedLow && code <= closeReservedHigh && code != CloseNoStatus && code != CloseAbnormal
}

// WSConnectionState is a WebSocket client state's lifecycle stage. See spec
// §3 and §4.I.
type WSConnectionState uint8

// The five lifecycle stages a WSConnection passes through.
const (
	WSStateAccepted WSConnectionState = iota
	WSStateHandshakeSent
	WSStateDispatching
	WSStateClosing
	WSStateClosed
)

// WSConnection is the WebSocket client state described in spec §3: the
// accepted socket, its resolved identity, negotiated extensions, and close
// metadata. It is created on TCP accept and only releases the underlying
// socket once Closed.
type WSConnection struct {
	h *Harbor

	conn net.Conn
	br   *bufio.Reader

	Path        string
	Host        string
	RemoteIP    string
	Header      *Header
	Subprotocol string

	Extensions            []Extension
	FragmentationEnabled  bool
	FragmentationMaxSize  int

	Scratch *Scratch

	stateMu sync.Mutex
	state   WSConnectionState

	writeMu sync.Mutex

	CloseCode      int
	CloseReason    string
	closeInitiator string
}

func (c *WSConnection) setState(s WSConnectionState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State returns c's current lifecycle stage.
func (c *WSConnection) State() WSConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.state
}

// availableExtensions lists the extension names this Harbor can negotiate,
// each paired with a factory taking the offer's parameters.
func (h *Harbor) availableExtensions() map[string]func(map[string]string) Extension {
	return map[string]func(map[string]string) Extension{
		"permessage-deflate": func(params map[string]string) Extension {
			level := parseUintParam(params, "level", h.Config.PermessageDeflateLevel)

			return NewPermessageDeflate(
				h.Config.PermessageDeflateThreshold,
				h.Config.PermessageDeflateMaxDecompressed,
				level,
			)
		},
	}
}

// upgradeWebSocket performs the RFC 6455 handshake over r/w, hijacking the
// underlying connection. See spec §4.I.
func (h *Harbor) upgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WSConnection, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, &ProtocolError{Reason: "missing Upgrade: websocket header"}
	}

	hasUpgradeToken := false
	for _, tok := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
			hasUpgradeToken = true
			break
		}
	}
	if !hasUpgradeToken {
		return nil, &ProtocolError{Reason: "missing Connection: upgrade header"}
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, &ProtocolError{Reason: "missing Sec-WebSocket-Key"}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, fmt.Errorf("harbor: underlying response writer cannot hijack")
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to hijack connection: %w", err)
	}

	negotiated, responseValue := NegotiateExtensions(
		r.Header.Get("Sec-WebSocket-Extensions"),
		h.availableExtensions(),
	)

	header := NewHeader()
	for name, vs := range r.Header {
		for _, v := range vs {
			header.Add(name, v)
		}
	}

	c := &WSConnection{
		h:                    h,
		conn:                 conn,
		br:                   rw.Reader,
		Path:                 r.URL.Path,
		Host:                 r.Host,
		RemoteIP:             resolveRemoteIP(header, conn.RemoteAddr().String()),
		Header:               header,
		Extensions:           reverseExtensions(negotiated),
		FragmentationEnabled: h.Config.WebSocketFragmentationMax > 0,
		FragmentationMaxSize: h.Config.WebSocketFragmentationMax,
		Scratch:              NewScratch(),
		state:                WSStateAccepted,
	}

	accept := computeWebSocketAccept(key)

	var resp strings.Builder
	resp.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	resp.WriteString("Upgrade: websocket\r\n")
	resp.WriteString("Connection: Upgrade\r\n")
	resp.WriteString("Sec-WebSocket-Accept: " + accept + "\r\n")
	if responseValue != "" {
		resp.WriteString("Sec-WebSocket-Extensions: " + responseValue + "\r\n")
	}
	resp.WriteString("\r\n")

	if _, err := rw.WriteString(resp.String()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("harbor: failed to write handshake response: %w", err)
	}
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("harbor: failed to flush handshake response: %w", err)
	}

	c.setState(WSStateHandshakeSent)

	return c, nil
}

// computeWebSocketAccept implements spec §4.I's handshake formula. For key
// "dGhlIHNhbXBsZSBub25jZQ==" it must equal
// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", per spec §8 property 9.
func computeWebSocketAccept(key string) string {
	sum := sha1.Sum([]byte(key + websocketAcceptMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Close closes the connection's socket without sending a close frame.
func (c *WSConnection) Close() error {
	c.setState(WSStateClosed)
	return c.conn.Close()
}

// SendClose writes a CLOSE frame with code and reason, then transitions to
// Closing. code must not be in the reserved internal range.
func (c *WSConnection) SendClose(code int, reason string) error {
	if isReservedCloseCode(code) {
		return &InvalidStateError{Reason: fmt.Sprintf("close code %d is reserved", code)}
	}

	payload := make([]byte, 0, 2+len(reason))
	payload = append(payload, byte(code>>8), byte(code))
	payload = append(payload, reason...)

	c.setState(WSStateClosing)

	return c.writeFrame(&Frame{FIN: true, Opcode: OpcodeClose, Payload: payload})
}

// Send transmits a TEXT or BINARY message, running the negotiated extension
// chain and optional fragmentation. See spec §4.I ("Outgoing send").
func (c *WSConnection) Send(opcode Opcode, payload []byte) error {
	ev := c.h.EventBus.Fire(EventOutgoingSocketMessage, &OutgoingSocketMessageEventData{
		Connection: c,
		Frame:      &Frame{FIN: true, Opcode: opcode, Payload: payload},
	})
	if ev.Cancelled() {
		return nil
	}

	rsv1 := false
	for _, ext := range c.Extensions {
		out, usedRSV1, err := ext.Encode(payload)
		if err != nil {
			return err
		}

		payload = out
		rsv1 = rsv1 || usedRSV1
	}

	full := &Frame{FIN: true, RSV1: rsv1, Opcode: opcode, Payload: payload}

	var frames []*Frame
	if c.FragmentationEnabled {
		frames = FragmentFrame(full, c.FragmentationMaxSize)
	} else {
		frames = []*Frame{full}
	}

	for _, f := range frames {
		if err := c.writeFrame(f); err != nil {
			return err
		}
	}

	return nil
}

// writeFrame serializes f and writes it to the socket under the per-
// connection send mutex, so at most one frame is ever in flight. Server-
// originated frames are unmasked, per spec §4.H.
func (c *WSConnection) writeFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return EncodeFrame(c.conn, f, false)
}

// Serve runs the read/dispatch loop described in spec §4.I until the
// connection closes. It is meant to be run on its own worker goroutine; see
// spec §5 ("Each WebSocket connection owns a dedicated worker that performs
// blocking reads").
func (c *WSConnection) Serve() {
	defer c.Close()

	c.setState(WSStateDispatching)

	var assembled *Frame

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.h.Config.WebSocketReadTimeout))

		f, err := DecodeFrame(c.br)
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !f.Masked {
			c.protocolClose(CloseProtocolError, "client frames must be masked")
			return
		}

		if f.Opcode.IsControl() {
			if !c.handleControlFrame(f) {
				return
			}
			continue
		}

		if assembled == nil {
			if f.Opcode == OpcodeContinuation {
				c.protocolClose(CloseProtocolError, "continuation without a prior frame")
				return
			}
			assembled = f
		} else {
			joined, err := AppendContinuation(assembled, f)
			if err != nil {
				c.protocolClose(CloseProtocolError, err.Error())
				return
			}
			assembled = joined
		}

		if !assembled.FIN {
			continue
		}

		c.dispatchMessage(assembled)
		assembled = nil
	}
}

func (c *WSConnection) handleReadError(err error) {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.CloseCode = CloseAbnormal
		c.closeInitiator = "timeout"
		return
	}

	if pe, ok := err.(*ProtocolError); ok {
		c.protocolClose(CloseProtocolError, pe.Reason)
		return
	}

	if pl, ok := err.(*PayloadTooLargeError); ok {
		c.protocolClose(ClosePayloadTooBig, pl.Error())
		return
	}

	c.CloseCode = CloseAbnormal
	c.closeInitiator = "io-error"
}

func (c *WSConnection) protocolClose(code int, reason string) {
	c.CloseCode = code
	c.CloseReason = reason
	c.closeInitiator = "server"
	c.SendClose(code, reason)
}

// handleControlFrame processes one control frame and reports whether the
// read loop should continue.
func (c *WSConnection) handleControlFrame(f *Frame) bool {
	switch f.Opcode {
	case OpcodePing:
		c.h.EventBus.Fire(EventPing, &PingEventData{Connection: c, Payload: f.Payload})
		c.writeFrame(&Frame{FIN: true, Opcode: OpcodePong, Payload: f.Payload})
		return true

	case OpcodePong:
		c.h.EventBus.Fire(EventPong, &PongEventData{Connection: c, Payload: f.Payload})
		return true

	case OpcodeClose:
		code, reason := CloseNoStatus, ""
		if len(f.Payload) >= 2 {
			code = int(f.Payload[0])<<8 | int(f.Payload[1])
			reason = string(f.Payload[2:])
		}

		c.CloseCode = code
		c.CloseReason = reason
		c.closeInitiator = "client"
		c.SendClose(CloseNormal, "Acknowledged close")

		return false
	}

	return true
}

// dispatchMessage runs the extension decode chain then resolves and invokes
// matching WebSocket endpoints, per spec §4.G steps 8-9 adapted for
// WebSockets.
func (c *WSConnection) dispatchMessage(msg *Frame) {
	payload := msg.Payload
	rsv1 := msg.RSV1

	for i := len(c.Extensions) - 1; i >= 0; i-- {
		out, err := c.Extensions[i].Decode(payload, rsv1)
		if err != nil {
			c.protocolClose(CloseProtocolError, err.Error())
			return
		}
		payload = out
		rsv1 = false
	}

	headerNames := make(map[string]bool, len(c.Header.Names()))
	for _, n := range c.Header.Names() {
		headerNames[strings.ToLower(n)] = true
	}

	matches := c.h.Registry.ResolveWebSocket(c.Path, c.Host, headerNames)

	ex := &WebSocketExchange{Connection: c, Scratch: c.Scratch, h: c.h}

	for _, m := range matches {
		if !evaluateWSRequirements(m.Requirements, c, msg) {
			continue
		}

		captures, ok := m.pattern.Match(c.Path)
		if !ok {
			continue
		}

		capturedByName := make(map[string]string, len(m.pattern.Params()))
		for i, p := range m.pattern.Params() {
			if i < len(captures) {
				capturedByName[p.Name] = captures[i]
			}
		}

		cache := c.h.Pool.TransformerCache()

		_, tErr := RunTransformers(m.transformers, capturedByName, cache)
		c.h.Pool.Put(cache)
		if tErr != nil {
			c.protocolClose(CloseProtocolError, tErr.Error())
			return
		}

		if err := m.Handler(ex, payload, captures); err != nil {
			c.h.Logger.Errorf("harbor: websocket handler error: %v", err)
		}
	}
}
