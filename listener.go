package harbor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// listener implements net.Listener. It supports TCP keep-alive and the
// text form of the PROXY protocol (v1), per spec §4.G's transport notes.
type listener struct {
	*net.TCPListener

	h                         *Harbor
	allowedPROXYRelayerIPNets []*net.IPNet
}

// newListener returns a listener bound to h's PROXY configuration.
func newListener(h *Harbor) *listener {
	var ipNets []*net.IPNet
	for _, s := range h.Config.PROXYRelayerIPWhitelist {
		if ip := net.ParseIP(s); ip != nil {
			s = ip.String()
			switch {
			case ip.IsUnspecified():
				s += "/0"
			case ip.To4() != nil:
				s += "/32"
			case ip.To16() != nil:
				s += "/128"
			}
		}

		if _, ipNet, _ := net.ParseCIDR(s); ipNet != nil {
			ipNets = append(ipNets, ipNet)
		}
	}

	return &listener{
		h:                         h,
		allowedPROXYRelayerIPNets: ipNets,
	}
}

// listen listens on the TCP network address.
func (l *listener) listen(address string) error {
	nl, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	l.TCPListener = nl.(*net.TCPListener)

	return nil
}

// Accept implements the `net.Listener`.
func (l *listener) Accept() (net.Conn, error) {
	tc, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}

	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)

	if !l.h.Config.PROXYEnabled {
		return tc, nil
	}

	proxyable := len(l.allowedPROXYRelayerIPNets) == 0
	if !proxyable {
		host, _, _ := net.SplitHostPort(tc.RemoteAddr().String())
		ip := net.ParseIP(host)
		for _, ipNet := range l.allowedPROXYRelayerIPNets {
			if ipNet.Contains(ip) {
				proxyable = true
				break
			}
		}
	}

	if proxyable {
		return &proxyConn{
			Conn:              tc,
			bufReader:         bufio.NewReader(tc),
			readHeaderOnce:    &sync.Once{},
			readHeaderTimeout: l.h.Config.PROXYReadHeaderTimeout,
		}, nil
	}

	return tc, nil
}

// proxyConn implements the `net.Conn`. It is used to wrap a `net.Conn` which
// may be speaking the PROXY protocol v1 (the human-readable text form; the
// binary v2 form is not accepted here, see DESIGN.md for why).
type proxyConn struct {
	net.Conn

	bufReader         *bufio.Reader
	srcAddr           *net.TCPAddr
	dstAddr           *net.TCPAddr
	readHeaderOnce    *sync.Once
	readHeaderError   error
	readHeaderTimeout time.Duration
}

// Read implements the `net.Conn`.
func (pc *proxyConn) Read(b []byte) (int, error) {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.readHeaderError != nil {
		return 0, pc.readHeaderError
	}

	return pc.bufReader.Read(b)
}

// LocalAddr implements the `net.Conn`.
func (pc *proxyConn) LocalAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.dstAddr != nil {
		return pc.dstAddr
	}

	return pc.Conn.LocalAddr()
}

// RemoteAddr implements the `net.Conn`.
func (pc *proxyConn) RemoteAddr() net.Addr {
	pc.readHeaderOnce.Do(pc.readHeader)
	if pc.srcAddr != nil {
		return pc.srcAddr
	}

	return pc.Conn.RemoteAddr()
}

// readHeader reads the PROXY protocol v1 header. It does nothing if the
// connection of pc is not speaking it: the "PROXY " preamble is only peeked,
// never discarded, so a non-PROXY connection's first bytes are left intact
// for the caller's first real Read.
func (pc *proxyConn) readHeader() {
	if pc.readHeaderTimeout != 0 {
		pc.SetReadDeadline(time.Now().Add(pc.readHeaderTimeout))
		defer pc.SetReadDeadline(time.Time{})
	}

	defer func() {
		if pc.readHeaderError != nil && pc.readHeaderError != io.EOF {
			pc.Close()
			pc.bufReader = bufio.NewReader(pc.Conn)
		}
	}()

	for i := 0; i < 6; i++ { // i < len("PROXY ")
		var b []byte
		b, pc.readHeaderError = pc.bufReader.Peek(i + 1)
		if pc.readHeaderError != nil {
			var ne net.Error
			if errors.As(pc.readHeaderError, &ne) && ne.Timeout() {
				pc.readHeaderError = nil
			}

			return
		}

		if b[i] != "PROXY "[i] {
			pc.readHeaderError = nil
			return
		}
	}

	var header string
	header, pc.readHeaderError = pc.bufReader.ReadString('\n')
	if pc.readHeaderError != nil {
		return
	}

	header = header[:len(header)-2] // Strip CRLF

	// PROXY <protocol> <src ip> <dst ip> <src port> <dst port>
	parts := strings.Split(header, " ")
	if len(parts) != 6 {
		pc.readHeaderError = fmt.Errorf(
			"harbor: malformed proxy header line: %s",
			header,
		)
		return
	}

	switch parts[1] { // <protocol>
	case "TCP4", "TCP6":
	default:
		pc.readHeaderError = fmt.Errorf(
			"harbor: unsupported proxy transport protocol: %s",
			parts[1],
		)
		return
	}

	srcIP := net.ParseIP(parts[2]) // <src ip>
	if srcIP == nil {
		pc.readHeaderError = fmt.Errorf(
			"harbor: invalid proxy source ip: %s",
			parts[2],
		)
		return
	}

	dstIP := net.ParseIP(parts[3]) // <dst ip>
	if dstIP == nil {
		pc.readHeaderError = fmt.Errorf(
			"harbor: invalid proxy destination ip: %s",
			parts[3],
		)
		return
	}

	srcPort, err := strconv.Atoi(parts[4]) // <src port>
	if err != nil {
		pc.readHeaderError = fmt.Errorf(
			"harbor: invalid proxy source port: %s",
			parts[4],
		)
		return
	}

	dstPort, err := strconv.Atoi(parts[5]) // <dst port>
	if err != nil {
		pc.readHeaderError = fmt.Errorf(
			"harbor: invalid proxy destination port: %s",
			parts[5],
		)
		return
	}

	pc.srcAddr = &net.TCPAddr{
		IP:   srcIP,
		Port: srcPort,
	}

	pc.dstAddr = &net.TCPAddr{
		IP:   dstIP,
		Port: dstPort,
	}
}
