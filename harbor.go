package harbor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

// ErrorHandler is a Harbor's centralized error handler. It runs after a
// handler or the dispatcher itself returns a non-nil error and the
// response has not yet been flushed. See spec §4.G step 11 and §6.
type ErrorHandler func(err error, req *Request, resp *Response)

// Harbor is the top-level struct of this framework: it owns the route
// registry, the WebSocket server, the share file cache, and every ambient
// service (logging, events, encoders, MIME detection, TLS) described in
// spec §3-§6. New instances are created by New; it is not safe to mutate a
// Harbor's Config fields concurrently with Serve.
type Harbor struct {
	Config *Config

	Registry  *Registry
	Compiler  *Compiler
	Logger    *Logger
	EventBus  *EventBus
	Encoders  *EncoderRegistry
	MIME      MIMEDetector
	Coffer    *Coffer
	WSServer  *WSServer
	Pool      *Pool
	Keystore  *Keystore

	ErrorHandler     ErrorHandler
	NotFoundHandler  func(req *Request, resp *Response) error

	server *http.Server

	shutdownJobMutex sync.Mutex
	shutdownJobs     []func()
	shutdownJobDone  chan struct{}
}

// New returns a Harbor configured from cfg. If cfg is nil, DefaultConfig is
// used.
func New(cfg *Config) *Harbor {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	h := &Harbor{
		Config:          cfg,
		Registry:        NewRegistry(),
		Compiler:        NewCompiler(),
		EventBus:        NewEventBus(),
		Encoders:        NewEncoderRegistry(),
		MIME:            DefaultMIMEDetector,
		Pool:            newPool(),
		ErrorHandler:    DefaultErrorHandler,
		NotFoundHandler: DefaultNotFoundHandler,
		shutdownJobDone: make(chan struct{}),
	}

	h.Logger = newLogger(h)
	h.Coffer = newCoffer(h)
	h.WSServer = newWSServer(h)

	return h
}

// AddShutdownJob registers f to run, concurrently with every other
// registered job, when Shutdown is called. It returns an id that can later
// be passed to RemoveShutdownJob.
func (h *Harbor) AddShutdownJob(f func()) int {
	h.shutdownJobMutex.Lock()
	defer h.shutdownJobMutex.Unlock()

	h.shutdownJobs = append(h.shutdownJobs, f)

	return len(h.shutdownJobs) - 1
}

// RemoveShutdownJob unregisters the shutdown job identified by id.
func (h *Harbor) RemoveShutdownJob(id int) {
	h.shutdownJobMutex.Lock()
	defer h.shutdownJobMutex.Unlock()

	if id >= 0 && id < len(h.shutdownJobs) {
		h.shutdownJobs[id] = nil
	}
}

// --- Registration sugar -----------------------------------------------

func (h *Harbor) registerMethod(
	method, path string,
	handler HTTPHandler,
	opts ...RouteOption,
) (RouteHandle, error) {
	pattern, err := h.Compiler.Compile(path)
	if err != nil {
		return RouteHandle{}, err
	}

	cfg := newRouteConfig(opts)

	return h.Registry.RegisterHTTP(
		pattern,
		[]string{method},
		cfg.domains,
		cfg.requiredHeaders,
		handler,
		cfg.priority,
		cfg.httpRequirements,
		cfg.transformers,
	)
}

// GET registers an HTTP GET endpoint at path.
func (h *Harbor) GET(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodGet, path, handler, opts...)
}

// POST registers an HTTP POST endpoint at path.
func (h *Harbor) POST(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodPost, path, handler, opts...)
}

// PUT registers an HTTP PUT endpoint at path.
func (h *Harbor) PUT(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodPut, path, handler, opts...)
}

// PATCH registers an HTTP PATCH endpoint at path.
func (h *Harbor) PATCH(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodPatch, path, handler, opts...)
}

// DELETE registers an HTTP DELETE endpoint at path.
func (h *Harbor) DELETE(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodDelete, path, handler, opts...)
}

// HEAD registers an HTTP HEAD endpoint at path.
func (h *Harbor) HEAD(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodHead, path, handler, opts...)
}

// OPTIONS registers an HTTP OPTIONS endpoint at path.
func (h *Harbor) OPTIONS(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return h.registerMethod(http.MethodOptions, path, handler, opts...)
}

// WebSocket registers a WebSocket endpoint at path.
func (h *Harbor) WebSocket(path string, handler WebSocketHandler, opts ...RouteOption) (RouteHandle, error) {
	pattern, err := h.Compiler.Compile(path)
	if err != nil {
		return RouteHandle{}, err
	}

	cfg := newRouteConfig(opts)

	return h.Registry.RegisterWebSocket(
		pattern,
		cfg.domains,
		cfg.requiredHeaders,
		handler,
		cfg.priority,
		cfg.wsRequirements,
		cfg.transformers,
	)
}

// Static registers prefix to serve files out of root, with index as the
// fallback file for a request resolving to a directory (defaulting to
// Config.ShareIndexFile if empty). See spec §4.K.
func (h *Harbor) Static(prefix, root, index string) RouteHandle {
	return h.Registry.RegisterShare(prefix, root, index)
}

// Unregister removes a previously registered HTTP, WebSocket, or share
// mapping.
func (h *Harbor) Unregister(handle RouteHandle) {
	h.Registry.Unregister(handle)
}

// Group returns a sub-router that prepends prefix to every path registered
// through it and prepends requirements to every route registered through
// it. See spec §4 ("supplemented feature: Group registration sugar").
func (h *Harbor) Group(prefix string, requirements ...HTTPRequirement) *Group {
	return &Group{h: h, prefix: prefix, requirements: requirements}
}

// --- Dispatch ------------------------------------------------------------

// DefaultNotFoundHandler writes the JSON error body spec §7 requires for the
// NotFound error kind.
func DefaultNotFoundHandler(req *Request, resp *Response) error {
	_ = resp.SetStatus(http.StatusNotFound)
	_, err := resp.PrintJSON(map[string]string{
		"error":  "not found",
		"method": req.Method,
		"path":   req.Path,
	})

	return err
}

// DefaultErrorHandler writes err's message as a plain-text body, unless the
// response was already flushed by the failing handler.
func DefaultErrorHandler(err error, req *Request, resp *Response) {
	if resp.flushed {
		return
	}

	status := resp.Status
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	_ = resp.SetStatus(status)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	_, _ = resp.PrintBytes([]byte(message))
}

// ServeHTTP implements http.Handler: the HTTP request dispatcher described
// in spec §4.G.
func (h *Harbor) ServeHTTP(hrw http.ResponseWriter, hr *http.Request) {
	if strings.EqualFold(hr.Header.Get("Upgrade"), "websocket") {
		h.serveWebSocketUpgrade(hrw, hr)
		return
	}

	header := NewHeader()
	for name, vs := range hr.Header {
		for _, v := range vs {
			header.Add(name, v)
		}
	}

	path, query := splitRequestURL(hr.URL.RequestURI())

	cookies := NewCookieTable()
	for _, c := range hr.Cookies() {
		cookies.Set(&Cookie{Name: c.Name, Value: c.Value})
	}

	body, err := newBody(hr.Body, hr.Header.Get("Content-Type"), h.Config.TempDir)
	if err != nil {
		h.Logger.Errorf("harbor: failed to buffer request body: %v", err)
		hrw.WriteHeader(http.StatusInternalServerError)

		return
	}
	defer body.dispose()

	req := &Request{
		RawURL:   hr.URL.RequestURI(),
		Path:     path,
		Query:    parseQueryParams(query),
		Cookies:  cookies,
		Header:   header,
		RemoteIP: resolveRemoteIP(header, hr.RemoteAddr),
		Host:     hr.Host,
		Method:   hr.Method,
		Body:     body,
		Scratch:  NewScratch(),
	}

	resp := NewResponse(hrw, req, h.Encoders)
	if enc := header.Values("Accept-Encoding"); len(enc) > 0 {
		resp.Encoder = h.Encoders.Negotiate(strings.Join(enc, ","))
	}

	h.dispatchHTTP(req, resp)

	if err := resp.Close(); err != nil {
		h.Logger.Errorf("harbor: failed to close response: %v", err)
	}
}

// dispatchHTTP implements spec §4.G steps 3-11: share short-circuit,
// RequestEvent, resolve, requirement/pattern/transformer filtering per
// priority bucket, handler invocation, and fallthrough to NotFoundHandler.
func (h *Harbor) dispatchHTTP(req *Request, resp *Response) {
	if req.Method == http.MethodGet {
		if share, ok := h.Registry.GetShare(req.Path); ok {
			if err := h.ServeShare(share, req.Path, req.Method, resp); err != nil {
				h.Logger.Errorf("harbor: share handler error for %s: %v", req.Path, err)
			}

			return
		}
	}

	headerNames := make(map[string]bool, len(req.Header.Names()))
	for _, n := range req.Header.Names() {
		headerNames[strings.ToLower(n)] = true
	}

	matches := h.Registry.Resolve(req.Path, req.Method, req.Host, headerNames)
	req.Matched = matches

	ev := h.EventBus.Fire(EventRequest, &RequestEventData{Request: req, Response: resp})
	if ev.Cancelled() {
		return
	}

	cache := h.Pool.TransformerCache()
	defer h.Pool.Put(cache)

	for _, m := range matches {
		if !evaluateHTTPRequirements(m.Requirements, req) {
			continue
		}

		captures, ok := m.pattern.Match(req.Path)
		if !ok {
			continue
		}

		capturedByName := make(map[string]string, len(m.pattern.Params()))
		for i, p := range m.pattern.Params() {
			if i < len(captures) {
				capturedByName[p.Name] = captures[i]
			}
		}

		_, tErr := RunTransformers(m.transformers, capturedByName, cache)
		if tErr != nil {
			h.handleDispatchError(tErr, req, resp)
			return
		}

		ex := &Exchange{Request: req, Response: resp, Scratch: req.Scratch, h: h}

		if err := h.invokeHandler(m.Handler, ex, captures); err != nil {
			h.handleDispatchError(err, req, resp)
			return
		}

		if resp.flushed {
			return
		}
	}

	if len(matches) == 0 {
		h.Logger.Infof("[NOT FOUND] %s %s", req.Method, req.Path)

		if err := h.NotFoundHandler(req, resp); err != nil {
			h.handleDispatchError(err, req, resp)
		}
	}
}

// invokeHandler runs handler, recovering a panic into a *ServerError so a
// single misbehaving handler cannot crash the accept loop. See spec §6
// ("Unexpected handler panics are recovered and reported with a generated
// error ID").
func (h *Harbor) invokeHandler(handler HTTPHandler, ex *Exchange, params []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			id := generateErrorID()
			h.Logger.Errorf("harbor: panic [%s]: %v", id, r)
			err = &ServerError{ID: id, Cause: fmt.Sprintf("%v", r)}
		}
	}()

	return handler(ex, params)
}

func (h *Harbor) handleDispatchError(err error, req *Request, resp *Response) {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		h.Logger.Infof("[NOT FOUND] %s %s", req.Method, req.Path)
		_ = h.NotFoundHandler(req, resp)

		return
	}

	h.ErrorHandler(err, req, resp)
}

// ServerError wraps an unexpected handler panic with a generated
// correlation ID a client can report back.
type ServerError struct {
	ID    string
	Cause string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("harbor: internal error [%s]: %s", e.ID, e.Cause)
}

func generateErrorID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}

	return fmt.Sprintf("%x", b)
}

// serveWebSocketUpgrade completes the RFC 6455 handshake and hands the
// resulting connection to the WSServer's per-connection worker.
func (h *Harbor) serveWebSocketUpgrade(hrw http.ResponseWriter, hr *http.Request) {
	conn, err := h.upgradeWebSocket(hrw, hr)
	if err != nil {
		h.Logger.Errorf("harbor: websocket upgrade failed: %v", err)
		http.Error(hrw, err.Error(), http.StatusBadRequest)

		return
	}

	go h.WSServer.adopt(conn)
}

// --- Serving ---------------------------------------------------------

// Serve starts accepting connections on Config.Address. If Config.TLSCertFile
// and Config.TLSKeyFile are both set, the listener serves TLS using a
// Keystore-backed certificate; if Config.AutoCertHosts is set instead,
// golang.org/x/crypto/acme/autocert manages certificates. Neither path
// negotiates HTTP/2: that protocol is an explicit Non-goal. See spec §4.G
// and §6.
func (h *Harbor) Serve() error {
	l := newListener(h)
	if err := l.listen(h.Config.Address); err != nil {
		return fmt.Errorf("harbor: failed to listen on %s: %w", h.Config.Address, err)
	}
	defer l.Close()

	h.server = &http.Server{
		Addr:              h.Config.Address,
		Handler:           h,
		ReadHeaderTimeout: h.Config.PROXYReadHeaderTimeout,
		ErrorLog:          nil,
	}

	var netListener net.Listener = l

	tlsConfig, err := h.buildTLSConfig()
	if err != nil {
		return err
	}

	if tlsConfig != nil {
		h.server.TLSConfig = tlsConfig
		netListener = tlsListener(netListener, tlsConfig)
	}

	h.server.RegisterOnShutdown(func() {
		h.runShutdownJobs()
	})

	h.Logger.Infof("harbor: listening on %s", h.Config.Address)

	err = h.server.Serve(netListener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown gracefully shuts down the HTTP server, broadcasts a 1001 Going
// Away close to every WebSocket client, runs every registered shutdown
// job, and waits for them to finish or ctx to expire. See spec §4.J.
func (h *Harbor) Shutdown(ctx context.Context) error {
	h.WSServer.Shutdown()

	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.shutdownJobDone:
	}

	CleanupTempFiles()

	return err
}

func (h *Harbor) runShutdownJobs() {
	h.shutdownJobMutex.Lock()
	defer h.shutdownJobMutex.Unlock()

	var wg sync.WaitGroup
	for _, job := range h.shutdownJobs {
		if job == nil {
			continue
		}

		wg.Add(1)
		go func(job func()) {
			defer wg.Done()
			job()
		}(job)
	}

	wg.Wait()
	close(h.shutdownJobDone)
}

func (h *Harbor) buildTLSConfig() (*tlsConfigType, error) {
	switch {
	case h.Config.TLSCertFile != "" && h.Config.TLSKeyFile != "":
		certPEM, err := os.ReadFile(h.Config.TLSCertFile)
		if err != nil {
			return nil, fmt.Errorf("harbor: failed to read tls cert file: %w", err)
		}

		keyPEM, err := os.ReadFile(h.Config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("harbor: failed to read tls key file: %w", err)
		}

		cfg, ks, err := NewTLSConfig(certPEM, keyPEM, h.Config.PassphraseCharset)
		if err != nil {
			return nil, err
		}
		h.Keystore = ks

		return cfg, nil

	case len(h.Config.AutoCertHosts) > 0:
		return autocertTLSConfig(h.Config.AutoCertHosts, h.Config.AutoCertCacheDir), nil

	default:
		return nil, nil
	}
}

