package littlewebserver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RouteController is the external collaborator that turns a parsed Request
// into a Response, per spec §1's "Route-Pattern DSL and matcher ... This
// includes both the parser ... and the runtime matching/transformation
// pipeline," and §4.5 step 3's "obtain a RouteController ... Ask it to
// produce a Response." It is deliberately narrow: route-table construction,
// prefix merging and host multiplexing live outside the core (spec §1
// Non-goals).
type RouteController interface {
	// Route returns the Response for req, or nil to signal that no route
	// matched (the core treats a nil return as an ordinary 404, per spec
	// §7 RouteNotFound: "the RouteController returned no match; the
	// controller is responsible for producing a 404 response").
	Route(req *Request) *Response

	// InternalError returns the Response to send when Route panics or
	// the dispatch otherwise fails, per spec §7 HandlerFailure.
	InternalError(req *Request, err error) *Response
}

// connectionWorker is the per-connection state machine described in spec
// §4.5: ReadingHead -> ReadingHeaders -> ReadingBody/Dispatching -> Writing
// -> {HopPending | Draining | Closed}.
type connectionWorker struct {
	server *Server
	conn   net.Conn
	reader *ByteStreamReader

	firstRequest bool
	keepAlive    bool
	requestCount int

	// sessionID carries a session id created or touched by one request
	// forward to the next request on the same connection, per spec §4.6:
	// "Session ids observed on cookies are retained across requests
	// within one connection."
	sessionID string
}

func newConnectionWorker(s *Server, conn net.Conn) *connectionWorker {
	return &connectionWorker{
		server:       s,
		conn:         conn,
		reader:       newByteStreamReader(conn),
		firstRequest: true,
		keepAlive:    true,
	}
}

// serve runs the worker's state machine until the connection is closed or
// handed off via a queue hop. It owns conn and closes it on every exit path
// except a successful hop (spec §3 Ownership, §4.5 state machine
// invariants).
func (w *connectionWorker) serve() {
	owns := true
	defer func() {
		if owns {
			w.conn.Close()
		}
	}()

	for {
		if w.server.isStopping() {
			return
		}

		requestLine, err := w.readRequestLine()
		if err != nil {
			if err == io.EOF {
				return
			}
			var timedOut *ConnectionTimedOutError
			if errors.As(err, &timedOut) {
				w.server.reportError(err)
				return
			}
			w.writeBadRequest(err)
			return
		}

		req, berr := w.buildRequest(requestLine)
		if berr != nil {
			w.writeBadRequest(berr)
			return
		}

		if req.Headers.Connection() == ConnectionClose {
			w.keepAlive = false
		}

		resp := w.dispatch(req)

		if isHopQueue(resp.WriteQueue) {
			hopped := w.hop(req, resp)
			if hopped {
				owns = false
				return
			}
			// Admission refused only because the controller is
			// stopping; fall through and let this worker write
			// the response itself so the client still gets a
			// reply before shutdown completes.
		}

		if werr := w.writeResponse(req, resp); werr != nil {
			w.cleanupUploads(req)
			w.server.reportError(werr)
			return
		}
		w.cleanupUploads(req)

		if _, isUpgrade := resp.Headers.Upgrade(); isUpgrade {
			// The socket now belongs entirely to the upgraded
			// protocol; the stream callback already ran to
			// completion inside writeResponse. No further HTTP
			// request is ever read from this connection.
			return
		}

		if derr := w.drainResidual(req); derr != nil {
			w.server.reportError(derr)
			return
		}

		w.server.pool.putRequest(req)

		w.requestCount++
		w.firstRequest = false

		if !w.keepAlive {
			return
		}
		if max := w.server.Config.MaxRequestsPerConnection; max > 0 && w.requestCount >= max {
			return
		}
	}
}

// isHopQueue reports whether queue names a non-current WorkerQueue, per
// spec §3's "write-queue selector (.current or a named WorkerQueue)."
func isHopQueue(queue string) bool {
	return queue != "" && queue != "." && queue != "current" && queue != ".current"
}

// hop transfers ownership of the response's write phase to queue, per spec
// §4.5 step 4. It returns true iff the hop was admitted; the hopped
// goroutine closes the connection and cleans up uploads on every exit.
func (w *connectionWorker) hop(req *Request, resp *Response) bool {
	return w.server.Queues.submit(resp.WriteQueue, func() {
		defer w.conn.Close()
		defer w.server.pool.putRequest(req)
		defer w.cleanupUploads(req)
		if err := w.writeResponse(req, resp); err != nil {
			w.server.reportError(err)
			return
		}
		if err := w.drainResidual(req); err != nil {
			w.server.reportError(err)
		}
	})
}

// readRequestLine reads one "METHOD SP target SP VERSION" line, honoring
// spec §4.5 step 1: the first request of a connection is bounded by
// InitialRequestTimeout; subsequent requests block indefinitely.
func (w *connectionWorker) readRequestLine() (string, error) {
	if w.firstRequest {
		w.conn.SetReadDeadline(time.Now().Add(w.server.Config.InitialRequestTimeout))
	} else {
		w.conn.SetReadDeadline(time.Time{})
	}

	line, err := w.reader.ReadLine()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", &ConnectionTimedOutError{}
		}
		if err == io.ErrUnexpectedEOF && w.firstRequest {
			return "", io.EOF
		}
		return "", err
	}

	w.conn.SetReadDeadline(time.Time{})

	if line == "" {
		// Tolerate a leading blank line (some clients send one
		// between pipelined requests) by reading the next line.
		return w.readRequestLine()
	}

	return line, nil
}

// buildRequest parses the request head, headers, and body framing, and
// returns a fully populated Request. See spec §4.2.
func (w *connectionWorker) buildRequest(requestLine string) (*Request, error) {
	method, target, proto, err := parseRequestLine(requestLine)
	if err != nil {
		return nil, err
	}

	headers, err := w.readHeaders()
	if err != nil {
		return nil, err
	}
	if err := headers.validate(); err != nil {
		return nil, err
	}

	req := w.server.pool.getRequest()
	req.Server = w.server
	req.Method = method
	req.Protocol = parseProtocolVersion(proto)
	req.Headers = headers
	req.RemoteAddr = w.conn.RemoteAddr().String()

	rawPath, rawQuery := splitTarget(target)
	req.RawPath = rawPath
	req.RawQuery = rawQuery
	req.PathComponents = splitPathComponents(rawPath)
	if qp, err := url.ParseQuery(rawQuery); err == nil {
		req.QueryParams = qp
	}

	for _, cookieHeader := range headers.Get("Cookie") {
		req.Cookies = append(req.Cookies, parseCookieHeader(cookieHeader)...)
	}

	chunked := headers.IsChunked()
	length, haveLength := headers.ContentLength()
	w.reader.configureBody(chunked, length, haveLength)
	if chunked || haveLength {
		req.Body = newInputStream(w.reader)
	}

	if ct, ok := headers.ContentType(); ok && ct.IsMultipartForm() && req.Body != nil {
		boundary := ct.Parameters["boundary"]
		if boundary == "" {
			return nil, &BadRequestError{Reason: "multipart/form-data missing boundary"}
		}
		files, _, perr := parseMultipartBody(req.Body, boundary, headers.Host(), w.server.Config.TempRoot, w.server.coffer)
		if perr != nil {
			return nil, perr
		}
		req.UploadedFiles = files
	}

	w.bindSession(req)

	return req, nil
}

// parseRequestLine splits "METHOD SP target SP VERSION" into its three
// tokens, per spec §4.2 read-head.
func parseRequestLine(line string) (method, target, proto string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", &BadRequestError{Reason: "malformed request line: " + strconv.Quote(line)}
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", "", &BadRequestError{Reason: "malformed request line: " + strconv.Quote(line)}
	}
	return parts[0], parts[1], parts[2], nil
}

// splitTarget splits a request-target into its path and raw query at the
// first "?", per spec §4.2.
func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// readHeaders reads header lines until a blank line, folding continuation
// lines (leading whitespace) into the previous header's value with a single
// separating space, per spec §4.2.
func (w *connectionWorker) readHeaders() (Headers, error) {
	hs := Headers{}
	lastHeader := ""

	for {
		line, err := w.reader.ReadLine()
		if err != nil {
			return nil, &BadRequestError{Reason: "reading headers: " + err.Error()}
		}
		if line == "" {
			break
		}

		if (line[0] == ' ' || line[0] == '\t') && lastHeader != "" {
			hs.addContinuation(lastHeader, line)
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, &BadRequestError{Reason: "malformed header line: " + strconv.Quote(line)}
		}
		name := strings.TrimSpace(line[:colon])
		if !validToken(name) {
			return nil, &BadRequestError{Reason: "invalid header name: " + strconv.Quote(name)}
		}
		value := strings.TrimSpace(line[colon+1:])
		if !validFieldValue(value) {
			return nil, &BadRequestError{Reason: "invalid header value for " + strconv.Quote(name)}
		}

		hs.add(name, value)
		lastHeader = name
	}

	return hs, nil
}

// bindSession attaches the session observed on req's cookies, or the
// connection's carried-forward session id, per spec §4.6.
func (w *connectionWorker) bindSession(req *Request) {
	sm := w.server.Sessions
	if sm == nil {
		return
	}

	id := w.sessionID
	for _, c := range req.Cookies {
		if c.Name == sessionCookieName && c.Value != "" {
			id = c.Value
		}
	}
	if id == "" {
		return
	}
	if s, ok := sm.Load(id); ok {
		req.Session = s
	}
}

// dispatch asks the server's RouteController for a Response, converting a
// panic into the controller's internal-error Response per spec §7
// HandlerFailure.
func (w *connectionWorker) dispatch(req *Request) (resp *Response) {
	controller := w.server.Router
	if controller == nil {
		r := NewResponse()
		r.StatusCode = 404
		r.SetInlineBody([]byte("not found"))
		return r
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic in route handler: %v", rec)
			w.server.reportError(&HandlerFailureError{Cause: err})
			resp = controller.InternalError(req, err)
			if resp == nil {
				resp = NewResponse()
				resp.StatusCode = 500
			}
		}
	}()

	resp = controller.Route(req)
	if resp == nil {
		resp = NewResponse()
		resp.StatusCode = 404
	}
	return resp
}

// mergeSessionCookies implements spec §4.5 step 5.1: expire cookies for
// sessions no longer attached or invalidated, save-through and refresh the
// cookie for a live session, and silently drop a never-used new session.
func (w *connectionWorker) mergeSessionCookies(req *Request, resp *Response) {
	sm := w.server.Sessions
	if sm == nil {
		return
	}

	s := req.Session
	if s == nil {
		if w.sessionID != "" {
			resp.SetCookie(expireCookie(sessionCookieName, "", "/"))
			w.sessionID = ""
		}
		return
	}

	if s.Invalidated {
		sm.Remove(s)
		resp.SetCookie(expireCookie(sessionCookieName, "", "/"))
		w.sessionID = ""
		return
	}

	if s.isNew && !s.accessed {
		w.sessionID = ""
		return
	}

	if err := sm.Save(s); err != nil {
		w.server.reportError(err)
		return
	}

	resp.SetCookie(&Cookie{
		Name:     sessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HTTPOnly: true,
		MaxAge:   sm.TimeoutSeconds(),
	})
	w.sessionID = s.ID
}

// writeResponse performs the Write step described in spec §4.5 step 5. It
// runs identically whether called from the original connection worker or
// from a hopped WorkerQueue task.
func (w *connectionWorker) writeResponse(req *Request, resp *Response) error {
	w.mergeSessionCookies(req, resp)

	if !resp.Headers.Has("Content-Type") {
		if ct := resp.inferContentType(w.server.ContentTypes); ct != "" {
			resp.Headers.Set("Content-Type", ct)
		}
	}
	if !resp.Headers.Has("ETag") {
		if et := resp.etag(); et != "" {
			resp.Headers.Set("ETag", et)
		}
	}

	if _, hasUpgrade := resp.Headers.Upgrade(); !hasUpgrade {
		w.applyKeepAlivePolicy(req, resp)
	}

	if w.server.Config.ServerHeader != "" && !resp.Headers.Has("Server") {
		resp.Headers.Set("Server", w.server.Config.ServerHeader)
	}
	resp.Headers.Set("Date", time.Now().UTC().Format(http1123TimeFormat))

	_, isUpgrade := resp.Headers.Upgrade()

	writer := newByteStreamWriter(w.conn)
	if !isUpgrade {
		length, knownLen := resp.knownLength(fileSize)
		if knownLen {
			resp.Headers.Set("Content-Length", strconv.FormatInt(length, 10))
		} else {
			resp.Headers.Set("Transfer-Encoding", "chunked")
			writer.enableChunked(0)
		}
	}

	if !resp.flushed {
		if err := w.writeStatusAndHeaders(resp); err != nil {
			return &WriteFailureError{Cause: err}
		}
		resp.flushed = true
	}

	out := newOutputStream(writer, w.server.isStopping)

	switch resp.BodyKind() {
	case BodyInline:
		if len(resp.inlineBody) > 0 {
			if _, err := out.Write(resp.inlineBody); err != nil {
				return &WriteFailureError{Cause: err}
			}
		}
	case BodyFile:
		if err := out.writeFile(resp.filePath, resp.fileRange, resp.fileLimiter); err != nil {
			return err
		}
	case BodyStream:
		if resp.streamFunc != nil {
			in := req.Body
			if isUpgrade && in == nil {
				// An upgraded connection has no HTTP body framing: the
				// callback reads every byte the client sends from here on.
				w.reader.configureBody(false, math.MaxInt64, true)
				in = newInputStream(w.reader)
			}
			if err := resp.streamFunc(in, out); err != nil {
				return &WriteFailureError{Cause: err}
			}
		}
	}

	if err := out.Close(); err != nil {
		return &WriteFailureError{Cause: err}
	}
	return nil
}

// applyKeepAlivePolicy implements spec §4.5 step 5.3: force Connection:
// close on HTTP/1.0 regardless of the request's own Connection header (per
// spec §9's open question, preserved as a deliberate policy), otherwise
// honor keep-alive with the server's Keep-Alive parameters.
func (w *connectionWorker) applyKeepAlivePolicy(req *Request, resp *Response) {
	if req.Protocol == ProtocolHTTP10 {
		w.keepAlive = false
		resp.Headers.Set("Connection", "close")
		return
	}

	if !w.keepAlive {
		resp.Headers.Set("Connection", "close")
		return
	}

	resp.Headers.Set("Connection", "keep-alive")
	if kat := w.server.Config.KeepAliveTimeout; kat > 0 {
		params := "timeout=" + strconv.Itoa(int(kat.Seconds()))
		if max := w.server.Config.MaxRequestsPerConnection; max > 0 {
			params += ", max=" + strconv.Itoa(max)
		}
		resp.Headers.Set("Keep-Alive", params)
	}
}

// writeStatusAndHeaders writes the status line, header block, and blank
// line terminator exactly once per spec §4.5 step 5.4 ("the status line is
// written at most once per request").
func (w *connectionWorker) writeStatusAndHeaders(resp *Response) error {
	reason := resp.Reason
	if reason == "" {
		reason = statusText(resp.StatusCode)
	}

	statusLine := "HTTP/1.1 " + strconv.Itoa(resp.StatusCode)
	if reason != "" {
		statusLine += " " + reason
	}
	if _, err := io.WriteString(w.conn, statusLine+"\r\n"); err != nil {
		return err
	}

	for name, values := range resp.Headers {
		canon := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range values {
			if _, err := io.WriteString(w.conn, canon+": "+v+"\r\n"); err != nil {
				return err
			}
		}
	}

	for _, c := range resp.SetCookies {
		if s := c.String(); s != "" {
			if _, err := io.WriteString(w.conn, "Set-Cookie: "+s+"\r\n"); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w.conn, "\r\n")
	return err
}

// fileSize is the knownLength callback for file response bodies.
func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// drainResidual discards any unread request body bytes before the worker
// loops to the next request, per spec §4.5 step 6.
func (w *connectionWorker) drainResidual(req *Request) error {
	if req.Body == nil {
		return nil
	}
	return req.Body.drain()
}

// cleanupUploads deletes every UploadedFile's temp file and forgets its
// coffer cache entry, per spec §3's "On completion, uploaded temp files are
// deleted."
func (w *connectionWorker) cleanupUploads(req *Request) {
	for _, f := range req.UploadedFiles {
		if w.server.coffer != nil {
			w.server.coffer.forget(f.Path)
		}
		os.Remove(f.Path)
	}
}

// writeBadRequest writes a 400 response for a request the worker could not
// parse, then the connection is closed by the deferred cleanup in serve().
// See spec §7 BadRequest.
func (w *connectionWorker) writeBadRequest(cause error) {
	w.server.reportError(&BadRequestError{Reason: cause.Error()})

	resp := NewResponse()
	resp.StatusCode = 400
	resp.SetInlineBody([]byte("400 Bad Request"))
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")

	w.keepAlive = false
	dummyReq := &Request{Server: w.server, Protocol: ProtocolHTTP11, Headers: Headers{}}
	if err := w.writeResponse(dummyReq, resp); err != nil {
		w.server.reportError(err)
	}
}

// statusText returns the standard reason phrase for code, or "" if
// unrecognized.
func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return ""
}

var statusTexts = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	413: "Payload Too Large",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}
