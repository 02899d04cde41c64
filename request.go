package littlewebserver

import (
	"io/ioutil"
	"net/url"
	"strings"
)

// ProtocolVersion is the parsed HTTP version of a request. See spec §4.2
// read-head.
type ProtocolVersion uint8

const (
	ProtocolUnknown ProtocolVersion = iota
	ProtocolHTTP10
	ProtocolHTTP11
	ProtocolHTTP20
)

func parseProtocolVersion(s string) ProtocolVersion {
	switch s {
	case "HTTP/1.0":
		return ProtocolHTTP10
	case "HTTP/1.1":
		return ProtocolHTTP11
	case "HTTP/2.0", "HTTP/2":
		return ProtocolHTTP20
	default:
		return ProtocolUnknown
	}
}

// UploadedFile references a multipart/form-data part that has been streamed
// to a temp file. See spec §3 Request.
type UploadedFile struct {
	// Path is the location of the part's content on disk.
	Path string

	// FieldName is the multipart field name the part was submitted
	// under.
	FieldName string

	// OriginalName is the client-supplied filename, if any.
	OriginalName string

	// ContentType is the part's declared Content-Type.
	ContentType string

	// Size is the number of bytes written to Path.
	Size int64
}

// Request is a typed view of one parsed HTTP request. See spec §3 Request.
type Request struct {
	// Method is the request method token, e.g. "GET".
	Method string

	// PathComponents is the request target's path component sequence, already
	// split on "/" and percent-decoded.
	PathComponents []string

	// RawPath is the request target's path before splitting/decoding.
	RawPath string

	// RawQuery is the request target's query string, the part of the
	// request-line target after the first "?", or "" if none.
	RawQuery string

	// QueryParams maps query parameter name to its ordered sequence of
	// values. The same name may appear more than once.
	QueryParams url.Values

	Protocol ProtocolVersion
	Headers  Headers

	// Cookies are the cookies sent on the request's Cookie header.
	Cookies []*Cookie

	// Body is the request's InputStream, framed according to
	// Content-Length or chunked Transfer-Encoding. It is nil for
	// requests with no body.
	Body *InputStream

	// UploadedFiles holds references to multipart/form-data parts that
	// were streamed to temp files while parsing the body.
	UploadedFiles []*UploadedFile

	// RemoteAddr is the client's address as reported by the socket.
	RemoteAddr string

	// Session is the session attached to this request by the worker's
	// SessionBinding, or nil. See spec §4.6.
	Session *Session

	// Server is the Server handling this request, following spec §9's
	// "replace [thread-local `littleWebServerDetails`] with explicit
	// context passing: every handler receives a context parameter
	// containing a reference to the server."
	Server *Server

	// keepAliveRequested is cleared by reset and is not read anywhere; the
	// worker tracks keep-alive per connection itself (Connection: close and
	// HTTP/1.0 end it).
	keepAliveRequested bool
}

// StartSession attaches a brand-new Session to r and returns it. The
// session is not persisted until the Write step's cookie merge (spec §4.5
// step 5.1) saves it through the SessionManager; if the handler never reads
// or writes anything on the session, it is dropped instead, per spec §4.5's
// "drop a never-used new session."
func (r *Request) StartSession() *Session {
	s := r.Server.NewSession()
	r.Session = s
	return s
}

// ReadUploadedFile returns f's content, reading through the server's coffer
// cache so a handler that peeks the same upload more than once (e.g. to
// sniff it, then to store it) pays for the disk read only once. See spec
// §3's UploadedFile and §4.2's temp-file layout.
func (r *Request) ReadUploadedFile(f *UploadedFile) ([]byte, error) {
	if r.Server == nil || r.Server.coffer == nil {
		return ioutil.ReadFile(f.Path)
	}
	return r.Server.coffer.get(f.Path)
}

// splitPathComponents splits a raw path into its "/"-delimited, percent-decoded
// components, mirroring how RoutePath matching consumes a request's path in
// spec §4.3.
func splitPathComponents(raw string) []string {
	trimmed := strings.TrimPrefix(raw, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = pathUnescape(p)
	}
	return out
}

func pathUnescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// QueryValues returns every value bound to the query parameter name.
func (r *Request) QueryValues(name string) []string {
	if r.QueryParams == nil {
		return nil
	}
	return r.QueryParams[name]
}

// QueryValue returns the first value bound to the query parameter name, or
// "".
func (r *Request) QueryValue(name string) string {
	vs := r.QueryValues(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// reset clears r for reuse from an object pool.
func (r *Request) reset() {
	r.Method = ""
	r.PathComponents = nil
	r.RawPath = ""
	r.RawQuery = ""
	r.QueryParams = nil
	r.Protocol = ProtocolUnknown
	r.Headers = nil
	r.Cookies = nil
	r.Body = nil
	r.UploadedFiles = nil
	r.RemoteAddr = ""
	r.Session = nil
	r.Server = nil
	r.keepAliveRequested = false
}
