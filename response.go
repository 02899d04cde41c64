package littlewebserver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aofei/mimesniffer"
	"github.com/cespare/xxhash"
)

// BodyKind discriminates the variant held by a Response's body. See spec §3
// Response.
type BodyKind uint8

const (
	BodyEmpty BodyKind = iota
	BodyInline
	BodyFile
	BodyStream
)

// ByteRange is an optional inclusive byte range for a file body.
type ByteRange struct {
	Start, End int64
	Set        bool
}

// SpeedLimiter paces a file body's writer by pausing Interval after every
// BytesPerInterval bytes written, following spec §4.5 step 5's "speed
// limiter that interposes a pause per buffer."
type SpeedLimiter struct {
	BytesPerInterval int64
	Interval         time.Duration
}

// StreamFunc is a custom streaming response body: it is handed the
// request's InputStream and the response's OutputStream directly, per spec
// §3 Response.
type StreamFunc func(in *InputStream, out *OutputStream) error

// Response is the typed server-side view of one HTTP response being built.
// See spec §3 Response.
type Response struct {
	StatusCode int
	Reason     string
	Headers    Headers

	// SetCookies are cookies to be merged into Set-Cookie headers during
	// the Write step's session-cookie merge (spec §4.5 step 5).
	SetCookies []*Cookie

	// WriteQueue names the WorkerQueue this response should be written
	// from. "" (the zero value) means ".current": the response is
	// written by the same worker that produced it.
	WriteQueue string

	bodyKind    BodyKind
	inlineBody  []byte
	filePath    string
	fileRange   ByteRange
	fileLimiter *SpeedLimiter
	streamFunc  StreamFunc

	flushed bool
}

// NewResponse returns a Response with status 200 and no body, ready for a
// RouteController to populate.
func NewResponse() *Response {
	return &Response{
		StatusCode: 200,
		Headers:    Headers{},
	}
}

// SetInlineBody sets a fixed, in-memory response body.
func (r *Response) SetInlineBody(body []byte) {
	r.bodyKind = BodyInline
	r.inlineBody = body
	r.filePath = ""
	r.streamFunc = nil
}

// SetFileBody sets a file response body, optionally restricted to rng and
// paced by limiter. Either may be nil/zero.
func (r *Response) SetFileBody(path string, rng *ByteRange, limiter *SpeedLimiter) {
	r.bodyKind = BodyFile
	r.filePath = path
	if rng != nil {
		r.fileRange = *rng
	} else {
		r.fileRange = ByteRange{}
	}
	r.fileLimiter = limiter
	r.inlineBody = nil
	r.streamFunc = nil
}

// SetStreamBody sets a custom streaming response body.
func (r *Response) SetStreamBody(fn StreamFunc) {
	r.bodyKind = BodyStream
	r.streamFunc = fn
	r.inlineBody = nil
	r.filePath = ""
}

// BodyKind reports which body variant is set.
func (r *Response) BodyKind() BodyKind { return r.bodyKind }

// SetCookie appends c to the response's pending Set-Cookie list.
func (r *Response) SetCookie(c *Cookie) {
	r.SetCookies = append(r.SetCookies, c)
}

// knownLength returns the body's precomputed length and whether it is known
// ahead of the write, per spec §4.5 step 5 ("ask the body for its
// precomputed length").
func (r *Response) knownLength(fileSize func(path string) (int64, error)) (int64, bool) {
	switch r.bodyKind {
	case BodyEmpty:
		return 0, true
	case BodyInline:
		return int64(len(r.inlineBody)), true
	case BodyFile:
		if r.fileRange.Set {
			return r.fileRange.End - r.fileRange.Start + 1, true
		}
		if fileSize == nil {
			return 0, false
		}
		sz, err := fileSize(r.filePath)
		if err != nil {
			return 0, false
		}
		return sz, true
	default:
		return 0, false
	}
}

// inferContentType infers a Content-Type for the response body when none
// has been set, following spec §4.5 step 5: sniff inline bodies with
// mimesniffer, and fall back to the file extension's registered type for
// file bodies.
func (r *Response) inferContentType(registry *contentTypeRegistry) string {
	switch r.bodyKind {
	case BodyInline:
		return mimesniffer.Sniff(r.inlineBody)
	case BodyFile:
		ext := filepath.Ext(r.filePath)
		if registry != nil {
			if ct, ok := registry.forExtension(ext); ok {
				return ct
			}
		}
		return "application/octet-stream"
	default:
		return ""
	}
}

// etag computes a weak ETag using xxhash, following the teacher's use of
// cespare/xxhash for asset fingerprinting. An inline body is hashed
// directly; a file body is fingerprinted from its path, size, and
// modification time rather than its content, so computing the header never
// costs a second full read of a potentially large file. Any other body kind
// has no stable representation to fingerprint and yields "".
func (r *Response) etag() string {
	switch r.bodyKind {
	case BodyInline:
		return fmt.Sprintf(`W/"%x"`, xxhash.Sum64(r.inlineBody))
	case BodyFile:
		fi, err := os.Stat(r.filePath)
		if err != nil {
			return ""
		}
		fingerprint := fmt.Sprintf("%s:%d:%d", r.filePath, fi.Size(), fi.ModTime().UnixNano())
		return fmt.Sprintf(`W/"%x"`, xxhash.Sum64([]byte(fingerprint)))
	default:
		return ""
	}
}

// contentTypeRegistry maps file extensions to content types. See spec §6
// "host application provides ... content-type registry."
type contentTypeRegistry struct {
	byExt map[string]string
}

// newContentTypeRegistry returns a registry seeded with a small set of
// common extensions; callers may add more via Register.
func newContentTypeRegistry() *contentTypeRegistry {
	return &contentTypeRegistry{byExt: map[string]string{
		".html": "text/html; charset=utf-8",
		".htm":  "text/html; charset=utf-8",
		".css":  "text/css; charset=utf-8",
		".js":   "application/javascript; charset=utf-8",
		".json": "application/json; charset=utf-8",
		".txt":  "text/plain; charset=utf-8",
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".svg":  "image/svg+xml",
		".xml":  "application/xml",
		".pdf":  "application/pdf",
		".wasm": "application/wasm",
	}}
}

func (c *contentTypeRegistry) Register(ext, contentType string) {
	c.byExt[ext] = contentType
}

func (c *contentTypeRegistry) forExtension(ext string) (string, bool) {
	ct, ok := c.byExt[ext]
	return ct, ok
}

// reset clears r for reuse from an object pool.
func (r *Response) reset() {
	r.StatusCode = 200
	r.Reason = ""
	r.Headers = nil
	r.SetCookies = nil
	r.WriteQueue = ""
	r.bodyKind = BodyEmpty
	r.inlineBody = nil
	r.filePath = ""
	r.fileRange = ByteRange{}
	r.fileLimiter = nil
	r.streamFunc = nil
	r.flushed = false
}
