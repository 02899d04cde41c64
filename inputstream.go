package littlewebserver

import "io"

// InputStream is the request-facing handle on a ByteStreamReader's body
// framing. It is what a RouteController's handler sees as the request body.
// See spec §3 Request ("body stream handle").
type InputStream struct {
	reader *ByteStreamReader
}

// newInputStream returns an InputStream reading the body framed by reader.
func newInputStream(reader *ByteStreamReader) *InputStream {
	return &InputStream{reader: reader}
}

// Read implements io.Reader over the underlying chunked or length-delimited
// body.
func (s *InputStream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if n == 0 && err == nil && s.reader.endOfStream() {
		return 0, io.EOF
	}
	return n, err
}

// Peek returns the next n bytes of the underlying connection stream without
// consuming them. It applies no body framing: in chunked mode the bytes
// include chunk-size lines, and in either mode they may extend past the end
// of the body.
func (s *InputStream) Peek(n int) ([]byte, error) {
	return s.reader.Peek(n)
}

// AtEOF reports whether the body has been fully consumed.
func (s *InputStream) AtEOF() bool {
	return s.reader.endOfStream()
}

// drain discards the remainder of the body, used by the worker between
// requests. See spec §4.5 step 6.
func (s *InputStream) drain() error {
	return s.reader.drain()
}
