package littlewebserver

import (
	"io"
	"os"
	"time"
)

// OutputStream is the response-facing handle on a ByteStreamWriter. It is
// what a RouteController's custom streaming callback sees as the response
// output. See spec §3 Response ("streaming callback that ... writes to an
// output stream").
type OutputStream struct {
	writer *ByteStreamWriter

	// stopping, if non-nil, is polled by the file speed limiter between
	// buffers so a shutting-down server can abandon a slow download
	// promptly, per spec §5 cancellation.
	stopping func() bool
}

// newOutputStream returns an OutputStream writing through writer.
func newOutputStream(writer *ByteStreamWriter, stopping func() bool) *OutputStream {
	return &OutputStream{writer: writer, stopping: stopping}
}

// Write implements io.Writer, applying chunked framing if the underlying
// ByteStreamWriter is in chunked mode.
func (s *OutputStream) Write(p []byte) (int, error) {
	return s.writer.Write(p)
}

// WriteString is a convenience wrapper over Write.
func (s *OutputStream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

const fileStreamBufferSize = 32 * 1024

// writeFile streams the file at path to s, honoring an optional byte range
// and speed limiter, following spec §4.5 step 5's file-body write loop.
func (s *OutputStream) writeFile(path string, rng ByteRange, limiter *SpeedLimiter) error {
	f, err := os.Open(path)
	if err != nil {
		return &WriteFailureError{Cause: err}
	}
	defer f.Close()

	var remaining int64 = -1
	if rng.Set {
		if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
			return &WriteFailureError{Cause: err}
		}
		remaining = rng.End - rng.Start + 1
	}

	buf := make([]byte, fileStreamBufferSize)
	var sinceLimit int64
	for {
		if s.stopping != nil && s.stopping() {
			return nil
		}

		readLen := len(buf)
		if remaining >= 0 && int64(readLen) > remaining {
			readLen = int(remaining)
		}
		if readLen == 0 {
			return nil
		}

		n, rerr := f.Read(buf[:readLen])
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return &WriteFailureError{Cause: werr}
			}
			if remaining >= 0 {
				remaining -= int64(n)
			}
			if limiter != nil {
				sinceLimit += int64(n)
				if limiter.BytesPerInterval > 0 && sinceLimit >= limiter.BytesPerInterval {
					sinceLimit -= limiter.BytesPerInterval
					time.Sleep(limiter.Interval)
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &WriteFailureError{Cause: rerr}
		}
		if remaining == 0 {
			return nil
		}
	}
}

// Close finalizes the stream, writing the chunked terminator if needed.
func (s *OutputStream) Close() error {
	return s.writer.Close()
}
