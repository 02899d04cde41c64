package littlewebserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersCaseInsensitiveGetSet(t *testing.T) {
	hs := Headers{}
	hs.Set("Content-Type", "text/plain")

	assert.Equal(t, []string{"text/plain"}, hs.Get("content-type"))
	assert.Equal(t, "text/plain", hs.First("CONTENT-TYPE"))
	assert.True(t, hs.Has("content-Type"))
}

func TestHeadersAppendPreservesOrder(t *testing.T) {
	hs := Headers{}
	hs.Append("X-Trace", "a")
	hs.Append("X-Trace", "b")

	assert.Equal(t, []string{"a", "b"}, hs.Get("x-trace"))
}

func TestHeadersAddContinuation(t *testing.T) {
	hs := Headers{}
	hs.add("X-Multi", "first")
	hs.addContinuation("X-Multi", "  second")

	assert.Equal(t, []string{"first second"}, hs.Get("x-multi"))
}

func TestHeadersContentLength(t *testing.T) {
	hs := Headers{}
	n, ok := hs.ContentLength()
	assert.False(t, ok)
	assert.Zero(t, n)

	hs.Set("Content-Length", "42")
	n, ok = hs.ContentLength()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	hs.Set("Content-Length", "-1")
	_, ok = hs.ContentLength()
	assert.False(t, ok, "a negative Content-Length is invalid")

	hs.Set("Content-Length", "not-a-number")
	_, ok = hs.ContentLength()
	assert.False(t, ok)
}

func TestHeadersIsChunked(t *testing.T) {
	hs := Headers{}
	assert.False(t, hs.IsChunked())

	hs.Set("Transfer-Encoding", "gzip, chunked")
	assert.True(t, hs.IsChunked())
}

func TestHeadersConnectionToken(t *testing.T) {
	hs := Headers{}
	assert.Equal(t, ConnectionUnspecified, hs.Connection())

	hs.Set("Connection", "close")
	assert.Equal(t, ConnectionClose, hs.Connection())

	hs.Set("Connection", "Keep-Alive")
	assert.Equal(t, ConnectionKeepAlive, hs.Connection())

	hs.Set("Connection", "Upgrade")
	assert.Equal(t, ConnectionUpgrade, hs.Connection())

	hs.Set("Connection", "something-else")
	assert.Equal(t, ConnectionOther, hs.Connection())
}

func TestHeadersContentTypeParsing(t *testing.T) {
	hs := Headers{}
	_, ok := hs.ContentType()
	assert.False(t, ok)

	hs.Set("Content-Type", `multipart/form-data; boundary="----abc123"`)
	ct, ok := hs.ContentType()
	assert.True(t, ok)
	assert.Equal(t, "multipart/form-data", ct.MediaType)
	assert.Equal(t, "----abc123", ct.Parameters["boundary"])
	assert.True(t, ct.IsMultipartForm())
}

func TestHeadersUpgrade(t *testing.T) {
	hs := Headers{}
	_, ok := hs.Upgrade()
	assert.False(t, ok)

	hs.Set("Upgrade", "websocket")
	v, ok := hs.Upgrade()
	assert.True(t, ok)
	assert.Equal(t, "websocket", v)
}

func TestHeadersValidateRejectsConflictingFraming(t *testing.T) {
	hs := Headers{}
	hs.Set("Content-Length", "10")
	hs.Set("Transfer-Encoding", "chunked")

	err := hs.validate()
	assert.Error(t, err)
}

func TestHeadersValidateRejectsBadContentLength(t *testing.T) {
	hs := Headers{}
	hs.Set("Content-Length", "abc")

	assert.Error(t, hs.validate())
}

func TestHeadersValidateAcceptsPlainRequest(t *testing.T) {
	hs := Headers{}
	hs.Set("Content-Length", "5")
	assert.NoError(t, hs.validate())
}

func TestValidTokenAndFieldValue(t *testing.T) {
	assert.True(t, validToken("X-Custom-Header"))
	assert.False(t, validToken("Bad Header Name"))

	assert.True(t, validFieldValue("plain value"))
}
