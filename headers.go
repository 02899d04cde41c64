package littlewebserver

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Headers is a case-insensitive token-to-values mapping, preserving the
// order of duplicate header names as they were received. See spec §3
// Headers.
type Headers map[string][]string

// Get returns the values associated with key. The key is case-insensitive
// and canonicalized with strings.ToLower.
func (hs Headers) Get(key string) []string {
	return hs[strings.ToLower(key)]
}

// Set replaces the entries associated with key with values.
func (hs Headers) Set(key string, values ...string) {
	hs[strings.ToLower(key)] = values
}

// Delete removes the entries associated with key.
func (hs Headers) Delete(key string) {
	delete(hs, strings.ToLower(key))
}

// First returns the first value associated with key, or "" if there is none.
func (hs Headers) First(key string) string {
	if vs := hs.Get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether key has at least one value.
func (hs Headers) Has(key string) bool {
	return len(hs.Get(key)) > 0
}

// Append appends value to the entries associated with key, preserving
// arrival order, following the teacher's Headers.Append.
func (hs Headers) Append(key, value string) {
	hs.Set(key, append(hs.Get(key), value)...)
}

// add appends value under name (the caller has already split the
// "name:value" line). Continuation lines are not handled here; they are
// folded into the previous header's value by addContinuation.
func (hs Headers) add(name, value string) {
	hs.Append(name, value)
}

// addContinuation folds a header continuation line into the last value
// stored for key.
func (hs Headers) addContinuation(key, cont string) {
	k := strings.ToLower(key)
	vs := hs[k]
	if len(vs) == 0 {
		hs[k] = []string{cont}
		return
	}
	vs[len(vs)-1] = vs[len(vs)-1] + " " + strings.TrimSpace(cont)
}

// ContentLength returns the parsed value of the Content-Length header and
// whether it was present. A negative or non-numeric value is reported via
// ok=false; the caller must treat that as a bad request.
func (hs Headers) ContentLength() (length int64, ok bool) {
	v := hs.First("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// TransferEncodings returns the ordered, comma-split tokens of every
// Transfer-Encoding header present.
func (hs Headers) TransferEncodings() []string {
	var out []string
	for _, v := range hs.Get("Transfer-Encoding") {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

// IsChunked reports whether the Transfer-Encoding header names "chunked".
func (hs Headers) IsChunked() bool {
	for _, tok := range hs.TransferEncodings() {
		if strings.EqualFold(tok, "chunked") {
			return true
		}
	}
	return false
}

// ConnectionToken is the enum of recognized Connection header values. See
// spec §3 Headers.
type ConnectionToken uint8

const (
	ConnectionUnspecified ConnectionToken = iota
	ConnectionClose
	ConnectionKeepAlive
	ConnectionUpgrade
	ConnectionOther
)

// Connection classifies the Connection header's value.
func (hs Headers) Connection() ConnectionToken {
	if !hs.Has("Connection") {
		return ConnectionUnspecified
	}
	for _, v := range hs.Get("Connection") {
		for _, tok := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "close":
				return ConnectionClose
			case "keep-alive":
				return ConnectionKeepAlive
			case "upgrade":
				return ConnectionUpgrade
			}
		}
	}
	return ConnectionOther
}

// ContentType is the parsed value of a Content-Type header: a media type
// plus its parameters.
type ContentType struct {
	MediaType  string
	Parameters map[string]string
}

// IsMultipartForm reports whether ct is "multipart/form-data".
func (ct ContentType) IsMultipartForm() bool {
	return strings.EqualFold(ct.MediaType, "multipart/form-data")
}

// ContentType parses the Content-Type header, if any.
func (hs Headers) ContentType() (ContentType, bool) {
	v := hs.First("Content-Type")
	if v == "" {
		return ContentType{}, false
	}

	parts := strings.Split(v, ";")
	ct := ContentType{
		MediaType:  strings.TrimSpace(strings.ToLower(parts[0])),
		Parameters: map[string]string{},
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		ct.Parameters[key] = val
	}
	return ct, true
}

// Host returns the Host header's value.
func (hs Headers) Host() string {
	return hs.First("Host")
}

// Upgrade returns the Upgrade header's value and whether it was present.
func (hs Headers) Upgrade() (string, bool) {
	v := hs.First("Upgrade")
	return v, v != ""
}

// validate enforces the Headers-level invariant from spec §3: Content-Length
// and chunked Transfer-Encoding must not both be present.
func (hs Headers) validate() error {
	_, hasCL := hs.ContentLength()
	if hasCL && hs.IsChunked() {
		return &BadRequestError{Reason: "Content-Length and Transfer-Encoding: chunked both present"}
	}
	if v := hs.First("Content-Length"); v != "" {
		if _, ok := hs.ContentLength(); !ok {
			return &BadRequestError{Reason: fmt.Sprintf("invalid Content-Length %q", v)}
		}
	}
	return nil
}

// validToken reports whether s is a valid HTTP header field name token per
// RFC 7230 §3.2.6, matching the teacher's reliance on httpguts for the same
// check.
func validToken(s string) bool {
	return httpguts.ValidHeaderFieldName(s)
}

// validFieldValue reports whether s is a valid HTTP header field value.
func validFieldValue(s string) bool {
	return httpguts.ValidHeaderFieldValue(s)
}
