package littlewebserver

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"
)

// Cookie is an HTTP cookie, as set via a Set-Cookie response header or read
// from a request's Cookie header. See spec §3 Request / §6 External
// Interfaces.
type Cookie struct {
	Name     string
	Value    string
	Expires  time.Time
	MaxAge   int
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// String returns the Set-Cookie serialization of c, or "" if c.Name is not a
// valid cookie token.
func (c *Cookie) String() string {
	if !validCookieToken(c.Name) {
		return ""
	}

	buf := bytes.Buffer{}

	buf.WriteString(strings.NewReplacer("\r", "-", "\n", "-").Replace(c.Name))
	buf.WriteByte('=')

	v := sanitize(c.Value, validCookieValueByte)
	if strings.IndexByte(v, ' ') >= 0 || strings.IndexByte(v, ',') >= 0 {
		v = `"` + v + `"`
	}
	buf.WriteString(v)

	if c.Path != "" {
		buf.WriteString("; Path=")
		buf.WriteString(sanitize(c.Path, func(b byte) bool {
			return 0x20 <= b && b < 0x7f && b != ';'
		}))
	}

	if validCookieDomain(c.Domain) {
		d := c.Domain
		if d[0] == '.' {
			d = d[1:]
		}
		buf.WriteString("; Domain=")
		buf.WriteString(d)
	}

	if c.Expires.Year() >= 1601 {
		buf.WriteString("; Expires=")
		buf.WriteString(c.Expires.UTC().Format(http1123TimeFormat))
	}

	switch {
	case c.MaxAge > 0:
		buf.WriteString("; Max-Age=")
		buf.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		buf.WriteString("; Max-Age=0")
	}

	if c.HTTPOnly {
		buf.WriteString("; HttpOnly")
	}

	if c.Secure {
		buf.WriteString("; Secure")
	}

	return buf.String()
}

// expired reports whether c is an immediately-expiring cookie, i.e. one that
// instructs the client to delete it.
func (c *Cookie) expired() bool {
	return c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now()))
}

// expireCookie returns a Cookie that, when serialized, instructs the client
// to delete the cookie named name.
func expireCookie(name, domain, path string) *Cookie {
	return &Cookie{
		Name:    name,
		Value:   "",
		Domain:  domain,
		Path:    path,
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	}
}

// http1123TimeFormat is the time layout used by the Date and Expires
// headers, per RFC 7231 §7.1.1.1.
const http1123TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

func validCookieToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isCookieTokenByte(s[i]) {
			return false
		}
	}
	return true
}

func isCookieTokenByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func validCookieDomain(d string) bool {
	if l := len(d); l == 0 || l > 255 {
		return false
	}

	if net.ParseIP(d) != nil && !strings.Contains(d, ":") {
		return true
	}

	if d[0] == '.' {
		d = d[1:]
	}

	ok := false
	last := byte('.')
	partLen := 0
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			ok = true
			partLen++
		case c >= '0' && c <= '9':
			partLen++
		case c == '-':
			if last == '.' {
				return false
			}
			partLen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partLen > 63 || partLen == 0 {
				return false
			}
			partLen = 0
		default:
			return false
		}
		last = c
	}

	if last == '-' || partLen > 63 {
		return false
	}

	return ok
}

func sanitize(s string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(s); i++ {
		if !valid(s[i]) {
			ok = false
			break
		}
	}
	if ok {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if b := s[i]; valid(b) {
			buf = append(buf, b)
		}
	}
	return string(buf)
}

// parseCookieHeader parses the value of a request's Cookie header into a
// slice of name/value Cookies, per RFC 6265 §5.4.
func parseCookieHeader(header string) []*Cookie {
	var cookies []*Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if !validCookieToken(name) {
			continue
		}
		cookies = append(cookies, &Cookie{Name: name, Value: value})
	}
	return cookies
}
