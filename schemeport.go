package littlewebserver

import "strings"

// schemePorts is the well-known scheme/port catalog from spec §6, looked up
// by scheme (case-insensitive) or by port.
var schemePorts = []struct {
	scheme string
	ports  []int
}{
	{"http", []int{80}},
	{"https", []int{443}},
	{"ws", []int{80}},
	{"wss", []int{443}},
	{"ftp", []int{20, 21}},
	{"sftp", []int{115}},
	{"ssh", []int{22}},
	{"telnet", []int{23}},
	{"smtp", []int{25}},
}

// PortsForScheme returns the well-known ports for scheme, or nil if scheme
// is not in the catalog.
func PortsForScheme(scheme string) []int {
	scheme = strings.ToLower(scheme)
	for _, e := range schemePorts {
		if e.scheme == scheme {
			return e.ports
		}
	}
	return nil
}

// SchemeForPort returns the first well-known scheme using port, and whether
// one was found.
func SchemeForPort(port int) (string, bool) {
	for _, e := range schemePorts {
		for _, p := range e.ports {
			if p == port {
				return e.scheme, true
			}
		}
	}
	return "", false
}
