package littlewebserver

import (
	"net"
	"strings"
	"time"
)

// listener wraps a net.Listener to apply TCP keep-alive tuning to every
// accepted connection, following the teacher's listener.go Accept/keep-alive
// shape in air's newListener/Accept. Unlike the teacher, this listener also
// accepts AF_UNIX stream sockets per spec §6 ("Socket layer: TCP IPv4/IPv6
// and AF_UNIX stream sockets"), since the core is embedded directly rather
// than fronted by a PROXY-protocol-speaking load balancer.
type listener struct {
	net.Listener

	network         string
	keepAlivePeriod time.Duration
}

// parseListenAddress splits a Config.Address/Network pair into the
// net.Listen-compatible (network, address) pair, accepting the "unix://"
// path form alongside plain "host:port" for tcp, per spec §6.
func parseListenAddress(network, address string) (string, string) {
	if network == "" {
		network = "tcp"
	}
	if strings.HasPrefix(address, "unix://") {
		return "unix", strings.TrimPrefix(address, "unix://")
	}
	return network, address
}

// newListener opens network/address and returns a *listener ready to
// Accept. keepAlivePeriod is applied to every accepted TCP connection; it is
// ignored for unix sockets, which have no such concept.
func newListener(network, address string, keepAlivePeriod time.Duration) (*listener, error) {
	net_, addr := parseListenAddress(network, address)

	nl, err := net.Listen(net_, addr)
	if err != nil {
		return nil, err
	}

	return &listener{
		Listener:        nl,
		network:         net_,
		keepAlivePeriod: keepAlivePeriod,
	}, nil
}

// Accept implements net.Listener, applying TCP keep-alive tuning to TCP
// connections (spec §5's worker loop suspension points assume a socket that
// stays open across idle keep-alive windows without the OS reaping it).
func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if l.network == "tcp" {
		if tc, ok := c.(*net.TCPConn); ok {
			period := l.keepAlivePeriod
			if period <= 0 {
				period = 3 * time.Minute
			}
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(period)
		}
	}

	return c, nil
}
