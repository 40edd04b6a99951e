// Package broker defines the adapter-neutral messaging contract
// (Connection, Session, Sender, Reader, Exchange, Queue, Message) used by
// the reliability, consumer and pending-queue components, plus the URL
// parsing and scheme-based adapter registry described in §4.B.
package broker

import (
	"strconv"
	"strings"

	"go.bryk.io/rmi/errors"
)

// defaultPorts maps a broker URL scheme to its conventional port, used
// when a URL omits one explicitly.
var defaultPorts = map[string]int{
	"amqp":  5672,
	"amqps": 5671,
	"tcp":   5672,
}

// URL is a parsed broker endpoint of the form `scheme://host[:port][/vhost]`.
type URL struct {
	Scheme string
	Host   string
	Port   int
	VHost  string
}

// String reconstructs the canonical `scheme://host:port[/vhost]` form.
func (u URL) String() string {
	s := u.Scheme + "://" + u.Host + ":" + strconv.Itoa(u.Port)
	if u.VHost != "" {
		s += "/" + u.VHost
	}
	return s
}

// ParseURL parses a broker endpoint, filling in the default port for the
// scheme when none is provided.
func ParseURL(raw string) (URL, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return URL{}, errors.Errorf("invalid broker url %q: missing scheme", raw)
	}

	hostPort := rest
	vhost := ""
	if i := strings.Index(rest, "/"); i >= 0 {
		hostPort = rest[:i]
		vhost = rest[i+1:]
	}

	host := hostPort
	port := defaultPorts[scheme]
	if i := strings.LastIndex(hostPort, ":"); i >= 0 {
		host = hostPort[:i]
		p, err := strconv.Atoi(hostPort[i+1:])
		if err != nil {
			return URL{}, errors.Wrap(err, "invalid broker url port")
		}
		port = p
	}
	if host == "" {
		return URL{}, errors.Errorf("invalid broker url %q: missing host", raw)
	}

	return URL{Scheme: scheme, Host: host, Port: port, VHost: vhost}, nil
}
