package shared

import (
	"dominicbreuker/goenet/pkg/config"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

var schemes = map[string]config.Protocol{
	"udp": config.ProtoUDP,
	"ws":  config.ProtoWS,
}

// ParseTransport splits "protocol://host:port" with protocol udp or ws. An
// empty host or "*" means all interfaces and is returned as "".
func ParseTransport(s string) (config.Protocol, string, int, error) {
	u, err := url.Parse(s)
	if err != nil {
		return 0, "", 0, parsingError(s)
	}

	proto, ok := schemes[u.Scheme]
	if !ok || u.Opaque != "" || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return 0, "", 0, parsingError(s)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return 0, "", 0, parsingError(s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, "", 0, parsingError(s)
	}

	if host == "*" {
		host = ""
	}
	return proto, host, port, nil
}

func parsingError(s string) error {
	return fmt.Errorf("parsing %q: format should be 'protocol://host:port', where protocol = udp|ws", s)
}
