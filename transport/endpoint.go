package transport

import (
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 50051
)

// Endpoint is the address of one vehicle server.
type Endpoint struct {
	Host string
	Port int
}

// WithDefaults fills an empty host or zero port with DefaultHost and DefaultPort.
func (e Endpoint) WithDefaults() Endpoint {
	if e.Host == "" {
		e.Host = DefaultHost
	}
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	return e
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.Address() }

// Validate rejects ports outside 1..65535.
func (e Endpoint) Validate() error {
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("transport: invalid port %d", e.Port)
	}
	return nil
}

// ParseEndpoint parses "host:port" or a bare "host". Missing parts take the defaults.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}.WithDefaults(), nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// no port
		return Endpoint{Host: s}.WithDefaults(), nil
	}
	port := 0
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("transport: invalid port in %q: %w", s, err)
		}
	}
	e := Endpoint{Host: host, Port: port}.WithDefaults()
	return e, e.Validate()
}
