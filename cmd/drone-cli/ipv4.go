package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// parseIPv4 accepts exactly four dot-separated decimal octets in 0..255.
func parseIPv4(s string) (net.IP, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%q is not a dotted-quad IPv4 address", s)
	}
	ip := make(net.IP, 4)
	for i, p := range parts {
		if p == "" || len(p) > 3 || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("%q: octet %d %q is not a number", s, i+1, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return nil, fmt.Errorf("%q: octet %d %q is out of range 0-255", s, i+1, p)
		}
		ip[i] = byte(n)
	}
	return ip, nil
}
