// Package netaddr parses the listen and dial addresses shared by the ABCI
// server and client.
package netaddr

import "strings"

// Parse splits an optional "scheme://" prefix off addr. An address without a
// scheme is TCP.
//
// Parameters:
//   - addr: "host:port", "tcp://host:port" or "unix:///path/to/socket"
//
// Returns:
//   - The network name for net.Dial or net.Listen
//   - The address with the scheme removed
func Parse(addr string) (network, address string) {
	if scheme, rest, ok := strings.Cut(addr, "://"); ok {
		return scheme, rest
	}

	return "tcp", addr
}
