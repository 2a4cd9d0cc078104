/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package protocol names the network-level transports a Route can dial:
// the "network" argument handed to net.Dialer.DialContext, plus the two
// datagram-style protocols (UDP, unixgram) a Route never dials but that
// share the same naming scheme.
package protocol

import "strings"

// NetworkProtocol is the dial network for a Route: what gets passed as the
// first argument to net.Dialer.DialContext.
type NetworkProtocol int

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkUnix
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkIP
	NetworkIP4
	NetworkIP6
	NetworkUnixGram
)

var names = map[NetworkProtocol]string{
	NetworkUnix:     "unix",
	NetworkTCP:      "tcp",
	NetworkTCP4:     "tcp4",
	NetworkTCP6:     "tcp6",
	NetworkUDP:      "udp",
	NetworkUDP4:     "udp4",
	NetworkUDP6:     "udp6",
	NetworkIP:       "ip",
	NetworkIP4:      "ip4",
	NetworkIP6:      "ip6",
	NetworkUnixGram: "unixgram",
}

// String returns the net package dial-network name, or "" for NetworkEmpty
// and any other value outside the known set.
func (p NetworkProtocol) String() string {
	return names[p]
}

// Parse maps a dial-network name (case-insensitive) back to a
// NetworkProtocol, returning NetworkEmpty if str matches none of them.
func Parse(str string) NetworkProtocol {
	str = strings.ToLower(strings.TrimSpace(str))
	for p, n := range names {
		if n == str {
			return p
		}
	}
	return NetworkEmpty
}

// IsStream reports whether the protocol is connection-oriented (TCP or
// Unix stream sockets), as opposed to datagram-oriented (UDP, unixgram,
// raw IP).
func (p NetworkProtocol) IsStream() bool {
	switch p {
	case NetworkUnix, NetworkTCP, NetworkTCP4, NetworkTCP6:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so the protocol can be
// embedded directly in JSON, YAML or TOML configuration documents.
func (p NetworkProtocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *NetworkProtocol) UnmarshalText(text []byte) error {
	*p = Parse(string(text))
	return nil
}
