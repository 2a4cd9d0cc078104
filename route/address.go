/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package route plans, enumerates and remembers the outcome of the
// (proxy x DNS-address x TLS-spec) routes a Call may try to reach one
// Address, and is also the home of the Address value itself: the tuple
// that must match for two requests to be allowed to share a Connection.
package route

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sabouaram/gohttp/certificates"
	"github.com/sabouaram/gohttp/network/protocol"
)

// Resolver is the DNS capability an Address is configured with. It is an
// external collaborator: spec.md explicitly keeps DNS resolution policy
// (caching, happy-eyeballs ordering, /etc/hosts) out of scope, so the
// default implementation is a thin net.Resolver wrapper (see resolver.go).
type Resolver interface {
	LookupHost(host string) ([]string, error)
}

// ProxySelector picks zero or more proxies to try for a URL. An empty or
// nil result means DIRECT.
type ProxySelector interface {
	Select(u *url.URL) []Proxy
}

// ProxyKind distinguishes how a Connection reaches a proxy, if any.
type ProxyKind int

const (
	ProxyDirect ProxyKind = iota
	ProxyHTTP
	ProxySOCKS4
	ProxySOCKS5
)

// Proxy is one candidate proxy (or the absence of one, for ProxyDirect).
type Proxy struct {
	Kind ProxyKind
	Host string
	Port int
}

func (p Proxy) String() string {
	if p.Kind == ProxyDirect {
		return "DIRECT"
	}
	return p.Host
}

// Address is the tuple that decides whether two calls may share a
// Connection (absent a safe HTTP/2 coalescing exception, see the
// connection package's pool.go). Equal compares Host, Port, Proxy,
// Network, Protocols, ConnectionSpecs and whether TLSConfig is set; it
// does not compare Resolver, HostnameVerifier, ProxyAuthenticator,
// ProxySelector or the TLSConfig value itself.
type Address struct {
	Host string
	Port int

	Resolver Resolver

	// TLSConfig is nil for plain-text (http://) addresses.
	TLSConfig certificates.TLSConfig

	// HostnameVerifier overrides the default RFC 6125 verifier from the
	// certificates package. Nil means "use the default".
	HostnameVerifier *certificates.HostnameVerifier

	ProxyAuthenticator func(proxy Proxy) (user, pass string)

	// Proxy pins a single proxy; ProxySelector is consulted only when
	// Proxy's Kind is ProxyDirect and ProxySelector is non-nil.
	Proxy         Proxy
	ProxySelector ProxySelector

	// Protocols is the ALPN preference order, e.g. []string{"h2", "http/1.1"}.
	Protocols []string

	// ConnectionSpecs lists the TLS ConnectionSpecs (cipher/version floors)
	// to try in order during the handshake fallback dance (§4.3).
	ConnectionSpecs []string

	// Network is the dial network passed to net.Dialer.DialContext.
	// NetworkEmpty (the zero value) means "tcp", the only network an
	// ordinary http/https Address ever needs; unix://-style addresses set
	// it to protocol.NetworkUnix.
	Network protocol.NetworkProtocol
}

// DialNetwork returns the net.Dialer network name this Address dials
// with, defaulting to "tcp" when Network is unset.
func (a Address) DialNetwork() string {
	if a.Network == protocol.NetworkEmpty {
		return protocol.NetworkTCP.String()
	}
	return a.Network.String()
}

// Equal reports whether two Addresses are equivalent: connection reuse
// requires this (or a safe coalescing exception evaluated elsewhere).
func (a Address) Equal(b Address) bool {
	if a.Host != b.Host || a.Port != b.Port {
		return false
	}
	if (a.TLSConfig == nil) != (b.TLSConfig == nil) {
		return false
	}
	if a.Proxy != b.Proxy {
		return false
	}
	if a.Network != b.Network {
		return false
	}
	if !strSliceEqual(a.Protocols, b.Protocols) {
		return false
	}
	if !strSliceEqual(a.ConnectionSpecs, b.ConnectionSpecs) {
		return false
	}
	return true
}

func strSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsTLS reports whether this Address dials with a TLS handshake.
func (a Address) IsTLS() bool {
	return a.TLSConfig != nil
}

func (a Address) String() string {
	scheme := "http"
	if a.IsTLS() {
		scheme = "https"
	}
	return strings.ToLower(scheme) + "://" + a.Host + ":" + strconv.Itoa(a.Port)
}
