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

package connection

import (
	"github.com/sabouaram/gohttp/certificates"
	"github.com/sabouaram/gohttp/route"
)

// Coalescable reports whether an existing HTTP/2 connection opened for
// `existing` may also serve `target` (§4.6): every Address field but Host
// must match, the connection's peer certificate must verify for
// target.Host, both addresses must share the same pinner/verifier
// instance, and if the caller supplied resolved routes for target, the
// connection's peer address must be among them.
func Coalescable(c *Conn, existing, target route.Address, targetRoutes []route.Route) bool {
	if c.Protocol != ProtocolHTTP2 {
		return false
	}
	if !c.AllowsCoalescing() {
		return false
	}
	if !sameAddressIgnoringHost(existing, target) {
		return false
	}

	state := c.TLSState()
	if state == nil || len(state.PeerCertificates) == 0 {
		return false
	}

	verifier := certificates.NewHostnameVerifier()
	if existing.HostnameVerifier != nil {
		verifier = *existing.HostnameVerifier
	}
	if err := verifier.Verify(target.Host, state.PeerCertificates[0]); err != nil {
		return false
	}

	if len(targetRoutes) > 0 {
		found := false
		for _, r := range targetRoutes {
			if r.IPAddr.Equal(c.Route.IPAddr) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func sameAddressIgnoringHost(a, b route.Address) bool {
	a.Host, b.Host = "", ""
	return a.Equal(b)
}
