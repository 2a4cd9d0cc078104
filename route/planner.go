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

package route

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	liberr "github.com/sabouaram/gohttp/errors"
)

// Planner enumerates Routes for an Address: proxy selection, then DNS
// resolution of either the origin host (DIRECT) or the proxy host
// (SOCKS/HTTP, so the origin hostname survives for TLS SNI through
// CONNECT), in that order, consulting the shared Database to push
// previously-failed routes to the tail.
type Planner struct {
	DB *Database
}

// NewPlanner returns a Planner backed by db. A nil db means no route is
// ever deprioritized.
func NewPlanner(db *Database) *Planner {
	return &Planner{DB: db}
}

// Plan returns the ordered list of Routes to try for addr reaching u.
// DNS failure on one proxy candidate is recorded in the returned
// composite error but does not abort planning of the remaining
// candidates; Plan only fails outright if every candidate's DNS lookup
// failed.
func (p *Planner) Plan(addr Address, u *url.URL) ([]Route, liberr.Error) {
	proxies := p.selectProxies(addr, u)

	var (
		routes []Route
		lookupErrs []string
	)

	for _, proxy := range proxies {
		dialHost := addr.Host
		dialPort := addr.Port
		if proxy.Kind != ProxyDirect {
			dialHost = proxy.Host
			dialPort = proxy.Port
		}

		ips, err := p.resolve(addr, dialHost)
		if err != nil {
			lookupErrs = append(lookupErrs, fmt.Sprintf("%s: %v", dialHost, err))
			continue
		}

		for _, ip := range ips {
			routes = append(routes, Route{
				Address: addr,
				Proxy:   proxy,
				IPAddr:  ip,
				Port:    dialPort,
			})
		}
	}

	if len(routes) == 0 {
		if len(lookupErrs) > 0 {
			return nil, ErrorDNSFailure.Error(fmt.Errorf("%s", strings.Join(lookupErrs, "; ")))
		}
		return nil, ErrorNoRoutesLeft.Error(nil)
	}

	if p.DB != nil {
		routes = p.DB.Reorder(routes)
	}

	return routes, nil
}

func (p *Planner) selectProxies(addr Address, u *url.URL) []Proxy {
	if addr.Proxy.Kind != ProxyDirect {
		return []Proxy{addr.Proxy}
	}
	if addr.ProxySelector == nil {
		return []Proxy{{Kind: ProxyDirect}}
	}

	selected := addr.ProxySelector.Select(u)
	if len(selected) == 0 {
		return []Proxy{{Kind: ProxyDirect}}
	}
	return selected
}

func (p *Planner) resolve(addr Address, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	resolver := addr.Resolver
	if resolver == nil {
		resolver = SystemResolver{}
	}

	hosts, err := resolver.LookupHost(host)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(hosts))
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips, nil
}
