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

package httpcli

import (
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/sabouaram/gohttp/route"
)

// NoCache is a Cache that never has anything stored: a Client built by
// NewClient is usable without a caller wiring a real cache implementation,
// the same "sane default, override anything" posture OkHttpClient takes
// with its own null Cache.
type NoCache struct{}

func (NoCache) Get(*Request) (*Response, bool) { return nil, false }
func (NoCache) Put(*Request, *Response)        {}

// MemoryCookieJar is a minimal in-process CookieStore good enough for a
// default Client: cookies are kept per host name, with no persistence,
// no expiry/domain-matching beyond an exact host comparison, and no
// attribute parsing beyond name=value. Real deployments are expected to
// supply their own CookieStore (e.g. backed by net/http/cookiejar, which
// already implements net/http.CookieJar and can be adapted with a few
// lines at the call site) when RFC 6265 semantics matter.
type MemoryCookieJar struct {
	mu      sync.Mutex
	byHost  map[string][]string
}

// NewMemoryCookieJar returns an empty, ready-to-use MemoryCookieJar.
func NewMemoryCookieJar() *MemoryCookieJar {
	return &MemoryCookieJar{byHost: make(map[string][]string)}
}

func (j *MemoryCookieJar) SetCookies(rawURL string, cookies []string) {
	host := hostOf(rawURL)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.byHost[host] = append(j.byHost[host], cookies...)
}

func (j *MemoryCookieJar) Cookies(rawURL string) []string {
	host := hostOf(rawURL)
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.byHost[host]...)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// SystemProxySelector wraps http.ProxyFromEnvironment, giving Address a
// working ProxySelector out of the box that honours HTTP_PROXY/
// HTTPS_PROXY/NO_PROXY the way every other Go HTTP client in the corpus
// does.
type SystemProxySelector struct{}

func (SystemProxySelector) Select(u *url.URL) []route.Proxy {
	req := &http.Request{URL: u}
	proxyURL, err := http.ProxyFromEnvironment(req)
	if err != nil || proxyURL == nil {
		return nil
	}

	port := 0
	if p := proxyURL.Port(); p != "" {
		if n, convErr := strconv.Atoi(p); convErr == nil {
			port = n
		}
	}

	kind := route.ProxyHTTP
	if proxyURL.Scheme == "socks5" {
		kind = route.ProxySOCKS5
	}

	return []route.Proxy{{Kind: kind, Host: proxyURL.Hostname(), Port: port}}
}

// FixedProxy is a ProxySelector that always offers the same single proxy.
type FixedProxy route.Proxy

func (f FixedProxy) Select(*url.URL) []route.Proxy { return []route.Proxy{route.Proxy(f)} }

// SystemResolver re-exports route.SystemResolver: the default Resolver
// capability, wrapping net.DefaultResolver/net.LookupHost.
type SystemResolver = route.SystemResolver
