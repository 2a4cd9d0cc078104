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

import "github.com/sabouaram/gohttp/route"

// ProxySelector and Resolver are re-exported from route rather than
// redeclared: they are genuinely the same capability the Route Planner
// already defines, and a second, httpcli-local interface with the same
// method set would just be a different name for identical behaviour.
type ProxySelector = route.ProxySelector
type Resolver = route.Resolver

// Authenticator answers a 401/407 challenge for a Response by returning a
// follow-up Request carrying credentials, or nil to decline (the Call then
// surfaces the challenge response as-is). Returning nil after having
// already answered the same challenge once avoids infinite auth loops;
// the retry package's MaxFollowUps cap is the backstop if an
// Authenticator doesn't track that itself.
type Authenticator interface {
	Authenticate(resp *Response) (*Request, error)
}

// Cache is the HTTP cache capability: Get returns a cached Response for
// req if a fresh-enough, stored entry exists; Put stores resp for future
// Gets. Cache is a pure storage capability — freshness/Vary/conditional
// (If-None-Match) logic is out of scope per spec.md's stated non-goals,
// so the cache interceptor in call.go only calls Get/Put and otherwise
// always goes to the network.
type Cache interface {
	Get(req *Request) (*Response, bool)
	Put(req *Request, resp *Response)
}

// CookieStore persists cookies across calls on the same Client, the same
// role net/http.CookieJar plays for net/http.Client.
type CookieStore interface {
	SetCookies(url string, cookies []string)
	Cookies(url string) []string
}

// EventListener is a bag of optional callbacks a Client can be given to
// observe a Call's lifecycle, mirroring OkHttp's own EventListener
// capability: every field is individually optional (nil is a no-op), so
// callers wire only what they want to observe.
type EventListener struct {
	OnCallStart           func(req *Request)
	OnDNSStart            func(host string)
	OnDNSEnd              func(host string, addrs int)
	OnConnectStart        func(route route.Route)
	OnConnectionAcquired  func(route route.Route, reused bool)
	OnConnectFailed       func(route route.Route, err error)
	OnRequestHeadersEnd   func(req *Request)
	OnRequestBodyEnd      func(req *Request, bytesWritten int64)
	OnResponseHeadersEnd  func(resp *Response)
	OnResponseBodyEnd     func(resp *Response, bytesRead int64)
	OnCallEnd             func(resp *Response)
	OnCallFailed          func(err error)
}

func (l EventListener) callStart(req *Request) {
	if l.OnCallStart != nil {
		l.OnCallStart(req)
	}
}

func (l EventListener) connectionAcquired(r route.Route, reused bool) {
	if l.OnConnectionAcquired != nil {
		l.OnConnectionAcquired(r, reused)
	}
}

func (l EventListener) responseHeadersEnd(resp *Response) {
	if l.OnResponseHeadersEnd != nil {
		l.OnResponseHeadersEnd(resp)
	}
}

func (l EventListener) callEnd(resp *Response) {
	if l.OnCallEnd != nil {
		l.OnCallEnd(resp)
	}
}

func (l EventListener) callFailed(err error) {
	if l.OnCallFailed != nil {
		l.OnCallFailed(err)
	}
}
