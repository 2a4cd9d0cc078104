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

// Package interceptor implements the recursive Chain of responsibility
// that every call passes through, outermost first: application
// interceptors, bridge, cache, connect, network interceptors, call-server
// (§4.7). Retry and follow-up are not a stage: httpcli runs them as a loop
// that builds a fresh Chain per attempt. Each stage sees the
// request/response of every stage inside it and may rewrite, retry, or
// short-circuit.
package interceptor

import (
	"io"
	"net/url"
	"strconv"

	liberr "github.com/sabouaram/gohttp/errors"
)

// Header is a (name, value) pair.
type Header struct {
	Name, Value string
}

// Request is the mutable request each interceptor stage may rewrite
// before calling Chain.Proceed with the rewritten copy.
type Request struct {
	Method string
	URL    *url.URL
	Header []Header
	Body   io.Reader

	// ContentLength < 0 means unknown (chunked/framed); a nil Body implies 0.
	ContentLength int64
}

// HeaderValue returns the first value for name (case-sensitive, matching
// how the bridge interceptor writes canonical names).
func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Header {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// WithHeader returns a shallow copy of r with name set to value, replacing
// any existing entry; Request is treated as immutable by convention so
// that an outer interceptor can still see its original copy after an
// inner one rewrites and retries.
func (r *Request) WithHeader(name, value string) *Request {
	out := *r
	replaced := false
	header := make([]Header, 0, len(r.Header)+1)
	for _, h := range r.Header {
		if h.Name == name {
			header = append(header, Header{Name: name, Value: value})
			replaced = true
			continue
		}
		header = append(header, h)
	}
	if !replaced {
		header = append(header, Header{Name: name, Value: value})
	}
	out.Header = header
	return &out
}

// Response is what a stage returns to the stage outside it.
type Response struct {
	StatusCode int
	Header     []Header
	Body       io.ReadCloser
	Request    *Request

	// Network is true when this Response actually touched a connection
	// (as opposed to being served from a cache interceptor).
	Network bool
}

func (r *Response) HeaderValue(name string) (string, bool) {
	for _, h := range r.Header {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Call is the minimal view of the in-flight call an interceptor needs:
// whether the application has canceled it. Defined as an interface so
// this package does not depend on whatever owns Call (the httpcli
// package).
type Call interface {
	IsCanceled() bool
}

// Interceptor observes (and may rewrite) a request on its way in and a
// response on its way out, by calling chain.Proceed exactly once (or not
// at all, to short-circuit with its own Response).
type Interceptor func(chain *Chain) (*Response, liberr.Error)

// Chain is the single linked recursion driving the interceptor list:
// Proceed invokes the next interceptor with an index one past this one.
type Chain struct {
	index        int
	request      *Request
	interceptors []Interceptor
	call         Call
}

// NewChain builds the outermost Chain for a fresh call; Proceed on it
// invokes interceptors[0].
func NewChain(interceptors []Interceptor, call Call, request *Request) *Chain {
	return &Chain{interceptors: interceptors, call: call, request: request}
}

// Request returns the request as rewritten by every stage outside this one.
func (c *Chain) Request() *Request { return c.request }

// Call returns the call-cancellation view passed to NewChain.
func (c *Chain) Call() Call { return c.call }

// Proceed invokes the next interceptor in the list with (possibly
// rewritten) req. Calling it past the end of the list, or more than once
// from the same interceptor invocation, is a programming error.
func (c *Chain) Proceed(req *Request) (*Response, liberr.Error) {
	if c.index >= len(c.interceptors) {
		return nil, ErrorChainExhausted.Error(nil)
	}

	next := &Chain{
		index:        c.index + 1,
		request:      req,
		interceptors: c.interceptors,
		call:         c.call,
	}

	return c.interceptors[c.index](next)
}

// BridgeInterceptor adds the headers OkHttp calls "bridge from application
// to network": a Content-Length when the body size is known, and nothing
// else synthesized here since compression negotiation is out of scope for
// this client (§ Non-goals).
func BridgeInterceptor(chain *Chain) (*Response, liberr.Error) {
	req := chain.Request()

	if req.Body != nil && req.ContentLength >= 0 {
		if _, has := req.HeaderValue("Content-Length"); !has {
			req = req.WithHeader("Content-Length", strconv.FormatInt(req.ContentLength, 10))
		}
	}

	return chain.Proceed(req)
}

// CallServerFunc performs the actual network exchange for a fully-prepared
// request; it is supplied by whatever owns connection acquisition (the
// httpcli package), keeping this package free of a connection/exchange
// dependency.
type CallServerFunc func(req *Request) (*Response, liberr.Error)

// CallServerInterceptor adapts a CallServerFunc into the terminal stage of
// the chain: the one interceptor that does not call Proceed.
func CallServerInterceptor(do CallServerFunc) Interceptor {
	return func(chain *Chain) (*Response, liberr.Error) {
		return do(chain.Request())
	}
}
