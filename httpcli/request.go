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
	"io"
	"net/textproto"
	"net/url"

	libctx "github.com/sabouaram/gohttp/context"
)

// Request is an immutable description of one HTTP call, built through
// NewRequest(...).Method(...).Header(...)..., the same builder-then-freeze
// shape the OkHttp Request.Builder uses. Header is textproto.MIMEHeader
// rather than a hand-rolled map so case-insensitive lookup and
// duplicate-preserving Add semantics come directly from the standard
// library, the same primitive net/http itself is built on.
type Request struct {
	Method  string
	URL     *url.URL
	Header  textproto.MIMEHeader
	Body    io.Reader
	Length  int64

	// Tags carries caller-defined, per-call values (deadlines,
	// call-site identifiers, ...) that interceptors can read back via
	// Tag/WithTag without the Client needing to know their type.
	tags libctx.Config[string]
}

// NewRequest starts a builder for method m against rawURL.
func NewRequest(m, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: m,
		URL:    u,
		Header: make(textproto.MIMEHeader),
	}, nil
}

// Get is a convenience constructor for the common case.
func Get(rawURL string) (*Request, error) { return NewRequest("GET", rawURL) }

// WithHeader returns a shallow copy of r with name set (replacing any
// existing values) to value.
func (r *Request) WithHeader(name, value string) *Request {
	n := r.clone()
	n.Header.Set(name, value)
	return n
}

// WithAddedHeader returns a shallow copy of r with value appended to any
// existing values for name.
func (r *Request) WithAddedHeader(name, value string) *Request {
	n := r.clone()
	n.Header.Add(name, value)
	return n
}

// WithBody returns a shallow copy of r carrying body and an explicit
// Content-Length (-1 if unknown).
func (r *Request) WithBody(body io.Reader, length int64) *Request {
	n := r.clone()
	n.Body = body
	n.Length = length
	return n
}

// WithURL returns a shallow copy of r retargeted at u; used by the
// retry/follow-up interceptor to build a redirected request.
func (r *Request) WithURL(u *url.URL) *Request {
	n := r.clone()
	n.URL = u
	return n
}

// WithMethod returns a shallow copy of r with a different method (and, if
// dropBody is set, no body) — used for 303/302-style method downgrades.
func (r *Request) WithMethod(method string, dropBody bool) *Request {
	n := r.clone()
	n.Method = method
	if dropBody {
		n.Body = nil
		n.Length = 0
	}
	return n
}

// Tag returns the caller value stored under key, if any.
func (r *Request) Tag(key string) (interface{}, bool) {
	if r.tags == nil {
		return nil, false
	}
	return r.tags.Load(key)
}

// WithTag returns a shallow copy of r with key bound to value.
func (r *Request) WithTag(key string, value interface{}) *Request {
	n := r.clone()
	if n.tags == nil {
		n.tags = libctx.New[string](nil)
	}
	n.tags.Store(key, value)
	return n
}

func (r *Request) clone() *Request {
	n := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: make(textproto.MIMEHeader, len(r.Header)),
		Body:   r.Body,
		Length: r.Length,
		tags:   r.tags,
	}
	for k, v := range r.Header {
		vv := make([]string, len(v))
		copy(vv, v)
		n.Header[k] = vv
	}
	return n
}
