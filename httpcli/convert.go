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
	"net/textproto"
	"time"

	"github.com/sabouaram/gohttp/interceptor"
)

// reqToChain turns a public Request into the interceptor package's
// transport-agnostic Request shape the Chain actually runs on.
func reqToChain(r *Request) *interceptor.Request {
	out := &interceptor.Request{
		Method:        r.Method,
		URL:           r.URL,
		Body:          r.Body,
		ContentLength: r.Length,
	}
	for name, values := range r.Header {
		for _, v := range values {
			out.Header = append(out.Header, interceptor.Header{Name: name, Value: v})
		}
	}
	return out
}

// chainReqToReq rebuilds a public Request from a chain Request produced by
// a follow-up decision (redirect target, method downgrade, ...), keeping
// whatever tag map the original request carried.
func chainReqToReq(cr *interceptor.Request, original *Request) *Request {
	out := &Request{
		Method: cr.Method,
		URL:    cr.URL,
		Header: make(textproto.MIMEHeader),
		Body:   cr.Body,
		Length: cr.ContentLength,
	}
	if original != nil {
		out.tags = original.tags
	}
	for _, h := range cr.Header {
		out.Header.Add(h.Name, h.Value)
	}
	return out
}

// chainRespToResp converts the chain's terminal Response into the public
// Response Execute/Enqueue hand back to the caller.
func chainRespToResp(cr *interceptor.Response, req *Request, sentAt, receivedAt time.Time, hs *Handshake) *Response {
	out := &Response{
		Request:    req,
		StatusCode: cr.StatusCode,
		Header:     make(textproto.MIMEHeader),
		Body:       cr.Body,
		Handshake:  hs,
		SentAt:     sentAt,
		ReceivedAt: receivedAt,
		Network:    cr.Network,
	}
	for _, h := range cr.Header {
		out.Header.Add(h.Name, h.Value)
	}
	return out
}

// respToChain is the inverse of chainRespToResp: used by the cache
// interceptor to hand a stored Response back into the chain as if it had
// come off the network.
func respToChain(r *Response, req *interceptor.Request) *interceptor.Response {
	out := &interceptor.Response{
		StatusCode: r.StatusCode,
		Body:       r.Body,
		Request:    req,
		Network:    false,
	}
	for name, values := range r.Header {
		for _, v := range values {
			out.Header = append(out.Header, interceptor.Header{Name: name, Value: v})
		}
	}
	return out
}
