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
	"crypto/tls"
	"io"
	"net/textproto"
	"time"
)

// Handshake is the negotiated TLS state of the connection a Response was
// read over, or nil for plain-text requests.
type Handshake struct {
	PeerCertificates []byte // leaf certificate, DER-encoded, for callers that need a raw pin check
	CipherSuite      uint16
	NegotiatedProto  string // ALPN result: "h2", "http/1.1", or ""
	Version          uint16
}

func handshakeFromTLS(cs *tls.ConnectionState) *Handshake {
	if cs == nil {
		return nil
	}
	h := &Handshake{
		CipherSuite:     cs.CipherSuite,
		NegotiatedProto: cs.NegotiatedProtocol,
		Version:         cs.Version,
	}
	if len(cs.PeerCertificates) > 0 {
		h.PeerCertificates = cs.PeerCertificates[0].Raw
	}
	return h
}

// Response is the result of one Call. Request is the (possibly
// follow-up) request that actually produced it; Prior chains back through
// every response that triggered a redirect or auth challenge leading here,
// exactly as OkHttp's Response.priorResponse does.
type Response struct {
	Request    *Request
	StatusCode int
	Header     textproto.MIMEHeader
	Body       io.ReadCloser

	Handshake *Handshake
	SentAt    time.Time
	ReceivedAt time.Time

	Prior *Response

	// Network reports whether this response came from the network (as
	// opposed to a Cache hit). Every response returned through Execute
	// has exactly one of Network true or a cache hit; see the cache
	// interceptor in call.go.
	Network bool
}

// HeaderValue returns the first value for name, matched case-insensitively.
func (r *Response) HeaderValue(name string) (string, bool) {
	v := r.Header.Values(textproto.CanonicalMIMEHeaderKey(name))
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// IsSuccessful reports whether StatusCode is in [200, 300).
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports whether StatusCode is one of the redirect codes the
// retry/follow-up policy recognizes.
func (r *Response) IsRedirect() bool {
	switch r.StatusCode {
	case 300, 301, 302, 303, 307, 308:
		return true
	}
	return false
}
