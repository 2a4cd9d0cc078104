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

// Package http1 implements the HTTP/1.1 wire codec: request-line and
// header serialization, chunked transfer-encoding, and response body
// length inference. It knows nothing about connection pooling or
// retries; it is handed a net.Conn (or TLS conn) and drives exactly one
// request/response exchange at a time on it.
package http1

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	liberr "github.com/sabouaram/gohttp/errors"
)

// State is the codec's position in the idle -> writing-request ->
// reading-response -> idle (or -> closed) cycle of §4.3.
type State int

const (
	StateIdle State = iota
	StateWritingRequest
	StateReadingResponse
	StateClosed
)

// Header is an ordered list of (name, value) pairs: HTTP/1.1 header order
// is observable on the wire and some servers are sensitive to it, so a
// map is the wrong representation.
type Header struct {
	Name, Value string
}

// Request is what Codec.WriteRequest serializes.
type Request struct {
	Method string
	Target string
	Header []Header

	// Body is nil for a bodyless request. ContentLength < 0 with a
	// non-nil Body means "use chunked transfer-encoding".
	Body          io.Reader
	ContentLength int64
}

// Response is what Codec.ReadResponse parses the status line and headers
// into; Body is left for the caller to read (and must be closed to
// return the connection to idle/reusable).
type Response struct {
	StatusCode int
	Reason     string
	Proto      string
	Header     []Header

	Body io.ReadCloser

	// Reusable is false when the body length could only be inferred by
	// read-until-close: such a connection cannot serve a second request.
	Reusable bool
}

// Codec drives one HTTP/1.1 request/response cycle at a time over conn.
type Codec struct {
	mu    sync.Mutex
	conn  net.Conn
	bw    *bufio.Writer
	br    *bufio.Reader
	tp    *textproto.Reader
	state State
}

// NewCodec wraps an established connection (plaintext or already
// TLS-negotiated) for HTTP/1.1 framing.
func NewCodec(conn net.Conn) *Codec {
	br := bufio.NewReader(conn)
	return &Codec{
		conn: conn,
		bw:   bufio.NewWriter(conn),
		br:   br,
		tp:   textproto.NewReader(br),
	}
}

func (c *Codec) IsMultiplexed() bool       { return false }
func (c *Codec) MaxConcurrentStreams() int { return 1 }

func (c *Codec) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Codec) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Codec) transition(from, to State) liberr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return ErrorWrongState.Error(nil)
	}
	c.state = to
	return nil
}

func (c *Codec) fail() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// WriteRequest serializes and sends req: request-line, headers, blank
// line, then the body framed per ContentLength (explicit length) or
// chunked transfer-encoding (ContentLength < 0).
func (c *Codec) WriteRequest(req *Request) liberr.Error {
	if err := c.transition(StateIdle, StateWritingRequest); err != nil {
		return err
	}

	if e := c.writeRequest(req); e != nil {
		c.fail()
		return ErrorMalformedStatusLine.ErrorParent(e)
	}

	return nil
}

func (c *Codec) writeRequest(req *Request) error {
	if _, err := fmt.Fprintf(c.bw, "%s %s HTTP/1.1\r\n", req.Method, req.Target); err != nil {
		return err
	}

	chunked := req.Body != nil && req.ContentLength < 0

	for _, h := range req.Header {
		if _, err := fmt.Fprintf(c.bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if chunked {
		if _, err := io.WriteString(c.bw, "Transfer-Encoding: chunked\r\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(c.bw, "\r\n"); err != nil {
		return err
	}

	if req.Body == nil {
		return c.bw.Flush()
	}

	if chunked {
		if err := writeChunked(c.bw, req.Body); err != nil {
			return err
		}
	} else {
		if _, err := io.CopyN(c.bw, req.Body, req.ContentLength); err != nil && err != io.EOF {
			return err
		}
	}

	return c.bw.Flush()
}

func writeChunked(w *bufio.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := fmt.Fprintf(w, "%x\r\n", n); werr != nil {
				return werr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := io.WriteString(w, "\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			_, werr := io.WriteString(w, "0\r\n\r\n")
			return werr
		}
		if err != nil {
			return err
		}
	}
}

// ReadResponse reads and parses the status line and headers, then builds
// a Body reader framed per the response body length-inference rules of
// §4.3. Transitioning back to StateIdle happens when Body is closed
// (bodyCloser.Close), not here, since the body may still be streaming.
func (c *Codec) ReadResponse(method string) (*Response, liberr.Error) {
	if err := c.transition(StateWritingRequest, StateReadingResponse); err != nil {
		return nil, err
	}

	resp, e := c.readResponse(method)
	if e != nil {
		c.fail()
		return nil, ErrorMalformedStatusLine.ErrorParent(e)
	}

	return resp, nil
}

func (c *Codec) readResponse(method string) (*Response, error) {
	line, err := c.tp.ReadLine()
	if err != nil {
		return nil, err
	}

	proto, code, reason, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	mimeHeader, err := c.tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}

	var header []Header
	for k, vs := range mimeHeader {
		for _, v := range vs {
			header = append(header, Header{Name: k, Value: v})
		}
	}

	resp := &Response{StatusCode: code, Reason: reason, Proto: proto, Header: header}

	body, reusable := c.bodyReader(resp, method)
	resp.Body = body
	resp.Reusable = reusable

	return resp, nil
}

func parseStatusLine(line string) (proto string, code int, reason string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("malformed status line %q", line)
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", err
	}
	proto = parts[0]
	if len(parts) == 3 {
		reason = parts[2]
	}
	return proto, code, reason, nil
}

func headerValue(h []Header, name string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// bodyReader implements the response-body length-inference order of
// §4.3: no body for 1xx/204/304 and HEAD responses, then chunked, then
// Content-Length, then read-until-close (which makes the connection
// non-reusable).
func (c *Codec) bodyReader(resp *Response, method string) (io.ReadCloser, bool) {
	if method == "HEAD" || noBodyStatus(resp.StatusCode) {
		return &bodyCloser{codec: c, r: io.LimitReader(c.br, 0)}, true
	}

	if te, ok := headerValue(resp.Header, "Transfer-Encoding"); ok && strings.EqualFold(te, "chunked") {
		return &bodyCloser{codec: c, r: newChunkedReader(c.br)}, true
	}

	if cl, ok := headerValue(resp.Header, "Content-Length"); ok {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return &bodyCloser{codec: c, r: io.LimitReader(c.br, n)}, true
		}
	}

	return &bodyCloser{codec: c, r: c.br, closesConn: true}, false
}

func noBodyStatus(code int) bool {
	return (code >= 100 && code < 200) || code == 204 || code == 304
}

// bodyCloser returns the codec to StateIdle on Close (unless the body was
// read-until-close, in which case the connection is no longer reusable
// and is closed outright instead).
type bodyCloser struct {
	codec      *Codec
	r          io.Reader
	closesConn bool
	closed     bool
}

func (b *bodyCloser) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *bodyCloser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.closesConn {
		return b.codec.Close()
	}

	// Drain any unread bytes so the next request's status line does not
	// land mid-body.
	_, _ = io.Copy(io.Discard, b.r)

	b.codec.mu.Lock()
	b.codec.state = StateIdle
	b.codec.mu.Unlock()
	return nil
}
