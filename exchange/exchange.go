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

// Package exchange drives exactly one request/response cycle over a
// borrowed connection.Conn, hiding whether that connection speaks HTTP/1.1
// (via the http1 package) or HTTP/2 (via the http2 package) behind one
// state machine: created -> requestHeadersSent -> requestBodyWritten? ->
// responseHeadersRead -> responseBodyReadOrDiscarded -> released.
package exchange

import (
	"io"
	"sync"

	liberr "github.com/sabouaram/gohttp/errors"

	"github.com/sabouaram/gohttp/connection"
	"github.com/sabouaram/gohttp/http1"
	"github.com/sabouaram/gohttp/http2"
)

// State is the exchange's position in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateRequestHeadersSent
	StateRequestBodyWritten
	StateResponseHeadersRead
	StateResponseBodyDone
	StateReleased
	StateCanceled
)

// Header is a (name, value) pair, independent of which codec ends up
// carrying it.
type Header struct {
	Name, Value string
}

// Request is what Do sends: method/scheme/authority/path are kept
// separate (rather than a single URL) because HTTP/2 frames them as
// distinct pseudo-headers.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Header    []Header

	Body          io.Reader
	ContentLength int64 // < 0 means "unknown, chunk or frame it"
}

// Response is what Do returns; Body must be closed (or fully read) to
// return the underlying connection to the pool.
type Response struct {
	StatusCode int
	Header     []Header
	Body       io.ReadCloser
}

// Exchange binds one Request/Response cycle to a borrowed Conn.
type Exchange struct {
	mu    sync.Mutex
	state State

	conn *connection.Conn
	ref  *connection.CallReference

	h2Stream *http2.Stream
	h2Engine *http2.Engine
}

// New binds a freshly-acquired Conn/CallReference pair to a new Exchange.
func New(conn *connection.Conn, ref *connection.CallReference) *Exchange {
	return &Exchange{conn: conn, ref: ref}
}

func (e *Exchange) transition(from, to State) liberr.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != from {
		return ErrorWrongState.Error(nil)
	}
	e.state = to
	return nil
}

func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Do writes req and reads back the response headers (not necessarily the
// full body: Response.Body is left for the caller to stream). It dispatch
// on the borrowed connection's negotiated protocol.
func (e *Exchange) Do(req *Request) (*Response, liberr.Error) {
	switch codec := e.conn.Codec.(type) {
	case *http1.Codec:
		return e.doHTTP1(codec, req)
	case *http2.Engine:
		return e.doHTTP2(codec, req)
	default:
		return nil, ErrorUnsupportedCodec.Error(nil)
	}
}

func (e *Exchange) doHTTP1(codec *http1.Codec, req *Request) (*Response, liberr.Error) {
	if err := e.transition(StateCreated, StateRequestHeadersSent); err != nil {
		return nil, err
	}

	header := make([]http1.Header, 0, len(req.Header)+1)
	header = append(header, http1.Header{Name: "Host", Value: req.Authority})
	for _, h := range req.Header {
		header = append(header, http1.Header{Name: h.Name, Value: h.Value})
	}

	if err := codec.WriteRequest(&http1.Request{
		Method:        req.Method,
		Target:        req.Path,
		Header:        header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}); err != nil {
		return nil, err
	}

	if req.Body != nil {
		_ = e.transition(StateRequestHeadersSent, StateRequestBodyWritten)
	}

	resp, err := codec.ReadResponse(req.Method)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.state = StateResponseHeadersRead
	e.mu.Unlock()

	out := &Response{StatusCode: resp.StatusCode, Body: resp.Body}
	for _, h := range resp.Header {
		out.Header = append(out.Header, Header{Name: h.Name, Value: h.Value})
	}
	if !resp.Reusable {
		e.conn.MarkNoNewExchanges()
	}

	return out, nil
}

func (e *Exchange) doHTTP2(engine *http2.Engine, req *Request) (*Response, liberr.Error) {
	if err := e.transition(StateCreated, StateRequestHeadersSent); err != nil {
		return nil, err
	}

	var fields []http2.HeaderField
	for _, h := range req.Header {
		fields = append(fields, http2.HeaderField{Name: h.Name, Value: h.Value})
	}
	fields = http2.RequestHeaderFields(req.Method, req.Scheme, req.Authority, req.Path, fields)

	endStream := req.Body == nil
	st, err := engine.OpenStream(fields, endStream)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.h2Stream = st
	e.h2Engine = engine
	e.mu.Unlock()

	if req.Body != nil {
		if werr := e.writeHTTP2Body(st, engine, req.Body); werr != nil {
			return nil, werr
		}
		_ = e.transition(StateRequestHeadersSent, StateRequestBodyWritten)
	}

	respFields := st.WaitHeader()

	e.mu.Lock()
	e.state = StateResponseHeadersRead
	e.mu.Unlock()

	status, _ := http2.ResponseStatus(respFields)

	out := &Response{Body: st.Body()}
	out.StatusCode = parseStatus(status)
	for _, f := range respFields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		out.Header = append(out.Header, Header{Name: f.Name, Value: f.Value})
	}

	return out, nil
}

func (e *Exchange) writeHTTP2Body(st *http2.Stream, engine *http2.Engine, body io.Reader) liberr.Error {
	buf := make([]byte, 16*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			last := rerr == io.EOF
			if werr := engine.WriteData(st, buf[:n], last); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return ErrorWrongState.ErrorParent(rerr)
		}
	}
}

func parseStatus(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Cancel aborts the exchange: for HTTP/1 it marks the underlying
// connection as no-new-exchanges (the in-flight request/response still
// has to drain before the socket is reusable, so the connection is
// retired rather than interrupted); for HTTP/2 it sends RST_STREAM.
func (e *Exchange) Cancel() liberr.Error {
	e.mu.Lock()
	if e.state == StateReleased || e.state == StateCanceled {
		e.mu.Unlock()
		return nil
	}
	e.state = StateCanceled
	st, eng := e.h2Stream, e.h2Engine
	e.mu.Unlock()

	if eng != nil && st != nil {
		return eng.CancelStream(st)
	}

	e.conn.MarkNoNewExchanges()
	return nil
}

// Release returns the borrowed connection to the pool via pool.Release
// (the caller passes its Pool since Exchange does not hold one, to avoid
// importing connection's Pool type into every call site that only needs
// Conn/CallReference).
func (e *Exchange) Release(pool *connection.Pool) liberr.Error {
	e.mu.Lock()
	if e.state == StateReleased {
		e.mu.Unlock()
		return ErrorAlreadyReleased.Error(nil)
	}
	e.state = StateReleased
	e.mu.Unlock()

	pool.Release(e.conn, e.ref)
	return nil
}
