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

// Package connection owns the live transport: one Conn per TCP (or TLS)
// socket, multiplexed (HTTP/2) or serial (HTTP/1), plus the Pool that
// hands Conns out to Exchanges, evicts idle ones, records (but does not
// maintain) warm minimums per Address and coalesces compatible HTTP/2
// connections across Addresses.
package connection

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/gohttp/route"
)

// Codec is whatever drives request/response framing on top of a raw Conn:
// either an HTTP/1 codec (serial, allocation limit 1) or an HTTP/2 engine
// (multiplexed, allocation limit governed by the peer's
// MAX_CONCURRENT_STREAMS). Defined here, implemented in the http1/http2
// packages, to avoid a dependency cycle (http1/http2 need not import
// connection).
type Codec interface {
	// IsMultiplexed reports whether this codec can carry more than one
	// concurrent exchange.
	IsMultiplexed() bool

	// MaxConcurrentStreams is 1 for HTTP/1, or the negotiated
	// MAX_CONCURRENT_STREAMS for HTTP/2.
	MaxConcurrentStreams() int

	// Close tears down the codec (and, transitively, the socket).
	Close() error
}

// Protocol identifies the application-layer protocol a Conn negotiated.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolHTTP1
	ProtocolHTTP2
)

// Conn is one live transport connection: plain or TLS socket, an HTTP/1
// codec or HTTP/2 engine, and the bookkeeping the Pool needs to reuse,
// coalesce, evict and leak-detect it.
type Conn struct {
	mu sync.Mutex

	Route    route.Route
	Protocol Protocol
	Codec    Codec

	raw net.Conn
	tls *tls.ConnectionState

	refs            map[*CallReference]struct{}
	idleSince       time.Time
	noNewExchanges  bool
	allocationLimit int
	coalesced       bool
	noCoalescing    bool
	createdAt       time.Time
}

// CallReference is a borrow of a Conn by one Exchange. It exists so leak
// detection (and simple refcounting) has something concrete to track per
// borrow rather than an integer counter alone.
type CallReference struct {
	conn    *Conn
	created time.Time
}

// NewConn wraps an already-established (and, if applicable, already
// TLS-negotiated) socket plus its chosen Codec into a pooled Conn.
func NewConn(r route.Route, proto Protocol, codec Codec, raw net.Conn, tlsState *tls.ConnectionState) *Conn {
	limit := codec.MaxConcurrentStreams()
	if limit <= 0 {
		limit = 1
	}

	return &Conn{
		Route:           r,
		Protocol:        proto,
		Codec:           codec,
		raw:             raw,
		tls:             tlsState,
		refs:            make(map[*CallReference]struct{}),
		idleSince:       time.Now(),
		allocationLimit: limit,
		createdAt:       time.Now(),
	}
}

// TLSState returns the negotiated TLS connection state, or nil for a
// plain-text connection.
func (c *Conn) TLSState() *tls.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tls
}

// IsIdle reports whether the connection currently has zero active
// exchanges borrowing it.
func (c *Conn) IsIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs) == 0
}

// IdleSince returns the timestamp the connection became idle; meaningless
// if IsIdle is false.
func (c *Conn) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleSince
}

// NoNewExchanges reports whether the connection has been marked to no
// longer accept new borrows (health check failure, GOAWAY, protocol
// error). Monotonic: once true, stays true.
func (c *Conn) NoNewExchanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noNewExchanges
}

// MarkNoNewExchanges sets the monotonic no-new-exchanges flag.
func (c *Conn) MarkNoNewExchanges() {
	c.mu.Lock()
	c.noNewExchanges = true
	c.mu.Unlock()
}

// MarkCoalesced records that this connection is now also serving an
// Address other than the one it was originally opened for.
func (c *Conn) MarkCoalesced() {
	c.mu.Lock()
	c.coalesced = true
	c.mu.Unlock()
}

// IsCoalesced reports whether MarkCoalesced has been called.
func (c *Conn) IsCoalesced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coalesced
}

// RevokeCoalescing is called when a coalesced connection responds 421
// Misdirected Request: future acquires must not treat this connection as
// coalescable for any address other than the one it is already serving.
func (c *Conn) RevokeCoalescing() {
	c.mu.Lock()
	c.noCoalescing = true
	c.mu.Unlock()
}

// AllowsCoalescing reports whether this connection may still be offered
// to a different, coalescable Address.
func (c *Conn) AllowsCoalescing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noCoalescing
}

// Acquire borrows the connection for one Exchange; it fails (returns nil)
// once the allocation limit is reached or new exchanges are refused.
func (c *Conn) Acquire() *CallReference {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.noNewExchanges {
		return nil
	}
	if len(c.refs) >= c.allocationLimit {
		return nil
	}

	ref := &CallReference{conn: c, created: time.Now()}
	c.refs[ref] = struct{}{}
	return ref
}

// Release returns ref to the connection. It returns the number of
// references left, which the Pool uses to decide whether to close it
// (zero left on HTTP/2 with noNewExchanges).
func (c *Conn) Release(ref *CallReference) (refCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.refs, ref)
	if len(c.refs) == 0 {
		c.idleSince = time.Now()
	}
	return len(c.refs)
}

// RefCount returns the number of exchanges currently borrowing this
// connection.
func (c *Conn) RefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}

// Close tears down the underlying codec and socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.noNewExchanges = true
	codec := c.Codec
	c.mu.Unlock()

	if codec != nil {
		return codec.Close()
	}
	return nil
}
