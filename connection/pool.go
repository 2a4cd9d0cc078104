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

package connection

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/route"
	"github.com/sabouaram/gohttp/runner"
)

// WarmPoolPolicy pairs an Address with a minimum warm-pool size. Nothing
// in this package consumes the type; SetWarmPolicy takes the same two
// values directly.
type WarmPoolPolicy struct {
	Address route.Address
	Min     int
}

// Dialer opens a brand-new Conn for a Route. Implemented by whatever glues
// together the certificates/http1/http2 packages (the httpcli package);
// kept as an interface here so the pool does not need to import either
// codec package.
type Dialer interface {
	Dial(r route.Route) (*Conn, liberr.Error)
}

// Pool holds at most MaxIdle idle connections across all addresses, each
// for at most KeepAlive (both enforced by the eviction task), and serves
// Acquire/Release/eviction per §4.5. Warm-pool minimums are only recorded.
type Pool struct {
	MaxIdle   int
	KeepAlive time.Duration

	mu    sync.Mutex
	conns []*Conn
	warm  map[string]int

	queue *runner.Queue
}

// NewPool builds a Pool whose eviction task runs on queue (from a shared
// runner.Runner; see the httpcli package for wiring).
func NewPool(maxIdle int, keepAlive time.Duration, queue *runner.Queue) *Pool {
	p := &Pool{
		MaxIdle:   maxIdle,
		KeepAlive: keepAlive,
		warm:      make(map[string]int),
		queue:     queue,
	}
	return p
}

// AddIdle inserts an already-established, currently unused connection
// directly into the pool, bypassing Acquire's scan-then-dial path. The
// pool itself never dials ahead of demand and does not call it.
func (p *Pool) AddIdle(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = append(p.conns, c)
}

// SetWarmPolicy records (or clears, with min<=0) a minimum warm-pool
// size for an Address. The value is only stored: the pool does not open
// connections to reach it, and eviction does not take it into account.
func (p *Pool) SetWarmPolicy(addr route.Address, min int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if min <= 0 {
		delete(p.warm, addr.String())
		return
	}
	p.warm[addr.String()] = min
}

// Acquire implements the scan-then-dial algorithm of §4.5: it prefers an
// eligible pooled connection (equivalent Address, or HTTP/2-coalescable),
// health-checking the first eligible hit and continuing the scan past
// anything unhealthy, and only dials a fresh connection via dialer when
// nothing pooled qualifies.
func (p *Pool) Acquire(addr route.Address, routes []route.Route, requireMultiplexed bool, dialer Dialer) (*Conn, *CallReference, liberr.Error) {
	if ref, conn := p.scanAndAcquire(addr, routes, requireMultiplexed); ref != nil {
		return conn, ref, nil
	}

	for _, r := range routes {
		conn, err := dialer.Dial(r)
		if err != nil {
			continue
		}

		// Re-scan before inserting: another goroutine may have pooled a
		// usable HTTP/2 connection for this Address while we were
		// dialing. Prefer the smaller identity (pointer) hash so every
		// racing goroutine converges on the same winner.
		p.mu.Lock()
		if existing := p.findEligibleLocked(addr, routes, requireMultiplexed); existing != nil &&
			reflect.ValueOf(existing).Pointer() < reflect.ValueOf(conn).Pointer() {
			p.mu.Unlock()
			ref := existing.Acquire()
			if ref != nil {
				_ = conn.Close()
				return existing, ref, nil
			}
			p.mu.Lock()
		}

		p.conns = append(p.conns, conn)
		ref := conn.Acquire()
		p.mu.Unlock()

		if ref != nil {
			return conn, ref, nil
		}
	}

	return nil, nil, ErrorPoolExhausted.Error(nil)
}

func (p *Pool) scanAndAcquire(addr route.Address, routes []route.Route, requireMultiplexed bool) (*CallReference, *Conn) {
	for {
		p.mu.Lock()
		c := p.findEligibleLocked(addr, routes, requireMultiplexed)
		if c == nil {
			p.mu.Unlock()
			return nil, nil
		}

		if !p.healthCheckLocked(c) {
			c.MarkNoNewExchanges()
			p.removeLocked(c)
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		ref := c.Acquire()
		if ref == nil {
			continue
		}
		if c.Route.Address.Host != addr.Host {
			c.MarkCoalesced()
		}
		return ref, c
	}
}

func (p *Pool) findEligibleLocked(addr route.Address, routes []route.Route, requireMultiplexed bool) *Conn {
	for _, c := range p.conns {
		if requireMultiplexed && c.Protocol != ProtocolHTTP2 {
			continue
		}
		if c.RefCount() >= c.allocationLimit {
			continue
		}
		if c.Route.Address.Equal(addr) {
			return c
		}
		if Coalescable(c, c.Route.Address, addr, routes) {
			return c
		}
	}
	return nil
}

func (p *Pool) healthCheckLocked(c *Conn) bool {
	if c.NoNewExchanges() {
		return false
	}
	return true
}

func (p *Pool) removeLocked(c *Conn) {
	for i, x := range p.conns {
		if x == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

// Release returns ref to its connection; if that drops the refcount to
// zero and the connection is HTTP/2 with NoNewExchanges set, it is
// removed from the pool and closed immediately rather than left idle.
func (p *Pool) Release(c *Conn, ref *CallReference) {
	remaining := c.Release(ref)
	if remaining > 0 {
		return
	}

	if c.Protocol == ProtocolHTTP2 && c.NoNewExchanges() {
		p.mu.Lock()
		p.removeLocked(c)
		p.mu.Unlock()
		_ = c.Close()
	}
}

// ScheduleEviction starts the recurring eviction task on the pool's queue,
// per the §4.5 "eviction cleanup" algorithm: evict the longest-idle
// connection if over keep-alive or over MaxIdle, else sleep until the
// next one would be due.
func (p *Pool) ScheduleEviction() {
	if p.queue == nil {
		return
	}

	task := &runner.Task{
		Name:       "pool-eviction",
		Cancelable: true,
		Run: func(ctx context.Context) time.Duration {
			return p.evictOnce()
		},
	}
	_ = p.queue.Schedule(task, p.KeepAlive)
}

func (p *Pool) evictOnce() time.Duration {
	p.mu.Lock()

	var idle []*Conn
	for _, c := range p.conns {
		if c.IsIdle() {
			idle = append(idle, c)
		}
	}

	if len(idle) == 0 {
		p.mu.Unlock()
		return p.KeepAlive
	}

	sort.Slice(idle, func(i, j int) bool { return idle[i].IdleSince().Before(idle[j].IdleSince()) })
	longest := idle[0]
	idleDur := time.Since(longest.IdleSince())

	if idleDur >= p.KeepAlive || len(idle) > p.MaxIdle {
		p.removeLocked(longest)
		p.mu.Unlock()
		_ = longest.Close()
		return 0
	}

	p.mu.Unlock()
	return p.KeepAlive - idleDur
}

// Len returns the number of connections currently pooled (idle or not).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
