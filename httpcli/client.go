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

// Package httpcli is the public surface of this module: Client builds
// Calls from Requests, driving them through the retry/follow-up policy,
// the interceptor chain, the connection pool and the route planner to
// produce a Response — the same layering OkHttpClient/Call/Request/
// Response give Java/Kotlin callers, rebuilt on this module's Task
// Runner, Route Planner, Connection Pool, HTTP/1 and HTTP/2 engines.
package httpcli

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sabouaram/gohttp/certificates"
	"github.com/sabouaram/gohttp/connection"
	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/interceptor"
	"github.com/sabouaram/gohttp/route"
	"github.com/sabouaram/gohttp/runner"
)

// Client holds what every Call it creates shares: the same task Runner,
// connection Pool and route Database, exactly as one OkHttpClient backs
// every Call it creates. Its exported capability and interceptor fields
// may be set after NewClient returns.
type Client struct {
	opts Options

	runner *runner.Runner
	queue  *runner.Queue
	pool      *connection.Pool
	db        *route.Database
	planner   *route.Planner
	dialer    *clientDialer
	pingQueue *runner.Queue

	tlsConfig certificates.TLSConfig

	Cache         Cache
	CookieStore   CookieStore
	Authenticator Authenticator
	ProxySelector ProxySelector
	Resolver      Resolver
	Listener      EventListener

	// Interceptors are application-supplied stages that see every retry
	// and follow-up (the outermost ring of the chain); NetworkInterceptors
	// sit just inside the connect stage and see exactly one network
	// attempt per retry, mirroring OkHttp's two interceptor tiers.
	Interceptors        []interceptor.Interceptor
	NetworkInterceptors []interceptor.Interceptor
}

// NewClient validates opts and builds a ready-to-use Client. A zero-value
// Options{} is not valid on its own — callers typically start from
// DefaultOptions() and override fields.
func NewClient(opts Options) (*Client, liberr.Error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := runner.New(opts.RunnerWorkers)
	poolQueue := r.NewQueue("pool")
	pingQueue := r.NewQueue("ping")

	c := &Client{
		opts:          opts,
		runner:        r,
		queue:         poolQueue,
		pool:          connection.NewPool(opts.MaxIdleConnections, opts.KeepAlive.Time(), poolQueue),
		db:            route.NewDatabase(),
		tlsConfig:     certificates.Default,
		Cache:         NoCache{},
		CookieStore:   NewMemoryCookieJar(),
		ProxySelector: SystemProxySelector{},
		Resolver:      SystemResolver{},
	}
	c.planner = route.NewPlanner(c.db)
	c.dialer = newClientDialer(opts, pingQueue)
	c.pingQueue = pingQueue

	return c, nil
}

// Shutdown releases the Client's task Runner, stopping its pool-eviction
// and ping-watchdog queues. Calls already in flight are
// not interrupted.
func (c *Client) Shutdown() {
	c.runner.Shutdown()
}

// NewCall starts a Call for req. Each Call may be executed (synchronously)
// or enqueued (asynchronously) exactly once.
func (c *Client) NewCall(req *Request) (*Call, liberr.Error) {
	if req == nil || req.URL == nil || req.URL.Host == "" {
		return nil, ErrorInvalidURL.Error(nil)
	}
	return newCall(c, req), nil
}

// addressFor builds the route.Address a request's URL maps to: host/port
// from the URL, TLSConfig set only for https, and every external
// collaborator (Resolver, ProxySelector, Protocols) taken from the
// Client's configuration so every Call against the same origin shares a
// connection-reuse identity.
func (c *Client) addressFor(u *url.URL) route.Address {
	host := u.Hostname()
	port := 0
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	} else if strings.EqualFold(u.Scheme, "https") {
		port = 443
	} else {
		port = 80
	}

	addr := route.Address{
		Host:          host,
		Port:          port,
		Resolver:      c.Resolver,
		ProxySelector: c.ProxySelector,
		Protocols:     c.opts.Protocols,
	}
	if strings.EqualFold(u.Scheme, "https") {
		addr.TLSConfig = c.tlsConfig
	}
	return addr
}
