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
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/sabouaram/gohttp/connection"
	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/exchange"
	"github.com/sabouaram/gohttp/interceptor"
	"github.com/sabouaram/gohttp/retry"
)

// Call is a single, prepared HTTP request; it may be run exactly once,
// either synchronously via Execute or asynchronously via Enqueue, the same
// one-shot contract OkHttp's RealCall enforces with its own executed flag.
type Call struct {
	client  *Client
	request *Request

	once sync.Once
	used bool

	mu       sync.Mutex
	canceled bool
}

func newCall(c *Client, req *Request) *Call {
	return &Call{client: c, request: req}
}

// IsCanceled implements interceptor.Call.
func (call *Call) IsCanceled() bool {
	call.mu.Lock()
	defer call.mu.Unlock()
	return call.canceled
}

// Cancel marks the call canceled. run checks the flag before each attempt,
// so no further attempt or follow-up starts; an exchange already in
// progress is not interrupted and runs to completion.
func (call *Call) Cancel() {
	call.mu.Lock()
	call.canceled = true
	call.mu.Unlock()
}

// Request returns the request this Call was built from.
func (call *Call) Request() *Request { return call.request }

func (call *Call) markUsed() liberr.Error {
	already := true
	call.once.Do(func() {
		already = false
		call.used = true
	})
	if already {
		return ErrorAlreadyExecuted.Error(nil)
	}
	return nil
}

// Execute runs the call synchronously and blocks for the final Response
// (following every redirect/auth-challenge/retryable failure the policy
// allows) or a terminal error.
func (call *Call) Execute() (*Response, liberr.Error) {
	if err := call.markUsed(); err != nil {
		return nil, err
	}
	return call.run()
}

// Callback receives exactly one of OnResponse or OnFailure from Enqueue,
// never both — guarded the same way Execute guards double-use, with a
// sync.Once around the dispatch so a buggy Call implementation cannot
// invoke both sides.
type Callback interface {
	OnResponse(call *Call, resp *Response)
	OnFailure(call *Call, err error)
}

// Enqueue runs the call on a new goroutine and reports the outcome to cb.
func (call *Call) Enqueue(cb Callback) liberr.Error {
	if err := call.markUsed(); err != nil {
		return err
	}
	go func() {
		var dispatch sync.Once
		resp, err := call.run()
		if err != nil {
			dispatch.Do(func() { cb.OnFailure(call, err) })
			return
		}
		dispatch.Do(func() { cb.OnResponse(call, resp) })
	}()
	return nil
}

// run drives the attempt loop: each iteration builds a fresh interceptor
// Chain (a Chain may only be proceeded once per stage, so a follow-up is a
// new Chain rather than a second Proceed on the same one) and asks the
// retry package what to do with what came back.
func (call *Call) run() (*Response, liberr.Error) {
	call.client.Listener.callStart(call.request)

	req := call.request
	chainReq := reqToChain(req)

	var prior *Response
	var priorStatusCodes []int
	attempt := 0

	for {
		if call.IsCanceled() {
			err := ErrorCanceled.Error(nil)
			call.client.Listener.callFailed(err)
			return nil, err
		}

		interceptors, box := call.buildInterceptors()
		chain := interceptor.NewChain(interceptors, call, chainReq)

		sentAt := time.Now()
		cresp, cerr := chain.Proceed(chainReq)
		if cerr != nil {
			if call.client.opts.RetryOnConnectionFailure && attempt < retry.MaxFollowUps &&
				retry.Recoverable(retry.KindIoError, true) {
				attempt++
				time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
				continue
			}
			call.client.Listener.callFailed(cerr)
			return nil, cerr
		}
		receivedAt := time.Now()

		var hs *Handshake
		if box.conn != nil {
			hs = handshakeFromTLS(box.conn.TLSState())
		}

		hresp := chainRespToResp(cresp, req, sentAt, receivedAt, hs)
		hresp.Prior = prior

		call.client.Listener.responseHeadersEnd(hresp)

		if hresp.IsRedirect() && !call.client.opts.FollowRedirects {
			call.client.Listener.callEnd(hresp)
			return hresp, nil
		}

		decision, derr := retry.Plan(cresp, attempt, priorStatusCodes)
		if derr != nil {
			call.client.Listener.callFailed(derr)
			return nil, derr
		}
		if !decision.Retry {
			call.client.Listener.callEnd(hresp)
			return hresp, nil
		}

		if decision.RevokeCoalescing && box.conn != nil {
			box.conn.RevokeCoalescing()
		}

		var nextChainReq *interceptor.Request
		var nextReq *Request
		if decision.Request != nil {
			nextChainReq = decision.Request
			nextReq = chainReqToReq(decision.Request, req)
		} else {
			if call.client.Authenticator == nil {
				call.client.Listener.callEnd(hresp)
				return hresp, nil
			}
			authed, aerr := call.client.Authenticator.Authenticate(hresp)
			if aerr != nil || authed == nil {
				call.client.Listener.callEnd(hresp)
				return hresp, nil
			}
			nextReq = authed
			nextChainReq = reqToChain(authed)
		}

		if decision.Delay > 0 {
			time.Sleep(decision.Delay)
		}

		if hresp.Body != nil {
			_ = hresp.Body.Close()
		}
		prior = hresp
		priorStatusCodes = append(priorStatusCodes, hresp.StatusCode)
		req = nextReq
		chainReq = nextChainReq
		attempt++
	}
}

// exchangeBox is the side-channel between the connect stage and the
// call-server stage of one attempt's Chain: both closures share it, the
// connect stage populating it before calling chain.Proceed so the
// call-server stage (innermost) has a live Exchange to run on.
type exchangeBox struct {
	ex   *exchange.Exchange
	conn *connection.Conn
}

// buildInterceptors assembles one attempt's Chain in the order §4.7
// describes: application interceptors, bridge, cache, connect, network
// interceptors, call-server. Retry/follow-up is not a link in this list —
// it is the outer loop in run, since advancing the same Chain twice is a
// programming error (see interceptor.Chain.Proceed).
func (call *Call) buildInterceptors() ([]interceptor.Interceptor, *exchangeBox) {
	box := &exchangeBox{}

	var stages []interceptor.Interceptor
	stages = append(stages, call.client.Interceptors...)
	stages = append(stages, interceptor.BridgeInterceptor)
	stages = append(stages, call.cacheInterceptor)
	stages = append(stages, func(chain *interceptor.Chain) (*interceptor.Response, liberr.Error) {
		return call.connectInterceptor(chain, box)
	})
	stages = append(stages, call.client.NetworkInterceptors...)
	stages = append(stages, interceptor.CallServerInterceptor(func(req *interceptor.Request) (*interceptor.Response, liberr.Error) {
		return call.doExchange(box, req)
	}))

	return stages, box
}

// cacheInterceptor serves a stored Response when the configured Cache has
// one for this request, otherwise proceeds to the network and stores
// whatever comes back. Freshness/Vary/conditional-request negotiation is
// out of scope (§ Non-goals): Cache is a pure store.
func (call *Call) cacheInterceptor(chain *interceptor.Chain) (*interceptor.Response, liberr.Error) {
	req := chain.Request()
	hreq := chainReqToReq(req, call.request)

	if cached, ok := call.client.Cache.Get(hreq); ok {
		return respToChain(cached, req), nil
	}

	resp, err := chain.Proceed(req)
	if err != nil {
		return nil, err
	}
	resp.Network = true

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, rerr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if rerr == nil {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			stored := chainRespToResp(resp, hreq, time.Now(), time.Now(), nil)
			stored.Body = io.NopCloser(bytes.NewReader(body))
			call.client.Cache.Put(hreq, stored)
		}
	}

	return resp, nil
}

// connectInterceptor plans routes for the request's origin and acquires a
// connection (pooled or freshly dialed) from the client's Pool, populating
// box so the call-server stage downstream can run the exchange.
func (call *Call) connectInterceptor(chain *interceptor.Chain, box *exchangeBox) (*interceptor.Response, liberr.Error) {
	req := chain.Request()

	addr := call.client.addressFor(req.URL)
	routes, perr := call.client.planner.Plan(addr, req.URL)
	if perr != nil {
		return nil, ErrorNoRouteReachable.ErrorParent(perr)
	}
	if len(routes) == 0 {
		return nil, ErrorNoRouteReachable.Error(nil)
	}

	wasIdle := call.client.pool.Len() > 0
	conn, ref, aerr := call.client.pool.Acquire(addr, routes, false, call.client.dialer)
	if aerr != nil {
		return nil, ErrorNoRouteReachable.ErrorParent(aerr)
	}

	box.ex = exchange.New(conn, ref)
	box.conn = conn
	call.client.Listener.connectionAcquired(routes[0], wasIdle && conn.RefCount() == 1)

	resp, perr2 := chain.Proceed(req)
	if perr2 != nil {
		_ = box.ex.Cancel()
		_ = box.ex.Release(call.client.pool)
		return nil, perr2
	}
	return resp, nil
}

// doExchange is the call-server stage: it actually writes the request and
// reads back response headers over the Exchange the connect stage set up,
// wrapping the body so releasing the connection back to the Pool happens
// the moment the caller finishes reading it.
func (call *Call) doExchange(box *exchangeBox, req *interceptor.Request) (*interceptor.Response, liberr.Error) {
	authority := req.URL.Host
	ereq := &exchange.Request{
		Method:        req.Method,
		Scheme:        req.URL.Scheme,
		Authority:     authority,
		Path:          req.URL.RequestURI(),
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}
	for _, h := range req.Header {
		ereq.Header = append(ereq.Header, exchange.Header{Name: h.Name, Value: h.Value})
	}

	eresp, err := box.ex.Do(ereq)
	if err != nil {
		_ = box.ex.Release(call.client.pool)
		return nil, err
	}

	out := &interceptor.Response{StatusCode: eresp.StatusCode, Network: true, Request: req}
	for _, h := range eresp.Header {
		out.Header = append(out.Header, interceptor.Header{Name: h.Name, Value: h.Value})
	}
	out.Body = &releaseOnClose{rc: eresp.Body, ex: box.ex, pool: call.client.pool}

	return out, nil
}

// releaseOnClose returns the borrowed connection to the Pool the moment
// the response body is closed (or read to EOF and closed by the caller),
// exactly when OkHttp's own response body wrapper recycles a connection.
type releaseOnClose struct {
	rc   io.ReadCloser
	ex   *exchange.Exchange
	pool *connection.Pool
	once sync.Once
}

func (r *releaseOnClose) Read(p []byte) (int, error) { return r.rc.Read(p) }

func (r *releaseOnClose) Close() error {
	err := r.rc.Close()
	r.once.Do(func() { _ = r.ex.Release(r.pool) })
	return err
}
