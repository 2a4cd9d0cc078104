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

package errors

const (
	MinPkgCertificate = 300
	MinPkgHttpCli     = 1200
	MinPkgNetwork     = 2200

	// MinPkgRunner covers the task runner (component A): queue and
	// pool scheduling failures.
	MinPkgRunner = 4000

	// MinPkgRoute covers address/route planning and the route
	// failure database (component B).
	MinPkgRoute = 4100

	// MinPkgConnection covers transport connection setup, the
	// connection pool and coalescing (components C and F).
	MinPkgConnection = 4200

	// MinPkgHttp1 covers the HTTP/1.1 request/response codec
	// (component D).
	MinPkgHttp1 = 4300

	// MinPkgHttp2 covers the HTTP/2 engine: framing, HPACK and flow
	// control (component E).
	MinPkgHttp2 = 4400

	// MinPkgExchange covers the per-call exchange state machine
	// (component G).
	MinPkgExchange = 4500

	// MinPkgInterceptor covers the interceptor chain (component H).
	MinPkgInterceptor = 4600

	// MinPkgRetry covers the retry and follow-up policy (component I).
	MinPkgRetry = 4700

	// MinPkgWebsocket covers the WebSocket framer and
	// permessage-deflate (component J).
	MinPkgWebsocket = 4800

	MinAvailable = 4900

	// MIN_AVAILABLE @Deprecated use MinAvailable constant
	MIN_AVAILABLE = MinAvailable
)
