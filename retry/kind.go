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

// Package retry implements the recoverability policy (which failures are
// worth retrying on a fresh route/connection) and the follow-up policy
// (which responses demand a second request: redirects, auth challenges,
// 421 Misdirected Request, 503 with Retry-After) described in §4.9/§7.
package retry

// Kind classifies why an exchange failed, for Recoverable's decision.
// These seven kinds are the taxonomy the policy layer reasons about
// everywhere in this client, independent of which package's CodeError
// actually carries the failure on the wire.
type Kind int

const (
	KindProtocolError Kind = iota
	KindIoError
	KindTlsError
	KindAuthError
	KindCancellationError
	KindPoolError
	KindStateError
)

// MaxFollowUps bounds the redirect/auth-challenge chain; exceeding it is a
// protocol error rather than an infinite loop.
const MaxFollowUps = 20

// Recoverable decides whether a failed exchange is worth retrying on a
// different route/connection. IoError (a transport-level failure: reset,
// timeout, broken pipe) is always worth one retry on a fresh connection.
// TlsError is only recoverable when a different route or cipher suite
// fallback is actually available (hasAlternate) — retrying the exact same
// handshake against the exact same route would just fail again.
// PoolError (the pool had nothing to offer and dialing failed) is
// recoverable if there is another route left to try. ProtocolError,
// AuthError, CancellationError and StateError are never retried: they are
// either the peer behaving correctly (wrong credentials), the
// application's own request (cancellation), or a bug (state error).
func Recoverable(kind Kind, hasAlternate bool) bool {
	switch kind {
	case KindIoError:
		return true
	case KindTlsError:
		return hasAlternate
	case KindPoolError:
		return hasAlternate
	default:
		return false
	}
}

// IsHandshakeFallbackSafe reports whether a TLS ConnectionSpec fallback
// retry (downgrading to an older protocol/cipher suite set) is safe for
// this request: only when no request body has left the application yet,
// since a fallback means opening a brand-new connection and replaying the
// request from scratch.
func IsHandshakeFallbackSafe(bodyBytesSent int64) bool {
	return bodyBytesSent == 0
}
