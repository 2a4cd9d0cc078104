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

package retry

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/interceptor"
)

// Decision is what Plan recommends after looking at a response.
type Decision struct {
	// Retry is false when resp should simply be returned to the caller.
	Retry bool

	// Request is the follow-up request to send when Retry is true; it is
	// nil for 401/407, where the caller builds the follow-up itself.
	Request *interceptor.Request

	// RevokeCoalescing is true for 421 Misdirected Request: the
	// connection's coalescing must be revoked and the follow-up forced
	// onto a fresh, non-coalesced connection.
	RevokeCoalescing bool

	// Delay is how long to wait before sending Request: jittered backoff
	// for redirects and 408, zero for every other follow-up.
	Delay time.Duration
}

// Plan decides what to do with resp, given the request that produced it,
// how many follow-ups have already happened on this call (attempt, 0 for
// the very first response), and the status codes of every earlier
// response on this same call — needed to cap 408/503 at a single retry
// each (§4.7).
func Plan(resp *interceptor.Response, attempt int, priorStatusCodes []int) (*Decision, liberr.Error) {
	if attempt >= MaxFollowUps {
		return nil, ErrorTooManyFollowUps.Error(nil)
	}

	req := resp.Request

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return planRedirect(resp, req, attempt)

	case http.StatusUnauthorized, http.StatusProxyAuthRequired:
		// The caller (httpcli) is responsible for consulting its
		// Authenticator and producing the credentialed follow-up; Plan
		// only confirms a retry is sanctioned and leaves Request nil to
		// signal "caller must build it".
		return &Decision{Retry: true}, nil

	case http.StatusRequestTimeout:
		return planRequestTimeout(resp, req, attempt, priorStatusCodes)

	case http.StatusServiceUnavailable:
		return planServiceUnavailable(req, resp, priorStatusCodes)

	case http.StatusMisdirectedRequest:
		return &Decision{Retry: true, Request: req, RevokeCoalescing: true}, nil

	default:
		return &Decision{Retry: false}, nil
	}
}

// planRequestTimeout retries a 408 at most once: never if a prior
// response on this call was already a 408, never if req's body can't be
// safely resent, and never if the server asked for a specific delay via
// Retry-After (that case is left to the caller/backoff policy rather than
// an automatic retry).
func planRequestTimeout(resp *interceptor.Response, req *interceptor.Request, attempt int, priorStatusCodes []int) (*Decision, liberr.Error) {
	if seenStatus(priorStatusCodes, http.StatusRequestTimeout) {
		return &Decision{Retry: false}, nil
	}
	if !canRetryBody(req) {
		return &Decision{Retry: false}, nil
	}
	if delay, ok := retryAfterDelay(resp); ok && delay > 0 {
		return &Decision{Retry: false}, nil
	}
	return &Decision{Retry: true, Request: req, Delay: backoffDelay(attempt)}, nil
}

// planServiceUnavailable retries a 503 only when the server explicitly
// asks for an immediate retry (Retry-After: 0) and this call hasn't
// already retried a 503 once; any other 503 — no Retry-After, or one with
// an actual delay — is handed back to the caller instead.
func planServiceUnavailable(req *interceptor.Request, resp *interceptor.Response, priorStatusCodes []int) (*Decision, liberr.Error) {
	if seenStatus(priorStatusCodes, http.StatusServiceUnavailable) {
		return &Decision{Retry: false}, nil
	}
	delay, ok := retryAfterDelay(resp)
	if !ok || delay != 0 {
		return &Decision{Retry: false}, nil
	}
	return &Decision{Retry: true, Request: req, Delay: 0}, nil
}

func seenStatus(priorStatusCodes []int, code int) bool {
	for _, c := range priorStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// canRetryBody reports whether req's body can be safely resent: nil
// bodies are always fine, and an io.Seeker can be rewound to its start;
// anything else is a one-shot stream that has likely already been
// consumed writing the failed attempt.
func canRetryBody(req *interceptor.Request) bool {
	if req.Body == nil {
		return true
	}
	seeker, ok := req.Body.(io.Seeker)
	if !ok {
		return false
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err == nil
}

func planRedirect(resp *interceptor.Response, req *interceptor.Request, attempt int) (*Decision, liberr.Error) {
	location, ok := resp.HeaderValue("Location")
	if !ok {
		return nil, ErrorNoLocationHeader.Error(nil)
	}

	target, err := url.Parse(location)
	if err != nil {
		return nil, ErrorNoLocationHeader.ErrorParent(err)
	}
	resolved := req.URL.ResolveReference(target)

	method := req.Method
	var body = req.Body
	contentLength := req.ContentLength

	if resp.StatusCode == http.StatusSeeOther ||
		((resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound) &&
			method != http.MethodGet && method != http.MethodHead) {
		method = http.MethodGet
		body = nil
		contentLength = 0
	}

	header := req.Header
	if crossHost(req.URL, resolved) {
		header = stripAuthHeaders(req.Header)
	}

	out := &interceptor.Request{
		Method:        method,
		URL:           resolved,
		Header:        header,
		Body:          body,
		ContentLength: contentLength,
	}

	return &Decision{Retry: true, Request: out, Delay: backoffDelay(attempt)}, nil
}

// crossHost reports whether a redirect leaves the original request's host
// (per RFC 7231's implicit expectation that credentials aren't handed to
// an arbitrary third party just because it issued a 3xx).
func crossHost(from, to *url.URL) bool {
	return !strings.EqualFold(from.Hostname(), to.Hostname())
}

var redirectDroppedHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie"}

// stripAuthHeaders drops authentication/session headers that must not
// follow a cross-host redirect (§4.7).
func stripAuthHeaders(header []interceptor.Header) []interceptor.Header {
	out := make([]interceptor.Header, 0, len(header))
	for _, h := range header {
		dropped := false
		for _, name := range redirectDroppedHeaders {
			if strings.EqualFold(h.Name, name) {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, h)
		}
	}
	return out
}

// retryAfterDelay parses a numeric (delta-seconds) Retry-After header; an
// absent header, or one using the HTTP-date form, reports ok=false so
// callers fall back to their own policy rather than guessing at a delay
// (an Open Question this client resolves by not special-casing HTTP-date
// beyond "no explicit delay was given").
func retryAfterDelay(resp *interceptor.Response) (time.Duration, bool) {
	v, ok := resp.HeaderValue("Retry-After")
	if !ok {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// backoffDelay reuses go-retryablehttp's jittered linear backoff so every
// retry policy in this client shares the same spread-out retry cadence.
func backoffDelay(attempt int) time.Duration {
	return retryablehttp.LinearJitterBackoff(200*time.Millisecond, 5*time.Second, attempt, &http.Response{})
}
