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
	"fmt"

	liberr "github.com/sabouaram/gohttp/errors"
)

// Error codes for the public Client/Call surface: everything that can go
// wrong before or after the interceptor chain runs (bad URL, exhausted
// routes, double-Execute, a capability returning garbage).
const (
	ErrorInvalidURL liberr.CodeError = iota + liberr.MinPkgHttpCli
	ErrorValidatorError
	ErrorAlreadyExecuted
	ErrorNoRouteReachable
	ErrorDial
	ErrorTLSHandshake
	ErrorWebSocketUpgradeRejected
	ErrorWebSocketUpgradeMalformed
	ErrorCanceled
)

func init() {
	if liberr.ExistInMapMessage(ErrorInvalidURL) {
		panic(fmt.Errorf("error code collision with package gohttp/httpcli"))
	}
	liberr.RegisterIdFctMessage(ErrorInvalidURL, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorInvalidURL:
		return "request url is missing or invalid"
	case ErrorValidatorError:
		return "client options failed validation"
	case ErrorAlreadyExecuted:
		return "call has already been executed or enqueued"
	case ErrorNoRouteReachable:
		return "no route reached the server"
	case ErrorDial:
		return "error dialing a new connection"
	case ErrorTLSHandshake:
		return "tls handshake failed"
	case ErrorWebSocketUpgradeRejected:
		return "server did not accept the websocket upgrade"
	case ErrorWebSocketUpgradeMalformed:
		return "server's websocket upgrade response is malformed"
	case ErrorCanceled:
		return "call was canceled"
	}

	return liberr.NullMessage
}
