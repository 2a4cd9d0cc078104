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

import "github.com/sabouaram/gohttp/errors"

const (
	ErrorNoConnection errors.CodeError = iota + errors.MinPkgConnection
	ErrorConnectFailed
	ErrorHandshakeFailed
	ErrorNoNewExchanges
	ErrorPoolExhausted
)

func init() {
	errors.RegisterIdFctMessage(ErrorNoConnection, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorNoConnection:
		return "no connection available"
	case ErrorConnectFailed:
		return "failed to establish transport connection"
	case ErrorHandshakeFailed:
		return "tls handshake failed for every connection spec"
	case ErrorNoNewExchanges:
		return "connection no longer accepts new exchanges"
	case ErrorPoolExhausted:
		return "connection pool could not provide a usable connection"
	}

	return ""
}
