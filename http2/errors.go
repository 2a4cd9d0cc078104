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

package http2

import "github.com/sabouaram/gohttp/errors"

const (
	ErrorProtocol errors.CodeError = iota + errors.MinPkgHttp2
	ErrorFlowControlUnderflow
	ErrorStreamClosed
	ErrorGoAway
	ErrorPingTimeout
	ErrorStreamRefused
)

func init() {
	errors.RegisterIdFctMessage(ErrorProtocol, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorProtocol:
		return "http/2 protocol error"
	case ErrorFlowControlUnderflow:
		return "http/2 flow control window underflow"
	case ErrorStreamClosed:
		return "http/2 stream is closed"
	case ErrorGoAway:
		return "http/2 connection received GOAWAY"
	case ErrorPingTimeout:
		return "http/2 ping watchdog timed out"
	case ErrorStreamRefused:
		return "http/2 stream refused after GOAWAY"
	}

	return ""
}
