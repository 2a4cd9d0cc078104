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

package websocket

import "github.com/sabouaram/gohttp/errors"

const (
	ErrorMalformedFrame errors.CodeError = iota + errors.MinPkgWebsocket
	ErrorControlFrameTooLarge
	ErrorControlFrameFragmented
	ErrorUnmaskedFrameFromServer
	ErrorReservedBitSet
	ErrorCloseCodeInvalid
	ErrorConnectionClosed
)

func init() {
	errors.RegisterIdFctMessage(ErrorMalformedFrame, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorMalformedFrame:
		return "malformed websocket frame"
	case ErrorControlFrameTooLarge:
		return "control frame payload exceeds 125 bytes"
	case ErrorControlFrameFragmented:
		return "control frames must not be fragmented"
	case ErrorUnmaskedFrameFromServer:
		return "server frame must not be masked"
	case ErrorReservedBitSet:
		return "reserved bit set without a negotiated extension"
	case ErrorCloseCodeInvalid:
		return "invalid websocket close code"
	case ErrorConnectionClosed:
		return "websocket connection is closed"
	}

	return ""
}
