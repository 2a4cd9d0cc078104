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

import "strings"

// RequestHeaderFields builds the HeaderField slice for a client request in
// the order §4.4 requires: the four pseudo-headers first (:method,
// :scheme, :authority, :path), then the regular fields with their names
// lower-cased, since HTTP/2 forbids mixed-case header names on the wire.
func RequestHeaderFields(method, scheme, authority, path string, header []HeaderField) []HeaderField {
	fields := make([]HeaderField, 0, len(header)+4)
	fields = append(fields,
		HeaderField{Name: ":method", Value: method},
		HeaderField{Name: ":scheme", Value: scheme},
		HeaderField{Name: ":authority", Value: authority},
		HeaderField{Name: ":path", Value: path},
	)

	for _, h := range header {
		if strings.HasPrefix(h.Name, ":") {
			continue
		}
		fields = append(fields, HeaderField{Name: strings.ToLower(h.Name), Value: h.Value})
	}

	return fields
}

// ResponseStatus extracts the :status pseudo-header from a decoded
// response HEADERS block.
func ResponseStatus(fields []HeaderField) (string, bool) {
	for _, f := range fields {
		if f.Name == ":status" {
			return f.Value, true
		}
	}
	return "", false
}
