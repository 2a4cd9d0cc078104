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

import (
	"bytes"
	"compress/flate"
	"io"

	liberr "github.com/sabouaram/gohttp/errors"
)

// deflateTail is the fixed trailer RFC 7692 §7.2.1 says to strip before
// compressing and to re-append before inflating: a single empty
// stored-block (00 00 FF FF).
var deflateTail = []byte{0x00, 0x00, 0xFF, 0xFF}

// PerMessageDeflate implements RFC 7692 using raw (headerless) DEFLATE
// via compress/flate, with no context takeover between messages: each
// message gets a fresh flate.Writer/Reader, matching the
// "client_no_context_takeover" parameter this client always negotiates
// (simpler and bounds per-message state, at the cost of slightly worse
// compression across many small messages).
type PerMessageDeflate struct{}

// Deflate compresses payload per RFC 7692 §7.2.1: raw-deflate, then strip
// the trailing empty stored block.
func (PerMessageDeflate) Deflate(payload []byte) ([]byte, liberr.Error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, ErrorMalformedFrame.ErrorParent(err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, ErrorMalformedFrame.ErrorParent(err)
	}
	if err := w.Close(); err != nil {
		return nil, ErrorMalformedFrame.ErrorParent(err)
	}

	out := buf.Bytes()
	out = bytes.TrimSuffix(out, deflateTail)
	return out, nil
}

// Inflate re-appends the stripped trailer and raw-inflates per §7.2.2.
func (PerMessageDeflate) Inflate(payload []byte) ([]byte, liberr.Error) {
	framed := make([]byte, 0, len(payload)+len(deflateTail))
	framed = append(framed, payload...)
	framed = append(framed, deflateTail...)

	r := flate.NewReader(bytes.NewReader(framed))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrorMalformedFrame.ErrorParent(err)
	}
	return out, nil
}
