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

package http1

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// chunkedReader decodes `Transfer-Encoding: chunked` per §4.3: each chunk
// is `hex-length CRLF octets CRLF`, terminated by a zero-length chunk
// followed by a trailer section (read and discarded) and a final CRLF.
type chunkedReader struct {
	br        *bufio.Reader
	remaining int64
	err       error
	sawEOF    bool
}

func newChunkedReader(br *bufio.Reader) *chunkedReader {
	return &chunkedReader{br: br}
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	if r.remaining == 0 {
		if r.sawEOF {
			return 0, io.EOF
		}
		if err := r.nextChunkSize(); err != nil {
			r.err = err
			return 0, err
		}
		if r.remaining == 0 {
			r.sawEOF = true
			if err := r.readTrailer(); err != nil {
				r.err = err
				return 0, err
			}
			return 0, io.EOF
		}
	}

	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.br.Read(p)
	r.remaining -= int64(n)

	if err != nil {
		r.err = err
		return n, err
	}

	if r.remaining == 0 {
		if _, err := readCRLF(r.br); err != nil {
			r.err = err
			return n, err
		}
	}

	return n, nil
}

func (r *chunkedReader) nextChunkSize() error {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return err
	}

	line = trimCRLF(line)
	if i := bytes.IndexByte([]byte(line), ';'); i >= 0 {
		line = line[:i]
	}

	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil {
		return ErrorMalformedChunk.ErrorParent(err)
	}

	r.remaining = size
	return nil
}

// readTrailer consumes trailer header lines (none are surfaced to the
// caller; trailers after chunked bodies are rare and out of scope for
// this client) up to and including the terminating blank line.
func (r *chunkedReader) readTrailer() error {
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			return err
		}
		if trimCRLF(line) == "" {
			return nil
		}
	}
}

func readCRLF(br *bufio.Reader) (string, error) {
	return br.ReadString('\n')
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
