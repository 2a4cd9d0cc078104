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

import (
	"io"
	"sync"

	liberr "github.com/sabouaram/gohttp/errors"
)

// StreamState is one of the RFC 7540 §5.1 stream states this client ever
// observes; PushPromise related states are tracked but pushed streams are
// refused outright (see Engine.handlePushPromise).
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

// Stream is one HTTP/2 request/response exchange multiplexed onto a
// connection: a client-initiated (odd) stream id, its own pair of
// flow-control windows, and a pipe the Engine feeds DATA frames into for
// the application to read.
type Stream struct {
	mu sync.Mutex

	ID    uint32
	state StreamState

	sendWindow *WindowCounter
	recvWindow *WindowCounter

	sendWindowSize int64
	recvWindowSize int64

	body       *io.PipeReader
	bodyWriter *io.PipeWriter

	header    []HeaderField
	headerCh  chan struct{}
	headerSet bool

	rstCode  uint32
	rstErr   liberr.Error
}

// HeaderField mirrors hpack.HeaderField without importing hpack into the
// public stream API (keeps Stream usable from tests with zero hpack
// knowledge).
type HeaderField struct {
	Name, Value string
}

func newStream(id uint32, sendWindowSize, recvWindowSize int64) *Stream {
	pr, pw := io.Pipe()
	return &Stream{
		ID:             id,
		state:          StreamIdle,
		sendWindow:     &WindowCounter{},
		recvWindow:     &WindowCounter{},
		sendWindowSize: sendWindowSize,
		recvWindowSize: recvWindowSize,
		body:           pr,
		bodyWriter:     pw,
		headerCh:       make(chan struct{}),
	}
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// openLocal transitions idle -> open on the client sending HEADERS
// (without END_STREAM).
func (s *Stream) openLocal() liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StreamIdle {
		return ErrorProtocol.Error(nil)
	}
	s.state = StreamOpen
	return nil
}

// halfCloseLocal transitions open -> half-closed (local) or
// half-closed (remote) -> closed, on the client sending END_STREAM.
func (s *Stream) halfCloseLocal() liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StreamIdle, StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	default:
		return ErrorStreamClosed.Error(nil)
	}
	return nil
}

// halfCloseRemote transitions open -> half-closed (remote) or
// half-closed (local) -> closed, on receiving END_STREAM from the peer.
// The body pipe is closed separately, by closeBody.
func (s *Stream) halfCloseRemote() liberr.Error {
	s.mu.Lock()
	switch s.state {
	case StreamIdle, StreamOpen:
		s.state = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	default:
		s.mu.Unlock()
		return ErrorStreamClosed.Error(nil)
	}
	s.mu.Unlock()
	return nil
}

// reset transitions any state to closed, unblocking the body reader with
// the given error.
func (s *Stream) reset(code uint32, err liberr.Error) {
	s.mu.Lock()
	s.state = StreamClosed
	s.rstCode = code
	s.rstErr = err
	s.mu.Unlock()
	_ = s.bodyWriter.CloseWithError(err)
	s.sendWindow.broadcast()
}

func (s *Stream) isOpenForData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StreamOpen || s.state == StreamHalfClosedLocal
}

// Body is the io.ReadCloser the Exchange layer reads DATA frame payloads
// from; it reports io.EOF once the peer's END_STREAM arrives.
func (s *Stream) Body() io.ReadCloser { return s.body }

func (s *Stream) feed(p []byte) error {
	_, err := s.bodyWriter.Write(p)
	return err
}

func (s *Stream) closeBody() {
	_ = s.bodyWriter.Close()
}

func (s *Stream) deliverHeader(fields []HeaderField) {
	s.mu.Lock()
	if s.headerSet {
		s.mu.Unlock()
		return
	}
	s.header = fields
	s.headerSet = true
	ch := s.headerCh
	s.mu.Unlock()
	close(ch)
}

// WaitHeader blocks until the response HEADERS frame has been decoded.
func (s *Stream) WaitHeader() []HeaderField {
	<-s.headerCh
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}
