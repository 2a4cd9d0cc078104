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
	"context"
	"crypto/rand"
	"net"
	"sync"
	"time"

	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/runner"
)

// MessageHandler receives reassembled, (if applicable) inflated messages.
type MessageHandler interface {
	OnText(s string)
	OnBinary(b []byte)
	OnClosed(code int, reason string)
	OnFailure(err liberr.Error)
}

// Conn is a live WebSocket connection: frame I/O, message reassembly
// across fragments, and a ping watchdog scheduled on a runner.Queue.
type Conn struct {
	raw      net.Conn
	deflate  *PerMessageDeflate
	handler  MessageHandler
	pingQ    *runner.Queue
	interval time.Duration

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	awaitingPong bool
}

// New wraps an already-upgraded (HTTP/1.1 101 Switching Protocols) socket.
// deflate is non-nil iff the client and server negotiated
// permessage-deflate during the handshake.
func New(raw net.Conn, deflate *PerMessageDeflate, handler MessageHandler, pingQ *runner.Queue, pingInterval time.Duration) *Conn {
	c := &Conn{raw: raw, deflate: deflate, handler: handler, pingQ: pingQ, interval: pingInterval}
	if pingQ != nil && pingInterval > 0 {
		c.schedulePing()
	}
	return c
}

func maskKey() [4]byte {
	var k [4]byte
	_, _ = rand.Read(k[:])
	return k
}

// SendText sends a single-frame text message, compressed if
// permessage-deflate was negotiated.
func (c *Conn) SendText(s string) liberr.Error {
	return c.send(OpText, []byte(s))
}

// SendBinary sends a single-frame binary message.
func (c *Conn) SendBinary(b []byte) liberr.Error {
	return c.send(OpBinary, b)
}

func (c *Conn) send(op Opcode, payload []byte) liberr.Error {
	rsv1 := false
	if c.deflate != nil {
		compressed, err := c.deflate.Deflate(payload)
		if err != nil {
			return err
		}
		payload = compressed
		rsv1 = true
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.raw, Frame{Fin: true, RSV1: rsv1, Opcode: op, Payload: payload}, maskKey())
}

// Ping sends an unsolicited PING control frame.
func (c *Conn) Ping(payload []byte) liberr.Error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.raw, Frame{Fin: true, Opcode: OpPing, Payload: payload}, maskKey())
}

// Close sends a CLOSE control frame carrying code/reason and marks the
// connection closed; the caller is still responsible for closing raw once
// the peer's own CLOSE frame (or EOF) has been observed.
func (c *Conn) Close(code int, reason string) liberr.Error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	payload := encodeCloseFrame(code, reason)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.raw, Frame{Fin: true, Opcode: OpClose, Payload: payload}, maskKey())
}

func encodeCloseFrame(code int, reason string) []byte {
	if code == 0 {
		return nil
	}
	out := make([]byte, 2+len(reason))
	out[0] = byte(code >> 8)
	out[1] = byte(code)
	copy(out[2:], reason)
	return out
}

func decodeCloseFrame(payload []byte) (code int, reason string) {
	if len(payload) < 2 {
		return 1005, "" // "no status code present" per RFC 6455 §7.1.5
	}
	code = int(payload[0])<<8 | int(payload[1])
	reason = string(payload[2:])
	return code, reason
}

// ReadLoop reads frames until the connection closes, reassembling
// fragmented messages and answering PING with PONG / tracking PONG
// replies for the ping watchdog, then delivers reassembled messages to
// handler. Meant to run on its own goroutine for the Conn's lifetime.
func (c *Conn) ReadLoop() {
	var assembling bool
	var assembledOp Opcode
	var buf []byte
	var rsv1 bool

	for {
		fr, err := ReadFrame(c.raw)
		if err != nil {
			c.handler.OnFailure(err)
			return
		}

		switch fr.Opcode {
		case OpPing:
			c.writeMu.Lock()
			_ = WriteFrame(c.raw, Frame{Fin: true, Opcode: OpPong, Payload: fr.Payload}, maskKey())
			c.writeMu.Unlock()
			continue

		case OpPong:
			c.mu.Lock()
			c.awaitingPong = false
			c.mu.Unlock()
			continue

		case OpClose:
			code, reason := decodeCloseFrame(fr.Payload)
			c.handler.OnClosed(code, reason)
			return
		}

		if fr.Opcode != OpContinuation {
			assembling = true
			assembledOp = fr.Opcode
			rsv1 = fr.RSV1
			buf = append(buf[:0], fr.Payload...)
		} else if assembling {
			buf = append(buf, fr.Payload...)
		}

		if !fr.Fin {
			continue
		}
		assembling = false

		payload := buf
		if rsv1 && c.deflate != nil {
			inflated, ierr := c.deflate.Inflate(payload)
			if ierr != nil {
				c.handler.OnFailure(ierr)
				return
			}
			payload = inflated
		}

		switch assembledOp {
		case OpText:
			c.handler.OnText(string(payload))
		case OpBinary:
			c.handler.OnBinary(payload)
		}
	}
}

func (c *Conn) schedulePing() {
	task := &runner.Task{
		Name:       "websocket-ping",
		Cancelable: true,
		Run: func(ctx context.Context) time.Duration {
			c.mu.Lock()
			stale := c.awaitingPong
			c.awaitingPong = true
			closed := c.closed
			c.mu.Unlock()

			if closed {
				return runner.NoRequeue
			}
			if stale {
				_ = c.Close(1001, "ping timeout")
				_ = c.raw.Close()
				return runner.NoRequeue
			}

			_ = c.Ping(nil)
			return c.interval
		},
	}
	_ = c.pingQ.Schedule(task, c.interval)
}
