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

// Package websocket implements the RFC 6455 client framer (masking,
// control frames, fragmentation) plus RFC 7692 permessage-deflate over
// compress/flate's raw DEFLATE, as described in §4.10.
package websocket

import (
	"encoding/binary"
	"io"

	liberr "github.com/sabouaram/gohttp/errors"
)

// Opcode is the 4-bit frame type of RFC 6455 §5.2.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (op Opcode) isControl() bool { return op >= OpClose }

// Frame is one decoded WebSocket frame; Payload is already unmasked.
type Frame struct {
	Fin     bool
	RSV1    bool // set when this frame's payload is DEFLATE-compressed
	Opcode  Opcode
	Payload []byte
}

const maxControlFramePayload = 125

// WriteFrame serializes and masks (client->server frames are always
// masked per §5.1) fr onto w.
func WriteFrame(w io.Writer, fr Frame, maskKey [4]byte) liberr.Error {
	if fr.Opcode.isControl() {
		if len(fr.Payload) > maxControlFramePayload {
			return ErrorControlFrameTooLarge.Error(nil)
		}
		if !fr.Fin {
			return ErrorControlFrameFragmented.Error(nil)
		}
	}

	var header []byte
	b0 := byte(fr.Opcode)
	if fr.Fin {
		b0 |= 0x80
	}
	if fr.RSV1 {
		b0 |= 0x40
	}
	header = append(header, b0)

	n := len(fr.Payload)
	switch {
	case n <= 125:
		header = append(header, 0x80|byte(n))
	case n <= 65535:
		header = append(header, 0x80|126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		header = append(header, ext[:]...)
	default:
		header = append(header, 0x80|127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		header = append(header, ext[:]...)
	}
	header = append(header, maskKey[:]...)

	if _, err := w.Write(header); err != nil {
		return ErrorMalformedFrame.ErrorParent(err)
	}

	masked := make([]byte, n)
	for i, b := range fr.Payload {
		masked[i] = b ^ maskKey[i%4]
	}
	if _, err := w.Write(masked); err != nil {
		return ErrorMalformedFrame.ErrorParent(err)
	}

	return nil
}

// ReadFrame parses one frame arriving from the server, which per §5.1
// must never be masked.
func ReadFrame(r io.Reader) (*Frame, liberr.Error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, ErrorMalformedFrame.ErrorParent(err)
	}

	fin := head[0]&0x80 != 0
	rsv1 := head[0]&0x40 != 0
	rsv2or3 := head[0]&0x30 != 0
	opcode := Opcode(head[0] & 0x0F)
	masked := head[1]&0x80 != 0
	length := int64(head[1] & 0x7F)

	if rsv2or3 {
		return nil, ErrorReservedBitSet.Error(nil)
	}
	if masked {
		return nil, ErrorUnmaskedFrameFromServer.Error(nil)
	}

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, ErrorMalformedFrame.ErrorParent(err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, ErrorMalformedFrame.ErrorParent(err)
		}
		length = int64(binary.BigEndian.Uint64(ext[:]))
	}

	if opcode.isControl() {
		if length > maxControlFramePayload {
			return nil, ErrorControlFrameTooLarge.Error(nil)
		}
		if !fin {
			return nil, ErrorControlFrameFragmented.Error(nil)
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, ErrorMalformedFrame.ErrorParent(err)
		}
	}

	return &Frame{Fin: fin, RSV1: rsv1, Opcode: opcode, Payload: payload}, nil
}
