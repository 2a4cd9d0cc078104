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

// Package http2 implements the HTTP/2 engine: one Engine per physical
// connection multiplexes many Streams over a single golang.org/x/net/http2
// Framer, using golang.org/x/net/http2/hpack for header (de)compression
// and a pair of per-direction flow-control windows (connection-level and
// per-stream), matching §4.4's framing, HPACK, stream state machine and
// flow-control description.
package http2

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/runner"
)

const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// defaultConnWindow is the connection-level flow-control window's fixed
// baseline: unlike a stream's window, the connection window is never
// affected by SETTINGS_INITIAL_WINDOW_SIZE, only by WINDOW_UPDATE (§4.4,
// RFC 7540 §6.9.2).
const defaultConnWindow = 65535

// Options mirrors the SETTINGS parameters this client advertises; zero
// values fall back to the documented defaults.
type Options struct {
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	HeaderTableSize      uint32
	Strategy             ReceiverStrategy
	PingInterval         time.Duration
	PingTimeout          time.Duration
}

func defaultOptions(o Options) Options {
	if o.MaxConcurrentStreams == 0 {
		o.MaxConcurrentStreams = 100
	}
	if o.InitialWindowSize == 0 {
		o.InitialWindowSize = DefaultClientWindow
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = 16384
	}
	if o.HeaderTableSize == 0 {
		o.HeaderTableSize = 4096
	}
	if o.Strategy == nil {
		o.Strategy = DefaultStrategy{}
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = 10 * time.Second
	}
	return o
}

// Engine is the HTTP/2 connection-level codec; it implements
// connection.Codec (IsMultiplexed, MaxConcurrentStreams, Close) without
// importing the connection package, per the interface's doc comment.
type Engine struct {
	mu sync.Mutex

	conn   net.Conn
	framer *http2.Framer

	henc *hpack.Encoder
	hbuf bytes.Buffer
	hdec *hpack.Decoder

	opts Options

	nextStreamID uint32
	streams      map[uint32]*Stream

	peerMaxConcurrentStreams uint32
	peerInitialWindowSize    uint32

	connSendWindow *WindowCounter
	connRecvWindow *WindowCounter

	closed   bool
	goAway   bool
	lastGood uint32

	pingQueue   *runner.Queue
	pingPending map[uint64]chan struct{}
	pingSeq     uint64

	writeMu sync.Mutex
}

// Dial writes the HTTP/2 connection preface and the client's initial
// SETTINGS frame, then returns a usable Engine; the peer's SETTINGS and
// its ACK (and everything else) are consumed once the caller starts
// ReadLoop. conn must already be past TLS/ALPN negotiation (or be a
// plaintext h2c socket in tests).
func Dial(conn net.Conn, opts Options, pingQueue *runner.Queue) (*Engine, liberr.Error) {
	opts = defaultOptions(opts)

	e := &Engine{
		conn:                     conn,
		framer:                   http2.NewFramer(conn, conn),
		opts:                     opts,
		nextStreamID:             1,
		streams:                  make(map[uint32]*Stream),
		peerMaxConcurrentStreams: 100,
		peerInitialWindowSize:    65535,
		connSendWindow:           &WindowCounter{},
		connRecvWindow:           &WindowCounter{},
		pingQueue:                pingQueue,
		pingPending:              make(map[uint64]chan struct{}),
	}
	e.connRecvWindow.Add(int64(opts.InitialWindowSize))

	e.henc = hpack.NewEncoder(&e.hbuf)
	e.hdec = hpack.NewDecoder(int(opts.HeaderTableSize), nil)

	if _, err := io.WriteString(conn, clientPreface); err != nil {
		return nil, ErrorProtocol.ErrorParent(err)
	}

	if err := e.framer.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: opts.MaxConcurrentStreams},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: opts.InitialWindowSize},
		http2.Setting{ID: http2.SettingMaxFrameSize, Val: opts.MaxFrameSize},
		http2.Setting{ID: http2.SettingHeaderTableSize, Val: opts.HeaderTableSize},
	); err != nil {
		return nil, ErrorProtocol.ErrorParent(err)
	}

	if e.pingQueue != nil && opts.PingInterval > 0 {
		e.scheduleNextPing()
	}

	return e, nil
}

func (e *Engine) IsMultiplexed() bool { return true }

func (e *Engine) MaxConcurrentStreams() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.peerMaxConcurrentStreams)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	streams := make([]*Stream, 0, len(e.streams))
	for _, st := range e.streams {
		streams = append(streams, st)
	}
	e.mu.Unlock()

	e.writeMu.Lock()
	_ = e.framer.WriteGoAway(e.lastGood, http2.ErrCodeNo, nil)
	e.writeMu.Unlock()

	e.connSendWindow.broadcast()
	for _, st := range streams {
		st.sendWindow.broadcast()
	}

	if e.pingQueue != nil {
		e.pingQueue.CancelAll()
	}

	return e.conn.Close()
}

// OpenStream allocates the next client-initiated (odd) stream id and
// sends HEADERS for it, HPACK-encoding fields in the order given; the
// pseudo-header-first, lower-cased list is built by RequestHeaderFields.
func (e *Engine) OpenStream(fields []HeaderField, endStream bool) (*Stream, liberr.Error) {
	e.mu.Lock()
	if e.goAway {
		e.mu.Unlock()
		return nil, ErrorStreamRefused.Error(nil)
	}
	if uint32(len(e.streams)) >= e.peerMaxConcurrentStreams {
		e.mu.Unlock()
		return nil, ErrorStreamRefused.Error(nil)
	}

	id := e.nextStreamID
	e.nextStreamID += 2

	st := newStream(id, int64(e.peerInitialWindowSize), int64(e.opts.InitialWindowSize))
	e.streams[id] = st
	e.mu.Unlock()

	if err := st.openLocal(); err != nil {
		return nil, err
	}

	e.hbuf.Reset()
	for _, f := range fields {
		if err := e.henc.WriteField(hpack.HeaderField{Name: f.Name, Value: f.Value}); err != nil {
			return nil, ErrorProtocol.ErrorParent(err)
		}
	}

	e.writeMu.Lock()
	err := e.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: e.hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     endStream,
	})
	e.writeMu.Unlock()
	if err != nil {
		return nil, ErrorProtocol.ErrorParent(err)
	}

	if endStream {
		_ = st.halfCloseLocal()
	}

	return st, nil
}

// WriteData sends p as one or more DATA frames, blocking as needed until
// both the stream's and the connection's send windows have credit: each
// chunk is capped to MaxFrameSize and to min(connectionCredit,
// streamCredit), and a chunk that finds zero credit waits for a
// WINDOW_UPDATE (delivered via handleWindowUpdate -> Acknowledge) before
// retrying, per §4.4's "sender must wait" requirement.
func (e *Engine) WriteData(st *Stream, p []byte, endStream bool) liberr.Error {
	if !st.isOpenForData() {
		return ErrorStreamClosed.Error(nil)
	}

	maxFrame := int64(e.opts.MaxFrameSize)
	abort := func() bool {
		if !st.isOpenForData() {
			return true
		}
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		return closed
	}

	for len(p) > 0 {
		want := int64(len(p))
		if want > maxFrame {
			want = maxFrame
		}

		n, err := e.reserveSendCredit(st, want, abort)
		if err != nil {
			return err
		}

		chunk := p[:n]
		last := int64(len(p)) == n

		e.writeMu.Lock()
		werr := e.framer.WriteData(st.ID, endStream && last, chunk)
		e.writeMu.Unlock()
		if werr != nil {
			st.sendWindow.release(n)
			e.connSendWindow.release(n)
			return ErrorProtocol.ErrorParent(werr)
		}

		p = p[n:]
	}

	if endStream {
		return st.halfCloseLocal()
	}
	return nil
}

// reserveSendCredit blocks until st's stream window and the connection
// window both have at least 1 byte of credit, reserves min(want,
// available) of it on both counters atomically with respect to each
// counter (though not across the pair, so a partial stream reservation
// that the connection window can't match is released back), and returns
// the number of bytes actually claimed.
func (e *Engine) reserveSendCredit(st *Stream, want int64, abort func() bool) (int64, liberr.Error) {
	for {
		if abort() {
			return 0, ErrorStreamClosed.Error(nil)
		}

		streamN := st.sendWindow.reserve(st.sendWindowSize, want)
		if streamN == 0 {
			st.sendWindow.waitForChange(abort)
			continue
		}

		connN := e.connSendWindow.reserve(defaultConnWindow, streamN)
		if connN == 0 {
			st.sendWindow.release(streamN)
			e.connSendWindow.waitForChange(abort)
			continue
		}
		if connN < streamN {
			st.sendWindow.release(streamN - connN)
		}

		return connN, nil
	}
}

// CancelStream sends RST_STREAM(CANCEL) for st and tears down its local
// state; used when the application cancels an in-flight exchange.
func (e *Engine) CancelStream(st *Stream) liberr.Error {
	e.writeMu.Lock()
	err := e.framer.WriteRSTStream(st.ID, http2.ErrCodeCancel)
	e.writeMu.Unlock()

	st.reset(uint32(http2.ErrCodeCancel), ErrorStreamClosed.Error(nil))

	if err != nil {
		return ErrorProtocol.ErrorParent(err)
	}
	return nil
}

// ReadLoop pumps frames off the wire until the connection closes or a
// connection-level error occurs; it is meant to run on its own goroutine
// for the lifetime of the Engine.
func (e *Engine) ReadLoop() error {
	for {
		f, err := e.framer.ReadFrame()
		if err != nil {
			e.failAllStreams(ErrorProtocol.ErrorParent(err))
			return err
		}

		switch fr := f.(type) {
		case *http2.SettingsFrame:
			e.handleSettings(fr)
		case *http2.HeadersFrame:
			e.handleHeaders(fr)
		case *http2.DataFrame:
			e.handleData(fr)
		case *http2.WindowUpdateFrame:
			e.handleWindowUpdate(fr)
		case *http2.RSTStreamFrame:
			e.handleRSTStream(fr)
		case *http2.GoAwayFrame:
			e.handleGoAway(fr)
		case *http2.PingFrame:
			e.handlePing(fr)
		case *http2.PushPromiseFrame:
			e.handlePushPromise(fr)
		}
	}
}

func (e *Engine) handleSettings(fr *http2.SettingsFrame) {
	if fr.IsAck() {
		return
	}

	e.mu.Lock()
	_ = fr.ForeachSetting(func(s http2.Setting) error {
		switch s.ID {
		case http2.SettingMaxConcurrentStreams:
			e.peerMaxConcurrentStreams = s.Val
		case http2.SettingInitialWindowSize:
			e.peerInitialWindowSize = s.Val
		}
		return nil
	})
	e.mu.Unlock()

	e.writeMu.Lock()
	_ = e.framer.WriteSettingsAck()
	e.writeMu.Unlock()
}

func (e *Engine) handleHeaders(fr *http2.HeadersFrame) {
	hf, err := e.hdec.DecodeFull(fr.HeaderBlockFragment())
	if err != nil {
		return
	}

	fields := make([]HeaderField, 0, len(hf))
	for _, h := range hf {
		fields = append(fields, HeaderField{Name: h.Name, Value: h.Value})
	}

	e.mu.Lock()
	st := e.streams[fr.StreamID]
	e.mu.Unlock()
	if st == nil {
		return
	}

	st.deliverHeader(fields)

	if fr.StreamEnded() {
		st.closeBody()
		_ = st.halfCloseRemote()
	}
}

func (e *Engine) handleData(fr *http2.DataFrame) {
	e.mu.Lock()
	st := e.streams[fr.StreamID]
	e.mu.Unlock()
	if st == nil {
		return
	}

	n := len(fr.Data())
	if n > 0 {
		_ = st.feed(fr.Data())
		e.opts.Strategy.OnBytesArrived(e.connRecvWindow, int64(e.opts.InitialWindowSize), int64(n))
		e.opts.Strategy.OnBytesArrived(st.recvWindow, st.recvWindowSize, int64(n))
	}

	if fr.StreamEnded() {
		st.closeBody()
		_ = st.halfCloseRemote()
	}
}

// ConsumeAck is called by the Exchange layer as it reads bytes out of a
// stream body; it issues WINDOW_UPDATE frames per the configured
// ReceiverStrategy.
func (e *Engine) ConsumeAck(st *Stream, n int64) {
	if release := e.opts.Strategy.OnBytesConsumed(st.recvWindow, st.recvWindowSize, n); release > 0 {
		e.writeMu.Lock()
		_ = e.framer.WriteWindowUpdate(st.ID, uint32(release))
		e.writeMu.Unlock()
	}
	if release := e.opts.Strategy.OnBytesConsumed(e.connRecvWindow, int64(e.opts.InitialWindowSize), n); release > 0 {
		e.writeMu.Lock()
		_ = e.framer.WriteWindowUpdate(0, uint32(release))
		e.writeMu.Unlock()
	}
}

func (e *Engine) handleWindowUpdate(fr *http2.WindowUpdateFrame) {
	if fr.StreamID == 0 {
		e.connSendWindow.Acknowledge(int64(fr.Increment))
		return
	}
	e.mu.Lock()
	st := e.streams[fr.StreamID]
	e.mu.Unlock()
	if st != nil {
		st.sendWindow.Acknowledge(int64(fr.Increment))
	}
}

func (e *Engine) handleRSTStream(fr *http2.RSTStreamFrame) {
	e.mu.Lock()
	st := e.streams[fr.StreamID]
	e.mu.Unlock()
	if st != nil {
		st.reset(uint32(fr.ErrCode), ErrorStreamClosed.Error(nil))
	}
}

// handleGoAway marks streams above the peer's last-processed id as
// refused (safe to retry on a new connection) and stops new stream
// allocation on this one.
func (e *Engine) handleGoAway(fr *http2.GoAwayFrame) {
	e.mu.Lock()
	e.goAway = true
	for id, st := range e.streams {
		if id > fr.LastStreamID {
			st.reset(uint32(http2.ErrCodeRefusedStream), ErrorStreamRefused.Error(nil))
		}
	}
	e.mu.Unlock()
}

func (e *Engine) handlePing(fr *http2.PingFrame) {
	if fr.IsAck() {
		e.mu.Lock()
		var key uint64
		for i, b := range fr.Data {
			key |= uint64(b) << (8 * uint(i))
		}
		ch, ok := e.pingPending[key]
		if ok {
			delete(e.pingPending, key)
		}
		e.mu.Unlock()
		if ok {
			close(ch)
		}
		return
	}

	e.writeMu.Lock()
	_ = e.framer.WritePing(true, fr.Data)
	e.writeMu.Unlock()
}

// handlePushPromise refuses every pushed stream outright: this client has
// no cache to satisfy a push into, matching §4.4's "no server push"
// decision.
func (e *Engine) handlePushPromise(fr *http2.PushPromiseFrame) {
	e.writeMu.Lock()
	_ = e.framer.WriteRSTStream(fr.PromiseID, http2.ErrCodeRefusedStream)
	e.writeMu.Unlock()
}

func (e *Engine) failAllStreams(err liberr.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range e.streams {
		st.reset(uint32(http2.ErrCodeInternal), err)
	}
}

func (e *Engine) scheduleNextPing() {
	task := &runner.Task{
		Name:       "http2-ping",
		Cancelable: true,
		Run: func(ctx context.Context) time.Duration {
			if e.sendPing() != nil {
				return runner.NoRequeue
			}
			return e.opts.PingInterval
		},
	}
	_ = e.pingQueue.Schedule(task, e.opts.PingInterval)
}

func (e *Engine) sendPing() liberr.Error {
	e.mu.Lock()
	e.pingSeq++
	key := e.pingSeq
	e.mu.Unlock()

	var data [8]byte
	for i := range data {
		data[i] = byte(key >> (8 * uint(i)))
	}

	ch := make(chan struct{})
	e.mu.Lock()
	e.pingPending[key] = ch
	e.mu.Unlock()

	e.writeMu.Lock()
	err := e.framer.WritePing(false, data)
	e.writeMu.Unlock()
	if err != nil {
		return ErrorProtocol.ErrorParent(err)
	}

	select {
	case <-ch:
		return nil
	case <-time.After(e.opts.PingTimeout):
		e.mu.Lock()
		delete(e.pingPending, key)
		e.mu.Unlock()
		e.failAllStreams(ErrorPingTimeout.Error(nil))
		return ErrorPingTimeout.Error(nil)
	}
}
