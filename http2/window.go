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
	"sync"
	"time"
)

// DefaultClientWindow is the client-role default for both the connection
// and every stream's receive window: 16 MiB (§4.4).
const DefaultClientWindow = 16 << 20

// WindowCounter tracks (total, acknowledged) bytes for one flow-control
// direction: unacknowledged = total - acknowledged. Both fields are
// monotonically non-decreasing and acknowledged <= total always holds.
// On the send side, total is bytes reserved/written onto the wire and
// acknowledged is the sum of WINDOW_UPDATE increments received plus any
// unused reservation handed back by release, so
// windowSize - Unacknowledged() is the credit still available to send
// (§4.4). The zero value is ready to use, matching sync.Mutex; cond is
// initialized lazily on first use so callers never need a constructor.
type WindowCounter struct {
	mu           sync.Mutex
	cond         *sync.Cond
	total        int64
	acknowledged int64
}

func (w *WindowCounter) condLocked() *sync.Cond {
	if w.cond == nil {
		w.cond = sync.NewCond(&w.mu)
	}
	return w.cond
}

// Add records total bytes newly seen (received, for a receive-side
// counter; sent, for a send-side one).
func (w *WindowCounter) Add(n int64) {
	w.mu.Lock()
	w.total += n
	w.mu.Unlock()
}

// Acknowledge records bytes as acknowledged (WINDOW_UPDATE issued, for a
// receive-side counter; WINDOW_UPDATE received, for a send-side one), and
// wakes any goroutine blocked in reserve/waitForChange.
func (w *WindowCounter) Acknowledge(n int64) {
	w.mu.Lock()
	w.acknowledged += n
	if w.acknowledged > w.total {
		w.acknowledged = w.total
	}
	c := w.condLocked()
	w.mu.Unlock()
	c.Broadcast()
}

// Unacknowledged returns total - acknowledged.
func (w *WindowCounter) Unacknowledged() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total - w.acknowledged
}

// reserve claims up to want bytes of send credit (windowSize -
// Unacknowledged()), recording them against total immediately, and
// returns how many bytes were actually claimed (0 if none are free).
func (w *WindowCounter) reserve(windowSize, want int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	avail := windowSize - (w.total - w.acknowledged)
	if avail <= 0 {
		return 0
	}
	if want < avail {
		avail = want
	}
	w.total += avail
	return avail
}

// release gives back n bytes of a reservation that ended up unused (the
// peer's window was smaller than the stream's, so only part of a stream
// reservation was actually sent). The bytes are counted as acknowledged,
// so total never decreases.
func (w *WindowCounter) release(n int64) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	w.acknowledged += n
	if w.acknowledged > w.total {
		w.acknowledged = w.total
	}
	w.mu.Unlock()
}

// waitForChange blocks until either Acknowledge wakes it (a WINDOW_UPDATE
// may have landed) or abort reports true, whichever comes first. A
// periodic nudge bounds how long a missed wakeup (e.g. racing a Close)
// can stall the waiter, since sync.Cond gives no way to select on both a
// broadcast and a cancellation signal directly.
func (w *WindowCounter) waitForChange(abort func() bool) {
	w.mu.Lock()
	if abort() {
		w.mu.Unlock()
		return
	}
	c := w.condLocked()
	t := time.AfterFunc(50*time.Millisecond, c.Broadcast)
	c.Wait()
	t.Stop()
	w.mu.Unlock()
}

// broadcast wakes any goroutine blocked in waitForChange without changing
// total/acknowledged; used when a stream resets or the engine closes.
func (w *WindowCounter) broadcast() {
	w.mu.Lock()
	c := w.condLocked()
	w.mu.Unlock()
	c.Broadcast()
}

func (w *WindowCounter) snapshot() (total, acknowledged int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total, w.acknowledged
}

// ReceiverStrategy decides, given a receive-side WindowCounter and its
// configured window size, how many bytes of WINDOW_UPDATE credit to
// release right now (0 meaning "no action yet"). Pure: strategies only
// observe state and recommend an action; the engine performs it.
type ReceiverStrategy interface {
	// OnBytesArrived is called as DATA frames land, before the
	// application has necessarily consumed them.
	OnBytesArrived(counter *WindowCounter, windowSize int64, n int64)

	// OnBytesConsumed is called as the application reads bytes out of the
	// stream's buffered source.
	OnBytesConsumed(counter *WindowCounter, windowSize int64, n int64) (release int64)
}

// DefaultStrategy implements "track-on-consume": bytes count as received
// only once the application consumes them. A release is recommended once
// unacknowledged >= window/2, matching OkHttp's default client behaviour
// and bounding buffered memory to at most one window.
type DefaultStrategy struct{}

func (DefaultStrategy) OnBytesArrived(_ *WindowCounter, _ int64, _ int64) {}

func (DefaultStrategy) OnBytesConsumed(counter *WindowCounter, windowSize int64, n int64) int64 {
	counter.Add(n)
	if counter.Unacknowledged() >= windowSize/2 {
		u := counter.Unacknowledged()
		counter.Acknowledge(u)
		return u
	}
	return 0
}

// SoonerStrategy implements "track-on-receive": the connection window is
// released as soon as frames land (maximizing concurrency across
// streams, at the cost of up to window*openStreams buffered bytes); the
// stream window is still only released on consume, matching §4.4.
type SoonerStrategy struct{}

func (SoonerStrategy) OnBytesArrived(counter *WindowCounter, windowSize int64, n int64) {
	counter.Add(n)
	if counter.Unacknowledged() >= windowSize/2 {
		u := counter.Unacknowledged()
		counter.Acknowledge(u)
		_ = u
	}
}

func (SoonerStrategy) OnBytesConsumed(_ *WindowCounter, _ int64, _ int64) int64 {
	return 0
}
