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

// Package runner implements the process-wide Task Runner: a small bounded
// worker pool shared by any number of named serial queues. It backs pool
// cleanup, idle-minimum warming, HTTP/2 pings and WebSocket pings: every
// timer in the client goes through here rather than spawning its own
// goroutine and time.Timer.
package runner

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// NoRequeue is returned by a Task's Run function to mean "one-shot: do not
// reschedule me". Any non-negative duration instead means "run me again
// after this much time has passed".
const NoRequeue = time.Duration(-1)

// Task is one unit of schedulable work. Run executes once; its return
// value is either NoRequeue or the delay before the next run.
type Task struct {
	// Name identifies the task within its queue for coalescing: scheduling
	// a task with a Name that already has a pending entry keeps whichever
	// of the two ready times is earliest instead of creating a duplicate.
	Name string

	// Cancelable marks the task as droppable by cancelAll/shutdown while
	// it is only pending (not yet started). Watchdog-style infrastructure
	// tasks (ping timers, idle eviction) are typically cancelable; a task
	// the caller is actively waiting on the result of usually is not.
	Cancelable bool

	Run func(ctx context.Context) time.Duration
}

type item struct {
	queue   *Queue
	task    *Task
	readyAt time.Time
	seq     uint64
	index   int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Runner is a process-wide coordinator hosting any number of named Queues
// over a bounded worker pool. Exactly one goroutine (the coordinator)
// decides what runs next; actual task bodies run on semaphore-gated
// worker goroutines so a slow task never blocks scheduling of others.
type Runner struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  itemHeap
	queues   map[string]*Queue
	seq      uint64
	sem      *semaphore.Weighted
	shutdown bool
	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts a Runner backed by up to maxWorkers concurrently executing
// tasks. maxWorkers <= 0 is treated as 1.
func New(maxWorkers int64) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		queues: make(map[string]*Queue),
		sem:    semaphore.NewWeighted(maxWorkers),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	r.cond = sync.NewCond(&r.mu)

	go r.coordinate()

	return r
}

// NewQueue creates (or returns the existing) named serial queue.
func (r *Runner) NewQueue(name string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		return q
	}

	q := &Queue{runner: r, name: name}
	r.queues[name] = q
	return q
}

// Shutdown stops accepting new non-cancelable work on every queue, drops
// all pending cancelable tasks, and signals the coordinator to stop once
// in-flight work drains.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	for _, q := range r.queues {
		q.shutdownLocked()
	}
	r.mu.Unlock()

	r.cancel()
	r.notify()
}

func (r *Runner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// coordinate is the single scheduling goroutine: it waits until the
// earliest pending item is ready, across every queue, then dispatches any
// ready items whose queue is not already running a task to a worker.
func (r *Runner) coordinate() {
	for {
		r.mu.Lock()
		if r.shutdown && len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}

		var wait time.Duration = time.Hour
		now := time.Now()

		for len(r.pending) > 0 {
			next := r.pending[0]
			if next.queue.running {
				// Head-of-line queue is busy; it will re-poke the
				// coordinator when it finishes, so stop scanning here
				// rather than busy-spin past it.
				break
			}

			d := next.readyAt.Sub(now)
			if d > 0 {
				wait = d
				break
			}

			heap.Pop(&r.pending)
			next.queue.running = true
			r.dispatch(next)
			wait = 0
		}
		r.mu.Unlock()

		if wait == 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-r.wake:
			timer.Stop()
		case <-timer.C:
		case <-r.ctx.Done():
			timer.Stop()
			r.mu.Lock()
			done := len(r.pending) == 0
			r.mu.Unlock()
			if done {
				return
			}
		}
	}
}

// dispatch runs it.task on a semaphore-bounded worker goroutine. Must be
// called with r.mu held; it releases it before blocking on the semaphore.
func (r *Runner) dispatch(it *item) {
	r.mu.Unlock()
	defer r.mu.Lock()

	_ = r.sem.Acquire(context.Background(), 1)

	go func() {
		defer r.sem.Release(1)

		delay := it.task.Run(r.ctx)

		r.mu.Lock()
		it.queue.running = false
		if delay >= 0 && !it.queue.shutdown {
			it.readyAt = time.Now().Add(delay)
			r.seq++
			it.seq = r.seq
			heap.Push(&r.pending, it)
			if it.task.Name != "" {
				it.queue.byName[it.task.Name] = it
			}
		}
		it.queue.signalIdleIfDoneLocked()
		r.mu.Unlock()

		r.notify()
	}()
}
