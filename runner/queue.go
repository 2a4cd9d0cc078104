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

package runner

import (
	"container/heap"
	"time"

	liberr "github.com/sabouaram/gohttp/errors"
)

// Queue is a named serial task queue: at most one of its tasks runs at a
// time, though it may run concurrently with tasks from other queues on
// the shared Runner worker pool.
type Queue struct {
	runner   *Runner
	name     string
	running  bool
	shutdown bool
	byName   map[string]*item
	idle     []chan struct{}
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Schedule enqueues task so that Run is invoked no sooner than now+delay.
// If a task with the same Name is already pending on this queue, the
// earlier of the two ready times wins rather than creating a second entry.
func (q *Queue) Schedule(task *Task, delay time.Duration) liberr.Error {
	if task == nil {
		return ErrorTaskNil.Error(nil)
	}
	if delay < 0 {
		delay = 0
	}

	r := q.runner
	r.mu.Lock()
	defer r.mu.Unlock()

	if q.shutdown {
		return ErrorQueueShutdown.Error(nil)
	}

	readyAt := time.Now().Add(delay)

	if q.byName == nil {
		q.byName = make(map[string]*item)
	}

	if task.Name != "" {
		if existing, ok := q.byName[task.Name]; ok && existing.index >= 0 {
			if readyAt.Before(existing.readyAt) {
				existing.readyAt = readyAt
				heap.Fix(&r.pending, existing.index)
				r.notify()
			}
			return nil
		}
	}

	r.seq++
	it := &item{queue: q, task: task, readyAt: readyAt, seq: r.seq}
	heap.Push(&r.pending, it)
	if task.Name != "" {
		q.byName[task.Name] = it
	}

	r.notify()
	return nil
}

// CancelAll drops every pending, cancelable task on this queue. A task
// currently executing is left to finish; its self-requeue (if any) is
// still subject to cancelable dropping on the next Schedule-time check
// only if the task itself checks q.IsShutdown via its context.
func (q *Queue) CancelAll() {
	r := q.runner
	r.mu.Lock()
	defer r.mu.Unlock()
	q.cancelAllLocked()
}

func (q *Queue) cancelAllLocked() {
	r := q.runner
	kept := r.pending[:0]
	for _, it := range r.pending {
		if it.queue == q && it.task.Cancelable {
			it.index = -1
			if it.task.Name != "" {
				delete(q.byName, it.task.Name)
			}
			continue
		}
		kept = append(kept, it)
	}
	r.pending = kept
	heap.Init(&r.pending)
}

// Shutdown is CancelAll plus rejecting all future Schedule calls with
// ErrorQueueShutdown.
func (q *Queue) Shutdown() {
	r := q.runner
	r.mu.Lock()
	defer r.mu.Unlock()
	q.shutdownLocked()
}

func (q *Queue) shutdownLocked() {
	q.shutdown = true
	q.cancelAllLocked()
}

// IdleLatch returns a channel that is closed once the queue has neither an
// active task nor any pending one.
func (q *Queue) IdleLatch() <-chan struct{} {
	r := q.runner
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{})
	if !q.running && !q.hasPendingLocked() {
		close(ch)
		return ch
	}

	q.idle = append(q.idle, ch)
	return ch
}

func (q *Queue) hasPendingLocked() bool {
	for _, it := range q.runner.pending {
		if it.queue == q {
			return true
		}
	}
	return false
}

// signalIdleIfDoneLocked must be called with runner.mu held, right after
// the running task for this queue has finished (or chosen not to
// self-requeue).
func (q *Queue) signalIdleIfDoneLocked() {
	if q.running || q.hasPendingLocked() {
		return
	}
	for _, ch := range q.idle {
		close(ch)
	}
	q.idle = nil
}
