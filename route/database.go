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

package route

import "sync"

// Database remembers which routes have recently failed, process-wide,
// shared across every Call. Planner consults it so a retry prefers routes
// that have not already failed.
type Database struct {
	mu     sync.Mutex
	failed map[string]struct{}
}

// NewDatabase returns an empty route failure database.
func NewDatabase() *Database {
	return &Database{failed: make(map[string]struct{})}
}

// Failed records that route could not be used.
func (d *Database) Failed(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed[r.key()] = struct{}{}
}

// Connected clears any failure memory for route: a successful connect
// means it is no longer to be deprioritized.
func (d *Database) Connected(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failed, r.key())
}

// HasFailed reports whether route is currently remembered as having
// failed.
func (d *Database) HasFailed(r Route) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.failed[r.key()]
	return ok
}

// Reorder moves previously-failed routes to the tail of the slice,
// preserving relative order within each group.
func (d *Database) Reorder(routes []Route) []Route {
	d.mu.Lock()
	defer d.mu.Unlock()

	good := make([]Route, 0, len(routes))
	bad := make([]Route, 0)

	for _, r := range routes {
		if _, failed := d.failed[r.key()]; failed {
			bad = append(bad, r)
		} else {
			good = append(good, r)
		}
	}

	return append(good, bad...)
}
