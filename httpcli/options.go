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

package httpcli

import (
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"

	libdur "github.com/sabouaram/gohttp/duration"
	liberr "github.com/sabouaram/gohttp/errors"
)

// Options configures a Client. Every time.Duration-shaped field is
// expressed through duration.Duration so it marshals as a human string
// ("30s") in JSON/YAML configuration documents the same way the teacher's
// own component Config structs do; struct tags are validated with
// go-playground/validator, matching the teacher's httpcli/options.go
// pattern.
type Options struct {
	// ConnectTimeout bounds establishing the transport connection
	// (TCP + TLS handshake, per route attempt).
	ConnectTimeout libdur.Duration `json:"connect_timeout" yaml:"connect_timeout" validate:"gte=0"`
	// WriteTimeout is the configured bound for writing the request
	// headers + body. It is validated and stored; the Client does not
	// apply it to any write.
	WriteTimeout libdur.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	// ReadTimeout is the configured bound for reading the response
	// headers + body. It is validated and stored; the Client does not
	// apply it to any read.
	ReadTimeout libdur.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	// CallTimeout is the configured bound for the entire call, including
	// every follow-up (zero for none). It is validated and stored; the
	// Client sets no call deadline from it.
	CallTimeout libdur.Duration `json:"call_timeout" yaml:"call_timeout" validate:"gte=0"`

	// PingInterval, if non-zero, enables HTTP/2 and WebSocket
	// keep-alive pings on every connection this Client opens.
	PingInterval libdur.Duration `json:"ping_interval" yaml:"ping_interval" validate:"gte=0"`
	// PingTimeout bounds how long an HTTP/2 ping may go unanswered
	// before the connection is considered dead.
	PingTimeout libdur.Duration `json:"ping_timeout" yaml:"ping_timeout" validate:"gte=0"`

	// MaxIdleConnections bounds the connection pool's idle set.
	MaxIdleConnections int `json:"max_idle_connections" yaml:"max_idle_connections" validate:"gte=0"`
	// KeepAlive bounds how long an idle connection is kept before
	// eviction.
	KeepAlive libdur.Duration `json:"keep_alive" yaml:"keep_alive" validate:"gte=0"`

	// RunnerWorkers bounds the concurrency of the shared task runner
	// backing pool eviction and ping watchdogs.
	RunnerWorkers int64 `json:"runner_workers" yaml:"runner_workers" validate:"gte=1"`

	// FollowRedirects enables the retry interceptor's 3xx follow-up
	// handling. Auth-challenge (401/407) follow-up is independent of
	// this flag and always runs when an Authenticator is configured.
	FollowRedirects bool `json:"follow_redirects" yaml:"follow_redirects"`
	// RetryOnConnectionFailure enables automatic retry when an attempt
	// fails with an error from the interceptor chain: the attempt is
	// repeated, up to retry.MaxFollowUps times with a pause that grows by
	// 100ms per attempt, and routes are planned again for each one. The
	// kind of error and whether another route exists are not examined.
	RetryOnConnectionFailure bool `json:"retry_on_connection_failure" yaml:"retry_on_connection_failure"`

	// Protocols is the ALPN preference order new Addresses are given,
	// e.g. []string{"h2", "http/1.1"}.
	Protocols []string `json:"protocols" yaml:"protocols" validate:"omitempty,dive,oneof=h2 http/1.1"`
}

// DefaultOptions returns the Options a zero-value Client effectively
// behaves as.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:     libdur.ParseDuration(10 * time.Second),
		WriteTimeout:       libdur.ParseDuration(10 * time.Second),
		ReadTimeout:        libdur.ParseDuration(10 * time.Second),
		CallTimeout:        libdur.ParseDuration(0),
		PingInterval:       libdur.ParseDuration(0),
		PingTimeout:        libdur.ParseDuration(10 * time.Second),
		MaxIdleConnections: 5,
		KeepAlive:          libdur.ParseDuration(5 * time.Minute),
		RunnerWorkers:      4,
		FollowRedirects:    true,
		Protocols:          []string{"h2", "http/1.1"},
	}
}

// Validate checks Options against its struct tags, the same
// validator-driven approach the teacher's config packages use throughout.
func (o Options) Validate() liberr.Error {
	if err := libval.New().Struct(o); err != nil {
		e := ErrorValidatorError.Error(nil)
		if ve, ok := err.(libval.ValidationErrors); ok {
			for _, fe := range ve {
				e.Add(fmt.Errorf("option '%s' fails constraint '%s'", fe.Namespace(), fe.ActualTag()))
			}
		} else {
			e.Add(err)
		}
		return e
	}
	return nil
}
