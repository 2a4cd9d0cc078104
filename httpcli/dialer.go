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
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/sabouaram/gohttp/certificates"
	"github.com/sabouaram/gohttp/connection"
	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/http1"
	"github.com/sabouaram/gohttp/http2"
	"github.com/sabouaram/gohttp/route"
	"github.com/sabouaram/gohttp/runner"
)

// clientDialer implements connection.Dialer: it is the one place that
// turns a planned route.Route into a live connection.Conn, doing TCP
// connect, the TLS handshake with hostname verification and chain
// cleaning (the certificates package's K-component), ALPN-based protocol
// selection, and http1/http2 codec construction, in that order.
type clientDialer struct {
	opts      Options
	pingQueue *runner.Queue
}

func newClientDialer(opts Options, pingQueue *runner.Queue) *clientDialer {
	return &clientDialer{opts: opts, pingQueue: pingQueue}
}

func (d *clientDialer) Dial(r route.Route) (*connection.Conn, liberr.Error) {
	raw, err := d.dialTCP(r)
	if err != nil {
		return nil, ErrorDial.ErrorParent(err)
	}

	if !r.Address.IsTLS() {
		codec := http1.NewCodec(raw)
		return connection.NewConn(r, connection.ProtocolHTTP1, codec, raw, nil), nil
	}

	tlsConn, state, herr := d.handshake(raw, r)
	if herr != nil {
		_ = raw.Close()
		return nil, herr
	}

	if state.NegotiatedProtocol == "h2" {
		engine, eerr := http2.Dial(tlsConn, http2.Options{
			PingInterval: d.opts.PingInterval.Time(),
			PingTimeout:  d.opts.PingTimeout.Time(),
		}, d.pingQueue)
		if eerr != nil {
			_ = tlsConn.Close()
			return nil, eerr
		}
		return connection.NewConn(r, connection.ProtocolHTTP2, engine, tlsConn, &state), nil
	}

	codec := http1.NewCodec(tlsConn)
	return connection.NewConn(r, connection.ProtocolHTTP1, codec, tlsConn, &state), nil
}

// DialRaw opens the transport (TCP, or TCP+TLS for wss://) for r without
// picking an http1/http2 codec: used by the WebSocket upgrade path, which
// always speaks HTTP/1.1 for the handshake and then switches protocols.
func (d *clientDialer) DialRaw(r route.Route) (net.Conn, *tls.ConnectionState, liberr.Error) {
	raw, err := d.dialTCP(r)
	if err != nil {
		return nil, nil, ErrorDial.ErrorParent(err)
	}

	if !r.Address.IsTLS() {
		return raw, nil, nil
	}

	tlsConn, state, herr := d.handshake(raw, r)
	if herr != nil {
		_ = raw.Close()
		return nil, nil, herr
	}
	return tlsConn, &state, nil
}

func (d *clientDialer) dialTCP(r route.Route) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.opts.ConnectTimeout.Time()}
	addr := net.JoinHostPort(r.IPAddr.String(), strconv.Itoa(r.Port))
	return dialer.Dial(r.Address.DialNetwork(), addr)
}

// handshake performs the TLS handshake with Go's own chain-of-trust and
// hostname verification left in place (cfg.ServerName is always set, so
// InsecureSkipVerify stays false), then layers this module's own K
// components on top via VerifyConnection: ChainCleaner rebuilds a clean
// issuer path from the peer's chain (catching loops/oversized chains a
// misbehaving or malicious server might send) and HostnameVerifier
// re-checks the leaf against the request host with OkHttp's own RFC 6125
// wildcard rules, as a belt-and-suspenders check alongside Go's.
func (d *clientDialer) handshake(raw net.Conn, r route.Route) (*tls.Conn, tls.ConnectionState, liberr.Error) {
	base := r.Address.TLSConfig.TLS(r.Address.Host)
	cfg := base.Clone()
	if len(r.Address.Protocols) > 0 {
		cfg.NextProtos = r.Address.Protocols
	}
	if cfg.ServerName == "" {
		cfg.ServerName = r.Address.Host
	}

	verifier := r.Address.HostnameVerifier
	if verifier == nil {
		v := certificates.NewHostnameVerifier()
		verifier = &v
	}
	cleaner := certificates.NewChainCleaner(cfg.RootCAs)
	serverName := cfg.ServerName

	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return ErrorTLSHandshake.Error(nil)
		}
		if _, cerr := cleaner.Clean(cs.PeerCertificates); cerr != nil {
			return cerr
		}
		if verr := verifier.Verify(serverName, cs.PeerCertificates[0]); verr != nil {
			return verr
		}
		return nil
	}

	conn := tls.Client(raw, cfg)
	deadline := time.Now().Add(d.opts.ConnectTimeout.Time())
	if d.opts.ConnectTimeout.Time() > 0 {
		_ = conn.SetDeadline(deadline)
	}
	if err := conn.Handshake(); err != nil {
		return nil, tls.ConnectionState{}, ErrorTLSHandshake.ErrorParent(err)
	}
	_ = conn.SetDeadline(time.Time{})

	return conn, conn.ConnectionState(), nil
}
