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
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	liberr "github.com/sabouaram/gohttp/errors"
	"github.com/sabouaram/gohttp/route"
	"github.com/sabouaram/gohttp/runner"
	"github.com/sabouaram/gohttp/websocket"
)

// websocketGUID is appended to the client's Sec-WebSocket-Key before
// hashing to derive the Sec-WebSocket-Accept the server must answer with,
// fixed by RFC 6455 §1.3.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// WebSocket is a live, upgraded connection; SendText/SendBinary/Ping/Close
// delegate to the framer built in the websocket package, and frames read
// off the wire are delivered to the MessageHandler given to NewWebSocket.
type WebSocket struct {
	conn *websocket.Conn
}

func (w *WebSocket) SendText(s string) liberr.Error  { return w.conn.SendText(s) }
func (w *WebSocket) SendBinary(b []byte) liberr.Error { return w.conn.SendBinary(b) }
func (w *WebSocket) Ping(payload []byte) liberr.Error { return w.conn.Ping(payload) }
func (w *WebSocket) Close(code int, reason string) liberr.Error {
	return w.conn.Close(code, reason)
}

// NewWebSocket performs the HTTP/1.1 Upgrade handshake (RFC 6455 §4) against
// req's URL and, on success, returns a live WebSocket whose ReadLoop is
// already running on its own goroutine delivering frames to handler.
// wantDeflate offers permessage-deflate (RFC 7692) in the handshake; the
// server's answer decides whether the connection actually uses it.
func (c *Client) NewWebSocket(req *Request, handler websocket.MessageHandler, wantDeflate bool) (*WebSocket, liberr.Error) {
	if req == nil || req.URL == nil || req.URL.Host == "" {
		return nil, ErrorInvalidURL.Error(nil)
	}

	addr := c.addressFor(req.URL)
	routes, err := c.planner.Plan(addr, req.URL)
	if err != nil {
		return nil, ErrorNoRouteReachable.ErrorParent(err)
	}

	var lastErr liberr.Error
	for _, r := range routes {
		raw, _, derr := c.dialer.DialRaw(r)
		if derr != nil {
			lastErr = derr
			continue
		}

		wsConn, uerr := performUpgrade(raw, req, addr, handler, c.pingQueue, c.opts.PingInterval.Time(), wantDeflate)
		if uerr != nil {
			_ = raw.Close()
			lastErr = uerr
			continue
		}

		go wsConn.ReadLoop()
		return &WebSocket{conn: wsConn}, nil
	}

	if lastErr == nil {
		lastErr = ErrorNoRouteReachable.Error(nil)
	}
	return nil, lastErr
}

// bufferedConn adapts a net.Conn whose first bytes have already been
// consumed into a bufio.Reader: Read is satisfied from that reader first,
// so bytes the handshake's textproto.Reader pulled ahead of the blank line
// terminating the response headers (the start of the first WebSocket
// frame, if the server pipelined one) are not lost before websocket.New
// starts reading frames off the wire.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.br.Read(p)
}

// performUpgrade writes the Upgrade request line and headers, reads and
// validates the server's response, and on a successful 101 switch builds
// the websocket.Conn. It never closes raw itself; the caller does that on
// failure.
func performUpgrade(raw net.Conn, req *Request, addr route.Address, handler websocket.MessageHandler, pingQ *runner.Queue, pingInterval time.Duration, wantDeflate bool) (*websocket.Conn, liberr.Error) {
	key, kerr := newWebSocketKey()
	if kerr != nil {
		return nil, ErrorWebSocketUpgradeMalformed.ErrorParent(kerr)
	}

	path := req.URL.RequestURI()
	if path == "" {
		path = "/"
	}

	var sb strings.Builder
	sb.WriteString("GET ")
	sb.WriteString(path)
	sb.WriteString(" HTTP/1.1\r\n")
	sb.WriteString("Host: ")
	sb.WriteString(hostHeaderFor(addr, req.URL.Host))
	sb.WriteString("\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Key: ")
	sb.WriteString(key)
	sb.WriteString("\r\n")
	sb.WriteString("Sec-WebSocket-Version: 13\r\n")
	if wantDeflate {
		sb.WriteString("Sec-WebSocket-Extensions: permessage-deflate\r\n")
	}
	for name, values := range req.Header {
		if isHopByHopUpgradeHeader(name) {
			continue
		}
		for _, v := range values {
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\r\n")
		}
	}
	sb.WriteString("\r\n")

	if _, err := raw.Write([]byte(sb.String())); err != nil {
		return nil, ErrorDial.ErrorParent(err)
	}

	br := bufio.NewReader(raw)
	tp := textproto.NewReader(br)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return nil, ErrorWebSocketUpgradeMalformed.ErrorParent(err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.1 101") && !strings.HasPrefix(statusLine, "HTTP/1.0 101") {
		return nil, ErrorWebSocketUpgradeRejected.Error(nil)
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, ErrorWebSocketUpgradeMalformed.ErrorParent(err)
	}

	if !strings.EqualFold(mimeHeader.Get("Upgrade"), "websocket") {
		return nil, ErrorWebSocketUpgradeMalformed.Error(nil)
	}
	if !containsToken(mimeHeader.Get("Connection"), "Upgrade") {
		return nil, ErrorWebSocketUpgradeMalformed.Error(nil)
	}

	expectedAccept := acceptKeyFor(key)
	if mimeHeader.Get("Sec-WebSocket-Accept") != expectedAccept {
		return nil, ErrorWebSocketUpgradeMalformed.Error(nil)
	}

	var deflate *websocket.PerMessageDeflate
	if wantDeflate && containsToken(mimeHeader.Get("Sec-WebSocket-Extensions"), "permessage-deflate") {
		deflate = &websocket.PerMessageDeflate{}
	}

	conn := &bufferedConn{Conn: raw, br: br}
	return websocket.New(conn, deflate, handler, pingQ, pingInterval), nil
}

func newWebSocketKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func acceptKeyFor(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

func isHopByHopUpgradeHeader(name string) bool {
	switch strings.ToLower(name) {
	case "host", "upgrade", "connection", "sec-websocket-key", "sec-websocket-version", "sec-websocket-extensions":
		return true
	}
	return false
}

// hostHeaderFor prefers the URL's own host[:port] (preserving a
// non-default port exactly as the caller wrote it) and falls back to the
// planned address when the URL carried none.
func hostHeaderFor(addr route.Address, urlHost string) string {
	if urlHost != "" {
		return urlHost
	}
	return addr.Host + ":" + strconv.Itoa(addr.Port)
}
