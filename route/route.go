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

import (
	"net"
	"strconv"
)

// Route is one concrete path to an Address: a chosen Proxy plus the
// resolved socket address to dial.
type Route struct {
	Address Address
	Proxy   Proxy
	IPAddr  net.IP
	Port    int
}

func (r Route) String() string {
	return r.Proxy.String() + "/" + r.IPAddr.String()
}

// Equal compares routes by their dial identity (proxy + ip + port), which
// is what Database keys failures on.
func (r Route) Equal(o Route) bool {
	return r.Proxy == o.Proxy && r.Port == o.Port && r.IPAddr.Equal(o.IPAddr)
}

func (r Route) key() string {
	return strconv.Itoa(int(r.Proxy.Kind)) + "|" + r.Proxy.Host + ":" + strconv.Itoa(r.Proxy.Port) +
		"|" + r.IPAddr.String() + ":" + strconv.Itoa(r.Port)
}
