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

package certificates

import (
	"strings"

	"crypto/x509"

	liberr "github.com/sabouaram/gohttp/errors"
)

// HostnameVerifier matches a request host against the DNS subjectAltNames
// of a verified peer certificate, per RFC 6125 wildcard rules.
type HostnameVerifier struct{}

// NewHostnameVerifier returns the default, RFC 6125 compliant verifier.
func NewHostnameVerifier() HostnameVerifier {
	return HostnameVerifier{}
}

// Verify reports whether host matches one of cert's DNS subjectAltNames.
// Only a single leftmost "*" label is treated as a wildcard, and that
// wildcard matches exactly one non-empty label containing no ".". A
// certificate with no DNS names at all is rejected outright: names in the
// legacy CN field are not consulted, matching modern browser behaviour.
func (HostnameVerifier) Verify(host string, cert *x509.Certificate) liberr.Error {
	if len(cert.DNSNames) == 0 {
		return ErrorHostnameNoDNSName.Error(nil)
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))

	for _, name := range cert.DNSNames {
		if matchesHostname(host, strings.ToLower(strings.TrimSuffix(name, "."))) {
			return nil
		}
	}

	return ErrorHostnameMismatch.Error(nil)
}

func matchesHostname(host, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return host == pattern
	}

	// Only a single "*" as the entire leftmost label is a valid wildcard;
	// anything else ("*a.example.com", "a*.example.com", a second "*" in
	// another label) is not a wildcard per RFC 6125 and cannot match.
	patternParts := strings.Split(pattern, ".")
	hostParts := strings.Split(host, ".")

	if len(patternParts) != len(hostParts) {
		return false
	}
	if patternParts[0] != "*" {
		return false
	}
	for _, p := range patternParts[1:] {
		if strings.Contains(p, "*") {
			return false
		}
	}

	// The wildcard label must match a single, non-empty host label that
	// itself contains no "." (guaranteed by the split above) and is not
	// empty (rules out "https://.example.com").
	if hostParts[0] == "" {
		return false
	}

	for i := 1; i < len(patternParts); i++ {
		if patternParts[i] != hostParts[i] {
			return false
		}
	}

	return true
}
