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
	"crypto/x509"

	liberr "github.com/sabouaram/gohttp/errors"
)

// maxChainLength bounds how many issuer hops the cleaner will follow before
// giving up. A well-formed chain from a public CA rarely exceeds 4 or 5
// certificates; 9 leaves ample room while still stopping a pathological or
// looping chain from being walked forever.
const maxChainLength = 9

// ChainCleaner rebuilds a clean, trusted path from a leaf certificate up to
// a self-signed (or pool-trusted) root, discarding any extra certificates
// the peer sent that are not actually part of that path. TLS peers often
// present redundant or out-of-order intermediates; walking the chain
// ourselves, by issuer lookup rather than by trusting the order the peer
// sent, gives a deterministic result to hand to the hostname verifier and
// to certificate pinning.
type ChainCleaner struct {
	// trustedRoots, when non-nil, ends the walk at the first
	// non-self-signed certificate whose subject is in the pool. A
	// self-signed certificate ends the walk whether or not it is in the
	// pool.
	trustedRoots *x509.CertPool
}

// NewChainCleaner builds a ChainCleaner that walks peer chains against the
// given trusted root pool. A nil pool is valid: the cleaner still removes
// duplicates and enforces the loop/length limits; the walk then ends only
// at a self-signed certificate or where no issuer is found.
func NewChainCleaner(trustedRoots *x509.CertPool) *ChainCleaner {
	return &ChainCleaner{trustedRoots: trustedRoots}
}

// Clean walks the chain starting at the leaf (chain[0]). At each step it
// looks up the next issuer among the remaining candidates by subject and
// signature (certificate c is issued by candidate i iff i.Subject equals
// c.Issuer and c.CheckSignatureFrom(i) succeeds), appends it, and continues
// from there. The walk stops when it reaches a self-signed certificate
// (Subject == Issuer) or runs out of candidates.
//
// It returns ErrorChainTooLong if more than maxChainLength certificates
// would be required, and ErrorChainLoop if a certificate already placed in
// the cleaned chain would be revisited.
func (c *ChainCleaner) Clean(chain []*x509.Certificate) ([]*x509.Certificate, liberr.Error) {
	if len(chain) == 0 {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	var (
		result    = make([]*x509.Certificate, 0, len(chain))
		seen      = make(map[string]bool, len(chain))
		candidate = chain[0]
	)

	for {
		key := fingerprint(candidate)
		if seen[key] {
			return nil, ErrorChainLoop.Error(nil)
		}
		seen[key] = true
		result = append(result, candidate)

		if len(result) > maxChainLength {
			return nil, ErrorChainTooLong.Error(nil)
		}

		if isSelfSigned(candidate) {
			return result, nil
		}

		if c.trustedRoots != nil && c.isTrustedSubject(candidate) {
			return result, nil
		}

		issuer := findIssuer(candidate, chain)
		if issuer == nil {
			// No further issuer available: the chain the peer sent was
			// incomplete. Return what we verified so far rather than
			// failing outright; the TLS library already validated trust
			// up to this point during the handshake.
			return result, nil
		}

		candidate = issuer
	}
}

// isTrustedSubject reports whether cert's subject is already present in the
// trusted root pool, using x509.CertPool.Subjects as a cheap presence check
// so the walk stops at a certificate that carries a trusted root's subject
// (for example a cross-signed copy of that root) instead of following its
// issuer further.
func (c *ChainCleaner) isTrustedSubject(cert *x509.Certificate) bool {
	for _, raw := range c.trustedRoots.Subjects() { //nolint:staticcheck
		if string(raw) == string(cert.RawSubject) {
			return true
		}
	}
	return false
}

func isSelfSigned(cert *x509.Certificate) bool {
	return cert.Subject.ToRDNSequence().String() == cert.Issuer.ToRDNSequence().String() &&
		cert.CheckSignatureFrom(cert) == nil
}

func findIssuer(cert *x509.Certificate, candidates []*x509.Certificate) *x509.Certificate {
	for _, i := range candidates {
		if i == cert {
			continue
		}
		if i.Subject.ToRDNSequence().String() != cert.Issuer.ToRDNSequence().String() {
			continue
		}
		if cert.CheckSignatureFrom(i) == nil {
			return i
		}
	}
	return nil
}

func fingerprint(cert *x509.Certificate) string {
	return string(cert.RawSubject) + "|" + string(cert.SignatureAlgorithm.String()) + "|" + string(cert.Signature)
}
