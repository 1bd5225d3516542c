package security

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// defaultCipherSuites is the negotiable TLS 1.2 suite set when no cipher
// list is configured. ECDHE only; every handshake uses an ephemeral key
// exchange.
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// HandshakeParams carries the key-exchange configuration shared by every
// TLS handshake: curve preferences and the negotiable cipher suites. It is
// built once at server construction and threaded into the TLS factory
// rather than living as process-wide state.
type HandshakeParams struct {
	Curves       []tls.CurveID
	CipherSuites []uint16
}

// NewHandshakeParams parses a cipher list string into handshake parameters.
// The list is colon- or comma-separated Go cipher suite names; an empty
// list selects the ECDHE-only default set. Suites without an ephemeral key
// exchange are rejected, as are names the TLS stack does not know.
func NewHandshakeParams(cipherList string) (*HandshakeParams, error) {
	params := &HandshakeParams{
		Curves: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
	}

	if strings.TrimSpace(cipherList) == "" {
		params.CipherSuites = defaultCipherSuites
		return params, nil
	}

	known := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		known[suite.Name] = suite.ID
	}

	for _, name := range strings.FieldsFunc(cipherList, func(r rune) bool {
		return r == ':' || r == ','
	}) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown cipher suite %q", name)
		}
		if !ephemeralSuite(name) {
			return nil, fmt.Errorf("cipher suite %q has no ephemeral key exchange", name)
		}
		params.CipherSuites = append(params.CipherSuites, id)
	}

	if len(params.CipherSuites) == 0 {
		return nil, fmt.Errorf("cipher list %q selects no usable suites", cipherList)
	}

	return params, nil
}

// ephemeralSuite reports whether a suite provides forward secrecy. TLS 1.3
// suites carry no key-exchange prefix because the exchange is always
// ephemeral there.
func ephemeralSuite(name string) bool {
	if strings.HasPrefix(name, "TLS_ECDHE_") {
		return true
	}
	switch name {
	case "TLS_AES_128_GCM_SHA256", "TLS_AES_256_GCM_SHA384", "TLS_CHACHA20_POLY1305_SHA256":
		return true
	}
	return false
}
