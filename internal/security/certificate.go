package security

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/mr-tron/base58"
)

// Sentinel errors
var (
	// ErrNoCertificate is returned when the PEM data holds no certificate block.
	ErrNoCertificate = errors.New("no certificate found in PEM data")

	// ErrNoPrivateKey is returned when the PEM data holds no private key block.
	ErrNoPrivateKey = errors.New("no private key found in PEM data")
)

const certificateValidity = 10 * 365 * 24 * time.Hour

// Certificate is a freshly provisioned self-signed TLS identity. PEM holds
// the certificate followed by the private key, encrypted when a password
// was supplied, so the whole identity lives in a single file.
type Certificate struct {
	PEM         []byte
	Fingerprint string
}

// GenerateCertificate synthesizes a self-signed ECDSA P-256 certificate and
// private key pair for the local control endpoint. The key is encrypted
// under password when it is non-empty. Fingerprint is the Base58-encoded
// SHA-256 of the public key, for pinning in clients.
func GenerateCertificate(password string) (*Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "PicoTorrent Remote",
			Organization: []string{"PicoTorrent"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certificateValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	keyBlock := &pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: keyDER,
	}
	if password != "" {
		// PEM encryption keeps the identity in the single password-protected
		// file format existing remote clients already consume.
		//nolint:staticcheck
		keyBlock, err = x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", keyDER, []byte(password), x509.PEMCipherAES256)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt private key: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return nil, fmt.Errorf("failed to encode certificate: %w", err)
	}
	if err := pem.Encode(&buf, keyBlock); err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	hash := sha256.Sum256(publicKeyDER)

	return &Certificate{
		PEM:         buf.Bytes(),
		Fingerprint: base58.Encode(hash[:]),
	}, nil
}

// LoadCertificate parses a combined certificate+key PEM blob as produced by
// GenerateCertificate. password decrypts the private key block when the
// block is encrypted; it is ignored otherwise.
func LoadCertificate(pemData []byte, password string) (tls.Certificate, error) {
	var cert tls.Certificate
	var keyDER []byte

	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			cert.Certificate = append(cert.Certificate, block.Bytes)
		//nolint:staticcheck
		case x509.IsEncryptedPEMBlock(block):
			//nolint:staticcheck
			der, err := x509.DecryptPEMBlock(block, []byte(password))
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("failed to decrypt private key: %w", err)
			}
			keyDER = der
		default:
			keyDER = block.Bytes
		}
	}

	if len(cert.Certificate) == 0 {
		return tls.Certificate{}, ErrNoCertificate
	}
	if keyDER == nil {
		return tls.Certificate{}, ErrNoPrivateKey
	}

	privateKey, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse private key: %w", err)
	}
	cert.PrivateKey = privateKey

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse certificate: %w", err)
	}
	cert.Leaf = leaf

	certPubKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || !privateKey.PublicKey.Equal(certPubKey) {
		return tls.Certificate{}, errors.New("certificate and private key do not match")
	}

	return cert, nil
}
