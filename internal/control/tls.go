package control

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/picotorrent/remote/internal/config"
	"github.com/picotorrent/remote/internal/security"
)

// TLSFactory builds the server-side TLS configuration for each incoming
// connection, provisioning a self-signed certificate file on first use.
// Certificate material and the key password are read per handshake so that
// rotation between runs is picked up without restarting the process.
type TLSFactory struct {
	cfg    *config.Store
	params *security.HandshakeParams

	mu sync.Mutex // serializes certificate provisioning
}

// NewTLSFactory creates a factory reading certificate settings from cfg and
// applying the given handshake parameters to every connection.
func NewTLSFactory(cfg *config.Store, params *security.HandshakeParams) *TLSFactory {
	return &TLSFactory{cfg: cfg, params: params}
}

// ServerConfig returns the listener-level TLS configuration. The actual
// per-connection configuration comes from ConfigForClient.
func (f *TLSFactory) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		GetConfigForClient: f.ConfigForClient,
	}
}

// ConfigForClient produces a fresh TLS configuration for one handshake.
// Legacy protocol versions cannot negotiate and every permitted suite uses
// an ephemeral key exchange.
func (f *TLSFactory) ConfigForClient(_ *tls.ClientHelloInfo) (*tls.Config, error) {
	cert, err := f.loadCertificate()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: f.params.Curves,
		CipherSuites:     f.params.CipherSuites,
		Certificates:     []tls.Certificate{cert},
	}, nil
}

// loadCertificate reads the configured certificate file, provisioning it
// first when absent. The key password is fetched at decrypt time, not
// cached.
func (f *TLSFactory) loadCertificate() (tls.Certificate, error) {
	path, err := f.cfg.CertificateFile()
	if err != nil {
		return tls.Certificate{}, err
	}

	if err := f.ensureCertificate(path); err != nil {
		return tls.Certificate{}, err
	}

	pemData, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate file: %w", err)
	}

	password, err := f.cfg.CertificatePassword()
	if err != nil {
		return tls.Certificate{}, err
	}

	return security.LoadCertificate(pemData, password)
}

// ensureCertificate provisions a self-signed certificate file at path if
// none exists. The factory mutex plus O_EXCL creation make the bootstrap
// single-shot even when the first connections arrive concurrently.
func (f *TLSFactory) ensureCertificate(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat certificate file: %w", err)
	}

	password, err := f.cfg.CertificatePassword()
	if err != nil {
		return err
	}

	cert, err := security.GenerateCertificate(password)
	if err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Another process won the bootstrap.
			return nil
		}
		return fmt.Errorf("failed to create certificate file: %w", err)
	}

	if _, err := fh.Write(cert.PEM); err != nil {
		fh.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close certificate file: %w", err)
	}

	log.Info().
		Str("path", path).
		Str("fingerprint", cert.Fingerprint).
		Msg("provisioned self-signed certificate")

	return nil
}
