package control

import (
	"crypto/tls"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picotorrent/remote/internal/config"
	"github.com/picotorrent/remote/internal/security"
)

func newTestFactory(t *testing.T) (*TLSFactory, *config.Store) {
	t.Helper()

	cfg, err := config.NewStore(t.TempDir())
	require.NoError(t, err)

	params, err := security.NewHandshakeParams("")
	require.NoError(t, err)

	return NewTLSFactory(cfg, params), cfg
}

func TestTLSFactoryProvisionsCertificateLazily(t *testing.T) {
	factory, cfg := newTestFactory(t)

	certFile, err := cfg.CertificateFile()
	require.NoError(t, err)

	_, err = os.Stat(certFile)
	require.True(t, os.IsNotExist(err), "certificate must not exist before first use")

	tlsCfg, err := factory.ConfigForClient(nil)
	require.NoError(t, err)
	require.Len(t, tlsCfg.Certificates, 1)

	first, err := os.ReadFile(certFile)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A second construction must reuse the file, not regenerate it.
	_, err = factory.ConfigForClient(nil)
	require.NoError(t, err)

	second, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTLSFactoryConfiguration(t *testing.T) {
	factory, _ := newTestFactory(t)

	tlsCfg, err := factory.ConfigForClient(nil)
	require.NoError(t, err)

	assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
	assert.NotEmpty(t, tlsCfg.CipherSuites)
	assert.Contains(t, tlsCfg.CurvePreferences, tls.X25519)
}

func TestTLSFactoryEncryptedKey(t *testing.T) {
	factory, cfg := newTestFactory(t)
	require.NoError(t, cfg.SetCertificatePassword("swordfish"))

	_, err := factory.ConfigForClient(nil)
	require.NoError(t, err)

	// The password is read at decrypt time, so changing it after
	// provisioning breaks the next handshake.
	require.NoError(t, cfg.SetCertificatePassword("rotated"))
	_, err = factory.ConfigForClient(nil)
	require.Error(t, err)
}

func TestTLSFactoryFailsOnCorruptCertificate(t *testing.T) {
	factory, cfg := newTestFactory(t)

	certFile, err := cfg.CertificateFile()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0600))

	_, err = factory.ConfigForClient(nil)
	require.Error(t, err)
}
