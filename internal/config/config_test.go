package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory with restricted permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		dir := filepath.Join(tmpDir, "settings")

		store, err := NewStore(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.Dir())

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("creates config.json on initialization", func(t *testing.T) {
		tmpDir := t.TempDir()
		_, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(tmpDir, "config.json"))
		require.NoError(t, err)
	})
}

func TestStoreDefaults(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	port, err := store.ListenPort()
	require.NoError(t, err)
	assert.Equal(t, DefaultListenPort, port)

	token, err := store.AccessToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	certFile, err := store.CertificateFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "certificate.pem"), certFile)

	password, err := store.CertificatePassword()
	require.NoError(t, err)
	assert.Empty(t, password)

	cipherList, err := store.CipherList()
	require.NoError(t, err)
	assert.Empty(t, cipherList)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SetListenPort(9999))
	require.NoError(t, store.SetAccessToken("sesame"))
	require.NoError(t, store.SetCertificateFile("/tmp/other.pem"))
	require.NoError(t, store.SetCertificatePassword("secret"))
	require.NoError(t, store.SetCipherList("TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"))

	// Re-open to prove the values were persisted, not cached.
	reopened, err := NewStore(dir)
	require.NoError(t, err)

	port, err := reopened.ListenPort()
	require.NoError(t, err)
	assert.Equal(t, 9999, port)

	token, err := reopened.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "sesame", token)

	certFile, err := reopened.CertificateFile()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.pem", certFile)

	password, err := reopened.CertificatePassword()
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	cipherList, err := reopened.CipherList()
	require.NoError(t, err)
	assert.Equal(t, "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", cipherList)
}

func TestStoreUpdatePreservesOtherKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SetAccessToken("first"))
	require.NoError(t, store.SetListenPort(4321))

	token, err := store.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "first", token)
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600))

	_, err = store.AccessToken()
	require.Error(t, err)
}
