package crypt4gh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/genofetch/internal/common"
)

func TestKeyFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pub, priv := testKeyPair(t)

	pubPath := filepath.Join(dir, "key.pub")
	privPath := filepath.Join(dir, "key.sec")
	require.NoError(t, SavePublicKey(pubPath, pub))
	require.NoError(t, SavePrivateKey(privPath, priv))

	gotPub, err := LoadPublicKey(pubPath)
	require.NoError(t, err)
	require.Equal(t, pub, gotPub)

	gotPriv, err := LoadPrivateKey(privPath)
	require.NoError(t, err)
	require.Equal(t, priv, gotPriv)

	// private key files must not be world-readable
	info, err := os.Stat(privPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadKey_RejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
	_, err := LoadPublicKey(path)
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)

	// a public key file is not a private key
	pub, _ := testKeyPair(t)
	pubPath := filepath.Join(dir, "key.pub")
	require.NoError(t, SavePublicKey(pubPath, pub))
	_, err = LoadPrivateKey(pubPath)
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)
}
