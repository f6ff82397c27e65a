package keys_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
)

func generatePair(t *testing.T) *keys.KeyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := keys.New(priv, pub)
	require.NoError(t, err)
	return kp
}

func TestLoadFilesRoundTrip(t *testing.T) {
	kp := generatePair(t)
	privPEM, pubPEM, err := kp.MarshalPEM()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private_key.pem")
	pubPath := filepath.Join(dir, "public_key.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o644))

	loaded, err := keys.LoadFiles(privPath, pubPath)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())

	msg := []byte("This is a secure message")
	assert.True(t, ed25519.Verify(kp.PublicKey(), msg, loaded.Sign(msg)))
}

func TestParsePEMRejectsMismatchedPair(t *testing.T) {
	a := generatePair(t)
	b := generatePair(t)
	privA, _, err := a.MarshalPEM()
	require.NoError(t, err)
	_, pubB, err := b.MarshalPEM()
	require.NoError(t, err)

	_, err = keys.ParsePEM(privA, pubB)
	assert.ErrorIs(t, err, keys.ErrKeyPairMismatch)
}

func TestParsePEMRejectsGarbage(t *testing.T) {
	_, err := keys.ParsePEM([]byte("not a pem"), []byte("nope"))
	assert.ErrorIs(t, err, keys.ErrNoPEMBlock)
}

func TestLoadFilesMissing(t *testing.T) {
	_, err := keys.LoadFiles(filepath.Join(t.TempDir(), "missing.pem"), "also-missing.pem")
	assert.Error(t, err)
}

func TestPublicKeyRawB64(t *testing.T) {
	kp := generatePair(t)
	raw, err := base64.StdEncoding.DecodeString(kp.PublicKeyRawB64())
	require.NoError(t, err)
	assert.Len(t, raw, ed25519.PublicKeySize)
	assert.Equal(t, []byte(kp.PublicKey()), raw)
}

func TestRegistryStatusHandler(t *testing.T) {
	kp := generatePair(t)
	reg := keys.NewRegistry()
	reg.Add("gateway-test", kp)

	rec := httptest.NewRecorder()
	reg.StatusHandler()(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Signers []keys.KeyInfo `json:"signers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Signers, 1)
	assert.Equal(t, "gateway-test", resp.Signers[0].SignerID)
	assert.Equal(t, keys.Algorithm, resp.Signers[0].Algorithm)
	assert.Equal(t, kp.PublicKeyRawB64(), resp.Signers[0].PublicKey)

	_, ok := reg.Get("unknown")
	assert.False(t, ok)
}
