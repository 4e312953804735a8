package signing

import (
	"context"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokengate/internal/testutil"
	"github.com/giantswarm/tokengate/verifier"
)

// splitToken returns the signed message and decoded signature of a JWT.
func splitToken(t *testing.T, token string) ([]byte, []byte) {
	t.Helper()
	i := strings.LastIndex(token, ".")
	require.Positive(t, i)
	sig, err := jwt.NewParser().DecodeSegment(token[i+1:])
	require.NoError(t, err)
	return []byte(token[:i]), sig
}

func TestKeySet_Verify(t *testing.T) {
	key := testutil.NewRSAKey(t)
	ks := NewKeySet(nil)
	require.NoError(t, ks.AddPEM("k1", testutil.PublicKeyPEM(t, key)))

	token := testutil.MintToken(t, key, "k1", jwt.MapClaims{"sub": "user-123"})
	message, sig := splitToken(t, token)
	ctx := context.Background()

	valid, err := ks.Verify(ctx, "k1", message, sig, verifier.SigningAlgorithm)
	require.NoError(t, err)
	assert.True(t, valid)

	tamperedMsg, tamperedSig := splitToken(t, testutil.TamperSignature(token))
	valid, err = ks.Verify(ctx, "k1", tamperedMsg, tamperedSig, verifier.SigningAlgorithm)
	require.NoError(t, err, "a bad signature is a negative answer, not an error")
	assert.False(t, valid)

	valid, err = ks.Verify(ctx, "k1", []byte("other.message"), sig, verifier.SigningAlgorithm)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeySet_VerifyErrors(t *testing.T) {
	key := testutil.NewRSAKey(t)
	ks := NewKeySet(nil)
	require.NoError(t, ks.Add("k1", &key.PublicKey))

	message, sig := splitToken(t, testutil.MintToken(t, key, "k1", jwt.MapClaims{}))

	_, err := ks.Verify(context.Background(), "missing", message, sig, verifier.SigningAlgorithm)
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = ks.Verify(context.Background(), "k1", message, sig, "ECDSA_SHA_256")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ks.Verify(ctx, "k1", message, sig, verifier.SigningAlgorithm)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeySet_WrongKey(t *testing.T) {
	signer := testutil.NewRSAKey(t)
	other := testutil.NewRSAKey(t)
	ks := NewKeySet(nil)
	require.NoError(t, ks.Add("k1", &other.PublicKey))

	message, sig := splitToken(t, testutil.MintToken(t, signer, "k1", jwt.MapClaims{}))
	valid, err := ks.Verify(context.Background(), "k1", message, sig, verifier.SigningAlgorithm)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeySet_Management(t *testing.T) {
	ks := NewKeySet(nil)
	key := testutil.NewRSAKey(t)

	assert.Error(t, ks.Add("", &key.PublicKey))
	assert.Error(t, ks.Add("k1", nil))
	assert.Error(t, ks.AddPEM("k1", []byte("not a pem")))

	require.NoError(t, ks.Add("b", &key.PublicKey))
	require.NoError(t, ks.Add("a", &key.PublicKey))
	assert.Equal(t, []string{"a", "b"}, ks.KeyIDs())

	ks.Remove("a")
	assert.Equal(t, []string{"b"}, ks.KeyIDs())

	ks.Replace(map[string]*rsa.PublicKey{"c": &key.PublicKey, "": &key.PublicKey, "d": nil})
	assert.Equal(t, []string{"c"}, ks.KeyIDs())
}

func TestKeySet_WithVerifier(t *testing.T) {
	key := testutil.NewRSAKey(t)
	ks := NewKeySet(nil)
	require.NoError(t, ks.AddPEM(testutil.TestKeyID, testutil.PublicKeyPEM(t, key)))

	v, err := verifier.New(verifier.Config{
		Issuer:            testutil.TestIssuer,
		Audience:          testutil.TestAudience,
		SignatureVerifier: ks,
	})
	require.NoError(t, err)

	token := testutil.MintToken(t, key, testutil.TestKeyID, testutil.ValidClaims(time.Now()))
	result := v.Verify(context.Background(), token)
	assert.True(t, result.Allowed(), "code %s", result.Code)

	result = v.Verify(context.Background(), testutil.TamperSignature(token))
	assert.Equal(t, verifier.CodeInvalidSignature, result.Code)
}
