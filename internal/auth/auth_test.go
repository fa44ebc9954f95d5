package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hikyaku/internal/auth"
)

// newTestKeyPair writes an Ed25519 key pair to temp PEM files and returns
// the public key path together with the raw private key.
func newTestKeyPair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))
	return pubPath, priv
}

// forgeToken signs a JWT with the given private key and claims.
func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func validClaims() *auth.Claims {
	now := time.Now().UTC()
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-7",
			Issuer:    auth.TokenIssuer,
			Audience:  jwt.ClaimStrings{auth.TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
	}
}

func TestIssueAndVerify(t *testing.T) {
	pubPath, priv := newTestKeyPair(t)
	v, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	token, exp, err := auth.IssueToken(priv, "agent-7", "Planner", time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
	assert.Equal(t, "Planner", claims.Name)
	assert.Equal(t, auth.TokenIssuer, claims.Issuer)
}

func TestIssueToken_RejectsBadInput(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, _, err = auth.IssueToken(priv, "", "", time.Hour)
	assert.Error(t, err)
	_, _, err = auth.IssueToken(priv, "agent", "", 0)
	assert.Error(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	pubPath, priv := newTestKeyPair(t)
	v, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  func() string
		substr string
	}{
		{"garbage", func() string { return "not.a.jwt" }, "invalid token"},
		{"wrong key", func() string { return forgeToken(t, otherPriv, validClaims()) }, "signature"},
		{"wrong issuer", func() string {
			c := validClaims()
			c.Issuer = "not-hikyaku"
			return forgeToken(t, priv, c)
		}, "iss"},
		{"wrong audience", func() string {
			c := validClaims()
			c.Audience = jwt.ClaimStrings{"someone-else"}
			return forgeToken(t, priv, c)
		}, "aud"},
		{"expired", func() string {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return forgeToken(t, priv, c)
		}, "expired"},
		{"no expiry", func() string {
			c := validClaims()
			c.ExpiresAt = nil
			return forgeToken(t, priv, c)
		}, "exp"},
		{"missing subject", func() string {
			c := validClaims()
			c.Subject = ""
			return forgeToken(t, priv, c)
		}, "missing subject"},
		{"hmac algorithm", func() string {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
			require.NoError(t, err)
			return signed
		}, "signing method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token())
			require.ErrorIs(t, err, auth.ErrInvalidToken)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := auth.NewVerifier(filepath.Join(t.TempDir(), "missing.pem"))
	assert.ErrorContains(t, err, "read public key")

	junk := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not pem"), 0600))
	_, err = auth.NewVerifier(junk)
	assert.ErrorContains(t, err, "decode public key PEM")
}

func TestParsePrivateKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	got, err := auth.ParsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	_, err = auth.ParsePrivateKey([]byte("nope"))
	assert.Error(t, err)
}
