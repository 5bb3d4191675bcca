package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey *rsa.PrivateKey

func TestMain(m *testing.M) {
	var err error
	if testKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func useTestKeys() {
	SetKeys(&testKey.PublicKey, testKey)
}

func signed(t *testing.T, claims jwtgo.RegisteredClaims) string {
	t.Helper()

	token, err := jwtgo.NewWithClaims(jwtgo.SigningMethodRS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return token
}

func TestSignAndValidatePlayerID(t *testing.T) {
	useTestKeys()

	sign, err := Sign(18)
	assert.NoError(t, err)

	id, err := ValidPlayerID(sign)
	assert.NoError(t, err)
	assert.Equal(t, int64(18), id)
}

func TestValidPlayerID_InvalidAudience(t *testing.T) {
	useTestKeys()

	id, err := ValidPlayerID(signed(t, jwtgo.RegisteredClaims{
		Audience:  jwtgo.ClaimStrings{"different-audience"},
		ID:        uuid.New().String(),
		IssuedAt:  jwtgo.NewNumericDate(time.Now()),
		ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    Issuer,
		Subject:   "15",
	}))
	assert.ErrorIs(t, err, jwtgo.ErrTokenInvalidAudience)
	assert.Equal(t, int64(0), id)
}

func TestValidPlayerID_InvalidIssuer(t *testing.T) {
	useTestKeys()

	id, err := ValidPlayerID(signed(t, jwtgo.RegisteredClaims{
		Audience:  jwtgo.ClaimStrings{Audience},
		ID:        uuid.New().String(),
		IssuedAt:  jwtgo.NewNumericDate(time.Now()),
		ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    "invalid-issuer",
		Subject:   "15",
	}))
	assert.ErrorIs(t, err, jwtgo.ErrTokenInvalidIssuer)
	assert.Equal(t, int64(0), id)
}

func TestValidPlayerID_InvalidSubject(t *testing.T) {
	useTestKeys()

	id, err := ValidPlayerID(signed(t, jwtgo.RegisteredClaims{
		Audience:  jwtgo.ClaimStrings{Audience},
		ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    Issuer,
		Subject:   "guest",
	}))
	assert.ErrorIs(t, err, errInvalidSubject)
	assert.Equal(t, int64(0), id)
}

func TestValidPlayerID_MissingExpiration(t *testing.T) {
	useTestKeys()

	id, err := ValidPlayerID(signed(t, jwtgo.RegisteredClaims{
		Audience: jwtgo.ClaimStrings{Audience},
		Issuer:   Issuer,
		Subject:  "15",
	}))
	assert.ErrorIs(t, err, jwtgo.ErrTokenRequiredClaimMissing)
	assert.Equal(t, int64(0), id)
}

func TestValidPlayerID_Expired(t *testing.T) {
	useTestKeys()

	id, err := ValidPlayerID(signed(t, jwtgo.RegisteredClaims{
		Audience:  jwtgo.ClaimStrings{Audience},
		ID:        uuid.New().String(),
		IssuedAt:  jwtgo.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(-1 * time.Hour)),
		Issuer:    Issuer,
		Subject:   "15",
	}))
	assert.ErrorIs(t, err, jwtgo.ErrTokenExpired)
	assert.Equal(t, int64(0), id)
}

func TestLoadKeys_files(t *testing.T) {
	dir := t.TempDir()
	publicPath := filepath.Join(dir, "public.pem")
	privatePath := filepath.Join(dir, "private.key")

	publicDER, err := x509.MarshalPKIXPublicKey(&testKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}), 0600))
	require.NoError(t, os.WriteFile(privatePath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(testKey)}), 0600))

	public, err := loadPublicKey(publicPath)
	assert.NoError(t, err)
	assert.True(t, testKey.PublicKey.Equal(public))

	private, err := loadPrivateKey(privatePath)
	assert.NoError(t, err)
	assert.True(t, testKey.Equal(private))

	_, err = loadPublicKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}
