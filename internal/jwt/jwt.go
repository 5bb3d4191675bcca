package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"seka-server/internal/config"
)

// Issuer issues the JWT
const Issuer = "seka-server"

// Audience is the intended JWT audience
const Audience = "seka"

// Lifetime is how long a signed token is valid
const Lifetime = 24 * time.Hour

var publicKey *rsa.PublicKey
var privateKey *rsa.PrivateKey

var errInvalidSubject = errors.New("invalid subject")

// LoadKeys will load the public and private keys
// The private key is optional, tokens are normally issued by the identity service.
// this method should only be called once.
func LoadKeys() error {
	cfg := config.Instance().JWT

	var err error
	if publicKey, err = loadPublicKey(cfg.PublicKey); err != nil {
		return err
	}

	if cfg.PrivateKey == "" {
		return nil
	}

	privateKey, err = loadPrivateKey(cfg.PrivateKey)
	return err
}

// Sign will sign a JWT for the player ID
func Sign(playerID int64) (string, error) {
	if privateKey == nil {
		return "", errors.New("no private key loaded")
	}

	now := time.Now()
	token := jwtgo.NewWithClaims(jwtgo.SigningMethodRS256, jwtgo.RegisteredClaims{
		Audience:  jwtgo.ClaimStrings{Audience},
		ID:        uuid.New().String(),
		IssuedAt:  jwtgo.NewNumericDate(now),
		ExpiresAt: jwtgo.NewNumericDate(now.Add(Lifetime)),
		Issuer:    Issuer,
		Subject:   strconv.FormatInt(playerID, 10),
	})

	return token.SignedString(privateKey)
}

// ValidPlayerID will validate a signed JWT and return the player it was issued to
func ValidPlayerID(signedString string) (int64, error) {
	if publicKey == nil {
		panic("LoadKeys() not called")
	}

	claims := &jwtgo.RegisteredClaims{}
	_, err := jwtgo.ParseWithClaims(signedString, claims, func(*jwtgo.Token) (interface{}, error) {
		return publicKey, nil
	},
		jwtgo.WithValidMethods([]string{jwtgo.SigningMethodRS256.Alg()}),
		jwtgo.WithAudience(Audience),
		jwtgo.WithIssuer(Issuer),
		jwtgo.WithExpirationRequired(),
	)
	if err != nil {
		return 0, err
	}

	playerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || playerID <= 0 {
		return 0, errInvalidSubject
	}

	return playerID, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read public key: %w", err)
	}

	pem, err := jwtgo.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse RSA public key: %w", err)
	}

	return pem, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read private key: %w", err)
	}

	pem, err := jwtgo.ParseRSAPrivateKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse RSA private key: %w", err)
	}

	return pem, nil
}

// SetKeys replaces the loaded keys
func SetKeys(public *rsa.PublicKey, private *rsa.PrivateKey) {
	publicKey = public
	privateKey = private
}
