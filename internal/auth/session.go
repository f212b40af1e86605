// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/models"
)

// CookieName is the cookie carrying a guest token.
const CookieName = "auth_token"

// Claims identify a guest player.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Ext    string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies guest tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expire     time.Duration
	now        func() time.Time
}

// NewIssuer generates a fresh key pair. An expire of 0 issues tokens without exp.
func NewIssuer(expire time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, expire: expire, now: time.Now}, nil
}

// NewIssuerFromPath reads an ed25519 key pair from disk.
func NewIssuerFromPath(privatePath, publicPath string, expire time.Duration) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, errors.New("key files are not raw ed25519 keys")
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		expire:     expire,
		now:        time.Now,
	}, nil
}

// ParseExpiry reads a TOKEN_EXPIRE_TIME value. "", "0" and "never" mean no expiry.
func ParseExpiry(s string) (time.Duration, error) {
	switch strings.TrimSpace(s) {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("token expire time must not be negative, got %s", d)
	}
	return d, nil
}

// Issue signs a token with "sub" = player id and the player's display fields.
func (i *Issuer) Issue(p models.Player) (string, error) {
	claims := Claims{
		Name:   p.DisplayName,
		Avatar: p.AvatarURL,
		Ext:    p.ExternalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID.String(),
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	if i.expire > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(i.now().Add(i.expire))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Authenticate verifies a token and returns the player it names.
func (i *Issuer) Authenticate(tokenString string) (models.Player, error) {
	var claims Claims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return models.Player{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return models.Player{}, errors.New("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Player{}, fmt.Errorf("invalid player id in token: %w", err)
	}
	return models.Player{
		ID:          id,
		DisplayName: claims.Name,
		AvatarURL:   claims.Avatar,
		ExternalID:  claims.Ext,
	}, nil
}
