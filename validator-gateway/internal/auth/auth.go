// Package auth issues and verifies the short-lived credential tokens handed out
// by /get_credentials. Tokens are EdDSA JWTs signed with the gateway key.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
)

var (
	ErrMissingToken = errors.New("authentication required: bearer credential token")
	ErrInvalidToken = errors.New("invalid credential token")
)

// Claims identifies the caller that requested credentials.
type Claims struct {
	UID     int    `json:"uid"`
	Postfix string `json:"postfix"`
	jwt.RegisteredClaims
}

// Issuer mints credential tokens.
type Issuer struct {
	key    ed25519.PrivateKey
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(kp *keys.KeyPair, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{
		key:    kp.PrivateKey(),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a signed token for uid/postfix valid for the issuer's TTL.
func (i *Issuer) Issue(uid int, postfix string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		UID:     uid,
		Postfix: postfix,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.Itoa(uid),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign credential token: %w", err)
	}
	return signed, nil
}

// Verifier checks tokens against the gateway public key.
type Verifier struct {
	pub    ed25519.PublicKey
	issuer string
	now    func() time.Time
}

func NewVerifier(pub ed25519.PublicKey, issuer string) *Verifier {
	return &Verifier{pub: pub, issuer: issuer, now: time.Now}
}

// VerifyRequest extracts the Bearer token from r and validates it.
func (v *Verifier) VerifyRequest(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrMissingToken
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	return v.Parse(tokenStr)
}

// Parse validates signature, algorithm, issuer and expiry.
func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.pub, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
