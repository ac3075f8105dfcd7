package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks bearer tokens issued by the auth backend. Supports HS256
// with a shared secret and RS256 with a public key file.
type Verifier struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewVerifier(alg, secret, pubKeyPath string) (*Verifier, error) {
	v := &Verifier{alg: alg}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		v.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		v.secret = []byte(secret)
	default:
		return nil, fmt.Errorf("unsupported alg %q", alg)
	}
	return v, nil
}

// Validate returns the subject (user id) on success.
func (v *Verifier) Validate(token string) (string, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != v.alg {
			return nil, errors.New("unexpected signing method")
		}
		if v.alg == "RS256" {
			return v.pubKey, nil
		}
		return v.secret, nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{v.alg}))
	parsed, err := parser.Parse(token, keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}
