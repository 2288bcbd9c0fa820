// Package auth hashes passwords and issues the signed tokens used for
// sessions, account activation and password resets.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost
// is outside the accepted range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash returns the encoded bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

// Verify reports whether password matches hash.
func (h BcryptHasher) Verify(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NeedsRehash reports whether hash was produced with a different cost.
func (h BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	want := h.Cost
	if want == 0 {
		want = bcrypt.DefaultCost
	}
	return cost != want
}

// MinSecretLength is the shortest configured signing secret accepted.
const MinSecretLength = 17

// ErrWeakSecret is returned by ResolveSecret for short configured secrets.
var ErrWeakSecret = errors.New("signing secret too short")

// RandomSecret returns 32 random bytes suitable as an HMAC key.
func RandomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return b, nil
}

// ResolveSecret returns configured when it is long enough. Otherwise a random
// secret is generated and ErrWeakSecret is returned alongside it so callers can
// warn that tokens will not survive a restart.
func ResolveSecret(configured string) ([]byte, error) {
	if len(configured) >= MinSecretLength {
		return []byte(configured), nil
	}
	secret, err := RandomSecret()
	if err != nil {
		return nil, err
	}
	return secret, ErrWeakSecret
}
