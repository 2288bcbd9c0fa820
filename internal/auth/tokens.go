package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"sampleflow/pkg/domain"
)

// Purpose separates the token families so one kind cannot be replayed as
// another.
type Purpose string

// Token purposes.
const (
	PurposeAccess        Purpose = "access"
	PurposeActivation    Purpose = "activate"
	PurposePasswordReset Purpose = "password-reset"
)

// Default lifetimes.
const (
	DefaultAccessTTL     = 30 * time.Minute
	DefaultAdminTTL      = 26 * 7 * 24 * time.Hour
	DefaultActivationTTL = 7 * 24 * time.Hour
	DefaultResetTTL      = time.Hour
)

// DefaultIssuer is the iss claim written by the service.
const DefaultIssuer = "sampleflow"

const consumedCacheSize = 4096

var (
	// ErrInvalidToken covers bad signatures, wrong purposes and expiry.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenUsed is returned for a password reset token that was already redeemed.
	ErrTokenUsed = errors.New("token already used")
)

// Claims is the JWT payload shared by every token family.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
	Email   string  `json:"email"`
	Admin   bool    `json:"admin,omitempty"`
}

// UserID returns the numeric subject of an access token.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Tokens signs and verifies HS256 tokens. Redeemed password reset tokens are
// remembered until they would have expired anyway.
type Tokens struct {
	secret        []byte
	issuer        string
	activationTTL time.Duration
	resetTTL      time.Duration
	now           func() time.Time
	consumed      *expirable.LRU[string, struct{}]
}

// NewTokens returns a signer using secret.
func NewTokens(secret []byte, issuer string) *Tokens {
	return &Tokens{
		secret:        secret,
		issuer:        issuer,
		activationTTL: DefaultActivationTTL,
		resetTTL:      DefaultResetTTL,
		now:           time.Now,
		consumed:      expirable.NewLRU[string, struct{}](consumedCacheSize, nil, DefaultResetTTL),
	}
}

// SetNow overrides the clock used for issuing and validating tokens.
func (t *Tokens) SetNow(fn func() time.Time) {
	if fn != nil {
		t.now = fn
	}
}

// IssueAccess returns a session token for user valid for ttl.
func (t *Tokens) IssueAccess(user domain.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return t.sign(PurposeAccess, strconv.FormatInt(user.ID, 10), user.Email, user.IsAdmin, ttl)
}

// ParseAccess verifies a session token.
func (t *Tokens) ParseAccess(token string) (Claims, error) {
	return t.parse(token, PurposeAccess)
}

// IssueActivation returns an account activation token for email.
func (t *Tokens) IssueActivation(email string) (string, error) {
	return t.sign(PurposeActivation, email, email, false, t.activationTTL)
}

// ParseActivation returns the email an activation token was issued for.
func (t *Tokens) ParseActivation(token string) (string, error) {
	claims, err := t.parse(token, PurposeActivation)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// IssuePasswordReset returns a single use password reset token for email.
func (t *Tokens) IssuePasswordReset(email string) (string, error) {
	return t.sign(PurposePasswordReset, email, email, false, t.resetTTL)
}

// ParsePasswordReset verifies a reset token. Tokens passed to
// ConsumePasswordReset are rejected with ErrTokenUsed. The consumed set is
// process local and expires on wall clock time, so callers should also
// reject tokens issued before the account's last password change.
func (t *Tokens) ParsePasswordReset(token string) (Claims, error) {
	claims, err := t.parse(token, PurposePasswordReset)
	if err != nil {
		return Claims{}, err
	}
	if t.consumed.Contains(claims.ID) {
		return Claims{}, ErrTokenUsed
	}
	return claims, nil
}

// IssuedBefore reports whether the token was issued in a whole second
// earlier than at.
func (c Claims) IssuedBefore(at time.Time) bool {
	if c.IssuedAt == nil || at.IsZero() {
		return false
	}
	return c.IssuedAt.Time.Before(at.Truncate(time.Second))
}

// ConsumePasswordReset marks a reset token as redeemed.
func (t *Tokens) ConsumePasswordReset(token string) {
	claims, err := t.parse(token, PurposePasswordReset)
	if err != nil {
		return
	}
	t.consumed.Add(claims.ID, struct{}{})
}

func (t *Tokens) sign(purpose Purpose, subject, email string, admin bool, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
		Email:   email,
		Admin:   admin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (t *Tokens) parse(token string, purpose Purpose) (Claims, error) {
	var claims Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidToken, purpose, claims.Purpose)
	}
	return claims, nil
}
