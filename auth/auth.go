// Package auth hashes passwords and issues the signed bearer tokens the API authenticates with.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var (
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrCredentials  = errors.New("invalid email or password")
	ErrToken        = errors.New("invalid or expired token")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash. A missing hash never matches.
func CheckPassword(hash *string, password string) error {
	if hash == nil || *hash == "" {
		return ErrCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)) != nil {
		return ErrCredentials
	}
	return nil
}

// Claims is what a token asserts about its bearer. The user id travels as the subject.
type Claims struct {
	Email string `json:"email"`
	Admin bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 signed JWTs.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(userID, email string, admin bool) (string, Claims, error) {
	now := t.now()
	c := Claims{
		Email: email,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", c, fmt.Errorf("sign token: %w", err)
	}
	return token, c, nil
}

// Verify checks the signature and expiry of token. Every failure is reported as ErrToken.
func (t *Tokens) Verify(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrToken, err)
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: no subject", ErrToken)
	}
	return c, nil
}
