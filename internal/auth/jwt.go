// Package auth owns the operator session: the GitHub OAuth handshake and the
// signed cookie that carries the resulting access token between requests.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Operator visits /auth/github/login → redirected to GitHub
//  2. GitHub calls back /auth/github/callback with a code
//  3. Server exchanges the code for an access token, resolves the profile
//  4. Server issues a session JWT in an HttpOnly cookie; the access token
//     travels inside it, sealed so the browser cannot read it
//  5. Later requests present the cookie; middleware validates it and puts
//     the Session in the request context
//
// The server keeps no session table. Everything needed is in the signed token;
// the access token itself is encrypted with a key derived from the same
// secret (see seal.go).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL is how long a session cookie stays valid. GitHub OAuth app
	// tokens do not expire on their own, so this is the effective re-login
	// interval.
	SessionTTL = 8 * time.Hour

	issuer = "portfolio-admin"
)

// MinSecretLength is the shortest accepted AUTH_SECRET.
const MinSecretLength = 16

var (
	ErrNoSession      = errors.New("auth: no session")
	ErrSessionExpired = errors.New("auth: session expired")
)

// Session is the signed-in operator as seen by the server.
type Session struct {
	Login       string
	AvatarURL   string
	AccessToken string
	ExpiresAt   time.Time
}

// TokenService signs and verifies session tokens.
type TokenService struct {
	signKey []byte
	sealer  *sealer
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenService derives the signing and sealing keys from secret.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d characters", MinSecretLength)
	}

	signKey, err := deriveKey(secret, "session signing")
	if err != nil {
		return nil, err
	}
	sealKey, err := deriveKey(secret, "access token sealing")
	if err != nil {
		return nil, err
	}

	return &TokenService{
		signKey: signKey[:],
		sealer:  newSealer(sealKey),
		ttl:     SessionTTL,
		now:     time.Now,
	}, nil
}

// claims is the JWT payload. Subject is the GitHub login.
type claims struct {
	jwt.RegisteredClaims
	Avatar string `json:"avt,omitempty"`
	// Token is the sealed GitHub access token.
	Token string `json:"tkn"`
}

// Issue signs a token for sess, valid for SessionTTL.
func (s *TokenService) Issue(sess Session) (string, error) {
	return s.issue(sess, s.ttl)
}

// IssueWithDuration is Issue with a custom lifetime.
func (s *TokenService) IssueWithDuration(sess Session, d time.Duration) (string, error) {
	return s.issue(sess, d)
}

func (s *TokenService) issue(sess Session, d time.Duration) (string, error) {
	if sess.Login == "" {
		return "", errors.New("auth: session has no login")
	}
	if sess.AccessToken == "" {
		return "", errors.New("auth: session has no access token")
	}

	sealed, err := s.sealer.seal(sess.AccessToken)
	if err != nil {
		return "", err
	}

	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.Login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Avatar: sess.AvatarURL,
		Token:  sealed,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenStr and returns the session inside, access token
// unsealed.
//
// VALIDATION CHECKS:
//   - HS256 signature with our key (no "none", no algorithm swap)
//   - not expired, expiry present
//   - issuer is portfolio-admin
//   - the sealed access token opens with our key
func (s *TokenService) Parse(tokenStr string) (*Session, error) {
	if tokenStr == "" {
		return nil, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.signKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid session claims")
	}
	if c.Subject == "" {
		return nil, errors.New("auth: session has no subject")
	}

	accessToken, err := s.sealer.open(c.Token)
	if err != nil {
		return nil, err
	}

	return &Session{
		Login:       c.Subject,
		AvatarURL:   c.Avatar,
		AccessToken: accessToken,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}
