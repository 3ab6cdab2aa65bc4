package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the scope an embedded editor was opened for.
type Claims struct {
	jwt.RegisteredClaims
	DocID    string `json:"docId,omitempty"`
	JobID    string `json:"jobId"`
	FolderID string `json:"folderId,omitempty"`
	Perms    string `json:"perms"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Scope returns the document scope the token grants.
func (c Claims) Scope() doc.Scope {
	return doc.Scope{JobID: c.JobID, FolderID: c.FolderID}
}

// Perm returns the normalized permission.
func (c Claims) Perm() rbac.Perm {
	return rbac.Normalize(c.Perms)
}

func IssueToken(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("issue token: empty secret")
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 embed token. A token must name a job or a
// folder and carry an expiry.
func ParseToken(secret []byte, token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if !claims.Scope().Valid() {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
