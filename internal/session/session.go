// Package session models the authenticated session as an explicit value
// threaded into the gateway and presentation layers, rather than a
// process-wide singleton. Tests construct a Session literal; nothing here
// requires global setup or teardown.
package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waymark-app/waymark/internal/domain"
)

// Session carries the bearer credential, the server base URL, and the
// feature-entitlement snapshot for one signed-in user.
type Session struct {
	BaseURL string
	Bearer  string

	UserID       int64
	Entitlements []string
	ExpiresAt    time.Time
}

// claims is the subset of the bearer JWT this client reads. The token is
// verified by the server on every request; the client parses it unverified
// only to fast-fail obviously expired credentials and to learn its own user
// id without an extra round trip.
type claims struct {
	Entitlements []string `json:"entitlements"`
	jwt.RegisteredClaims
}

// FromBearer builds a Session from a server base URL and a bearer JWT.
// A token that is not parseable as a JWT still yields a usable Session
// (opaque tokens are legal); expiry checks then always pass locally and the
// server remains the judge.
func FromBearer(baseURL, bearer string) (Session, error) {
	if baseURL == "" {
		return Session{}, fmt.Errorf("session.FromBearer: empty base URL: %w", domain.ErrInvalidInput)
	}
	if bearer == "" {
		return Session{}, fmt.Errorf("session.FromBearer: empty bearer credential: %w", domain.ErrInvalidInput)
	}

	s := Session{BaseURL: baseURL, Bearer: bearer}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, &c); err != nil {
		return s, nil
	}
	if c.Subject != "" {
		if id, err := strconv.ParseInt(c.Subject, 10, 64); err == nil {
			s.UserID = id
		}
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	s.Entitlements = c.Entitlements
	return s, nil
}

// Expired reports whether the credential's recorded expiry has passed.
// Zero ExpiresAt (opaque token) never expires locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Entitled reports whether the session carries the named entitlement.
func (s Session) Entitled(name string) bool {
	for _, e := range s.Entitlements {
		if e == name {
			return true
		}
	}
	return false
}
