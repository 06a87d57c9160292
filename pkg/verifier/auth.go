package verifier

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth carries credentials for pact sources and brokers. Token takes
// precedence over basic credentials when both are set.
type Auth struct {
	Username string
	Password string
	Token    string
}

// apply decorates a request with the configured credentials.
func (a Auth) apply(req *http.Request) {
	switch {
	case a.Token != "":
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case a.Username != "":
		req.SetBasicAuth(a.Username, a.Password)
	}
}

// check inspects a bearer token before use. JWT-shaped tokens with an
// expiry in the past produce an error up front, which beats a bare 401
// from the broker.
func (a Auth) check() error {
	if a.Token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(a.Token, claims); err != nil {
		// Not a JWT; opaque tokens pass through untouched.
		return nil
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil
	}
	if expiry.Before(time.Now()) {
		return fmt.Errorf("bearer token expired at %s", expiry.Format(time.RFC3339))
	}
	return nil
}
