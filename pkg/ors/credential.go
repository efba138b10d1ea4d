package ors

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SellerCredential is the per-call seller API token. It is passed into
// every client call and never stored on the client, so concurrent requests
// for different agencies cannot leak each other's credentials.
type SellerCredential struct {
	Token string
}

// Valid reports whether the credential carries a token at all.
func (c SellerCredential) Valid() bool {
	return c.Token != ""
}

// ExpiresSoon inspects the bearer token's exp claim without verifying the
// signature (the provider holds the key, we only warn ahead of rejection).
// Returns false for tokens that do not parse or carry no expiry.
func (c SellerCredential) ExpiresSoon(within time.Duration) bool {
	if c.Token == "" {
		return false
	}
	token, _, err := jwt.NewParser().ParseUnverified(c.Token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < within
}
