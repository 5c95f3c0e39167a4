// Package auth verifies Supabase JWTs via JWKS and validates issuer/audience.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/popules/ticko-sub001/app/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Supabase project JWT signing keys are ES256; legacy projects may still
// publish RS256 keys.
var supabaseSigningMethods = []string{jwt.SigningMethodES256.Name, jwt.SigningMethodRS256.Name}

const clockLeeway = 30 * time.Second

// Verifier validates Supabase access tokens against the project JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifierFromConfig initializes a verifier from the SUPABASE_JWT_* settings.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("SUPABASE_JWT_ISSUER must be set")
	}
	return NewVerifier(cfg.Issuer, cfg.Audience, cfg.JWKSURL)
}

// NewVerifier builds a verifier for a Supabase project. issuer is the
// project's auth URL, "https://<ref>.supabase.co/auth/v1"; the JWKS is read
// from under it unless jwksURL overrides it.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load Supabase JWKS: %w", err)
	}

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keys,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithLeeway(clockLeeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods(supabaseSigningMethods),
		),
	}, nil
}

// Supabase tokens carry iss without a trailing slash, so a configured
// ".../auth/v1/" would never match.
func normalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return supabaseClaims(mapClaims)
}

// supabaseClaims maps a verified access token onto Claims. sub is the
// auth.users id that keys the profile row; email and role are Supabase's own
// top-level claims.
func supabaseClaims(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token missing sub")
	}
	iss, _ := mc.GetIssuer()
	aud, _ := mc.GetAudience()

	claims := &Claims{
		Subject:  sub,
		Issuer:   iss,
		Audience: []string(aud),
		Email:    strings.TrimSpace(stringClaim(mc, "email")),
		Role:     stringClaim(mc, "role"),
		Raw:      mc,
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return s
}
