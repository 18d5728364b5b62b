package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the request carries no token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Config holds the verification parameters shared with the identity provider.
type Config struct {
	Secret string
	Issuer string
}

// Verifier checks HS256 tokens against Config. Tokens must carry a subject and an expiry.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// tokenClaims accepts both the OAuth "scope" string and a "scopes" list or string.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scope  scopeList `json:"scope,omitempty"`
	Scopes scopeList `json:"scopes,omitempty"`
}

type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("scopes must be a string or a list of strings: %w", err)
	}
	*s = strings.Fields(joined)
	return nil
}

// Verify validates raw and returns the caller it identifies.
func (v *Verifier) Verify(raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	var claims tokenClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	scopes := slices.Concat(claims.Scope, claims.Scopes)
	return NewPrincipal(claims.Subject, claims.ExpiresAt.Time, scopes...), nil
}
