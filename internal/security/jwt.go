package security

import (
	"anchor/internal/config"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoBearerToken = errors.New("authorization header must be: Bearer <token>")
)

// Operator scopes
const (
	ScopeBatchWrite = "batch:write" // trigger batches, confirm settlement
)

// Claims are the registered claims plus a space separated scope list
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(strings.Fields(c.Scope), scope)
}

type Verifier interface {
	VerifyBearer(authHeader string) (*Claims, error)
}

// RS256Verifier checks RS256 tokens with audience/issuer, allowing clock skew of leeway
type RS256Verifier struct {
	pubKey *rsa.PublicKey
	aud    string
	iss    string
	leeway time.Duration
}

var _ Verifier = (*RS256Verifier)(nil)

// Empty audience/issuer are not checked
func NewRS256Verifier(cfg *config.JWTConfig) (*RS256Verifier, error) {
	if cfg == nil {
		return nil, errors.New("jwt config is required to the verifier")
	}
	if cfg.Alg != "" && cfg.Alg != jwt.SigningMethodRS256.Alg() {
		return nil, fmt.Errorf("unsupported jwt alg %q", cfg.Alg)
	}

	b, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	pub, err := parseRSAPublicKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}

	return &RS256Verifier{
		pubKey: pub,
		aud:    cfg.Audience,
		iss:    cfg.Issuer,
		leeway: leeway,
	}, nil
}

func (v *RS256Verifier) VerifyBearer(authHeader string) (*Claims, error) {
	tokenStr, err := extractBearer(authHeader)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), // only RS256
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.aud != "" {
		opts = append(opts, jwt.WithAudience(v.aud))
	}
	if v.iss != "" {
		opts = append(opts, jwt.WithIssuer(v.iss))
	}

	claims := &Claims{}
	if _, err = jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return v.pubKey, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return claims, nil
}

func extractBearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrNoBearerToken
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrNoBearerToken
	}

	return strings.TrimSpace(parts[1]), nil
}

func parseRSAPublicKeyFromPem(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		rsaPub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return rsaPub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unknown public key type: %s", block.Type)
	}
}
