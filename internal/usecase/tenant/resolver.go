// Package tenant resolves bearer credentials into tenant contexts.
package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	domtenant "github.com/kailas-cloud/machinegpt/internal/domain/tenant"
)

const bearerPrefix = "Bearer "

// Claims is the JWT payload issued to operators.
type Claims struct {
	ProducerID    int64   `json:"producer_id"`
	EndCustomerID int64   `json:"end_customer_id,omitempty"`
	UserID        int64   `json:"user_id,omitempty"`
	MachineIDs    []int64 `json:"machine_ids,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the token verification settings.
type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Resolver verifies HS256 tokens.
type Resolver struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewResolver creates a Resolver. An empty Issuer disables the issuer check.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	r := &Resolver{secret: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return r.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	r.parser = jwt.NewParser(opts...)
	return r, nil
}

// Resolve turns "Bearer <jwt>" (or a bare token) into a tenant context.
// Every failure, including a token without a producer, is ErrUnauthenticated.
func (r *Resolver) Resolve(credential string) (domtenant.Context, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), bearerPrefix))
	if raw == "" {
		return domtenant.Context{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthenticated)
	}

	var claims Claims
	if _, err := r.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}); err != nil {
		return domtenant.Context{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	tc, err := domtenant.New(claims.ProducerID, claims.EndCustomerID, claims.UserID, claims.MachineIDs)
	if err != nil {
		return domtenant.Context{}, fmt.Errorf("%w: token has no producer", domain.ErrUnauthenticated)
	}
	return tc, nil
}

// Issue signs a token for tc valid for ttl. Used by the operator CLI and tests;
// production tokens come from the account service.
func (r *Resolver) Issue(tc domtenant.Context, ttl time.Duration) (string, error) {
	if err := tc.Validate(); err != nil {
		return "", err
	}
	now := r.now()
	claims := Claims{
		ProducerID: tc.ProducerID(),
		MachineIDs: tc.MachineIDs(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if id, ok := tc.EndCustomerID(); ok {
		claims.EndCustomerID = id
	}
	if id, ok := tc.UserID(); ok {
		claims.UserID = id
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
