package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc"
)

const oidcVerifyTimeout = 10 * time.Second

// Verifier turns a bearer token into caller claims.
type Verifier interface {
	VerifyToken(token string) (Claims, error)
}

// OIDCConfig maps identity provider tokens onto collectflow claims.
type OIDCConfig struct {
	Issuer   string
	ClientID string
	// OrgClaim and RoleClaim name the custom claims that carry the tenant and
	// role. Tokens without a role claim are treated as viewers.
	OrgClaim  string
	RoleClaim string
}

// OIDCVerifier accepts ID tokens from an external OpenID Connect provider.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	orgClaim  string
	roleClaim string
}

// NewOIDCVerifier discovers the provider at cfg.Issuer and verifies tokens
// issued for cfg.ClientID.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("auth: oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: oidc discovery: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, cfg OIDCConfig) *OIDCVerifier {
	o := &OIDCVerifier{verifier: v, orgClaim: cfg.OrgClaim, roleClaim: cfg.RoleClaim}
	if o.orgClaim == "" {
		o.orgClaim = "org_id"
	}
	if o.roleClaim == "" {
		o.roleClaim = "role"
	}
	return o
}

func (o *OIDCVerifier) VerifyToken(raw string) (Claims, error) {
	ctx, cancel := context.WithTimeout(context.Background(), oidcVerifyTimeout)
	defer cancel()

	token, err := o.verifier.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var custom map[string]any
	if err := token.Claims(&custom); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	orgID, _ := custom[o.orgClaim].(string)
	role := RoleViewer
	if r, ok := custom[o.roleClaim].(string); ok && r != "" {
		role = Role(r)
	}
	if token.Subject == "" || orgID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or %s", ErrInvalidToken, o.orgClaim)
	}
	if !role.Valid() {
		return Claims{}, fmt.Errorf("%w: role %q", ErrInvalidToken, role)
	}
	return Claims{UserID: token.Subject, OrganizationID: orgID, Role: role}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) VerifyToken(token string) (Claims, error) {
	var errs []error
	for _, v := range c {
		claims, err := v.VerifyToken(token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Claims{}, ErrInvalidToken
	}
	return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.Join(errs...))
}
