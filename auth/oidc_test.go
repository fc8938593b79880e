package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://idp.example.test"
	testClientID = "collectflow"
	testIDPKey   = "idp-signing-key"
)

// hmacKeySet verifies HS256 tokens so tests run without a JWKS endpoint.
type hmacKeySet struct{ key []byte }

func (k hmacKeySet) VerifySignature(_ context.Context, raw string) ([]byte, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed jwt")
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, err
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, k.key); err != nil {
		return nil, err
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func newTestOIDCVerifier(cfg OIDCConfig) *OIDCVerifier {
	v := oidc.NewVerifier(testIssuer, hmacKeySet{key: []byte(testIDPKey)}, &oidc.Config{
		ClientID:             testClientID,
		SupportedSigningAlgs: []string{"HS256"},
	})
	return newOIDCVerifier(v, cfg)
}

func idpToken(t *testing.T, extra jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"sub": "idp-user-7",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testIDPKey))
	if err != nil {
		t.Fatalf("sign idp token: %v", err)
	}
	return signed
}

func TestOIDCVerifier_MapsClaims(t *testing.T) {
	v := newTestOIDCVerifier(OIDCConfig{})

	claims, err := v.VerifyToken(idpToken(t, jwt.MapClaims{"org_id": "org-9", "role": "manager"}))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "idp-user-7" || claims.OrganizationID != "org-9" || claims.Role != RoleManager {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestOIDCVerifier_CustomClaimNamesAndViewerDefault(t *testing.T) {
	v := newTestOIDCVerifier(OIDCConfig{OrgClaim: "tenant", RoleClaim: "collectflow_role"})

	claims, err := v.VerifyToken(idpToken(t, jwt.MapClaims{"tenant": "org-3"}))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.OrganizationID != "org-3" || claims.Role != RoleViewer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestOIDCVerifier_Rejects(t *testing.T) {
	v := newTestOIDCVerifier(OIDCConfig{})

	cases := map[string]string{
		"missing org":  idpToken(t, nil),
		"bad role":     idpToken(t, jwt.MapClaims{"org_id": "org-1", "role": "janitor"}),
		"wrong aud":    idpToken(t, jwt.MapClaims{"org_id": "org-1", "aud": "someone-else"}),
		"wrong issuer": idpToken(t, jwt.MapClaims{"org_id": "org-1", "iss": "https://evil.test"}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	chain := Chain{svc, newTestOIDCVerifier(OIDCConfig{})}

	local, err := svc.IssueToken(Claims{UserID: "u-1", OrganizationID: "org-1", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if c, err := chain.VerifyToken(local); err != nil || c.Role != RoleAdmin {
		t.Fatalf("expected local token to verify, got %+v %v", c, err)
	}

	if c, err := chain.VerifyToken(idpToken(t, jwt.MapClaims{"org_id": "org-2"})); err != nil || c.OrganizationID != "org-2" {
		t.Fatalf("expected idp token to verify, got %+v %v", c, err)
	}

	if _, err := chain.VerifyToken("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := (Chain{}).VerifyToken("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken from empty chain, got %v", err)
	}
}
