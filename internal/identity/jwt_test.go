package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "bloomence/pkg/domain-errors"
)

const (
	testIssuer   = "https://securetoken.example.com/bloomence"
	testAudience = "bloomence"
	testKid      = "key-1"
)

func newTestVerifier(t *testing.T) (*JWTVerifier, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys := StaticKeys{testKid: &priv.PublicKey}
	return NewJWTVerifier(keys, testIssuer, testAudience), priv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(uid string) idTokenClaims {
	return idTokenClaims{
		Email: "ann@example.com",
		Name:  "Ann",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    testIssuer,
			Audience:  []string{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifyValidToken(t *testing.T) {
	v, priv := newTestVerifier(t)
	token := signToken(t, priv, testKid, validClaims("U1"))

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UID != "U1" {
		t.Errorf("UID = %q", claims.UID)
	}
	if claims.Email != "ann@example.com" || claims.Name != "Ann" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyMissingToken(t *testing.T) {
	v, _ := newTestVerifier(t)
	_, err := v.Verify(context.Background(), "")
	if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v, priv := newTestVerifier(t)
	claims := validClaims("U1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signToken(t, priv, testKid, claims)

	_, err := v.Verify(context.Background(), token)
	if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyWrongAudience(t *testing.T) {
	v, priv := newTestVerifier(t)
	claims := validClaims("U1")
	claims.Audience = []string{"someone-else"}
	token := signToken(t, priv, testKid, claims)

	if _, err := v.Verify(context.Background(), token); !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyUnknownKid(t *testing.T) {
	v, priv := newTestVerifier(t)
	token := signToken(t, priv, "rotated-away", validClaims("U1"))

	if _, err := v.Verify(context.Background(), token); !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("unknown kid is a bad token, got %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	v, _ := newTestVerifier(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	token := signToken(t, other, testKid, validClaims("U1"))

	if _, err := v.Verify(context.Background(), token); !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	v, priv := newTestVerifier(t)
	token := signToken(t, priv, testKid, validClaims(""))

	if _, err := v.Verify(context.Background(), token); !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyHMACRejected(t *testing.T) {
	v, _ := newTestVerifier(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("U1"))
	tok.Header["kid"] = testKid
	signed, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Verify(context.Background(), signed); !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		t.Fatalf("alg confusion must be rejected, got %v", err)
	}
}
