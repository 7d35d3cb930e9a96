package identity

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	dErrors "bloomence/pkg/domain-errors"
)

// KeyProvider resolves the provider signing key for a key ID.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// idTokenClaims mirrors the claims we read from provider ID tokens.
type idTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// JWTVerifier validates RS256 ID tokens issued by the configured provider.
// Construct once at process start and inject wherever verification happens.
type JWTVerifier struct {
	keys     KeyProvider
	issuer   string
	audience string
}

func NewJWTVerifier(keys KeyProvider, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{keys: keys, issuer: issuer, audience: audience}
}

// Verify checks signature, expiry, issuer and audience, and returns the
// decoded claims. All failures map to CodeUnauthorized except a key lookup
// failure, which is the verification service being unavailable.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	var keyErr error
	parsed, err := jwt.ParseWithClaims(token, &idTokenClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if keyErr != nil && !errors.Is(keyErr, ErrUnknownKey) {
			return nil, dErrors.Wrap(keyErr, dErrors.CodeUnavailable, "token verification unavailable")
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*idTokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	return &Claims{
		UID:   claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}
