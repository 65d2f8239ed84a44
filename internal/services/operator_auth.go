package services

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

const operatorIssuer = "trackchat"

type OperatorClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// OperatorAuth verifies operator bearer tokens. With no secret configured it
// is disabled and every admin request passes as an anonymous operator.
type OperatorAuth interface {
	Enabled() bool
	Issue(operatorID, name string, ttl time.Duration) (string, error)
	Authenticate(ctx context.Context, token string) (context.Context, error)
}

type operatorAuth struct {
	log    *logger.Logger
	secret []byte
}

func NewOperatorAuth(baseLog *logger.Logger, secret string) OperatorAuth {
	return &operatorAuth{
		log:    baseLog.With("service", "OperatorAuth"),
		secret: []byte(strings.TrimSpace(secret)),
	}
}

func (a *operatorAuth) Enabled() bool { return len(a.secret) > 0 }

func (a *operatorAuth) Issue(operatorID, name string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", apierr.Unauthorized("operator auth is disabled")
	}
	if strings.TrimSpace(operatorID) == "" {
		return "", apierr.Validation("missing_operator_id", "operator id is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now()
	claims := OperatorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    operatorIssuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *operatorAuth) Authenticate(ctx context.Context, token string) (context.Context, error) {
	if !a.Enabled() {
		return ctxutil.WithOperatorData(ctx, &ctxutil.OperatorData{OperatorID: "anonymous"}), nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx, apierr.Unauthorized("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(token, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(operatorIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		a.log.Debug("operator token rejected", "error", err)
		return ctx, apierr.Unauthorized("invalid token: %v", err)
	}
	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return ctx, apierr.Unauthorized("invalid token claims")
	}
	return ctxutil.WithOperatorData(ctx, &ctxutil.OperatorData{OperatorID: claims.Subject, Name: claims.Name}), nil
}
