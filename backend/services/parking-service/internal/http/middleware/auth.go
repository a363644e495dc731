package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	operatorKey  contextKey = "operator"
	requestIDKey contextKey = "requestID"
)

// Operator roles.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Claims represents the operator token payload.
type Claims struct {
	UserID int64   `json:"user_id"`
	Role   string  `json:"role"`
	LotIDs []int64 `json:"lot_ids,omitempty"`
	jwt.RegisteredClaims
}

// Operator is the authenticated caller.
type Operator struct {
	UserID int64
	Role   string
	LotIDs []int64
}

// CanManageLot reports whether the operator may act on the lot. Admins and operators
// without a lot list are unrestricted.
func (o Operator) CanManageLot(lotID int64) bool {
	if o.Role == RoleAdmin || len(o.LotIDs) == 0 {
		return true
	}
	for _, id := range o.LotIDs {
		if id == lotID {
			return true
		}
	}
	return false
}

// TokenIssuer creates and validates operator tokens.
type TokenIssuer struct {
	secret    []byte
	expiresIn time.Duration
}

// NewTokenIssuer returns configured issuer.
func NewTokenIssuer(secret string, expiresIn time.Duration) *TokenIssuer {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiresIn: expiresIn}
}

// Issue signs a token for the operator.
func (t *TokenIssuer) Issue(op Operator) (string, error) {
	if op.UserID == 0 {
		return "", errors.New("token: user id is required")
	}
	if op.Role == "" {
		op.Role = RoleOperator
	}

	now := time.Now().UTC()
	claims := Claims{
		UserID: op.UserID,
		Role:   op.Role,
		LotIDs: op.LotIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate verifies and decodes a token.
func (t *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token: invalid claims")
	}
	if claims.UserID == 0 {
		return nil, errors.New("token: user id not present")
	}
	return claims, nil
}

// AuthMiddleware validates bearer tokens and stores the operator in the context.
func AuthMiddleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			op := Operator{UserID: claims.UserID, Role: claims.Role, LotIDs: claims.LotIDs}
			ctx := context.WithValue(r.Context(), operatorKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects operators whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if op.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// OperatorFromContext retrieves the operator from request context.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}

// WithOperator returns a context carrying op.
func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}
