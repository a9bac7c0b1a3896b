package gateway

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

// TokenValidator verifies access tokens issued by the clinic's auth backend.
// Tokens are HMAC signed; the clinic role lives in app_metadata.role.
type TokenValidator struct {
	jwtSecret []byte
	issuer    string
	audience  string
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(cfg config.JWTConfig) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(cfg.SecretKey),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
	}
}

// ValidateJWT validates a JWT token and returns user claims
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.UserClaims, error) {
	if len(tv.jwtSecret) == 0 {
		return nil, fmt.Errorf("token validation is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}
	if tv.audience != "" {
		opts = append(opts, jwt.WithAudience(tv.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	role := types.UserRole(claims.AppMetadata.Role)
	switch role {
	case types.RolePatient, types.RoleDoctor, types.RoleAdmin:
	case "":
		role = types.RolePatient
	default:
		return nil, fmt.Errorf("unknown role %q", claims.AppMetadata.Role)
	}

	return &types.UserClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// SignToken issues a token for claims valid for ttl
func (tv *TokenValidator) SignToken(claims *types.UserClaims, ttl time.Duration) (string, error) {
	now := time.Now()

	jwtClaims := &JWTClaims{
		Email:       claims.Email,
		Role:        "authenticated",
		AppMetadata: AppMetadata{Role: string(claims.Role)},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tv.issuer,
			Subject:   claims.UserID,
		},
	}
	if tv.audience != "" {
		jwtClaims.Audience = jwt.ClaimStrings{tv.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	tokenString, err := token.SignedString(tv.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// AppMetadata carries claims only the backend can set
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// JWTClaims represents JWT token claims
type JWTClaims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}
