package gateway

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{SecretKey: "test-secret", Audience: "authenticated"}
}

func TestTokenValidator_ValidateJWT(t *testing.T) {
	validator := NewTokenValidator(testJWTConfig())

	tokenString, err := validator.SignToken(&types.UserClaims{
		UserID: "b6f3a7f2-1111-4c55-9d1e-0f7d3a2c9e01",
		Email:  "bs.an@clinic.vn",
		Role:   types.RoleDoctor,
	}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}

	userClaims, err := validator.ValidateJWT(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate valid token: %v", err)
	}

	if userClaims.UserID != "b6f3a7f2-1111-4c55-9d1e-0f7d3a2c9e01" {
		t.Errorf("Expected subject as UserID, got '%s'", userClaims.UserID)
	}

	if userClaims.Email != "bs.an@clinic.vn" {
		t.Errorf("Expected Email 'bs.an@clinic.vn', got '%s'", userClaims.Email)
	}

	if userClaims.Role != types.RoleDoctor {
		t.Errorf("Expected Role 'doctor', got '%s'", userClaims.Role)
	}
}

func TestTokenValidator_DefaultsToPatient(t *testing.T) {
	cfg := testJWTConfig()
	validator := NewTokenValidator(cfg)

	claims := &JWTClaims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	if err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}

	userClaims, err := validator.ValidateJWT(tokenString)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if userClaims.Role != types.RolePatient {
		t.Errorf("Expected Role 'patient', got '%s'", userClaims.Role)
	}
}

func TestTokenValidator_ValidateJWT_InvalidToken(t *testing.T) {
	validator := NewTokenValidator(testJWTConfig())

	// Test invalid token string
	if _, err := validator.ValidateJWT("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}

	// Test token with wrong secret
	other := NewTokenValidator(config.JWTConfig{SecretKey: "wrong-secret", Audience: "authenticated"})
	tokenString, err := other.SignToken(&types.UserClaims{UserID: "user-1", Role: types.RolePatient}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}
	if _, err := validator.ValidateJWT(tokenString); err == nil {
		t.Error("Expected error for token signed with a different secret")
	}

	// Test expired token
	expired, err := validator.SignToken(&types.UserClaims{UserID: "user-1", Role: types.RolePatient}, -time.Minute)
	if err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}
	if _, err := validator.ValidateJWT(expired); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestTokenValidator_RejectsUnknownRoleAndAudience(t *testing.T) {
	cfg := testJWTConfig()
	validator := NewTokenValidator(cfg)

	sign := func(claims *JWTClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
		if err != nil {
			t.Fatalf("Failed to create test token: %v", err)
		}
		return s
	}

	unknownRole := sign(&JWTClaims{
		AppMetadata: AppMetadata{Role: "superuser"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := validator.ValidateJWT(unknownRole); err == nil {
		t.Error("Expected error for unknown role")
	}

	wrongAudience := sign(&JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"anon"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := validator.ValidateJWT(wrongAudience); err == nil {
		t.Error("Expected error for wrong audience")
	}

	noExpiry := sign(&JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "user-1",
			Audience: jwt.ClaimStrings{"authenticated"},
		},
	})
	if _, err := validator.ValidateJWT(noExpiry); err == nil {
		t.Error("Expected error for token without expiry")
	}
}

func TestTokenValidator_Unconfigured(t *testing.T) {
	validator := NewTokenValidator(config.JWTConfig{})
	if _, err := validator.ValidateJWT("anything"); err == nil {
		t.Error("Expected error when no secret is configured")
	}
}
