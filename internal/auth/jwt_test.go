package auth

import (
	"testing"

	"github.com/flokr/lendhub/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"

	token, err := GenerateToken(secret, 42, "Alice", model.RoleSteward)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", claims.Name)
	}
	if claims.Role != model.RoleSteward {
		t.Errorf("Role = %q, want steward", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret-a", 1, "Bob", model.RoleBorrower)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ValidateToken("secret-b", token); err == nil {
		t.Error("expected validation to fail with wrong secret")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected validation to fail for garbage input")
	}
}
