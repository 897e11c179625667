package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Giv1ng#Season")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}
	if !CheckPassword("Giv1ng#Season", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
	if CheckPassword("Giv1ng#Season", "not-a-hash") {
		t.Fatalf("expected garbage hash to fail")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		want     error
	}{
		{"Str0ng#Password!", nil},
		{"short1!A", ErrPasswordTooShort},
		{"alllowercase123!", ErrPasswordWeak},
		{"ALLUPPERCASE123!", ErrPasswordWeak},
		{"NoDigitsHere!!!", ErrPasswordWeak},
		{"NoSymbols1234", ErrPasswordWeak},
		{"Aa1!" + strings.Repeat("x", 80), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		if err := ValidatePassword(tt.password); !errors.Is(err, tt.want) {
			t.Fatalf("ValidatePassword(%q) = %v, want %v", tt.password, err, tt.want)
		}
	}
}
