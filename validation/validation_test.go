package validation

import (
	"testing"

	"github.com/kbukum/accountguard/errors"
)

func TestValidator_ChainCollectsAllErrors(t *testing.T) {
	v := New().
		Required("username", "").
		MinLength("password", "abc", 8)

	appErr := v.Validate()
	if appErr == nil {
		t.Fatal("expected validation error")
	}
	if appErr.Code != errors.ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %v", appErr.Details["fields"])
	}
}

func TestValidator_CleanInputPasses(t *testing.T) {
	v := New().
		Username("username", "alice_01").
		MinLength("password", "correct horse", 8)
	if appErr := v.Validate(); appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
}

func TestValidator_Username(t *testing.T) {
	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{"simple", "alice", true},
		{"with separators", "alice.the-2nd_", true},
		{"empty", "", false},
		{"too short", "ab", false},
		{"leading dot", ".alice", false},
		{"spaces", "alice smith", false},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := New().Username("username", tt.username).Validate()
			if tt.valid && appErr != nil {
				t.Errorf("%q: unexpected error %v", tt.username, appErr)
			}
			if !tt.valid && appErr == nil {
				t.Errorf("%q: expected rejection", tt.username)
			}
		})
	}
}

func TestValidator_Mnemonic(t *testing.T) {
	if err := New().Mnemonic("recovery_phrase", "one two three", 3).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := New().Mnemonic("recovery_phrase", "  one   two  three ", 3).Validate(); err != nil {
		t.Errorf("whitespace must be normalized before counting: %v", err)
	}
	if err := New().Mnemonic("recovery_phrase", "one two", 3).Validate(); err == nil {
		t.Error("short phrase must be rejected")
	}
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Username string `json:"username" validate:"required,min=3"`
		Secret   string `json:"secret" validate:"required"`
	}

	if err := ValidateStruct(request{Username: "alice", Secret: "s3cret"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateStruct(request{Username: "al"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr := errors.As(err)
	if appErr == nil || appErr.Code != errors.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
