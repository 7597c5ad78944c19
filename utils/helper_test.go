package utils

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestFormatPhoneE164(t *testing.T) {
	cases := []struct {
		in, region, want string
	}{
		{"(650) 253-0000", "US", "+16502530000"},
		{"+44 20 7031 3000", "US", "+442070313000"},
		{"+1-555-0101", "US", "+1-555-0101"},
		{"  ", "US", ""},
		{"not a phone", "US", "not a phone"},
	}
	for _, tc := range cases {
		if got := FormatPhoneE164(tc.in, tc.region); got != tc.want {
			t.Fatalf("FormatPhoneE164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTitleizeLocalPart(t *testing.T) {
	cases := map[string]string{
		"john.doe@abc.com":     "John Doe",
		"ALICE_chen@abc.com":   "Alice Chen",
		"bob@abc.com":          "Bob",
		"mary-ann+yt@test.org": "Mary Ann Yt",
	}
	for in, want := range cases {
		if got := TitleizeLocalPart(in); got != want {
			t.Fatalf("TitleizeLocalPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("a@x.com") {
		t.Fatalf("expected a@x.com to be valid")
	}
	if IsValidEmail("a@x") || IsValidEmail("not-an-email") {
		t.Fatalf("expected invalid emails to be rejected")
	}
}

func TestProcessValidationErrors(t *testing.T) {
	type sample struct {
		Email string `validate:"required,email"`
	}
	err := validator.New().Struct(sample{Email: "nope"})
	got := ProcessValidationErrors(err)
	if got["Email"] != "email" {
		t.Fatalf("unexpected validation map: %v", got)
	}
}
