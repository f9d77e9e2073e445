package main

import (
	"strings"
	"testing"

	"retailnexus/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: ""}); err == nil {
		t.Fatalf("empty secret must be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("short secret must be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strings.Repeat("x", 32)}); err != nil {
		t.Fatalf("32-char secret should pass: %v", err)
	}
}
