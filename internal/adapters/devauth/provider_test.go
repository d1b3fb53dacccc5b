package devauth

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/reachcapital/portal/internal/ports"
)

func TestProvider_BeginAndExchange(t *testing.T) {
	prov, err := NewProvider(Config{Email: "Dev@Example.com"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	authURL, state, nonce, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !strings.HasPrefix(authURL, "/auth/callback?") {
		t.Fatalf("unexpected authURL: %s", authURL)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse authURL: %v", err)
	}
	if u.Query().Get("state") != state || u.Query().Get("code") != "dev" {
		t.Fatalf("callback query mismatch: %s", authURL)
	}
	if state == "" || nonce == "" {
		t.Fatal("state and nonce should be generated")
	}
	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.Email != "dev@example.com" || id.Subject != "dev|dev@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.Metadata != nil {
		t.Fatalf("expected no metadata without a configured role, got %v", id.Metadata)
	}
}

func TestProvider_ConfiguredRole(t *testing.T) {
	prov, err := NewProvider(Config{Email: "admin@example.com", Role: "ADMIN"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.Metadata["role"] != "admin" {
		t.Fatalf("expected admin role, got %v", id.Metadata)
	}

	// Callers can't mutate the provider's copy.
	id.Metadata["role"] = "student"
	again, _ := prov.Exchange(context.Background(), ports.ExchangeInput{})
	if again.Metadata["role"] != "admin" {
		t.Fatal("metadata leaked between exchanges")
	}
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(Config{}); err == nil {
		t.Fatal("expected error for missing email")
	}
	if _, err := NewProvider(Config{Email: "a@example.com", Role: "owner"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
