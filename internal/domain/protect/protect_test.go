package protect_test

import (
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/domain/protect"
)

func TestIsProtected_Defaults(t *testing.T) {
	s := protect.NewSet(nil, nil)
	protected := []string{
		".env",
		"config/.env.production",
		"certs/server.pem",
		"deploy/signing.key",
		".ssh/id_rsa",
		"secrets.yaml",
	}
	for _, p := range protected {
		if !s.IsProtected(p) {
			t.Errorf("expected %q to be protected", p)
		}
	}

	open := []string{"src/main.go", "README.md", "env.go", "keys.go"}
	for _, p := range open {
		if s.IsProtected(p) {
			t.Errorf("expected %q to be unprotected", p)
		}
	}
}

func TestUnconfirmed(t *testing.T) {
	s := protect.NewSet(nil, []string{".env"})
	got := s.Unconfirmed([]string{"src/a.ts", ".env", "certs/ca.pem"})
	if len(got) != 1 || got[0] != "certs/ca.pem" {
		t.Fatalf("expected [certs/ca.pem], got %v", got)
	}
}

func TestCustomPatterns(t *testing.T) {
	s := protect.NewSet([]string{"infra/*.tf"}, nil)
	if !s.IsProtected("infra/main.tf") {
		t.Fatal("custom pattern did not match")
	}
	if s.IsProtected(".env") {
		t.Fatal("defaults must not apply when custom patterns are given")
	}
}
