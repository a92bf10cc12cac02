package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/keenon/AddBiomechanics-sub000/internal/auth"
	"github.com/keenon/AddBiomechanics-sub000/internal/livedir"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

func TestTokenCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIVEDIR_RELAY_JWT_SECRET", "secret")

	a := &app{}
	cmd := a.rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--deployment", "PROD", "--subject", "ci"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	authenticator, _ := auth.New("secret")
	claims, err := authenticator.Validate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Deployment != "PROD" || claims.Subject != "ci" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := (&app{}).rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected an error without relay.jwt_secret")
	}
}

func TestPrintEntry(t *testing.T) {
	var out bytes.Buffer
	printEntry(&out, livedir.PathEntry{
		Folders: []string{"p/z/", "p/a/"},
		Files: []models.FileRecord{
			{Key: "p/2.json", Size: 2048},
			{Key: "p/1.json", Size: 12, LastModified: time.Unix(0, 0)},
		},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	for i, prefix := range []string{"p/a/", "p/z/", "p/1.json", "p/2.json"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
	if !strings.Contains(lines[3], "2.00 KB") {
		t.Errorf("size not formatted: %q", lines[3])
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.50 KB"},
		{5 << 20, "5.00 MB"},
		{3 << 30, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
