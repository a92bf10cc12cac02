package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Deployment != "DEV" {
		t.Errorf("deployment = %q", cfg.Deployment)
	}
	if cfg.S3.Bucket != "livedir" || cfg.S3.Region != "us-east-1" || !cfg.S3.UseSSL {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.SignedURLTTL != time.Hour {
		t.Errorf("signed_url_ttl = %v", cfg.SignedURLTTL)
	}
	if cfg.Relay.ListenAddr != ":8090" {
		t.Errorf("relay.listen_addr = %q", cfg.Relay.ListenAddr)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "livedir.yaml")
	content := `
root: protected/us-west-2:abc/data
deployment: PROD
signed_url_ttl: 15m
s3:
  endpoint: localhost:9000
  bucket: biomechanics
  use_ssl: false
relay:
  url: http://localhost:8090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "protected/us-west-2:abc/data" || cfg.Deployment != "PROD" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SignedURLTTL != 15*time.Minute {
		t.Errorf("signed_url_ttl = %v", cfg.SignedURLTTL)
	}
	if cfg.S3.Endpoint != "localhost:9000" || cfg.S3.Bucket != "biomechanics" || cfg.S3.UseSSL {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.Relay.URL != "http://localhost:8090" {
		t.Errorf("relay.url = %q", cfg.Relay.URL)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVEDIR_DEPLOYMENT", "STAGE")
	t.Setenv("LIVEDIR_S3_BUCKET", "from-env")
	t.Setenv("LIVEDIR_RELAY_JWT_SECRET", "s3cret")

	cfg, err := LoadFromString("deployment: PROD\n")
	if err != nil {
		t.Fatalf("LoadFromString: %v", err)
	}
	if cfg.Deployment != "STAGE" {
		t.Errorf("deployment = %q, want env override", cfg.Deployment)
	}
	if cfg.S3.Bucket != "from-env" {
		t.Errorf("bucket = %q", cfg.S3.Bucket)
	}
	if cfg.Relay.JWTSecret != "s3cret" {
		t.Errorf("jwt secret = %q", cfg.Relay.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty deployment", "deployment: \"\"\n"},
		{"deployment with slash", "deployment: a/b\n"},
		{"empty bucket", "s3:\n  bucket: \"\"\n"},
		{"negative ttl", "signed_url_ttl: -1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromString(tt.yaml); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
