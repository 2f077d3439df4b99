package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8090" || cfg.Storage.Prefix != "netchb-duty" || cfg.Storage.PresignTTL != 3600 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dutyrec.yaml")
	body := []byte(`
listen: ":9000"
db_path: custom.db
storage:
  bucket: file-bucket
  presign_ttl_seconds: 600
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	// WHY: deployment secrets arrive via env and must win over the file.
	t.Setenv("DUTYREC_STORAGE_BUCKET", "env-bucket")
	t.Setenv("DUTYREC_PASSPHRASE", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || cfg.DBPath != "custom.db" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Storage.Bucket != "env-bucket" {
		t.Fatalf("env override lost: %q", cfg.Storage.Bucket)
	}
	if cfg.Passphrase != "hunter2" {
		t.Fatal("passphrase env not applied")
	}
	if cfg.PresignTTL().Seconds() != 600 {
		t.Fatalf("PresignTTL = %v", cfg.PresignTTL())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty db_path validated")
	}
}
