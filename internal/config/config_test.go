package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_HostYAML(t *testing.T) {
	cfg, err := Load("../../configs/host.yaml")
	if err != nil {
		t.Fatalf("load host.yaml: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Chain.Registry == "" || cfg.Chain.RPCEndpoint == "" {
		t.Fatalf("chain = %+v", cfg.Chain)
	}
	if cfg.Gateway.IPFSGateway != "https://ipfs.io" {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Fire.PresetID != "CLASSIC" || cfg.Fire.Seed != 1 {
		t.Fatalf("fire = %+v", cfg.Fire)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DataDir != "data" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Gateway.MaxBodyBytes != 4<<20 {
		t.Fatalf("max_body_bytes = %d", cfg.Gateway.MaxBodyBytes)
	}
}

func TestNormalize_FillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	partial := "listen_addr: \":9999\"\nfire:\n  size: 0.7\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Fire.Size != 0.7 {
		t.Fatalf("fire size = %v", cfg.Fire.Size)
	}
	if cfg.Fire.PresetID != "CLASSIC" || cfg.Gateway.TimeoutSeconds != 15 {
		t.Fatalf("normalize did not fill defaults: %+v", cfg)
	}
}

func TestValidate_RejectsOutOfRangeFire(t *testing.T) {
	cfg, _ := Load("")
	cfg.Fire.Heat = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for heat > 1")
	}

	cfg, _ = Load("")
	cfg.Chain.RPCEndpoint = "ftp://nope"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for non-http rpc endpoint")
	}
}
