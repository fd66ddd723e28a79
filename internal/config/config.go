// Package config loads the host configuration from YAML. Missing fields
// fall back to defaults; Validate rejects values the host cannot run with.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	Chain   ChainSpec   `yaml:"chain"`
	Gateway GatewaySpec `yaml:"gateway"`
	Fire    FireSpec    `yaml:"fire"`
}

// ChainSpec configures the registry read path.
type ChainSpec struct {
	RPCEndpoint    string `yaml:"rpc_endpoint"`
	Registry       string `yaml:"registry"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GatewaySpec configures content fetches for cards and manifests.
type GatewaySpec struct {
	IPFSGateway    string `yaml:"ipfs_gateway"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// FireSpec sets the default settings of the reference widget simulation.
type FireSpec struct {
	PresetID  string  `yaml:"preset_id"`
	Size      float64 `yaml:"size"`
	Intensity float64 `yaml:"intensity"`
	Heat      float64 `yaml:"heat"`
	Seed      int64   `yaml:"seed"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("host.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("host.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		DataDir:    "data",
		Chain: ChainSpec{
			TimeoutSeconds: 10,
		},
		Gateway: GatewaySpec{
			IPFSGateway:    "https://ipfs.io",
			TimeoutSeconds: 15,
			MaxBodyBytes:   4 << 20,
		},
		Fire: FireSpec{
			PresetID:  "CLASSIC",
			Size:      0.5,
			Intensity: 0.6,
			Heat:      0.5,
			Seed:      1,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := defaults()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = d.ListenAddr
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = d.Chain.TimeoutSeconds
	}
	if strings.TrimSpace(c.Gateway.IPFSGateway) == "" {
		c.Gateway.IPFSGateway = d.Gateway.IPFSGateway
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = d.Gateway.TimeoutSeconds
	}
	if c.Gateway.MaxBodyBytes <= 0 {
		c.Gateway.MaxBodyBytes = d.Gateway.MaxBodyBytes
	}
	if strings.TrimSpace(c.Fire.PresetID) == "" {
		c.Fire.PresetID = d.Fire.PresetID
	}
	if c.Fire.Seed == 0 {
		c.Fire.Seed = d.Fire.Seed
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Chain.RPCEndpoint != "" && !strings.HasPrefix(c.Chain.RPCEndpoint, "http") {
		return fmt.Errorf("chain rpc_endpoint must be an http(s) URL")
	}
	if unit := c.Fire.Size; unit < 0 || unit > 1 {
		return fmt.Errorf("fire size must be in [0, 1]")
	}
	if unit := c.Fire.Intensity; unit < 0 || unit > 1 {
		return fmt.Errorf("fire intensity must be in [0, 1]")
	}
	if unit := c.Fire.Heat; unit < 0 || unit > 1 {
		return fmt.Errorf("fire heat must be in [0, 1]")
	}
	return nil
}
