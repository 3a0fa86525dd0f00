package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendRaft   = "raft"
)

type Config struct {
	Backend   string `yaml:"backend"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
	Tenant    string `yaml:"tenant"`

	NodeID        string   `yaml:"node_id"`
	RaftAddr      string   `yaml:"raft_addr"`
	RaftData      string   `yaml:"raft_data"`
	RaftBootstrap bool     `yaml:"raft_bootstrap"`
	RaftPeers     []string `yaml:"raft_peers"` // id=host:port

	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// LoadConfig loads configuration from a YAML file if path is provided,
// otherwise from environment variables. Environment variables always
// override file values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"FLAGS_BACKEND":    &cfg.Backend,
		"REDIS_URL":        &cfg.RedisURL,
		"FLAGS_KEY_PREFIX": &cfg.KeyPrefix,
		"FLAGS_TENANT":     &cfg.Tenant,
		"NODE_ID":          &cfg.NodeID,
		"RAFT_ADDR":        &cfg.RaftAddr,
		"RAFT_DATA":        &cfg.RaftData,
		"GRPC_ADDR":        &cfg.GRPCAddr,
		"HTTP_ADDR":        &cfg.HTTPAddr,
		"LOG_LEVEL":        &cfg.LogLevel,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("RAFT_PEERS"); v != "" {
		cfg.RaftPeers = strings.Split(v, ",")
	}

	bools := map[string]*bool{
		"RAFT_BOOTSTRAP": &cfg.RaftBootstrap,
		"LOG_JSON":       &cfg.LogJSON,
	}
	for name, dst := range bools {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", name, err)
			}
			*dst = b
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = BackendRedis
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "flags"
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "default"
	}
	if cfg.RedisURL == "" && cfg.Backend == BackendRedis {
		cfg.RedisURL = "redis://127.0.0.1:6379/0"
	}
	if cfg.RaftData == "" && cfg.Backend == BackendRaft {
		cfg.RaftData = fmt.Sprintf("./flagd/%s", cfg.NodeID)
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":9090"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the fields required by the selected backend.
func (cfg *Config) Validate() error {
	if strings.Contains(cfg.KeyPrefix, ":") {
		return fmt.Errorf("key_prefix must not contain ':'")
	}
	if strings.Contains(cfg.Tenant, ":") {
		return fmt.Errorf("tenant must not contain ':'")
	}

	switch cfg.Backend {
	case BackendRedis, BackendMemory:
	case BackendRaft:
		if cfg.NodeID == "" {
			return fmt.Errorf("NODE_ID is required for the raft backend (set via environment or config file)")
		}
		if cfg.RaftAddr == "" {
			return fmt.Errorf("RAFT_ADDR is required for the raft backend (set via environment or config file)")
		}
		if _, err := cfg.ParsedRaftPeers(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return nil
}

// Peer is a member of the initial Raft configuration.
type Peer struct {
	ID   string
	Addr string
}

// ParsedRaftPeers parses RaftPeers entries of the form id=host:port.
func (cfg *Config) ParsedRaftPeers() ([]Peer, error) {
	peers := make([]Peer, 0, len(cfg.RaftPeers))
	for _, entry := range cfg.RaftPeers {
		id, addr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("invalid raft peer %q, want id=host:port", entry)
		}
		peers = append(peers, Peer{ID: id, Addr: addr})
	}
	return peers, nil
}
