package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig holds the ops endpoint listen settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds the on-disk layout.
type StorageConfig struct {
	// LogDir is the base directory of the sharded record logs.
	LogDir string `yaml:"log_dir"`
	// BlobPath is the pebble database for offloaded debug payloads.
	BlobPath string `yaml:"blob_path"`
	// UIStatePath is the bbolt database for the UI-state collaborator.
	UIStatePath string `yaml:"uistate_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MaintenanceConfig controls the scheduled compaction sweep.
type MaintenanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// RateBytesPerSec paces compaction writes; zero means unpaced.
	RateBytesPerSec int              `yaml:"rate_bytes_per_sec"`
	Compaction      CompactionConfig `yaml:"compaction"`
}

// CompactionConfig mirrors the compactor options.
type CompactionConfig struct {
	CreateBackup              *bool `yaml:"create_backup"`
	RemoveActiveBranchChanged *bool `yaml:"remove_active_branch_changed"`
	RemoveMessageOrderChanged *bool `yaml:"remove_message_order_changed"`
	StripDebugData            *bool `yaml:"strip_debug_data"`
	MoveDebugToBlobs          *bool `yaml:"move_debug_to_blobs"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	port := c.Server.Port
	if port == 0 {
		port = 8991
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, port)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	LogDir string
	Config string
	Set    map[string]bool
}

// ParseCommandFlags parses command-line flags.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8991", "ops HTTP listen address")
	dirPtr := flag.String("logdir", "./.branchlogs", "record log base directory")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, LogDir: *dirPtr, Config: *cfgPtr, Set: set}
}

// EffectiveConfigResult is the merged configuration the app runs with.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	LogDir string
	Source string // "flags", "config", or "env"
}

// LoadEffective merges config file, environment and flags. Flags win over
// env, env wins over file.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	eff := EffectiveConfigResult{Config: &Config{}, Source: "flags"}

	cfgPath := flags.Config
	if v := os.Getenv("BRANCHDB_CONFIG"); v != "" && !flags.Set["config"] {
		cfgPath = v
	}
	if cfgPath != "" {
		cfg, err := Load(cfgPath)
		if err == nil {
			eff.Config = cfg
			eff.Source = "config"
		} else if !os.IsNotExist(err) {
			return eff, err
		}
	}

	applyEnv(eff.Config, &eff)

	eff.Addr = eff.Config.Addr()
	if flags.Set["addr"] {
		eff.Addr = flags.Addr
	}
	eff.LogDir = eff.Config.Storage.LogDir
	if eff.LogDir == "" || flags.Set["logdir"] {
		eff.LogDir = flags.LogDir
	}
	if eff.Config.Storage.BlobPath == "" {
		eff.Config.Storage.BlobPath = eff.LogDir + "/.blobs"
	}
	if eff.Config.Storage.UIStatePath == "" {
		eff.Config.Storage.UIStatePath = eff.LogDir + "/.uistate/ui.db"
	}
	return eff, nil
}

func applyEnv(cfg *Config, eff *EffectiveConfigResult) {
	envUsed := false
	if v := os.Getenv("BRANCHDB_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
		envUsed = true
	}
	if v := os.Getenv("BRANCHDB_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			envUsed = true
		}
	}
	if v := os.Getenv("BRANCHDB_STORAGE_LOG_DIR"); v != "" {
		cfg.Storage.LogDir = v
		envUsed = true
	}
	if v := os.Getenv("BRANCHDB_STORAGE_BLOB_PATH"); v != "" {
		cfg.Storage.BlobPath = v
		envUsed = true
	}
	if v := os.Getenv("BRANCHDB_STORAGE_UISTATE_PATH"); v != "" {
		cfg.Storage.UIStatePath = v
		envUsed = true
	}
	if v := os.Getenv("BRANCHDB_MAINTENANCE_ENABLED"); v != "" {
		cfg.Maintenance.Enabled = parseBool(v)
		envUsed = true
	}
	if v := os.Getenv("BRANCHDB_MAINTENANCE_CRON"); v != "" {
		cfg.Maintenance.Cron = v
		envUsed = true
	}
	if envUsed {
		eff.Source = "env"
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
