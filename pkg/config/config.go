package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Intake struct {
		Address     string `yaml:"address"`
		Port        int    `yaml:"port"`
		FrameMarker string `yaml:"frame_marker"`
		RateLimit   struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"intake"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Cache struct {
		Capacity  int    `yaml:"capacity"`
		TTL       string `yaml:"ttl"`
		SweepCron string `yaml:"sweep_cron"`
	} `yaml:"cache"`
	Alias struct {
		FlushInterval string `yaml:"flush_interval"`
	} `yaml:"alias"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the read-side HTTP API.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// IntakeAddr returns host:port for the frame/snapshot intake server.
func (c *Config) IntakeAddr() string {
	addr := c.Intake.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Intake.Port
	if p == 0 {
		p = 8081
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// FrameMarker returns the configured frame delimiter marker or the default.
func (c *Config) FrameMarker() string {
	if c.Intake.FrameMarker != "" {
		return c.Intake.FrameMarker
	}
	return "deltas"
}

// CacheCapacity returns the configured cache bound or the default.
func (c *Config) CacheCapacity() int {
	if c.Cache.Capacity > 0 {
		return c.Cache.Capacity
	}
	return 1000
}

// CacheTTL returns the configured record TTL or the default.
func (c *Config) CacheTTL() time.Duration {
	if d, err := time.ParseDuration(c.Cache.TTL); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// SweepCron returns the eviction sweep schedule or the default (every 5m).
func (c *Config) SweepCron() string {
	if c.Cache.SweepCron != "" {
		return c.Cache.SweepCron
	}
	return "*/5 * * * *"
}

// AliasFlushInterval returns the periodic alias flush interval or the default.
func (c *Config) AliasFlushInterval() time.Duration {
	if d, err := time.ParseDuration(c.Alias.FlushInterval); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr, intakeAddr, dbPath, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address for the read API")
	intakePtr := flag.String("intake-addr", ":8081", "listen address for the frame/snapshot intake")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *intakePtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	applyAddr := func(v string, host *string, port *int) {
		if h, p, err := net.SplitHostPort(v); err == nil {
			*host = h
			if pi, err := strconv.Atoi(p); err == nil {
				*port = pi
			}
		} else {
			*host = v
		}
	}

	if v := os.Getenv("MSGLEDGER_ADDR"); v != "" {
		envUsed = true
		applyAddr(v, &cfg.Server.Address, &cfg.Server.Port)
	}
	if v := os.Getenv("MSGLEDGER_INTAKE_ADDR"); v != "" {
		envUsed = true
		applyAddr(v, &cfg.Intake.Address, &cfg.Intake.Port)
	}
	if v := os.Getenv("MSGLEDGER_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("MSGLEDGER_FRAME_MARKER"); v != "" {
		envUsed = true
		cfg.Intake.FrameMarker = v
	}
	if v := os.Getenv("MSGLEDGER_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("MSGLEDGER_CACHE_TTL"); v != "" {
		envUsed = true
		cfg.Cache.TTL = v
	}
	if v := os.Getenv("MSGLEDGER_SWEEP_CRON"); v != "" {
		envUsed = true
		cfg.Cache.SweepCron = v
	}
	if v := os.Getenv("MSGLEDGER_ALIAS_FLUSH"); v != "" {
		envUsed = true
		cfg.Alias.FlushInterval = v
	}
	if v := os.Getenv("MSGLEDGER_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Intake.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("MSGLEDGER_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Intake.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("MSGLEDGER_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads config from the given path (file) and applies
// environment overrides. A missing file is not fatal; defaults apply.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the MSGLEDGER_CONFIG env var when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MSGLEDGER_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
