package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	DefaultSource string // "gsod" or "isd"

	NOAAAddr    string
	NOAATimeout time.Duration

	TMY3Dir string

	WundergroundAPIKey  string // optional; source disabled when empty
	WundergroundURL     string
	WundergroundTimeout time.Duration

	NRELAPIKey   string // optional; ZIP resolution disabled when empty
	ZiplocateURL string
	NRELURL      string

	StationIndexPath string

	CacheBackend string // "file", "in_memory" or "memcached"
	CacheDir     string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	PrewarmStations  []string
	PrewarmYearsBack int
	PrewarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Sources struct {
		Default string `yaml:"default"`
		NOAA    struct {
			Addr    string `yaml:"addr"`
			Timeout string `yaml:"timeout"`
		} `yaml:"noaa"`
		TMY3 struct {
			Dir string `yaml:"dir"`
		} `yaml:"tmy3"`
		Wunderground struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"wunderground"`
		Geocode struct {
			ZiplocateURL string `yaml:"ziplocate_url"`
			NRELURL      string `yaml:"nrel_url"`
		} `yaml:"geocode"`
	} `yaml:"sources"`

	Stations struct {
		IndexPath string `yaml:"index_path"`
	} `yaml:"stations"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Prewarm struct {
		Stations  []string `yaml:"stations"`
		YearsBack int      `yaml:"years_back"`
		Interval  string   `yaml:"interval"`
	} `yaml:"prewarm"`
}

type secretsFile struct {
	WundergroundAPIKey string `yaml:"wunderground_api_key"`
	NRELAPIKey         string `yaml:"nrel_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. API keys come from WUNDERGROUND_API_KEY /
// NREL_API_KEY env or the secrets file; both are optional and gate their
// source. A .env file in the working directory is loaded first when
// present. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; env vars win over .env

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DefaultSource = strings.TrimSpace(strings.ToLower(fc.Sources.Default))
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "gsod"
	}

	cfg.NOAAAddr = fc.Sources.NOAA.Addr
	cfg.NOAATimeout = parseDuration(fc.Sources.NOAA.Timeout, 30*time.Second)
	cfg.TMY3Dir = fc.Sources.TMY3.Dir
	cfg.WundergroundURL = fc.Sources.Wunderground.URL
	cfg.WundergroundTimeout = parseDuration(fc.Sources.Wunderground.Timeout, 10*time.Second)
	cfg.ZiplocateURL = fc.Sources.Geocode.ZiplocateURL
	cfg.NRELURL = fc.Sources.Geocode.NRELURL
	cfg.StationIndexPath = fc.Stations.IndexPath

	cfg.WundergroundAPIKey = os.Getenv("WUNDERGROUND_API_KEY")
	cfg.NRELAPIKey = os.Getenv("NREL_API_KEY")
	if cfg.WundergroundAPIKey == "" || cfg.NRELAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			if cfg.WundergroundAPIKey == "" {
				cfg.WundergroundAPIKey = sec.WundergroundAPIKey
			}
			if cfg.NRELAPIKey == "" {
				cfg.NRELAPIKey = sec.NRELAPIKey
			}
		}
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	cfg.CacheDir = fc.Cache.Dir
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cwd, "data", "series-cache")
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	// Interval queries can trigger multi-year FTP fetches; the request
	// budget has to cover the slowest source.
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 2*time.Minute)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.PrewarmStations = fc.Prewarm.Stations
	cfg.PrewarmYearsBack = fc.Prewarm.YearsBack
	if cfg.PrewarmYearsBack <= 0 {
		cfg.PrewarmYearsBack = 2
	}
	cfg.PrewarmInterval = parseDuration(fc.Prewarm.Interval, 6*time.Hour)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.DefaultSource {
	case "gsod", "isd":
		// valid
	default:
		return fmt.Errorf("sources.default must be gsod or isd, got %q", cfg.DefaultSource)
	}
	switch cfg.CacheBackend {
	case "file", "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be file, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
