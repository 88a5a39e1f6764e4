package main

import (
	"fmt"
	"os"
	"time"

	"codeverifier/internal/common/http/middleware"
	"codeverifier/internal/verifier/service"
	"codeverifier/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:5000"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxJobs         = 5
	defaultQueueWait       = 30 * time.Second
	defaultMaxBodyBytes    = 1 << 20
	defaultRuntimeTimeout  = 10 * time.Second
	defaultContainerLimit  = 5 * time.Second
	defaultStaticPrefix    = "/static"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// VerifierConfig bounds concurrent verifications.
type VerifierConfig struct {
	MaxJobs   int           `yaml:"maxJobs"`
	QueueWait time.Duration `yaml:"queueWait"`
}

// WorkspaceConfig holds the directory driver workspaces are created under.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// DockerConfig holds docker engine settings. DOCKER_HOST and friends apply
// when Host is empty.
type DockerConfig struct {
	Host       string `yaml:"host"`
	PullImages bool   `yaml:"pullImages"`
}

// StaticConfig serves the workspace root so remote drivers can load artifacts.
type StaticConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// AppConfig holds verifier-service config.
type AppConfig struct {
	Server    ServerConfig            `yaml:"server"`
	Logger    logger.Config           `yaml:"logger"`
	Verifier  VerifierConfig          `yaml:"verifier"`
	Workspace WorkspaceConfig         `yaml:"workspace"`
	Docker    DockerConfig            `yaml:"docker"`
	CORS      *middleware.CORSConfig  `yaml:"cors"`
	Static    StaticConfig            `yaml:"static"`
	Runtimes  []service.RuntimeConfig `yaml:"runtimes"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Verifier.MaxJobs <= 0 {
		cfg.Verifier.MaxJobs = defaultMaxJobs
	}
	if cfg.Verifier.QueueWait == 0 {
		cfg.Verifier.QueueWait = defaultQueueWait
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = os.TempDir()
	}
	if cfg.CORS == nil {
		cors := middleware.DefaultCORSConfig()
		cfg.CORS = &cors
	}
	if cfg.Static.Prefix == "" {
		cfg.Static.Prefix = defaultStaticPrefix
	}
	if len(cfg.Runtimes) == 0 {
		cfg.Runtimes = defaultRuntimes()
	}

	seen := make(map[string]bool, len(cfg.Runtimes))
	for i := range cfg.Runtimes {
		rc := &cfg.Runtimes[i]
		if rc.Name == "" {
			return fmt.Errorf("runtimes[%d]: name is required", i)
		}
		if seen[rc.Name] {
			return fmt.Errorf("runtime %s is declared twice", rc.Name)
		}
		seen[rc.Name] = true
		if rc.Kind == "" {
			rc.Kind = kindFor(rc.Name)
		}
		if rc.Timeout == 0 {
			if rc.Kind == service.KindContainer {
				rc.Timeout = defaultContainerLimit
			} else {
				rc.Timeout = defaultRuntimeTimeout
			}
		}
	}
	return nil
}

func defaultRuntimes() []service.RuntimeConfig {
	return []service.RuntimeConfig{
		{Name: "javascript", Kind: service.KindJavaScript},
		{Name: "lua", Kind: service.KindLua},
	}
}

// kindFor infers the kind of the well-known runtime names.
func kindFor(name string) service.Kind {
	switch name {
	case "angularjs":
		return service.KindDriver
	case "python", "python3":
		return service.KindContainer
	default:
		return service.Kind(name)
	}
}

func (c AppConfig) needsDocker() bool {
	for _, rc := range c.Runtimes {
		if rc.Kind == service.KindContainer {
			return true
		}
	}
	return false
}
