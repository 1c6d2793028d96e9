// Package config handles loading and validating bridge configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hnolan/httpbridge/internal/supervisor"
)

// Config is the top-level configuration for the bridge daemon: the
// proxy option set, plus the admin-surface address.
type Config struct {
	Host                     string        `koanf:"host"`
	Port                     int           `koanf:"port"`
	Secure                   bool          `koanf:"secure"`
	TLSCertPath              string        `koanf:"tls_cert_path"`
	TLSKeyPath               string        `koanf:"tls_key_path"`
	TLSCertPassword          string        `koanf:"tls_cert_password"`
	Backlog                  int           `koanf:"backlog"`
	V6Only                   bool          `koanf:"v6_only"`
	Shared                   bool          `koanf:"shared"`
	RequestClientCertificate bool          `koanf:"request_client_certificate"`
	HTTP2                    bool          `koanf:"http2"`
	HTTP3                    bool          `koanf:"http3"`
	TransportMode            string        `koanf:"transport_mode"`
	BodyLimit                int           `koanf:"body_limit"`
	FrameLimit               int           `koanf:"frame_limit"`
	CoalesceThreshold        int           `koanf:"coalesce_threshold"`
	IdleTimeout              time.Duration `koanf:"idle_timeout"`
	InstallSignalHandlers    bool          `koanf:"install_signal_handlers"`

	// AdminAddr, if non-empty, is the listen address for the admin
	// surface (/healthz, /metrics, /debug/connections) served by
	// internal/admin.
	AdminAddr string `koanf:"admin_addr"`
}

// defaultConfig mirrors supervisor.DefaultConfig in the Config shape,
// seeded before the file and environment are layered on top.
func defaultConfig() Config {
	d := supervisor.DefaultConfig()
	return Config{
		Host:                     d.Host,
		Backlog:                  int(d.Backlog),
		RequestClientCertificate: d.RequestClientCertificate,
		HTTP2:                    d.HTTP2,
		HTTP3:                    d.HTTP3,
		TransportMode:            string(d.TransportMode),
		BodyLimit:                d.BodyLimit,
		FrameLimit:               d.FrameLimit,
		CoalesceThreshold:        d.CoalesceThreshold,
		IdleTimeout:              d.IdleTimeout,
		InstallSignalHandlers:    d.InstallSignalHandlers,
	}
}

// Load reads configuration from an optional YAML file, layers
// BRIDGE_-prefixed environment variable overrides on top, and returns
// a fully populated Config. path may be empty, in which case only
// defaults and the environment apply. Unmarshal is applied onto a
// struct already seeded with defaults, so keys the file/environment
// never mention keep their default value.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Any env var starting with BRIDGE_ overrides a config value, e.g.
	// BRIDGE_TRANSPORT_MODE -> transport_mode.
	if err := k.Load(env.Provider("BRIDGE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BRIDGE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ToSupervisorConfig translates a loaded Config into the
// supervisor.Config shape Start expects.
func (c *Config) ToSupervisorConfig() supervisor.Config {
	return supervisor.Config{
		Host:                     c.Host,
		Port:                     uint16(c.Port),
		Secure:                   c.Secure,
		TLSCertPath:              c.TLSCertPath,
		TLSKeyPath:               c.TLSKeyPath,
		TLSCertPassword:          c.TLSCertPassword,
		Backlog:                  uint32(c.Backlog),
		V6Only:                   c.V6Only,
		Shared:                   c.Shared,
		RequestClientCertificate: c.RequestClientCertificate,
		HTTP2:                    c.HTTP2,
		HTTP3:                    c.HTTP3,
		TransportMode:            supervisor.TransportMode(c.TransportMode),
		BodyLimit:                c.BodyLimit,
		FrameLimit:               c.FrameLimit,
		CoalesceThreshold:        c.CoalesceThreshold,
		IdleTimeout:              c.IdleTimeout,
		InstallSignalHandlers:    c.InstallSignalHandlers,
	}
}
