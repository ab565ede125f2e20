package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration is a time.Duration encoded as a Go duration string in TOML and JSON.
type Duration struct {
	time.Duration
}

func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = v
	return nil
}

type HostConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
}

type TransportConfig struct {
	ConnectTimeout    Duration `toml:"connect_timeout" json:"connect_timeout"`
	DisconnectTimeout Duration `toml:"disconnect_timeout" json:"disconnect_timeout"`
	WriteTimeout      Duration `toml:"write_timeout" json:"write_timeout"`
	ReconnectAttempts int      `toml:"reconnect_attempts" json:"reconnect_attempts"`
	ReconnectBackoff  Duration `toml:"reconnect_backoff" json:"reconnect_backoff"`
	MaxFrameBytes     int      `toml:"max_frame_bytes" json:"max_frame_bytes"`
	KeepAliveInterval Duration `toml:"keep_alive_interval" json:"keep_alive_interval"`
	KeepAliveMTI      string   `toml:"keep_alive_mti" json:"keep_alive_mti"`
	MaxTransactions   int      `toml:"max_transactions" json:"max_transactions"`
	ClearOnHostChange bool     `toml:"clear_on_host_change" json:"clear_on_host_change"`
}

type APIConfig struct {
	Enabled            bool     `toml:"enabled" json:"enabled"`
	Listen             string   `toml:"listen" json:"listen"`
	WaitTimeout        Duration `toml:"wait_timeout" json:"wait_timeout"`
	WaitRemoteResponse bool     `toml:"wait_remote_response" json:"wait_remote_response"`
	HideSecrets        bool     `toml:"hide_secrets" json:"hide_secrets"`
	HideInternalFlags  bool     `toml:"hide_internal_flags" json:"hide_internal_flags"`
	SecretFields       []string `toml:"secret_fields" json:"secret_fields"`
	Token              string   `toml:"token" json:"-"`
	CORSOrigins        []string `toml:"cors_origins" json:"cors_origins"`
	RateLimit          float64  `toml:"rate_limit" json:"rate_limit"`
	RateBurst          int      `toml:"rate_burst" json:"rate_burst"`
	LateAnswerTTL      Duration `toml:"late_answer_ttl" json:"late_answer_ttl"`
}

type SpecConfig struct {
	Path string `toml:"path" json:"path"`
}

// Config is the terminal configuration document.
type Config struct {
	Host          HostConfig      `toml:"host" json:"host"`
	Transport     TransportConfig `toml:"transport" json:"transport"`
	API           APIConfig       `toml:"api" json:"api"`
	Specification SpecConfig      `toml:"specification" json:"specification"`
}

func Default() Config {
	return Config{
		Host: HostConfig{Host: "127.0.0.1", Port: 16677},
		Transport: TransportConfig{
			ConnectTimeout:    D(10 * time.Second),
			DisconnectTimeout: D(10 * time.Second),
			WriteTimeout:      D(10 * time.Second),
			ReconnectAttempts: 3,
			MaxFrameBytes:     8 * 1024,
			KeepAliveMTI:      "0800",
		},
		API: APIConfig{
			Enabled:            true,
			Listen:             "127.0.0.1:7777",
			WaitTimeout:        D(10 * time.Second),
			WaitRemoteResponse: true,
			HideSecrets:        true,
			SecretFields:       []string{"2", "35", "45", "52"},
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimit:          0,
			RateBurst:          20,
			LateAnswerTTL:      D(time.Minute),
		},
		Specification: SpecConfig{Path: "signal.spec.json"},
	}
}

// Load decodes path on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("config.Load unknown key ignored")
	}
	if meta.IsDefined("api", "secret_fields") {
		cfg.API.SecretFields = normalizeList(cfg.API.SecretFields)
	}
	if meta.IsDefined("api", "cors_origins") {
		cfg.API.CORSOrigins = normalizeList(cfg.API.CORSOrigins)
	}
	cfg.Host.Host = strings.TrimSpace(cfg.Host.Host)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a TOML document held in memory.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Host.Port < 0 || c.Host.Port > 65535 {
		return fmt.Errorf("%w: host.port %d out of range", ErrInvalidConfig, c.Host.Port)
	}
	if c.Transport.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("%w: transport.connect_timeout must be positive", ErrInvalidConfig)
	}
	if c.Transport.DisconnectTimeout.Duration <= 0 {
		return fmt.Errorf("%w: transport.disconnect_timeout must be positive", ErrInvalidConfig)
	}
	if c.Transport.ReconnectAttempts <= 0 {
		return fmt.Errorf("%w: transport.reconnect_attempts must be positive", ErrInvalidConfig)
	}
	if c.Transport.MaxFrameBytes < 0 || c.Transport.MaxFrameBytes > 65535 {
		return fmt.Errorf("%w: transport.max_frame_bytes %d out of range", ErrInvalidConfig, c.Transport.MaxFrameBytes)
	}
	if c.Transport.MaxTransactions < 0 {
		return fmt.Errorf("%w: transport.max_transactions must not be negative", ErrInvalidConfig)
	}
	if c.Transport.KeepAliveInterval.Duration < 0 {
		return fmt.Errorf("%w: transport.keep_alive_interval must not be negative", ErrInvalidConfig)
	}
	if c.API.WaitTimeout.Duration <= 0 {
		return fmt.Errorf("%w: api.wait_timeout must be positive", ErrInvalidConfig)
	}
	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(c.API.Listen)); err != nil {
			return fmt.Errorf("%w: api.listen %q: %v", ErrInvalidConfig, c.API.Listen, err)
		}
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("%w: api rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c Config) Clone() Config {
	out := c
	out.API.SecretFields = append([]string(nil), c.API.SecretFields...)
	out.API.CORSOrigins = append([]string(nil), c.API.CORSOrigins...)
	return out
}

// HostAddr returns host:port of the configured processing host.
func (c Config) HostAddr() string {
	return net.JoinHostPort(c.Host.Host, strconv.Itoa(c.Host.Port))
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
