package config

import "time"

// Config is the root configuration for an RTU client instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	RTU      RTUConfig      `yaml:"rtu"`
	Auth     AuthConfig     `yaml:"auth"`
	HTTP     HTTPConfig     `yaml:"http"`
	Presence PresenceConfig `yaml:"presence"`
	Session  SessionConfig  `yaml:"session"`
	Bus      BusConfig      `yaml:"bus"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RTUConfig holds live connection settings.
type RTUConfig struct {
	Endpoint         string        `yaml:"endpoint"`     // Gateway base URL, http(s) or ws(s)
	LiveEnabled      *bool         `yaml:"live_enabled"` // False runs fallback-only
	RestartDelay     time.Duration `yaml:"restart_delay"`
	ReadyDelay       time.Duration `yaml:"ready_delay"`
	HandshakeDelay   time.Duration `yaml:"handshake_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	QueueSize        int           `yaml:"queue_size"`
	BufferSize       int           `yaml:"buffer_size"`
	ForwardScopes    []string      `yaml:"forward_scopes"` // Object scopes also published on the bus
}

// IsLiveEnabled reports whether the live transport should be used.
func (c RTUConfig) IsLiveEnabled() bool {
	return c.LiveEnabled == nil || *c.LiveEnabled
}

// AuthConfig holds the identity and credentials sent with every request.
type AuthConfig struct {
	Token          string `yaml:"token"`
	AppName        string `yaml:"app_name"`
	AppPlatform    string `yaml:"app_platform"`
	DeviceID       string `yaml:"device_id"`
	KeyID          string `yaml:"key_id"`           // Optional request-signing key id
	PrivateKeyPath string `yaml:"private_key_path"` // Path to RSA private key PEM file
}

// HTTPConfig holds fallback executor settings.
type HTTPConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PresenceConfig holds the scheduler-tick status refresh settings.
type PresenceConfig struct {
	Enabled     *bool          `yaml:"enabled"`
	Calls       []PresenceCall `yaml:"calls"`
	Concurrency int            `yaml:"concurrency"`
	Timeout     time.Duration  `yaml:"timeout"`
}

// IsEnabled reports whether status refresh runs on ticks.
func (c PresenceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PresenceCall is one status-refresh request.
type PresenceCall struct {
	Service string `yaml:"service"`
	Object  string `yaml:"object"`
	Verb    string `yaml:"verb"`
}

// SessionConfig selects where session state is kept.
type SessionConfig struct {
	Store    string   `yaml:"store"` // "memory" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BusConfig holds local event bus settings.
type BusConfig struct {
	BufferSize int64 `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
