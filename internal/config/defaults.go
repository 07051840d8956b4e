package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestartDelay        = 123 * time.Millisecond
	DefaultReadyDelay          = 25 * time.Millisecond
	DefaultHandshakeDelay      = 500 * time.Millisecond
	DefaultPingInterval        = 30 * time.Second
	DefaultPingTimeout         = 90 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultQueueSize           = 256
	DefaultBufferSize          = 1000
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryBackoff        = 1 * time.Second
	DefaultPresenceConcurrency = 2
	DefaultPresenceTimeout     = 10 * time.Second
	DefaultSessionStore        = "memory"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultBusBufferSize       = 64
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// DefaultPresenceCalls are issued on every scheduler tick when none are configured.
func DefaultPresenceCalls() []PresenceCall {
	return []PresenceCall{
		{Service: "Users", Object: "Status", Verb: "GET"},
		{Service: "Users", Object: "Session", Verb: "GET"},
	}
}

func (c *Config) applyDefaults() {
	// RTU defaults
	if c.RTU.RestartDelay == 0 {
		c.RTU.RestartDelay = DefaultRestartDelay
	}
	if c.RTU.ReadyDelay == 0 {
		c.RTU.ReadyDelay = DefaultReadyDelay
	}
	if c.RTU.HandshakeDelay == 0 {
		c.RTU.HandshakeDelay = DefaultHandshakeDelay
	}
	if c.RTU.PingInterval == 0 {
		c.RTU.PingInterval = DefaultPingInterval
	}
	if c.RTU.PingTimeout == 0 {
		c.RTU.PingTimeout = DefaultPingTimeout
	}
	if c.RTU.WriteTimeout == 0 {
		c.RTU.WriteTimeout = DefaultWriteTimeout
	}
	if c.RTU.HandshakeTimeout == 0 {
		c.RTU.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.RTU.QueueSize == 0 {
		c.RTU.QueueSize = DefaultQueueSize
	}
	if c.RTU.BufferSize == 0 {
		c.RTU.BufferSize = DefaultBufferSize
	}

	// HTTP defaults
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.MaxRetries == 0 {
		c.HTTP.MaxRetries = DefaultMaxRetries
	}
	if c.HTTP.RetryBackoff == 0 {
		c.HTTP.RetryBackoff = DefaultRetryBackoff
	}

	// Presence defaults
	if len(c.Presence.Calls) == 0 {
		c.Presence.Calls = DefaultPresenceCalls()
	}
	for i := range c.Presence.Calls {
		if c.Presence.Calls[i].Verb == "" {
			c.Presence.Calls[i].Verb = "GET"
		}
	}
	if c.Presence.Concurrency == 0 {
		c.Presence.Concurrency = DefaultPresenceConcurrency
	}
	if c.Presence.Timeout == 0 {
		c.Presence.Timeout = DefaultPresenceTimeout
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = DefaultSessionStore
	}
	if c.Session.Store == "postgres" {
		applyDBDefaults(&c.Session.Postgres)
	}

	// Bus defaults
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = DefaultBusBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
