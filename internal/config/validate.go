package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.RTU.Endpoint == "" {
		return errors.New("rtu.endpoint is required")
	}
	if err := validateURL("rtu.endpoint", c.RTU.Endpoint, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if c.RTU.QueueSize < 1 {
		return errors.New("rtu.queue_size must be >= 1")
	}
	if c.RTU.BufferSize < 1 {
		return errors.New("rtu.buffer_size must be >= 1")
	}
	if c.RTU.PingTimeout < c.RTU.PingInterval {
		return fmt.Errorf("rtu.ping_timeout (%s) must be >= ping_interval (%s)", c.RTU.PingTimeout, c.RTU.PingInterval)
	}

	if c.Auth.DeviceID == "" {
		return errors.New("auth.device_id is required")
	}
	if c.Auth.KeyID != "" && c.Auth.PrivateKeyPath == "" {
		return errors.New("auth.private_key_path is required when auth.key_id is set")
	}

	if c.HTTP.BaseURL == "" {
		return errors.New("http.base_url is required")
	}
	if err := validateURL("http.base_url", c.HTTP.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.HTTP.MaxRetries < 0 {
		return errors.New("http.max_retries must be >= 0")
	}

	if c.Presence.Concurrency < 1 {
		return errors.New("presence.concurrency must be >= 1")
	}
	for i, call := range c.Presence.Calls {
		prefix := fmt.Sprintf("presence.calls[%d]", i)
		if call.Service == "" {
			return fmt.Errorf("%s.service is required", prefix)
		}
		if call.Object == "" {
			return fmt.Errorf("%s.object is required", prefix)
		}
		switch strings.ToUpper(call.Verb) {
		case "GET", "POST", "PUT", "DELETE":
		default:
			return fmt.Errorf("%s.verb %q is not supported", prefix, call.Verb)
		}
	}

	switch c.Session.Store {
	case "memory":
	case "postgres":
		if err := c.Session.Postgres.validate("session.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("session.store must be memory or postgres, got %q", c.Session.Store)
	}

	if c.Bus.BufferSize < 0 {
		return errors.New("bus.buffer_size must be >= 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s, got %q", field, strings.Join(schemes, ", "), u.Scheme)
}
