package rtu

import (
	"github.com/rickgao/rtu-client/internal/config"
	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/presence"
	"github.com/rickgao/rtu-client/internal/request"
	"github.com/rickgao/rtu-client/internal/router"
)

// Config holds the settings of one client instance.
type Config struct {
	Connection connection.ManagerConfig
	Router     router.RouterConfig
	Presence   *presence.Config // Nil disables the status refresh hook
}

// DefaultConfig returns defaults for endpoint.
func DefaultConfig(endpoint string) Config {
	conn := connection.DefaultManagerConfig()
	conn.Endpoint = endpoint

	pres := presence.DefaultConfig()
	return Config{
		Connection: conn,
		Router:     router.DefaultRouterConfig(),
		Presence:   &pres,
	}
}

// ConfigFrom maps file configuration onto client settings.
func ConfigFrom(cfg *config.Config) Config {
	conn := connection.ManagerConfig{
		Endpoint:       cfg.RTU.Endpoint,
		LiveEnabled:    cfg.RTU.IsLiveEnabled(),
		RestartDelay:   cfg.RTU.RestartDelay,
		ReadyDelay:     cfg.RTU.ReadyDelay,
		HandshakeDelay: cfg.RTU.HandshakeDelay,
		QueueSize:      cfg.RTU.QueueSize,
		Client: connection.ClientConfig{
			PingInterval:     cfg.RTU.PingInterval,
			PingTimeout:      cfg.RTU.PingTimeout,
			WriteTimeout:     cfg.RTU.WriteTimeout,
			HandshakeTimeout: cfg.RTU.HandshakeTimeout,
			BufferSize:       cfg.RTU.BufferSize,
		},
	}

	rc := router.DefaultRouterConfig()
	rc.DeviceID = cfg.Auth.DeviceID
	rc.ForwardScopes = cfg.RTU.ForwardScopes

	out := Config{Connection: conn, Router: rc}

	if cfg.Presence.IsEnabled() {
		pres := presence.Config{
			Concurrency: cfg.Presence.Concurrency,
			Timeout:     cfg.Presence.Timeout,
		}
		for _, c := range cfg.Presence.Calls {
			pres.Calls = append(pres.Calls, presence.Call{
				Service: c.Service,
				Object:  c.Object,
				Verb:    request.Verb(c.Verb),
			})
		}
		out.Presence = &pres
	}

	return out
}
