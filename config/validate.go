package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime indexer config for obvious operator mistakes
// (spec §6 exit code 1, "configuration error").
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q, or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if _, err := url.Parse(cfg.RPC.URL); err != nil {
		return fmt.Errorf("rpc.url is invalid: %w", err)
	}
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

// ApplyURLCredentials splits userinfo embedded in RPC.URL (spec §6
// "Authentication via URL-embedded credentials") into RPC.User/RPC.Pass,
// stripping it from the URL passed to the RPC client. Credentials set
// explicitly via RPC.User/RPC.Pass are left untouched.
func ApplyURLCredentials(cfg *Config) {
	u, err := url.Parse(cfg.RPC.URL)
	if err != nil || u.User == nil {
		return
	}
	if cfg.RPC.User == "" {
		cfg.RPC.User = u.User.Username()
	}
	if cfg.RPC.Pass == "" {
		cfg.RPC.Pass, _ = u.User.Password()
	}
	u.User = nil
	cfg.RPC.URL = u.String()
}
