// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/bitfsorg/libpop-go/ledger"
)

var (
	networks  = []string{"mainnet", "testnet", "regtest"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// check validates one setting.
type check struct {
	key string
	fn  func(cfg Config) error
}

var checks = []check{
	{keyDataDir, func(cfg Config) error {
		if cfg.DataDir == "" {
			return ErrEmptyDataDir
		}
		return nil
	}},
	{keyNetwork, func(cfg Config) error {
		if !slices.Contains(networks, cfg.Network) {
			return fmt.Errorf("%w: %q", ErrInvalidNetwork, cfg.Network)
		}
		return nil
	}},
	{keyListen, func(cfg Config) error { return hostPort(cfg.ListenAddr) }},
	{keyLogLevel, func(cfg Config) error {
		if !slices.Contains(logLevels, strings.ToLower(cfg.LogLevel)) {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
		}
		return nil
	}},
	{keyGate, func(cfg Config) error {
		if _, err := ledger.ParseGatePolicy(cfg.GatePolicy); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidGatePolicy, cfg.GatePolicy)
		}
		return nil
	}},
	{keyRegistryURL, func(cfg Config) error {
		if cfg.RegistryURL == "" {
			return nil
		}
		u, err := url.Parse(cfg.RegistryURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidRegistryURL, cfg.RegistryURL)
		}
		return nil
	}},
	{keyDNSUpstream, func(cfg Config) error {
		if cfg.DNSUpstream == "" {
			return nil
		}
		return hostPort(cfg.DNSUpstream)
	}},
}

// ValidateConfig runs the setting checks in file order and returns the
// first failure, prefixed with the offending key.
func ValidateConfig(cfg Config) error {
	for _, c := range checks {
		if err := c.fn(cfg); err != nil {
			return fmt.Errorf("%s: %w", c.key, err)
		}
	}
	return nil
}

func hostPort(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}
	return nil
}
