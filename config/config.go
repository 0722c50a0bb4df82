// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads the node configuration: a key = value file under the
// data directory that locates the stores, the listen address, the primary
// registry and the logger.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config holds node settings.
type Config struct {
	DataDir    string
	ListenAddr string
	Network    string
	LogLevel   string
	LogFile    string

	RegistryURL      string
	RegistryUser     string
	RegistryPassword string

	// GatePolicy is "redeem-only" or "holder".
	GatePolicy string

	// DNSUpstream is a validating resolver for payee handles. Empty uses
	// the system resolver without DNSSEC.
	DNSUpstream string
}

// Config file keys.
const (
	keyDataDir          = "datadir"
	keyListen           = "listen"
	keyNetwork          = "network"
	keyLogLevel         = "loglevel"
	keyLogFile          = "logfile"
	keyRegistryURL      = "registry_url"
	keyRegistryUser     = "registry_user"
	keyRegistryPassword = "registry_password"
	keyGate             = "gate"
	keyDNSUpstream      = "dns_upstream"
)

// DefaultDataDir returns ~/.pop, or .pop in the working directory when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pop"
	}
	return filepath.Join(home, ".pop")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		ListenAddr: ":8080",
		Network:    "mainnet",
		LogLevel:   "info",
		GatePolicy: "redeem-only",
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// Paths of the stores inside the data directory.
func (c Config) LedgerPath() string   { return filepath.Join(c.DataDir, "ledger.db") }
func (c Config) TreasuryPath() string { return filepath.Join(c.DataDir, "treasury.db") }
func (c Config) JournalPath() string  { return filepath.Join(c.DataDir, "journal.sqlite") }
func (c Config) KeystorePath() string { return filepath.Join(c.DataDir, "keystore") }

// LoadConfig reads path over the defaults. Blank lines and lines starting
// with '#' are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		cfg.set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func (c *Config) set(key, value string) {
	switch key {
	case keyDataDir:
		c.DataDir = value
	case keyListen:
		c.ListenAddr = value
	case keyNetwork:
		c.Network = value
	case keyLogLevel:
		c.LogLevel = value
	case keyLogFile:
		c.LogFile = value
	case keyRegistryURL:
		c.RegistryURL = value
	case keyRegistryUser:
		c.RegistryUser = value
	case keyRegistryPassword:
		c.RegistryPassword = value
	case keyGate:
		c.GatePolicy = value
	case keyDNSUpstream:
		c.DNSUpstream = value
	}
}

// SaveConfig writes cfg to path, creating parent directories. The file is
// private to the user since it may carry registry credentials.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# POP Configuration\n\n")
	for _, kv := range [][2]string{
		{keyDataDir, cfg.DataDir},
		{keyListen, cfg.ListenAddr},
		{keyNetwork, cfg.Network},
		{keyLogLevel, cfg.LogLevel},
		{keyLogFile, cfg.LogFile},
		{keyRegistryURL, cfg.RegistryURL},
		{keyRegistryUser, cfg.RegistryUser},
		{keyRegistryPassword, cfg.RegistryPassword},
		{keyGate, cfg.GatePolicy},
		{keyDNSUpstream, cfg.DNSUpstream},
	} {
		fmt.Fprintf(&b, "%s = %s\n", kv[0], kv[1])
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
}

// NewLogger builds a text logger at cfg.LogLevel writing to cfg.LogFile,
// or to stderr when no file is set. The returned closer releases the file.
func NewLogger(cfg Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open log file: %w", err)
		}
		out, closer = f, f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
