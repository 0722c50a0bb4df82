// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

// File errors.
var (
	// ErrConfigNotFound indicates there is no config file in the data directory.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a non-comment line without '='.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)

// Validation errors, one per setting.
var (
	ErrEmptyDataDir       = errors.New("config: data directory must not be empty")
	ErrInvalidNetwork     = errors.New("config: network must be mainnet, testnet or regtest")
	ErrInvalidListenAddr  = errors.New("config: invalid host:port address")
	ErrInvalidLogLevel    = errors.New("config: log level must be debug, info, warn or error")
	ErrInvalidGatePolicy  = errors.New("config: gate must be redeem-only or holder")
	ErrInvalidRegistryURL = errors.New("config: registry URL must be http(s) with a host")
)
