package registry

import (
	"fmt"
	"strconv"
)

// RPCConfig holds the connection parameters for a registry JSON-RPC endpoint.
type RPCConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Network  string `json:"network"`

	// Batch sends multi-id owner lookups as one JSON-RPC array.
	Batch bool `json:"batch"`

	// NotFoundCodes are extra error codes that mean an unknown token.
	NotFoundCodes []int `json:"not_found_codes"`
}

// NetworkPresets contains default endpoints for local networks.
// Mainnet is omitted so it must be configured explicitly.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18445", User: "pop", Password: "pop"},
	"testnet": {URL: "http://localhost:18445", User: "pop", Password: "pop"},
}

// ResolveConfig merges registry configuration with decreasing priority:
//  1. flags
//  2. environment (POP_RPC_URL, POP_RPC_USER, POP_RPC_PASS, POP_RPC_BATCH)
//  3. file (the config file's Registry* keys)
//  4. network presets
func ResolveConfig(flags *RPCConfig, env map[string]string, file *RPCConfig, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	overlay := func(src *RPCConfig) {
		if src == nil {
			return
		}
		if src.URL != "" {
			result.URL = src.URL
		}
		if src.User != "" {
			result.User = src.User
		}
		if src.Password != "" {
			result.Password = src.Password
		}
		if src.Batch {
			result.Batch = true
		}
		if len(src.NotFoundCodes) > 0 {
			result.NotFoundCodes = src.NotFoundCodes
		}
	}

	overlay(file)
	if env != nil {
		overlay(&RPCConfig{
			URL:      env["POP_RPC_URL"],
			User:     env["POP_RPC_USER"],
			Password: env["POP_RPC_PASS"],
			Batch:    parseBool(env["POP_RPC_BATCH"]),
		})
	}
	overlay(flags)

	if result.URL == "" {
		return nil, fmt.Errorf("%w: %s requires --rpc-url, POP_RPC_URL, or RegistryURL in the config file",
			ErrNotConfigured, network)
	}
	return &result, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
