// Package paymail resolves payee handles of the form alias@domain to
// ledger addresses. The domain's paymail host is found through its
// _bsvalias SRV record, and the address is either published directly
// under the POP payee capability or derived from the alias's PKI key.
package paymail

import (
	"fmt"
	"strings"
)

// Handle is a parsed alias@domain.
type Handle struct {
	Alias  string
	Domain string
}

func (h Handle) String() string { return h.Alias + "@" + h.Domain }

// IsHandle reports whether s looks like alias@domain rather than an address.
func IsHandle(s string) bool {
	return strings.Contains(strings.TrimSpace(s), "@")
}

// ParseHandle parses alias@domain. An optional "paymail:" prefix is accepted.
// Domains are lower-cased; aliases keep their case.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "paymail:")
	alias, domain, ok := strings.Cut(s, "@")
	if !ok || alias == "" || domain == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	if strings.ContainsAny(alias, "/@ ") || strings.ContainsAny(domain, "/@ :") || !strings.Contains(domain, ".") {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	return Handle{Alias: alias, Domain: strings.ToLower(strings.TrimSuffix(domain, "."))}, nil
}
