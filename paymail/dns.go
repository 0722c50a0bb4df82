package paymail

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
)

// DNSResolver looks up SRV records.
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error)
}

// systemResolver uses the operating system resolver without DNSSEC.
type systemResolver struct{}

func (systemResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, service, proto, name)
	return addrs, err
}

// SystemResolver is the DNSResolver backed by the net package.
var SystemResolver DNSResolver = systemResolver{}

// srvPaymail is the service label of paymail host records: _bsvalias._tcp.{domain}.
const srvPaymail = "bsvalias"

// ResolveEndpoints returns host:port targets for the domain's paymail
// service, sorted by priority then descending weight.
func ResolveEndpoints(ctx context.Context, domain string, resolver DNSResolver) ([]string, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrDNSLookupFailed)
	}

	addrs, err := resolver.LookupSRV(ctx, srvPaymail, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("%w: SRV lookup for _%s._tcp.%s: %w", ErrDNSLookupFailed, srvPaymail, domain, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no SRV records for _%s._tcp.%s", ErrNoEndpoints, srvPaymail, domain)
	}

	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})

	endpoints := make([]string, len(addrs))
	for i, srv := range addrs {
		host := strings.TrimSuffix(srv.Target, ".")
		endpoints[i] = net.JoinHostPort(host, fmt.Sprint(srv.Port))
	}
	return endpoints, nil
}
