package paymail

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libpop-go/wallet"
)

// MaxPaymailResponseSize bounds every paymail response body.
const MaxPaymailResponseSize = 64 * 1024

// HTTPClient sends paymail requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Capabilities are the endpoint templates a paymail host advertises.
type Capabilities struct {
	PKI          string
	PayeeAddress string
}

type wellKnownResponse struct {
	BSVAlias     string                 `json:"bsvalias"`
	Capabilities map[string]interface{} `json:"capabilities"`
}

type pkiResponse struct {
	BSVAlias string `json:"bsvalias"`
	Handle   string `json:"handle"`
	PubKey   string `json:"pubkey"`
}

type payeeResponse struct {
	Address string `json:"address"`
}

// Known capability keys.
const (
	capPKI     = "pki"
	capPKIBRFC = "6745385c3fc0"
)

// Resolver turns handles into addresses.
type Resolver struct {
	http HTTPClient
	dns  DNSResolver
	log  *slog.Logger
}

// NewResolver builds a resolver. Nil arguments select a 30 second HTTP
// client, the system DNS resolver and a discarding logger.
func NewResolver(client HTTPClient, resolver DNSResolver, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if resolver == nil {
		resolver = SystemResolver
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{http: client, dns: resolver, log: logger.With("component", "paymail")}
}

// Host returns the paymail host for domain. Without an SRV record the
// domain itself on port 443 is used.
func (r *Resolver) Host(ctx context.Context, domain string) string {
	endpoints, err := ResolveEndpoints(ctx, domain, r.dns)
	if err != nil {
		r.log.Debug("no paymail SRV record, using domain", "domain", domain, "error", err)
		return net.JoinHostPort(domain, "443")
	}
	return endpoints[0]
}

// Discover fetches the capability document from host.
func (r *Resolver) Discover(ctx context.Context, host string) (*Capabilities, error) {
	u := "https://" + host + "/.well-known/bsvalias"
	body, err := r.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymailDiscovery, err)
	}

	var wk wellKnownResponse
	if err := json.Unmarshal(body, &wk); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %w", ErrPaymailDiscovery, err)
	}

	caps := &Capabilities{}
	for key, val := range wk.Capabilities {
		s, ok := val.(string)
		if !ok {
			continue
		}
		switch {
		case key == BRFCPayeeAddress:
			caps.PayeeAddress = s
		case key == capPKI || key == capPKIBRFC || strings.Contains(key, "pki"):
			caps.PKI = s
		}
	}
	return caps, nil
}

// Resolve resolves a handle to the address that receives its payouts.
// A published payee address wins over one derived from the PKI key.
func (r *Resolver) Resolve(ctx context.Context, handle string) (wallet.Address, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return wallet.ZeroAddress, err
	}
	caps, err := r.Discover(ctx, r.Host(ctx, h.Domain))
	if err != nil {
		return wallet.ZeroAddress, err
	}

	if caps.PayeeAddress != "" {
		addr, err := r.payeeAddress(ctx, caps.PayeeAddress, h)
		if err == nil {
			r.log.Debug("resolved payee address", "handle", h, "address", addr)
			return addr, nil
		}
		if caps.PKI == "" {
			return wallet.ZeroAddress, err
		}
		r.log.Warn("payee capability failed, falling back to PKI", "handle", h, "error", err)
	}
	if caps.PKI == "" {
		return wallet.ZeroAddress, fmt.Errorf("%w: %s advertises no PKI capability", ErrPKIResolution, h.Domain)
	}

	pub, err := r.pki(ctx, caps.PKI, h)
	if err != nil {
		return wallet.ZeroAddress, err
	}
	addr := wallet.AddressFromPubKey(pub)
	r.log.Debug("resolved PKI address", "handle", h, "address", addr)
	return addr, nil
}

// ResolveAddressOrHandle accepts either a plain address or a handle.
func (r *Resolver) ResolveAddressOrHandle(ctx context.Context, s string) (wallet.Address, error) {
	if IsHandle(s) {
		return r.Resolve(ctx, s)
	}
	return wallet.ParseAddress(s)
}

func (r *Resolver) payeeAddress(ctx context.Context, template string, h Handle) (wallet.Address, error) {
	body, err := r.get(ctx, expand(template, h))
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: %w", ErrPKIResolution, err)
	}
	var resp payeeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: parsing payee response: %w", ErrPKIResolution, err)
	}
	addr, err := wallet.ParseAddress(resp.Address)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: %w", ErrPKIResolution, err)
	}
	return addr, nil
}

func (r *Resolver) pki(ctx context.Context, template string, h Handle) (*ec.PublicKey, error) {
	body, err := r.get(ctx, expand(template, h))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPKIResolution, err)
	}
	var resp pkiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing PKI response: %w", ErrPKIResolution, err)
	}
	if resp.PubKey == "" {
		return nil, fmt.Errorf("%w: empty public key in response", ErrPKIResolution)
	}
	raw, err := hex.DecodeString(resp.PubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %w", ErrInvalidPubKey, err)
	}
	if len(raw) != 33 || (raw[0] != 0x02 && raw[0] != 0x03) {
		return nil, fmt.Errorf("%w: expected 33-byte compressed key", ErrInvalidPubKey)
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	return pub, nil
}

// expand fills a capability template, escaping the variables.
func expand(template string, h Handle) string {
	u := strings.ReplaceAll(template, "{alias}", url.PathEscape(h.Alias))
	return strings.ReplaceAll(u, "{domain.tld}", url.PathEscape(h.Domain))
}

var errStatus = errors.New("unexpected status")

func (r *Resolver) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %w %d", u, errStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPaymailResponseSize))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading response: %w", u, err)
	}
	return body, nil
}
