package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/paymail"
	"github.com/bitfsorg/libpop-go/registry"
	"github.com/bitfsorg/libpop-go/treasury"
	"github.com/bitfsorg/libpop-go/wallet"
)

var (
	// ErrMissingAuth indicates a mutating request without signature headers.
	ErrMissingAuth = errors.New("api: missing request signature")

	// ErrStaleRequest indicates a signed timestamp outside the accepted window.
	ErrStaleRequest = errors.New("api: request timestamp outside allowed skew")

	// ErrBadSignature indicates a signature that does not verify.
	ErrBadSignature = errors.New("api: bad request signature")

	// ErrBadRequest indicates a malformed body or path parameter.
	ErrBadRequest = errors.New("api: bad request")

	// ErrNoTreasury indicates a purchase on a server without a treasury.
	ErrNoTreasury = errors.New("api: purchases are not enabled")
)

// errorMapping gives each known error a stable code and status. The first
// match in order wins, so wrapped errors map by their most specific cause.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{ErrMissingAuth, http.StatusUnauthorized, "MISSING_SIGNATURE"},
	{ErrStaleRequest, http.StatusUnauthorized, "STALE_REQUEST"},
	{ErrBadSignature, http.StatusUnauthorized, "BAD_SIGNATURE"},
	{ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{ErrNoTreasury, http.StatusNotImplemented, "PURCHASE_DISABLED"},

	{ledger.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{ledger.ErrSaleInactive, http.StatusConflict, "SALE_INACTIVE"},
	{ledger.ErrAlreadyRedeemed, http.StatusConflict, "ALREADY_REDEEMED"},
	{ledger.ErrIneligible, http.StatusForbidden, "INELIGIBLE"},
	{ledger.ErrInsufficientPayment, http.StatusPaymentRequired, "INSUFFICIENT_PAYMENT"},
	{ledger.ErrNontransferable, http.StatusForbidden, "NONTRANSFERABLE"},
	{ledger.ErrUnknownToken, http.StatusNotFound, "UNKNOWN_TOKEN"},
	{ledger.ErrNothingDue, http.StatusConflict, "NOTHING_DUE"},
	{ledger.ErrUnknownPayee, http.StatusNotFound, "UNKNOWN_PAYEE"},
	{ledger.ErrZeroAddress, http.StatusBadRequest, "ZERO_ADDRESS"},
	{ledger.ErrEmptyBatch, http.StatusBadRequest, "EMPTY_BATCH"},
	{ledger.ErrValueOverflow, http.StatusConflict, "VALUE_OVERFLOW"},
	{ledger.ErrNotDeployed, http.StatusServiceUnavailable, "NOT_DEPLOYED"},

	{treasury.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{treasury.ErrZeroAmount, http.StatusBadRequest, "ZERO_AMOUNT"},
	{treasury.ErrBalanceOverflow, http.StatusConflict, "BALANCE_OVERFLOW"},

	{wallet.ErrInvalidAddress, http.StatusBadRequest, "INVALID_ADDRESS"},
	{paymail.ErrInvalidHandle, http.StatusBadRequest, "INVALID_HANDLE"},
	{paymail.ErrPaymailDiscovery, http.StatusBadGateway, "HANDLE_UNRESOLVED"},
	{paymail.ErrPKIResolution, http.StatusBadGateway, "HANDLE_UNRESOLVED"},
	{registry.ErrConnectionFailed, http.StatusBadGateway, "REGISTRY_UNAVAILABLE"},
	{registry.ErrInvalidResponse, http.StatusBadGateway, "REGISTRY_UNAVAILABLE"},
	{registry.ErrNotConfigured, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE"},

	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
	{context.Canceled, http.StatusServiceUnavailable, "CANCELED"},
}

// Classify maps err to an HTTP status and error code.
func Classify(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}
