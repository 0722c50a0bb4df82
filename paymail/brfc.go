package paymail

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeBRFCID computes a BRFC capability id: the first 6 bytes of
// SHA256d(title + author + version), hex encoded.
func ComputeBRFCID(title, author, version string) string {
	data := []byte(title + author + version)
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return hex.EncodeToString(second[:6])
}

// BRFCPayeeAddress is advertised by hosts that publish a receipt payee
// address per alias, answering {"address": "..."}.
var BRFCPayeeAddress = ComputeBRFCID("POP Payee Address", "POP", "1.0")
