package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"

	"github.com/bitfsorg/libpop-go/wallet"
)

// Signature headers carried by every mutating request.
const (
	HeaderPubKey    = "X-Pop-Pubkey"
	HeaderTimestamp = "X-Pop-Timestamp"
	HeaderSignature = "X-Pop-Signature"
)

// DefaultMaxSkew is how far a signed timestamp may drift from server time.
const DefaultMaxSkew = 5 * time.Minute

// maxBodySize bounds signed request bodies.
const maxBodySize = 1 << 20

// CanonicalRequest is the byte string a caller signs:
// METHOD "\n" PATH "\n" TIMESTAMP "\n" BODY.
func CanonicalRequest(method, path, timestamp string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

// SignRequest sets the signature headers on req for body, signed by id at now.
// The body itself is not attached.
func SignRequest(req *http.Request, id *wallet.Identity, body []byte, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := id.Sign(CanonicalRequest(req.Method, req.URL.Path, ts, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderPubKey, hex.EncodeToString(id.PublicKey.Compressed()))
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	return nil
}

type callerKey struct{}

// callerFrom returns the authenticated caller stored by authenticate.
func callerFrom(ctx context.Context) wallet.Address {
	a, _ := ctx.Value(callerKey{}).(wallet.Address)
	return a
}

// authenticate verifies the request signature and stores the signer's
// address as the caller. The body is buffered and replaced so handlers can
// still decode it.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, body, err := s.verify(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) verify(r *http.Request) (wallet.Address, []byte, error) {
	pubHex := r.Header.Get(HeaderPubKey)
	ts := r.Header.Get(HeaderTimestamp)
	sigHex := r.Header.Get(HeaderSignature)
	if pubHex == "" || ts == "" || sigHex == "" {
		return wallet.ZeroAddress, nil, ErrMissingAuth
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: timestamp %q", ErrBadSignature, ts)
	}
	if skew := s.now().Sub(time.Unix(unix, 0)); skew > s.maxSkew || skew < -s.maxSkew {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: %s", ErrStaleRequest, skew.Round(time.Second))
	}
	// Requests signed before this server started may have been served by a
	// previous process whose replay record is gone.
	if unix < s.started.Unix() {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: signed before server start", ErrStaleRequest)
	}

	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: public key: %w", ErrBadSignature, err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: signature: %w", ErrBadSignature, err)
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: reading body: %w", ErrBadRequest, err)
	}

	msg := CanonicalRequest(r.Method, r.URL.Path, ts, body)
	caller, err := wallet.Verify(pub, msg, sig)
	if err != nil {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if !s.replays.consume(caller, msg, time.Unix(unix, 0).Add(s.maxSkew), s.now()) {
		return wallet.ZeroAddress, nil, fmt.Errorf("%w: request already used", ErrStaleRequest)
	}
	return caller, body, nil
}

// replayGuard remembers signed requests until their timestamp leaves the
// skew window. Entries are keyed by signer and signed message, so a
// re-encoded signature over the same request is still a replay.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[[32]byte]time.Time // expiry
	nextSweep time.Time
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: make(map[[32]byte]time.Time)}
}

// consume records the request and reports whether it was new.
func (g *replayGuard) consume(signer wallet.Address, msg []byte, expires, now time.Time) bool {
	var key [32]byte
	copy(key[:], bsvhash.Sha256(append(signer[:], msg...)))

	g.mu.Lock()
	defer g.mu.Unlock()
	if !now.Before(g.nextSweep) {
		for k, exp := range g.seen {
			if now.After(exp) {
				delete(g.seen, k)
			}
		}
		g.nextSweep = now.Add(time.Minute)
	}
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = expires
	return true
}
