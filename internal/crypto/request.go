package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Request signature headers.
const (
	HeaderAddress   = "X-Arena-Address"
	HeaderTimestamp = "X-Arena-Timestamp"
	HeaderSignature = "X-Arena-Signature"
	HeaderNonce     = "X-Arena-Nonce"
)

// ErrBadSignature is returned for any request whose signature headers do not
// authenticate the claimed address.
var ErrBadSignature = errors.New("crypto: bad request signature")

// RequestMessage is the text a client signs for one API call. The body is
// bound by its keccak256 digest. The nonce makes every signature single use.
//
//	arena-ledger request
//	POST /api/markets/3/bets
//	timestamp: 1767225600
//	nonce: 0f8fad5b-d9cb-469f-a165-70867728950e
//	body: 0x...
func RequestMessage(method, path string, ts int64, nonce string, body []byte) []byte {
	var b strings.Builder
	b.WriteString("arena-ledger request\n")
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteString("\ntimestamp: ")
	b.WriteString(strconv.FormatInt(ts, 10))
	b.WriteString("\nnonce: ")
	b.WriteString(nonce)
	b.WriteString("\nbody: 0x")
	b.WriteString(hex.EncodeToString(ethcrypto.Keccak256(body)))
	return []byte(b.String())
}

// SignRequest sets the signature headers on req for body under a fresh nonce.
func (s *Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	nonce := uuid.NewString()
	sig, err := s.SignMessage(RequestMessage(req.Method, req.URL.Path, ts, nonce, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// VerifyRequest authenticates the signature headers of r against body and
// returns the signer. Timestamps further than maxSkew from now are rejected.
// Whether the nonce was seen before is the caller's concern.
func VerifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (common.Address, error) {
	addrHex := r.Header.Get(HeaderAddress)
	tsStr := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	sig := r.Header.Get(HeaderSignature)
	if addrHex == "" || tsStr == "" || nonce == "" || sig == "" {
		return common.Address{}, fmt.Errorf("%w: missing %s, %s, %s or %s", ErrBadSignature,
			HeaderAddress, HeaderTimestamp, HeaderNonce, HeaderSignature)
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("%w: malformed address", ErrBadSignature)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: malformed timestamp", ErrBadSignature)
	}
	if skew := now.Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
		return common.Address{}, fmt.Errorf("%w: timestamp outside %s window", ErrBadSignature, maxSkew)
	}
	if _, err := uuid.Parse(nonce); err != nil {
		return common.Address{}, fmt.Errorf("%w: malformed nonce", ErrBadSignature)
	}

	claimed := common.HexToAddress(addrHex)
	got, err := RecoverAddress(RequestMessage(r.Method, r.URL.Path, ts, nonce, body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if got != claimed {
		return common.Address{}, fmt.Errorf("%w: signed by %s", ErrBadSignature, got.Hex())
	}
	return claimed, nil
}
