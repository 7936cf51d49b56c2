package ledger

import (
	"crypto/subtle"
	"encoding/binary"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccessCommitment binds an access code to a market:
// keccak256(uint256(marketID) || code).
func AccessCommitment(id domain.MarketID, code string) []byte {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], uint64(id))
	return crypto.Keccak256(word[:], []byte(code))
}

// CheckAccess reports whether code opens market m. Public markets accept any
// code.
func CheckAccess(m *domain.Market, code string) bool {
	if !m.IsPrivate {
		return true
	}
	if code == "" || len(m.AccessCommit) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(AccessCommitment(m.ID, code), m.AccessCommit) == 1
}
