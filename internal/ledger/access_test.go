package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

func TestAccessCommitmentBindsMarket(t *testing.T) {
	a := AccessCommitment(1, "code")
	assert.Equal(t, a, AccessCommitment(1, "code"))
	assert.NotEqual(t, a, AccessCommitment(2, "code"), "same code on another market")
	assert.NotEqual(t, a, AccessCommitment(1, "Code"))
	assert.Len(t, a, 32)
}

func TestCheckAccess(t *testing.T) {
	public := &domain.Market{ID: 3}
	assert.True(t, CheckAccess(public, ""))

	private := &domain.Market{ID: 3, IsPrivate: true, AccessCommit: AccessCommitment(3, "open sesame")}
	tests := []struct {
		code string
		want bool
	}{
		{"", false},
		{"open", false},
		{"open sesame", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckAccess(private, tt.code), "code %q", tt.code)
	}

	moved := &domain.Market{ID: 4, IsPrivate: true, AccessCommit: AccessCommitment(3, "open sesame")}
	assert.False(t, CheckAccess(moved, "open sesame"), "commitment is bound to its market id")
}
