package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

func amounts(xs ...uint64) []domain.Amount {
	out := make([]domain.Amount, len(xs))
	for i, x := range xs {
		out[i] = domain.NewAmount(x)
	}
	return out
}

func TestPercentages(t *testing.T) {
	tests := []struct {
		name  string
		pools []domain.Amount
		want  []int
	}{
		{"empty binary", amounts(0, 0), []int{50, 50}},
		{"empty ternary", amounts(0, 0, 0), []int{34, 33, 33}},
		{"empty seven", amounts(0, 0, 0, 0, 0, 0, 0), []int{16, 14, 14, 14, 14, 14, 14}},
		{"two thirds", amounts(10, 5), []int{67, 33}},
		{"equal thirds", amounts(1, 1, 1), []int{34, 33, 33}},
		{"all on one", amounts(0, 7), []int{0, 100}},
		{"tiny share on first", amounts(1, 999), []int{1, 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, err := domain.SumAmounts(tt.pools)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Percentages(tt.pools, total))
		})
	}
}

func TestPercentagesAlwaysSumTo100(t *testing.T) {
	for n := domain.MinOutcomes; n <= domain.MaxOutcomes; n++ {
		for seed := uint64(0); seed < 50; seed++ {
			pools := make([]domain.Amount, n)
			for i := range pools {
				pools[i] = domain.NewAmount((seed*31 + uint64(i)*17) % 23)
			}
			total, err := domain.SumAmounts(pools)
			require.NoError(t, err)

			sum := 0
			for _, p := range Percentages(pools, total) {
				require.GreaterOrEqual(t, p, 0)
				require.LessOrEqual(t, p, 100)
				sum += p
			}
			require.Equal(t, 100, sum, "n=%d seed=%d", n, seed)
		}
	}
}

func TestPercentagesHugePools(t *testing.T) {
	huge := domain.MustParseAmount("57896044618658097711785492504343953926634992332820282019728792003956564819967")
	total, err := huge.Add(huge)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50}, Percentages([]domain.Amount{huge, huge}, total))
}
