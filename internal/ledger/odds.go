package ledger

import (
	"github.com/alanyoungcy/arenaledger/internal/domain"
)

var hundred = domain.NewAmount(100)

// Percentages returns integer odds for each pool. Each entry is
// floor(pool*100/total), or floor(100/n) when total is zero; the shortfall to
// 100 is added to outcome 0 so the result always sums to exactly 100.
func Percentages(pools []domain.Amount, total domain.Amount) []int {
	n := len(pools)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	sum := 0
	for i, pool := range pools {
		if total.IsZero() {
			out[i] = 100 / n
		} else {
			out[i] = percentOf(pool, total)
		}
		sum += out[i]
	}
	out[0] += 100 - sum
	return out
}

// percentOf is floor(pool*100/total) for pool <= total, total > 0.
func percentOf(pool, total domain.Amount) int {
	p, err := pool.MulDiv(hundred, total)
	if err != nil {
		return 0
	}
	v, err := p.Uint64()
	if err != nil || v > 100 {
		return 100
	}
	return int(v)
}
