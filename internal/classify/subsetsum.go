package classify

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bounds for the brute-force search. Statements have well under 40 unsigned
// rows in practice; anything bigger fails closed as ambiguous rather than
// searching indefinitely.
const (
	maxCandidates  = 40
	maxSearchNodes = 2_000_000
)

// subsetTolerance is the match tolerance against the declared total.
var subsetTolerance = decimal.NewFromFloat(0.01)

// ErrAmbiguous is returned when no subset of the candidates sums to the
// declared total, or when the search exceeded its bounds. The caller keeps
// all candidates with a best-effort direction and marks them unverified.
var ErrAmbiguous = errors.New("no candidate subset matches the declared total")

// MatchDeclaredTotal finds the indices of a subset of amounts summing to
// total within tolerance. Subsets are tried by ascending size and, within a
// size, in enumeration order over the original indices, so the result is
// deterministic. An exactly-zero total is the trivial empty subset.
func MatchDeclaredTotal(amounts []decimal.Decimal, total decimal.Decimal) ([]int, error) {
	if total.IsZero() {
		return nil, nil
	}
	if len(amounts) > maxCandidates {
		return nil, fmt.Errorf("%w: %d candidates exceeds limit of %d", ErrAmbiguous, len(amounts), maxCandidates)
	}

	// Integer cents make the sums exact; the tolerance collapses to ±1.
	cents := make([]int64, len(amounts))
	for i, a := range amounts {
		cents[i] = a.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	}
	target := total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	tol := subsetTolerance.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	// Suffix sums let the search prune branches that can no longer reach
	// the target even by taking everything remaining.
	suffix := make([]int64, len(cents)+1)
	for i := len(cents) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + cents[i]
	}

	s := &subsetSearch{cents: cents, suffix: suffix, target: target, tol: tol}
	for size := 1; size <= len(cents); size++ {
		picked := make([]int, 0, size)
		found, err := s.search(0, 0, size, picked)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, ErrAmbiguous
}

type subsetSearch struct {
	cents  []int64
	suffix []int64
	target int64
	tol    int64
	nodes  int
}

// search tries subsets of exactly `remaining` more elements starting at
// index `from`, with `sum` already accumulated. Depth-first in index order
// preserves the documented enumeration-order tie-break.
func (s *subsetSearch) search(from int, sum int64, remaining int, picked []int) ([]int, error) {
	s.nodes++
	if s.nodes > maxSearchNodes {
		return nil, fmt.Errorf("%w: search budget exhausted", ErrAmbiguous)
	}
	if remaining == 0 {
		diff := sum - s.target
		if diff < 0 {
			diff = -diff
		}
		if diff <= s.tol {
			out := make([]int, len(picked))
			copy(out, picked)
			return out, nil
		}
		return nil, nil
	}
	for i := from; i <= len(s.cents)-remaining; i++ {
		next := sum + s.cents[i]
		// Already past the target; a later, smaller element may still fit.
		if next > s.target+s.tol {
			continue
		}
		// Even taking every remaining element cannot reach the target, and
		// suffix sums only shrink from here.
		if next+s.suffix[i+1] < s.target-s.tol {
			break
		}
		found, err := s.search(i+1, next, remaining-1, append(picked, i))
		if err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}
