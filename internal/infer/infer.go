package infer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/internal/delta"
)

var (
	ErrNoMatchingLegalMove = errors.New("observed change is not a legal continuation")
	ErrAmbiguousMatch      = errors.New("multiple legal moves match the observed change")
)

// Infer maps a classified delta to exactly one legal move of the state.
// Matching is exact over changed squares and piece identities; no scoring,
// no guessing. The state is never mutated.
func Infer(d delta.Delta, st *board.State) (nchess.Move, error) {
	current := st.Occupancy()

	type scored struct {
		mv  nchess.Move
		uci string
	}
	var matches []scored
	for _, mv := range st.LegalMoves() {
		produced := delta.Diff(current, st.Preview(mv))
		if changesMatch(d, produced) {
			matches = append(matches, scored{mv: mv, uci: st.UCI(mv)})
		}
	}

	switch len(matches) {
	case 1:
		return matches[0].mv, nil
	case 0:
		return nchess.Move{}, fmt.Errorf("%w: %s delta over %d squares", ErrNoMatchingLegalMove, d.Shape, len(d.Changes))
	default:
		sort.Slice(matches, func(i, j int) bool { return matches[i].uci < matches[j].uci })
		ucis := make([]string, len(matches))
		for i, m := range matches {
			ucis[i] = m.uci
		}
		return nchess.Move{}, fmt.Errorf("%w: %s", ErrAmbiguousMatch, strings.Join(ucis, " "))
	}
}

// changesMatch compares the observed delta against the delta a candidate
// move would produce. A destination observed as a pawn on the final rank
// carries no usable piece kind (a pawn cannot stay a pawn there), so any
// promotion piece of the same color is accepted for that square.
func changesMatch(observed delta.Delta, produced []delta.Change) bool {
	if len(observed.Changes) != len(produced) {
		return false
	}
	for i, oc := range observed.Changes {
		pc := produced[i]
		if oc.Square != pc.Square || oc.Before != pc.Before {
			return false
		}
		if oc.After == pc.After {
			continue
		}
		if !promotionKindUnknown(oc) {
			return false
		}
		if pc.After == nchess.NoPiece ||
			pc.After.Color() != oc.After.Color() ||
			pc.After.Type() == nchess.Pawn ||
			pc.After.Type() == nchess.King {
			return false
		}
	}
	return true
}

func promotionKindUnknown(c delta.Change) bool {
	if c.After == nchess.NoPiece || c.After.Type() != nchess.Pawn {
		return false
	}
	if c.After.Color() == nchess.White {
		return c.Square.Rank() == nchess.Rank8
	}
	return c.Square.Rank() == nchess.Rank1
}
