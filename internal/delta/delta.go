package delta

import (
	"errors"
	"sort"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/snapshot"
)

var ErrUnclassifiableDelta = errors.New("board change does not match any move shape")

// Shape classifies what kind of move a set of square changes looks like.
type Shape int

const (
	NoChange Shape = iota
	QuietMove
	DoublePawnPush
	Capture
	CastleKingside
	CastleQueenside
	EnPassantCapture
	Promotion
	PromotionCapture
	Unclassifiable
)

func (s Shape) String() string {
	switch s {
	case NoChange:
		return "no-change"
	case QuietMove:
		return "quiet-move"
	case DoublePawnPush:
		return "double-pawn-push"
	case Capture:
		return "capture"
	case CastleKingside:
		return "castle-kingside"
	case CastleQueenside:
		return "castle-queenside"
	case EnPassantCapture:
		return "en-passant-capture"
	case Promotion:
		return "promotion"
	case PromotionCapture:
		return "promotion-capture"
	default:
		return "unclassifiable"
	}
}

// Change is one square whose occupant differs between two snapshots.
type Change struct {
	Square nchess.Square
	Before nchess.Piece
	After  nchess.Piece
}

// Context carries the special-move state of the side to move, needed to
// tell castling and en passant apart from coincidental multi-square diffs.
type Context struct {
	Turn            nchess.Color
	CastleKingside  bool
	CastleQueenside bool
	HasEnPassant    bool
	EnPassantTarget nchess.Square
}

// Delta is the classified difference between two occupancy snapshots.
type Delta struct {
	Shape   Shape
	Changes []Change
}

// Analyze computes the symmetric occupancy difference and classifies its
// shape. Pure function; unclassifiable input is a classification, not an
// error.
func Analyze(prev, next snapshot.Occupancy, ctx Context) Delta {
	changes := Diff(prev, next)
	return Delta{Shape: classify(changes, ctx), Changes: changes}
}

// Diff lists the squares whose occupant differs between two snapshots,
// sorted by square for deterministic output.
func Diff(prev, next snapshot.Occupancy) []Change {
	seen := make(map[nchess.Square]bool, len(prev)+len(next))
	var changes []Change
	for sq, before := range prev {
		seen[sq] = true
		if after := next[sq]; after != before {
			changes = append(changes, Change{Square: sq, Before: before, After: after})
		}
	}
	for sq, after := range next {
		if seen[sq] {
			continue
		}
		if before := prev[sq]; before != after {
			changes = append(changes, Change{Square: sq, Before: before, After: after})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Square < changes[j].Square })
	return changes
}

func classify(changes []Change, ctx Context) Shape {
	switch len(changes) {
	case 0:
		return NoChange
	case 2:
		return classifyPair(changes, ctx)
	case 3:
		return classifyEnPassant(changes, ctx)
	case 4:
		return classifyCastle(changes, ctx)
	default:
		return Unclassifiable
	}
}

func classifyPair(changes []Change, ctx Context) Shape {
	var from, to *Change
	for i := range changes {
		c := &changes[i]
		switch {
		case c.Before != nchess.NoPiece && c.After == nchess.NoPiece:
			from = c
		case c.After != nchess.NoPiece:
			to = c
		}
	}
	if from == nil || to == nil {
		return Unclassifiable
	}
	mover := from.Before
	if mover.Color() != ctx.Turn {
		return Unclassifiable
	}

	if to.After == mover {
		switch {
		case to.Before == nchess.NoPiece:
			if isDoublePush(mover, from.Square, to.Square) {
				return DoublePawnPush
			}
			return QuietMove
		case to.Before.Color() != mover.Color():
			return Capture
		default:
			return Unclassifiable
		}
	}

	// Destination piece differs from the origin piece: only a promoting
	// pawn may change kind in flight.
	if mover.Type() != nchess.Pawn ||
		to.After.Color() != mover.Color() ||
		to.After.Type() == nchess.Pawn ||
		to.After.Type() == nchess.King ||
		!onPromotionRanks(mover.Color(), from.Square, to.Square) {
		return Unclassifiable
	}
	switch {
	case to.Before == nchess.NoPiece:
		return Promotion
	case to.Before.Color() != mover.Color():
		return PromotionCapture
	default:
		return Unclassifiable
	}
}

func isDoublePush(mover nchess.Piece, from, to nchess.Square) bool {
	if mover.Type() != nchess.Pawn || from.File() != to.File() {
		return false
	}
	if mover.Color() == nchess.White {
		return from.Rank() == nchess.Rank2 && to.Rank() == nchess.Rank4
	}
	return from.Rank() == nchess.Rank7 && to.Rank() == nchess.Rank5
}

func onPromotionRanks(color nchess.Color, from, to nchess.Square) bool {
	if color == nchess.White {
		return from.Rank() == nchess.Rank7 && to.Rank() == nchess.Rank8
	}
	return from.Rank() == nchess.Rank2 && to.Rank() == nchess.Rank1
}

func classifyEnPassant(changes []Change, ctx Context) Shape {
	if !ctx.HasEnPassant {
		return Unclassifiable
	}
	var vacated []*Change
	var landed *Change
	for i := range changes {
		c := &changes[i]
		switch {
		case c.Before != nchess.NoPiece && c.After == nchess.NoPiece:
			vacated = append(vacated, c)
		case c.Before == nchess.NoPiece && c.After != nchess.NoPiece:
			landed = c
		default:
			return Unclassifiable
		}
	}
	if len(vacated) != 2 || landed == nil || landed.Square != ctx.EnPassantTarget {
		return Unclassifiable
	}

	var origin, victim *Change
	for _, c := range vacated {
		if c.Before.Color() == ctx.Turn {
			origin = c
		} else {
			victim = c
		}
	}
	if origin == nil || victim == nil {
		return Unclassifiable
	}
	if origin.Before.Type() != nchess.Pawn || victim.Before.Type() != nchess.Pawn {
		return Unclassifiable
	}
	if landed.After != origin.Before {
		return Unclassifiable
	}
	if fileDistance(origin.Square, landed.Square) != 1 {
		return Unclassifiable
	}
	// The captured pawn sits on the target file at the capturer's origin rank.
	if victim.Square.File() != landed.Square.File() || victim.Square.Rank() != origin.Square.Rank() {
		return Unclassifiable
	}
	return EnPassantCapture
}

func fileDistance(a, b nchess.Square) int {
	d := int(a.File()) - int(b.File())
	if d < 0 {
		d = -d
	}
	return d
}

func classifyCastle(changes []Change, ctx Context) Shape {
	if ctx.CastleKingside && matchesCastle(changes, ctx.Turn, true) {
		return CastleKingside
	}
	if ctx.CastleQueenside && matchesCastle(changes, ctx.Turn, false) {
		return CastleQueenside
	}
	return Unclassifiable
}

func matchesCastle(changes []Change, color nchess.Color, kingside bool) bool {
	rank := nchess.Rank1
	if color == nchess.Black {
		rank = nchess.Rank8
	}
	kingFrom := nchess.NewSquare(nchess.FileE, rank)
	var kingTo, rookFrom, rookTo nchess.Square
	if kingside {
		kingTo = nchess.NewSquare(nchess.FileG, rank)
		rookFrom = nchess.NewSquare(nchess.FileH, rank)
		rookTo = nchess.NewSquare(nchess.FileF, rank)
	} else {
		kingTo = nchess.NewSquare(nchess.FileC, rank)
		rookFrom = nchess.NewSquare(nchess.FileA, rank)
		rookTo = nchess.NewSquare(nchess.FileD, rank)
	}

	bySquare := make(map[nchess.Square]Change, len(changes))
	for _, c := range changes {
		bySquare[c.Square] = c
	}
	kf, ok1 := bySquare[kingFrom]
	kt, ok2 := bySquare[kingTo]
	rf, ok3 := bySquare[rookFrom]
	rt, ok4 := bySquare[rookTo]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	king := kf.Before
	rook := rf.Before
	return king != nchess.NoPiece && king.Type() == nchess.King && king.Color() == color &&
		rook != nchess.NoPiece && rook.Type() == nchess.Rook && rook.Color() == color &&
		kf.After == nchess.NoPiece && rf.After == nchess.NoPiece &&
		kt.Before == nchess.NoPiece && kt.After == king &&
		rt.Before == nchess.NoPiece && rt.After == rook
}
