package infer

import (
	"errors"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/internal/delta"
	"github.com/kapvel/chessvision/internal/snapshot"
)

func findMove(t *testing.T, st *board.State, uci string) nchess.Move {
	t.Helper()
	for _, mv := range st.LegalMoves() {
		if st.UCI(mv) == uci {
			return mv
		}
	}
	t.Fatalf("move %s not legal in %s", uci, st.FEN())
	return nchess.Move{}
}

func analyzed(t *testing.T, st *board.State, next snapshot.Occupancy, ctx delta.Context) delta.Delta {
	t.Helper()
	d := delta.Analyze(st.Occupancy(), next, ctx)
	if d.Shape == delta.NoChange {
		t.Fatalf("test expects a changed board")
	}
	return d
}

func whiteCtx() delta.Context {
	return delta.Context{Turn: nchess.White, CastleKingside: true, CastleQueenside: true}
}

func TestInferQuietMove(t *testing.T) {
	st := board.NewState()
	before := st.FEN()
	next := st.Preview(findMove(t, st, "e2e4"))

	mv, err := Infer(analyzed(t, st, next, whiteCtx()), st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := st.UCI(mv); got != "e2e4" {
		t.Fatalf("inferred %s, want e2e4", got)
	}
	if st.FEN() != before {
		t.Fatalf("Infer mutated the state")
	}
}

func TestInferCapture(t *testing.T) {
	st, err := board.Replay("", []string{"e2e4", "d7d5"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	next := st.Preview(findMove(t, st, "e4d5"))

	mv, err := Infer(analyzed(t, st, next, whiteCtx()), st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := st.UCI(mv); got != "e4d5" {
		t.Fatalf("inferred %s, want e4d5", got)
	}
}

func TestInferCastle(t *testing.T) {
	st, err := board.Replay("", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	next := st.Preview(findMove(t, st, "e1g1"))

	mv, err := Infer(analyzed(t, st, next, whiteCtx()), st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := st.UCI(mv); got != "e1g1" {
		t.Fatalf("inferred %s, want e1g1", got)
	}
}

func TestInferEnPassant(t *testing.T) {
	st, err := board.Replay("", []string{"e2e4", "a7a6", "e4e5", "d7d5"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	next := st.Preview(findMove(t, st, "e5d6"))

	d6, _ := board.SquareFromCoord("d6")
	ctx := delta.Context{Turn: nchess.White, HasEnPassant: true, EnPassantTarget: d6}
	mv, err := Infer(analyzed(t, st, next, ctx), st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := st.UCI(mv); got != "e5d6" {
		t.Fatalf("inferred %s, want e5d6", got)
	}
}

func TestInferNoMatchingLegalMove(t *testing.T) {
	st := board.NewState()

	// The rook cannot jump over its own pawn.
	a1, _ := board.SquareFromCoord("a1")
	a3, _ := board.SquareFromCoord("a3")
	next := st.Occupancy()
	next[a3] = next[a1]
	delete(next, a1)

	_, err := Infer(analyzed(t, st, next, whiteCtx()), st)
	if !errors.Is(err, ErrNoMatchingLegalMove) {
		t.Fatalf("expected ErrNoMatchingLegalMove, got %v", err)
	}
}

func TestInferAmbiguousPromotionKind(t *testing.T) {
	st, err := board.FromFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}

	// The camera sees a pawn-shaped blob landing on a8. A pawn cannot stay
	// a pawn there, so every promotion piece is a plausible match.
	a7, _ := board.SquareFromCoord("a7")
	a8, _ := board.SquareFromCoord("a8")
	next := st.Occupancy()
	next[a8] = next[a7]
	delete(next, a7)

	d := delta.Analyze(st.Occupancy(), next, delta.Context{Turn: nchess.White})
	_, err = Infer(d, st)
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
	for _, uci := range []string{"a7a8q", "a7a8r", "a7a8b", "a7a8n"} {
		if !strings.Contains(err.Error(), uci) {
			t.Fatalf("ambiguity error should list %s: %v", uci, err)
		}
	}
}

func TestInferResolvedPromotion(t *testing.T) {
	st, err := board.FromFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	next := st.Preview(findMove(t, st, "a7a8n"))

	mv, err := Infer(analyzed(t, st, next, delta.Context{Turn: nchess.White}), st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := st.UCI(mv); got != "a7a8n" {
		t.Fatalf("inferred %s, want a7a8n", got)
	}
}

func TestInferDeterministic(t *testing.T) {
	st := board.NewState()
	next := st.Preview(findMove(t, st, "b1c3"))
	d := analyzed(t, st, next, whiteCtx())

	first, err := Infer(d, st)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Infer(d, st)
		if err != nil {
			t.Fatalf("Infer run %d: %v", i, err)
		}
		if st.UCI(again) != st.UCI(first) {
			t.Fatalf("non-deterministic inference: %s vs %s", st.UCI(again), st.UCI(first))
		}
	}
}
