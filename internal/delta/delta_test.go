package delta

import (
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/internal/snapshot"
)

func sq(t *testing.T, coord string) nchess.Square {
	t.Helper()
	s, ok := board.SquareFromCoord(coord)
	if !ok {
		t.Fatalf("bad coord %q", coord)
	}
	return s
}

func pc(t *testing.T, code string) nchess.Piece {
	t.Helper()
	p, ok := board.PieceFromCode(code)
	if !ok {
		t.Fatalf("bad piece code %q", code)
	}
	return p
}

// occ builds an occupancy from coord->code pairs.
func occ(t *testing.T, placement map[string]string) snapshot.Occupancy {
	t.Helper()
	out := make(snapshot.Occupancy, len(placement))
	for coord, code := range placement {
		out[sq(t, coord)] = pc(t, code)
	}
	return out
}

func whiteCtx() Context {
	return Context{Turn: nchess.White, CastleKingside: true, CastleQueenside: true}
}

func TestDiffSorted(t *testing.T) {
	prev := occ(t, map[string]string{"e2": "wP", "g1": "wN", "a8": "bR"})
	next := occ(t, map[string]string{"e4": "wP", "f3": "wN", "a8": "bR"})
	changes := Diff(prev, next)
	if len(changes) != 4 {
		t.Fatalf("expected 4 changed squares, got %d", len(changes))
	}
	for i := 1; i < len(changes); i++ {
		if changes[i-1].Square >= changes[i].Square {
			t.Fatalf("changes not sorted: %v before %v", changes[i-1].Square, changes[i].Square)
		}
	}
	if same := Diff(prev, prev.Clone()); len(same) != 0 {
		t.Fatalf("identical occupancies must produce no changes, got %v", same)
	}
}

func TestClassifyShapes(t *testing.T) {
	cases := []struct {
		name string
		prev map[string]string
		next map[string]string
		ctx  Context
		want Shape
	}{
		{
			name: "no change",
			prev: map[string]string{"e1": "wK", "e8": "bK"},
			next: map[string]string{"e1": "wK", "e8": "bK"},
			ctx:  whiteCtx(),
			want: NoChange,
		},
		{
			name: "quiet knight move",
			prev: map[string]string{"g1": "wN"},
			next: map[string]string{"f3": "wN"},
			ctx:  whiteCtx(),
			want: QuietMove,
		},
		{
			name: "single pawn step",
			prev: map[string]string{"e2": "wP"},
			next: map[string]string{"e3": "wP"},
			ctx:  whiteCtx(),
			want: QuietMove,
		},
		{
			name: "white double pawn push",
			prev: map[string]string{"e2": "wP"},
			next: map[string]string{"e4": "wP"},
			ctx:  whiteCtx(),
			want: DoublePawnPush,
		},
		{
			name: "black double pawn push",
			prev: map[string]string{"d7": "bP"},
			next: map[string]string{"d5": "bP"},
			ctx:  Context{Turn: nchess.Black},
			want: DoublePawnPush,
		},
		{
			name: "capture",
			prev: map[string]string{"e4": "wP", "d5": "bP"},
			next: map[string]string{"d5": "wP"},
			ctx:  whiteCtx(),
			want: Capture,
		},
		{
			name: "mover of the wrong color",
			prev: map[string]string{"g8": "bN"},
			next: map[string]string{"f6": "bN"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "friendly fire is not a capture",
			prev: map[string]string{"e4": "wP", "d5": "wN"},
			next: map[string]string{"d5": "wP"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "white kingside castle",
			prev: map[string]string{"e1": "wK", "h1": "wR"},
			next: map[string]string{"g1": "wK", "f1": "wR"},
			ctx:  whiteCtx(),
			want: CastleKingside,
		},
		{
			name: "white kingside castle without the right",
			prev: map[string]string{"e1": "wK", "h1": "wR"},
			next: map[string]string{"g1": "wK", "f1": "wR"},
			ctx:  Context{Turn: nchess.White},
			want: Unclassifiable,
		},
		{
			name: "black queenside castle",
			prev: map[string]string{"e8": "bK", "a8": "bR"},
			next: map[string]string{"c8": "bK", "d8": "bR"},
			ctx:  Context{Turn: nchess.Black, CastleQueenside: true},
			want: CastleQueenside,
		},
		{
			name: "en passant capture",
			prev: map[string]string{"e5": "wP", "d5": "bP"},
			next: map[string]string{"d6": "wP"},
			ctx: Context{
				Turn:            nchess.White,
				HasEnPassant:    true,
				EnPassantTarget: sq(t, "d6"),
			},
			want: EnPassantCapture,
		},
		{
			name: "three-square diff without an en passant target",
			prev: map[string]string{"e5": "wP", "d5": "bP"},
			next: map[string]string{"d6": "wP"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "en passant landing off target",
			prev: map[string]string{"e5": "wP", "c5": "bP"},
			next: map[string]string{"c6": "wP"},
			ctx: Context{
				Turn:            nchess.White,
				HasEnPassant:    true,
				EnPassantTarget: sq(t, "d6"),
			},
			want: Unclassifiable,
		},
		{
			name: "promotion",
			prev: map[string]string{"a7": "wP"},
			next: map[string]string{"a8": "wQ"},
			ctx:  whiteCtx(),
			want: Promotion,
		},
		{
			name: "black underpromotion",
			prev: map[string]string{"h2": "bP"},
			next: map[string]string{"h1": "bN"},
			ctx:  Context{Turn: nchess.Black},
			want: Promotion,
		},
		{
			name: "promotion capture",
			prev: map[string]string{"a7": "wP", "b8": "bR"},
			next: map[string]string{"b8": "wQ"},
			ctx:  whiteCtx(),
			want: PromotionCapture,
		},
		{
			name: "piece kind change off the promotion ranks",
			prev: map[string]string{"e4": "wP"},
			next: map[string]string{"e5": "wQ"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "promotion to king",
			prev: map[string]string{"a7": "wP"},
			next: map[string]string{"a8": "wK"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "single-square diff",
			prev: map[string]string{"e2": "wP"},
			next: map[string]string{},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
		{
			name: "too many changed squares",
			prev: map[string]string{"a2": "wP", "b2": "wP", "c2": "wP"},
			next: map[string]string{"a3": "wP", "b3": "wP", "c3": "wP"},
			ctx:  whiteCtx(),
			want: Unclassifiable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Analyze(occ(t, tc.prev), occ(t, tc.next), tc.ctx)
			if d.Shape != tc.want {
				t.Fatalf("shape = %s, want %s (changes: %v)", d.Shape, tc.want, d.Changes)
			}
		})
	}
}

func TestAnalyzeIsPure(t *testing.T) {
	prev := occ(t, map[string]string{"e2": "wP", "e1": "wK"})
	next := occ(t, map[string]string{"e4": "wP", "e1": "wK"})
	before := prev.Clone()
	_ = Analyze(prev, next, whiteCtx())
	if !prev.Equal(before) {
		t.Fatalf("Analyze mutated its input")
	}
}
