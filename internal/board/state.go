package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/snapshot"
)

var (
	ErrInvalidFEN       = errors.New("invalid FEN")
	ErrIllegalMove      = errors.New("move is not legal in the current position")
	ErrCorrectionFailed = errors.New("occupancy correction could not be applied")
)

// State is the authoritative chess position. It is owned by the
// reconciliation controller and mutated only through Apply and Corrected.
type State struct {
	game *nchess.Game
}

// NewState returns the standard starting position.
func NewState() *State {
	return &State{game: nchess.NewGame()}
}

// FromFEN builds a state from a FEN string.
func FromFEN(fen string) (*State, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &State{game: nchess.NewGame(opt)}, nil
}

// Replay rebuilds a state by applying UCI moves from a base position.
// An empty baseFEN means the standard starting position.
func Replay(baseFEN string, uciMoves []string) (*State, error) {
	var st *State
	if strings.TrimSpace(baseFEN) == "" || baseFEN == "startpos" {
		st = NewState()
	} else {
		var err error
		st, err = FromFEN(baseFEN)
		if err != nil {
			return nil, err
		}
	}
	for i, uci := range uciMoves {
		if err := st.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, uci, err)
		}
	}
	return st, nil
}

func (s *State) FEN() string { return s.game.FEN() }

func (s *State) Turn() nchess.Color { return s.game.Position().Turn() }

func (s *State) Clone() *State { return &State{game: s.game.Clone()} }

// PGN returns the game movetext with any tag pairs set on the state.
func (s *State) PGN() string { return s.game.String() }

func (s *State) AddTagPair(key, value string) { s.game.AddTagPair(key, value) }

// Occupancy derives the square mapping from the current position.
func (s *State) Occupancy() snapshot.Occupancy {
	occ := make(snapshot.Occupancy)
	for sq, piece := range s.game.Position().Board().SquareMap() {
		if piece != nchess.NoPiece {
			occ[sq] = piece
		}
	}
	return occ
}

// Board returns the current piece placement for rendering.
func (s *State) Board() *nchess.Board { return s.game.Position().Board() }

// Position exposes the underlying position for notation encoding.
func (s *State) Position() *nchess.Position { return s.game.Position() }

// LegalMoves enumerates every legal move in the current position.
func (s *State) LegalMoves() []nchess.Move {
	return s.game.ValidMoves()
}

// Preview returns the occupancy that would result from playing the move,
// without mutating the state.
func (s *State) Preview(mv nchess.Move) snapshot.Occupancy {
	next := s.game.Position().Update(&mv)
	occ := make(snapshot.Occupancy)
	for sq, piece := range next.Board().SquareMap() {
		if piece != nchess.NoPiece {
			occ[sq] = piece
		}
	}
	return occ
}

// SAN encodes the move in standard algebraic notation for the current
// position. Must be called before Apply.
func (s *State) SAN(mv nchess.Move) string {
	return nchess.AlgebraicNotation{}.Encode(s.game.Position(), &mv)
}

// UCI encodes the move in long algebraic (UCI) form.
func (s *State) UCI(mv nchess.Move) string {
	return nchess.UCINotation{}.Encode(s.game.Position(), &mv)
}

// Apply plays the move, updating side to move, castling rights, the
// en-passant target and both counters.
func (s *State) Apply(mv nchess.Move) error {
	if err := s.game.Move(&mv, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return nil
}

// Details is the non-placement portion of the position, parsed from FEN.
type Details struct {
	Turn           string
	CastleRights   string
	EnPassant      string
	HalfmoveClock  int
	FullmoveNumber int
}

func (s *State) Details() Details {
	fields := strings.Fields(s.game.FEN())
	d := Details{Turn: "w", CastleRights: "-", EnPassant: "-", FullmoveNumber: 1}
	if len(fields) != 6 {
		return d
	}
	d.Turn = fields[1]
	d.CastleRights = fields[2]
	d.EnPassant = fields[3]
	if n, err := strconv.Atoi(fields[4]); err == nil {
		d.HalfmoveClock = n
	}
	if n, err := strconv.Atoi(fields[5]); err == nil {
		d.FullmoveNumber = n
	}
	return d
}

// CastlingAvailable reports whether the FEN rights field still contains the
// given side for the given color ('K'/'Q' pattern).
func (s *State) CastlingAvailable(color nchess.Color, kingside bool) bool {
	rights := s.Details().CastleRights
	var want byte
	switch {
	case color == nchess.White && kingside:
		want = 'K'
	case color == nchess.White && !kingside:
		want = 'Q'
	case color == nchess.Black && kingside:
		want = 'k'
	default:
		want = 'q'
	}
	return strings.IndexByte(rights, want) >= 0
}

// Corrected rebuilds the state with piece placement taken from the observed
// occupancy while keeping side to move, castling rights, the en-passant
// target and both counters from the current state. Rights and en-passant are
// relaxed step by step when the combination is not accepted as a legal
// position.
func (s *State) Corrected(occ snapshot.Occupancy) (*State, error) {
	fields := strings.Fields(s.game.FEN())
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: unexpected FEN shape", ErrCorrectionFailed)
	}
	placement, err := placementFEN(occ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrectionFailed, err)
	}

	attempts := [][2]string{
		{fields[2], fields[3]},
		{fields[2], "-"},
		{"-", "-"},
	}
	var lastErr error
	for _, a := range attempts {
		fen := strings.Join([]string{placement, fields[1], a[0], a[1], fields[4], fields[5]}, " ")
		st, err := FromFEN(fen)
		if err == nil {
			return st, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrCorrectionFailed, lastErr)
}

func placementFEN(occ snapshot.Occupancy) (string, error) {
	var sb strings.Builder
	for rank := nchess.Rank8; ; rank-- {
		empty := 0
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			piece, ok := occ[nchess.NewSquare(file, rank)]
			if !ok || piece == nchess.NoPiece {
				empty++
				continue
			}
			ch, known := fenChar(piece)
			if !known {
				return "", fmt.Errorf("unknown piece value %v", piece)
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(ch)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank == nchess.Rank1 {
			break
		}
		sb.WriteByte('/')
	}
	return sb.String(), nil
}
