package snapshot

import (
	"errors"
	"fmt"
	"time"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidSnapshot = errors.New("structurally invalid snapshot")
	ErrLowConfidence   = errors.New("snapshot below confidence threshold")
)

// Observation is one square-level detector reading after label decoding.
type Observation struct {
	Piece      nchess.Piece
	Confidence float64
}

// Occupancy maps occupied squares to pieces. Empty squares are absent.
type Occupancy map[nchess.Square]nchess.Piece

// Snapshot is one timestamped observation of the full board. It is an
// immutable value once built; validity is checked by consumers, not at
// construction.
type Snapshot struct {
	FrameID    int64
	CapturedAt time.Time
	Squares    map[nchess.Square]Observation
}

func New(frameID int64, capturedAt time.Time) Snapshot {
	return Snapshot{
		FrameID:    frameID,
		CapturedAt: capturedAt,
		Squares:    make(map[nchess.Square]Observation),
	}
}

// Validate checks structural plausibility and per-square confidence.
// Violations wrap ErrInvalidSnapshot or ErrLowConfidence.
func (s Snapshot) Validate(minConfidence float64) error {
	kings := map[nchess.Color]int{}
	counts := map[nchess.Color]int{}
	for sq, obs := range s.Squares {
		if obs.Piece == nchess.NoPiece {
			return fmt.Errorf("%w: empty observation recorded on %v", ErrInvalidSnapshot, sq)
		}
		if obs.Confidence < minConfidence {
			return fmt.Errorf("%w: %v at %.2f < %.2f", ErrLowConfidence, sq, obs.Confidence, minConfidence)
		}
		counts[obs.Piece.Color()]++
		if obs.Piece.Type() == nchess.King {
			kings[obs.Piece.Color()]++
		}
	}
	for _, color := range []nchess.Color{nchess.White, nchess.Black} {
		if kings[color] != 1 {
			return fmt.Errorf("%w: %d kings for %v", ErrInvalidSnapshot, kings[color], color)
		}
		if counts[color] > 16 {
			return fmt.Errorf("%w: %d pieces for %v", ErrInvalidSnapshot, counts[color], color)
		}
	}
	return nil
}

// Occupancy drops confidence scores and returns the plain square mapping.
func (s Snapshot) Occupancy() Occupancy {
	occ := make(Occupancy, len(s.Squares))
	for sq, obs := range s.Squares {
		occ[sq] = obs.Piece
	}
	return occ
}

// Flip rotates the snapshot 180 degrees, for frames captured with Black at
// the bottom of the camera image.
func (s Snapshot) Flip() Snapshot {
	flipped := Snapshot{
		FrameID:    s.FrameID,
		CapturedAt: s.CapturedAt,
		Squares:    make(map[nchess.Square]Observation, len(s.Squares)),
	}
	for sq, obs := range s.Squares {
		flipped.Squares[rotateSquare(sq)] = obs
	}
	return flipped
}

func rotateSquare(sq nchess.Square) nchess.Square {
	file := nchess.FileA + (nchess.FileH - sq.File())
	rank := nchess.Rank1 + (nchess.Rank8 - sq.Rank())
	return nchess.NewSquare(file, rank)
}

func (o Occupancy) Equal(other Occupancy) bool {
	if len(o) != len(other) {
		return false
	}
	for sq, piece := range o {
		if other[sq] != piece {
			return false
		}
	}
	return true
}

func (o Occupancy) Clone() Occupancy {
	cp := make(Occupancy, len(o))
	for sq, piece := range o {
		cp[sq] = piece
	}
	return cp
}

var startingOccupancy = func() Occupancy {
	board := nchess.NewGame().Position().Board()
	occ := make(Occupancy)
	for sq, piece := range board.SquareMap() {
		if piece != nchess.NoPiece {
			occ[sq] = piece
		}
	}
	return occ
}()

// IsStartingPosition reports whether the occupancy is the standard initial
// setup, used for new-game detection.
func (o Occupancy) IsStartingPosition() bool {
	return o.Equal(startingOccupancy)
}
