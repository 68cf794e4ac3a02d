package snapshot

import (
	"errors"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"
)

func startingSnapshot(t *testing.T, confidence float64) Snapshot {
	t.Helper()
	snap := New(1, time.Now())
	for sq, piece := range nchess.NewGame().Position().Board().SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		snap.Squares[sq] = Observation{Piece: piece, Confidence: confidence}
	}
	return snap
}

func pieceAt(t *testing.T, file nchess.File, rank nchess.Rank) nchess.Piece {
	t.Helper()
	p := nchess.NewGame().Position().Board().Piece(nchess.NewSquare(file, rank))
	if p == nchess.NoPiece {
		t.Fatalf("no piece at file=%v rank=%v in starting position", file, rank)
	}
	return p
}

func TestValidateStartingPosition(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	if err := snap.Validate(0.5); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMissingKing(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	delete(snap.Squares, nchess.NewSquare(nchess.FileE, nchess.Rank1))
	err := snap.Validate(0.5)
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestValidateTwoKings(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	wk := pieceAt(t, nchess.FileE, nchess.Rank1)
	snap.Squares[nchess.NewSquare(nchess.FileE, nchess.Rank4)] = Observation{Piece: wk, Confidence: 0.9}
	err := snap.Validate(0.5)
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestValidateTooManyPieces(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	wp := pieceAt(t, nchess.FileA, nchess.Rank2)
	snap.Squares[nchess.NewSquare(nchess.FileA, nchess.Rank3)] = Observation{Piece: wp, Confidence: 0.9}
	err := snap.Validate(0.5)
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestValidateEmptyObservation(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	snap.Squares[nchess.NewSquare(nchess.FileD, nchess.Rank4)] = Observation{Piece: nchess.NoPiece, Confidence: 0.9}
	err := snap.Validate(0.5)
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestValidateLowConfidence(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	e2 := nchess.NewSquare(nchess.FileE, nchess.Rank2)
	obs := snap.Squares[e2]
	obs.Confidence = 0.2
	snap.Squares[e2] = obs

	err := snap.Validate(0.5)
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
	if err := snap.Validate(0.1); err != nil {
		t.Fatalf("Validate with lower threshold: %v", err)
	}
}

func TestFlipRotates(t *testing.T) {
	snap := startingSnapshot(t, 0.9)
	flipped := snap.Flip()

	e2 := nchess.NewSquare(nchess.FileE, nchess.Rank2)
	d7 := nchess.NewSquare(nchess.FileD, nchess.Rank7)
	if flipped.Squares[d7].Piece != snap.Squares[e2].Piece {
		t.Fatalf("e2 should land on d7 after a 180 degree rotation")
	}
	if !flipped.Flip().Occupancy().Equal(snap.Occupancy()) {
		t.Fatalf("double flip must restore the original occupancy")
	}
}

func TestIsStartingPosition(t *testing.T) {
	occ := startingSnapshot(t, 0.9).Occupancy()
	if !occ.IsStartingPosition() {
		t.Fatalf("starting occupancy not recognized")
	}
	delete(occ, nchess.NewSquare(nchess.FileE, nchess.Rank2))
	if occ.IsStartingPosition() {
		t.Fatalf("modified occupancy still recognized as starting")
	}
}

func TestOccupancyEqualAndClone(t *testing.T) {
	occ := startingSnapshot(t, 0.9).Occupancy()
	cp := occ.Clone()
	if !occ.Equal(cp) {
		t.Fatalf("clone differs from original")
	}
	delete(cp, nchess.NewSquare(nchess.FileA, nchess.Rank1))
	if occ.Equal(cp) {
		t.Fatalf("Equal ignored a removed square")
	}
	if len(occ) != 32 {
		t.Fatalf("clone mutation leaked into original: %d squares", len(occ))
	}
}
