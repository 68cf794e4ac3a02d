package board

import (
	nchess "github.com/corentings/chess/v2"
)

// Piece codes use the two-character form "wP".."bK" shared by the label
// catalog, the stores, and the render assets.
var pieceByCode, codeByPiece = func() (map[string]nchess.Piece, map[nchess.Piece]string) {
	ref := nchess.NewGame().Position().Board()
	seed := []struct {
		code string
		file nchess.File
		rank nchess.Rank
	}{
		{"wR", nchess.FileA, nchess.Rank1},
		{"wN", nchess.FileB, nchess.Rank1},
		{"wB", nchess.FileC, nchess.Rank1},
		{"wQ", nchess.FileD, nchess.Rank1},
		{"wK", nchess.FileE, nchess.Rank1},
		{"wP", nchess.FileA, nchess.Rank2},
		{"bR", nchess.FileA, nchess.Rank8},
		{"bN", nchess.FileB, nchess.Rank8},
		{"bB", nchess.FileC, nchess.Rank8},
		{"bQ", nchess.FileD, nchess.Rank8},
		{"bK", nchess.FileE, nchess.Rank8},
		{"bP", nchess.FileA, nchess.Rank7},
	}
	byCode := make(map[string]nchess.Piece, len(seed))
	byPiece := make(map[nchess.Piece]string, len(seed))
	for _, s := range seed {
		p := ref.Piece(nchess.NewSquare(s.file, s.rank))
		byCode[s.code] = p
		byPiece[p] = s.code
	}
	return byCode, byPiece
}()

// PieceFromCode resolves a "wP".."bK" code to a piece value.
func PieceFromCode(code string) (nchess.Piece, bool) {
	p, ok := pieceByCode[code]
	return p, ok
}

// CodeOf returns the two-character code for a piece.
func CodeOf(piece nchess.Piece) (string, bool) {
	code, ok := codeByPiece[piece]
	return code, ok
}

func fenChar(piece nchess.Piece) (byte, bool) {
	code, ok := codeByPiece[piece]
	if !ok || len(code) != 2 {
		return 0, false
	}
	ch := code[1]
	if code[0] == 'b' {
		ch += 'a' - 'A'
	}
	return ch, true
}
