package board

import (
	nchess "github.com/corentings/chess/v2"
)

// SquareFromCoord parses "a1".."h8" into a square.
func SquareFromCoord(coord string) (nchess.Square, bool) {
	if len(coord) != 2 {
		return 0, false
	}
	f := coord[0]
	r := coord[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return 0, false
	}
	file := nchess.FileA + nchess.File(f-'a')
	rank := nchess.Rank1 + nchess.Rank(r-'1')
	return nchess.NewSquare(file, rank), true
}

// CoordOf renders a square as "a1".."h8".
func CoordOf(sq nchess.Square) string {
	return string([]byte{
		byte('a' + int(sq.File()-nchess.FileA)),
		byte('1' + int(sq.Rank()-nchess.Rank1)),
	})
}
