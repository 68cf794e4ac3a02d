package domain

import "time"

// GameRecord is one finished (or abandoned) reconciled game as persisted by
// the archive repository and mirrored to the live store.
type GameRecord struct {
	ID           int64
	GameUUID     string
	StartFEN     string
	FinalFEN     string
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	Frames       int64
	Corrections  int
	StartedAt    time.Time
	EndedAt      time.Time
}
