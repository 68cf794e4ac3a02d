package visiondto

import "time"

// StateView is a read-only copy of the reconciled game for external consumers.
type StateView struct {
	GameID      string   `json:"game_id"`
	Status      string   `json:"status"`
	FEN         string   `json:"fen"`
	Turn        string   `json:"turn"`
	MovesSAN    []string `json:"moves_san"`
	MovesUCI    []string `json:"moves_uci"`
	MoveCount   int      `json:"move_count"`
	Retries     int      `json:"retries"`
	Corrections int      `json:"corrections"`
	LastFrameID int64    `json:"last_frame_id"`
}

type HistoryEntry struct {
	Index    int       `json:"index"`
	UCI      string    `json:"uci"`
	SAN      string    `json:"san"`
	FEN      string    `json:"fen"`
	PlayedAt time.Time `json:"played_at"`
}

// Suggestion is one ranked engine candidate for the current position.
type Suggestion struct {
	MoveUCI   string   `json:"move_uci"`
	MoveSAN   string   `json:"move_san"`
	EvalCP    int      `json:"eval_cp"`
	Principal []string `json:"principal"`
}

type ResetRequest struct {
	FEN string `json:"fen"`
}

type UndoRequest struct {
	Index int `json:"index"`
}
