package analysis

import (
	"context"
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

// Analyzer turns session candidates into ranked suggestions for the
// reconciled position.
type Analyzer struct {
	session  *Session
	movetime int
}

func NewAnalyzer(session *Session, movetimeMS int) *Analyzer {
	if movetimeMS <= 0 {
		movetimeMS = 800
	}
	return &Analyzer{session: session, movetime: movetimeMS}
}

// Suggest analyzes the position and returns MultiPV candidates with SAN
// encodings resolved against the position.
func (a *Analyzer) Suggest(ctx context.Context, fen string) ([]visiondto.Suggestion, error) {
	if a == nil || a.session == nil {
		return nil, fmt.Errorf("analyzer not configured")
	}
	resp, err := a.session.Search(ctx, SearchRequest{
		FEN:    fen,
		Limits: Limits{MoveTimeMillis: a.movetime},
	})
	if err != nil {
		return nil, err
	}

	st, err := board.FromFEN(fen)
	if err != nil {
		return nil, err
	}

	out := make([]visiondto.Suggestion, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		sugg := visiondto.Suggestion{
			MoveUCI:   cand.Move,
			EvalCP:    cand.EvalCP,
			Principal: cand.Principal,
		}
		if san, err := sanForUCI(st, cand.Move); err == nil {
			sugg.MoveSAN = san
		}
		out = append(out, sugg)
	}
	return out, nil
}

func sanForUCI(st *board.State, uci string) (string, error) {
	mv, err := nchess.UCINotation{}.Decode(st.Position(), uci)
	if err != nil {
		return "", err
	}
	return st.SAN(*mv), nil
}
