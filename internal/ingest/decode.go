package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/internal/labels"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

// DecodeFrame turns a wire frame into an orientation-normalized snapshot.
// Frames captured with Black at the bottom are rotated so that a1 is always
// White's corner before the snapshot reaches the controller.
func DecodeFrame(f visiondto.Frame, catalog *labels.Catalog) (snapshot.Snapshot, error) {
	capturedAt := f.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	snap := snapshot.New(f.FrameID, capturedAt)
	for coord, obs := range f.Squares {
		sq, ok := board.SquareFromCoord(strings.ToLower(strings.TrimSpace(coord)))
		if !ok {
			return snapshot.Snapshot{}, fmt.Errorf("frame %d: bad square %q", f.FrameID, coord)
		}
		piece, ok := catalog.PieceFor(obs.Label)
		if !ok {
			return snapshot.Snapshot{}, fmt.Errorf("frame %d: unknown label %q on %s", f.FrameID, obs.Label, coord)
		}
		snap.Squares[sq] = snapshot.Observation{Piece: piece, Confidence: obs.Confidence}
	}
	if f.WhiteBottom != nil && !*f.WhiteBottom {
		snap = snap.Flip()
	}
	return snap, nil
}
