package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapvel/chessvision/internal/board"
	"github.com/kapvel/chessvision/internal/delta"
	"github.com/kapvel/chessvision/internal/domain"
	"github.com/kapvel/chessvision/internal/history"
	"github.com/kapvel/chessvision/internal/infer"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

var ErrFaulted = errors.New("controller is faulted; explicit reset required")

type Status int

const (
	StatusUninitialized Status = iota
	StatusTracking
	StatusAwaitingRetry
	StatusFaulted
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusTracking:
		return "tracking"
	case StatusAwaitingRetry:
		return "awaiting_retry"
	case StatusFaulted:
		return "faulted"
	}
	return "unknown"
}

type Config struct {
	// RetryLimit is the number of consecutive failed frames before the
	// controller faults.
	RetryLimit int
	// Full validation runs every ValidateEveryMoves accepted moves or
	// after ValidateEvery elapsed, whichever comes first.
	ValidateEveryMoves int
	ValidateEvery      time.Duration
	MinConfidence      float64
	// StartFEN optionally initializes tracking from a non-standard
	// position when its occupancy is observed.
	StartFEN string
}

// Events are optional hooks invoked while the controller lock is held.
// Handlers must be quick and must not call back into the controller.
type Events struct {
	OnGameStart  func(view visiondto.StateView)
	OnMove       func(view visiondto.StateView, entry history.Entry)
	OnCorrection func(view visiondto.StateView)
	OnFault      func(view visiondto.StateView, cause error)
	OnGameEnd    func(rec *domain.GameRecord)
}

// Controller owns the board state and move history. Snapshots are consumed
// one at a time in arrival order; external readers only ever get copies.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	events Events
	logger *zap.Logger

	status      Status
	gameID      string
	st          *board.State
	hist        *history.History
	retries     int
	corrections int

	framesSeen      int64
	lastFrameID     int64
	movesSinceCheck int
	lastCheck       time.Time
	startedAt       time.Time

	lastFrom, lastTo nchess.Square
	hasLastMove      bool
}

func NewController(cfg Config, events Events) *Controller {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.ValidateEveryMoves <= 0 {
		cfg.ValidateEveryMoves = 10
	}
	if cfg.ValidateEvery <= 0 {
		cfg.ValidateEvery = 30 * time.Second
	}
	return &Controller{
		cfg:    cfg,
		events: events,
		logger: obslog.L(),
		status: StatusUninitialized,
		hist:   history.New(cfg.StartFEN),
	}
}

// Run consumes snapshots until the channel closes or the context ends.
// Frames are processed strictly in arrival order and never dropped.
func (c *Controller) Run(ctx context.Context, frames <-chan snapshot.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-frames:
			if !ok {
				return nil
			}
			if err := c.Process(ctx, snap); err != nil {
				c.logger.Debug("frame_rejected",
					zap.Int64("frame_id", snap.FrameID),
					zap.Error(err),
				)
			}
		}
	}
}

// Process reconciles one snapshot against the last confirmed state.
func (c *Controller) Process(_ context.Context, snap snapshot.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesSeen++
	c.lastFrameID = snap.FrameID

	if err := snap.Validate(c.cfg.MinConfidence); err != nil {
		// A structurally impossible frame never touches board state and
		// never counts against the retry budget.
		c.logger.Warn("snapshot_invalid",
			zap.Int64("frame_id", snap.FrameID),
			zap.Error(err),
		)
		return err
	}

	occ := snap.Occupancy()

	switch c.status {
	case StatusUninitialized:
		return c.tryInitialize(occ, snap)
	case StatusFaulted:
		// Only new-game detection clears a fault without user action.
		if occ.IsStartingPosition() {
			c.startGame("", snap)
			return nil
		}
		return ErrFaulted
	default:
		return c.track(occ, snap)
	}
}

func (c *Controller) tryInitialize(occ snapshot.Occupancy, snap snapshot.Snapshot) error {
	if occ.IsStartingPosition() {
		c.startGame("", snap)
		return nil
	}
	if c.cfg.StartFEN != "" {
		st, err := board.FromFEN(c.cfg.StartFEN)
		if err != nil {
			return err
		}
		if st.Occupancy().Equal(occ) {
			c.startGame(c.cfg.StartFEN, snap)
			return nil
		}
	}
	c.logger.Debug("awaiting_recognizable_position", zap.Int64("frame_id", snap.FrameID))
	return nil
}

// startGame resets all per-game state. Caller holds the lock.
func (c *Controller) startGame(fen string, snap snapshot.Snapshot) {
	c.finishGame("new-game")

	if fen == "" {
		c.st = board.NewState()
	} else {
		st, err := board.FromFEN(fen)
		if err != nil {
			// Callers validate the FEN before reaching here.
			c.logger.Error("start_fen_rejected", zap.String("fen", fen), zap.Error(err))
			return
		}
		c.st = st
	}
	c.gameID = uuid.NewString()
	c.hist = history.New(fen)
	c.status = StatusTracking
	c.retries = 0
	c.corrections = 0
	c.framesSeen = 1
	c.movesSinceCheck = 0
	c.lastCheck = time.Now()
	c.startedAt = time.Now()
	c.hasLastMove = false

	c.logger.Info("game_start",
		zap.String("game_id", c.gameID),
		zap.String("fen", c.st.FEN()),
		zap.Int64("frame_id", snap.FrameID),
	)
	if c.events.OnGameStart != nil {
		c.events.OnGameStart(c.viewLocked())
	}
}

// finishGame emits an archive record for the game in progress, if any.
// Caller holds the lock.
func (c *Controller) finishGame(method string) {
	if c.st == nil || c.hist == nil || c.hist.Len() == 0 {
		return
	}
	rec := &domain.GameRecord{
		GameUUID:     c.gameID,
		StartFEN:     c.hist.BaseFEN(),
		FinalFEN:     c.st.FEN(),
		Result:       "*",
		ResultMethod: method,
		MovesUCI:     c.hist.MovesUCI(),
		MovesSAN:     c.hist.MovesSAN(),
		PGN:          c.hist.PGN(c.gameID, c.startedAt),
		Frames:       c.framesSeen,
		Corrections:  c.corrections,
		StartedAt:    c.startedAt,
		EndedAt:      time.Now(),
	}
	c.logger.Info("game_end",
		zap.String("game_id", c.gameID),
		zap.String("method", method),
		zap.Int("moves", len(rec.MovesUCI)),
		zap.Int("corrections", rec.Corrections),
	)
	if c.events.OnGameEnd != nil {
		c.events.OnGameEnd(rec)
	}
}

func (c *Controller) track(occ snapshot.Occupancy, snap snapshot.Snapshot) error {
	// A reappearing starting position after play means a new game began.
	if occ.IsStartingPosition() && c.hist.Len() > 0 {
		c.startGame("", snap)
		return nil
	}

	ctxDelta := c.deltaContext()
	dl := delta.Analyze(c.st.Occupancy(), occ, ctxDelta)

	if dl.Shape == delta.NoChange {
		c.retries = 0
		if c.status == StatusAwaitingRetry {
			c.status = StatusTracking
		}
		// State and snapshot agree square by square, which is exactly
		// what the periodic full check verifies.
		c.markValidated()
		return nil
	}

	if dl.Shape == delta.Unclassifiable {
		return c.fail(occ, snap, fmt.Errorf("%w: %d squares changed", delta.ErrUnclassifiableDelta, len(dl.Changes)))
	}

	mv, err := infer.Infer(dl, c.st)
	if err != nil {
		return c.fail(occ, snap, err)
	}

	san := c.st.SAN(mv)
	uci := c.st.UCI(mv)
	if err := c.st.Apply(mv); err != nil {
		return c.fail(occ, snap, err)
	}

	entry := c.hist.Append(uci, san, c.st.FEN(), snap.CapturedAt)
	c.retries = 0
	c.status = StatusTracking
	c.movesSinceCheck++
	c.lastFrom, c.lastTo, c.hasLastMove = mv.S1(), mv.S2(), true

	c.logger.Info("move_confirmed",
		zap.String("game_id", c.gameID),
		zap.Int("index", entry.Index),
		zap.String("uci", uci),
		zap.String("san", san),
		zap.String("shape", dl.Shape.String()),
		zap.String("fen", entry.FEN),
		zap.Int64("frame_id", snap.FrameID),
	)
	if c.events.OnMove != nil {
		c.events.OnMove(c.viewLocked(), entry)
	}

	if c.validationDue() {
		c.markValidated()
	}
	return nil
}

// fail handles a frame that could not be reconciled: retry, periodic
// correction, or fault. Board state is untouched unless a correction is
// applied. Caller holds the lock.
func (c *Controller) fail(occ snapshot.Occupancy, snap snapshot.Snapshot, cause error) error {
	if c.validationDue() {
		return c.correct(occ, snap, cause)
	}

	c.retries++
	if c.retries >= c.cfg.RetryLimit {
		c.status = StatusFaulted
		c.logger.Error("controller_faulted",
			zap.String("game_id", c.gameID),
			zap.Int("retries", c.retries),
			zap.Int64("frame_id", snap.FrameID),
			zap.Error(cause),
		)
		if c.events.OnFault != nil {
			c.events.OnFault(c.viewLocked(), cause)
		}
		return cause
	}

	c.status = StatusAwaitingRetry
	c.logger.Warn("frame_unresolved",
		zap.String("game_id", c.gameID),
		zap.Int("retry", c.retries),
		zap.Int("retry_limit", c.cfg.RetryLimit),
		zap.Int64("frame_id", snap.FrameID),
		zap.Error(cause),
	)
	return cause
}

// correct resets occupancy from the snapshot while preserving side to move,
// rights and counters from the prior state. Those fields cannot be
// re-derived from occupancy alone, so the correction is best-effort and
// flagged as such. History is kept.
func (c *Controller) correct(occ snapshot.Occupancy, snap snapshot.Snapshot, cause error) error {
	corrected, err := c.st.Corrected(occ)
	if err != nil {
		c.status = StatusFaulted
		c.logger.Error("correction_failed",
			zap.String("game_id", c.gameID),
			zap.Int64("frame_id", snap.FrameID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		if c.events.OnFault != nil {
			c.events.OnFault(c.viewLocked(), err)
		}
		return err
	}

	c.st = corrected
	c.corrections++
	c.retries = 0
	c.status = StatusTracking
	c.hasLastMove = false
	c.markValidated()

	c.logger.Warn("occupancy_corrected",
		zap.String("game_id", c.gameID),
		zap.Int("corrections", c.corrections),
		zap.String("fen", c.st.FEN()),
		zap.Bool("rights_best_effort", true),
		zap.Int64("frame_id", snap.FrameID),
		zap.NamedError("cause", cause),
	)
	if c.events.OnCorrection != nil {
		c.events.OnCorrection(c.viewLocked())
	}
	return nil
}

func (c *Controller) deltaContext() delta.Context {
	turn := c.st.Turn()
	ctx := delta.Context{
		Turn:            turn,
		CastleKingside:  c.st.CastlingAvailable(turn, true),
		CastleQueenside: c.st.CastlingAvailable(turn, false),
	}
	if ep := c.st.Details().EnPassant; ep != "-" {
		if sq, ok := board.SquareFromCoord(ep); ok {
			ctx.HasEnPassant = true
			ctx.EnPassantTarget = sq
		}
	}
	return ctx
}

func (c *Controller) validationDue() bool {
	return c.movesSinceCheck >= c.cfg.ValidateEveryMoves ||
		time.Since(c.lastCheck) >= c.cfg.ValidateEvery
}

func (c *Controller) markValidated() {
	c.movesSinceCheck = 0
	c.lastCheck = time.Now()
}

// Reset explicitly restarts tracking, from a caller-supplied FEN or from the
// standard starting position. This is the only path out of Faulted besides
// new-game detection.
func (c *Controller) Reset(fen string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fen != "" {
		if _, err := board.FromFEN(fen); err != nil {
			return err
		}
	}
	c.startGame(fen, snapshot.Snapshot{})
	c.logger.Info("explicit_reset", zap.String("game_id", c.gameID), zap.String("fen", c.st.FEN()))
	return nil
}

// Undo rewinds to the position after history entry index (-1 for the base
// position), discarding later entries. Inference is not re-run.
func (c *Controller) Undo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return ErrFaulted
	}
	fen, err := c.hist.Undo(index)
	if err != nil {
		return err
	}
	var st *board.State
	if fen == "" {
		st = board.NewState()
	} else {
		st, err = board.FromFEN(fen)
		if err != nil {
			return err
		}
	}
	c.st = st
	c.retries = 0
	c.status = StatusTracking
	c.hasLastMove = false
	c.markValidated()
	c.logger.Info("history_undo",
		zap.String("game_id", c.gameID),
		zap.Int("index", index),
		zap.String("fen", c.st.FEN()),
	)
	return nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// View returns a read-only copy of the reconciled game.
func (c *Controller) View() visiondto.StateView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() visiondto.StateView {
	view := visiondto.StateView{
		GameID:      c.gameID,
		Status:      c.status.String(),
		Retries:     c.retries,
		Corrections: c.corrections,
		LastFrameID: c.lastFrameID,
	}
	if c.st != nil {
		view.FEN = c.st.FEN()
		view.Turn = c.st.Details().Turn
	}
	if c.hist != nil {
		view.MovesSAN = c.hist.MovesSAN()
		view.MovesUCI = c.hist.MovesUCI()
		view.MoveCount = c.hist.Len()
	}
	return view
}

// HistoryEntries returns a copy of the confirmed move log.
func (c *Controller) HistoryEntries() []visiondto.HistoryEntry {
	c.mu.Lock()
	h := c.hist
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	entries := h.Entries()
	out := make([]visiondto.HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = visiondto.HistoryEntry{
			Index:    e.Index,
			UCI:      e.UCI,
			SAN:      e.SAN,
			FEN:      e.FEN,
			PlayedAt: e.PlayedAt,
		}
	}
	return out
}

// PGN exports the current game's move list.
func (c *Controller) PGN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hist == nil {
		return ""
	}
	return c.hist.PGN(c.gameID, c.startedAt)
}

// StateCopy returns an independent clone of the board state, or nil before
// initialization.
func (c *Controller) StateCopy() *board.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == nil {
		return nil
	}
	return c.st.Clone()
}

// LastMove reports the squares of the most recent confirmed move.
func (c *Controller) LastMove() (from, to nchess.Square, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFrom, c.lastTo, c.hasLastMove
}
