package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrIndexOutOfRange = errors.New("history index out of range")

// Entry is one confirmed move with the position it produced.
type Entry struct {
	Index    int
	UCI      string
	SAN      string
	FEN      string
	PlayedAt time.Time
}

// History is the append-only ordered log of applied moves. Truncation
// happens only through Undo or Reset.
type History struct {
	mu      sync.RWMutex
	baseFEN string
	entries []Entry
}

// New returns an empty history rooted at the given base position. An empty
// baseFEN means the standard starting position.
func New(baseFEN string) *History {
	return &History{baseFEN: strings.TrimSpace(baseFEN)}
}

func (h *History) BaseFEN() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.baseFEN
}

// Append records a confirmed move. The entry index is assigned here.
func (h *History) Append(uci, san, fen string, playedAt time.Time) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := Entry{
		Index:    len(h.entries),
		UCI:      uci,
		SAN:      san,
		FEN:      fen,
		PlayedAt: playedAt,
	}
	h.entries = append(h.entries, e)
	return e
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) Last() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the log.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]Entry, len(h.entries))
	copy(cp, h.entries)
	return cp
}

// Undo truncates every entry after index and returns the FEN at that point.
// Undo(-1) rewinds to the base position.
func (h *History) Undo(index int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < -1 || index >= len(h.entries) {
		return "", fmt.Errorf("%w: %d with %d entries", ErrIndexOutOfRange, index, len(h.entries))
	}
	if index == -1 {
		h.entries = h.entries[:0]
		return h.baseFEN, nil
	}
	fen := h.entries[index].FEN
	h.entries = h.entries[:index+1]
	return fen, nil
}

// Reset clears the log and re-roots it at a new base position.
func (h *History) Reset(baseFEN string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseFEN = strings.TrimSpace(baseFEN)
	h.entries = nil
}

func (h *History) MovesUCI() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.UCI
	}
	return out
}

func (h *History) MovesSAN() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.SAN
	}
	return out
}

// Movetext renders the numbered SAN move list ("1. e4 e5 2. Nf3").
// The starting move number and side come from the base position, so a
// black-to-move base renders "3... e5 4. Nf3". Deterministic, pure
// transformation of the log.
func (h *History) Movetext() string {
	sans := h.MovesSAN()
	num, whiteToMove := baseMoveContext(h.BaseFEN())
	var sb strings.Builder
	for i, san := range sans {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch {
		case whiteToMove:
			fmt.Fprintf(&sb, "%d. %s", num, san)
		case i == 0:
			fmt.Fprintf(&sb, "%d... %s", num, san)
		default:
			sb.WriteString(san)
		}
		if !whiteToMove {
			num++
		}
		whiteToMove = !whiteToMove
	}
	return sb.String()
}

// baseMoveContext reads the side to move and fullmove number from a base
// FEN. An empty or malformed base means the standard start.
func baseMoveContext(fen string) (num int, whiteToMove bool) {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return 1, true
	}
	num = 1
	if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
		num = n
	}
	return num, fields[1] != "b"
}

// PGN renders a minimal tagged export of the move list.
func (h *History) PGN(gameID string, startedAt time.Time) string {
	h.mu.RLock()
	base := h.baseFEN
	h.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("[Event \"Reconciled game\"]\n")
	fmt.Fprintf(&sb, "[Site \"chessvision\"]\n")
	fmt.Fprintf(&sb, "[Date %q]\n", startedAt.Format("2006.01.02"))
	fmt.Fprintf(&sb, "[Round %q]\n", "-")
	fmt.Fprintf(&sb, "[White %q]\n", "?")
	fmt.Fprintf(&sb, "[Black %q]\n", "?")
	if base != "" {
		fmt.Fprintf(&sb, "[SetUp \"1\"]\n[FEN %q]\n", base)
	}
	fmt.Fprintf(&sb, "[GameId %q]\n", gameID)
	sb.WriteString("[Result \"*\"]\n\n")
	if text := h.Movetext(); text != "" {
		sb.WriteString(text)
		sb.WriteByte(' ')
	}
	sb.WriteString("*\n")
	return sb.String()
}
