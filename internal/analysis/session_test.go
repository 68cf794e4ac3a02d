package analysis

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedEngine speaks just enough UCI for tests: it answers the handshake
// and replies to every "go" with a fixed block of info lines.
type scriptedEngine struct {
	mu       sync.Mutex
	searches []string

	reads  *io.PipeReader
	writes *io.PipeWriter

	out *io.PipeWriter
	in  *io.PipeReader

	closed chan struct{}
	once   sync.Once
}

func newScriptedEngine(searchOutput []string) *scriptedEngine {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	e := &scriptedEngine{
		reads:  outR,
		writes: inW,
		out:    outW,
		in:     inR,
		closed: make(chan struct{}),
	}
	go e.serve(searchOutput)
	return e
}

func (e *scriptedEngine) serve(searchOutput []string) {
	buf := make([]byte, 4096)
	var pending string
	for {
		n, err := e.in.Read(buf)
		if err != nil {
			return
		}
		pending += string(buf[:n])
		for {
			idx := strings.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(pending[:idx])
			pending = pending[idx+1:]
			switch {
			case line == "uci":
				io.WriteString(e.out, "id name scripted\nuciok\n")
			case line == "isready":
				io.WriteString(e.out, "readyok\n")
			case strings.HasPrefix(line, "go"):
				e.mu.Lock()
				e.searches = append(e.searches, line)
				e.mu.Unlock()
				for _, out := range searchOutput {
					io.WriteString(e.out, out+"\n")
				}
			}
		}
	}
}

func (e *scriptedEngine) Read(p []byte) (int, error)  { return e.reads.Read(p) }
func (e *scriptedEngine) Write(p []byte) (int, error) { return e.writes.Write(p) }
func (e *scriptedEngine) Close() error {
	e.once.Do(func() {
		close(e.closed)
		e.writes.Close()
		e.out.Close()
	})
	return nil
}

func newTestSession(t *testing.T, searchOutput []string) (*Session, *scriptedEngine) {
	t.Helper()
	engine := newScriptedEngine(searchOutput)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := NewSession(ctx, engine, Options{Threads: 1, HashMB: 16, MultiPV: 3})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, engine
}

func TestSearchCollectsMultiPV(t *testing.T) {
	s, _ := newTestSession(t, []string{
		"info depth 12 multipv 1 score cp 35 pv e2e4 e7e5 g1f3",
		"info depth 12 multipv 2 score cp 28 pv d2d4 d7d5",
		"info depth 12 multipv 3 score cp 14 pv c2c4",
		"bestmove e2e4 ponder e7e5",
	})

	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "startpos",
		Limits: Limits{MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e2e4" {
		t.Fatalf("bestmove = %q", resp.BestMove)
	}
	if len(resp.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(resp.Candidates))
	}
	first := resp.Candidates[0]
	if first.Move != "e2e4" || first.EvalCP != 35 || len(first.Principal) != 3 {
		t.Fatalf("first candidate: %+v", first)
	}
	if resp.Candidates[1].Move != "d2d4" || resp.Candidates[2].Move != "c2c4" {
		t.Fatalf("candidates out of MultiPV order: %+v", resp.Candidates)
	}
}

func TestSearchKeepsLatestLinePerPV(t *testing.T) {
	s, _ := newTestSession(t, []string{
		"info depth 8 multipv 1 score cp 10 pv e2e4",
		"info depth 14 multipv 1 score cp 42 pv d2d4 g8f6",
		"bestmove d2d4",
	})

	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "",
		Limits: Limits{Depth: 14},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Fatalf("candidates = %d", len(resp.Candidates))
	}
	if got := resp.Candidates[0]; got.Move != "d2d4" || got.EvalCP != 42 {
		t.Fatalf("deeper line not kept: %+v", got)
	}
}

func TestSearchMateScoreClamped(t *testing.T) {
	s, _ := newTestSession(t, []string{
		"info depth 20 multipv 1 score mate 3 pv d8h4",
		"bestmove d8h4",
	})

	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq - 0 2",
		Limits: Limits{MoveTimeMillis: 50},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].EvalCP != 30000 {
		t.Fatalf("mate eval: %+v", resp.Candidates)
	}
}

func TestSearchRequiresLimits(t *testing.T) {
	s, _ := newTestSession(t, []string{"bestmove e2e4"})
	_, err := s.Search(context.Background(), SearchRequest{FEN: "startpos"})
	if err == nil {
		t.Fatalf("expected an error for empty limits")
	}
}

func TestSearchSendsPositionAndGoCommands(t *testing.T) {
	s, engine := newTestSession(t, []string{"bestmove e2e4"})

	_, err := s.Search(context.Background(), SearchRequest{
		FEN:    "startpos",
		Moves:  []string{"e2e4", "c7c5"},
		Limits: Limits{Depth: 10, MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.searches) != 1 {
		t.Fatalf("searches = %v", engine.searches)
	}
	goCmd := engine.searches[0]
	if !strings.Contains(goCmd, "depth 10") || !strings.Contains(goCmd, "movetime 100") {
		t.Fatalf("go command = %q", goCmd)
	}
}

func TestSearchTimesOutOnSilentEngine(t *testing.T) {
	// An engine that never answers "go" must not hang the caller.
	s, _ := newTestSession(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := s.Search(ctx, SearchRequest{
		FEN:    "startpos",
		Limits: Limits{MoveTimeMillis: 10},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{HashMB: 0, MultiPV: 1}); err == nil {
		t.Fatalf("zero hash accepted")
	}
	if err := validateOptions(Options{HashMB: 16, MultiPV: 0}); err == nil {
		t.Fatalf("zero multipv accepted")
	}
	if err := validateOptions(Options{HashMB: 16, MultiPV: 2}); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("empty FEN: %q", got)
	}
	if got := buildPositionCommand("startpos", []string{"e2e4"}); got != "position startpos moves e2e4\n" {
		t.Fatalf("startpos with moves: %q", got)
	}
	fen := "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("fen position: %q", got)
	}
}
