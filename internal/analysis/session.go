package analysis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapvel/chessvision/internal/obslog"
)

const defaultReadyTimeout = 4 * time.Second

// Options configure the engine once at session start. Engine process
// lifecycle is the caller's concern; the session only speaks the UCI text
// protocol over the supplied transport.
type Options struct {
	Threads int
	HashMB  int
	MultiPV int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Candidate is one ranked engine line.
type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
}

// Session drives a UCI engine over any read-write transport.
type Session struct {
	transport io.ReadWriteCloser
	reader    *bufio.Reader
	mu        sync.Mutex
	search    sync.Mutex
}

// Dial connects to an engine listening on a TCP address.
func Dial(addr string) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("dial engine: %w", err)
	}
	return conn, nil
}

// NewSession performs the UCI handshake and applies the options.
func NewSession(ctx context.Context, transport io.ReadWriteCloser, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	s := &Session{
		transport: transport,
		reader:    bufio.NewReader(transport),
	}
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func validateOptions(opt Options) error {
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	if opt.MultiPV <= 0 {
		return fmt.Errorf("multipv must be > 0: %d", opt.MultiPV)
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", threads),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		fmt.Sprintf("setoption name MultiPV value %d\n", opt.MultiPV),
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Search runs one position analysis and collects all MultiPV lines until
// bestmove arrives.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	var best string
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			obslog.L().Warn("uci_read_error",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				best = parts[1]
			}
			return SearchResponse{Candidates: collapseCandidates(candidates), BestMove: best}, nil
		}
	}
}

// EnsureReady synchronizes with the engine.
func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// NewGame tells the engine to drop position-dependent state.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	return s.EnsureReady(ctx)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.transport, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := s.reader.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv = 1
		evalCP  int
		pvIdx   = -1
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				switch parts[i+1] {
				case "cp":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						evalCP = v
					}
				case "mate":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						const mateValue = 30000
						if v >= 0 {
							evalCP = mateValue
						} else {
							evalCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}
	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]
	cand := Candidate{
		Move:      principal[0],
		EvalCP:    evalCP,
		Principal: append([]string(nil), principal...),
	}
	return multipv, cand, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}
