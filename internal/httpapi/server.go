package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapvel/chessvision/internal/analysis"
	"github.com/kapvel/chessvision/internal/history"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/reconcile"
	"github.com/kapvel/chessvision/internal/render"
	"github.com/kapvel/chessvision/internal/store"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

// Server exposes the reconciled game read-only, plus the explicit reset and
// undo inputs. Analyzer and repository are optional.
type Server struct {
	ctrl     *reconcile.Controller
	renderer render.BoardRenderer
	analyzer *analysis.Analyzer
	repo     store.Repository

	srv *fasthttp.Server
}

func NewServer(ctrl *reconcile.Controller, renderer render.BoardRenderer, analyzer *analysis.Analyzer, repo store.Repository) *Server {
	s := &Server{
		ctrl:     ctrl,
		renderer: renderer,
		analyzer: analyzer,
		repo:     repo,
	}
	s.srv = &fasthttp.Server{
		Handler: s.Handler,
		Name:    "chessvision",
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("http_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// ServeListener runs the server on a caller-supplied listener.
func (s *Server) ServeListener(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case method == fasthttp.MethodGet && path == "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case method == fasthttp.MethodGet && path == "/api/state":
		s.handleState(ctx)
	case method == fasthttp.MethodGet && path == "/api/history":
		s.handleHistory(ctx)
	case method == fasthttp.MethodGet && path == "/api/history/pgn":
		s.handlePGN(ctx)
	case method == fasthttp.MethodGet && path == "/api/board.png":
		s.handleBoardPNG(ctx)
	case method == fasthttp.MethodGet && path == "/api/analysis":
		s.handleAnalysis(ctx)
	case method == fasthttp.MethodGet && path == "/api/games":
		s.handleRecentGames(ctx)
	case method == fasthttp.MethodPost && path == "/api/reset":
		s.handleReset(ctx)
	case method == fasthttp.MethodPost && path == "/api/undo":
		s.handleUndo(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) handleState(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, s.ctrl.View())
}

func (s *Server) handleHistory(ctx *fasthttp.RequestCtx) {
	entries := s.ctrl.HistoryEntries()
	if entries == nil {
		entries = []visiondto.HistoryEntry{}
	}
	writeJSON(ctx, fasthttp.StatusOK, entries)
}

func (s *Server) handlePGN(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/x-chess-pgn")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(s.ctrl.PGN())
}

func (s *Server) handleBoardPNG(ctx *fasthttp.RequestCtx) {
	st := s.ctrl.StateCopy()
	if st == nil {
		writeError(ctx, fasthttp.StatusNotFound, "no position tracked yet")
		return
	}
	opts := render.RenderOptions{}
	if from, to, ok := s.ctrl.LastMove(); ok {
		opts.Highlight = &render.MoveHighlight{From: from, To: to}
	}
	data, err := s.renderer.RenderPNG(context.Background(), st.Board(), opts)
	if err != nil {
		obslog.L().Error("board_render_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "render failed")
		return
	}
	ctx.SetContentType("image/png")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(data)
}

func (s *Server) handleAnalysis(ctx *fasthttp.RequestCtx) {
	if s.analyzer == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "no engine configured")
		return
	}
	st := s.ctrl.StateCopy()
	if st == nil {
		writeError(ctx, fasthttp.StatusNotFound, "no position tracked yet")
		return
	}
	suggestions, err := s.analyzer.Suggest(context.Background(), st.FEN())
	if err != nil {
		obslog.L().Error("analysis_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusBadGateway, "analysis failed")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, suggestions)
}

func (s *Server) handleRecentGames(ctx *fasthttp.RequestCtx) {
	if s.repo == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "no archive configured")
		return
	}
	limit := 10
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	recs, err := s.repo.GetRecentGames(context.Background(), limit)
	if err != nil {
		obslog.L().Error("archive_query_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusBadGateway, "archive query failed")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, recs)
}

func (s *Server) handleReset(ctx *fasthttp.RequestCtx) {
	var req visiondto.ResetRequest
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
			return
		}
	}
	if err := s.ctrl.Reset(strings.TrimSpace(req.FEN)); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.ctrl.View())
}

func (s *Server) handleUndo(ctx *fasthttp.RequestCtx) {
	var req visiondto.UndoRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.ctrl.Undo(req.Index); err != nil {
		if errors.Is(err, history.ErrIndexOutOfRange) {
			writeError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		writeError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.ctrl.View())
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "encode failed")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(map[string]string{"error": msg})
	ctx.SetBody(body)
}
