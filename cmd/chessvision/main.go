package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapvel/chessvision/internal/analysis"
	appcfg "github.com/kapvel/chessvision/internal/config"
	"github.com/kapvel/chessvision/internal/domain"
	"github.com/kapvel/chessvision/internal/history"
	"github.com/kapvel/chessvision/internal/httpapi"
	"github.com/kapvel/chessvision/internal/ingest"
	"github.com/kapvel/chessvision/internal/labels"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/reconcile"
	"github.com/kapvel/chessvision/internal/render"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/internal/store"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	catalog, err := labels.New(cfg.LabelsDir)
	if err != nil {
		logger.Fatal("labels_init_error", zap.Error(err))
	}

	// Live state cache (optional)
	var live *store.LiveStore
	if cfg.RedisURL != "" {
		live, err = store.NewLiveStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis_init_error", zap.Error(err))
		}
	}

	// Finished-game archive (optional)
	var repo store.Repository
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db_open_error", zap.Error(err))
		}
		if err := db.Ping(); err != nil {
			logger.Fatal("db_ping_error", zap.Error(err))
		}
		repo = store.NewRepository(db)
	}

	events := reconcile.Events{
		OnGameStart: func(view visiondto.StateView) {
			go saveLive(live, view)
		},
		OnMove: func(view visiondto.StateView, _ history.Entry) {
			go saveLive(live, view)
		},
		OnCorrection: func(view visiondto.StateView) {
			go saveLive(live, view)
		},
		OnGameEnd: func(rec *domain.GameRecord) {
			go archiveGame(repo, rec)
		},
	}

	ctrl := reconcile.NewController(reconcile.Config{
		RetryLimit:         cfg.RetryLimit,
		ValidateEveryMoves: cfg.ValidateEveryMoves,
		ValidateEvery:      cfg.ValidateEvery,
		MinConfidence:      cfg.MinConfidence,
		StartFEN:           cfg.StartFEN,
	}, events)

	// Engine-backed analysis (optional)
	var analyzer *analysis.Analyzer
	var engine *analysis.Session
	if cfg.EngineAddr != "" {
		transport, err := analysis.Dial(cfg.EngineAddr)
		if err != nil {
			logger.Fatal("engine_dial_error", zap.String("addr", cfg.EngineAddr), zap.Error(err))
		}
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		engine, err = analysis.NewSession(initCtx, transport, analysis.Options{
			Threads: cfg.EngineThreads,
			HashMB:  cfg.EngineHashMB,
			MultiPV: cfg.EngineMultiPV,
		})
		cancel()
		if err != nil {
			logger.Fatal("engine_init_error", zap.Error(err))
		}
		analyzer = analysis.NewAnalyzer(engine, cfg.EngineMovetimeMS)
	}

	api := httpapi.NewServer(ctrl, render.NewSVGBoardRenderer(), analyzer, repo)
	go func() {
		if err := api.ListenAndServe(cfg.HTTPAddr); err != nil {
			logger.Fatal("http_serve_error", zap.Error(err))
		}
	}()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var wsSource *ingest.WSSource
	var frames <-chan snapshot.Snapshot

	if cfg.DetectorWSURL != "" {
		wsSource = ingest.NewWSSource(cfg.DetectorWSURL, catalog, 5, time.Second)
		cctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		err := wsSource.Connect(cctx)
		cancel()
		if err != nil {
			logger.Fatal("detector_connect_error", zap.String("url", cfg.DetectorWSURL), zap.Error(err))
		}
		frames = wsSource.Frames()
	} else {
		file, err := os.Open(cfg.FrameLogPath)
		if err != nil {
			logger.Fatal("frame_log_open_error", zap.String("path", cfg.FrameLogPath), zap.Error(err))
		}
		ch := make(chan snapshot.Snapshot, 16)
		go func() {
			defer file.Close()
			defer close(ch)
			if err := ingest.ReplayJSONL(runCtx, file, catalog, ch); err != nil {
				logger.Error("frame_log_replay_error", zap.Error(err))
			}
		}()
		frames = ch
	}

	go func() {
		if err := ctrl.Run(runCtx, frames); err != nil && !errorsIsCanceled(err) {
			logger.Error("controller_stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown_begin")

	stopRun()
	if wsSource != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = wsSource.Close(closeCtx)
		cancel()
	}
	_ = api.Shutdown()
	if engine != nil {
		_ = engine.Close()
	}
	if live != nil {
		_ = live.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	logger.Info("shutdown_complete")
}

func errorsIsCanceled(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

func saveLive(live *store.LiveStore, view visiondto.StateView) {
	if live == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := live.Save(ctx, &store.LiveGame{
		GameID:      view.GameID,
		Status:      view.Status,
		FEN:         view.FEN,
		MovesUCI:    view.MovesUCI,
		MovesSAN:    view.MovesSAN,
		Corrections: view.Corrections,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		obslog.L().Warn("live_save_failed", zap.String("game_id", view.GameID), zap.Error(err))
	}
}

func archiveGame(repo store.Repository, rec *domain.GameRecord) {
	if repo == nil || rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := repo.InsertGame(ctx, rec)
	if err == store.ErrDuplicateGame {
		return
	}
	if err != nil {
		obslog.L().Error("archive_insert_failed", zap.String("game_uuid", rec.GameUUID), zap.Error(err))
		return
	}
	obslog.L().Info("game_archived", zap.Int64("id", id), zap.String("game_uuid", rec.GameUUID))
}
