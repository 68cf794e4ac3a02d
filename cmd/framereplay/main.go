package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kapvel/chessvision/internal/history"
	"github.com/kapvel/chessvision/internal/ingest"
	"github.com/kapvel/chessvision/internal/labels"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/reconcile"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

// framereplay feeds a recorded detector frame log through the reconciler and
// prints the moves it infers. Useful for regression-checking detector dumps
// without a live camera.
func main() {
	var (
		path          = flag.String("frames", "", "path to a JSONL frame log (required)")
		startFEN      = flag.String("start-fen", "", "initial position FEN (default: standard)")
		minConfidence = flag.Float64("min-confidence", 0.5, "per-square confidence threshold")
		retryLimit    = flag.Int("retry-limit", 3, "consecutive failed frames before fault")
		labelsDir     = flag.String("labels", "", "directory with label override yaml files")
		printPGN      = flag.Bool("pgn", false, "also print the final PGN")
	)
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	catalog, err := labels.New(*labelsDir)
	if err != nil {
		log.Fatalf("labels init error: %v", err)
	}

	file, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open frame log: %v", err)
	}
	defer file.Close()

	ctrl := reconcile.NewController(reconcile.Config{
		RetryLimit:    *retryLimit,
		MinConfidence: *minConfidence,
		StartFEN:      *startFEN,
	}, reconcile.Events{
		OnMove: func(_ visiondto.StateView, entry history.Entry) {
			fmt.Printf("%3d. %-7s %-7s %s\n", entry.Index+1, entry.SAN, entry.UCI, entry.FEN)
		},
		OnCorrection: func(view visiondto.StateView) {
			fmt.Printf("     [corrected -> %s]\n", view.FEN)
		},
	})

	ctx := context.Background()
	frames := make(chan snapshot.Snapshot, 16)
	go func() {
		defer close(frames)
		if err := ingest.ReplayJSONL(ctx, file, catalog, frames); err != nil {
			log.Printf("replay aborted: %v", err)
		}
	}()

	if err := ctrl.Run(ctx, frames); err != nil {
		log.Printf("run stopped: %v", err)
	}

	view := ctrl.View()
	fmt.Printf("\nstatus=%s moves=%d corrections=%d\n", view.Status, view.MoveCount, view.Corrections)
	if *printPGN {
		fmt.Println(ctrl.PGN())
	}
}
