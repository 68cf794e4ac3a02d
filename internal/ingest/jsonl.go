package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kapvel/chessvision/internal/labels"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

const maxFrameLineBytes = 1 << 20

// ReplayJSONL reads one detector frame per line and emits decoded snapshots
// on out in file order. Undecodable lines are logged and skipped; malformed
// JSON aborts the replay.
func ReplayJSONL(ctx context.Context, r io.Reader, catalog *labels.Catalog, out chan<- snapshot.Snapshot) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame visiondto.Frame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			return fmt.Errorf("frame log line %d: %w", lineNo, err)
		}
		snap, err := DecodeFrame(frame, catalog)
		if err != nil {
			obslog.L().Warn("frame_decode_failed",
				zap.Int("line", lineNo),
				zap.Int64("frame_id", frame.FrameID),
				zap.Error(err),
			)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- snap:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read frame log: %w", err)
	}
	return nil
}
