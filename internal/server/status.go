package server

import (
	"fmt"
	"path/filepath"

	"github.com/ATC-UW/pokerden-engine/internal/fileutil"
	"github.com/ATC-UW/pokerden-engine/internal/game"
)

// Session lifecycle states written to the status sentinel. Out-of-band
// probes poll the file to learn whether the session is still running.
const (
	statusRunning = "RUNNING"
	statusDone    = "DONE"

	statusFilename = "sim_result.log"
	resultFilename = "game_result.log"
)

// statusWriter maintains the status sentinel and the append-only result
// log under the session's output directory.
type statusWriter struct {
	statusPath string
	resultPath string
}

func newStatusWriter(outputDir string) *statusWriter {
	return &statusWriter{
		statusPath: filepath.Join(outputDir, statusFilename),
		resultPath: filepath.Join(outputDir, resultFilename),
	}
}

// Running marks the session live and truncates any stale result log.
func (w *statusWriter) Running() error {
	if err := fileutil.Truncate(w.resultPath); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(w.statusPath, []byte(statusRunning+"\n"), 0o644)
}

// Done transitions the sentinel to its terminal state.
func (w *statusWriter) Done() error {
	return fileutil.WriteFileAtomic(w.statusPath, []byte(statusDone+"\n"), 0o644)
}

// RecordResult appends one line per completed hand with its score map.
func (w *statusWriter) RecordResult(handNum int, scores map[game.PlayerID]int) error {
	return fileutil.AppendLine(w.resultPath, fmt.Sprintf("GAME_%d %v", handNum, scores))
}
