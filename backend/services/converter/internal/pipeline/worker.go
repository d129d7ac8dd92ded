package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"nemsql/backend/services/converter/internal/models"
	"nemsql/backend/services/converter/internal/nem12"
	"nemsql/backend/services/converter/internal/queue"
	"nemsql/backend/services/converter/internal/sqlgen"
)

// Report describes what one worker did during a run.
type Report struct {
	Worker       int
	Blocks       int
	FailedBlocks int
	Readings     int
	Output       string
	Err          error
}

// Worker drains the queue into its own accumulator and output file.
type Worker struct {
	id     int
	queue  *queue.Queue
	output string
	acc    sqlgen.Accumulator
	report Report
	logger *zap.Logger
}

// NewWorker creates the worker with identity id. Its output file is
// <dir>/<prefix>worker-<id>.sql.
func NewWorker(id int, q *queue.Queue, dir, prefix string, logger *zap.Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  q,
		output: OutputPath(dir, prefix, id),
		report: Report{Worker: id},
		logger: logger.With(zap.Int("worker", id)),
	}
}

// OutputPath returns the deterministic output file of worker id.
func OutputPath(dir, prefix string, id int) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%sworker-%d.sql", prefix, id))
}

// Run consumes blocks until the queue is closed and drained or ctx is done. Whatever was
// accumulated is flushed on every exit path.
func (w *Worker) Run(ctx context.Context) (report Report) {
	defer func() {
		w.flush()
		report = w.report
	}()

	for {
		b, ok, err := w.queue.Take(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				w.report.Err = err
			}
			w.logger.Warn("worker stopped before queue drained", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		w.process(b)
	}
}

// process commits a block's rows only when the whole block parses.
func (w *Worker) process(b models.Block) {
	w.report.Blocks++

	readings, err := nem12.ParseBlock(b)
	if err != nil {
		w.report.FailedBlocks++
		w.logger.Error("skipping malformed block",
			zap.Int("block", b.Seq),
			zap.Int("discarded_readings", len(readings)),
			zap.Error(err),
		)
		return
	}

	w.acc.Append(readings...)
	w.report.Readings = w.acc.Count()
}

func (w *Worker) flush() {
	rows := w.acc.Rows()
	if rows == "" {
		w.logger.Debug("worker produced no readings", zap.Int("blocks", w.report.Blocks))
		return
	}

	if err := sqlgen.WriteFile(w.output, rows); err != nil {
		w.report.Err = errors.Join(w.report.Err, err)
		w.logger.Error("failed to write worker output", zap.String("path", w.output), zap.Error(err))
		return
	}
	w.report.Output = w.output

	w.logger.Info("worker output written",
		zap.String("path", w.output),
		zap.Int("blocks", w.report.Blocks),
		zap.Int("rows", w.acc.Count()),
		zap.Int("bytes", w.acc.Len()),
	)
	w.acc.Reset()
}
