package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nemsql/backend/services/converter/internal/nem12"
	"nemsql/backend/services/converter/internal/queue"
)

const defaultWaitTimeout = time.Hour

// ErrTimeout is returned when the workers do not finish within the wait timeout. The
// workers are not stopped; the run only stops waiting for them.
var ErrTimeout = errors.New("pipeline: timed out waiting for workers")

// Options configures a Pool.
type Options struct {
	Workers       int
	QueueCapacity int
	OutputDir     string
	OutputPrefix  string
	WaitTimeout   time.Duration
}

// Result summarises a completed run.
type Result struct {
	Blocks       int
	Lines        int
	Readings     int
	FailedBlocks int
	Outputs      []string
	Workers      []Report
	Elapsed      time.Duration
}

// Pool runs one block reader against a fixed set of workers.
type Pool struct {
	opts   Options
	logger *zap.Logger
}

// NewPool returns a pool. Fewer than one worker is raised to one.
func NewPool(opts Options, logger *zap.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	return &Pool{
		opts:   opts,
		logger: logger.Named("pipeline"),
	}
}

// RunFile converts the NEM12 file at path.
func (p *Pool) RunFile(ctx context.Context, path string) (*Result, error) {
	return p.run(ctx, func(r *nem12.BlockReader) (nem12.Stats, error) {
		return r.ReadFile(ctx, path)
	})
}

// Run converts NEM12 text read from src.
func (p *Pool) Run(ctx context.Context, src io.Reader) (*Result, error) {
	return p.run(ctx, func(r *nem12.BlockReader) (nem12.Stats, error) {
		return r.Read(ctx, src)
	})
}

func (p *Pool) run(ctx context.Context, produce func(*nem12.BlockReader) (nem12.Stats, error)) (*Result, error) {
	started := time.Now()
	q := queue.New(p.opts.QueueCapacity)

	reports := make([]Report, p.opts.Workers)
	var g errgroup.Group
	for i := range reports {
		w := NewWorker(i+1, q, p.opts.OutputDir, p.opts.OutputPrefix, p.logger)
		g.Go(func() error {
			reports[i] = w.Run(ctx)
			return reports[i].Err
		})
	}

	p.logger.Info("workers started",
		zap.Int("workers", p.opts.Workers),
		zap.Int("queue_capacity", q.Cap()),
	)

	stats, produceErr := p.produce(q, produce)

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.opts.WaitTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.logger.Error("workers did not finish in time", zap.Duration("timeout", p.opts.WaitTimeout))
		return nil, ErrTimeout
	}

	res := &Result{
		Blocks:  stats.Blocks,
		Lines:   stats.Lines,
		Workers: reports,
		Elapsed: time.Since(started),
	}

	var errs *multierror.Error
	if produceErr != nil {
		errs = multierror.Append(errs, produceErr)
	}
	for _, r := range reports {
		res.Readings += r.Readings
		res.FailedBlocks += r.FailedBlocks
		if r.Output != "" {
			res.Outputs = append(res.Outputs, r.Output)
		}
		if r.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %d: %w", r.Worker, r.Err))
		}
	}
	if produceErr == nil && ctx.Err() != nil {
		errs = multierror.Append(errs, ctx.Err())
	}
	sort.Strings(res.Outputs)

	p.logger.Info("pipeline finished",
		zap.Int("blocks", res.Blocks),
		zap.Int("readings", res.Readings),
		zap.Int("failed_blocks", res.FailedBlocks),
		zap.Int("outputs", len(res.Outputs)),
		zap.Duration("elapsed", res.Elapsed),
	)

	return res, errs.ErrorOrNil()
}

// produce runs the block reader and closes the queue on every exit path so the workers
// always terminate.
func (p *Pool) produce(q *queue.Queue, produce func(*nem12.BlockReader) (nem12.Stats, error)) (nem12.Stats, error) {
	defer q.Close()

	stats, err := produce(nem12.NewBlockReader(q))
	if err != nil {
		p.logger.Error("block reader failed", zap.Int("blocks_enqueued", stats.Blocks), zap.Error(err))
		return stats, err
	}

	p.logger.Debug("block reader finished",
		zap.Int("blocks", stats.Blocks),
		zap.Int("lines", stats.Lines),
		zap.Int("queued", q.Len()),
	)
	return stats, nil
}
