package nem12

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"nemsql/backend/services/converter/internal/models"
	"nemsql/backend/services/converter/internal/queue"
)

const maxLineSize = 1 << 20

// Stats summarises one pass of the BlockReader over its input.
type Stats struct {
	Blocks int
	Lines  int
}

// BlockReader segments NEM12 text into blocks and enqueues them in file order.
type BlockReader struct {
	queue *queue.Queue
}

// NewBlockReader returns a reader feeding q. The caller owns closing q.
func NewBlockReader(q *queue.Queue) *BlockReader {
	return &BlockReader{queue: q}
}

// ReadFile opens path and segments it. Failing to open the file is fatal for the run.
func (r *BlockReader) ReadFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("nem12: open input: %w", err)
	}
	defer f.Close()

	return r.Read(ctx, f)
}

// Read scans src line by line. Every line starting with the header marker cuts the current
// block when it is non-empty; every line, headers included, is appended to the current
// block. The trailing block is enqueued at end of input. Put blocks while the queue is full.
func (r *BlockReader) Read(ctx context.Context, src io.Reader) (Stats, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		stats   Stats
		current []string
	)

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		if err := r.queue.Put(ctx, models.Block{Seq: stats.Blocks, Lines: current}); err != nil {
			return fmt.Errorf("nem12: enqueue block %d: %w", stats.Blocks, err)
		}
		stats.Blocks++
		current = nil
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		stats.Lines++

		if IsHeader(line) {
			if err := flush(); err != nil {
				return stats, err
			}
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("nem12: read input: %w", err)
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
