package nem12

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nemsql/backend/services/converter/internal/models"
	"nemsql/backend/services/converter/internal/queue"
)

func drain(t *testing.T, q *queue.Queue) []models.Block {
	t.Helper()
	var blocks []models.Block
	for {
		b, ok, err := q.Take(context.Background())
		require.NoError(t, err)
		if !ok {
			return blocks
		}
		blocks = append(blocks, b)
	}
}

func TestReadSegmentsBlocks(t *testing.T) {
	input := strings.Join([]string{
		"100,NEM12,200506081149,UNITEDDP,NEMMCO",
		"200,NMI001,E1,1,E1,N1,01009,kWh,30,20050610",
		"300,20050301,1,2",
		"200,NMI002,E1,1,E1,N1,01009,kWh,30,20050610",
		"200,NMI003,E1,1,E1,N1,01009,kWh,30,20050610",
		"300,20050301,3\r",
		"500,O,S01009,20050310121004,",
		"900",
	}, "\n")

	q := queue.New(10)
	stats, err := NewBlockReader(q).Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	q.Close()

	assert.Equal(t, Stats{Blocks: 4, Lines: 8}, stats)

	blocks := drain(t, q)
	require.Len(t, blocks, 4)
	assert.Equal(t, []string{"100,NEM12,200506081149,UNITEDDP,NEMMCO"}, blocks[0].Lines)
	assert.Len(t, blocks[1].Lines, 2)
	assert.Equal(t, []string{"200,NMI002,E1,1,E1,N1,01009,kWh,30,20050610"}, blocks[2].Lines)
	assert.Equal(t, "300,20050301,3", blocks[3].Lines[1])
	for i, b := range blocks {
		assert.Equal(t, i, b.Seq)
	}
}

func TestReadWithoutHeadersYieldsSingleBlock(t *testing.T) {
	q := queue.New(10)
	stats, err := NewBlockReader(q).Read(context.Background(), strings.NewReader("300,20240101,1\n300,20240102,2\n"))
	require.NoError(t, err)
	q.Close()

	assert.Equal(t, 1, stats.Blocks)
	blocks := drain(t, q)
	require.Len(t, blocks, 1)

	readings, err := ParseBlock(blocks[0])
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC), readings[1].Timestamp)
}

func TestReadEmptyInput(t *testing.T) {
	q := queue.New(1)
	stats, err := NewBlockReader(q).Read(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, stats.Blocks)
	assert.Zero(t, q.Len())
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "200,NMI001,E1,1,E1,N1,01009,kWh,30,20050610\n300,20240101,1\n200,NMI002,"), nil
	}
	return 0, errors.New("disk gone")
}

func TestReadPropagatesReadError(t *testing.T) {
	q := queue.New(10)
	stats, err := NewBlockReader(q).Read(context.Background(), &failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Equal(t, 1, stats.Blocks)
}

func TestReadFileMissing(t *testing.T) {
	q := queue.New(1)
	_, err := NewBlockReader(q).ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nem12: open input")
}

func TestReadStopsWhenContextCancelledOnFullQueue(t *testing.T) {
	q := queue.New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	input := "200,A,E1,1,E1,N1,1,kWh,30,1\n200,B,E1,1,E1,N1,1,kWh,30,1\n200,C,E1,1,E1,N1,1,kWh,30,1\n"
	_, err := NewBlockReader(q).Read(ctx, strings.NewReader(input))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
