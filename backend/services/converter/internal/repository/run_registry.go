package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	runKeyPrefix   = "nemsql:run:"
	runsListKey    = "nemsql:runs"
	runsListLength = 100
)

// ErrRunNotFound is returned when no summary is stored for a fingerprint.
var ErrRunNotFound = errors.New("repository: run not found")

// RunSummary is the record kept for one conversion run.
type RunSummary struct {
	Fingerprint  string
	Input        string
	Workers      int
	Blocks       int
	Readings     int
	FailedBlocks int
	Loaded       bool
	Outputs      []string
	Elapsed      time.Duration
	FinishedAt   time.Time
}

// RunRegistry stores run summaries in redis keyed by the input fingerprint.
type RunRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunRegistry returns registry. A non-positive ttl keeps summaries forever.
func NewRunRegistry(client *redis.Client, ttl time.Duration) *RunRegistry {
	return &RunRegistry{client: client, ttl: ttl}
}

// Fingerprint returns the hex BLAKE2b-256 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("repository: open %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("repository: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Record stores s and pushes its fingerprint onto the recent runs list.
func (r *RunRegistry) Record(ctx context.Context, s RunSummary) error {
	if s.Fingerprint == "" {
		return errors.New("repository: run fingerprint required")
	}

	key := runKeyPrefix + s.Fingerprint
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"input":         s.Input,
		"workers":       s.Workers,
		"blocks":        s.Blocks,
		"readings":      s.Readings,
		"failed_blocks": s.FailedBlocks,
		"loaded":        s.Loaded,
		"outputs":       strings.Join(s.Outputs, ","),
		"elapsed_ms":    s.Elapsed.Milliseconds(),
		"finished_at":   s.FinishedAt.UTC().Format(time.RFC3339Nano),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.LPush(ctx, runsListKey, s.Fingerprint)
	pipe.LTrim(ctx, runsListKey, 0, runsListLength-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("repository: record run: %w", err)
	}
	return nil
}

// Last returns the summary stored for fingerprint.
func (r *RunRegistry) Last(ctx context.Context, fingerprint string) (*RunSummary, error) {
	fields, err := r.client.HGetAll(ctx, runKeyPrefix+fingerprint).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: load run: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrRunNotFound
	}

	s := &RunSummary{
		Fingerprint: fingerprint,
		Input:       fields["input"],
	}
	s.Workers, _ = strconv.Atoi(fields["workers"])
	s.Blocks, _ = strconv.Atoi(fields["blocks"])
	s.Readings, _ = strconv.Atoi(fields["readings"])
	s.FailedBlocks, _ = strconv.Atoi(fields["failed_blocks"])
	s.Loaded, _ = strconv.ParseBool(fields["loaded"])
	if outputs := fields["outputs"]; outputs != "" {
		s.Outputs = strings.Split(outputs, ",")
	}
	if ms, err := strconv.ParseInt(fields["elapsed_ms"], 10, 64); err == nil {
		s.Elapsed = time.Duration(ms) * time.Millisecond
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["finished_at"]); err == nil {
		s.FinishedAt = ts
	}
	return s, nil
}
