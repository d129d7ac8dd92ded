package nem12

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nemsql/backend/services/converter/internal/models"
)

// Record type markers of the NEM12 records the converter understands.
const (
	RecordHeader   = "200"
	RecordInterval = "300"
)

const (
	dateLayout          = "20060102"
	headerNMIColumn     = 1
	headerLengthColumn  = 8
	intervalDateColumn  = 1
	intervalFirstColumn = 2
)

// ErrShortRecord marks an interval line without any value columns.
var ErrShortRecord = errors.New("nem12: short interval record")

// IsHeader reports whether line starts a new block.
func IsHeader(line string) bool {
	return strings.HasPrefix(line, RecordHeader)
}

// IsInterval reports whether line carries interval data.
func IsInterval(line string) bool {
	return strings.HasPrefix(line, RecordInterval)
}

// ParseHeader parses a 200 line into its NMI and interval length.
func ParseHeader(line string) (models.HeaderRecord, error) {
	cols := strings.Split(line, ",")
	if len(cols) <= headerLengthColumn {
		return models.HeaderRecord{}, fmt.Errorf("nem12: header has %d columns, need %d", len(cols), headerLengthColumn+1)
	}

	raw := strings.TrimSpace(cols[headerLengthColumn])
	length, err := strconv.Atoi(raw)
	if err != nil {
		return models.HeaderRecord{}, fmt.Errorf("nem12: header interval length %q: %w", raw, err)
	}
	if length <= 0 {
		return models.HeaderRecord{}, fmt.Errorf("nem12: header interval length %d must be positive", length)
	}

	return models.HeaderRecord{
		NMI:            strings.TrimSpace(cols[headerNMIColumn]),
		IntervalLength: length,
	}, nil
}

// ParseInterval parses a 300 line. Lines with fewer than three columns, not counting
// trailing empty ones, return ErrShortRecord; a malformed date is returned as a regular error.
func ParseInterval(line string) (models.IntervalRecord, error) {
	cols := strings.Split(line, ",")
	if significantColumns(cols) <= intervalFirstColumn {
		return models.IntervalRecord{}, ErrShortRecord
	}

	raw := strings.TrimSpace(cols[intervalDateColumn])
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return models.IntervalRecord{}, fmt.Errorf("nem12: interval date %q: %w", raw, err)
	}

	return models.IntervalRecord{
		Date:   date,
		Values: cols[intervalFirstColumn:],
	}, nil
}

// significantColumns counts columns up to the last non-empty one.
func significantColumns(cols []string) int {
	n := len(cols)
	for n > 0 && cols[n-1] == "" {
		n--
	}
	return n
}
