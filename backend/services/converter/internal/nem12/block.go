package nem12

import (
	"errors"
	"fmt"

	"nemsql/backend/services/converter/internal/models"
)

// ParseBlock expands every interval line of a block using the most recent header seen in
// the same block. Before any header the NMI is empty and intervals are 30 minutes long.
// On a malformed header or date the readings gathered so far are returned with the error.
func ParseBlock(b models.Block) ([]models.MeterReading, error) {
	header := models.HeaderRecord{IntervalLength: models.DefaultIntervalLength}

	var readings []models.MeterReading
	for i, line := range b.Lines {
		switch {
		case IsHeader(line):
			h, err := ParseHeader(line)
			if err != nil {
				return readings, fmt.Errorf("block %d line %d: %w", b.Seq, i+1, err)
			}
			header = h
		case IsInterval(line):
			rec, err := ParseInterval(line)
			if errors.Is(err, ErrShortRecord) {
				continue
			}
			if err != nil {
				return readings, fmt.Errorf("block %d line %d: %w", b.Seq, i+1, err)
			}
			readings = append(readings, ExpandIntervals(rec, header.NMI, header.IntervalLength)...)
		}
	}
	return readings, nil
}
