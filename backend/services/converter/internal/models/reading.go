package models

import "time"

// DefaultIntervalLength applies to interval records seen before any header in a block.
const DefaultIntervalLength = 30

// MinutesPerDay bounds the number of intervals in one interval record.
const MinutesPerDay = 1440

// HeaderRecord is a parsed NMI data details (200) record.
type HeaderRecord struct {
	NMI            string `json:"nmi"`
	IntervalLength int    `json:"interval_length"`
}

// IntervalRecord is a parsed interval data (300) record.
type IntervalRecord struct {
	Date   time.Time `json:"date"`
	Values []string  `json:"values"`
}

// Block is the raw text of one header line and the lines that follow it up to the next
// header. Seq is the block's 0-based position in the source file.
type Block struct {
	Seq   int      `json:"seq"`
	Lines []string `json:"lines"`
}

// MeterReading is one interval consumption value labelled with the interval end time.
type MeterReading struct {
	NMI         string    `db:"nmi" json:"nmi"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	Consumption string    `db:"consumption" json:"consumption"`
}
