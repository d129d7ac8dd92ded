package sqlgen

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nemsql/backend/services/converter/internal/models"
)

const (
	// TimestampLayout is the SQL timestamp literal format of every tuple.
	TimestampLayout = "2006-01-02 15:04:05"

	insertPreamble = `INSERT INTO meter_readings ("nmi", "timestamp", "consumption") VALUES` + "\n"
	separator      = ",\n"
)

// CreateTableStatement is the DDL of the table targeted by the generated inserts.
const CreateTableStatement = `CREATE TABLE IF NOT EXISTS meter_readings (
	id uuid DEFAULT gen_random_uuid() NOT NULL,
	"nmi" varchar(10) NOT NULL,
	"timestamp" timestamp NOT NULL,
	"consumption" numeric NOT NULL,
	CONSTRAINT meter_readings_pk PRIMARY KEY (id),
	CONSTRAINT meter_readings_unique_consumption UNIQUE ("nmi", "timestamp")
)`

// Tuple renders r as one VALUES tuple. Values are not escaped: NMIs and consumption values
// never contain quotes in NEM12.
func Tuple(r models.MeterReading) string {
	return fmt.Sprintf("('%s','%s',%s)", r.NMI, r.Timestamp.Format(TimestampLayout), r.Consumption)
}

// Statement wraps rendered rows into a complete INSERT statement.
func Statement(rows string) string {
	return insertPreamble + rows + ";\n"
}

// WriteFile writes the INSERT statement for rows to path, creating parent directories.
// Empty rows write nothing.
func WriteFile(path, rows string) error {
	if rows == "" {
		return nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sqlgen: create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sqlgen: create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(Statement(rows)); err != nil {
		f.Close()
		return fmt.Errorf("sqlgen: write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("sqlgen: flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sqlgen: close %s: %w", path, err)
	}
	return nil
}

// Accumulator collects rendered tuples for one worker. It is not safe for concurrent use.
type Accumulator struct {
	sb    strings.Builder
	count int
}

// Append renders readings, each followed by the row separator.
func (a *Accumulator) Append(readings ...models.MeterReading) {
	for _, r := range readings {
		a.sb.WriteString(Tuple(r))
		a.sb.WriteString(separator)
	}
	a.count += len(readings)
}

// Rows returns the accumulated tuples without the trailing separator.
func (a *Accumulator) Rows() string {
	return strings.TrimSuffix(a.sb.String(), separator)
}

// Count returns the number of appended readings.
func (a *Accumulator) Count() int {
	return a.count
}

// Len returns the size of the accumulated text in bytes.
func (a *Accumulator) Len() int {
	return a.sb.Len()
}

// Reset discards the accumulated text.
func (a *Accumulator) Reset() {
	a.sb.Reset()
	a.count = 0
}
