package nem12

import (
	"strings"
	"time"

	"nemsql/backend/services/converter/internal/models"
)

// ExpandIntervals turns one interval record into readings. Interval i is labelled with its
// end time, midnight + (i+1)*intervalLength, so the last interval of a full day lands on the
// next day's midnight. Empty and "0" cells yield no reading. The day is cut into
// 1440/intervalLength intervals, truncating when the length does not divide a day.
func ExpandIntervals(rec models.IntervalRecord, nmi string, intervalLength int) []models.MeterReading {
	if intervalLength <= 0 {
		return nil
	}

	expected := models.MinutesPerDay / intervalLength
	midnight := time.Date(rec.Date.Year(), rec.Date.Month(), rec.Date.Day(), 0, 0, 0, 0, time.UTC)
	step := time.Duration(intervalLength) * time.Minute

	readings := make([]models.MeterReading, 0, min(expected, len(rec.Values)))
	for i := 0; i < expected; i++ {
		if i >= len(rec.Values) {
			break
		}

		val := strings.TrimSpace(rec.Values[i])
		if val == "" || val == "0" {
			continue
		}

		readings = append(readings, models.MeterReading{
			NMI:         nmi,
			Timestamp:   midnight.Add(time.Duration(i+1) * step),
			Consumption: val,
		})
	}
	return readings
}
