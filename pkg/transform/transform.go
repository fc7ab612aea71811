// Package transform pivots a wide sensor table into long form: one record
// per (timestamp, sensor) observation, annotated with fixed plant metadata.
package transform

import (
	"time"

	"go.uber.org/zap"

	"github.com/sensorflow/sensorflow/internal/model"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

// Metadata holds the fixed annotations stamped on every record.
type Metadata struct {
	Plant     string
	MachineID string
	DataLabel string
}

// Timestamp layouts tried in order; on both failing the original text is kept.
var timeLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
}

// ToLong emits one LongRecord per data row and sensor index that has complete
// header metadata. Sensors whose name or unit header entry is missing are
// skipped with a warning rather than failing the file; unparsable timestamps
// keep their original text.
func ToLong(table *model.WideTable, fileName string, meta Metadata) []model.LongRecord {
	if table == nil {
		return nil
	}

	records := make([]model.LongRecord, 0, len(table.Rows)*table.Sensors())

	warnedMeta := make(map[int]bool)
	badTimes := 0

	for _, row := range table.Rows {
		parsed, ok := parseTime(row.Time)
		if !ok {
			badTimes++
		}

		for i, sensorID := range table.SensorIDs {
			if i >= len(table.SensorNames) || i >= len(table.SensorUnits) {
				if !warnedMeta[i] {
					warnedMeta[i] = true
					logger.Warn("sensor metadata missing, column skipped",
						zap.String("file", fileName),
						zap.String("sensor_id", sensorID),
						zap.Int("index", i))
				}
				continue
			}
			if i >= len(row.Values) {
				// Reader guarantees positional values for every declared
				// sensor; guard anyway so a malformed table degrades to a
				// partial extraction.
				if !warnedMeta[i] {
					warnedMeta[i] = true
					logger.Warn("sensor value column missing, column skipped",
						zap.String("file", fileName),
						zap.String("sensor_id", sensorID))
				}
				continue
			}

			records = append(records, model.LongRecord{
				Plant:      meta.Plant,
				MachineID:  meta.MachineID,
				DataLabel:  meta.DataLabel,
				Time:       parsed,
				TimeRaw:    row.Time,
				TimeParsed: ok,
				SensorID:   sensorID,
				SensorName: table.SensorNames[i],
				SensorUnit: table.SensorUnits[i],
				Value:      row.Values[i],
				FileName:   fileName,
			})
		}
	}

	if badTimes > 0 {
		logger.Warn("timestamps kept as text after parse failure",
			zap.String("file", fileName), zap.Int("rows", badTimes))
	}

	return records
}

// parseTime attempts the supported timestamp layouts in order.
func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
