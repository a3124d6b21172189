package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const readingColumns = `id, time_stamp, address, name, liter_size, weight_kg, temperature_c, raw_weight, raw_temperature, rssi`

// GetLatestReadings returns the most recent reading of every scale.
func (db *Database) GetLatestReadings(ctx context.Context) (model.StoredReadings, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT DISTINCT ON (address) `+readingColumns+`
	FROM scale_reading
	ORDER BY address, time_stamp DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

const defaultReadingWindow = 48 * time.Hour

// readingWindow fills in missing bounds independently: to defaults to now, from to two days
// before now.
func readingWindow(from, to *time.Time, now time.Time) (time.Time, time.Time) {
	start, end := now.Add(-defaultReadingWindow), now
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}
	return start, end
}

// GetReadings returns the readings of one scale between from and to, newest first. A nil
// from is two days ago, a nil to is now.
func (db *Database) GetReadings(ctx context.Context, scaleAddress string, from, to *time.Time) (model.StoredReadings, error) {
	start, end := readingWindow(from, to, time.Now())

	rows, err := db.pool.Query(ctx, `
	SELECT `+readingColumns+`
	FROM scale_reading
	WHERE address = $1 AND time_stamp BETWEEN $2 AND $3
	ORDER BY time_stamp DESC;
	`, address.Normalize(scaleAddress).String(), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

func scanReadings(rows pgx.Rows) (model.StoredReadings, error) {
	var readings model.StoredReadings
	for rows.Next() {
		var r model.StoredReading
		if err := rows.Scan(&r.ID, &r.TimeStamp, &r.Address, &r.Name, &r.LiterSize, &r.WeightKg, &r.TemperatureC, &r.RawWeight, &r.RawTemperature, &r.RSSI); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		if err == pgx.ErrNoRows {
			return readings, nil
		}
		return nil, err
	}

	return readings, nil
}
