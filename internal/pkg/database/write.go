package database

import (
	"context"
	"time"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

func (db *Database) Write(ctx context.Context, outcomes []model.Outcome) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, o := range outcomes {
		ts := o.ReceivedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		key := address.Normalize(o.Scale.Address).String()

		if o.Failed() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO decode_failure (time_stamp, address, error_kind, payload)
				VALUES ($1, $2, $3, $4)
			`, ts, key, o.ErrorKind(), o.Payload); err != nil {
				return err
			}
			continue
		}

		var tempC *float64
		var rawTemp *int32
		if t := o.Reading.Temperature; t != nil {
			c, r := t.Celsius, int32(t.RawCounts)
			tempC, rawTemp = &c, &r
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO scale_reading (time_stamp, address, name, liter_size, weight_kg, temperature_c, raw_weight, raw_temperature, rssi)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ts, key, o.Scale.Name, o.Scale.LiterSize, o.Reading.WeightKg, tempC, int64(o.Reading.RawWeightCounts), rawTemp, o.RSSI); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterScale(ctx context.Context, scale model.ScaleDescriptor) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO scale (address, name, liter_size)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET name = EXCLUDED.name, liter_size = EXCLUDED.liter_size, updated_at = now();`,
		address.Normalize(scale.Address).String(), scale.Name, scale.LiterSize)
	return err
}
