package database

import (
	"context"
	"time"
)

// Cleanup removes readings and decode failures older than retention.
func (db *Database) Cleanup(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	if _, err := db.pool.Exec(ctx, "DELETE FROM scale_reading WHERE time_stamp < $1", cutoff); err != nil {
		return err
	}
	if _, err := db.pool.Exec(ctx, "DELETE FROM decode_failure WHERE time_stamp < $1", cutoff); err != nil {
		return err
	}
	return nil
}
