package model

import "time"

// StoredReading is a reading row as persisted by the database sink.
type StoredReading struct {
	ID             int64     `json:"id"`
	TimeStamp      time.Time `json:"timestamp"`
	Address        string    `json:"address"`
	Name           string    `json:"name"`
	LiterSize      float64   `json:"liter_size"`
	WeightKg       float64   `json:"weight_kg"`
	TemperatureC   *float64  `json:"temperature_c,omitempty"`
	RawWeight      int64     `json:"raw_weight"`
	RawTemperature *int32    `json:"raw_temperature,omitempty"`
	RSSI           int16     `json:"rssi"`
}

type StoredReadings []StoredReading
