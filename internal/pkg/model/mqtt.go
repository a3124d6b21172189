package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	ValueTemplate     string         `json:"value_template"`
	UnitOfMeasurement string         `json:"unit_of_measurement"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	Device            RegisterDevice `json:"device"`
}

// StateMessage is the JSON body published on a scale's state topic.
type StateMessage struct {
	WeightKg     float64  `json:"weight_kg"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	RSSI         int16    `json:"rssi"`
	LiterSize    float64  `json:"liter_size"`
	Timestamp    string   `json:"timestamp"`
}

// ErrorMessage is the JSON body published on a scale's error topic.
type ErrorMessage struct {
	Address   string `json:"address"`
	Error     string `json:"error"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}
