package config

import "time"

type Config struct {
	ScalesFile  string
	ServiceUUID string
	QueueSize   int
	StatsEvery  time.Duration
	LogLevel    string
	// HTTPAddr enables the status API when set.
	HTTPAddr    string
	MqttCfg     *MqttConfig
	DatabaseCfg *DatabaseConfig
	InfluxCfg   *InfluxConfig
	RedisCfg    *RedisConfig
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
	ClientID string
}

// Enabled reports whether an MQTT broker was configured.
func (c *MqttConfig) Enabled() bool {
	return c != nil && c.Host != ""
}

type DatabaseConfig struct {
	URL              string
	MigrationsFolder string
	RetentionDays    int
	// CleanupSchedule is a cron spec for the retention job.
	CleanupSchedule string
}

func (c *DatabaseConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c *InfluxConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

func (c *RedisConfig) Enabled() bool {
	return c != nil && c.Addr != ""
}
