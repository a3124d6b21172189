package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/kegscale-reader/internal/pkg/pipeline"
	"github.com/anicoll/kegscale-reader/internal/pkg/redisstream"
	"github.com/anicoll/kegscale-reader/internal/pkg/session"
)

// NewApp builds the kegscale CLI. Scanning is the default action.
func NewApp() *cli.App {
	return &cli.App{
		Name:   "kegscale",
		Usage:  "reads keg scale BLE advertisements and publishes weight and temperature",
		Action: ScanCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scales-file",
				EnvVars: []string{"SCALES_FILE"},
				Usage:   "scales config (.yaml, .yml or .json); defaults to settings/scales.{yaml,yml,json}",
			},
			&cli.StringFlag{
				Name:    "service-uuid",
				EnvVars: []string{"SERVICE_UUID"},
				Value:   pipeline.DefaultServiceUUID,
			},
			&cli.StringFlag{
				Name:    "replay",
				EnvVars: []string{"REPLAY_FILE"},
				Usage:   "read advertisements from a JSON lines file instead of the bluetooth adapter",
			},
			&cli.IntFlag{
				Name:    "queue-size",
				EnvVars: []string{"QUEUE_SIZE"},
				Value:   session.DefaultQueueSize,
			},
			&cli.DurationFlag{
				Name:    "stats-interval",
				EnvVars: []string{"STATS_INTERVAL"},
				Value:   time.Minute,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Usage:   "serve the read-only status api on this address, e.g. 0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
			},
			&cli.StringFlag{
				Name:    "mqtt-client-id",
				EnvVars: []string{"MQTT_CLIENT_ID"},
				Value:   "kegscale-reader",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "migrations",
			},
			&cli.IntFlag{
				Name:    "retention-days",
				EnvVars: []string{"RETENTION_DAYS"},
				Value:   90,
			},
			&cli.StringFlag{
				Name:    "cleanup-schedule",
				EnvVars: []string{"CLEANUP_SCHEDULE"},
				Value:   "CRON_TZ=UTC 0 3 * * *",
			},
			&cli.StringFlag{
				Name:    "influx-url",
				EnvVars: []string{"INFLUX_URL"},
			},
			&cli.StringFlag{
				Name:    "influx-token",
				EnvVars: []string{"INFLUX_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "influx-org",
				EnvVars: []string{"INFLUX_ORG"},
			},
			&cli.StringFlag{
				Name:    "influx-bucket",
				EnvVars: []string{"INFLUX_BUCKET"},
				Value:   "kegscale",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-pass",
				EnvVars: []string{"REDIS_PASS"},
			},
			&cli.StringFlag{
				Name:    "redis-stream",
				EnvVars: []string{"REDIS_STREAM"},
				Value:   redisstream.DefaultStream,
			},
			&cli.Int64Flag{
				Name:    "redis-maxlen",
				EnvVars: []string{"REDIS_MAXLEN"},
				Value:   redisstream.DefaultMaxLen,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "scan for configured scales until interrupted",
				Action: ScanCommand,
			},
			{
				Name:   "scales",
				Usage:  "list the configured scales",
				Action: ScalesCommand,
			},
			{
				Name:      "decode",
				Usage:     "decode hex service-data payloads with the configured calibration",
				ArgsUsage: "<hex payload>...",
				Action:    DecodeCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "candidates",
						Usage: "include every scored temperature window",
					},
				},
			},
			{
				Name:   "latest",
				Usage:  "print the latest stored reading of every scale",
				Action: LatestCommand,
			},
		},
	}
}
