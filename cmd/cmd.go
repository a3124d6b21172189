package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/kegscale-reader/internal/pkg/config"
	"github.com/anicoll/kegscale-reader/internal/pkg/database"
	"github.com/anicoll/kegscale-reader/internal/pkg/database/migration"
	"github.com/anicoll/kegscale-reader/internal/pkg/decoder"
	"github.com/anicoll/kegscale-reader/internal/pkg/influx"
	"github.com/anicoll/kegscale-reader/internal/pkg/mqtt"
	"github.com/anicoll/kegscale-reader/internal/pkg/pipeline"
	"github.com/anicoll/kegscale-reader/internal/pkg/publisher"
	"github.com/anicoll/kegscale-reader/internal/pkg/redisstream"
	"github.com/anicoll/kegscale-reader/internal/pkg/registry"
	"github.com/anicoll/kegscale-reader/internal/pkg/scanner"
	"github.com/anicoll/kegscale-reader/internal/pkg/server"
	"github.com/anicoll/kegscale-reader/internal/pkg/session"
)

func configFromContext(ctx *cli.Context) *config.Config {
	return &config.Config{
		ScalesFile:  ctx.String("scales-file"),
		ServiceUUID: ctx.String("service-uuid"),
		QueueSize:   ctx.Int("queue-size"),
		StatsEvery:  ctx.Duration("stats-interval"),
		LogLevel:    ctx.String("log-level"),
		HTTPAddr:    ctx.String("http-addr"),
		MqttCfg: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
			ClientID: ctx.String("mqtt-client-id"),
		},
		DatabaseCfg: &config.DatabaseConfig{
			URL:              ctx.String("database-url"),
			MigrationsFolder: ctx.String("migrations-folder"),
			RetentionDays:    ctx.Int("retention-days"),
			CleanupSchedule:  ctx.String("cleanup-schedule"),
		},
		InfluxCfg: &config.InfluxConfig{
			URL:    ctx.String("influx-url"),
			Token:  ctx.String("influx-token"),
			Org:    ctx.String("influx-org"),
			Bucket: ctx.String("influx-bucket"),
		},
		RedisCfg: &config.RedisConfig{
			Addr:     ctx.String("redis-addr"),
			Password: ctx.String("redis-pass"),
			Stream:   ctx.String("redis-stream"),
			MaxLen:   ctx.Int64("redis-maxlen"),
		},
	}
}

func newLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = lvl
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// ScanCommand is the default action: scan for configured scales until interrupted.
func ScanCommand(ctx *cli.Context) error {
	cfg := configFromContext(ctx)
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()

	var sc AdvertisementScanner = scanner.NewBLE()
	if path := ctx.String("replay"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sc = scanner.NewReplay(f)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(runCtx, cfg, sc, logger)
}

func run(ctx context.Context, cfg *config.Config, sc AdvertisementScanner, logger *zap.Logger) error {
	defer zap.ReplaceGlobals(logger)()

	scaleFile, err := loadScales(cfg)
	if err != nil {
		return err
	}
	reg := registry.Build(scaleFile.Scales)
	dec := decoder.New(scaleFile.Calibration)
	logger.Info("loaded calibration", zap.String("version", scaleFile.Calibration.Version), zap.Int("scales", reg.Len()))

	pubs := publisher.New()
	if err := pubs.Register("log", publisher.NewLogPublisher(logger)); err != nil {
		return err
	}

	c := cron.New()
	sinks, err := connectSinks(ctx, cfg, pubs, c)
	defer func() {
		for name, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Error("failed to close sink", zap.String("publisher", name), zap.Error(err))
			}
		}
	}()
	if err != nil {
		return err
	}

	var hub *server.Hub
	if cfg.HTTPAddr != "" {
		hub = server.NewHub()
		defer hub.Close()
		if err := pubs.Register("live", hub); err != nil {
			return err
		}
	}

	sess := session.New(reg.Scales(), pipeline.New(reg, dec, cfg.ServiceUUID), sc, pubs, cfg.QueueSize)
	if cfg.StatsEvery > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.StatsEvery), sess.LogStats); err != nil {
			return err
		}
	}
	c.Start()
	defer c.Stop()

	if cfg.HTTPAddr == "" {
		return sess.Run(ctx)
	}

	var store readingStore
	if db, ok := sinks["postgres"].(readingStore); ok {
		store = db
	}
	handler := server.New(sess, reg.Scales(), store, hub)

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	eg, egCtx := errgroup.WithContext(srvCtx)
	eg.Go(func() error {
		defer stopServer()
		return sess.Run(egCtx)
	})
	eg.Go(func() error {
		logger.Info("serving status api", zap.String("addr", cfg.HTTPAddr))
		return server.ListenAndServe(egCtx, cfg.HTTPAddr, handler)
	})
	return eg.Wait()
}

// loadScales mirrors the startup contract: a missing or unreadable file leaves the session
// with zero scales, while a bad calibration aborts.
func loadScales(cfg *config.Config) (*config.ScaleFile, error) {
	path := cfg.ScalesFile
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = config.FindScaleFile(wd); err != nil {
			zap.L().Warn("failed to load scales config", zap.Error(err))
			return defaultScaleFile()
		}
	}

	file, err := config.LoadScaleFile(path)
	if err != nil {
		if errors.Is(err, decoder.ErrInvalidCalibration) {
			return nil, err
		}
		zap.L().Warn("failed to load scales config", zap.Error(err), zap.String("path", path))
		return defaultScaleFile()
	}
	return file, nil
}

func defaultScaleFile() (*config.ScaleFile, error) {
	cal := decoder.DefaultCalibration()
	if err := config.ApplyCalibrationEnv(&cal); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &config.ScaleFile{Calibration: cal}, nil
}

// connectSinks registers every configured sink. Sinks connected before a failure are returned
// so the caller can close them.
func connectSinks(ctx context.Context, cfg *config.Config, pubs *publisher.Registry, c *cron.Cron) (map[string]sink, error) {
	sinks := make(map[string]sink)
	add := func(name string, s sink) error {
		sinks[name] = s
		return pubs.Register(name, s)
	}

	if cfg.MqttCfg.Enabled() {
		svc := mqtt.New(mqtt.NewClient(cfg.MqttCfg))
		if err := svc.Connect(); err != nil {
			return sinks, fmt.Errorf("mqtt %s: %w", cfg.MqttCfg.Host, err)
		}
		if err := add("mqtt", svc); err != nil {
			return sinks, err
		}
	}

	if cfg.DatabaseCfg.Enabled() {
		db, err := connectDatabase(ctx, cfg.DatabaseCfg)
		if err != nil {
			return sinks, err
		}
		if err := add("postgres", db); err != nil {
			return sinks, err
		}
		if err := scheduleCleanup(c, db, cfg.DatabaseCfg); err != nil {
			return sinks, err
		}
	}

	if cfg.InfluxCfg.Enabled() {
		svc, err := influx.Connect(ctx, cfg.InfluxCfg)
		if err != nil {
			return sinks, err
		}
		if err := add("influxdb", svc); err != nil {
			return sinks, err
		}
	}

	if cfg.RedisCfg.Enabled() {
		svc, err := redisstream.Connect(ctx, cfg.RedisCfg)
		if err != nil {
			return sinks, err
		}
		if err := add("redis", svc); err != nil {
			return sinks, err
		}
	}
	return sinks, nil
}

func connectDatabase(ctx context.Context, cfg *config.DatabaseConfig) (*database.Database, error) {
	if cfg.MigrationsFolder != "" {
		if err := migration.Migrate(cfg.URL, cfg.MigrationsFolder); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return database.Connect(ctx, cfg.URL)
}

type cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) error
}

func scheduleCleanup(c *cron.Cron, db cleaner, cfg *config.DatabaseConfig) error {
	if cfg.RetentionDays <= 0 || cfg.CleanupSchedule == "" {
		return nil
	}
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	_, err := c.AddFunc(cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := db.Cleanup(ctx, retention); err != nil {
			zap.L().Error("error cleaning up database", zap.Error(err))
			return
		}
		zap.L().Info("cleaned up old readings", zap.Int("retention_days", cfg.RetentionDays))
	})
	return err
}
