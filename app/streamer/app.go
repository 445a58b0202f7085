package streamer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/app/streamer/types"
	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/db/archive"
	"github.com/streamx-network/streamx/pkg/db/clickhouse"
	"github.com/streamx-network/streamx/pkg/logging"
	"github.com/streamx-network/streamx/pkg/prober"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/redis"
	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/sink"
	"github.com/streamx-network/streamx/pkg/streamer"
	"github.com/streamx-network/streamx/pkg/utils"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	set, err := provider.New(cfg, time.Now)
	if err != nil {
		logger.Fatal("Unable to initialize provider set", zap.Error(err))
	}

	fetcher := rpc.NewProviderFetcher(rpc.NewHTTPFactory(rpc.Opts{
		Timeout:         utils.EnvDuration("RPC_TIMEOUT", 10*time.Second),
		RPS:             utils.EnvInt("RPC_RPS", 20),
		Burst:           utils.EnvInt("RPC_BURST", 40),
		BreakerFailures: utils.EnvInt("RPC_BREAKER_FAILURES", 10),
		BreakerCooldown: utils.EnvDuration("RPC_BREAKER_COOLDOWN", 15*time.Second),
	}))

	app := &types.App{
		Config:  cfg,
		Set:     set,
		Fetcher: fetcher,
		Logger:  logger,
	}

	sinks := []sink.Target{sink.NewLog(logger)}

	// Redis stream fan-out (optional)
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, redisErr := redis.NewClient(ctx, logger)
		if redisErr != nil {
			logger.Warn("Failed to initialize Redis client - stream fan-out and WebSocket feed disabled",
				zap.Error(redisErr))
		} else {
			app.RedisClient = redisClient
			sinks = append(sinks, sink.NewRedis(redisClient, logger))
			logger.Info("Redis block fan-out enabled")
		}
	} else {
		logger.Info("Redis disabled - block fan-out and WebSocket feed will not be available")
	}

	// ClickHouse block archive (optional)
	if utils.Env("ARCHIVE_ENABLED", "false") == "true" {
		archiveDb, archiveErr := clickhouse.New(ctx, logger)
		if archiveErr != nil {
			logger.Warn("Failed to initialize ClickHouse client - block archive disabled",
				zap.Error(archiveErr))
		} else {
			store, storeErr := archive.New(ctx, archiveDb, logger)
			if storeErr != nil {
				logger.Warn("Failed to initialize block archive", zap.Error(storeErr))
				_ = archiveDb.Close()
			} else {
				app.ArchiveDB = archiveDb
				sinks = append(sinks, sink.NewArchive(store, func() string { return set.Active().Name }))
				if last, ok, lastErr := store.LastNumber(ctx); lastErr != nil {
					logger.Warn("Unable to read last archived block", zap.Error(lastErr))
				} else if ok {
					logger.Info("ClickHouse block archive enabled", zap.Uint64("lastArchived", last))
				} else {
					logger.Info("ClickHouse block archive enabled", zap.String("state", "empty"))
				}
			}
		}
	}

	app.Streamer = streamer.New(cfg, logger, set, fetcher, streamer.EVMValidator{}, sink.NewMulti(sinks...), streamer.SystemClock{})

	app.Prober = prober.New(logger, set, fetcher)
	if err := setupScheduler(ctx, app, cron.DefaultLogger); err != nil {
		logger.Fatal("Unable to schedule standby probes", zap.Error(err))
	}

	return app
}

// setupScheduler wires the standby probe onto a cron schedule derived from
// the configured probe interval.
func setupScheduler(ctx context.Context, app *types.App, logger cron.Logger) error {
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	spec := fmt.Sprintf("@every %s", app.Config.ProbeInterval)
	_, err := app.Cron.AddFunc(spec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, app.Config.ProbeInterval)
		defer cancel()
		app.Prober.ProbeStandby(rctx)
	})
	return err
}
