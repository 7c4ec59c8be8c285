package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stake-plus/osintops/src/agents"
	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/agents/fixture"
	"github.com/stake-plus/osintops/src/cache"
	"github.com/stake-plus/osintops/src/config"
	"github.com/stake-plus/osintops/src/consolidate"
	"github.com/stake-plus/osintops/src/controller"
	"github.com/stake-plus/osintops/src/data"
	"github.com/stake-plus/osintops/src/evidence"
	"github.com/stake-plus/osintops/src/investigations"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

const (
	traceStreamMaxLen  = 100000
	traceResumeTimeout = 2 * time.Second
)

type runtimeOptions struct {
	// demo replaces the configured adapters with the scripted ones for target.
	demo   *osint.Target
	memory bool
}

// runtime holds the wired service and everything that needs closing.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *gorm.DB
	rdb      *redis.Client
	registry *agentcore.Registry
	tracer   *tracing.Tracer
	svc      *investigations.Service
}

func buildRuntime(ctx context.Context, logger *zap.Logger, opts runtimeOptions) (_ *runtime, err error) {
	rt := &runtime{logger: logger}
	defer func() {
		if err != nil {
			rt.close(context.Background())
		}
	}()

	var repo data.Repository = data.NewMemRepository()
	if dsn := config.LoadBase().MySQLDSN; dsn != "" && !opts.memory {
		rt.db, err = data.Connect(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		gormRepo := data.NewGormRepository(rt.db)
		if err := gormRepo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		if err := data.LoadSettings(ctx, rt.db); err != nil {
			return nil, fmt.Errorf("settings: %w", err)
		}
		repo = gormRepo
	} else {
		logger.Info("no database configured, investigations are kept in memory")
	}

	rt.cfg, err = config.Load()
	if err != nil {
		return nil, err
	}

	var kv cache.KV
	sink := tracing.MultiSink{tracing.LogSink{Logger: logger}, tracing.StoreSink{Store: repo}}
	if rt.cfg.RedisURL != "" && !opts.memory {
		rt.rdb, err = data.ConnectRedis(ctx, rt.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		kv = rt.rdb
		sink = append(sink, tracing.RedisStreamSink{
			Client: rt.rdb,
			Stream: rt.cfg.Service.TraceStream,
			MaxLen: traceStreamMaxLen,
		})
	}

	if opts.demo != nil {
		rt.registry = agentcore.NewRegistry()
		if err := fixture.Register(rt.registry, *opts.demo); err != nil {
			return nil, err
		}
		if err := rt.registry.Start(ctx); err != nil {
			return nil, err
		}
	} else {
		rt.registry, err = agents.StartAll(ctx, rt.cfg.Agents, logger)
		if err != nil {
			return nil, err
		}
	}

	rt.tracer = tracing.New(tracing.Options{
		Sink:   sink,
		Buffer: rt.cfg.Service.TraceBuffer,
		Logger: logger,
		Resume: tracing.ResumeFrom(repo, traceResumeTimeout),
	})
	store := evidence.NewStore(evidence.Options{
		Schemas:    rt.registry,
		Repository: repo,
		Tracer:     rt.tracer,
		Logger:     logger,
	})
	ctrl := controller.New(rt.cfg.Controller, controller.Options{
		Evidence:   store,
		Repository: repo,
		Tracer:     rt.tracer,
		Logger:     logger,
	})
	rt.svc = investigations.New(investigations.Options{
		Registry:        rt.registry,
		Controller:      ctrl,
		Evidence:        store,
		Consolidator:    consolidate.New(consolidate.Options{Repository: repo, Tracer: rt.tracer, Logger: logger}),
		Repository:      repo,
		Cache:           cache.NewReportCache(kv, rt.cfg.Service.ReportCacheTTL),
		Tracer:          rt.tracer,
		Logger:          logger,
		DefaultDeadline: rt.cfg.Service.DefaultDeadline,
		MaxDeadline:     rt.cfg.Service.MaxDeadline,
	})
	return rt, nil
}

// close shuts the service down, then releases connections.
func (rt *runtime) close(ctx context.Context) {
	if rt.svc != nil {
		if err := rt.svc.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Warn("service shutdown incomplete", zap.Error(err))
		}
	}
	if rt.registry != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rt.registry.Stop(stopCtx)
		cancel()
	}
	if rt.tracer != nil {
		rt.tracer.Close()
	}
	if rt.rdb != nil {
		_ = rt.rdb.Close()
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
