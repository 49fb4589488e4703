package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/cacher"
	"github.com/cyberinferno/go-abci/client"
	"github.com/cyberinferno/go-abci/config"
	"github.com/cyberinferno/go-abci/kvstore"
	"github.com/cyberinferno/go-abci/logger"
	"github.com/cyberinferno/go-abci/server"
	"github.com/cyberinferno/go-abci/service"
)

func main() {
	var (
		configPath string
		addr       string
		status     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides listen_address")
	flag.BoolVar(&status, "status", false, "Query a running server for its info and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configPath, addr, status); err != nil {
		fmt.Fprintf(os.Stderr, "abci-kvstore: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, addr string, status bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.ListenAddress = addr
	}

	if status {
		return printStatus(ctx, cfg.ListenAddress)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	cache, closeCache, err := newCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	app := kvstore.New(kvstore.Config{
		SnapshotInterval: cfg.KVStore.SnapshotInterval,
		SnapshotKeep:     cfg.KVStore.SnapshotKeep,
	}, cache, log)

	srv, err := buildServer(cfg, app, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(ctx, cfg.ListenAddress)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", logger.Field{Key: "sessions", Value: srv.SessionCount()})
		return nil
	})

	return g.Wait()
}

// buildServer wires the application's handlers into a server configured
// from cfg.
func buildServer(cfg config.Config, app *kvstore.App, log logger.Logger) (*server.Server, error) {
	return server.NewBuilder().
		Consensus(limit(app.ConsensusService(), cfg.Concurrency.Consensus)).
		Mempool(limit(app.MempoolService(), cfg.Concurrency.Mempool)).
		Info(limit(app.InfoService(), cfg.Concurrency.Info)).
		Snapshot(limit(app.SnapshotService(), cfg.Concurrency.Snapshot)).
		Logger(log).
		Options(server.Options{
			Name:             cfg.Name,
			MaxMessageSize:   cfg.MaxMessageSize,
			ExceptionOnError: cfg.ExceptionOnError,
		}).
		FinishOrError()
}

// limit bounds svc to n concurrent calls; n of zero leaves it unbounded.
func limit[Req any, Resp any](svc service.Service[Req, Resp], n int) service.Service[Req, Resp] {
	if n <= 0 {
		return svc
	}
	return service.ConcurrencyLimit(svc, n)
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.LogDir != "" {
		return logger.NewZerologFileLogger(cfg.Name, cfg.LogDir, level)
	}

	return logger.NewZerologLogger(zerolog.New(os.Stdout), cfg.Name, level), nil
}

func newCache(cfg config.Config) (cacher.Cacher[kvstore.QueryResult], func(), error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddress,
			DB:   cfg.Cache.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddress, err)
		}

		closeFn := func() { _ = rdb.Close() }
		return cacher.NewRedisCacher[kvstore.QueryResult](rdb, cfg.Cache.KeyPrefix, cfg.Cache.TTL.Duration), closeFn, nil
	case config.CacheBackendMemory:
		return cacher.NewMemoryCacher[kvstore.QueryResult](cfg.Cache.TTL.Duration), func() {}, nil
	default:
		return nil, nil, errors.New("unknown cache backend " + cfg.Cache.Backend)
	}
}

func printStatus(ctx context.Context, addr string) error {
	c := client.New(client.DefaultConfig(addr))
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resps, err := c.Do(ctx, &abci.RequestEcho{Message: "status"}, &abci.RequestInfo{})
	if err != nil {
		return err
	}

	info := resps[1].(*abci.ResponseInfo)
	fmt.Printf("height=%d app_hash=%X data=%s\n", info.LastBlockHeight, info.LastBlockAppHash, info.Data)
	return nil
}
