package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/api"
	"github.com/d60-Lab/qutee-media/internal/api/handler"
	"github.com/d60-Lab/qutee-media/internal/api/middleware"
	"github.com/d60-Lab/qutee-media/internal/cache"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/database"
	"github.com/d60-Lab/qutee-media/pkg/logger"
	"github.com/d60-Lab/qutee-media/pkg/tracing"
)

// @title Qutee Media API
// @version 1.0
// @description 社交合约（注册、发帖、点赞、点踩）与模拟链 HTTP 接口
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	sentryOn := cfg.Sentry.DSN != ""
	if sentryOn {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(db); err != nil {
		return err
	}

	c, err := chain.FromConfig(ctx, db, cfg.Chain)
	if err != nil {
		return err
	}
	if err := ensureDeployed(ctx, c, cfg.Chain); err != nil {
		return err
	}

	miner, err := chain.NewMiner(c, cfg.Chain.MiningInterval)
	if err != nil {
		return fmt.Errorf("mining interval: %w", err)
	}
	miner.Start()
	defer miner.Stop()

	var postCache *cache.PostCache
	var invalidator service.PostInvalidator
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, post cache disabled", zap.Error(err))
		} else {
			postCache = cache.NewPostCache(rdb, cfg.Redis.TTL)
			invalidator = postCache
		}
	}

	activities := repository.NewActivityRepository(db)
	indexer := service.NewActivityIndexer(activities, invalidator, 10000)
	stopIndexer := indexer.Start(4)
	unfollow := indexer.Follow(c)

	var serviceName string
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.Options{
		Chain:       c,
		Handler:     handler.NewHandler(c, service.NewMediaService(c, postCache, activities), cfg.JWT.Secret, cfg.JWT.TTL),
		JWTSecret:   cfg.JWT.Secret,
		RateLimit:   middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		ServiceName: serviceName,
		Sentry:      sentryOn,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			zap.String("addr", srv.Addr),
			zap.String("network", c.Network()),
			zap.Int64("chain_id", c.ChainID()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	unfollow()
	return stopIndexer(shutdownCtx)
}

// ensureDeployed 本地网络首次启动且未配置合约地址时自动部署
func ensureDeployed(ctx context.Context, c *chain.Chain, cfg config.ChainConfig) error {
	if cfg.MediaAddress != "" {
		addr, err := chain.ParseAddress(cfg.MediaAddress)
		if err != nil {
			return fmt.Errorf("chain.media_address: %w", err)
		}
		_, err = c.Contract(ctx, addr)
		return err
	}
	existing, err := c.Contracts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		for _, ct := range existing {
			logger.Info("contract loaded", zap.String("kind", ct.Kind), zap.String("address", ct.Address))
		}
		return nil
	}
	admin, err := chain.ParseAddress(cfg.AdminAddress)
	if err != nil {
		return fmt.Errorf("chain.admin_address: %w", err)
	}
	_, err = service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, admin)
	return err
}
