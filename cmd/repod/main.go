package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-repository/internal/config"
	"github.com/gogotex/gogotex/backend/go-repository/internal/notes"
	"github.com/gogotex/gogotex/backend/go-repository/internal/notes/handler"
	"github.com/gogotex/gogotex/backend/go-repository/internal/retention"
	"github.com/gogotex/gogotex/backend/go-repository/internal/storage"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/docstore"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/metrics"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/middleware"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v", cfg.MongoDB.URI != "", cfg.Redis.Addr != "", cfg.MinIO.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr, err)
			rdb = nil
		} else {
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr)
		}
	}

	repo := openNotes(ctx, cfg)
	defer func() { _ = repo.Close(context.Background()) }()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"storage": repo.Configured(),
			"redis":   cfg.Redis.Addr == "" || rdb != nil,
		}
		status, code := "ready", http.StatusOK
		for _, ok := range deps {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.RegisterSwagger(r)
	handler.RegisterNoteRoutes(r, repo)

	if cfg.Retention.Enabled {
		go retention.NewSweeper(repo, sweeperOptions(ctx, cfg, rdb)...).Run(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("notes service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

// openNotes binds the notes repository to MongoDB when a URI is configured,
// retrying with backoff to tolerate startup races, and falls back to the
// in-memory store otherwise.
func openNotes(ctx context.Context, cfg *config.Config) *notes.Repository {
	rc := cfg.RepositoryConfig()
	if rc != nil {
		const maxAttempts = 5
		backoff := time.Second
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			repo, err := repository.Open[notes.Note](ctx, rc)
			if err == nil {
				logger.Infof("notes stored in MongoDB %s.%s", rc.Database, rc.Collection)
				return repo
			}
			logger.Warnf("attempt %d/%d: failed to open MongoDB repository: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		logger.Warnf("could not connect to MongoDB after %d attempts; using memory-backed repo", maxAttempts)
	}

	mem := repository.DefaultConfig()
	mem.ConnectionString = "memory://"
	mem.Database = cfg.MongoDB.Database
	mem.Collection = cfg.MongoDB.Collection
	mem.AutoGenerateIDs = cfg.MongoDB.AutoGenerateIDs
	repo, err := repository.Open[notes.Note](ctx, &mem, repository.WithDialer(docstore.NewMemoryClient().Dialer()))
	if err != nil {
		logger.Fatalf("failed to open memory repository: %v", err)
	}
	return repo
}

func sweeperOptions(ctx context.Context, cfg *config.Config, rdb *redis.Client) []retention.Option {
	opts := []retention.Option{
		retention.WithRetentionDays(cfg.Retention.Days),
		retention.WithInterval(cfg.Retention.Interval),
		retention.WithBatchSize(cfg.Retention.BatchSize),
	}
	if rdb != nil {
		opts = append(opts, retention.WithLocker(retention.NewRedisLocker(rdb, "lock:")))
	}
	if cfg.MinIO.Enabled() {
		archive, err := storage.NewMinIOStorage(ctx, &cfg.MinIO)
		if err != nil {
			logger.Warnf("archive disabled: %v", err)
		} else {
			logger.Infof("archiving purged notes to bucket %s", archive.Bucket())
			opts = append(opts, retention.WithArchiver(archive))
		}
	}
	return opts
}
