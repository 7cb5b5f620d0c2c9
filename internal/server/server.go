package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paastest/clustertest/internal/config"
	"github.com/paastest/clustertest/internal/lock"
	"github.com/paastest/clustertest/internal/snapshot"
	"github.com/paastest/clustertest/internal/store"
	"github.com/paastest/clustertest/internal/web"
	"github.com/paastest/clustertest/pkg/logger"
	"github.com/paastest/clustertest/pkg/metrics"
	"github.com/paastest/clustertest/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var log = logger.Named("server")

// Server owns the store, the gin engine and any optional backends.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	engine   *gin.Engine
	redis    *redis.Client
	registry *prometheus.Registry
	closers  []func()
}

// New connects optional backends (Redis, MinIO, MongoDB) and builds the engine.
// Backends that fail to connect are logged and skipped; the app runs without them.
func New(ctx context.Context, cfg *config.Config) *Server {
	s := &Server{cfg: cfg, registry: prometheus.NewRegistry()}
	metrics.RegisterCollectors(s.registry)

	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnf("redis %s unreachable, using in-process lock: %v", addr, err)
			_ = client.Close()
		} else {
			log.Infof("connected to redis %s", addr)
			s.redis = client
			s.closers = append(s.closers, func() { _ = client.Close() })
		}
	}

	opts := []store.Option{store.WithMessages(cfg.App.Messages)}
	if s.redis != nil {
		opts = append(opts, store.WithLocker(lock.NewRedis(s.redis, cfg.Lock.Key, cfg.Lock.TTL)))
	}
	if exp := s.exporters(ctx); len(exp) > 0 {
		opts = append(opts, store.WithExporter(exp))
	}
	s.store = store.New(cfg.Data.Dir, opts...)
	s.engine = s.buildEngine()
	return s
}

func (s *Server) exporters(ctx context.Context) snapshot.Multi {
	var out snapshot.Multi
	if s.cfg.MinIO.Endpoint != "" {
		m, err := snapshot.NewMinIO(ctx, s.cfg.MinIO, store.FileName)
		if err != nil {
			log.Warnf("minio snapshot export disabled: %v", err)
		} else {
			log.Infof("exporting snapshots to minio bucket %s", s.cfg.MinIO.Bucket)
			out = append(out, m)
		}
	}
	if s.cfg.MongoDB.URI != "" {
		client, err := snapshot.ConnectMongo(ctx, s.cfg.MongoDB.URI, s.cfg.MongoDB.Timeout)
		if err != nil {
			log.Warnf("mongo snapshot export disabled: %v", err)
		} else {
			log.Infof("exporting snapshots to mongo database %s", s.cfg.MongoDB.Database)
			col := client.Database(s.cfg.MongoDB.Database).Collection(snapshot.Collection)
			out = append(out, snapshot.NewMongo(col, s.cfg.App.Name))
			s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })
		}
	}
	return out
}

func (s *Server) buildEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	var writeMW []gin.HandlerFunc
	if rl := s.cfg.RateLimit; rl.Enabled {
		if rl.UseRedis && s.redis != nil {
			win := time.Duration(rl.WindowSeconds) * time.Second
			writeMW = append(writeMW, middleware.RedisRateLimitMiddleware(s.redis, rl.RPS, rl.Burst, win))
			log.Infof("rate limiting /update-message via redis (%.2f rps, burst %d)", rl.RPS, rl.Burst)
		} else {
			writeMW = append(writeMW, middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
			log.Infof("rate limiting /update-message in memory (%.2f rps, burst %d)", rl.RPS, rl.Burst)
		}
	}

	web.NewHandler(s.store, s.cfg.App.TestEnvVar, s.cfg.App.Messages).Register(r, writeMW...)
	return r
}

// Handler exposes the main engine, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Store exposes the document store.
func (s *Server) Store() *store.Store { return s.store }

// Initialize bumps the restart counter. Failures are logged and the server
// still starts, so the page can show what is wrong with the volume.
func (s *Server) Initialize(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Lock.Timeout)
	defer cancel()
	doc, err := s.store.Initialize(ctx)
	if err != nil {
		log.Errorf("initialize %s: %v", s.store.Path(), err)
		return
	}
	metrics.RestartCount.Set(float64(doc.RestartCount))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	servers := []*http.Server{srv}
	if s.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadTimeout: 10 * time.Second})
	}

	errCh := make(chan error, len(servers))
	for _, hs := range servers {
		hs := hs
		go func() {
			log.Infof("listening on %s", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, hs := range servers {
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warnf("shutdown %s: %v", hs.Addr, err)
		}
	}
	return runErr
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
