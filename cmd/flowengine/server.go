package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/api/handlers"
	"github.com/BaSui01/flowengine/config"
	rediscache "github.com/BaSui01/flowengine/internal/cache"
	"github.com/BaSui01/flowengine/internal/database"
	"github.com/BaSui01/flowengine/internal/metrics"
	"github.com/BaSui01/flowengine/internal/migration"
	"github.com/BaSui01/flowengine/internal/server"
	"github.com/BaSui01/flowengine/internal/telemetry"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/breaker"
	wfcache "github.com/BaSui01/flowengine/workflow/cache"
	"github.com/BaSui01/flowengine/workflow/dsl"
	wfmetrics "github.com/BaSui01/flowengine/workflow/metrics"
	"github.com/BaSui01/flowengine/workflow/ratelimit"
	"github.com/BaSui01/flowengine/workflow/retry"
	"github.com/BaSui01/flowengine/workflow/steps"
	"github.com/BaSui01/flowengine/workflow/store"
)

const (
	// eventBufferSize 每个事件流订阅者的缓冲区大小
	eventBufferSize = 256
	// metricsRetention 执行样本保留时长，超过后由 janitor 清理
	metricsRetention = 24 * time.Hour
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FlowEngine 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	pool      *database.PoolManager
	redis     *rediscache.Manager

	engine    *workflow.Engine
	bus       *workflow.EventBus
	trigger   *workflow.Trigger
	watcher   *config.FileWatcher
	collector *metrics.Collector

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 后台任务（限流清理、调度、清扫、指标采集）生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务。失败时已启动的资源会被释放
func (s *Server) Start() error {
	if err := s.start(); err != nil {
		s.Shutdown()
		return err
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("workflows", s.engine.Registry().Len()),
		zap.Bool("persistent_checkpoints", s.pool != nil),
		zap.Bool("redis", s.redis != nil),
	)
	return nil
}

func (s *Server) start() error {
	// 1. OpenTelemetry
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry, tracing disabled", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	s.telemetry = providers

	// 2. 存储与缓存连接
	if err := s.openDatabase(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := s.openRedis(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	// 3. 引擎
	s.collector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.logger)
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	// 4. 定义、调度与后台任务
	if err := s.loadDefinitions(); err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}
	if err := s.initTrigger(); err != nil {
		return fmt.Errorf("failed to init trigger: %w", err)
	}
	s.startBackground()

	// 5. HTTP 与 Metrics 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// openDatabase 打开检查点数据库，Driver 为空时使用内存存储
func (s *Server) openDatabase() error {
	dbCfg := s.cfg.Database
	if dbCfg.Driver == "" {
		s.logger.Info("Database driver not configured, using in-memory checkpoints")
		return nil
	}

	if dbCfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			return err
		}
	}

	poolCfg := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}
	if poolCfg.MaxIdleConns > poolCfg.MaxOpenConns {
		poolCfg.MaxIdleConns = poolCfg.MaxOpenConns
	}

	pool, err := database.Open(dbCfg.Driver, dbCfg.DSN(), poolCfg, s.logger)
	if err != nil {
		return err
	}
	s.pool = pool
	return nil
}

// migrate 在启动时执行版本化迁移
func (s *Server) migrate() error {
	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger.With(zap.String("component", "migration")))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, err := m.Version(ctx)
	if err == nil {
		s.logger.Info("Database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

// openRedis 在启用 Redis 缓存或 Redis 限流时连接 Redis
func (s *Server) openRedis() error {
	if !s.cfg.Cache.RedisEnabled && s.cfg.RateLimit.Backend != "redis" {
		return nil
	}

	redisCfg := rediscache.DefaultConfig()
	redisCfg.Addr = s.cfg.Redis.Addr
	redisCfg.Password = s.cfg.Redis.Password
	redisCfg.DB = s.cfg.Redis.DB
	redisCfg.TLS = s.cfg.Redis.TLS
	redisCfg.KeyPrefix = s.cfg.Cache.KeyPrefix
	redisCfg.DefaultTTL = s.cfg.Cache.DecisionTTL
	if s.cfg.Redis.PoolSize > 0 {
		redisCfg.PoolSize = s.cfg.Redis.PoolSize
	}
	if s.cfg.Redis.MinIdleConns > 0 {
		redisCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	}

	manager, err := rediscache.NewManager(redisCfg, s.logger)
	if err != nil {
		return err
	}
	s.redis = manager
	return nil
}

// initEngine 组装引擎及其依赖
func (s *Server) initEngine() error {
	cfg := s.cfg

	// 检查点与死信
	var (
		checkpoints workflow.CheckpointStore
		deadLetters workflow.DeadLetterSink
	)
	if s.pool != nil {
		gormStore := store.NewGormStore(s.pool, s.logger)
		checkpoints, deadLetters = gormStore, gormStore
	} else {
		memory := workflow.NewMemoryStore()
		checkpoints, deadLetters = memory, memory
	}

	// 决策缓存，Redis 可用时作为二级缓存
	var remote wfcache.RemoteStore
	if cfg.Cache.RedisEnabled && s.redis != nil {
		remote = s.redis
	}
	decisions := wfcache.NewDecisionCache(cfg.Cache.DecisionTTL, remote, s.logger)

	// 工作流级限流
	var limiter ratelimit.Limiter = ratelimit.NewFixedWindow()
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisFixedWindow(s.redis.Client(), cfg.Cache.KeyPrefix+":ratelimit")
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThresholdPercentage: cfg.Breaker.FailureThresholdPercentage,
		MinimumRequests:            cfg.Breaker.MinimumRequests,
		ResetTimeout:               cfg.Breaker.ResetTimeout,
		RollingWindow:              cfg.Breaker.RollingWindow,
		Buckets:                    cfg.Breaker.Buckets,
	}, s.logger)

	retrier := retry.NewWrapper(retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Jitter:     cfg.Retry.Jitter,
		Timeout:    cfg.Retry.Timeout,
	}, breakers, decisions, s.logger)

	stepPolicy := retry.DefaultPolicy()
	stepPolicy.BaseDelay = cfg.Engine.StepRetryBaseDelay
	stepPolicy.Retryable = retry.StepRetryable

	recorder := wfmetrics.NewRecorder(s.logger,
		wfmetrics.WithCapacity(cfg.Metrics.Capacity),
		wfmetrics.WithSlowThreshold(cfg.Metrics.SlowThreshold),
	)

	elevated := cfg.Permissions.ElevatedRoles
	if len(elevated) == 0 {
		elevated = workflow.DefaultElevatedRoles
	}
	authorizer := workflow.NewAuthorizer(
		workflow.NewStaticPermissions(cfg.Permissions.ActorRoles),
		elevated,
		cfg.Permissions.RestrictedRoles,
	)

	s.bus = workflow.NewEventBus(eventBufferSize, s.logger)

	s.engine = workflow.NewEngine(workflow.NewRegistry(s.logger), s.logger,
		workflow.WithCheckpointStore(checkpoints),
		workflow.WithDeadLetterSink(deadLetters),
		workflow.WithRateLimiter(limiter, cfg.RateLimit.Points, cfg.RateLimit.Window),
		workflow.WithAuthorizer(authorizer),
		workflow.WithRecorder(recorder),
		workflow.WithStepRetryPolicy(stepPolicy),
		workflow.WithDefaultStepTimeout(cfg.Engine.DefaultStepTimeout),
		workflow.WithBreakers(breakers),
		workflow.WithDecisionCache(decisions),
		workflow.WithDefinitionTTL(cfg.Cache.DefinitionTTL),
		workflow.WithEventSink(workflow.MultiSink{s.bus, s.collector}),
		workflow.WithTracerProvider(s.telemetry.TracerProvider()),
		workflow.WithMaxParallelism(cfg.Engine.MaxParallelism),
	)

	steps.Register(s.engine.Handlers(), steps.Options{
		Retrier:  retrier,
		CacheTTL: cfg.Cache.DecisionTTL,
		Logger:   s.logger,
	})

	s.logger.Info("Engine initialized",
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Int("max_parallelism", cfg.Engine.MaxParallelism),
		zap.Strings("custom_handlers", s.engine.Handlers().CustomNames()),
	)
	return nil
}

// loadDefinitions 注册内置工作流与定义目录中的 YAML 工作流
func (s *Server) loadDefinitions() error {
	registry := s.engine.Registry()
	if s.cfg.Engine.LoadDefaults {
		if err := steps.RegisterDefaults(registry); err != nil {
			return err
		}
	}

	dir := s.cfg.Engine.DefinitionsDir
	if dir == "" {
		return nil
	}
	parser := dsl.NewParser().KnownHandlers(s.engine.Handlers().CustomNames()...)
	loader := newDefinitionLoader(dir, parser, registry, s.logger)
	if _, err := loader.Reload(); err != nil {
		// 已解析的定义照常使用
		s.logger.Warn("Definitions directory loaded with errors", zap.Error(err))
	}

	if s.cfg.Engine.WatchDefinitions {
		watcher, err := loader.Watch(s.ctx, s.cfg.Engine.WatchInterval)
		if err != nil {
			return fmt.Errorf("failed to watch definitions: %w", err)
		}
		s.watcher = watcher
	}
	return nil
}

// initTrigger 注册配置中的定时工作流
func (s *Server) initTrigger() error {
	s.trigger = workflow.NewTrigger(s.engine, s.cfg.Engine.TriggerInterval, s.logger)
	for _, sc := range s.cfg.Engine.Schedules {
		schedule, err := s.trigger.Schedule(sc.WorkflowID, sc.Every, sc.Input)
		if err != nil {
			return err
		}
		s.logger.Info("Workflow scheduled",
			zap.String("schedule_id", schedule.ID),
			zap.String("workflow_id", sc.WorkflowID),
			zap.Duration("every", sc.Every))
	}
	return nil
}

// startBackground 启动调度器、缓存清扫与引擎指标采集
func (s *Server) startBackground() {
	janitor := s.engine.Janitor(s.cfg.Cache.SweepInterval, metricsRetention)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.trigger.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		janitor.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.observeStats()
	}()
}

// observeStats 定期把引擎与连接池状态写入 Prometheus
func (s *Server) observeStats() {
	interval := s.cfg.Engine.StatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.collector.ObserveEngine(s.engine.Stats())
			if s.pool != nil {
				stats := s.pool.Stats()
				s.collector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
			}
		}
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	}
	if s.redis != nil {
		healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.redis.Ping))
	}
	healthHandler.RegisterCheck(handlers.NewBreakerCheck(s.engine.Stats))

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewWorkflowHandler(s.engine, s.logger).Register(mux)

	events := handlers.NewEventsHandler(s.bus, s.cfg.Server.CORSAllowedOrigins, s.logger)
	mux.HandleFunc("GET /api/v1/events", events.HandleEvents)

	return mux
}

// middleware 构建中间件链，第一个位于最外层
func (s *Server) middleware() []Middleware {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.JWT.Secret != "" {
		chain = append(chain, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(s.ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return chain
}

// startHTTPServer 启动 API 服务器
func (s *Server) startHTTPServer() error {
	handler := Chain(s.routes(), s.middleware()...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(s.ctx)
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止接收请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 2. 停止后台任务
	s.cancel()
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("Definition watcher shutdown error", zap.Error(err))
		}
	}
	s.wg.Wait()
	if s.trigger != nil {
		s.trigger.Wait()
	}

	// 3. 关闭外部连接
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Resource shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
