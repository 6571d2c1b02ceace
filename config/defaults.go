// =============================================================================
// 📦 FlowEngine 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		JWT:         DefaultJWTConfig(),
		Engine:      DefaultEngineConfig(),
		Retry:       DefaultRetryConfig(),
		Breaker:     DefaultBreakerConfig(),
		Cache:       DefaultCacheConfig(),
		RateLimit:   DefaultRateLimitConfig(),
		Metrics:     DefaultMetricsConfig(),
		Permissions: DefaultPermissionsConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultJWTConfig 返回默认 JWT 配置
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		ActorClaim: "sub",
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxParallelism:     0,
		DefaultStepTimeout: 30 * time.Second,
		StepRetryBaseDelay: 1 * time.Second,
		WatchInterval:      5 * time.Second,
		LoadDefaults:       true,
		TriggerInterval:    time.Second,
		StatsInterval:      15 * time.Second,
	}
}

// DefaultRetryConfig 返回默认决策调用重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     1 * time.Second,
		Timeout:    10 * time.Second,
	}
}

// DefaultBreakerConfig 返回默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThresholdPercentage: 50,
		MinimumRequests:            5,
		ResetTimeout:               30 * time.Second,
		RollingWindow:              60 * time.Second,
		Buckets:                    10,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefinitionTTL: time.Hour,
		DecisionTTL:   5 * time.Minute,
		SweepInterval: time.Minute,
		RedisEnabled:  false,
		KeyPrefix:     "flowengine",
	}
}

// DefaultRateLimitConfig 返回默认工作流限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Points:  10,
		Window:  time.Minute,
		Backend: "memory",
	}
}

// DefaultMetricsConfig 返回默认执行指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Capacity:      5000,
		SlowThreshold: 30 * time.Second,
		Namespace:     "flowengine",
	}
}

// DefaultPermissionsConfig 返回默认权限配置
func DefaultPermissionsConfig() PermissionsConfig {
	return PermissionsConfig{
		ElevatedRoles: []string{"ADMIN", "PROPERTY_MANAGER"},
		RestrictedRoles: map[string][]string{
			"TENANT": {"maintenance-request-lifecycle"},
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置。默认不启用持久化检查点
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "",
		Host:            "localhost",
		Port:            5432,
		User:            "flowengine",
		Password:        "",
		Name:            "flowengine",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowengine",
		SampleRate:   0.1,
	}
}
