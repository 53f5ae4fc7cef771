package config

import "time"

// DefaultConfig 开箱即可离线运行：offline Provider、内存检索、内存运行历史
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Workflow: WorkflowConfig{
			DefaultMode:         "standard",
			RunTimeout:          2 * time.Minute,
			MaxIterations:       3,
			RefinementMinLength: 200,
			ParallelBranches: []BranchConfig{
				{Tag: "technical", Roles: []string{"solution_architect", "technical_research"}},
				{Tag: "business", Roles: []string{"market_analysis", "client_communication"}},
			},
			HistoryBackend:  "memory",
			HistoryCapacity: 1000,
			HistoryTTL:      24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:       "offline",
			Model:          "gpt-4o-mini",
			MaxTokens:      1024,
			Temperature:    0.3,
			Timeout:        time.Minute,
			MaxRetries:     2,
			RateLimitBurst: 1,
			CacheTTL:       time.Hour,
		},
		Retrieval: RetrievalConfig{Backend: "memory", TopK: 5},
		Redis:     RedisConfig{Addr: "localhost:6379", PoolSize: 10, MinIdleConns: 2},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "consultflow",
			Name:            "consultflow.db",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "consultflow",
			SampleRate:   0.1,
		},
		JWT: JWTConfig{Issuer: "consultflow"},
	}
}
