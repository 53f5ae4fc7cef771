package config

import "time"

// Config 聚合全部配置节。yaml 标签对应文件键，env 标签拼接成
// <前缀>_<节>_<字段> 形式的环境变量名。
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Workflow  WorkflowConfig  `yaml:"workflow" env:"WORKFLOW"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	JWT       JWTConfig       `yaml:"jwt" env:"JWT"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"` // 0 关闭独立指标端口
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 按客户端限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// BranchConfig 并行模式的一个分支：标签加角色列表
type BranchConfig struct {
	Tag   string   `yaml:"tag" json:"tag"`
	Roles []string `yaml:"roles" json:"roles"`
}

// WorkflowConfig 编排参数
type WorkflowConfig struct {
	// standard, parallel, feedback_loop, observable
	DefaultMode string        `yaml:"default_mode" env:"DEFAULT_MODE"`
	RunTimeout  time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`

	// 反馈循环：迭代上限，以及技术调研输出低于该长度时继续迭代
	MaxIterations       int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	RefinementMinLength int `yaml:"refinement_min_length" env:"REFINEMENT_MIN_LENGTH"`

	DefinitionPath   string         `yaml:"definition_path" env:"DEFINITION_PATH"`
	ParallelBranches []BranchConfig `yaml:"parallel_branches" env:"-"`

	// memory, redis, database
	HistoryBackend  string        `yaml:"history_backend" env:"HISTORY_BACKEND"`
	HistoryCapacity int           `yaml:"history_capacity" env:"HISTORY_CAPACITY"`
	HistoryTTL      time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
}

// LLMConfig 模型接入
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"PROVIDER"` // openai 或 offline
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"` // 0 不限流
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	CacheEnabled bool          `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// RetrievalConfig 上下文检索
type RetrievalConfig struct {
	Backend  string `yaml:"backend" env:"BACKEND"` // none, memory, database
	TopK     int    `yaml:"top_k" env:"TOP_K"`
	SeedPath string `yaml:"seed_path" env:"SEED_PATH"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLSEnabled   bool   `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DatabaseConfig 关系库连接。sqlite 时 Name 为文件路径
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"` // json 或 console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 关闭时使用 noop TracerProvider
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig Secret 用于 HS256，PublicKey 为 PEM 格式 RSA 公钥
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}
