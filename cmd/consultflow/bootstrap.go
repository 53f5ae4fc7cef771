package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/consultflow/agent"
	"github.com/BaSui01/consultflow/api/handlers"
	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/cache"
	"github.com/BaSui01/consultflow/internal/database"
	"github.com/BaSui01/consultflow/internal/metrics"
	"github.com/BaSui01/consultflow/internal/telemetry"
	"github.com/BaSui01/consultflow/internal/tlsutil"
	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/llm/providers/offline"
	"github.com/BaSui01/consultflow/llm/providers/openai"
	"github.com/BaSui01/consultflow/llm/retry"
	"github.com/BaSui01/consultflow/llm/tokenizer"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/retrieval"
	"github.com/BaSui01/consultflow/workflow"
)

// =============================================================================
// 🧱 运行时依赖装配
// =============================================================================

// stack 持有一次进程生命周期内的全部运行时依赖
type stack struct {
	orchestrator *orchestrator.Orchestrator
	provider     llm.Provider
	checks       []handlers.HealthCheck

	redis *cache.Manager
	db    *database.PoolManager

	stop chan struct{}
	wg   sync.WaitGroup

	logger *zap.Logger
}

// buildStack 按配置装配 LLM、检索、运行历史与编排器。
// 任一步失败都会释放已创建的资源。
func buildStack(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (_ *stack, err error) {
	s := &stack{
		stop:   make(chan struct{}),
		logger: logger,
	}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if needsRedis(cfg) {
		if err := s.openRedis(cfg.Redis); err != nil {
			if cfg.Workflow.HistoryBackend == "redis" {
				return nil, err
			}
			// 仅响应缓存需要 Redis 时退化为进程内缓存
			logger.Warn("redis unavailable, llm cache falls back to process memory", zap.Error(err))
		}
	}
	if needsDatabase(cfg) {
		if err := s.openDatabase(cfg.Database, collector); err != nil {
			return nil, err
		}
	}

	s.provider = s.buildProvider(cfg.LLM, collector)
	s.checks = append(s.checks, handlers.NewProviderHealthCheck(s.provider))

	gen := llm.NewGenerator(s.provider, llm.Options{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
	})
	registry := agent.NewRegistry(agent.Dependencies{
		Generator: gen,
		Prompts:   agent.NewPromptBuilder(tokenizer.ForModel(cfg.LLM.Model)),
		Logger:    logger,
	})

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestratorConfig(cfg)),
		orchestrator.WithSinks(telemetry.NewTraceSink()),
	}
	// 离线 Provider 无法识别语言，直接使用启发式检测
	if cfg.LLM.Provider == "offline" {
		opts = append(opts, orchestrator.WithLanguageDetector(agent.HeuristicLanguageDetector{}))
	} else {
		opts = append(opts, orchestrator.WithLanguageDetector(agent.NewLLMLanguageDetector(gen)))
	}
	if collector != nil {
		opts = append(opts, orchestrator.WithSinks(collector))
	}

	retriever, err := s.buildRetriever(cfg.Retrieval, collector)
	if err != nil {
		return nil, err
	}
	if retriever != nil {
		opts = append(opts, orchestrator.WithRetriever(retriever))
	}

	store, err := s.buildRunStore(cfg.Workflow)
	if err != nil {
		return nil, err
	}
	opts = append(opts, orchestrator.WithRunStore(store))

	s.orchestrator, err = orchestrator.New(registry, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return s, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Workflow.HistoryBackend == "redis" || (cfg.LLM.CacheEnabled && cfg.Redis.Addr != "")
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.Retrieval.Backend == "database" || cfg.Workflow.HistoryBackend == "database"
}

func (s *stack) openRedis(rc config.RedisConfig) error {
	m, err := cache.NewManager(cache.FromConfig(rc), s.logger)
	if err != nil {
		return err
	}
	s.redis = m
	s.checks = append(s.checks, handlers.NewRedisHealthCheck("redis", m.Ping))
	return nil
}

func (s *stack) openDatabase(dc config.DatabaseConfig, collector *metrics.Collector) error {
	pool, err := database.Open(dc, s.logger)
	if err != nil {
		return err
	}
	s.db = pool
	s.checks = append(s.checks, handlers.NewDatabaseHealthCheck(dc.Driver, pool.Ping))
	if collector != nil {
		pool.Monitor(30*time.Second, func(st database.PoolStats) {
			collector.RecordDBConnections(dc.Driver, st.OpenConnections, st.Idle)
		})
	}
	return nil
}

// buildProvider 基础 Provider 外层叠加缓存、限流、重试与指标
func (s *stack) buildProvider(lc config.LLMConfig, collector *metrics.Collector) llm.Provider {
	var base llm.Provider
	switch lc.Provider {
	case "openai":
		base = openai.New(openai.Config{
			APIKey:     lc.APIKey,
			BaseURL:    lc.BaseURL,
			Model:      lc.Model,
			Timeout:    lc.Timeout,
			HTTPClient: tlsutil.SecureHTTPClient(lc.Timeout),
		}, s.logger)
	default:
		base = offline.New(0)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = lc.MaxRetries
	opts := []llm.ResilientOption{
		llm.WithRateLimit(lc.RateLimitRPS, lc.RateLimitBurst),
		llm.WithRetryer(retry.NewBackoffRetryer(policy, s.logger)),
	}
	if lc.CacheEnabled {
		cc := llm.DefaultCacheConfig()
		if lc.CacheTTL > 0 {
			cc.RedisTTL = lc.CacheTTL
		}
		var rdb *redis.Client
		if s.redis != nil {
			rdb = s.redis.Client()
		}
		opts = append(opts, llm.WithCache(llm.NewMultiLevelCache(rdb, cc, s.logger)))
	}
	if collector != nil {
		opts = append(opts, llm.WithMetrics(collector))
	}
	return llm.NewResilientProvider(base, s.logger, opts...)
}

func (s *stack) buildRetriever(rc config.RetrievalConfig, collector *metrics.Collector) (retrieval.Retriever, error) {
	var docs []retrieval.Document
	if rc.SeedPath != "" {
		loaded, err := retrieval.LoadDocuments(rc.SeedPath)
		if err != nil {
			return nil, err
		}
		docs = loaded
	}

	switch rc.Backend {
	case "none":
		return nil, nil
	case "database":
		store := retrieval.NewStore(s.db.DB(), s.logger)
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate context documents: %w", err)
		}
		if len(docs) > 0 {
			start := time.Now()
			err := s.db.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
				return retrieval.NewStore(tx, s.logger).Upsert(context.Background(), docs...)
			})
			if collector != nil {
				collector.RecordDBQuery("context_documents", "seed", time.Since(start))
			}
			if err != nil {
				return nil, fmt.Errorf("seed context documents: %w", err)
			}
			s.logger.Info("context documents seeded", zap.Int("count", len(docs)))
		}
		return store, nil
	default:
		return retrieval.NewMemoryRetriever(docs...), nil
	}
}

func (s *stack) buildRunStore(wc config.WorkflowConfig) (workflow.RunStore, error) {
	switch wc.HistoryBackend {
	case "redis":
		return cache.NewRunStore(s.redis.Client(), wc.HistoryTTL, s.logger), nil
	case "database":
		store := database.NewRunStore(s.db, s.logger)
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate workflow runs: %w", err)
		}
		if wc.HistoryTTL > 0 {
			s.wg.Add(1)
			go s.pruneLoop(store, wc.HistoryTTL)
		}
		return store, nil
	default:
		return workflow.NewMemoryRunStore(wc.HistoryCapacity), nil
	}
}

// pruneLoop 定期删除超过保留期的运行记录
func (s *stack) pruneLoop(store *database.RunStore, ttl time.Duration) {
	defer s.wg.Done()

	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := store.Prune(ctx, time.Now().Add(-ttl))
			cancel()
			if err != nil {
				s.logger.Warn("prune workflow runs failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("pruned workflow runs", zap.Int64("count", n))
			}
		}
	}
}

// close 释放数据库与 Redis 连接，可重复调用
func (s *stack) close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	s.wg.Wait()

	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.RetrievalTopK = cfg.Retrieval.TopK
	if cfg.Workflow.MaxIterations > 0 {
		oc.RefinementMaxIterations = cfg.Workflow.MaxIterations
	}
	oc.RefinementMinLength = cfg.Workflow.RefinementMinLength
	if cfg.Workflow.RunTimeout > 0 {
		oc.RunTimeout = cfg.Workflow.RunTimeout
	}
	oc.DefinitionPath = cfg.Workflow.DefinitionPath
	if len(cfg.Workflow.ParallelBranches) > 0 {
		oc.ParallelBranches = make([]orchestrator.BranchConfig, 0, len(cfg.Workflow.ParallelBranches))
		for _, b := range cfg.Workflow.ParallelBranches {
			oc.ParallelBranches = append(oc.ParallelBranches, orchestrator.BranchConfig{Tag: b.Tag, Roles: b.Roles})
		}
	}
	return oc
}
