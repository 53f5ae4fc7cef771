// @title ConsultFlow API
// @version 1.0.0
// @description ConsultFlow orchestrates consulting specialist agents over a workflow graph.
// @description Standard, parallel, feedback-loop and observable modes; SSE and WebSocket streaming.

// @contact.name ConsultFlow Team
// @contact.url https://github.com/BaSui01/consultflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/telemetry"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/types"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"serve":   {"serve [--config path]              start the API and metrics servers", runServe},
	"run":     {"run --query text [--mode m]        run one workflow, print the result as JSON", runOnce},
	"migrate": {"migrate up|down|status|version     manage the database schema", runMigrate},
	"health":  {"health [--addr url]                probe a running server", runHealthCheck},
	"version": {"version                            print build information", runVersion},
}

var commandOrder = []string{"serve", "run", "migrate", "health", "version"}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage(os.Stdout)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.run(ctx, os.Args[2:], os.Stdout)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "consultflow %s: %v\n", name, err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "ConsultFlow - consulting agent workflow engine")
	fmt.Fprintln(w, "\nUsage:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  consultflow %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nConfiguration is read from --config (YAML) and CONSULTFLOW_* environment variables.")
}

// loadConfig 读取配置并校验
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runServe 阻塞到收到退出信号；signal 由 Server 自己监听
func runServe(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting consultflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	srv := NewServer(cfg, logger, providers)
	if err := srv.Start(); err != nil {
		srv.Shutdown()
		return err
	}
	srv.WaitForShutdown()
	return nil
}

// runOnce 执行一次工作流并把结果以 JSON 写入 out。取消不算失败。
func runOnce(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "path to YAML config")
	query := fs.String("query", "", "user query; the first positional argument also works")
	modeName := fs.String("mode", "", "standard, parallel, feedback_loop or observable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *query == "" {
		*query = fs.Arg(0)
	}
	if *query == "" {
		return errors.New("--query is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *modeName == "" {
		*modeName = cfg.Workflow.DefaultMode
	}
	mode, err := orchestrator.ParseMode(*modeName)
	if err != nil {
		return err
	}

	// stdout 只留给结果
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := newLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	st, err := buildStack(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer st.close()

	res, runErr := st.orchestrator.RunWorkflow(ctx, *query, nil, mode)
	if res != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if types.IsErrorCode(runErr, types.ErrWorkflowCancelled) {
		return nil
	}
	return runErr
}

func runHealthCheck(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(out)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func runVersion(_ context.Context, _ []string, out io.Writer) error {
	_, err := fmt.Fprintf(out, "ConsultFlow %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	return err
}
