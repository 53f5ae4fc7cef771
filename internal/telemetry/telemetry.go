package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
)

// 导出器单次推送超时
const exportTimeout = 10 * time.Second

// Providers 持有已安装的 SDK Provider 及其关闭函数。
// 禁用遥测时为空壳，Shutdown 直接返回。
type Providers struct {
	tracer trace.TracerProvider
	meter  metric.MeterProvider

	shutdowns []func(context.Context) error
}

// Init 按配置安装全局 TracerProvider、MeterProvider 与传播器。
// 禁用时不创建导出器，也不修改全局状态。
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled")
		return &Providers{
			tracer: tracenoop.NewTracerProvider(),
			meter:  metricnoop.NewMeterProvider(),
		}, nil
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	p := &Providers{}
	if err := p.installTracing(ctx, cfg, res); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	if err := p.installMetrics(ctx, cfg, res); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry enabled",
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
		zap.String("service", cfg.ServiceName),
		zap.Float64("sample_rate", sampleRate(cfg.SampleRate)),
	)
	return p, nil
}

func newResource(ctx context.Context, service string) (*resource.Resource, error) {
	if service == "" {
		service = "consultflow"
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			semconv.ServiceVersionKey.String(buildVersion()),
			attribute.String("service.instance.id", uuid.NewString()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

func (p *Providers) installTracing(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return fmt.Errorf("otlp trace exporter: %w", err)
	}

	// 上游已采样的请求保持采样决定
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate(cfg.SampleRate)))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)

	p.tracer = tp
	p.shutdowns = append(p.shutdowns, tp.Shutdown)
	return nil
}

func (p *Providers) installMetrics(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return fmt.Errorf("otlp metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)

	p.meter = mp
	p.shutdowns = append(p.shutdowns, mp.Shutdown)
	return nil
}

// Enabled 是否安装了 SDK Provider
func (p *Providers) Enabled() bool {
	return p != nil && len(p.shutdowns) > 0
}

// TracerProvider 返回已安装的 TracerProvider，禁用时为 noop
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p == nil || p.tracer == nil {
		return tracenoop.NewTracerProvider()
	}
	return p.tracer
}

// MeterProvider 返回已安装的 MeterProvider，禁用时为 noop
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p == nil || p.meter == nil {
		return metricnoop.NewMeterProvider()
	}
	return p.meter
}

// Shutdown 刷新待发送数据并关闭导出器，按安装的逆序执行。
// 可重复调用，nil 接收者安全。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, p.shutdowns[i](ctx))
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

// sampleRate 把采样率限制在 (0, 1]，非正数按全采样处理
func sampleRate(r float64) float64 {
	switch {
	case r <= 0:
		return 1
	case r > 1:
		return 1
	default:
		return r
	}
}

// buildVersion 优先使用模块版本，其次是 VCS 修订号
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return "dev-" + s.Value[:12]
		}
	}
	return "dev"
}
