package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/agent"
	"github.com/mohammad-safakhou/studybuddy/internal/executor"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/internal/pipeline"
	"github.com/mohammad-safakhou/studybuddy/internal/planner"
	"github.com/mohammad-safakhou/studybuddy/internal/queue/streams"
	"github.com/mohammad-safakhou/studybuddy/internal/researcher"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/internal/store"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// Version is stamped into telemetry resources.
var Version = "dev"

// App holds the wired dependencies shared by the serve, mcp and plan commands.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Service   *pipeline.Service
	Searcher  retrieval.Searcher
	Redis     *redis.Client
	Publisher *streams.Publisher
	Telemetry *Telemetry
	logger    *log.Logger
}

type bootstrapOptions struct {
	generator llm.TextGenerator
}

// BootstrapOption overrides parts of the wiring.
type BootstrapOption func(*bootstrapOptions)

// WithGenerator replaces the configured LLM backend.
func WithGenerator(gen llm.TextGenerator) BootstrapOption {
	return func(o *bootstrapOptions) { o.generator = gen }
}

// Bootstrap opens the store, retrieval corpus and optional redis stream and
// wires the agents into a pipeline service. Close releases everything.
func Bootstrap(ctx context.Context, cfg *config.Config, opts ...BootstrapOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	var o bootstrapOptions
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg, logger: log.New(log.Writer(), "[BOOT] ", log.LstdFlags)}

	tele, meter, _, err := SetupTelemetry(ctx, cfg.Telemetry, TelemetryOptions{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		MetricsPort:    cfg.Telemetry.MetricsPort,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	app.Telemetry = tele

	fail := func(err error) (*App, error) {
		_ = app.Close(context.Background())
		return nil, err
	}

	app.Store, err = OpenStore(ctx, cfg.Storage)
	if err != nil {
		return fail(err)
	}

	gen := o.generator
	if gen == nil {
		g, err := llm.NewGeneratorFromConfig(cfg.LLM)
		if err != nil {
			return fail(fmt.Errorf("llm: %w", err))
		}
		gen = g
	}

	docs, err := retrieval.LoadCorpus(cfg.Retrieval.CorpusPath)
	if err != nil {
		return fail(err)
	}
	app.Searcher, err = retrieval.New(cfg.Retrieval, docs)
	if err != nil {
		return fail(fmt.Errorf("retrieval: %w", err))
	}
	app.logger.Printf("retrieval engine %s over %d documents", cfg.Retrieval.Engine, len(docs))

	if cfg.Storage.Redis.Enabled() {
		if err := app.connectRedis(ctx, cfg.Storage.Redis); err != nil {
			return fail(err)
		}
	}

	sink := agent.Fanout{app.Store}
	var pipeOpts []pipeline.Option
	if app.Publisher != nil {
		sink = append(sink, agent.LoggerFunc(app.Publisher.PublishInteraction))
		pipeOpts = append(pipeOpts, pipeline.WithStepEvents(app.Publisher))
	}

	p := planner.New(gen, sink)
	r := researcher.New(gen, app.Searcher, sink,
		researcher.WithTopK(cfg.Retrieval.TopK),
		researcher.WithSearchTimeout(cfg.Retrieval.Timeout),
	)
	e := executor.New(gen, sink, executor.WithMetrics(executorMetrics(meter)))
	app.Service = pipeline.New(app.Store, p, r, e, pipeOpts...)
	return app, nil
}

func (a *App) connectRedis(ctx context.Context, cfg config.RedisConfig) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a.Redis = redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.Redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	registry, err := streams.NewDefaultRegistry()
	if err != nil {
		return err
	}
	var pubOpts []streams.PublishOption
	if cfg.StreamMax > 0 {
		pubOpts = append(pubOpts, streams.WithMaxLenApprox(cfg.StreamMax))
	}
	a.Publisher = streams.NewPublisher(a.Redis, registry, cfg.Stream, pubOpts...)
	a.logger.Printf("publishing events to redis stream %s", cfg.Stream)
	return nil
}

func executorMetrics(meter otelmetric.Meter) executor.Metrics {
	hist, err := meter.Float64Histogram("executor_step_duration_seconds",
		otelmetric.WithDescription("Time spent producing a step deliverable"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("executor metrics init: %v", err)
		return executor.Metrics{}
	}
	return executor.Metrics{
		Duration: func(ctx context.Context, tool models.Tool, d time.Duration) {
			hist.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("tool", string(tool))))
		},
	}
}

// Close releases the store, redis client, retrieval index and telemetry.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if c, ok := a.Searcher.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	errs = append(errs, a.Telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
