package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/pipeline"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/mohammad-safakhou/studybuddy/internal/store"
)

// Options configures the HTTP surface.
type Options struct {
	ServiceName    string
	AllowOrigins   []string
	AdminEnabled   bool
	Search         retrieval.Searcher
	SearchTopK     int
	MetricsHandler http.Handler
	Logger         *log.Logger
}

// New builds the echo instance with every route registered.
func New(svc StudyService, opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "studybuddy"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.HTTPErrorHandler = errorHandler(opts.Logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", health)
	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler))
	}

	h := &StudyHandler{Service: svc, Search: opts.Search, TopK: opts.SearchTopK, AdminEnabled: opts.AdminEnabled}
	h.Register(e.Group("/api"))
	return e
}

// errorHandler renders every error as {"error": msg}, mapping pipeline
// errors onto status codes.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	var failed *pipeline.StepFailedError
	switch {
	case errors.Is(err, pipeline.ErrStepNotFound):
		return http.StatusNotFound, "Step not found"
	case errors.Is(err, pipeline.ErrPlanNotFound):
		return http.StatusNotFound, "Plan not found"
	case errors.Is(err, pipeline.ErrStepNotInPlan):
		return http.StatusNotFound, "Step not found in plan"
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, pipeline.ErrStepRunning):
		return http.StatusConflict, "Step is already running"
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &failed):
		return http.StatusInternalServerError, failed.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// Run migrates (postgres only), wires the application and serves until ctx
// ends, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Driver == store.DriverPostgres {
		if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			log.Printf("migrate: %v", err)
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	app, err := runtime.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	e := New(app.Service, Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowOrigins:   cfg.Server.AllowOrigins,
		AdminEnabled:   cfg.Server.AdminEnabled,
		Search:         app.Searcher,
		SearchTopK:     cfg.Retrieval.TopK,
		MetricsHandler: app.Telemetry.MetricsHandler(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Address)
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
