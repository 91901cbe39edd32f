package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/search"
	"github.com/verdantlabs/greencoach/internal/store"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
	"github.com/verdantlabs/greencoach/internal/trainer/telemetry"
)

// Run wires all components and serves HTTP until SIGINT/SIGTERM.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required (set GREENCOACH_JWT_SECRET)")
	}
	secret := []byte(cfg.Server.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	cache := store.NewStatusCache(cfg.Storage.Redis)
	defer cache.Close()

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	defer tele.Shutdown()

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	searchTool := core.NewSerperSearch(
		cfg.Search.SerperAPIKey, cfg.Search.Endpoint,
		cfg.Search.GL, cfg.Search.HL, cfg.Search.MaxResults, cfg.Search.Timeout)

	idx, err := search.NewIndex()
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	defer idx.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := any(err.Error())
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = he.Message
		}
		if code >= 500 {
			logger.Printf("%s %s -> %d: %v", c.Request().Method, c.Request().URL.Path, code, err)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(e.Group("/api/auth"))

	sessions := NewSessionsHandler(cfg, llm, searchTool, tele, st, cache, idx)
	sessions.Register(e.Group("/api/sessions"), secret)

	reports := &ReportsHandler{Store: st, Index: idx}
	reports.Register(e.Group("/api/reports"), secret)

	sched, err := NewScheduler(st, cache, cfg.Server.PruneSchedule, cfg.Training.RetentionDays)
	if err != nil {
		return fmt.Errorf("parse prune schedule: %w", err)
	}
	go sched.Start(ctx)

	go func() {
		logger.Printf("listening on %s", cfg.Server.Listen)
		if err := e.Start(cfg.Server.Listen); err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.General.DefaultTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
