package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/cpauth/internal/bootstrap"
	"github.com/dropDatabas3/cpauth/internal/config"
	"github.com/dropDatabas3/cpauth/internal/http/server"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

func main() {
	configPath := flag.String("config", "", "ruta al config.yaml (opcional; todo puede venir por env)")
	envFile := flag.String("env-file", ".env", "archivo .env a cargar si existe")
	flag.Parse()

	// .env opcional: en prod las variables vienen del entorno
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: .env no cargado: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		File: logger.FileConfig{
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	if err := metrics.Register(nil); err != nil {
		lg.Fatal("metrics register failed", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup, deps, err := server.BuildHandlerWithDeps(ctx, cfg)
	if err != nil {
		lg.Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := cleanup(); err != nil {
			lg.Warn("cleanup error", logger.Err(err))
		}
	}()

	// Primer operador desde env; nunca interactivo en el servicio.
	if email, pass := os.Getenv("BOOTSTRAP_ADMIN_EMAIL"), os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"); email != "" && pass != "" {
		if _, err := bootstrap.CheckAndCreateAdmin(ctx, bootstrap.AdminBootstrapConfig{
			Directory:     deps.Directory,
			Policy:        cfg.PasswordPolicy(),
			SkipPrompt:    true,
			AdminEmail:    email,
			AdminPassword: pass,
		}); err != nil {
			lg.Error("admin bootstrap failed", logger.Err(err))
		}
	}

	api := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{api}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(nil))
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			lg.Info("listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var first error
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil && first == nil {
				first = err
			}
		}
		return first
	})

	if err := g.Wait(); err != nil {
		lg.Error("server stopped with error", logger.Err(err))
		return
	}
	lg.Info("server stopped")
}
