package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jaskrrish/Go-QLab/internal/config"
	"github.com/jaskrrish/Go-QLab/internal/handlers"
	"github.com/jaskrrish/Go-QLab/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	sim, err := cfg.NewSimulator(logger)
	if err != nil {
		logger.Fatal("simulator setup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runs := store.New(store.WithTTL(cfg.Server.RunTTL), store.WithLogger(logger))
	go runs.Janitor(ctx, time.Minute)

	// Create a new HTTP multiplexer
	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.HomeHandler)
	mux.HandleFunc("/health", handlers.HealthHandler)
	labHandler := handlers.NewLabHandler(sim, runs, cfg.BB84, logger)
	labHandler.SetDefaultShots(cfg.Simulator.Shots)
	labHandler.Register(mux)

	// Create server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      loggingMiddleware(logger, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", sim.Name()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed to start", zap.Error(err))
	}
	logger.Info("server stopped")
}

func fatal(err error) {
	os.Stderr.WriteString("qlab-api: " + err.Error() + "\n")
	os.Exit(1)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)))
	})
}
