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
	"time"

	"github.com/nhle/taskzen/internal/mailer"
	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/server"
	"github.com/nhle/taskzen/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to server config (YAML)")
	flag.Parse()

	cfg, err := model.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("opening database %s: %v", cfg.DatabasePath, err)
	}
	defer st.Close()

	logger := log.New(os.Stderr, "[server] ", log.LstdFlags)
	srv := server.New(st, mailer.New(cfg.SMTP), cfg, server.WithLogger(logger))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}
}
