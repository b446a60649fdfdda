// Command matrixsched runs the request scheduler and its HTTP front-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bdrail/matrixsched/internal/httpapi"
	"github.com/bdrail/matrixsched/internal/matrix"
	"github.com/bdrail/matrixsched/internal/scheduler"
	"github.com/bdrail/matrixsched/internal/upstream"
	"github.com/bdrail/matrixsched/pkg/config"
	"github.com/bdrail/matrixsched/pkg/models"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("\n❌ Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	runtime.GOMAXPROCS(runtime.NumCPU())

	var (
		configPath  string
		addr        string
		checkConfig bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&configPath, "f", "", "Path to YAML configuration file (shorthand)")
	flag.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flag.BoolVar(&checkConfig, "check-config", false, "Validate the config file's queue keys and exit")
	flag.Parse()

	if checkConfig {
		if configPath == "" {
			fmt.Println("-check-config requires -config/-f")
			os.Exit(1)
		}
		result, err := config.CheckUnknownQueueKeys(configPath)
		if err != nil {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
		if result.HasErrors() {
			fmt.Print(result.FormatErrors())
			os.Exit(1)
		}
		fmt.Println("config OK")
		return
	}

	cfg := models.DefaultSchedulerConfig()
	if configPath != "" {
		loaded, err := config.LoadSchedulerConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config file: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if !cfg.Enabled {
		fmt.Println("queue.enabled is false; nothing to run")
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down gracefully")
		cancel()
	}()

	client := upstream.New()
	engine := matrix.New(client)
	sched := scheduler.New(cfg)
	go sched.Run(ctx)

	server := httpapi.NewServer(sched, engine, client, logger)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "error", err)
		}
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("server error: %v\n", err)
		os.Exit(1)
	}
}
