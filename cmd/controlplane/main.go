package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/common/config"
	"github.com/moonkev/flexds/internal/filterreg"
	"github.com/moonkev/flexds/internal/filters"
	"github.com/moonkev/flexds/internal/refresh"
	"github.com/moonkev/flexds/internal/repository/memory"
	"github.com/moonkev/flexds/internal/telemetry"
	"github.com/moonkev/flexds/internal/xds"
)

func main() {
	var adsPort = 18000
	var adminPort = 19005
	var logLevel = config.LogLevelFlag(slog.LevelInfo)
	var seedFile = ""
	var reservedPorts config.Uint32SliceFlag

	flag.IntVar(&adsPort, "ads-port", adsPort, "ADS gRPC port")
	flag.IntVar(&adminPort, "admin-port", adminPort, "admin port (metrics, health)")
	flag.Var(&logLevel, "log-level", "log level: debug, info, warn, error (default: info)")
	flag.StringVar(&seedFile, "seed-file", "", "path to a YAML fixture pre-populating the in-memory repository")
	flag.Var(&reservedPorts, "reserved-ports", "comma-separated extra ports listener rows may not bind (beyond ads-port/admin-port)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel.Level()}))
	slog.SetDefault(logger)

	telemetry.InitMetrics()

	repo := memory.New()
	var refreshInterval time.Duration
	if seedFile != "" {
		reserved := append([]uint32{uint32(adsPort), uint32(adminPort)}, []uint32(reservedPorts)...)
		doc, err := memory.LoadSeedFile(context.Background(), repo, seedFile, reserved)
		if err != nil {
			slog.Error("failed to load seed file", "error", err)
			os.Exit(1)
		}
		if doc.RefreshInterval != nil {
			refreshInterval = doc.RefreshInterval.ToDuration()
		}
	}

	resourceCache := cache.New()
	adsServer := xds.NewServer(resourceCache)
	materializer := filters.New(repo, filterreg.New())
	orchestrator := refresh.New(repo, materializer, resourceCache, adsServer)

	slog.Info("running startup refresh")
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := orchestrator.Run(startupCtx); err != nil {
		slog.Error("startup refresh failed", "error", err)
		os.Exit(1)
	}
	cancelStartup()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting ADS gRPC server", "port", adsPort)
		if err := xds.RunGRPC(ctx, adsServer, adsPort); err != nil {
			slog.Error("ADS server stopped with error", "error", err)
		}
	}()

	if refreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("starting periodic refresh", "interval", refreshInterval)
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					refreshCtx, cancelRefresh := context.WithTimeout(ctx, refreshInterval)
					if err := orchestrator.Run(refreshCtx); err != nil {
						slog.Warn("periodic refresh failed, will retry next tick", "error", err)
					}
					cancelRefresh()
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })

	admin := &http.Server{Addr: fmt.Sprintf(":%d", adminPort), Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting admin http server", "port", adminPort)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	slog.Info("shutdown signal received, shutting down services")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()

	select {
	case <-done:
		slog.Info("all services stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("shutdown timeout exceeded, forcing exit")
	}

	shutdownCtx2, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel3()
	if err := admin.Shutdown(shutdownCtx2); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}

	slog.Info("exiting")
}
