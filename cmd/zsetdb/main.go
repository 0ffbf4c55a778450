// zsetdb runs the sorted-set store as a daemon: it opens the engine,
// starts the GC scheduler and serves health, stats and prometheus metrics
// over HTTP. There is no data-plane protocol here; embedders use pkg/zset
// directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"zsetdb/internal/gc"
	"zsetdb/pkg/config"
	"zsetdb/pkg/logger"
	"zsetdb/pkg/metrics"
	"zsetdb/pkg/zset"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger.InitWithLevel(cfg.Logging.Level)

	store, err := zset.Open(zset.Options{
		Path:            cfg.Storage.DBPath,
		BloomBitsPerKey: cfg.Storage.BloomBitsPerKey,
		ZScanCacheSize:  cfg.Storage.ZScanCacheSize,
	})
	if err != nil {
		logger.Error("store_open_failed", "path", cfg.Storage.DBPath, "error", err)
		os.Exit(1)
	}
	logger.Info("store_opened", "path", cfg.Storage.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.GC.Enabled {
		cancel, err := gc.Start(ctx, store, cfg.GC.Cron)
		if err != nil {
			logger.Error("gc_start_failed", "error", err)
			os.Exit(1)
		}
		defer cancel()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		num, err := store.ScanKeyNum()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"keys": num})
	})

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: r}
	go func() {
		logger.Info("http_listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http_serve_failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("store_closed")
}
