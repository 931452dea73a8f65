package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agent_office/internal/config"
	"agent_office/internal/floorplan"
	"agent_office/internal/messaging/inproc"
	"agent_office/internal/simagent"
	"agent_office/internal/source"
	sqlitestore "agent_office/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.agent_office/config.toml)")
	addrFlag := flag.String("addr", "", "http listen address override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	floorplanFlag := flag.String("floorplan", "", "floorplan yaml path override")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := firstNonEmpty(*addrFlag, cfg.Source.Addr, ":4500")
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Source.DBPath, "data/agent_office.db"))
	planPath := firstNonEmpty(*floorplanFlag, cfg.Source.FloorplanPath, "")

	plan, err := floorplan.LoadOrDefault(planPath)
	if err != nil {
		log.Fatalf("load floorplan: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create db directory: %v", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	bus := inproc.New(256)
	defer bus.Close()

	pool := simagent.NewPool(
		plan.Agents,
		bus,
		config.DurationMS(cfg.Source.ObserveIntervalMS, 3*time.Second),
		log.Default(),
	)

	svc := source.New(source.Config{
		PingInterval: config.DurationMS(cfg.Source.PingIntervalMS, 30*time.Second),
		HistoryLimit: config.IntOrDefault(cfg.Source.HistoryLimit, 200),
	}, bus, store, pool, log.Default())
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("start source service: %v", err)
	}
	pool.Start(ctx)

	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(svc.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("officed started addr=%s db=%s agents=%d", addr, dbPath, len(plan.Agents))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server failed: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
