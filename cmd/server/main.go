package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "veinlocate.ai/internal/persistence/log"
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/tuning"
	"veinlocate.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (veins.json, tuning.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory (query log + index)")
		seedFlag   = flag.String("seed", "", "override tuning seed")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite query index")
		disableLog = flag.Bool("disable_query_log", false, "disable the compressed query log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	veins, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load veins: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if s := strings.TrimSpace(*seedFlag); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			logger.Fatalf("bad -seed: %v", err)
		}
		tune.Seed = seed
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	var sinks command.MultiLogger
	if !*disableLog {
		ql := persistlog.NewQueryLogger(*dataDir)
		defer ql.Close()
		sinks = append(sinks, ql)
	}

	// Optional read-model index (does not affect query results).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, veins, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
		sinks = append(sinks, idx)
	}

	env := command.NewEnv(veins, tune)
	logger.Printf("veins=%d digest=%s seed=%d cell_size=%d radius=%d max_radius=%d",
		len(veins.Defs), veins.Digest[:12], tune.Seed, tune.CellSize, tune.DefaultRadius, tune.MaxRadius)

	ctx, cancel := signalContext()
	defer cancel()

	h := &api{env: env, queries: sinks, index: idx, log: logger}
	mux := http.NewServeMux()
	h.register(mux)
	mux.HandleFunc("/v1/ws", ws.NewServer(env, sinks, logger).Handler())

	if envBool("VL_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Sinks close only after in-flight handlers finish.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-shutdownDone
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
