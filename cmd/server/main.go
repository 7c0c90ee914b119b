package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voxelrealm.ai/internal/auth"
	persistlog "voxelrealm.ai/internal/persistence/log"
	"voxelrealm.ai/internal/persistence/sqlstore"
	"voxelrealm.ai/internal/sim/catalogs"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/tuning"
	"voxelrealm.ai/internal/sim/world"
	"voxelrealm.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory (sqlite db, audit logs)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		worldName  = flag.String("world", "overworld", "active world name")
		seed       = flag.String("seed", "voxelrealm", "world seed (used only when the world is created)")
		adminHTTP  = flag.Bool("admin_http", envBool("VR_ENABLE_ADMIN_HTTP", true), "enable loopback-only admin endpoints")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	store, err := sqlstore.Open(filepath.Join(*dataDir, "voxelrealm.db"))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if wrote, err := store.SeedCatalogs(bootCtx, cats); err != nil {
		logger.Fatalf("seed catalogs: %v", err)
	} else if wrote {
		logger.Printf("catalogs seeded items=%d decor_assets=%d", len(cats.Items), len(cats.Assets))
	}
	rec, err := store.EnsureWorld(bootCtx, *worldName, *seed, terrain.Default())
	if err != nil {
		logger.Fatalf("ensure world: %v", err)
	}
	if n, err := store.ResetOnline(bootCtx); err != nil {
		logger.Printf("reset online flags: %v", err)
	} else if n > 0 {
		logger.Printf("cleared %d stale online flags", n)
	}
	bootCancel()
	logger.Printf("active world id=%d name=%s seed=%s", rec.ID, rec.Name, rec.Seed)

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()

	srv := world.New(store, world.Config{
		Tuning:      tune,
		Credentials: auth.NewHasher(),
		Audit:       auditLog,
		Logger:      logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := srv.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world loop stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if *adminHTTP {
		registerAdmin(mux, srv)
	} else {
		logger.Printf("admin endpoints disabled")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(ctx, srv, ws.Config{
		MaxQueue:      tune.Network.MaxQueue,
		InboundPerSec: tune.Network.InboundPerSec,
		InboundBurst:  tune.Network.InboundBurst,
	}, logger).Handler())

	hs := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = hs.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-loopDone
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
