package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"msgledger/internal/sweeper"
	"msgledger/pkg/alias"
	"msgledger/pkg/api"
	"msgledger/pkg/banner"
	"msgledger/pkg/cache"
	"msgledger/pkg/config"
	"msgledger/pkg/engine"
	"msgledger/pkg/frame"
	"msgledger/pkg/intake"
	"msgledger/pkg/ledger"
	"msgledger/pkg/logger"
	"msgledger/pkg/resolve"
	"msgledger/pkg/shutdown"
	"msgledger/pkg/snapshot"
	"msgledger/pkg/store"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	addrVal, intakeVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)
	if envUsed {
		logger.Info("env_overrides_applied")
	}

	// flags win over config/env when explicitly provided
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	intakeAddr := cfg.IntakeAddr()
	if setFlags["intake-addr"] {
		intakeAddr = intakeVal
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = dbVal
	}

	if err := store.Open(dbPath); err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	// persisted state reloads at startup; the message cache never
	// persists and always starts empty
	tables := alias.NewTables()
	tables.Load()
	led := ledger.New()
	led.Load()

	c := cache.New(cfg.CacheCapacity(), cfg.CacheTTL())
	observed := resolve.NewObserved()
	resolver := resolve.New(tables, observed.Heading, observed.Path)
	ingestor := snapshot.New(tables, c)
	eng := engine.New(engine.Options{
		Decoder:   frame.NewDecoder(cfg.FrameMarker()),
		Cache:     c,
		Tables:    tables,
		Resolver:  resolver,
		Ledger:    led,
		Heading:   observed.Heading,
		QueueSize: cfg.Intake.QueueSize,
	})

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	stopSweeper, err := sweeper.Start(ctx, c, tables, cfg.SweepCron(), cfg.AliasFlushInterval())
	if err != nil {
		log.Fatalf("failed to start sweeper: %v", err)
	}
	defer stopSweeper()

	go eng.Run(ctx)

	in := intake.New(eng, ingestor, observed, intake.Config{
		RPS:   cfg.Intake.RateLimit.RPS,
		Burst: cfg.Intake.RateLimit.Burst,
	})
	go func() {
		if err := in.ListenAndServe(intakeAddr); err != nil {
			logger.Error("intake_server_exit", "error", err)
		}
	}()

	apiSrv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(api.Deps{Cache: c, Ledger: led, Resolver: resolver}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api_listening", "addr", addr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_exit", "error", err)
		}
	}()

	banner.Print(addr, intakeAddr, dbPath, version)

	<-ctx.Done()

	// best-effort final flush before the store closes
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = apiSrv.Shutdown(shutCtx)
	tables.Persist()
	led.Persist()
	logger.Info("shutdown_complete")
}
