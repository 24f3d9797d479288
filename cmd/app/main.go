package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/drawcompress/internal/bridge"
    cfgpkg "github.com/local/drawcompress/internal/config"
    "github.com/local/drawcompress/internal/dispatcher"
    "github.com/local/drawcompress/internal/limiter"
    logpkg "github.com/local/drawcompress/internal/logger"
    "github.com/local/drawcompress/internal/metrics"
    "github.com/local/drawcompress/internal/orchestrator"
    "github.com/local/drawcompress/internal/pagetext"
    "github.com/local/drawcompress/internal/pdfdoc"
    "github.com/local/drawcompress/internal/queue"
    "github.com/local/drawcompress/internal/statuscheck"
    "github.com/local/drawcompress/internal/storage"
    "github.com/local/drawcompress/internal/store"
)

func main() {
    if err := cfgpkg.LoadDotEnv(); err != nil {
        fmt.Fprintln(os.Stderr, "load .env:", err)
    }
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()
    metrics.Init()

    ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stopSignals()

    // Queue
    var q queue.Queue
    var redisPing statuscheck.Pinger
    if cfg.Queue.Backend == "redis" {
        rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to connect to redis")
        }
        defer rq.Close()
        q, redisPing = rq, rq
    } else {
        q = queue.NewMemory()
    }

    // Status mirror
    var mirror store.Mirror
    if cfg.Queue.StatusMirror {
        rs, err := store.NewRedisStatus(cfg.Queue.RedisURL, cfg.Queue.StatusTTL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        defer rs.Close()
        mirror = rs
        if redisPing == nil { redisPing = rs }
    }

    // Result archive
    var archive orchestrator.Archive
    var archivePing statuscheck.Pinger
    if cfg.Storage.Bucket != "" {
        a, err := storage.NewResultArchive(ctx, storage.Options{
            Bucket: cfg.Storage.Bucket,
            Region: cfg.Storage.Region,
            Endpoint: cfg.Storage.Endpoint,
            AccessKeyID: cfg.Storage.AccessKeyID,
            SecretAccessKey: cfg.Storage.SecretAccessKey,
            SSE: cfg.Storage.SSE,
        })
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init result archive")
        }
        archive, archivePing = a, a
    }

    gs := &bridge.Ghostscript{
        Binaries: cfg.Tools.GhostscriptBinaries,
        Timeout: cfg.Tools.GhostscriptTimeout,
        Limiter: limiter.New(limiter.Options{
            Name: "ghostscript",
            MaxInflight: cfg.Tools.MaxInflight,
            Threshold: cfg.Tools.BreakerThreshold,
            BaseBackoff: cfg.Tools.BreakerBaseBackoff,
            MaxBackoff: cfg.Tools.BreakerMaxBackoff,
        }),
    }
    if _, err := gs.Find(); err != nil {
        log.Warn().Err(err).Msg("Ghostscript not found; results will skip re-distillation")
    }

    orch := orchestrator.New(orchestrator.Config{
        TempDir: cfg.Jobs.TempDir,
        ArchivePrefix: cfg.Storage.Prefix,
        MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
    }, orchestrator.Dependencies{
        Registry: store.NewRegistry(mirror),
        Queue: q,
        Assembler: &pdfdoc.Assembler{ImageConcurrency: cfg.Worker.ImageConcurrency},
        Distiller: gs,
        Optimizer: bridge.Optimizer{},
        Opener: pagetext.Opener{},
        Archive: archive,
        PageCounter: pagetext.PageCount,
    })

    checker := statuscheck.New(statuscheck.Options{
        Redis: redisPing,
        Archive: archivePing,
        Ghostscript: gs,
        MuPDF: pagetext.Probe,
    })

    mux := http.NewServeMux()
    orch.RegisterRoutes(mux)
    mux.HandleFunc("/readyz", checker.Handler())
    mux.Handle("/metrics", metrics.Handler())

    // Worker pool
    pool := dispatcher.New(dispatcher.Config{Concurrency: cfg.Worker.Concurrency, PollTimeout: cfg.Worker.PollTimeout}, q, orch.Run)
    pool.Start(context.Background())

    sweeper := orch.NewSweeper(cfg.Jobs.SweepInterval, cfg.Jobs.Retention)
    sweeper.Start()

    srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux, ReadHeaderTimeout: 30 * time.Second}
    go func(){
        log.Info().Msgf("HTTP server listening on :%s", cfg.HTTP.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    <-ctx.Done()
    log.Info().Msg("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    sweeper.Stop()
    if err := pool.Stop(shutdownCtx); err != nil {
        log.Warn().Err(err).Msg("worker pool did not stop in time")
    }
    fmt.Println("shutdown complete")
}
