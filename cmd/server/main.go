package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelfetch/backend/internal/admission"
	"github.com/reelfetch/backend/internal/api"
	"github.com/reelfetch/backend/internal/cache"
	"github.com/reelfetch/backend/internal/config"
	"github.com/reelfetch/backend/internal/credentials"
	"github.com/reelfetch/backend/internal/download"
	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/health"
	"github.com/reelfetch/backend/internal/history"
	"github.com/reelfetch/backend/internal/logger"
	"github.com/reelfetch/backend/internal/metadata"
	"github.com/reelfetch/backend/internal/metrics"
	"github.com/reelfetch/backend/internal/middleware"
	"github.com/reelfetch/backend/internal/platform"
	"github.com/reelfetch/backend/internal/progress"
	"github.com/reelfetch/backend/internal/retrieval"
	"github.com/reelfetch/backend/internal/storage"
	"github.com/reelfetch/backend/internal/transcoder"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	log := logger.New(&logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Component: "server"})
	logger.SetDefault(log)
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		log.Error(ctx, "failed to create downloads directory", err, map[string]interface{}{"dir": cfg.DownloadsDir})
		os.Exit(1)
	}

	m := metrics.Default()
	platforms := platform.DefaultRouter()

	// External tools
	ytdlp := extractor.New(extractor.Config{BinaryPath: cfg.YtdlpPath, Logger: log})
	ffmpeg := transcoder.New(transcoder.Config{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath, Logger: log})
	accelerator, hasAccelerator := extractor.DetectAccelerator(ctx, cfg.AcceleratorPath)
	if v, err := ytdlp.Version(ctx); err != nil {
		log.Warn(ctx, "yt-dlp not available, downloads will fail", map[string]interface{}{"path": cfg.YtdlpPath, "error": err.Error()})
	} else {
		log.Info(ctx, "yt-dlp found", map[string]interface{}{"version": v})
	}
	if !ffmpeg.Available() {
		log.Warn(ctx, "ffmpeg not available, merging and conversion will fail", map[string]interface{}{"path": cfg.FFmpegPath})
	}

	creds := credentials.NewMonitor(cfg.CookiesPath)
	disk := admission.NewChecker(cfg.DownloadsDir, admission.SystemProber{}, log)

	// Optional Redis: metadata cache and job snapshots
	var (
		redisCache *cache.Cache
		snapshots  download.SnapshotStore
	)
	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn(ctx, "redis unavailable, continuing without cache", map[string]interface{}{"error": err.Error()})
		} else {
			redisCache = c
			defer c.Close()
			snapshots = download.NewRedisStore(c.Client(), cfg.JobLinger+cfg.RetentionWindow)
		}
	}

	// Optional Postgres history
	var historyRepo *history.Repository
	var historyDB *history.DB
	if cfg.DatabaseURL != "" {
		db, err := history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error(ctx, "failed to connect to database", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Error(ctx, "failed to run migrations", err)
			os.Exit(1)
		}
		historyDB = db
		historyRepo = history.NewRepository(db)
	}

	// Optional object storage mirror
	mirror, err := storage.New(cfg)
	if err != nil {
		log.Error(ctx, "failed to configure artifact mirror", err)
		os.Exit(1)
	}
	if mm, ok := mirror.(*storage.MinioMirror); ok {
		if err := mm.EnsureBucket(ctx); err != nil {
			log.Warn(ctx, "failed to ensure mirror bucket", map[string]interface{}{"bucket": mm.Bucket(), "error": err.Error()})
		}
	}

	metaCfg := metadata.Config{
		Router:      platforms,
		Source:      ytdlp,
		Credentials: creds,
		CacheTTL:    cfg.MetadataCacheTTL,
		Logger:      log,
	}
	if redisCache != nil {
		metaCfg.Cache = redisCache
	}
	resolver := metadata.NewResolver(metaCfg)

	broker := progress.NewBroker(log)
	runner := download.NewRunner(cfg.MaxConcurrentDownloads, log)
	runner.Start()

	orchCfg := download.Config{
		Resolver:         resolver,
		Fetcher:          ytdlp,
		Transcoder:       ffmpeg,
		Admission:        disk,
		Credentials:      creds,
		Notifier:         broker,
		Runner:           runner,
		Repository:       download.NewRepository(cfg.JobLinger),
		Counter:          m,
		DownloadsDir:     cfg.DownloadsDir,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           log,
	}
	if hasAccelerator {
		orchCfg.Accelerator = accelerator
	}
	if snapshots != nil {
		orchCfg.Store = snapshots
	}
	if historyRepo != nil {
		orchCfg.Recorder = historyRepo
	}
	if mirror != nil {
		orchCfg.Mirror = mirror
	}
	orchestrator, err := download.New(orchCfg)
	if err != nil {
		log.Error(ctx, "failed to create orchestrator", err)
		os.Exit(1)
	}

	files := retrieval.NewStore(cfg.DownloadsDir, cfg.FileGracePeriod, log)
	defer files.Close()
	sweeper := retrieval.NewSweeper(cfg.DownloadsDir, cfg.RetentionWindow, cfg.SweepInterval, log)
	sweeper.OnSweep = func(deleted int) {
		for i := 0; i < deleted; i++ {
			m.IncCounter("artifacts_swept")
		}
	}

	m.TrackActiveDownloads(orchestrator.Active)
	m.GaugeFunc("runner_in_flight", func() float64 { return float64(runner.InFlight()) })

	// Health
	checkerCfg := &health.CheckerConfig{
		ExtractorAvailable: ytdlp.Available,
		FFmpegAvailable:    ffmpeg.Available,
		Accelerator:        hasAccelerator,
		Credentials:        creds,
		Disk:               disk,
		ActiveDownloads:    orchestrator.Active,
		Version:            version,
	}
	if redisCache != nil {
		checkerCfg.Redis = redisCache.Client()
	}
	if historyDB != nil {
		checkerCfg.DBCheck = historyDB.Ping
	}
	if mirror != nil {
		checkerCfg.StorageCheck = mirror.Ping
	}
	healthHandler := health.NewHandler(health.NewChecker(checkerCfg))

	progressHandler := progress.NewHandler(broker, cfg.CORSOrigins, log)
	progressHandler.SetObserver(m)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)

	deps := api.Deps{
		Platforms:     platforms,
		Resolver:      resolver,
		Downloads:     orchestrator,
		Files:         files,
		Progress:      progressHandler,
		Health:        healthHandler,
		Metrics:       m,
		Limiter:       limiter,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	if historyRepo != nil {
		deps.History = historyRepo
	}
	router := api.NewRouter(deps)

	handler := middleware.Chain(router,
		middleware.Recoverer(log),
		middleware.RequestID,
		middleware.Logging(log),
		metrics.MetricsMiddleware(m),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Timing(log, 2*time.Second),
		middleware.Gzip,
	)

	startupReport(ctx, log, cfg, creds, disk, accelerator, hasAccelerator)

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Housekeeping stops before the runner drains.
	housekeeping, stopHousekeeping := context.WithCancel(ctx)
	defer stopHousekeeping()
	go sweeper.Run(housekeeping)
	go evictLoop(housekeeping, limiter)

	go func() {
		log.Info(ctx, "starting server", map[string]interface{}{"addr": cfg.ServerAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	stopHousekeeping()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server forced to shutdown", err)
	}
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "downloads canceled at shutdown", err)
	}
	log.Info(ctx, "server exited")
}

// startupReport logs the state of the credentials, the disk and the
// optional accelerator once at boot.
func startupReport(ctx context.Context, log *logger.Logger, cfg *config.Config, creds *credentials.Monitor,
	disk *admission.Checker, accelerator string, hasAccelerator bool) {
	cookies := creds.Check()
	fields := map[string]interface{}{
		"cookies_path":    creds.Path(),
		"cookies_valid":   cookies.Valid,
		"cookies_message": cookies.Message,
	}
	if cookies.ExpiringSoon {
		fields["cookies_expiring_soon"] = true
	}
	log.Info(ctx, "cookie status", fields)

	space := disk.Check(ctx, 0)
	diskFields := map[string]interface{}{
		"dir":     cfg.DownloadsDir,
		"free_gb": space.FreeGB,
		"message": space.Message,
	}
	if space.Sufficient {
		log.Info(ctx, "disk space", diskFields)
	} else {
		log.Warn(ctx, "disk space low, new downloads will be refused", diskFields)
	}

	if hasAccelerator {
		log.Info(ctx, "multithreaded downloader available", map[string]interface{}{"path": accelerator})
	} else {
		log.Info(ctx, "multithreaded downloader not found, using built-in downloader")
	}
}

func evictLoop(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict()
		}
	}
}
