package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/config"
	"lms-dashboard-go/internal/db"
	httpapi "lms-dashboard-go/internal/http"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/migrations"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/readstate"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/remote/memstore"
	"lms-dashboard-go/internal/remote/pgstore"
	"lms-dashboard-go/internal/services"
	"lms-dashboard-go/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store", "error", err)
	}
	defer closeStore()

	objects, closeObjects, err := openObjects(ctx, cfg, log)
	if err != nil {
		log.Fatal("object storage", "error", err)
	}
	defer closeObjects()

	if err := os.MkdirAll(filepath.Dir(cfg.ReadStatePath), 0o755); err != nil {
		log.Fatal("read state dir", "error", err)
	}
	reads, err := readstate.OpenBolt(cfg.ReadStatePath)
	if err != nil {
		log.Fatal("read state", "error", err)
	}
	defer reads.Close()

	bus, err := openBus(ctx, cfg, log)
	if err != nil {
		log.Fatal("event bus", "error", err)
	}
	defer bus.Close()

	queryCache := cache.New(cache.Options{
		TTL:       time.Duration(cfg.CacheTTLSeconds) * time.Second,
		MaxTries:  uint(max(cfg.RetryMaxTries, 1)),
		Permanent: services.IsPermanent,
	}, log)
	// Other instances drop the same keys; connected clients refetch what they
	// show under them.
	relay := services.NewInvalidationRelay(queryCache, bus, log)
	relay.Start(ctx)

	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	if err := bus.StartForwarder(ctx, relay.Forward(hub.Broadcast)); err != nil {
		log.Fatal("event forwarder", "error", err)
	}

	deps := services.Deps{
		Store:   store,
		Cache:   queryCache,
		Log:     log,
		Events:  bus,
		Objects: objects,
	}
	recorder := services.NewMetricsRecorder(cfg.MetricsDiskPath, 360, bus, log)
	go recorder.Run(ctx, time.Duration(cfg.MetricsSampleSeconds)*time.Second)

	tokens := auth.TokenService{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  time.Duration(cfg.AccessTTLSeconds) * time.Second,
		RefreshTTL: time.Duration(cfg.RefreshTTLSeconds) * time.Second,
		ResetTTL:   time.Duration(cfg.ResetTTLSeconds) * time.Second,
	}
	authService := auth.NewService(store, tokens, auth.NewLogMailer(log), log)

	server := httpapi.NewServer(cfg, authService, httpapi.Services{
		Profiles:      services.NewProfileService(deps),
		Courses:       services.NewCourseService(deps),
		Documents:     services.NewDocumentService(deps),
		Enrollments:   services.NewEnrollmentService(deps),
		Assignments:   services.NewAssignmentService(deps),
		Submissions:   services.NewSubmissionService(deps),
		Messages:      services.NewMessageService(deps, cfg.MessagePageSize),
		Notifications: services.NewNotificationService(deps, reads, cfg.NotificationWindowDays),
		Stats:         services.NewStatsService(deps),
		Files:         services.NewFileService(objects, log),
		Metrics:       recorder,
	}, hub, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", httpServer.Addr, "data_driver", cfg.DataDriver, "storage_driver", cfg.StorageDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", "error", err)
		}
	}()

	<-ctx.Done()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Warn("shutdown", "error", err)
	}
	log.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (remote.Store, func(), error) {
	switch cfg.DataDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		store := memstore.New().
			Unique(models.TableAuthUsers, "email").
			Unique(models.TableEnrollments, "course_id", "student_id").
			Unique(models.TableSubmissions, "assignment_id", "student_id")
		return store, func() {}, nil
	case config.DriverPostgres:
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db: %w", err)
		}
		if err := migrations.Apply(ctx, database, migrations.Files(), log); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return pgstore.New(database, log), func() { _ = database.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown DATA_DRIVER %q", cfg.DataDriver)
}

func openObjects(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.ObjectStore, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageLocal:
		baseURL := cfg.PublicBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:" + cfg.Port
		}
		return storage.NewLocalStore(cfg.MediaStoragePath, baseURL), func() {}, nil
	case config.StorageGCS:
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, cfg.PublicBaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { _ = gcs.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
}

func openBus(ctx context.Context, cfg config.Config, log *logger.Logger) (realtime.Bus, error) {
	if cfg.RedisAddr == "" {
		return realtime.NewLocalBus(), nil
	}
	return realtime.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
}
