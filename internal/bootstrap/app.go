package bootstrap

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"lingolens-backend/internal/analyses"
	googleauth "lingolens-backend/internal/auth"
	"lingolens-backend/internal/config"
	"lingolens-backend/internal/shared/server"
	"lingolens-backend/internal/shared/storage/db"
	"lingolens-backend/internal/shared/storage/object"
	localstore "lingolens-backend/internal/shared/storage/object/local"
	s3store "lingolens-backend/internal/shared/storage/object/s3"
	"lingolens-backend/internal/shared/telemetry"
	"lingolens-backend/internal/stats"
	"lingolens-backend/internal/usage"
	"lingolens-backend/internal/vision"
	visionopenai "lingolens-backend/internal/vision/openai"
)

// App holds the wired application dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	UsageService    *usage.Service
	StatsService    *stats.Service
	GoogleAuth      *googleauth.GoogleService
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: analyses.NewHandler(app.AnalysesService),
		UsageHandler:    usage.NewHandler(app.UsageService),
		StatsHandler:    stats.NewHandler(app.StatsService),
		GoogleAuth:      app.GoogleAuth,
	})
	return app, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, errDatabaseRequired
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "migrations failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) {
	cfg := app.Config

	var analysisRepo analyses.Repo
	var statsRepo stats.Repo
	var usageSvc *usage.Service
	if app.DB != nil {
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		statsRepo = &stats.PGRepo{DB: app.DB}
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB), cfg.DailyAnalysisLimit)
	} else {
		analysisRepo = analyses.NewMemoryRepo()
		statsRepo = stats.NewMemoryRepo()
		usageSvc = usage.NewService(cfg.DailyAnalysisLimit)
	}

	statsSvc := stats.NewService(statsRepo)

	visionClient := vision.Client(vision.PlaceholderClient{})
	if cfg.VisionProvider == "openai" {
		if client, err := visionopenai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.VisionModel); err != nil {
			telemetry.Warn("bootstrap.vision_placeholder", map[string]any{"error": err.Error()})
		} else {
			visionClient = client
		}
	}

	app.AnalysesRepo = analysisRepo
	app.UsageService = usageSvc
	app.StatsService = statsSvc
	app.AnalysesService = &analyses.Service{
		Repo:              analysisRepo,
		Usage:             usageSvc,
		Stats:             statsSvc,
		Store:             app.Store,
		Vision:            visionClient,
		ActiveTimeout:     cfg.ActiveTaskTimeout,
		TerminalRetention: cfg.TaskRetention,
	}
	app.GoogleAuth = googleauth.NewGoogleService(googleauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		UIRedirect:   cfg.UIRedirectURL,
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
