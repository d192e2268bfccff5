package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/ml-gateway/internal/auth"
	"github.com/example/ml-gateway/internal/classifier"
	"github.com/example/ml-gateway/internal/config"
	"github.com/example/ml-gateway/internal/detector"
	"github.com/example/ml-gateway/internal/grpcclient"
	"github.com/example/ml-gateway/internal/handlers"
	"github.com/example/ml-gateway/internal/logging"
	"github.com/example/ml-gateway/internal/ocr"
	"github.com/example/ml-gateway/internal/ocr/tesseract"
	"github.com/example/ml-gateway/internal/onnxrt"
	"github.com/example/ml-gateway/internal/repository"
	"github.com/example/ml-gateway/internal/usecase"
	"github.com/example/ml-gateway/internal/wound"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, cfgErr := config.Load()
	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	if err := onnxrt.Init(cfg.ONNXRuntimeLib); err != nil {
		logger.Fatal("failed to initialize onnxruntime", zap.Error(err))
	}
	defer onnxrt.Shutdown() //nolint:errcheck

	models, closeModels := loadModels(ctx, cfg, logger)
	defer closeModels()

	var repo usecase.InferenceRepository = usecase.NopRepository{}
	if cfg.DatabaseDSN != "" {
		db := initDatabase(ctx, cfg.DatabaseDSN, logger)
		inferenceRepo := repository.NewInferenceRepository(db, logger)
		if err := inferenceRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = inferenceRepo
	} else {
		logger.Info("DATABASE_DSN not set, inference logs are not persisted")
	}

	var cache usecase.Cache = usecase.NopCache{}
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		redisCancel()
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient, "ml-gateway:")
	} else {
		logger.Info("REDIS_ADDR not set, result caching disabled")
	}

	uc := usecase.NewInferenceUseCase(models, repo, cache, usecase.Settings{
		CacheTTL:       cfg.CacheTTL,
		MaxImagePixels: cfg.MaxImagePixels,
	}, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	routeOpts := handlers.Options{MaxUploadSize: cfg.MaxUploadBytes, Logger: logger}
	authOpts := auth.Options{Secret: cfg.JWTSecret, Audience: cfg.JWTAudience, Leeway: 30 * time.Second, Logger: logger}
	if authOpts.Enabled() {
		routeOpts.Auth = auth.JWTMiddleware(authOpts)
	} else {
		logger.Warn("JWT_SECRET not set, inference routes are unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(uc, routeOpts, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("ml gateway listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newRouter assembles the gin engine with the middleware stack and routes.
func newRouter(svc handlers.InferenceService, opts handlers.Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(handlers.Recovery(logger), handlers.RequestLogger(logger), handlers.CORS())
	r.MaxMultipartMemory = opts.MaxUploadSize
	handlers.RegisterRoutes(r, svc, opts)
	return r
}

// loadModels builds every read-only artifact. Any failure aborts startup.
func loadModels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.Models, func()) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to release model", zap.Error(err))
			}
		}
	}

	manifest, err := classifier.LoadManifest(cfg.TextManifest)
	if err != nil {
		logger.Fatal("failed to load text manifest", zap.Error(err))
	}
	extractor, err := manifest.Extractor()
	if err != nil {
		logger.Fatal("failed to load feature extractor", zap.Error(err))
	}
	ensemble, err := manifest.Ensemble(extractor.Dim(), logger)
	if err != nil {
		logger.Fatal("failed to load classifiers", zap.Error(err))
	}
	closers = append(closers, ensemble.Close)
	logger.Info("text classifiers loaded", zap.Strings("models", ensemble.Names()), zap.Int("features", extractor.Dim()))

	objects := loadYOLO(cfg, cfg.YOLOModel, cfg.YOLONames, logger)
	closers = append(closers, objects.Close)
	wounds := loadYOLO(cfg, cfg.WoundModel, cfg.WoundNames, logger)
	closers = append(closers, wounds.Close)

	kb, err := wound.LoadKnowledgeBase(cfg.WoundKnowledge)
	if err != nil {
		logger.Fatal("failed to load wound knowledge base", zap.Error(err))
	}

	var engine ocr.Engine
	switch cfg.OCRBackend {
	case "grpc":
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		remote, conn, err := grpcclient.DialOCR(dialCtx, cfg.OCRGRPCAddr, logger)
		dialCancel()
		if err != nil {
			logger.Fatal("failed to connect to ocr worker", zap.Error(err))
		}
		closers = append(closers, conn.Close)
		engine = remote
	default:
		logger.Info("using in-process tesseract", zap.String("version", tesseract.Version()), zap.Strings("languages", cfg.OCRLanguages))
		engine = tesseract.New(cfg.OCRLanguages, logger)
	}
	pipeline, err := ocr.NewPipeline(engine)
	if err != nil {
		logger.Fatal("failed to build ocr pipeline", zap.Error(err))
	}
	closers = append(closers, pipeline.Close)

	return usecase.Models{
		Extractor:   extractor,
		Ensemble:    ensemble,
		Objects:     objects,
		Wounds:      wounds,
		WoundMapper: wound.NewMapper(kb),
		OCR:         pipeline,
	}, closeAll
}

func loadYOLO(cfg *config.Config, modelPath, namesPath string, logger *zap.Logger) *detector.YOLO {
	names, err := detector.LoadNames(namesPath)
	if err != nil {
		logger.Fatal("failed to load detector class names", zap.String("path", namesPath), zap.Error(err))
	}
	det, err := detector.NewYOLO(detector.YOLOConfig{
		ModelPath:  modelPath,
		Names:      names,
		InputSize:  cfg.DetectorInputSize,
		Confidence: cfg.DetectorConfidence,
		IoU:        cfg.DetectorIoU,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load detector", zap.String("path", modelPath), zap.Error(err))
	}
	logger.Info("detector loaded", zap.String("path", modelPath), zap.Int("classes", len(names)))
	return det
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
