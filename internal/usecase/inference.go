package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/classifier"
	"github.com/example/ml-gateway/internal/detector"
	"github.com/example/ml-gateway/internal/features"
	"github.com/example/ml-gateway/internal/imageprocessor"
	"github.com/example/ml-gateway/internal/logging"
	"github.com/example/ml-gateway/internal/repository"
	"github.com/example/ml-gateway/internal/wound"
)

// Endpoint names recorded on inference logs.
const (
	EndpointPredict = "predict"
	EndpointOCR     = "ocr"
	EndpointObjects = "process_image"
	EndpointWounds  = "wound"
)

// Extractor builds classifier input from text.
type Extractor interface {
	Extract(content, brand string) (features.FeatureVector, error)
}

// Predictor runs the classifier ensemble.
type Predictor interface {
	Predict(ctx context.Context, vec features.FeatureVector) classifier.Verdicts
}

// TextReader recognizes text in a decoded image.
type TextReader interface {
	Read(ctx context.Context, img image.Image) (string, error)
}

// InferenceRepository defines the persistence operations needed by the use case.
type InferenceRepository interface {
	SaveLog(ctx context.Context, log *repository.InferenceLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.InferenceLog, error)
	AggregateMetrics(ctx context.Context) ([]repository.EndpointAggregate, error)
}

// Models is the read-only set of artifacts loaded at startup.
type Models struct {
	Extractor   Extractor
	Ensemble    Predictor
	Objects     detector.Detector
	Wounds      detector.Detector
	WoundMapper *wound.Mapper
	OCR         TextReader
}

// InferenceUseCase is the application context shared by all requests. It holds
// no mutable state of its own.
type InferenceUseCase struct {
	models    Models
	repo      InferenceRepository
	cache     Cache
	cacheTTL  time.Duration
	maxPixels int64
	logger    *zap.Logger
	now       func() time.Time
}

// PredictionResult is the outcome of a credibility prediction.
type PredictionResult struct {
	RequestID   string
	Predictions classifier.Verdicts
	Cached      bool
}

// TextResult is the outcome of OCR.
type TextResult struct {
	RequestID string
	Text      string
	Cached    bool
}

// ObjectsResult is the outcome of general object detection.
type ObjectsResult struct {
	RequestID  string
	Labels     []string
	Detections []detector.Detection
	Cached     bool
}

// WoundResult is the outcome of wound detection.
type WoundResult struct {
	RequestID string
	Wounds    []wound.Report
	Message   string
	Cached    bool
}

// Settings holds request-independent limits.
type Settings struct {
	// CacheTTL of zero or less disables caching.
	CacheTTL time.Duration
	// MaxImagePixels bounds decoded uploads; zero selects
	// imageprocessor.DefaultMaxPixels.
	MaxImagePixels int64
}

// NewInferenceUseCase constructs a new use case instance. A nil repo or cache
// disables persistence or caching.
func NewInferenceUseCase(models Models, repo InferenceRepository, cache Cache, settings Settings, logger *zap.Logger) *InferenceUseCase {
	if repo == nil {
		repo = NopRepository{}
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &InferenceUseCase{
		models:    models,
		repo:      repo,
		cache:     cache,
		cacheTTL:  settings.CacheTTL,
		maxPixels: settings.MaxImagePixels,
		logger:    logger.Named("inference_usecase"),
		now:       time.Now,
	}
}

// Predict classifies article content published by brand with every model of
// the ensemble. Individual model failures surface as error verdicts, not as
// an error of the call.
func (uc *InferenceUseCase) Predict(ctx context.Context, content, brand string) (*PredictionResult, error) {
	start := uc.now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if strings.TrimSpace(content) == "" {
		opLogger.Warn("content is required but not provided")
		return nil, logging.NewOperationError("usecase.predict", requestID, fmt.Errorf("content is required: %w", ErrMissingInput))
	}
	if brand == "" {
		brand = features.DefaultBrand
	}

	hash := hashOf([]byte(brand), []byte{0}, []byte(content))
	cacheKey := "predict:" + hash
	var verdicts classifier.Verdicts
	cached := uc.loadCached(ctx, opLogger, cacheKey, &verdicts)
	if !cached {
		vec, err := uc.models.Extractor.Extract(content, brand)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.extract_features", requestID, err)
			opLogger.Error("feature preprocessing failed", zap.Error(wrapped))
			return nil, wrapped
		}
		verdicts = uc.models.Ensemble.Predict(ctx, vec)
		if !verdicts.Failed() {
			uc.storeCached(ctx, opLogger, cacheKey, verdicts)
		}
	}

	uc.record(ctx, opLogger, start, &repository.InferenceLog{
		RequestID: requestID,
		Endpoint:  EndpointPredict,
		InputHash: hash,
		Success:   !verdicts.Failed(),
		CacheHit:  cached,
		Summary:   summarizeVerdicts(verdicts),
	})
	opLogger.Info("predictions generated", zap.Bool("cache_hit", cached), zap.Int("models", len(verdicts)))
	return &PredictionResult{RequestID: requestID, Predictions: verdicts, Cached: cached}, nil
}

// ExtractText runs OCR over an uploaded image.
func (uc *InferenceUseCase) ExtractText(ctx context.Context, imageBytes []byte) (*TextResult, error) {
	start := uc.now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.extract_text", requestID)

	img, err := uc.decode(opLogger, "usecase.extract_text", requestID, imageBytes)
	if err != nil {
		return nil, err
	}

	hash := hashOf(imageBytes)
	cacheKey := "ocr:" + hash
	var text string
	cached := uc.loadCached(ctx, opLogger, cacheKey, &text)
	if !cached {
		text, err = uc.models.OCR.Read(ctx, img)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.ocr", requestID, err)
			opLogger.Error("ocr processing failed", zap.Error(wrapped))
			uc.record(ctx, opLogger, start, &repository.InferenceLog{
				RequestID: requestID, Endpoint: EndpointOCR, InputHash: hash, Summary: wrapped.Error(),
			})
			return nil, wrapped
		}
		uc.storeCached(ctx, opLogger, cacheKey, text)
	}

	uc.record(ctx, opLogger, start, &repository.InferenceLog{
		RequestID: requestID,
		Endpoint:  EndpointOCR,
		InputHash: hash,
		Success:   true,
		CacheHit:  cached,
		Summary:   fmt.Sprintf("chars:%d", len(text)),
	})
	opLogger.Info("ocr text extracted", zap.Bool("cache_hit", cached))
	return &TextResult{RequestID: requestID, Text: text, Cached: cached}, nil
}

// DetectObjects runs the general object detector and reports every box label.
func (uc *InferenceUseCase) DetectObjects(ctx context.Context, imageBytes []byte) (*ObjectsResult, error) {
	start := uc.now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect_objects", requestID)

	dets, hash, cached, err := uc.detect(ctx, opLogger, uc.models.Objects, "objects", "usecase.detect_objects", requestID, imageBytes)
	if err != nil {
		uc.recordFailure(ctx, opLogger, start, requestID, EndpointObjects, hash, err)
		return nil, err
	}
	labels := detector.Labels(dets)

	uc.record(ctx, opLogger, start, &repository.InferenceLog{
		RequestID: requestID,
		Endpoint:  EndpointObjects,
		InputHash: hash,
		Success:   true,
		CacheHit:  cached,
		Summary:   strings.Join(labels, ","),
	})
	opLogger.Info("objects detected", zap.Int("count", len(labels)), zap.Bool("cache_hit", cached))
	return &ObjectsResult{RequestID: requestID, Labels: labels, Detections: dets, Cached: cached}, nil
}

// DetectWounds runs the wound detector and enriches the unique canonical
// wound types with first-aid guidance.
func (uc *InferenceUseCase) DetectWounds(ctx context.Context, imageBytes []byte) (*WoundResult, error) {
	start := uc.now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect_wounds", requestID)

	dets, hash, cached, err := uc.detect(ctx, opLogger, uc.models.Wounds, "wounds", "usecase.detect_wounds", requestID, imageBytes)
	if err != nil {
		uc.recordFailure(ctx, opLogger, start, requestID, EndpointWounds, hash, err)
		return nil, err
	}
	reports := uc.models.WoundMapper.Describe(detector.UniqueLabels(dets))
	message := wound.Summary(reports)

	types := make([]string, len(reports))
	for i, r := range reports {
		types[i] = r.WoundType
	}
	uc.record(ctx, opLogger, start, &repository.InferenceLog{
		RequestID: requestID,
		Endpoint:  EndpointWounds,
		InputHash: hash,
		Success:   true,
		CacheHit:  cached,
		Summary:   strings.Join(types, ","),
	})
	opLogger.Info("wound detection completed", zap.String("message", message), zap.Bool("cache_hit", cached))
	return &WoundResult{RequestID: requestID, Wounds: reports, Message: message, Cached: cached}, nil
}

// GetResult loads the persisted log of a previous request.
func (uc *InferenceUseCase) GetResult(ctx context.Context, requestID string) (*repository.InferenceLog, error) {
	return uc.repo.FindByRequestID(ctx, requestID)
}

func (uc *InferenceUseCase) detect(ctx context.Context, opLogger *zap.Logger, det detector.Detector, kind, operation, requestID string, imageBytes []byte) ([]detector.Detection, string, bool, error) {
	img, err := uc.decode(opLogger, operation, requestID, imageBytes)
	if err != nil {
		return nil, "", false, err
	}

	hash := hashOf(imageBytes)
	cacheKey := kind + ":" + hash
	var dets []detector.Detection
	if uc.loadCached(ctx, opLogger, cacheKey, &dets) {
		return dets, hash, true, nil
	}

	dets, err = det.Detect(ctx, img)
	if err != nil {
		wrapped := logging.NewOperationError(operation, requestID, err)
		opLogger.Error("detector inference failed", zap.Error(wrapped))
		return nil, hash, false, wrapped
	}
	if dets == nil {
		dets = []detector.Detection{}
	}
	uc.storeCached(ctx, opLogger, cacheKey, dets)
	return dets, hash, false, nil
}

func (uc *InferenceUseCase) decode(opLogger *zap.Logger, operation, requestID string, data []byte) (image.Image, error) {
	img, _, err := imageprocessor.Decode(data, uc.maxPixels)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, imageprocessor.ErrEmptyImage):
		opLogger.Warn("empty image upload")
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("%w: %v", ErrMissingInput, err))
	default:
		opLogger.Warn("failed to decode image", zap.Error(err))
		return nil, logging.NewOperationError(operation, requestID, err)
	}
}

func (uc *InferenceUseCase) loadCached(ctx context.Context, opLogger *zap.Logger, key string, dst interface{}) bool {
	if uc.cacheTTL <= 0 {
		return false
	}
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		opLogger.Warn("failed to decode cached result", zap.Error(err))
		return false
	}
	return true
}

func (uc *InferenceUseCase) storeCached(ctx context.Context, opLogger *zap.Logger, key string, value interface{}) {
	if uc.cacheTTL <= 0 {
		return
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		opLogger.Error("failed to serialize result", zap.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL); err != nil {
		opLogger.Warn("failed to cache result", zap.Error(err))
	}
}

func (uc *InferenceUseCase) record(ctx context.Context, opLogger *zap.Logger, start time.Time, log *repository.InferenceLog) {
	now := uc.now()
	log.CreatedAt = now.UTC()
	log.LatencyMs = now.Sub(start).Milliseconds()
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to persist inference log", zap.Error(err))
	}
}

func (uc *InferenceUseCase) recordFailure(ctx context.Context, opLogger *zap.Logger, start time.Time, requestID, endpoint, hash string, err error) {
	// Client input errors never reached a model.
	if errors.Is(err, ErrMissingInput) || errors.Is(err, ErrUndecodableImage) {
		return
	}
	uc.record(ctx, opLogger, start, &repository.InferenceLog{
		RequestID: requestID,
		Endpoint:  endpoint,
		InputHash: hash,
		Summary:   err.Error(),
	})
}

func summarizeVerdicts(v classifier.Verdicts) string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + v[name]
	}
	return strings.Join(parts, ";")
}

func hashOf(parts ...[]byte) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NopRepository discards logs. It stands in when no database is configured.
type NopRepository struct{}

// SaveLog implements InferenceRepository.
func (NopRepository) SaveLog(context.Context, *repository.InferenceLog) error { return nil }

// FindByRequestID implements InferenceRepository.
func (NopRepository) FindByRequestID(context.Context, string) (*repository.InferenceLog, error) {
	return nil, ErrResultNotFound
}

// AggregateMetrics implements InferenceRepository.
func (NopRepository) AggregateMetrics(context.Context) ([]repository.EndpointAggregate, error) {
	return nil, nil
}
